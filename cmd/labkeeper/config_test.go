package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ethpandaops/labkeeper/pkg/config"
)

func TestRedactSecrets(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Postgres.Password = "hunter2"
	cfg.API.Auth.Users = []config.AuthUser{
		{Username: "admin", Password: "secret", Role: config.RoleAdmin},
		{Username: "ci", Role: config.RoleRunner},
	}

	redactSecrets(cfg)

	assert.Equal(t, redacted, cfg.Database.Postgres.Password)
	assert.Equal(t, redacted, cfg.API.Auth.Users[0].Password)
	assert.Empty(t, cfg.API.Auth.Users[1].Password)
	assert.Equal(t, "admin", cfg.API.Auth.Users[0].Username)
}
