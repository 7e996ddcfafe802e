package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	configPath := writeConfig(t, `
global:
  log_level: info
database:
  driver: sqlite
  sqlite:
    path: /var/lib/labkeeper/original.db
api:
  server:
    listen: ":9000"
  auth:
    session_ttl: 12h
    users:
      - username: admin
        password: secret
        role: admin
agent:
  interval: 10s
`)

	tests := []struct {
		name     string
		envVars  map[string]string
		validate func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no env vars uses yaml values",
			envVars: map[string]string{},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "info", cfg.Global.LogLevel)
				assert.Equal(t, ":9000", cfg.API.Server.Listen)
				assert.Equal(t, "12h", cfg.API.Auth.SessionTTL)
				assert.Equal(t, "/var/lib/labkeeper/original.db", cfg.Database.SQLite.Path)
				require.Len(t, cfg.API.Auth.Users, 1)
				assert.Equal(t, "admin", cfg.API.Auth.Users[0].Username)
			},
		},
		{
			name: "string override - log_level",
			envVars: map[string]string{
				"LABKEEPER_GLOBAL_LOG_LEVEL": "debug",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "debug", cfg.Global.LogLevel)
			},
		},
		{
			name: "nested override - api.server.listen",
			envVars: map[string]string{
				"LABKEEPER_API_SERVER_LISTEN": "127.0.0.1:7000",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "127.0.0.1:7000", cfg.API.Server.Listen)
			},
		},
		{
			name: "boolean override - open_execution_reads",
			envVars: map[string]string{
				"LABKEEPER_API_AUTH_OPEN_EXECUTION_READS": "true",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.True(t, cfg.API.Auth.OpenExecutionReads)
			},
		},
		{
			name: "integer override - postgres port",
			envVars: map[string]string{
				"LABKEEPER_DATABASE_DRIVER":        "postgres",
				"LABKEEPER_DATABASE_POSTGRES_PORT": "6543",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "postgres", cfg.Database.Driver)
				assert.Equal(t, 6543, cfg.Database.Postgres.Port)
			},
		},
		{
			name: "agent override - interval",
			envVars: map[string]string{
				"LABKEEPER_AGENT_INTERVAL": "1m",
			},
			validate: func(t *testing.T, cfg *Config) {
				assert.Equal(t, "1m", cfg.Agent.Interval)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			cfg, err := Load(configPath)
			require.NoError(t, err)

			tt.validate(t, cfg)
		})
	}
}

func TestLoad_DefaultsAppliedWhenEmpty(t *testing.T) {
	configPath := writeConfig(t, "global: {}\n")

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.Global.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, DefaultSQLitePath, cfg.Database.SQLite.Path)
	assert.Equal(t, 5432, cfg.Database.Postgres.Port)
	assert.Equal(t, DefaultListen, cfg.API.Server.Listen)
	assert.True(t, cfg.API.Server.Metrics)
	assert.Equal(t, DefaultSessionTTL, cfg.API.Auth.SessionTTL)
	assert.Equal(t, DefaultAgentInterval, cfg.Agent.Interval)
	assert.Equal(t, DefaultAgentDiskPath, cfg.Agent.DiskPath)
	assert.True(t, cfg.Agent.Register)
}

func TestLoad_NoFilesUsesEnvironment(t *testing.T) {
	t.Setenv("LABKEEPER_DATABASE_SQLITE_PATH", "/tmp/from-env.db")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/from-env.db", cfg.Database.SQLite.Path)
}

func TestLoad_LaterFilesOverride(t *testing.T) {
	base := writeConfig(t, `
api:
  server:
    listen: ":9000"
  auth:
    session_ttl: 1h
`)
	override := writeConfig(t, `
api:
  server:
    listen: ":9100"
`)

	cfg, err := Load(base, override)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.API.Server.Listen)
	assert.Equal(t, "1h", cfg.API.Auth.SessionTTL)
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: yaml: content:")

	_, err := Load(configPath)
	require.Error(t, err)
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{LogLevel: "info"},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteDatabaseConfig{Path: "labkeeper.db"},
		},
		API: APIConfig{
			Server: APIServerConfig{Listen: ":8080"},
			Auth: APIAuthConfig{
				SessionTTL: "24h",
				Users: []AuthUser{
					{Username: "admin", Password: "secret", Role: RoleAdmin},
				},
			},
		},
		Agent: AgentConfig{Interval: "30s", DiskPath: "/"},
	}
}

func TestConfig_ValidateAPI(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantErr   bool
		errSubstr []string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:      "unknown driver",
			mutate:    func(c *Config) { c.Database.Driver = "mysql" },
			wantErr:   true,
			errSubstr: []string{"unsupported driver"},
		},
		{
			name:      "bad log level",
			mutate:    func(c *Config) { c.Global.LogLevel = "loud" },
			wantErr:   true,
			errSubstr: []string{"global.log_level"},
		},
		{
			name:      "bad session ttl",
			mutate:    func(c *Config) { c.API.Auth.SessionTTL = "forever" },
			wantErr:   true,
			errSubstr: []string{"session_ttl"},
		},
		{
			name: "user problems are all reported",
			mutate: func(c *Config) {
				c.API.Auth.Users = append(c.API.Auth.Users,
					AuthUser{Username: "admin", Password: "", Role: "root"})
			},
			wantErr: true,
			errSubstr: []string{
				"duplicate username",
				"password is required",
				"unknown role",
			},
		},
		{
			name: "rate limit without limits",
			mutate: func(c *Config) {
				c.API.Server.RateLimit.Enabled = true
			},
			wantErr:   true,
			errSubstr: []string{"requests_per_minute"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.ValidateAPI()
			if !tt.wantErr {
				require.NoError(t, err)

				return
			}

			require.Error(t, err)

			for _, s := range tt.errSubstr {
				assert.Contains(t, err.Error(), s)
			}
		})
	}
}

func TestConfig_ValidateAgent(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.ValidateAgent())

	cfg.Agent.Interval = "100ms"
	err := cfg.ValidateAgent()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 1s")
}
