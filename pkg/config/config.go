package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix is the prefix for environment variable overrides, e.g.
	// LABKEEPER_API_SERVER_LISTEN overrides api.server.listen.
	EnvPrefix = "LABKEEPER"

	// DefaultLogLevel is the default logging level.
	DefaultLogLevel = "info"

	// DefaultListen is the default API listen address.
	DefaultListen = ":8080"

	// DefaultSessionTTL is the default lifetime of a login session.
	DefaultSessionTTL = "24h"

	// DefaultSQLitePath is the default SQLite database file.
	DefaultSQLitePath = "labkeeper.db"

	// DefaultAgentInterval is the default PC stats sampling interval.
	DefaultAgentInterval = "30s"

	// DefaultAgentDiskPath is the mount point sampled for disk usage.
	DefaultAgentDiskPath = "/"
)

// Role names accepted for configured users.
const (
	RoleAdmin    = "admin"
	RoleRunner   = "runner"
	RoleReadOnly = "readonly"
)

// Config is the root configuration for labkeeper.
type Config struct {
	Global   GlobalConfig   `yaml:"global" mapstructure:"global"`
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Agent    AgentConfig    `yaml:"agent" mapstructure:"agent"`
}

// GlobalConfig contains global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Driver   string               `yaml:"driver" mapstructure:"driver"`
	SQLite   SQLiteDatabaseConfig `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	Postgres PostgresConfig       `yaml:"postgres,omitempty" mapstructure:"postgres"`
}

// SQLiteDatabaseConfig contains SQLite-specific settings.
type SQLiteDatabaseConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// PostgresConfig contains PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	User     string `yaml:"user" mapstructure:"user"`
	Password string `yaml:"password" mapstructure:"password"`
	Database string `yaml:"database" mapstructure:"database"`
	SSLMode  string `yaml:"ssl_mode,omitempty" mapstructure:"ssl_mode"`
}

// DSN renders the PostgreSQL connection string.
func (p *PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// APIConfig contains all API server configuration.
type APIConfig struct {
	Server APIServerConfig `yaml:"server" mapstructure:"server"`
	Auth   APIAuthConfig   `yaml:"auth" mapstructure:"auth"`
}

// APIServerConfig contains HTTP server settings.
type APIServerConfig struct {
	Listen      string          `yaml:"listen" mapstructure:"listen"`
	CORSOrigins []string        `yaml:"cors_origins,omitempty" mapstructure:"cors_origins"`
	Metrics     bool            `yaml:"metrics" mapstructure:"metrics"`
	RateLimit   RateLimitConfig `yaml:"rate_limit,omitempty" mapstructure:"rate_limit"`
}

// RateLimitConfig configures per-IP rate limiting.
type RateLimitConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Auth          RateLimitTier `yaml:"auth,omitempty" mapstructure:"auth"`
	Authenticated RateLimitTier `yaml:"authenticated,omitempty" mapstructure:"authenticated"`
}

// RateLimitTier defines request limits for a specific tier.
type RateLimitTier struct {
	RequestsPerMinute int `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// APIAuthConfig contains authentication settings.
type APIAuthConfig struct {
	SessionTTL string `yaml:"session_ttl" mapstructure:"session_ttl"`
	// OpenExecutionReads lets any authenticated user read test runs and
	// scenarios. Writes always require the runner role.
	OpenExecutionReads bool       `yaml:"open_execution_reads" mapstructure:"open_execution_reads"`
	Users              []AuthUser `yaml:"users,omitempty" mapstructure:"users"`
}

// AuthUser defines a local user seeded from config.
type AuthUser struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	Role     string `yaml:"role" mapstructure:"role"`
}

// AgentConfig configures the PC stats agent.
type AgentConfig struct {
	// Hostname overrides the detected host name used to find the TestPC.
	Hostname string `yaml:"hostname,omitempty" mapstructure:"hostname"`
	Interval string `yaml:"interval" mapstructure:"interval"`
	DiskPath string `yaml:"disk_path" mapstructure:"disk_path"`
	// Register creates the TestPC row when none matches the hostname.
	Register bool `yaml:"register" mapstructure:"register"`
}

// Load reads the given configuration files in order, later files
// overriding earlier ones, then applies LABKEEPER_* environment overrides.
// With no paths the configuration is built from defaults and environment.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v)

	for i, path := range paths {
		v.SetConfigFile(path)

		read := v.MergeInConfig
		if i == 0 {
			read = v.ReadInConfig
		}

		if err := read(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// setDefaults registers every scalar key so that AutomaticEnv can
// override keys absent from the config files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("global.log_level", DefaultLogLevel)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.sqlite.path", DefaultSQLitePath)
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "labkeeper")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "labkeeper")
	v.SetDefault("database.postgres.ssl_mode", "disable")

	v.SetDefault("api.server.listen", DefaultListen)
	v.SetDefault("api.server.cors_origins", []string{})
	v.SetDefault("api.server.metrics", true)
	v.SetDefault("api.server.rate_limit.enabled", false)
	v.SetDefault("api.server.rate_limit.auth.requests_per_minute", 10)
	v.SetDefault("api.server.rate_limit.authenticated.requests_per_minute", 600)
	v.SetDefault("api.auth.session_ttl", DefaultSessionTTL)
	v.SetDefault("api.auth.open_execution_reads", false)

	v.SetDefault("agent.hostname", "")
	v.SetDefault("agent.interval", DefaultAgentInterval)
	v.SetDefault("agent.disk_path", DefaultAgentDiskPath)
	v.SetDefault("agent.register", true)
}

// applyDefaults fills values that were explicitly set to empty.
func (c *Config) applyDefaults() {
	if c.Global.LogLevel == "" {
		c.Global.LogLevel = DefaultLogLevel
	}

	if c.API.Server.Listen == "" {
		c.API.Server.Listen = DefaultListen
	}

	if c.API.Auth.SessionTTL == "" {
		c.API.Auth.SessionTTL = DefaultSessionTTL
	}

	if c.Agent.Interval == "" {
		c.Agent.Interval = DefaultAgentInterval
	}

	if c.Agent.DiskPath == "" {
		c.Agent.DiskPath = DefaultAgentDiskPath
	}
}

// Validate checks the settings shared by every command.
func (c *Config) Validate() error {
	var result *multierror.Error

	if _, err := logrus.ParseLevel(c.Global.LogLevel); err != nil {
		result = multierror.Append(result,
			fmt.Errorf("global.log_level: %w", err))
	}

	switch c.Database.Driver {
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			result = multierror.Append(result,
				fmt.Errorf("database.sqlite.path is required"))
		}
	case "postgres":
		if c.Database.Postgres.Host == "" {
			result = multierror.Append(result,
				fmt.Errorf("database.postgres.host is required"))
		}

		if c.Database.Postgres.Database == "" {
			result = multierror.Append(result,
				fmt.Errorf("database.postgres.database is required"))
		}
	default:
		result = multierror.Append(result,
			fmt.Errorf("database.driver: unsupported driver %q", c.Database.Driver))
	}

	return result.ErrorOrNil()
}

// ValidateAPI checks the configuration needed by the api command.
func (c *Config) ValidateAPI() error {
	var result *multierror.Error

	if err := c.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if c.API.Server.Listen == "" {
		result = multierror.Append(result,
			fmt.Errorf("api.server.listen is required"))
	}

	if ttl, err := time.ParseDuration(c.API.Auth.SessionTTL); err != nil {
		result = multierror.Append(result,
			fmt.Errorf("api.auth.session_ttl: %w", err))
	} else if ttl <= 0 {
		result = multierror.Append(result,
			fmt.Errorf("api.auth.session_ttl must be positive"))
	}

	if rl := c.API.Server.RateLimit; rl.Enabled {
		if rl.Auth.RequestsPerMinute <= 0 || rl.Authenticated.RequestsPerMinute <= 0 {
			result = multierror.Append(result,
				fmt.Errorf("api.server.rate_limit requests_per_minute must be positive"))
		}
	}

	seen := make(map[string]struct{}, len(c.API.Auth.Users))

	for i, u := range c.API.Auth.Users {
		if u.Username == "" {
			result = multierror.Append(result,
				fmt.Errorf("api.auth.users[%d]: username is required", i))

			continue
		}

		if _, ok := seen[u.Username]; ok {
			result = multierror.Append(result,
				fmt.Errorf("api.auth.users[%d]: duplicate username %q", i, u.Username))
		}

		seen[u.Username] = struct{}{}

		if u.Password == "" {
			result = multierror.Append(result,
				fmt.Errorf("api.auth.users[%d]: password is required", i))
		}

		if !IsValidRole(u.Role) {
			result = multierror.Append(result,
				fmt.Errorf("api.auth.users[%d]: unknown role %q", i, u.Role))
		}
	}

	return result.ErrorOrNil()
}

// ValidateAgent checks the configuration needed by the agent command.
func (c *Config) ValidateAgent() error {
	var result *multierror.Error

	if err := c.Validate(); err != nil {
		result = multierror.Append(result, err)
	}

	if d, err := time.ParseDuration(c.Agent.Interval); err != nil {
		result = multierror.Append(result,
			fmt.Errorf("agent.interval: %w", err))
	} else if d < time.Second {
		result = multierror.Append(result,
			fmt.Errorf("agent.interval must be at least 1s"))
	}

	return result.ErrorOrNil()
}

var validRoles = map[string]struct{}{
	RoleAdmin:    {},
	RoleRunner:   {},
	RoleReadOnly: {},
}

// IsValidRole reports whether role is a known user role.
func IsValidRole(role string) bool {
	_, ok := validRoles[role]

	return ok
}
