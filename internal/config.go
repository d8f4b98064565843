package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifelog/internal/query"
	"github.com/starford/lifelog/internal/store"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// QueryModeStructured is the only supported query mode.
const QueryModeStructured = "structured"

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Database DatabaseConfig    `yaml:"database"`
	Auth     AuthConfig        `yaml:"auth"`
	Query    QueryConfig       `yaml:"query"`
	Metrics  MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.Query.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// DatabaseConfig holds the connection pool configuration.
type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// Validate validates the database configuration.
func (c *DatabaseConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(store.DriverSQLite, store.DriverPostgres)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
		validation.Field(&c.MaxIdleConns, validation.Min(0)),
		validation.Field(&c.ConnMaxLifetime, validation.Min(time.Duration(0))),
	)
}

// StoreOptions converts the section into store.Options.
func (c *DatabaseConfig) StoreOptions() store.Options {
	return store.Options{
		Driver:          c.Driver,
		DSN:             c.DSN,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
	}
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// QueryConfig tunes the query engine.
type QueryConfig struct {
	Mode                 string        `yaml:"mode"`
	DefaultLimit         int           `yaml:"default_limit"`
	MaxLimit             int           `yaml:"max_limit"`
	Timeout              time.Duration `yaml:"timeout"`
	HydrationParallelism int           `yaml:"hydration_parallelism"`
	ConsistentSnapshot   bool          `yaml:"consistent_snapshot"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = QueryModeStructured
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.In(QueryModeStructured)),
		validation.Field(&c.DefaultLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.MaxLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
		validation.Field(&c.HydrationParallelism, validation.Min(0), validation.Max(16)),
	); err != nil {
		return err
	}
	if c.DefaultLimit > c.MaxLimit {
		return fmt.Errorf("query: default_limit %d exceeds max_limit %d", c.DefaultLimit, c.MaxLimit)
	}
	return nil
}

// EngineOptions converts the section into query engine options.
func (c *QueryConfig) EngineOptions() []query.Option {
	return []query.Option{
		query.WithLimits(c.DefaultLimit, c.MaxLimit),
		query.WithTimeout(c.Timeout),
		query.WithHydrationParallelism(c.HydrationParallelism),
		query.WithConsistentSnapshot(c.ConsistentSnapshot),
	}
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Validate validates the metrics configuration.
func (c *MetricsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Database: DatabaseConfig{
			Driver:       store.DriverSQLite,
			DSN:          "./lifelog.db",
			MaxOpenConns: 8,
			MaxIdleConns: 4,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Query: QueryConfig{
			Mode:                 QueryModeStructured,
			DefaultLimit:         query.DefaultLimit,
			MaxLimit:             query.MaxLimit,
			Timeout:              10 * time.Second,
			HydrationParallelism: 1,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
