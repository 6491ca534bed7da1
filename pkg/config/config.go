// Package config loads the service configuration from YAML, the environment
// and command-line flags, and builds the logger from it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"stories-api/pkg/db"
	"stories-api/pkg/httpclient"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendPostgres = "postgres"
	BackendSupabase = "supabase"
	BackendMongo    = "mongo"
	BackendMemory   = "memory"
)

// Config is the whole application configuration.
type Config struct {
	Server struct {
		Addr            string        `yaml:"addr"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Store struct {
		Backend string `yaml:"backend"`
	} `yaml:"store"`

	Postgres struct {
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxIdle  time.Duration `yaml:"conn_max_idle"`
		ConnMaxLife  time.Duration `yaml:"conn_max_life"`
	} `yaml:"postgres"`

	Supabase struct {
		ConnectionString string        `yaml:"connection_string"`
		URL              string        `yaml:"url"`
		Key              string        `yaml:"key"`
		Password         string        `yaml:"password"`
		MaxOpenConns     int           `yaml:"max_open_conns"`
		MaxIdleConns     int           `yaml:"max_idle_conns"`
		ConnMaxIdle      time.Duration `yaml:"conn_max_idle"`
		ConnMaxLife      time.Duration `yaml:"conn_max_life"`
	} `yaml:"supabase"`

	Mongo struct {
		URI         string `yaml:"uri"`
		Database    string `yaml:"database"`
		MaxPoolSize uint64 `yaml:"max_pool_size"`
	} `yaml:"mongo"`

	HTTPClient struct {
		// Profile selects the request header set: default, browser or cloudflare.
		Profile string `yaml:"profile"`
	} `yaml:"http_client"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Override adjusts a loaded configuration, typically from command-line flags.
type Override func(*Config)

// Load reads the YAML file at path (if path is non-empty), applies the
// DATABASE_URL override, the given overrides and the defaults, and
// validates the result.
func Load(path string, overrides ...Override) (*Config, error) {
	c := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Postgres.DSN = dsn
	}
	for _, o := range overrides {
		o(c)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 15 * time.Second
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendPostgres
	}
	if c.Postgres.MaxOpenConns == 0 {
		c.Postgres.MaxOpenConns = 10
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "stories"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks the settings the selected backend needs.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendPostgres:
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres backend needs postgres.dsn or DATABASE_URL")
		}
	case BackendSupabase:
		// password (or connection string) means direct SQL, key alone means the REST API
		if c.Supabase.ConnectionString == "" && (c.Supabase.URL == "" || (c.Supabase.Password == "" && c.Supabase.Key == "")) {
			return fmt.Errorf("supabase backend needs supabase.connection_string, or supabase.url with supabase.password or supabase.key")
		}
	case BackendMongo:
		if c.Mongo.URI == "" {
			return fmt.Errorf("mongo backend needs mongo.uri")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if _, err := httpclient.ParseClientType(c.HTTPClient.Profile); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// PostgresConfig returns the connection settings for db.PostgresClient.
func (c *Config) PostgresConfig() db.PostgresConfig {
	return db.PostgresConfig{
		DSN:          c.Postgres.DSN,
		MaxOpenConns: c.Postgres.MaxOpenConns,
		MaxIdleConns: c.Postgres.MaxIdleConns,
		ConnMaxIdle:  c.Postgres.ConnMaxIdle,
		ConnMaxLife:  c.Postgres.ConnMaxLife,
	}
}

// SupabaseConfig returns the connection settings for db.SupabaseClient.
func (c *Config) SupabaseConfig() db.SupabaseConfig {
	return db.SupabaseConfig{
		ConnectionString: c.Supabase.ConnectionString,
		SupabaseURL:      c.Supabase.URL,
		SupabaseKey:      c.Supabase.Key,
		Password:         c.Supabase.Password,
		MaxOpenConns:     c.Supabase.MaxOpenConns,
		MaxIdleConns:     c.Supabase.MaxIdleConns,
		ConnMaxIdle:      c.Supabase.ConnMaxIdle,
		ConnMaxLife:      c.Supabase.ConnMaxLife,
	}
}

// MongoConfig returns the connection settings for db.MongoClient.
func (c *Config) MongoConfig() db.MongoConfig {
	return db.MongoConfig{
		URI:         c.Mongo.URI,
		Database:    c.Mongo.Database,
		MaxPoolSize: c.Mongo.MaxPoolSize,
	}
}

// NewLogger builds a text or JSON slog logger at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLogLevel(c.Log.Level)}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLogLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
