// Package config loads the settings of the long-running sync server from
// the environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Prefix is prepended to every variable name, e.g. FUSIONSYNC_ADDR.
const Prefix = "FUSIONSYNC_"

// Store drivers.
const (
	DriverSQLite     = "sqlite"      // database/sql + go-sqlite3, schema.sql migrations
	DriverGormSQLite = "gorm-sqlite" // GORM over SQLite
	DriverPostgres   = "postgres"    // GORM over PostgreSQL
	DriverMemory     = "memory"      // in-process, lost on exit
)

// Drivers lists the accepted values of Config.Driver.
var Drivers = []string{DriverSQLite, DriverGormSQLite, DriverPostgres, DriverMemory}

// Config holds server settings.
type Config struct {
	Addr     string `env:"ADDR" envDefault:":8080"`
	Driver   string `env:"DRIVER" envDefault:"sqlite"`
	Database string `env:"DATABASE" envDefault:"fusionsync.db"`

	// MaxGraphNodes bounds one cycle check. 0 means unlimited.
	MaxGraphNodes int `env:"MAX_GRAPH_NODES" envDefault:"0"`

	// MaxBOMLines bounds one bill of materials explosion. 0 means unlimited.
	MaxBOMLines int `env:"MAX_BOM_LINES" envDefault:"100000"`

	MaxPayloadBytes int64         `env:"MAX_PAYLOAD_BYTES" envDefault:"10485760"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads envFile into the process environment, then parses it. An empty
// envFile means ".env" in the working directory, which may be absent.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	} else {
		slog.Info("loading env file", "path", envFile)
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %q: %w", envFile, err)
		}
	}
	return parse(env.Options{Prefix: Prefix})
}

// FromMap parses settings from vars instead of the process environment.
// Keys carry the prefix.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Prefix: Prefix, Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field values that parsing cannot.
func (c *Config) Validate() error {
	if !isDriver(c.Driver) {
		return fmt.Errorf("invalid %sDRIVER %q: must be one of %v", Prefix, c.Driver, Drivers)
	}
	if c.Driver != DriverMemory && c.Database == "" {
		return fmt.Errorf("%sDATABASE is required for driver %q", Prefix, c.Driver)
	}
	if c.MaxGraphNodes < 0 {
		return fmt.Errorf("%sMAX_GRAPH_NODES must not be negative", Prefix)
	}
	if c.MaxBOMLines < 0 {
		return fmt.Errorf("%sMAX_BOM_LINES must not be negative", Prefix)
	}
	if c.MaxPayloadBytes <= 0 {
		return fmt.Errorf("%sMAX_PAYLOAD_BYTES must be positive", Prefix)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("invalid %sLOG_LEVEL %q: %w", Prefix, c.LogLevel, err)
	}
	return level, nil
}

func isDriver(name string) bool {
	for _, d := range Drivers {
		if d == name {
			return true
		}
	}
	return false
}
