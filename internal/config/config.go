// Package config loads the application configuration from a YAML file, an
// optional .env file and LESSONSYNC_* environment variables, in that order
// of increasing priority.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/abhisek/lessonsync/internal/api"
	"github.com/abhisek/lessonsync/internal/calendar"
	"github.com/abhisek/lessonsync/internal/notify"
	"github.com/abhisek/lessonsync/internal/reconcile"
	"github.com/abhisek/lessonsync/internal/store"
	"github.com/abhisek/lessonsync/internal/telemetry"
)

// Config is the top-level application configuration.
type Config struct {
	// Instructor scopes the lesson store. Default: "default".
	Instructor string `yaml:"instructor"`

	// Timezone is the IANA zone lessons are displayed in. Default: "Local".
	Timezone string `yaml:"timezone"`

	Store     store.Config      `yaml:"store"`
	Calendar  calendar.Config   `yaml:"calendar"`
	Sync      reconcile.Config  `yaml:"sync"`
	Notify    notify.NATSConfig `yaml:"notify"`
	Telemetry telemetry.Config  `yaml:"telemetry"`
	API       api.Config        `yaml:"api"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Instructor: "default",
		Timezone:   "Local",
		Store:      store.Config{Driver: store.DriverSQLite},
		Calendar:   calendar.DefaultConfig(),
		Sync:       reconcile.DefaultConfig(),
		Notify:     notify.NATSConfig{Subject: "lessonsync"},
		Telemetry:  telemetry.DefaultConfig(),
		API:        api.DefaultConfig(),
	}
}

// DefaultPath resolves the config file path in priority order:
// 1. LESSONSYNC_CONFIG environment variable
// 2. $XDG_CONFIG_HOME/lessonsync/config.yaml
// 3. ~/.config/lessonsync/config.yaml
func DefaultPath() (string, error) {
	if p := os.Getenv("LESSONSYNC_CONFIG"); p != "" {
		return p, nil
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "lessonsync", "config.yaml"), nil
}

// Load reads the YAML file at path on top of the defaults, then applies
// .env and environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	cfg.Normalize()
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// ApplyEnv overrides cfg with LESSONSYNC_* environment variables.
func ApplyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	str("LESSONSYNC_INSTRUCTOR", &cfg.Instructor)
	str("LESSONSYNC_TIMEZONE", &cfg.Timezone)

	if v := os.Getenv("LESSONSYNC_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = store.Driver(v)
	}
	str("LESSONSYNC_STORE_DSN", &cfg.Store.DSN)

	str("LESSONSYNC_CALENDAR_PROVIDER", &cfg.Calendar.Provider)
	str("LESSONSYNC_CALENDAR_ACCOUNT", &cfg.Calendar.Account)
	str("LESSONSYNC_GOOGLE_CLIENT_ID", &cfg.Calendar.Google.ClientID)
	str("LESSONSYNC_GOOGLE_CLIENT_SECRET", &cfg.Calendar.Google.ClientSecret)
	str("LESSONSYNC_GOOGLE_CALENDAR_ID", &cfg.Calendar.Google.CalendarID)
	str("LESSONSYNC_CALENDAR_URL", &cfg.Calendar.HTTP.BaseURL)
	str("LESSONSYNC_ICS_PATH", &cfg.Calendar.ICS.Path)
	if v := os.Getenv("LESSONSYNC_CALENDAR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LESSONSYNC_CALENDAR_TIMEOUT: %w", err)
		}
		cfg.Calendar.Timeout = d
	}

	str("LESSONSYNC_SYNC_SCHEDULE", &cfg.Sync.Schedule)
	if v := os.Getenv("LESSONSYNC_CONFLICT_POLICY"); v != "" {
		cfg.Sync.ConflictPolicy = reconcile.ConflictPolicy(v)
	}

	str("LESSONSYNC_NATS_URL", &cfg.Notify.URL)

	str("LESSONSYNC_LOG_LEVEL", &cfg.Telemetry.Level)
	str("LESSONSYNC_LOG_FORMAT", &cfg.Telemetry.Format)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	str("LESSONSYNC_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)

	str("LESSONSYNC_LISTEN", &cfg.API.Listen)
	return nil
}

// Normalize fills in values that depend on other settings.
func (c *Config) Normalize() {
	if c.Instructor == "" {
		c.Instructor = "default"
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = store.DriverSQLite
	}
	if c.Calendar.Provider == "ics" && c.Calendar.ICS.Path == "" {
		if p, err := DefaultICSPath(); err == nil {
			c.Calendar.ICS.Path = p
		}
	}
	c.Sync.Conferencing = c.Calendar.Conferencing
}

// DefaultICSPath is the calendar file used by the ics provider when none is
// configured.
func DefaultICSPath() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "lessonsync", "calendar.ics"), nil
}

// Validate checks every section.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	switch c.Store.Driver {
	case store.DriverSQLite:
	case store.DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("store.driver: unknown driver %q", c.Store.Driver)
	}
	for _, v := range []interface{ Validate() error }{c.Calendar, c.Sync, c.Telemetry, c.API} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Location returns the display timezone. Invalid zones fall back to Local.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
