package api

import (
	"fmt"
	"net"
	"time"
)

// Config holds HTTP server settings.
type Config struct {
	// Listen is the address the server binds. Default: "127.0.0.1:8080".
	Listen string `yaml:"listen"`

	// ReadTimeout and WriteTimeout bound a single request.
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Metrics exposes GET /metrics.
	Metrics bool `yaml:"metrics"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Listen:       "127.0.0.1:8080",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Metrics:      true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("api.listen: %w", err)
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 {
		return fmt.Errorf("api timeouts must not be negative")
	}
	return nil
}
