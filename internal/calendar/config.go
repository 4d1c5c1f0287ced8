package calendar

import (
	"fmt"
	"time"
)

// Config holds all calendar provider configuration.
type Config struct {
	// Provider selects the backend.
	// Values: "google", "http", "ics", "mock"
	Provider string `yaml:"provider"`

	// Account keys the persisted token. Defaults to "<provider>:default".
	Account string `yaml:"account"`

	// Conferencing asks the provider to attach a meeting link to new events.
	Conferencing bool `yaml:"conferencing"`

	Google GoogleConfig `yaml:"google"`
	HTTP   HTTPConfig   `yaml:"http"`
	ICS    ICSConfig    `yaml:"ics"`
	Retry  RetryConfig  `yaml:"retry"`

	// Timeout bounds a single client call, including retries. Default: 15s.
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:     "ics",
		Conferencing: true,
		Google: GoogleConfig{
			CalendarID:  "primary",
			RedirectURL: "urn:ietf:wg:oauth:2.0:oob",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 15 * time.Second,
	}
}

// AccountKey returns the key the session token is stored under.
func (c Config) AccountKey() string {
	if c.Account != "" {
		return c.Account
	}
	return c.Provider + ":default"
}

// NeedsOAuth reports whether the backend requires a user token.
func (c Config) NeedsOAuth() bool {
	return c.Provider == "google" || c.Provider == "http"
}

// Validate checks that the selected provider has its required settings.
func (c Config) Validate() error {
	switch c.Provider {
	case "google":
		if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
			return fmt.Errorf("calendar.google.client_id and client_secret are required for the google provider")
		}
	case "http":
		if c.HTTP.BaseURL == "" {
			return fmt.Errorf("calendar.http.base_url is required for the http provider")
		}
	case "ics":
		if c.ICS.Path == "" {
			return fmt.Errorf("calendar.ics.path is required for the ics provider")
		}
	case "mock":
		// No settings needed.
	default:
		return fmt.Errorf("unknown calendar provider: %q", c.Provider)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("calendar.timeout must not be negative")
	}
	return nil
}
