package reconcile

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ConflictPolicy decides what happens when the remote event's window was
// changed outside this system.
type ConflictPolicy string

const (
	// PolicyLocalWins records the conflict and pushes the lesson's window.
	PolicyLocalWins ConflictPolicy = "local-wins"
	// PolicySurfaceOnly records the conflict and leaves both sides as they are.
	PolicySurfaceOnly ConflictPolicy = "surface-only"
)

// Config holds reconciler and background sync settings.
type Config struct {
	ConflictPolicy ConflictPolicy `yaml:"conflict_policy"`

	// Schedule is the cron spec of the background pass.
	Schedule string `yaml:"schedule"`

	// Lookback and Horizon bound the window checked by the background pass,
	// relative to now.
	Lookback time.Duration `yaml:"lookback"`
	Horizon  time.Duration `yaml:"horizon"`

	// Conferencing asks the provider for a meeting link on create. Copied
	// from the calendar configuration.
	Conferencing bool `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		ConflictPolicy: PolicyLocalWins,
		Schedule:       "*/15 * * * *",
		Lookback:       24 * time.Hour,
		Horizon:        30 * 24 * time.Hour,
		Conferencing:   true,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	switch c.ConflictPolicy {
	case PolicyLocalWins, PolicySurfaceOnly:
	default:
		return fmt.Errorf("sync.conflict_policy: unknown policy %q", c.ConflictPolicy)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("sync.schedule: %w", err)
	}
	if c.Lookback < 0 || c.Horizon <= 0 {
		return fmt.Errorf("sync.lookback must be >= 0 and sync.horizon > 0")
	}
	return nil
}
