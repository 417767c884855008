package scheduler

import (
	"errors"
	"time"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

// Config controls sweep cadence and per-job deadlines.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration

	// EnabledJobs restricts the sweep to the named jobs. Empty means
	// every job runs (monolith mode).
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Minute,
		JobTimeout:  30 * time.Second,
	}
}

func ProvideConfig() Config {
	return DefaultConfig()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
