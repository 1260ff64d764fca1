package scheduler

import (
	"time"
)

// Config controls sweep cadence and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// ReminderThresholds are days-before-trial-end at which a reminder is
	// sent, at most once per threshold per community.
	ReminderThresholds []int
	JobTimeout         time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Hour,
		BatchSize:          100,
		ReminderThresholds: []int{3, 1},
		JobTimeout:         5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if len(c.ReminderThresholds) == 0 {
		c.ReminderThresholds = defaults.ReminderThresholds
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
