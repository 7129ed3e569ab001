package scheduler

import (
	"time"

	"github.com/smallbiznis/quoteflow/internal/config"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// ReplayAfter leaves fresh events to the webhook path and its redeliveries.
	ReplayAfter  time.Duration
	ReplayWindow time.Duration
	JobTimeout   time.Duration
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		BatchSize:    50,
		ReplayAfter:  5 * time.Minute,
		ReplayWindow: 72 * time.Hour,
		JobTimeout:   30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Scheduler.RunInterval,
		BatchSize:    cfg.Scheduler.BatchSize,
		ReplayAfter:  cfg.Scheduler.ReplayAfter,
		ReplayWindow: cfg.Scheduler.ReplayWindow,
	}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.ReplayAfter <= 0 {
		c.ReplayAfter = defaults.ReplayAfter
	}
	if c.ReplayWindow <= c.ReplayAfter {
		c.ReplayWindow = c.ReplayAfter + defaults.ReplayWindow
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
