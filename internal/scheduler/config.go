package scheduler

import (
	"time"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval        time.Duration
	BatchSize          int
	MaxChargeBatchSize int
	MaxExpiryBatchSize int
	JobTimeout         time.Duration
	ExpiryJobTimeout   time.Duration
	// EnabledJobs limits the loop to named jobs. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:        time.Minute,
		BatchSize:          50,
		MaxChargeBatchSize: 100,
		MaxExpiryBatchSize: 25,
		JobTimeout:         30 * time.Second,
		ExpiryJobTimeout:   5 * time.Minute,
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
	if c.MaxChargeBatchSize <= 0 {
		c.MaxChargeBatchSize = defaults.MaxChargeBatchSize
	}
	if c.MaxExpiryBatchSize <= 0 {
		c.MaxExpiryBatchSize = defaults.MaxExpiryBatchSize
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.ExpiryJobTimeout <= 0 {
		c.ExpiryJobTimeout = defaults.ExpiryJobTimeout
	}
	return c
}
