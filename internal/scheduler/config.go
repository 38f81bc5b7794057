package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/bursar/internal/config"
)

// Config controls scheduler intervals and batch sizes.
type Config struct {
	RunInterval   time.Duration
	InboxInterval time.Duration
	JobTimeout    time.Duration
	BatchSize     int
	InboxBatch    int
	DriftLimit    int
	// EnabledJobs restricts which jobs run. Empty enables all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:   time.Minute,
		InboxInterval: 5 * time.Second,
		JobTimeout:    30 * time.Second,
		BatchSize:     200,
		InboxBatch:    50,
		DriftLimit:    100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.InboxInterval <= 0 {
		c.InboxInterval = defaults.InboxInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.InboxBatch <= 0 {
		c.InboxBatch = defaults.InboxBatch
	}
	if c.DriftLimit <= 0 {
		c.DriftLimit = defaults.DriftLimit
	}
	return c
}

// ProvideConfig derives scheduler settings from the application config.
func ProvideConfig(cfg config.Config) Config {
	out := Config{
		InboxInterval: time.Duration(cfg.MobileMoney.InboxPollSeconds) * time.Second,
		InboxBatch:    cfg.MobileMoney.InboxBatchSize,
	}
	if raw := strings.TrimSpace(cfg.SchedulerJobs); raw != "" {
		for _, job := range strings.Split(raw, ",") {
			if job = strings.TrimSpace(job); job != "" {
				out.EnabledJobs = append(out.EnabledJobs, job)
			}
		}
	}
	return out.withDefaults()
}
