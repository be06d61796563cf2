// Package worker keeps the station cache warm in the background.
package worker

import (
	"time"
)

// Refresh triggers, used as the metrics label of a run.
const (
	TriggerStartup  = "startup"
	TriggerSchedule = "schedule"
	TriggerPubSub   = "pubsub"
)

// RefreshConfig holds configuration for the cache refresh job.
type RefreshConfig struct {
	// StationIDs limits scheduled runs to these stations.
	// If empty, every registered station is refreshed.
	StationIDs []string

	// Interval between scheduled runs. Zero disables the schedule.
	Interval time.Duration

	// Concurrency is the number of stations refreshed at once.
	// Default: 4
	Concurrency int

	// Timeout bounds the refresh of one station.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Interval:    0,
		Concurrency: 4,
		Timeout:     30 * time.Second,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Interval < 0 {
		c.Interval = 0
	}
	return c
}
