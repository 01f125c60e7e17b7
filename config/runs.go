package config

import "time"

// RunsConfig contains run lease bounds and event publishing settings.
type RunsConfig struct {
	// MinLeaseDuration is the shortest lease a worker may request.
	MinLeaseDuration time.Duration `env:"MIN_RUN_LEASE_DURATION" envDefault:"30s"`

	// MaxLeaseDuration is the longest lease a worker may request.
	MaxLeaseDuration time.Duration `env:"MAX_RUN_LEASE_DURATION" envDefault:"120s"`

	// EventsEnabled turns on publishing of run lifecycle events to Redis.
	EventsEnabled bool `env:"RUN_EVENTS_ENABLED" envDefault:"false"`

	// EventsChannel is the Redis pub/sub channel for run lifecycle events.
	EventsChannel string `env:"RUN_EVENTS_CHANNEL" envDefault:"runplane:run-events"`
}

// Sanitize applies guardrails to run configuration values.
func (r *RunsConfig) Sanitize() {
	if r.MinLeaseDuration <= 0 {
		r.MinLeaseDuration = 30 * time.Second
	}
	if r.MaxLeaseDuration < r.MinLeaseDuration {
		r.MaxLeaseDuration = r.MinLeaseDuration
	}
	if r.EventsChannel == "" {
		r.EventsChannel = "runplane:run-events"
	}
}
