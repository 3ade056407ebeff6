// Package config loads the engine tunables from the environment and the
// scenario registry from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EngineConfig holds the session engine tunables. All values come from the
// environment with the documented defaults.
type EngineConfig struct {
	// MaxRetries is the number of orchestrator re-invocations after a
	// recoverable failure before the session fails.
	MaxRetries int

	// RunTimeout is the wall-clock budget for a single session run.
	RunTimeout time.Duration

	// SubscriberQueueCap bounds each subscriber's event queue. A subscriber
	// whose queue overflows is evicted rather than blocking the worker.
	SubscriberQueueCap int

	// KeepaliveInterval is the idle gap after which the SSE gateway emits a
	// keepalive event.
	KeepaliveInterval time.Duration

	// QueryTruncateChars and ResponseTruncateChars cap the step payload
	// fields before emission.
	QueryTruncateChars    int
	ResponseTruncateChars int

	// MaxLiveSessions caps the in-memory session index; create fails with
	// resource-exhausted once reached.
	MaxLiveSessions int

	// RetireAfter is how long a terminal session stays in the live index
	// before the cleanup service flushes and retires it.
	RetireAfter time.Duration

	// SessionRetentionDays bounds how long persisted sessions are kept.
	SessionRetentionDays int

	// CleanupInterval is the cleanup service loop period.
	CleanupInterval time.Duration
}

// Engine tunable defaults.
const (
	DefaultMaxRetries            = 3
	DefaultRunTimeout            = 600 * time.Second
	DefaultSubscriberQueueCap    = 256
	DefaultKeepaliveInterval     = 15 * time.Second
	DefaultQueryTruncateChars    = 1000
	DefaultResponseTruncateChars = 5000
	DefaultMaxLiveSessions       = 200
	DefaultRetireAfter           = 300 * time.Second
	DefaultSessionRetentionDays  = 30
	DefaultCleanupInterval       = 10 * time.Minute
)

// DefaultEngineConfig returns the documented defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		MaxRetries:            DefaultMaxRetries,
		RunTimeout:            DefaultRunTimeout,
		SubscriberQueueCap:    DefaultSubscriberQueueCap,
		KeepaliveInterval:     DefaultKeepaliveInterval,
		QueryTruncateChars:    DefaultQueryTruncateChars,
		ResponseTruncateChars: DefaultResponseTruncateChars,
		MaxLiveSessions:       DefaultMaxLiveSessions,
		RetireAfter:           DefaultRetireAfter,
		SessionRetentionDays:  DefaultSessionRetentionDays,
		CleanupInterval:       DefaultCleanupInterval,
	}
}

// LoadEngineConfigFromEnv reads the tunables from the environment, falling
// back to defaults for unset variables. Malformed values are an error, not
// a silent fallback.
func LoadEngineConfigFromEnv() (EngineConfig, error) {
	cfg := DefaultEngineConfig()

	var err error
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", cfg.MaxRetries); err != nil {
		return cfg, err
	}
	if cfg.RunTimeout, err = envSeconds("RUN_TIMEOUT_S", cfg.RunTimeout); err != nil {
		return cfg, err
	}
	if cfg.SubscriberQueueCap, err = envInt("SUBSCRIBER_QUEUE_CAP", cfg.SubscriberQueueCap); err != nil {
		return cfg, err
	}
	if cfg.KeepaliveInterval, err = envSeconds("KEEPALIVE_INTERVAL_S", cfg.KeepaliveInterval); err != nil {
		return cfg, err
	}
	if cfg.QueryTruncateChars, err = envInt("QUERY_TRUNCATE_CHARS", cfg.QueryTruncateChars); err != nil {
		return cfg, err
	}
	if cfg.ResponseTruncateChars, err = envInt("RESPONSE_TRUNCATE_CHARS", cfg.ResponseTruncateChars); err != nil {
		return cfg, err
	}
	if cfg.MaxLiveSessions, err = envInt("MAX_LIVE_SESSIONS", cfg.MaxLiveSessions); err != nil {
		return cfg, err
	}
	if cfg.RetireAfter, err = envSeconds("RETIRE_AFTER_S", cfg.RetireAfter); err != nil {
		return cfg, err
	}
	if cfg.SessionRetentionDays, err = envInt("SESSION_RETENTION_DAYS", cfg.SessionRetentionDays); err != nil {
		return cfg, err
	}
	if cfg.CleanupInterval, err = envSeconds("CLEANUP_INTERVAL_S", cfg.CleanupInterval); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// Validate rejects configurations the engine cannot run with.
func (c EngineConfig) Validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.MaxRetries)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT_S must be positive, got %s", c.RunTimeout)
	}
	if c.SubscriberQueueCap < 1 {
		return fmt.Errorf("SUBSCRIBER_QUEUE_CAP must be >= 1, got %d", c.SubscriberQueueCap)
	}
	if c.MaxLiveSessions < 1 {
		return fmt.Errorf("MAX_LIVE_SESSIONS must be >= 1, got %d", c.MaxLiveSessions)
	}
	return nil
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer", key, raw)
	}
	return v, nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q is not an integer number of seconds", key, raw)
	}
	return time.Duration(v) * time.Second, nil
}
