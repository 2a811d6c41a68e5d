package config

import "time"

// TimeoutConfig holds the HTTP server timeouts.
type TimeoutConfig struct {
	// Request bounds a single handler. Default: 60s
	Request time.Duration

	// Read bounds reading a request body. Default: 15s
	Read time.Duration

	// Idle is how long keep-alive connections wait between requests.
	// Default: 120s
	Idle time.Duration

	// Shutdown is how long graceful shutdown waits for in-flight requests.
	// Default: 30s
	Shutdown time.Duration
}

// DefaultTimeoutConfig returns the default timeout configuration
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		Request:  60 * time.Second,
		Read:     15 * time.Second,
		Idle:     120 * time.Second,
		Shutdown: 30 * time.Second,
	}
}
