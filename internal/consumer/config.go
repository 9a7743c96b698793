package consumer

import (
	"fmt"
	"time"
)

// Config controls the consumer's concurrency and polling behavior.
type Config struct {
	// Concurrency is the maximum number of messages processed at once.
	Concurrency int

	// PollWait is the long-poll wait passed to the queue when receiving.
	PollWait time.Duration

	// IdleDelay is the pause between polling cycles. It applies whether
	// or not the previous cycle yielded messages, which keeps the loop
	// from hot-spinning against the queue.
	IdleDelay time.Duration

	// ProcessTimeout bounds the processing of a single message.
	ProcessTimeout time.Duration

	// ShutdownWait is how long Stop waits for in-flight messages to
	// finish before giving up.
	ShutdownWait time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:    5,
		PollWait:       5 * time.Second,
		IdleDelay:      1 * time.Second,
		ProcessTimeout: 10 * time.Minute,
		ShutdownWait:   30 * time.Second,
	}
}

// Validate checks the configuration for invalid values.
func (c Config) Validate() error {
	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}
	if c.PollWait < 0 {
		return fmt.Errorf("poll wait must not be negative, got %v", c.PollWait)
	}
	if c.IdleDelay <= 0 {
		return fmt.Errorf("idle delay must be positive, got %v", c.IdleDelay)
	}
	if c.ProcessTimeout <= 0 {
		return fmt.Errorf("process timeout must be positive, got %v", c.ProcessTimeout)
	}
	if c.ShutdownWait < 0 {
		return fmt.Errorf("shutdown wait must not be negative, got %v", c.ShutdownWait)
	}
	return nil
}
