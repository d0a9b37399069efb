package underwriter

import (
	"fmt"
	"time"
)

// Config controls reservation lifetime and rollback behavior.
type Config struct {
	// TTL is how long reserved keys live in the store before Confirm must
	// land. Zero inserts keys without expiry.
	TTL time.Duration `yaml:"ttl"`

	// RollbackTimeout bounds each compensating remove. Rollback runs even if
	// the caller's context is already done.
	RollbackTimeout time.Duration `yaml:"rollbackTimeout"`
}

// DefaultConfig returns the default reservation settings.
func DefaultConfig() Config {
	return Config{
		TTL:             5 * time.Second,
		RollbackTimeout: 5 * time.Second,
	}
}

// Validate ensures config values are safe.
func (c Config) Validate() error {
	if c.TTL < 0 {
		return fmt.Errorf("TTL cannot be negative")
	}
	if c.TTL > 0 && c.TTL < time.Millisecond {
		return fmt.Errorf("TTL must be at least 1ms")
	}
	if c.RollbackTimeout <= 0 {
		return fmt.Errorf("RollbackTimeout must be >0")
	}
	return nil
}
