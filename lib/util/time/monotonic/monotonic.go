package monotonic

import (
	"sync"
	"time"
)

// Clock provides monotonic-safe time with an NTP offset applied.
type Clock struct {
	// offset is added to time.Now() to account for NTP synchronization.
	// Protected by mu.
	offset time.Duration
	mu     sync.RWMutex
}

// NewClock creates a new monotonic Clock with zero offset.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current time adjusted by any NTP offset.
func (c *Clock) Now() time.Time {
	c.mu.RLock()
	offset := c.offset
	c.mu.RUnlock()
	return time.Now().Add(offset)
}

// SetOffset updates the NTP time offset.
func (c *Clock) SetOffset(offset time.Duration) {
	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()
}

// Offset returns the current NTP time offset.
func (c *Clock) Offset() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offset
}

// IsExpiredAt reports whether start+lifetime has passed at now.
func IsExpiredAt(start, now time.Time, lifetime time.Duration) bool {
	return now.Sub(start) >= lifetime
}
