package activity

import (
	"sync"
	"time"
)

// Phase is the inactivity state derived from time since last activity.
type Phase string

const (
	PhaseActive  Phase = "active"
	PhaseWarning Phase = "warning"
	PhaseExpired Phase = "expired"
)

// DefaultWarnAfter and DefaultExpireAfter are the idle thresholds used when
// the configuration leaves them unset. Both count from the same
// last-activity timestamp.
const (
	DefaultWarnAfter   = 300 * time.Second
	DefaultExpireAfter = 600 * time.Second
)

// Clock tracks time since the last qualifying user activity and derives the
// inactivity phase from it. It is shared between the watchdog ticker and the
// HTTP signal handlers, hence the mutex.
type Clock struct {
	mu           sync.Mutex
	lastActivity time.Time
	warnAfter    time.Duration
	expireAfter  time.Duration
}

// NewClock creates a clock whose idle time starts counting from now.
func NewClock(now time.Time, warnAfter, expireAfter time.Duration) *Clock {
	if warnAfter <= 0 {
		warnAfter = DefaultWarnAfter
	}
	if expireAfter <= 0 {
		expireAfter = DefaultExpireAfter
	}
	return &Clock{
		lastActivity: now,
		warnAfter:    warnAfter,
		expireAfter:  expireAfter,
	}
}

// Touch registers a qualifying activity signal (pointer, key, scroll,
// touch) and resets the idle time.
func (c *Clock) Touch(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.After(c.lastActivity) {
		c.lastActivity = now
	}
}

// Idle returns the time elapsed since the last activity signal.
func (c *Clock) Idle(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	idle := now.Sub(c.lastActivity)
	if idle < 0 {
		return 0
	}
	return idle
}

// Phase derives the inactivity phase from the current idle time.
func (c *Clock) Phase(now time.Time) Phase {
	idle := c.Idle(now)
	switch {
	case idle >= c.expireAfter:
		return PhaseExpired
	case idle >= c.warnAfter:
		return PhaseWarning
	default:
		return PhaseActive
	}
}

// Countdown returns the whole seconds remaining until forced expiry. It is
// only meaningful while the clock is in the warning phase; in the active
// phase it reports the full remaining budget and at expiry it reports zero.
func (c *Clock) Countdown(now time.Time) int64 {
	idle := c.Idle(now)
	remaining := c.expireAfter - idle
	if remaining < 0 {
		return 0
	}
	return int64(remaining.Seconds())
}
