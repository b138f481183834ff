package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockPhase(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		idle     time.Duration
		expected Phase
	}{
		{
			name:     "No idle time is active",
			idle:     0,
			expected: PhaseActive,
		},
		{
			name:     "Just under the warning threshold is active",
			idle:     299 * time.Second,
			expected: PhaseActive,
		},
		{
			name:     "At the warning threshold is warning",
			idle:     300 * time.Second,
			expected: PhaseWarning,
		},
		{
			name:     "Just under the expiry threshold is warning",
			idle:     599 * time.Second,
			expected: PhaseWarning,
		},
		{
			name:     "At the expiry threshold is expired",
			idle:     600 * time.Second,
			expected: PhaseExpired,
		},
		{
			name:     "Long after expiry stays expired",
			idle:     2 * time.Hour,
			expected: PhaseExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(base, 0, 0)
			assert.Equal(t, tt.expected, clock.Phase(base.Add(tt.idle)))
		})
	}
}

func TestClockCountdown(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		idle     time.Duration
		expected int64
	}{
		{
			name:     "Full budget when fresh",
			idle:     0,
			expected: 600,
		},
		{
			name:     "Counts down through the warning window",
			idle:     450 * time.Second,
			expected: 150,
		},
		{
			name:     "Zero at expiry",
			idle:     600 * time.Second,
			expected: 0,
		},
		{
			name:     "Never negative after expiry",
			idle:     900 * time.Second,
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewClock(base, 0, 0)
			assert.Equal(t, tt.expected, clock.Countdown(base.Add(tt.idle)))
		})
	}
}

func TestClockTouchResetsIdle(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)

	// Deep into the warning window, a signal returns the clock to active.
	warned := base.Add(400 * time.Second)
	assert.Equal(t, PhaseWarning, clock.Phase(warned))

	clock.Touch(warned)
	assert.Equal(t, PhaseActive, clock.Phase(warned))
	assert.Equal(t, time.Duration(0), clock.Idle(warned))
}

func TestClockTouchIsMonotonic(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)

	later := base.Add(100 * time.Second)
	clock.Touch(later)

	// An out-of-order signal must not move last activity backwards.
	clock.Touch(base.Add(50 * time.Second))
	assert.Equal(t, time.Duration(0), clock.Idle(later))
}
