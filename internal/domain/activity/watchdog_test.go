package activity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWatchdogFiresOncePerExpiry(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)

	expiries := 0
	w := NewWatchdog(clock, time.Second, func() { expiries++ }, zap.NewNop())

	// Repeated ticks past the threshold force exactly one logout.
	expired := base.Add(601 * time.Second)
	w.evaluate(expired)
	w.evaluate(expired.Add(time.Second))
	w.evaluate(expired.Add(2 * time.Second))
	assert.Equal(t, 1, expiries)
}

func TestWatchdogRearmsAfterActivity(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)

	expiries := 0
	w := NewWatchdog(clock, time.Second, func() { expiries++ }, zap.NewNop())

	first := base.Add(601 * time.Second)
	w.evaluate(first)
	assert.Equal(t, 1, expiries)

	// Fresh activity resets the latch, so a later expiry fires again.
	w.Touch(first.Add(time.Second))
	second := first.Add(700 * time.Second)
	w.evaluate(second)
	assert.Equal(t, 2, expiries)
}

func TestWatchdogDoesNotFireBeforeExpiry(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)

	expiries := 0
	w := NewWatchdog(clock, time.Second, func() { expiries++ }, zap.NewNop())

	w.evaluate(base.Add(299 * time.Second))
	assert.Equal(t, PhaseActive, w.Phase(base.Add(299*time.Second)))

	w.evaluate(base.Add(599 * time.Second))
	assert.Equal(t, PhaseWarning, w.Phase(base.Add(599*time.Second)))
	assert.Equal(t, 0, expiries)
}

func TestWatchdogDismissWarning(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := NewClock(base, 0, 0)
	w := NewWatchdog(clock, time.Second, nil, zap.NewNop())

	warned := base.Add(400 * time.Second)
	assert.Equal(t, PhaseWarning, w.Phase(warned))

	w.DismissWarning(warned)
	assert.Equal(t, PhaseActive, w.Phase(warned))
	assert.Equal(t, int64(600), w.Countdown(warned))
}
