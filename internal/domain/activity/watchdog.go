package activity

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var forcedLogouts = promauto.NewCounter(prometheus.CounterOpts{
	Name: "pulse_forced_logouts_total",
	Help: "Total number of logouts forced by the inactivity watchdog",
})

// Watchdog evaluates the activity clock on a fixed tick and drives the
// Active -> Warning -> Expired transitions. On entry to Expired it invokes
// the expiry callback exactly once; the callback is expected to end the
// session and force a sign-out, and must not block for long.
//
// The watchdog deliberately runs on its own ticker, separate from the
// duration tick: the duration tick is best-effort persistence while this
// tick is authorization-affecting.
type Watchdog struct {
	clock    *Clock
	period   time.Duration
	onExpire func()
	logger   *zap.Logger

	mu      sync.Mutex
	expired bool
}

// NewWatchdog creates a watchdog over the given clock. A period of zero
// defaults to one second.
func NewWatchdog(clock *Clock, period time.Duration, onExpire func(), logger *zap.Logger) *Watchdog {
	if period <= 0 {
		period = time.Second
	}
	return &Watchdog{
		clock:    clock,
		period:   period,
		onExpire: onExpire,
		logger:   logger,
	}
}

// Run evaluates the clock until the context is cancelled. It is intended to
// be launched as a goroutine owned by the engine runtime.
func (w *Watchdog) Run(ctx context.Context) {
	ticker := time.NewTicker(w.period)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			w.evaluate(now)
		case <-ctx.Done():
			return
		}
	}
}

// evaluate performs one tick. Exported behavior is covered through Touch
// and DismissWarning; the latch guarantees one forced logout per expiry.
func (w *Watchdog) evaluate(now time.Time) {
	phase := w.clock.Phase(now)

	w.mu.Lock()
	switch phase {
	case PhaseExpired:
		if w.expired {
			w.mu.Unlock()
			return
		}
		w.expired = true
		w.mu.Unlock()

		forcedLogouts.Inc()
		w.logger.Info("Inactivity expired, forcing logout",
			zap.Duration("idle", w.clock.Idle(now)))
		if w.onExpire != nil {
			w.onExpire()
		}
	default:
		w.expired = false
		w.mu.Unlock()
	}
}

// Touch forwards an activity signal to the clock. Any signal while the
// clock is in the warning phase returns it to active and clears the
// surfaced countdown.
func (w *Watchdog) Touch(now time.Time) {
	w.clock.Touch(now)
	w.mu.Lock()
	w.expired = false
	w.mu.Unlock()
}

// DismissWarning is equivalent to a manual activity signal.
func (w *Watchdog) DismissWarning(now time.Time) {
	w.Touch(now)
}

// Phase reports the current inactivity phase.
func (w *Watchdog) Phase(now time.Time) Phase {
	return w.clock.Phase(now)
}

// Countdown reports the seconds left until forced expiry.
func (w *Watchdog) Countdown(now time.Time) int64 {
	return w.clock.Countdown(now)
}
