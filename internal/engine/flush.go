package engine

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var beaconFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pulse_beacon_flushes_total",
	Help: "Total number of best-effort termination flushes",
}, []string{"outcome"})

// DefaultFlushTimeout bounds how long a best-effort flush may take. The
// browser analogue (sendBeacon) survives page unload; here the process
// lives on, so a detached goroutine with a short deadline is enough.
const DefaultFlushTimeout = 2 * time.Second

// Flusher runs fire-and-forget writes that must not block the caller, used
// for the termination-time session close. Callers get no result; failures
// are logged and counted only.
type Flusher struct {
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewFlusher(timeout time.Duration, logger *zap.Logger) *Flusher {
	if timeout <= 0 {
		timeout = DefaultFlushTimeout
	}
	return &Flusher{
		timeout: timeout,
		logger:  logger,
	}
}

// Go runs fn on a detached goroutine with a bounded deadline and returns
// immediately.
func (f *Flusher) Go(name string, fn func(ctx context.Context) error) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			beaconFlushes.WithLabelValues("error").Inc()
			f.logger.Warn("Best-effort flush failed",
				zap.String("flush", name),
				zap.Error(err))
			return
		}
		beaconFlushes.WithLabelValues("ok").Inc()
	}()
}

// Drain waits for in-flight flushes to finish, up to the context deadline.
// Called during graceful shutdown so final session closes are not lost.
func (f *Flusher) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		f.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
