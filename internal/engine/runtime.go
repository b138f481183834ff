package engine

import (
	"context"
	"sync"
	"time"

	"github.com/atrium-works/pulse/internal/domain/activity"
	"github.com/atrium-works/pulse/internal/domain/presence"
	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Config carries the runtime's timer periods and idle thresholds.
type Config struct {
	DurationTickPeriod   time.Duration
	InactivityTickPeriod time.Duration
	HeartbeatInterval    time.Duration
	WarnAfter            time.Duration
	ExpireAfter          time.Duration
}

func (c Config) withDefaults() Config {
	if c.DurationTickPeriod <= 0 {
		c.DurationTickPeriod = time.Second
	}
	if c.InactivityTickPeriod <= 0 {
		c.InactivityTickPeriod = time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 15 * time.Second
	}
	return c
}

// Runtime is the per-login activity engine: it owns the activity clock, the
// open session handle and the presence handle for exactly one user, and
// runs the three independent tickers that keep them current. The tickers
// share a single context so the whole runtime is cancelled as a unit and
// nothing writes to a closed session or a stale user after logout.
type Runtime struct {
	userID    uuid.UUID
	sessionID uuid.UUID
	startAt   time.Time
	cfg       Config

	sessions  session.Service
	publisher *presence.Publisher
	watchdog  *activity.Watchdog
	flusher   *Flusher
	logger    *zap.Logger

	cancel context.CancelFunc
	ended  sync.Once

	mu        sync.Mutex
	suspended bool

	// onTerminate lets the registry drop the runtime when it ends itself
	// (inactivity expiry), not only on explicit logout. The registry gets
	// the runtime back so it can ignore a superseded one ending late.
	onTerminate func(rt *Runtime)

	// signOut invalidates the login's credentials. Only the inactivity
	// expiry path runs it; explicit logout and supersede leave the token
	// alone so a remounting client can start a fresh session with it.
	signOut func()
}

func newRuntime(
	userID uuid.UUID,
	cfg Config,
	sessions session.Service,
	publisher *presence.Publisher,
	flusher *Flusher,
	logger *zap.Logger,
	onTerminate func(*Runtime),
	signOut func(),
) *Runtime {
	return &Runtime{
		userID:      userID,
		cfg:         cfg.withDefaults(),
		sessions:    sessions,
		publisher:   publisher,
		flusher:     flusher,
		logger:      logger.With(zap.String("user_id", userID.String())),
		onTerminate: onTerminate,
		signOut:     signOut,
	}
}

// start opens the session, announces presence and launches the tickers.
func (r *Runtime) start(ctx context.Context, client datatypes.JSON) error {
	sessionID, err := r.sessions.StartSession(ctx, r.userID, client)
	if err != nil {
		return err
	}
	r.sessionID = sessionID
	r.startAt = time.Now().UTC()

	if err := r.publisher.Publish(ctx, r.userID, true); err != nil {
		r.logger.Warn("Initial presence publish failed", zap.Error(err))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel

	clock := activity.NewClock(time.Now(), r.cfg.WarnAfter, r.cfg.ExpireAfter)
	r.watchdog = activity.NewWatchdog(clock, r.cfg.InactivityTickPeriod, r.expire, r.logger)

	go r.durationLoop(runCtx)
	go r.heartbeatLoop(runCtx)
	go r.watchdog.Run(runCtx)

	r.logger.Info("Runtime started",
		zap.String("session_id", r.sessionID.String()))
	return nil
}

// durationLoop ticks the open session's duration once per period. Write
// failures are absorbed inside the session service and retried next tick.
func (r *Runtime) durationLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.DurationTickPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sessions.TickDuration(ctx, r.sessionID, r.startAt)
		case <-ctx.Done():
			return
		}
	}
}

// heartbeatLoop announces liveness while the client is active and visible.
// While suspended (tab hidden) the heartbeat is skipped rather than
// publishing a misleading online record.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if r.isSuspended() {
				continue
			}
			if err := r.publisher.Publish(ctx, r.userID, true); err != nil {
				r.logger.Warn("Heartbeat publish failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Signal registers a qualifying user-activity signal.
func (r *Runtime) Signal() {
	r.watchdog.Touch(time.Now())
}

// DismissWarning is equivalent to a manual activity signal.
func (r *Runtime) DismissWarning() {
	r.watchdog.DismissWarning(time.Now())
}

// Phase returns the current inactivity phase and expiry countdown.
func (r *Runtime) Phase() (activity.Phase, int64) {
	now := time.Now()
	return r.watchdog.Phase(now), r.watchdog.Countdown(now)
}

// SessionID exposes the open session's id; uuid.Nil when session creation
// failed soft and duration tracking is disabled for this login.
func (r *Runtime) SessionID() uuid.UUID {
	return r.sessionID
}

// Suspend publishes offline on a visibility loss. The session stays open
// and its tickers keep running; visibility is a liveness signal only.
func (r *Runtime) Suspend(ctx context.Context) {
	r.mu.Lock()
	r.suspended = true
	r.mu.Unlock()

	if err := r.publisher.Publish(ctx, r.userID, false); err != nil {
		r.logger.Warn("Suspend presence publish failed", zap.Error(err))
	}
}

// Resume publishes online again and resets the activity clock.
func (r *Runtime) Resume(ctx context.Context) {
	r.mu.Lock()
	r.suspended = false
	r.mu.Unlock()

	if err := r.publisher.Publish(ctx, r.userID, true); err != nil {
		r.logger.Warn("Resume presence publish failed", zap.Error(err))
	}
	r.watchdog.Touch(time.Now())
}

func (r *Runtime) isSuspended() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.suspended
}

// Logout ends the session on an explicit user logout. The closing write
// runs on the caller's context; timers stop immediately.
func (r *Runtime) Logout(ctx context.Context) error {
	var err error
	r.ended.Do(func() {
		r.stopTimers()
		err = r.sessions.EndSession(ctx, r.sessionID, r.startAt, session.EndReasonLogout)
		if pubErr := r.publisher.Publish(ctx, r.userID, false); pubErr != nil {
			r.logger.Warn("Logout presence publish failed", zap.Error(pubErr))
		}
		r.finish()
	})
	return err
}

// Beacon ends the session through the best-effort path on process or tab
// termination. It returns immediately; the closing write and the offline
// publish run detached with a bounded deadline because no further request
// from this client may ever arrive.
func (r *Runtime) Beacon() {
	r.ended.Do(func() {
		r.stopTimers()
		sessionID, startAt, userID := r.sessionID, r.startAt, r.userID
		r.flusher.Go("session-close", func(ctx context.Context) error {
			return r.sessions.EndSession(ctx, sessionID, startAt, session.EndReasonBeacon)
		})
		r.flusher.Go("presence-offline", func(ctx context.Context) error {
			return r.publisher.Publish(ctx, userID, false)
		})
		r.finish()
	})
}

// expire is the watchdog's callback: end the session and force sign-out
// without waiting for confirmation.
func (r *Runtime) expire() {
	r.ended.Do(func() {
		r.stopTimers()
		ctx, cancel := context.WithTimeout(context.Background(), DefaultFlushTimeout)
		defer cancel()

		if err := r.sessions.EndSession(ctx, r.sessionID, r.startAt, session.EndReasonInactivity); err != nil {
			r.logger.Error("Failed to close session on inactivity expiry", zap.Error(err))
		}
		if err := r.publisher.Publish(ctx, r.userID, false); err != nil {
			r.logger.Warn("Expiry presence publish failed", zap.Error(err))
		}
		if r.signOut != nil {
			r.signOut()
		}
		r.finish()
	})
}

func (r *Runtime) stopTimers() {
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runtime) finish() {
	r.logger.Info("Runtime terminated",
		zap.String("session_id", r.sessionID.String()))
	if r.onTerminate != nil {
		r.onTerminate(r)
	}
}
