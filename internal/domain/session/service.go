package session

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-works/pulse/internal/domain/events"
	"github.com/atrium-works/pulse/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_sessions_opened_total",
		Help: "Total number of activity sessions opened",
	})
	sessionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulse_sessions_closed_total",
		Help: "Total number of activity sessions closed",
	}, []string{"reason"})
	durationTickFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulse_duration_tick_failures_total",
		Help: "Total number of failed duration tick writes",
	})
)

// startRetries bounds the retry loop on session creation. The original
// client gave up after a single attempt and silently lost the whole login's
// duration tracking; a short bounded retry closes most of that gap without
// blocking login for long.
const (
	startRetries    = 3
	startRetryDelay = 500 * time.Millisecond
)

// EndReason describes why a session was closed, for logs and metrics.
type EndReason string

const (
	EndReasonLogout     EndReason = "logout"
	EndReasonInactivity EndReason = "inactivity"
	EndReasonBeacon     EndReason = "beacon"
	EndReasonSuperseded EndReason = "superseded"
)

// Service owns the open/closed state of one session per logged-in user.
type Service interface {
	// StartSession creates an open session with start_at = now and a zero
	// duration. It fails soft: after the retry budget is exhausted the
	// error is logged and uuid.Nil is returned, which turns subsequent
	// duration ticks into no-ops.
	StartSession(ctx context.Context, userID uuid.UUID, client datatypes.JSON) (uuid.UUID, error)

	// TickDuration writes floor(now - startAt) seconds to the open session
	// without touching end_at. Errors are absorbed; the next tick retries.
	TickDuration(ctx context.Context, sessionID uuid.UUID, startAt time.Time)

	// EndSession computes the final duration, sets end_at and writes once.
	EndSession(ctx context.Context, sessionID uuid.UUID, startAt time.Time, reason EndReason) error

	// CurrentDuration returns the live elapsed seconds of the user's open
	// session, or ErrSessionNotFound when none is open.
	CurrentDuration(ctx context.Context, userID uuid.UUID) (int64, error)

	ListSessionsSince(ctx context.Context, filter SessionFilter) ([]Session, error)
	CloseOpenForUser(ctx context.Context, userID uuid.UUID) error
}

type service struct {
	repo   Repository
	redis  *cache.RedisClient
	logger *zap.Logger
	now    func() time.Time
}

func NewService(repo Repository, redis *cache.RedisClient, logger *zap.Logger) Service {
	return &service{
		repo:   repo,
		redis:  redis,
		logger: logger,
		now:    time.Now,
	}
}

func (s *service) StartSession(ctx context.Context, userID uuid.UUID, client datatypes.JSON) (uuid.UUID, error) {
	sess := &Session{
		ID:      uuid.New(),
		UserID:  userID,
		StartAt: s.now().UTC(),
		Client:  client,
	}

	var err error
	for attempt := 1; attempt <= startRetries; attempt++ {
		err = s.repo.Insert(ctx, sess)
		if err == nil {
			break
		}
		s.logger.Warn("Session insert failed",
			zap.String("user_id", userID.String()),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < startRetries {
			select {
			case <-time.After(startRetryDelay):
			case <-ctx.Done():
				return uuid.Nil, ctx.Err()
			}
		}
	}
	if err != nil {
		// Soft failure: the login proceeds without duration tracking.
		s.logger.Error("Giving up on session creation, duration tracking disabled for this login",
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return uuid.Nil, nil
	}

	sessionsOpened.Inc()
	s.publishEvent(ctx, events.EventTypeSessionStarted, userID, sess.ID)
	return sess.ID, nil
}

func (s *service) TickDuration(ctx context.Context, sessionID uuid.UUID, startAt time.Time) {
	if sessionID == uuid.Nil {
		return
	}

	elapsed := int64(s.now().Sub(startAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	if err := s.repo.UpdateDuration(ctx, sessionID, elapsed); err != nil {
		if !errors.Is(err, ErrSessionClosed) {
			durationTickFailures.Inc()
			s.logger.Warn("Duration tick write failed",
				zap.String("session_id", sessionID.String()),
				zap.Error(err))
		}
	}
}

func (s *service) EndSession(ctx context.Context, sessionID uuid.UUID, startAt time.Time, reason EndReason) error {
	if sessionID == uuid.Nil {
		return nil
	}

	endAt := s.now().UTC()
	elapsed := int64(endAt.Sub(startAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}

	if err := s.repo.Close(ctx, sessionID, endAt, elapsed); err != nil {
		if errors.Is(err, ErrSessionClosed) {
			// Already closed, e.g. a beacon raced a normal logout.
			return nil
		}
		s.logger.Error("Session close write failed",
			zap.String("session_id", sessionID.String()),
			zap.String("reason", string(reason)),
			zap.Error(err))
		return err
	}

	sessionsClosed.WithLabelValues(string(reason)).Inc()
	s.logger.Info("Session closed",
		zap.String("session_id", sessionID.String()),
		zap.String("reason", string(reason)),
		zap.Int64("duration_seconds", elapsed))

	sess, err := s.repo.FindByID(ctx, sessionID)
	if err == nil {
		s.publishEvent(ctx, endEventType(reason), sess.UserID, sessionID)
	}
	s.invalidateLeaderboard(ctx)
	return nil
}

// endEventType maps a close reason to its change-feed event type. An
// inactivity close is announced as a forced logout so feed readers can
// distinguish it from a voluntary one.
func endEventType(reason EndReason) string {
	if reason == EndReasonInactivity {
		return events.EventTypeForcedLogout
	}
	return events.EventTypeSessionEnded
}

func (s *service) CurrentDuration(ctx context.Context, userID uuid.UUID) (int64, error) {
	sess, err := s.repo.FindOpenByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	elapsed := int64(s.now().Sub(sess.StartAt).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed, nil
}

func (s *service) ListSessionsSince(ctx context.Context, filter SessionFilter) ([]Session, error) {
	return s.repo.FindSince(ctx, filter)
}

func (s *service) CloseOpenForUser(ctx context.Context, userID uuid.UUID) error {
	swept, err := s.repo.CloseOpenForUser(ctx, userID)
	if err != nil {
		return err
	}
	if swept > 0 {
		sessionsClosed.WithLabelValues(string(EndReasonSuperseded)).Add(float64(swept))
		s.logger.Info("Swept stale open sessions",
			zap.String("user_id", userID.String()),
			zap.Int64("count", swept))
		s.invalidateLeaderboard(ctx)
	}
	return nil
}

// leaderboardCachePattern matches the keys the analytics leaderboard
// handler writes.
const leaderboardCachePattern = "analytics:leaderboard:*"

// invalidateLeaderboard drops the cached rankings after a closing write;
// the short TTL remains the backstop when Redis is down.
func (s *service) invalidateLeaderboard(ctx context.Context) {
	if s.redis == nil {
		return
	}
	if err := s.redis.ClearByPattern(ctx, leaderboardCachePattern); err != nil {
		s.logger.Warn("Failed to invalidate leaderboard cache", zap.Error(err))
	}
}

func (s *service) publishEvent(ctx context.Context, eventType string, userID, sessionID uuid.UUID) {
	if s.redis == nil {
		return
	}
	event := &events.ChangeEvent{
		EventType: eventType,
		UserID:    userID,
		EntityID:  sessionID,
		Timestamp: s.now().UTC(),
	}
	if err := s.redis.PublishChangeEvent(ctx, cache.SessionEventChannel, event); err != nil {
		s.logger.Warn("Failed to publish session change event", zap.Error(err))
	}
}
