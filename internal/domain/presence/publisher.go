package presence

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
)

var heartbeatsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "pulse_heartbeats_published_total",
	Help: "Total number of presence records published",
}, []string{"online"})

// Publisher announces user liveness by upserting presence records. One
// publisher instance serves all users; the runtime passes its own user id.
type Publisher struct {
	repo   Repository
	redis  *cache.RedisClient
	logger *zap.Logger
	now    func() time.Time
}

func NewPublisher(repo Repository, redis *cache.RedisClient, logger *zap.Logger) *Publisher {
	return &Publisher{
		repo:   repo,
		redis:  redis,
		logger: logger,
		now:    time.Now,
	}
}

// Publish upserts the presence record for the user with last_seen = now.
// session_started is set only on the offline -> online edge and cleared on
// the way down; repeated publishes with the same flag keep the existing
// value. Errors are returned for the caller to log; the periodic heartbeat
// absorbs them and retries on its next tick.
func (p *Publisher) Publish(ctx context.Context, userID uuid.UUID, online bool) error {
	now := p.now().UTC()

	record := &PresenceRecord{
		UserID:   userID,
		IsOnline: online,
		LastSeen: now,
	}

	existing, err := p.repo.FindByUser(ctx, userID)
	switch {
	case err == nil:
		if online {
			if existing.IsOnline && existing.SessionStarted != nil {
				record.SessionStarted = existing.SessionStarted
			} else {
				record.SessionStarted = &now
			}
		}
	case errors.Is(err, ErrPresenceNotFound):
		if online {
			record.SessionStarted = &now
		}
	default:
		return err
	}

	if err := p.repo.Upsert(ctx, record); err != nil {
		return err
	}

	heartbeatsPublished.WithLabelValues(boolLabel(online)).Inc()
	p.publishEvent(ctx, userID)
	return nil
}

func (p *Publisher) publishEvent(ctx context.Context, userID uuid.UUID) {
	if p.redis == nil {
		return
	}
	event := &events.ChangeEvent{
		EventType: events.EventTypePresenceUpdated,
		UserID:    userID,
		Timestamp: p.now().UTC(),
	}
	if err := p.redis.PublishChangeEvent(ctx, cache.PresenceEventChannel, event); err != nil {
		p.logger.Warn("Failed to publish presence change event", zap.Error(err))
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
