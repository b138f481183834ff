package presence

import (
	"context"
	"sync"
	"time"

	"github.com/atrium-works/pulse/internal/domain/events"
	"github.com/atrium-works/pulse/internal/infrastructure/cache"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultStalenessThreshold is the maximum age of last_seen before a record
// flagged online is treated as offline anyway. It masks records stuck
// online after an ungraceful termination that never published offline.
const DefaultStalenessThreshold = 60 * time.Second

// Resolver derives the current online set from published presence records.
// It keeps an in-memory snapshot refreshed on a poll ticker and, when the
// Redis change feed is available, on every presence change notification.
// The poll path alone is sufficient for correctness.
type Resolver struct {
	repo      Repository
	redis     *cache.RedisClient
	logger    *zap.Logger
	staleness time.Duration
	refresh   time.Duration
	now       func() time.Time

	mu       sync.RWMutex
	snapshot map[uuid.UUID]PresenceRecord
}

func NewResolver(repo Repository, redis *cache.RedisClient, staleness, refresh time.Duration, logger *zap.Logger) *Resolver {
	if staleness <= 0 {
		staleness = DefaultStalenessThreshold
	}
	if refresh <= 0 {
		refresh = 5 * time.Second
	}
	return &Resolver{
		repo:      repo,
		redis:     redis,
		logger:    logger,
		staleness: staleness,
		refresh:   refresh,
		now:       time.Now,
		snapshot:  make(map[uuid.UUID]PresenceRecord),
	}
}

// Run refreshes the snapshot until the context is cancelled. When Redis is
// configured it additionally subscribes to the presence change feed so the
// online set reacts between polls.
func (r *Resolver) Run(ctx context.Context) {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial presence refresh failed", zap.Error(err))
	}

	if r.redis != nil {
		go func() {
			err := r.redis.SubscribeChangeEvents(ctx, cache.PresenceEventChannel, func(*events.ChangeEvent) {
				if err := r.Refresh(ctx); err != nil {
					r.logger.Warn("Presence refresh on change event failed", zap.Error(err))
				}
			})
			if err != nil && ctx.Err() == nil {
				r.logger.Warn("Presence change feed subscription ended, polling only", zap.Error(err))
			}
		}()
	}

	ticker := time.NewTicker(r.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("Presence refresh failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Refresh reloads the snapshot from the store. Only records that could
// still resolve online are kept; everything else ages out of the snapshot.
func (r *Resolver) Refresh(ctx context.Context) error {
	threshold := r.now().UTC().Add(-r.staleness)
	records, err := r.repo.FindOnlineSince(ctx, threshold)
	if err != nil {
		return err
	}

	snapshot := make(map[uuid.UUID]PresenceRecord, len(records))
	for _, rec := range records {
		snapshot[rec.UserID] = rec
	}

	r.mu.Lock()
	r.snapshot = snapshot
	r.mu.Unlock()
	return nil
}

// ResolveOnline reports whether the user is currently online: the record
// must exist, be flagged online and have a last_seen younger than the
// staleness threshold. The double condition guards against records stuck
// online after a crash.
func (r *Resolver) ResolveOnline(userID uuid.UUID) bool {
	r.mu.RLock()
	rec, ok := r.snapshot[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return recordOnline(&rec, r.now(), r.staleness)
}

// OnlineCount returns the number of users currently resolving online.
func (r *Resolver) OnlineCount() int {
	return len(r.OnlineUserIDs())
}

// OnlineUserIDs returns the set of users currently resolving online.
func (r *Resolver) OnlineUserIDs() []uuid.UUID {
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(r.snapshot))
	for id, rec := range r.snapshot {
		if recordOnline(&rec, now, r.staleness) {
			ids = append(ids, id)
		}
	}
	return ids
}

// OnlineSet returns the online users as a set for membership checks.
func (r *Resolver) OnlineSet() map[uuid.UUID]struct{} {
	ids := r.OnlineUserIDs()
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// recordOnline applies the liveness rule to a single record.
func recordOnline(rec *PresenceRecord, now time.Time, staleness time.Duration) bool {
	if rec == nil || !rec.IsOnline {
		return false
	}
	return now.Sub(rec.LastSeen) < staleness
}
