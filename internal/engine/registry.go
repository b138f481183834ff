package engine

import (
	"context"
	"sync"

	"github.com/atrium-works/pulse/internal/domain/presence"
	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// Registry tracks one runtime per logged-in user. Starting a runtime for a
// user who already has one tears the old one down first, so the "at most
// one open session per user" invariant holds even across overlapping
// logins (two tabs, a crashed client that never said goodbye).
type Registry struct {
	cfg       Config
	sessions  session.Service
	publisher *presence.Publisher
	flusher   *Flusher
	logger    *zap.Logger

	mu         sync.RWMutex
	runtimes   map[uuid.UUID]*Runtime
	startLocks map[uuid.UUID]*sync.Mutex
}

func NewRegistry(cfg Config, sessions session.Service, publisher *presence.Publisher, flusher *Flusher, logger *zap.Logger) *Registry {
	return &Registry{
		cfg:        cfg,
		sessions:   sessions,
		publisher:  publisher,
		flusher:    flusher,
		logger:     logger,
		runtimes:   make(map[uuid.UUID]*Runtime),
		startLocks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// Start opens a new runtime for the user. Any previous runtime is logged
// out first and any sessions left open by a dead client are swept closed.
// signOut is invoked when the inactivity watchdog forces a logout and is
// expected to invalidate the login's credentials; it may be nil.
func (g *Registry) Start(ctx context.Context, userID uuid.UUID, client datatypes.JSON, signOut func()) (*Runtime, error) {
	lock := g.startLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if prev, ok := g.Get(userID); ok {
		if err := prev.Logout(ctx); err != nil {
			g.logger.Warn("Failed to close superseded runtime",
				zap.String("user_id", userID.String()),
				zap.Error(err))
		}
	}
	if err := g.sessions.CloseOpenForUser(ctx, userID); err != nil {
		g.logger.Warn("Failed to sweep stale open sessions",
			zap.String("user_id", userID.String()),
			zap.Error(err))
	}

	rt := newRuntime(userID, g.cfg, g.sessions, g.publisher, g.flusher, g.logger, g.remove, signOut)
	if err := rt.start(ctx, client); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.runtimes[userID] = rt
	g.mu.Unlock()
	return rt, nil
}

// Get returns the user's running runtime, if any.
func (g *Registry) Get(userID uuid.UUID) (*Runtime, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rt, ok := g.runtimes[userID]
	return rt, ok
}

// Count returns the number of active runtimes, for health reporting.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.runtimes)
}

// startLock returns the user's start mutex, serializing overlapping Start
// calls so only one of them can pass the supersede check at a time.
func (g *Registry) startLock(userID uuid.UUID) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lock, ok := g.startLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		g.startLocks[userID] = lock
	}
	return lock
}

// remove drops a runtime that terminated itself. A superseded runtime
// terminating late must not evict its successor, so the delete only fires
// when the registered runtime is the one that ended.
func (g *Registry) remove(rt *Runtime) {
	g.mu.Lock()
	if current, ok := g.runtimes[rt.userID]; ok && current == rt {
		delete(g.runtimes, rt.userID)
	}
	g.mu.Unlock()
}

// Shutdown logs out every runtime and drains pending best-effort flushes.
func (g *Registry) Shutdown(ctx context.Context) {
	g.mu.Lock()
	runtimes := make([]*Runtime, 0, len(g.runtimes))
	for _, rt := range g.runtimes {
		runtimes = append(runtimes, rt)
	}
	g.mu.Unlock()

	for _, rt := range runtimes {
		if err := rt.Logout(ctx); err != nil {
			g.logger.Warn("Failed to close runtime during shutdown", zap.Error(err))
		}
	}

	if err := g.flusher.Drain(ctx); err != nil {
		g.logger.Warn("Flush drain interrupted during shutdown", zap.Error(err))
	}
}
