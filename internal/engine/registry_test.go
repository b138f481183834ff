package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/atrium-works/pulse/internal/domain/presence"
	"github.com/atrium-works/pulse/internal/domain/session"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type fakeSessionService struct {
	mu     sync.Mutex
	ended  map[uuid.UUID]session.EndReason
	sweeps int
}

func newFakeSessionService() *fakeSessionService {
	return &fakeSessionService{ended: make(map[uuid.UUID]session.EndReason)}
}

func (f *fakeSessionService) StartSession(ctx context.Context, userID uuid.UUID, client datatypes.JSON) (uuid.UUID, error) {
	return uuid.New(), nil
}

func (f *fakeSessionService) TickDuration(ctx context.Context, sessionID uuid.UUID, startAt time.Time) {
}

func (f *fakeSessionService) EndSession(ctx context.Context, sessionID uuid.UUID, startAt time.Time, reason session.EndReason) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.ended[sessionID]; !done {
		f.ended[sessionID] = reason
	}
	return nil
}

func (f *fakeSessionService) CurrentDuration(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeSessionService) ListSessionsSince(ctx context.Context, filter session.SessionFilter) ([]session.Session, error) {
	return nil, nil
}

func (f *fakeSessionService) CloseOpenForUser(ctx context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sweeps++
	return nil
}

func (f *fakeSessionService) endReason(sessionID uuid.UUID) (session.EndReason, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reason, ok := f.ended[sessionID]
	return reason, ok
}

func (f *fakeSessionService) endedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ended)
}

type fakePresenceRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]presence.PresenceRecord
}

func newFakePresenceRepo() *fakePresenceRepo {
	return &fakePresenceRepo{records: make(map[uuid.UUID]presence.PresenceRecord)}
}

func (f *fakePresenceRepo) Upsert(ctx context.Context, record *presence.PresenceRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[record.UserID] = *record
	return nil
}

func (f *fakePresenceRepo) FindByUser(ctx context.Context, userID uuid.UUID) (*presence.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[userID]
	if !ok {
		return nil, presence.ErrPresenceNotFound
	}
	return &rec, nil
}

func (f *fakePresenceRepo) FindOnlineSince(ctx context.Context, threshold time.Time) ([]presence.PresenceRecord, error) {
	return nil, nil
}

func (f *fakePresenceRepo) isOnline(userID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[userID].IsOnline
}

func newTestRegistry(sessions session.Service, repo presence.Repository) (*Registry, *Flusher) {
	logger := zap.NewNop()
	publisher := presence.NewPublisher(repo, nil, logger)
	flusher := NewFlusher(time.Second, logger)
	cfg := Config{WarnAfter: time.Hour, ExpireAfter: 2 * time.Hour}
	registry := NewRegistry(cfg, sessions, publisher, flusher, logger)
	return registry, flusher
}

func TestRegistryStartAndLogout(t *testing.T) {
	sessions := newFakeSessionService()
	repo := newFakePresenceRepo()
	registry, _ := newTestRegistry(sessions, repo)
	userID := uuid.New()

	rt, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, registry.Count())
	assert.NotEqual(t, uuid.Nil, rt.SessionID())
	assert.True(t, repo.isOnline(userID))

	assert.NoError(t, rt.Logout(context.Background()))

	reason, ended := sessions.endReason(rt.SessionID())
	assert.True(t, ended)
	assert.Equal(t, session.EndReasonLogout, reason)
	assert.False(t, repo.isOnline(userID))
	assert.Equal(t, 0, registry.Count())
}

func TestRegistryStartSupersedesPreviousRuntime(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())
	userID := uuid.New()

	first, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)

	second, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)

	// Only one runtime per user survives; the superseded session closed.
	assert.Equal(t, 1, registry.Count())
	current, ok := registry.Get(userID)
	assert.True(t, ok)
	assert.Equal(t, second.SessionID(), current.SessionID())

	_, ended := sessions.endReason(first.SessionID())
	assert.True(t, ended)
}

func TestRegistryStartSerializesConcurrentLogins(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())
	userID := uuid.New()

	const logins = 8
	var wg sync.WaitGroup
	for i := 0; i < logins; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := registry.Start(context.Background(), userID, nil, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Overlapping logins for one user must leave exactly one runtime;
	// every superseded session is closed and the survivor stays open.
	assert.Equal(t, 1, registry.Count())
	current, ok := registry.Get(userID)
	assert.True(t, ok)
	assert.Equal(t, logins-1, sessions.endedCount())
	_, ended := sessions.endReason(current.SessionID())
	assert.False(t, ended)
}

func TestSupersededRuntimeTerminationKeepsCurrent(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())
	userID := uuid.New()

	first, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)
	second, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)

	// A late termination of the superseded runtime must not evict its
	// successor from the registry.
	registry.remove(first)
	current, ok := registry.Get(userID)
	assert.True(t, ok)
	assert.Same(t, second, current)

	registry.remove(second)
	assert.Equal(t, 0, registry.Count())
}

func TestRegistryStartSweepsStaleSessions(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())

	_, err := registry.Start(context.Background(), uuid.New(), nil, nil)
	assert.NoError(t, err)
	assert.Equal(t, 1, sessions.sweeps)
}

func TestRuntimeBeaconClosesDetached(t *testing.T) {
	sessions := newFakeSessionService()
	repo := newFakePresenceRepo()
	registry, flusher := newTestRegistry(sessions, repo)
	userID := uuid.New()

	rt, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)

	rt.Beacon()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, flusher.Drain(ctx))

	reason, ended := sessions.endReason(rt.SessionID())
	assert.True(t, ended)
	assert.Equal(t, session.EndReasonBeacon, reason)
	assert.False(t, repo.isOnline(userID))
	assert.Equal(t, 0, registry.Count())
}

func TestRuntimeExpiryForcesSignOut(t *testing.T) {
	sessions := newFakeSessionService()
	repo := newFakePresenceRepo()
	registry, _ := newTestRegistry(sessions, repo)
	userID := uuid.New()

	signedOut := false
	rt, err := registry.Start(context.Background(), userID, nil, func() { signedOut = true })
	assert.NoError(t, err)

	rt.expire()

	assert.True(t, signedOut)
	reason, ended := sessions.endReason(rt.SessionID())
	assert.True(t, ended)
	assert.Equal(t, session.EndReasonInactivity, reason)
	assert.False(t, repo.isOnline(userID))
	assert.Equal(t, 0, registry.Count())
}

func TestRuntimeLogoutLeavesTokenValid(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())

	signedOut := false
	rt, err := registry.Start(context.Background(), uuid.New(), nil, func() { signedOut = true })
	assert.NoError(t, err)

	// Explicit logout must not invalidate the token; the client may start
	// a fresh session with it.
	assert.NoError(t, rt.Logout(context.Background()))
	assert.False(t, signedOut)
}

func TestRegistryShutdownClosesEverything(t *testing.T) {
	sessions := newFakeSessionService()
	registry, _ := newTestRegistry(sessions, newFakePresenceRepo())

	first, err := registry.Start(context.Background(), uuid.New(), nil, nil)
	assert.NoError(t, err)
	second, err := registry.Start(context.Background(), uuid.New(), nil, nil)
	assert.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	registry.Shutdown(ctx)

	assert.Equal(t, 0, registry.Count())
	_, firstEnded := sessions.endReason(first.SessionID())
	_, secondEnded := sessions.endReason(second.SessionID())
	assert.True(t, firstEnded)
	assert.True(t, secondEnded)
}

func TestRuntimeSuspendAndResume(t *testing.T) {
	sessions := newFakeSessionService()
	repo := newFakePresenceRepo()
	registry, _ := newTestRegistry(sessions, repo)
	userID := uuid.New()

	rt, err := registry.Start(context.Background(), userID, nil, nil)
	assert.NoError(t, err)
	assert.True(t, repo.isOnline(userID))

	// Hiding the tab drops presence but keeps the session open.
	rt.Suspend(context.Background())
	assert.False(t, repo.isOnline(userID))
	_, ended := sessions.endReason(rt.SessionID())
	assert.False(t, ended)

	rt.Resume(context.Background())
	assert.True(t, repo.isOnline(userID))

	assert.NoError(t, rt.Logout(context.Background()))
}
