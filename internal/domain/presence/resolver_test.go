package presence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockRepository struct {
	records map[uuid.UUID]*PresenceRecord
	upserts []PresenceRecord
}

func newMockRepository() *mockRepository {
	return &mockRepository{records: make(map[uuid.UUID]*PresenceRecord)}
}

func (m *mockRepository) Upsert(ctx context.Context, record *PresenceRecord) error {
	copied := *record
	m.records[record.UserID] = &copied
	m.upserts = append(m.upserts, copied)
	return nil
}

func (m *mockRepository) FindByUser(ctx context.Context, userID uuid.UUID) (*PresenceRecord, error) {
	rec, ok := m.records[userID]
	if !ok {
		return nil, ErrPresenceNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *mockRepository) FindOnlineSince(ctx context.Context, threshold time.Time) ([]PresenceRecord, error) {
	var out []PresenceRecord
	for _, rec := range m.records {
		if rec.IsOnline && !rec.LastSeen.Before(threshold) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func newTestResolver(repo Repository, now time.Time) *Resolver {
	r := NewResolver(repo, nil, 60*time.Second, 5*time.Second, zap.NewNop())
	r.now = func() time.Time { return now }
	return r
}

func TestResolveOnline(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	freshUser := uuid.New()
	staleUser := uuid.New()
	offlineUser := uuid.New()
	unknownUser := uuid.New()

	repo := newMockRepository()
	repo.records[freshUser] = &PresenceRecord{
		UserID: freshUser, IsOnline: true, LastSeen: now.Add(-10 * time.Second),
	}
	repo.records[staleUser] = &PresenceRecord{
		UserID: staleUser, IsOnline: true, LastSeen: now.Add(-5 * time.Minute),
	}
	repo.records[offlineUser] = &PresenceRecord{
		UserID: offlineUser, IsOnline: false, LastSeen: now.Add(-time.Second),
	}

	resolver := newTestResolver(repo, now)
	assert.NoError(t, resolver.Refresh(context.Background()))

	tests := []struct {
		name     string
		userID   uuid.UUID
		expected bool
	}{
		{name: "Fresh online record resolves online", userID: freshUser, expected: true},
		{name: "Stale last_seen resolves offline despite the flag", userID: staleUser, expected: false},
		{name: "Offline flag resolves offline", userID: offlineUser, expected: false},
		{name: "Missing record resolves offline", userID: unknownUser, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, resolver.ResolveOnline(tt.userID))
		})
	}
}

func TestOnlineSetAndCount(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	userA := uuid.New()
	userB := uuid.New()

	repo := newMockRepository()
	repo.records[userA] = &PresenceRecord{
		UserID: userA, IsOnline: true, LastSeen: now.Add(-time.Second),
	}
	repo.records[userB] = &PresenceRecord{
		UserID: userB, IsOnline: true, LastSeen: now.Add(-59 * time.Second),
	}

	resolver := newTestResolver(repo, now)
	assert.NoError(t, resolver.Refresh(context.Background()))

	assert.Equal(t, 2, resolver.OnlineCount())
	set := resolver.OnlineSet()
	assert.Contains(t, set, userA)
	assert.Contains(t, set, userB)
}

func TestRefreshAgesOutStaleRecords(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	repo := newMockRepository()
	repo.records[userID] = &PresenceRecord{
		UserID: userID, IsOnline: true, LastSeen: now.Add(-time.Second),
	}

	resolver := newTestResolver(repo, now)
	assert.NoError(t, resolver.Refresh(context.Background()))
	assert.True(t, resolver.ResolveOnline(userID))

	// A later refresh drops the user once the heartbeat stops arriving.
	later := now.Add(2 * time.Minute)
	resolver.now = func() time.Time { return later }
	assert.NoError(t, resolver.Refresh(context.Background()))
	assert.False(t, resolver.ResolveOnline(userID))
	assert.Equal(t, 0, resolver.OnlineCount())
}

func TestRecordOnline(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	staleness := 60 * time.Second

	assert.False(t, recordOnline(nil, now, staleness))
	assert.False(t, recordOnline(&PresenceRecord{IsOnline: false, LastSeen: now}, now, staleness))
	assert.True(t, recordOnline(&PresenceRecord{IsOnline: true, LastSeen: now.Add(-59 * time.Second)}, now, staleness))
	assert.False(t, recordOnline(&PresenceRecord{IsOnline: true, LastSeen: now.Add(-60 * time.Second)}, now, staleness))
}
