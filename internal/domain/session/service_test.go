package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockRepository struct {
	sessions map[uuid.UUID]*Session

	insertFailures int
	insertAttempts int
	durationWrites []int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{sessions: make(map[uuid.UUID]*Session)}
}

func (m *mockRepository) Insert(ctx context.Context, session *Session) error {
	m.insertAttempts++
	if m.insertAttempts <= m.insertFailures {
		return errors.New("connection refused")
	}
	copied := *session
	m.sessions[session.ID] = &copied
	return nil
}

func (m *mockRepository) UpdateDuration(ctx context.Context, id uuid.UUID, durationSeconds int64) error {
	sess, ok := m.sessions[id]
	if !ok || sess.EndAt != nil {
		return ErrSessionClosed
	}
	sess.DurationSeconds = durationSeconds
	m.durationWrites = append(m.durationWrites, durationSeconds)
	return nil
}

func (m *mockRepository) Close(ctx context.Context, id uuid.UUID, endAt time.Time, durationSeconds int64) error {
	sess, ok := m.sessions[id]
	if !ok || sess.EndAt != nil {
		return ErrSessionClosed
	}
	sess.EndAt = &endAt
	sess.DurationSeconds = durationSeconds
	return nil
}

func (m *mockRepository) FindByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	copied := *sess
	return &copied, nil
}

func (m *mockRepository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*Session, error) {
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.EndAt == nil {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *mockRepository) FindSince(ctx context.Context, filter SessionFilter) ([]Session, error) {
	var out []Session
	for _, sess := range m.sessions {
		if !sess.StartAt.Before(filter.StartAfter) {
			out = append(out, *sess)
		}
	}
	return out, nil
}

func (m *mockRepository) CloseOpenForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var swept int64
	for _, sess := range m.sessions {
		if sess.UserID == userID && sess.EndAt == nil {
			closed := sess.StartAt.Add(time.Duration(sess.DurationSeconds) * time.Second)
			sess.EndAt = &closed
			swept++
		}
	}
	return swept, nil
}

func newTestService(repo Repository, now time.Time) *service {
	return &service{
		repo:   repo,
		logger: zap.NewNop(),
		now:    func() time.Time { return now },
	}
}

func TestStartSession(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()

	repo := newMockRepository()
	svc := newTestService(repo, now)

	sessionID, err := svc.StartSession(context.Background(), userID, nil)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sessionID)

	sess := repo.sessions[sessionID]
	assert.Equal(t, userID, sess.UserID)
	assert.Equal(t, now, sess.StartAt)
	assert.Nil(t, sess.EndAt)
	assert.Equal(t, int64(0), sess.DurationSeconds)
}

func TestStartSessionRetriesTransientFailures(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	repo := newMockRepository()
	repo.insertFailures = 2
	svc := newTestService(repo, now)

	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sessionID)
	assert.Equal(t, 3, repo.insertAttempts)
}

func TestStartSessionFailsSoft(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	repo := newMockRepository()
	repo.insertFailures = startRetries
	svc := newTestService(repo, now)

	// Exhausting the retry budget must not fail the login.
	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)
	assert.Equal(t, uuid.Nil, sessionID)
}

func TestTickDuration(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	svc := newTestService(repo, start)

	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)

	svc.now = func() time.Time { return start.Add(42 * time.Second) }
	svc.TickDuration(context.Background(), sessionID, start)

	assert.Equal(t, []int64{42}, repo.durationWrites)
	assert.Equal(t, int64(42), repo.sessions[sessionID].DurationSeconds)
}

func TestTickDurationIsNoopWithoutSession(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())

	// A soft-failed start leaves the runtime ticking against uuid.Nil.
	svc.TickDuration(context.Background(), uuid.Nil, time.Now())
	assert.Empty(t, repo.durationWrites)
}

func TestEndSession(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	svc := newTestService(repo, start)

	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)

	end := start.Add(10 * time.Minute)
	svc.now = func() time.Time { return end }
	assert.NoError(t, svc.EndSession(context.Background(), sessionID, start, EndReasonLogout))

	sess := repo.sessions[sessionID]
	if assert.NotNil(t, sess.EndAt) {
		assert.Equal(t, end, *sess.EndAt)
	}
	assert.Equal(t, int64(600), sess.DurationSeconds)
}

func TestEndSessionIsIdempotent(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	svc := newTestService(repo, start)

	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)

	assert.NoError(t, svc.EndSession(context.Background(), sessionID, start, EndReasonLogout))
	// A beacon racing the logout must not surface an error or rewrite
	// the closed row.
	firstEnd := *repo.sessions[sessionID].EndAt

	svc.now = func() time.Time { return start.Add(time.Hour) }
	assert.NoError(t, svc.EndSession(context.Background(), sessionID, start, EndReasonBeacon))
	assert.Equal(t, firstEnd, *repo.sessions[sessionID].EndAt)
}

func TestClosedSessionRejectsDurationWrites(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	repo := newMockRepository()
	svc := newTestService(repo, start)

	sessionID, err := svc.StartSession(context.Background(), uuid.New(), nil)
	assert.NoError(t, err)
	assert.NoError(t, svc.EndSession(context.Background(), sessionID, start, EndReasonLogout))

	closedDuration := repo.sessions[sessionID].DurationSeconds

	// A stale ticker firing after the close must leave the row untouched.
	svc.now = func() time.Time { return start.Add(time.Hour) }
	svc.TickDuration(context.Background(), sessionID, start)
	assert.Equal(t, closedDuration, repo.sessions[sessionID].DurationSeconds)
}

func TestCurrentDuration(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	repo := newMockRepository()
	svc := newTestService(repo, start)

	_, err := svc.StartSession(context.Background(), userID, nil)
	assert.NoError(t, err)

	svc.now = func() time.Time { return start.Add(75 * time.Second) }
	elapsed, err := svc.CurrentDuration(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, int64(75), elapsed)
}

func TestCurrentDurationWithoutOpenSession(t *testing.T) {
	repo := newMockRepository()
	svc := newTestService(repo, time.Now())

	_, err := svc.CurrentDuration(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestEndEventType(t *testing.T) {
	assert.Equal(t, "forced_logout", endEventType(EndReasonInactivity))
	assert.Equal(t, "session_ended", endEventType(EndReasonLogout))
	assert.Equal(t, "session_ended", endEventType(EndReasonBeacon))
	assert.Equal(t, "session_ended", endEventType(EndReasonSuperseded))
}

func TestCloseOpenForUserSweepsAll(t *testing.T) {
	start := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	userID := uuid.New()
	repo := newMockRepository()
	svc := newTestService(repo, start)

	first, err := svc.StartSession(context.Background(), userID, nil)
	assert.NoError(t, err)
	second, err := svc.StartSession(context.Background(), userID, nil)
	assert.NoError(t, err)

	svc.now = func() time.Time { return start.Add(40 * time.Second) }
	svc.TickDuration(context.Background(), first, start)

	// The client died around its last tick. Sweeping an hour later must
	// close the row at the frozen estimate, not the sweep time, so the
	// stored duration still equals end_at - start_at.
	svc.now = func() time.Time { return start.Add(time.Hour) }
	assert.NoError(t, svc.CloseOpenForUser(context.Background(), userID))

	for _, id := range []uuid.UUID{first, second} {
		sess := repo.sessions[id]
		if assert.NotNil(t, sess.EndAt) {
			assert.Equal(t, sess.DurationSeconds, int64(sess.EndAt.Sub(sess.StartAt).Seconds()))
		}
	}
	assert.Equal(t, start.Add(40*time.Second), *repo.sessions[first].EndAt)
}
