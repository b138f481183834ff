package session

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session already closed")
)

// Repository defines the interface for session persistence operations
type Repository interface {
	Insert(ctx context.Context, session *Session) error
	UpdateDuration(ctx context.Context, id uuid.UUID, durationSeconds int64) error
	Close(ctx context.Context, id uuid.UUID, endAt time.Time, durationSeconds int64) error
	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	FindOpenByUser(ctx context.Context, userID uuid.UUID) (*Session, error)
	FindSince(ctx context.Context, filter SessionFilter) ([]Session, error)
	CloseOpenForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, session *Session) error {
	return r.db.WithContext(ctx).Create(session).Error
}

// UpdateDuration writes the running duration of an open session. The
// end_at guard keeps closed sessions immutable even if a stale ticker
// fires after the closing write.
func (r *repository) UpdateDuration(ctx context.Context, id uuid.UUID, durationSeconds int64) error {
	result := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND end_at IS NULL", id).
		Update("duration_seconds", durationSeconds)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionClosed
	}
	return nil
}

// Close sets end_at and the final duration in a single write. Only an open
// session can be closed; a second close is a no-op error.
func (r *repository) Close(ctx context.Context, id uuid.UUID, endAt time.Time, durationSeconds int64) error {
	result := r.db.WithContext(ctx).Model(&Session{}).
		Where("id = ? AND end_at IS NULL", id).
		Updates(map[string]interface{}{
			"end_at":           endAt,
			"duration_seconds": durationSeconds,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionClosed
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	var session Session
	result := r.db.WithContext(ctx).First(&session, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

func (r *repository) FindOpenByUser(ctx context.Context, userID uuid.UUID) (*Session, error) {
	var session Session
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND end_at IS NULL", userID).
		Order("start_at DESC").
		First(&session)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, result.Error
	}
	return &session, nil
}

func (r *repository) FindSince(ctx context.Context, filter SessionFilter) ([]Session, error) {
	var sessions []Session
	query := r.db.WithContext(ctx).Model(&Session{}).
		Where("start_at >= ?", filter.StartAfter)

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	err := query.Order("start_at ASC").Find(&sessions).Error
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

// CloseOpenForUser sweeps any sessions left open for a user. Used when a
// new login supersedes a runtime that never managed a clean shutdown. The
// client died around its last persisted tick, so each row closes at
// end_at = start_at + duration_seconds; closing at sweep time would leave
// duration_seconds disagreeing with end_at - start_at.
func (r *repository) CloseOpenForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).Model(&Session{}).
		Where("user_id = ? AND end_at IS NULL", userID).
		Update("end_at", gorm.Expr("start_at + duration_seconds * interval '1 second'"))
	return result.RowsAffected, result.Error
}
