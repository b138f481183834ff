package presence

import (
	"context"
	"errors"
	"time"

	"github.com/atrium-works/pulse/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrPresenceNotFound = errors.New("presence record not found")

// Repository defines the interface for presence persistence operations
type Repository interface {
	// Upsert writes the record keyed by user_id, replacing any previous
	// row. Concurrent writers resolve by last write wins.
	Upsert(ctx context.Context, record *PresenceRecord) error
	FindByUser(ctx context.Context, userID uuid.UUID) (*PresenceRecord, error)
	// FindOnlineSince returns records flagged online whose last_seen is at
	// or after the given threshold.
	FindOnlineSince(ctx context.Context, threshold time.Time) ([]PresenceRecord, error)
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, record *PresenceRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"is_online", "last_seen", "session_started", "updated_at",
		}),
	}).Create(record).Error
}

func (r *repository) FindByUser(ctx context.Context, userID uuid.UUID) (*PresenceRecord, error) {
	var record PresenceRecord
	result := r.db.WithContext(ctx).First(&record, "user_id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrPresenceNotFound
		}
		return nil, result.Error
	}
	return &record, nil
}

func (r *repository) FindOnlineSince(ctx context.Context, threshold time.Time) ([]PresenceRecord, error) {
	var records []PresenceRecord
	err := r.db.WithContext(ctx).
		Where("is_online = ? AND last_seen >= ?", true, threshold).
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}
