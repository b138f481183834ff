package session

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Session represents one continuous period a user was logged into the
// portal. A session is "open" while EndAt is nil; once EndAt is set the row
// is immutable and DurationSeconds equals floor(EndAt - StartAt).
type Session struct {
	ID              uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_sessions_user_start,priority:1" json:"user_id"`
	StartAt         time.Time      `gorm:"not null;index:idx_sessions_user_start,priority:2" json:"start_at"`
	EndAt           *time.Time     `gorm:"default:null" json:"end_at"`
	DurationSeconds int64          `gorm:"not null;default:0" json:"duration_seconds"`
	Client          datatypes.JSON `gorm:"type:jsonb" json:"client,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:current_timestamp" json:"-"`
	UpdatedAt       time.Time      `gorm:"not null;default:current_timestamp;autoUpdateTime" json:"-"`
}

// TableName specifies the table name for the Session model
func (Session) TableName() string {
	return "sessions"
}

// Open reports whether the session is still accumulating duration.
func (s *Session) Open() bool {
	return s.EndAt == nil
}

// SessionFilter defines the filtering options for session queries
type SessionFilter struct {
	UserID     *uuid.UUID
	StartAfter time.Time
}
