package presence

import (
	"time"

	"github.com/google/uuid"
)

// PresenceRecord represents the current liveness of a user, one row per
// user. Rows are never deleted; staleness is inferred at read time from
// LastSeen, never recorded.
type PresenceRecord struct {
	UserID uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`

	IsOnline bool      `gorm:"not null;default:false;index:idx_presence_online" json:"is_online"`
	LastSeen time.Time `gorm:"not null" json:"last_seen"`

	// SessionStarted is set once on the offline -> online edge and cleared
	// when the user goes offline.
	SessionStarted *time.Time `gorm:"default:null" json:"session_started"`

	UpdatedAt time.Time `gorm:"not null;default:current_timestamp;autoUpdateTime" json:"-"`
}

// TableName specifies the table name for the PresenceRecord model
func (PresenceRecord) TableName() string {
	return "presence_records"
}
