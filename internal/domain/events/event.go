package events

import (
	"time"

	"github.com/google/uuid"
)

// Change-feed event types
const (
	EventTypeSessionStarted  = "session_started"
	EventTypeSessionEnded    = "session_ended"
	EventTypePresenceUpdated = "presence_updated"
	EventTypeForcedLogout    = "forced_logout"
)

// ChangeEvent represents a store-level change pushed over the change feed.
// Readers treat it as a refresh hint only; the store remains authoritative.
type ChangeEvent struct {
	EventType string      `json:"event_type"`
	UserID    uuid.UUID   `json:"user_id"`
	EntityID  uuid.UUID   `json:"entity_id"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}
