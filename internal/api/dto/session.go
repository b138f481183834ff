package dto

import "encoding/json"

// StartSessionRequest carries optional client metadata captured at login.
type StartSessionRequest struct {
	Client json.RawMessage `json:"client,omitempty"`
}

// StartSessionResponse returns the opened session. SessionID is empty when
// session creation failed soft and duration tracking is disabled for this
// login.
type StartSessionResponse struct {
	SessionID string `json:"session_id,omitempty"`
}

// DurationResponse reports the live elapsed seconds of the caller's open
// session.
type DurationResponse struct {
	DurationSeconds int64 `json:"duration_seconds"`
}
