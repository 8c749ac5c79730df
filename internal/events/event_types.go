package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventUserRegistered   EventType = "user_registered"
	EventSessionStarted   EventType = "session_started"
	EventSessionRefreshed EventType = "session_refreshed"
	EventSessionRevoked   EventType = "session_revoked"
)

// Event represents a session lifecycle change. It never carries token values.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps an event with an id and the current time.
func NewEvent(eventType EventType, subjectID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		SubjectID: subjectID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// SessionPayload identifies the credentials involved in a session event.
type SessionPayload struct {
	AccessTokenID  string `json:"access_jti,omitempty"`
	RefreshTokenID string `json:"refresh_jti,omitempty"`
	// RotatedFrom is the refresh jti that was revoked by rotation.
	RotatedFrom string `json:"rotated_from,omitempty"`
}

// RevokedPayload lists the jtis a logout revoked.
type RevokedPayload struct {
	TokenIDs []string `json:"jtis"`
}
