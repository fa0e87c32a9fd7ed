package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallStatus is the registry-owned lifecycle state of a call
type CallStatus string

const (
	CallStatusActive CallStatus = "ACTIVE"
	CallStatusEnded  CallStatus = "ENDED"
)

// Call represents a video call session persisted by the call registry
type Call struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversation_id"`
	RoomName       string     `json:"room_name"` // opaque token for the hosted media widget
	StartedBy      uuid.UUID  `json:"started_by"`
	Status         CallStatus `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	Duration       int        `json:"duration,omitempty"` // in seconds
}

// CallEvent is one audit record of a call lifecycle transition
type CallEvent struct {
	CallID         uuid.UUID `json:"call_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	ActorID        uuid.UUID `json:"actor_id"`
	Kind           string    `json:"kind"` // started, accepted, rejected, ended
	OccurredAt     time.Time `json:"occurred_at"`
}
