package domain

import (
	"time"

	"github.com/google/uuid"
)

// Signal event types sent by clients over the realtime channel
const (
	SignalStartVideoCall  = "startVideoCall"
	SignalEndVideoCall    = "endVideoCall"
	SignalAcceptVideoCall = "acceptVideoCall"
	SignalRejectVideoCall = "rejectVideoCall"
	SignalHangupVideoCall = "hangupVideoCall"
)

// Signal event types delivered to clients
const (
	SignalIncomingVideoCall = "incomingVideoCall"
	SignalVideoCallRejected = "videoCallRejected"
	SignalVideoCallHungUp   = "videoCallHungUp"
)

// SignalEvent is one call-signaling notification on the realtime channel.
// RoomName and CallID are optional depending on the event type.
type SignalEvent struct {
	Type           string    `json:"type"`
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id,omitempty"`
	CallerID       uuid.UUID `json:"caller_id,omitempty"`
	RoomName       string    `json:"room_name,omitempty"`
	CallID         uuid.UUID `json:"call_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
