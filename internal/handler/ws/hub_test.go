package ws

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"nurselink-backend/internal/domain"
)

func TestTranslate_StartBecomesIncoming(t *testing.T) {
	callerID := uuid.New()
	callID := uuid.New()

	out := translate(&domain.SignalEvent{
		Type:           domain.SignalStartVideoCall,
		ConversationID: uuid.New(),
		UserID:         callerID,
		RoomName:       "room-42-abc",
		CallID:         callID,
	})

	assert.NotNil(t, out)
	assert.Equal(t, domain.SignalIncomingVideoCall, out.Type)
	assert.Equal(t, callerID, out.CallerID)
	assert.Equal(t, "room-42-abc", out.RoomName)
	assert.Equal(t, callID, out.CallID)
}

func TestTranslate_RejectBecomesRejected(t *testing.T) {
	out := translate(&domain.SignalEvent{Type: domain.SignalRejectVideoCall})

	assert.NotNil(t, out)
	assert.Equal(t, domain.SignalVideoCallRejected, out.Type)
}

func TestTranslate_TeardownBecomesHungUp(t *testing.T) {
	for _, typ := range []string{domain.SignalHangupVideoCall, domain.SignalEndVideoCall} {
		out := translate(&domain.SignalEvent{Type: typ})

		assert.NotNil(t, out)
		assert.Equal(t, domain.SignalVideoCallHungUp, out.Type)
	}
}

func TestTranslate_AcceptForwardedAsIs(t *testing.T) {
	out := translate(&domain.SignalEvent{Type: domain.SignalAcceptVideoCall, RoomName: "room-1-x"})

	assert.NotNil(t, out)
	assert.Equal(t, domain.SignalAcceptVideoCall, out.Type)
	assert.Equal(t, "room-1-x", out.RoomName)
}

func TestTranslate_UnknownDropped(t *testing.T) {
	assert.Nil(t, translate(&domain.SignalEvent{Type: "typing"}))
}
