// Package signaling implements the client-side call signaling coordinator.
//
// The coordinator owns the local state of at most one active or incoming
// video call per conversation. Every state-changing action is confirmed (or
// best-effort attempted) against the call registry first; the realtime
// channel is purely a notification fan-out telling the other participants to
// update their own local state. Media transport is delegated to a hosted
// widget reached through a join URL.
package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nurselink-backend/internal/domain"
	"nurselink-backend/pkg/apperrors"
	"nurselink-backend/pkg/logger"
)

// ErrNotBound is returned when an operation requires a bound conversation
var ErrNotBound = errors.New("no conversation bound")

// ErrStartInFlight is returned when a start is already pending for the
// bound conversation
var ErrStartInFlight = errors.New("call start already in flight")

// Session identifies the local participant. It is injected once instead of
// being read from ambient storage at arbitrary points.
type Session struct {
	UserID uuid.UUID
	Token  string
}

// Invite is the transient local record of a call offer not yet accepted or
// rejected by this participant.
type Invite struct {
	RoomName string
	CallerID uuid.UUID
	CallID   uuid.UUID
}

// CurrentCall is the local cached copy of the registry's call record plus
// the derived media join URL.
type CurrentCall struct {
	domain.Call
	JoinURL string
}

// Registry is the call registry service boundary
type Registry interface {
	StartCall(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error)
	EndCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	AcceptCall(ctx context.Context, roomName string) (*domain.Call, error)
	RejectCall(ctx context.Context, callID uuid.UUID) error
	OngoingCall(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error)
	CallHistory(ctx context.Context, conversationID uuid.UUID) ([]domain.Call, error)
}

// Channel is the realtime channel boundary. Connection lifecycle (connect,
// reconnect) is owned by the implementation, not the coordinator.
type Channel interface {
	Publish(ctx context.Context, event *domain.SignalEvent) error
	Subscribe(handler func(*domain.SignalEvent)) (release func())
	Connected() bool
}

// MediaWidget is the hosted conferencing boundary: given a room name, a call
// is joinable at the returned URL.
type MediaWidget interface {
	JoinURL(roomName string) string
}

// Coordinator drives the call lifecycle for one conversation at a time
type Coordinator struct {
	session  Session
	registry Registry
	channel  Channel
	widget   MediaWidget

	mu             sync.Mutex
	conversationID uuid.UUID
	bound          bool
	release        func()

	currentCall   *CurrentCall
	incomingCall  *Invite
	callHistory   []domain.Call
	loading       bool
	startInFlight bool
}

// NewCoordinator creates a coordinator for the given session
func NewCoordinator(session Session, registry Registry, channel Channel, widget MediaWidget) *Coordinator {
	return &Coordinator{
		session:  session,
		registry: registry,
		channel:  channel,
		widget:   widget,
	}
}

// Bind attaches the coordinator to a conversation: it subscribes to the
// realtime channel and hydrates local state from the registry. Binding while
// already bound releases the previous subscription first. Hydration failures
// are logged, not surfaced; the coordinator still works for new actions.
func (c *Coordinator) Bind(ctx context.Context, conversationID uuid.UUID) {
	c.Unbind()

	release := c.channel.Subscribe(c.handleEvent)

	c.mu.Lock()
	c.conversationID = conversationID
	c.bound = true
	c.release = release
	c.mu.Unlock()

	c.hydrate(ctx, conversationID)
}

// Unbind detaches from the current conversation and releases the channel
// subscription. All local call state is dropped.
func (c *Coordinator) Unbind() {
	c.mu.Lock()
	release := c.release
	c.release = nil
	c.bound = false
	c.conversationID = uuid.Nil
	c.currentCall = nil
	c.incomingCall = nil
	c.callHistory = nil
	c.loading = false
	c.startInFlight = false
	c.mu.Unlock()

	if release != nil {
		release()
	}
}

// hydrate populates currentCall and callHistory from the registry
func (c *Coordinator) hydrate(ctx context.Context, conversationID uuid.UUID) {
	ongoing, err := c.registry.OngoingCall(ctx, conversationID)
	if err != nil {
		logger.Warn("Failed to hydrate ongoing call",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
	}

	history, err := c.registry.CallHistory(ctx, conversationID)
	if err != nil {
		logger.Warn("Failed to hydrate call history",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound || c.conversationID != conversationID {
		return
	}
	if ongoing != nil {
		c.currentCall = &CurrentCall{Call: *ongoing, JoinURL: c.widget.JoinURL(ongoing.RoomName)}
	}
	c.callHistory = history
}

// StartCall creates a call for the bound conversation and notifies the other
// participants. A second start while one is pending is rejected. Registry
// failures are surfaced to the caller and leave no local call state behind.
func (c *Coordinator) StartCall(ctx context.Context) (*CurrentCall, error) {
	c.mu.Lock()
	if !c.bound {
		c.mu.Unlock()
		return nil, ErrNotBound
	}
	if c.startInFlight {
		c.mu.Unlock()
		return nil, ErrStartInFlight
	}
	conversationID := c.conversationID
	c.startInFlight = true
	c.loading = true
	c.mu.Unlock()

	call, err := c.registry.StartCall(ctx, conversationID)

	c.mu.Lock()
	c.startInFlight = false
	c.loading = false
	if err != nil {
		c.mu.Unlock()
		return nil, apperrors.RequestError(err)
	}

	current := &CurrentCall{Call: *call, JoinURL: c.widget.JoinURL(call.RoomName)}
	c.currentCall = current
	c.mu.Unlock()

	c.publish(ctx, &domain.SignalEvent{
		Type:           domain.SignalStartVideoCall,
		ConversationID: conversationID,
		UserID:         c.session.UserID,
		RoomName:       call.RoomName,
		CallID:         call.ID,
	})

	return current, nil
}

// EndCall terminates the call. Teardown is best-effort: the registry request
// may fail, but peers are still notified and local state is cleared so the
// user is never stuck in a stale call view.
func (c *Coordinator) EndCall(ctx context.Context, callID uuid.UUID) {
	c.teardown(ctx, callID, domain.SignalEndVideoCall)
}

// HangupCall is a forced termination visible to all participants: peers are
// told to tear down unconditionally. Same best-effort policy as EndCall.
func (c *Coordinator) HangupCall(ctx context.Context, callID uuid.UUID) {
	c.teardown(ctx, callID, domain.SignalHangupVideoCall)
}

func (c *Coordinator) teardown(ctx context.Context, callID uuid.UUID, eventType string) {
	c.mu.Lock()
	conversationID := c.conversationID
	c.mu.Unlock()

	if _, err := c.registry.EndCall(ctx, callID); err != nil {
		logger.Warn("Failed to end call at registry, clearing local state anyway",
			zap.String("call_id", callID.String()),
			zap.Error(err))
	}

	c.publish(ctx, &domain.SignalEvent{
		Type:           eventType,
		ConversationID: conversationID,
		UserID:         c.session.UserID,
		CallID:         callID,
	})

	c.mu.Lock()
	c.currentCall = nil
	c.mu.Unlock()
}

// AcceptCall accepts the pending call offer. With no pending offer it is a
// no-op: no request is issued. On registry failure the offer is kept so the
// user may retry, and the error is surfaced.
func (c *Coordinator) AcceptCall(ctx context.Context) (*CurrentCall, error) {
	c.mu.Lock()
	invite := c.incomingCall
	conversationID := c.conversationID
	c.mu.Unlock()

	if invite == nil {
		return nil, nil
	}

	call, err := c.registry.AcceptCall(ctx, invite.RoomName)
	if err != nil {
		logger.Warn("Failed to accept call",
			zap.String("room_name", invite.RoomName),
			zap.Error(err))
		return nil, apperrors.RequestError(err)
	}

	current := &CurrentCall{Call: *call, JoinURL: c.widget.JoinURL(call.RoomName)}

	c.mu.Lock()
	c.currentCall = current
	c.incomingCall = nil
	c.mu.Unlock()

	c.publish(ctx, &domain.SignalEvent{
		Type:           domain.SignalAcceptVideoCall,
		ConversationID: conversationID,
		UserID:         c.session.UserID,
		RoomName:       call.RoomName,
		CallID:         call.ID,
	})

	return current, nil
}

// RejectCall rejects the pending call offer so the caller's pending call is
// cleared too. The offer is dropped locally regardless of the registry
// outcome. With no pending offer it is a no-op.
func (c *Coordinator) RejectCall(ctx context.Context) {
	c.mu.Lock()
	invite := c.incomingCall
	conversationID := c.conversationID
	c.mu.Unlock()

	if invite == nil {
		return
	}

	if err := c.registry.RejectCall(ctx, invite.CallID); err != nil {
		logger.Warn("Failed to reject call at registry, clearing local state anyway",
			zap.String("call_id", invite.CallID.String()),
			zap.Error(err))
	}

	c.publish(ctx, &domain.SignalEvent{
		Type:           domain.SignalRejectVideoCall,
		ConversationID: conversationID,
		UserID:         c.session.UserID,
		CallID:         invite.CallID,
	})

	c.mu.Lock()
	c.incomingCall = nil
	c.mu.Unlock()
}

// handleEvent reacts to notifications from the other participants. Clears
// are idempotent; an incoming offer overwrites any pending one.
func (c *Coordinator) handleEvent(event *domain.SignalEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.bound || event.ConversationID != c.conversationID {
		return
	}

	switch event.Type {
	case domain.SignalIncomingVideoCall:
		c.incomingCall = &Invite{
			RoomName: event.RoomName,
			CallerID: event.CallerID,
			CallID:   event.CallID,
		}
	case domain.SignalVideoCallRejected, domain.SignalVideoCallHungUp:
		c.currentCall = nil
		c.incomingCall = nil
	}
}

// publish emits a notification on the realtime channel. When the channel is
// not connected the event is skipped rather than queued; registry state is
// already settled at this point, peers simply learn about it late.
func (c *Coordinator) publish(ctx context.Context, event *domain.SignalEvent) {
	if !c.channel.Connected() {
		logger.Warn("Realtime channel unavailable, skipping signal",
			zap.String("type", event.Type),
			zap.String("conversation_id", event.ConversationID.String()))
		return
	}

	if err := c.channel.Publish(ctx, event); err != nil {
		logger.Warn("Failed to publish signal",
			zap.String("type", event.Type),
			zap.Error(err))
	}
}

// CurrentCall returns the local cached call, or nil
func (c *Coordinator) CurrentCall() *CurrentCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentCall
}

// IncomingCall returns the pending call offer, or nil
func (c *Coordinator) IncomingCall() *Invite {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.incomingCall
}

// CallHistory returns the hydrated call history, newest first
func (c *Coordinator) CallHistory() []domain.Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callHistory
}

// Loading reports whether a call start is in flight
func (c *Coordinator) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}
