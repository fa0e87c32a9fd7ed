package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nurselink-backend/internal/domain"
	"nurselink-backend/internal/repository/postgres"
	"nurselink-backend/pkg/logger"
	"nurselink-backend/pkg/metrics"
)

// ErrCallInProgress is returned when a conversation already has an unterminated call
var ErrCallInProgress = errors.New("conversation already has an ongoing call")

// ErrCallEnded is returned when acting on a call that has already ended
var ErrCallEnded = errors.New("call has ended")

// CallRepository defines call persistence operations
type CallRepository interface {
	Create(ctx context.Context, call *domain.Call) error
	GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error)
	GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error)
	GetOngoing(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error)
	GetHistory(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Call, error)
	MarkEnded(ctx context.Context, callID uuid.UUID) error
}

// AuditLog defines the append-only call lifecycle trail
type AuditLog interface {
	Append(event *domain.CallEvent) error
}

// Service handles call registry business logic
type Service struct {
	calls   CallRepository
	audit   AuditLog         // optional, best-effort
	metrics *metrics.Metrics // optional
}

// NewService creates a new call service
func NewService(calls CallRepository, audit AuditLog, m *metrics.Metrics) *Service {
	return &Service{
		calls:   calls,
		audit:   audit,
		metrics: m,
	}
}

// StartCall creates a new call for a conversation.
// A conversation may hold at most one unterminated call at a time.
func (s *Service) StartCall(ctx context.Context, conversationID, callerID uuid.UUID) (*domain.Call, error) {
	if _, err := s.calls.GetOngoing(ctx, conversationID); err == nil {
		return nil, ErrCallInProgress
	} else if !errors.Is(err, postgres.ErrCallNotFound) {
		return nil, fmt.Errorf("failed to check ongoing call: %w", err)
	}

	call := &domain.Call{
		ID:             uuid.New(),
		ConversationID: conversationID,
		RoomName:       newRoomName(conversationID),
		StartedBy:      callerID,
		Status:         domain.CallStatusActive,
		StartedAt:      time.Now().UTC(),
	}

	if err := s.calls.Create(ctx, call); err != nil {
		return nil, fmt.Errorf("failed to create call record: %w", err)
	}

	s.recordEvent(call, callerID, "started")
	if s.metrics != nil {
		s.metrics.RecordCallStarted()
	}

	return call, nil
}

// AcceptCall resolves a call by its room name for a participant accepting the offer.
// Acceptance does not change registry state; it hands the accepting side the record
// it needs to join the media room.
func (s *Service) AcceptCall(ctx context.Context, roomName string, userID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetByRoomName(ctx, roomName)
	if err != nil {
		return nil, err
	}

	if call.Status == domain.CallStatusEnded {
		return nil, ErrCallEnded
	}

	s.recordEvent(call, userID, "accepted")

	return call, nil
}

// EndCall terminates a call and returns the updated record
func (s *Service) EndCall(ctx context.Context, callID, userID uuid.UUID) (*domain.Call, error) {
	if err := s.calls.MarkEnded(ctx, callID); err != nil {
		return nil, fmt.Errorf("failed to end call: %w", err)
	}

	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return nil, err
	}

	s.recordEvent(call, userID, "ended")
	if s.metrics != nil {
		s.metrics.RecordCallEnded(call.Duration)
	}

	return call, nil
}

// RejectCall terminates a call that was never accepted
func (s *Service) RejectCall(ctx context.Context, callID, userID uuid.UUID) error {
	call, err := s.calls.GetByID(ctx, callID)
	if err != nil {
		return err
	}

	if err := s.calls.MarkEnded(ctx, callID); err != nil {
		return fmt.Errorf("failed to reject call: %w", err)
	}

	s.recordEvent(call, userID, "rejected")

	return nil
}

// OngoingCall returns the unterminated call for a conversation, or nil when none exists
func (s *Service) OngoingCall(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error) {
	call, err := s.calls.GetOngoing(ctx, conversationID)
	if err != nil {
		if errors.Is(err, postgres.ErrCallNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return call, nil
}

// CallHistory returns past calls for a conversation, newest first
func (s *Service) CallHistory(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	if limit == 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	return s.calls.GetHistory(ctx, conversationID, limit, offset)
}

// recordEvent appends to the audit trail; failures are logged, never surfaced
func (s *Service) recordEvent(call *domain.Call, actorID uuid.UUID, kind string) {
	if s.audit == nil {
		return
	}

	err := s.audit.Append(&domain.CallEvent{
		CallID:         call.ID,
		ConversationID: call.ConversationID,
		ActorID:        actorID,
		Kind:           kind,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		logger.Warn("Failed to append call audit event",
			zap.String("call_id", call.ID.String()),
			zap.String("kind", kind),
			zap.Error(err))
	}
}

// newRoomName derives the opaque media room token for a call
func newRoomName(conversationID uuid.UUID) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("room-%s-%s", conversationID, suffix)
}
