package call

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"nurselink-backend/internal/domain"
	"nurselink-backend/internal/repository/postgres"
	"nurselink-backend/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.InitDefault()
	os.Exit(m.Run())
}

// MockCallRepository is a mock implementation of CallRepository
type MockCallRepository struct {
	mock.Mock
}

func (m *MockCallRepository) Create(ctx context.Context, call *domain.Call) error {
	args := m.Called(ctx, call)
	return args.Error(0)
}

func (m *MockCallRepository) GetByID(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, callID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetByRoomName(ctx context.Context, roomName string) (*domain.Call, error) {
	args := m.Called(ctx, roomName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetOngoing(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Call), args.Error(1)
}

func (m *MockCallRepository) GetHistory(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*domain.Call, error) {
	args := m.Called(ctx, conversationID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Call), args.Error(1)
}

func (m *MockCallRepository) MarkEnded(ctx context.Context, callID uuid.UUID) error {
	args := m.Called(ctx, callID)
	return args.Error(0)
}

// MockAuditLog is a mock implementation of AuditLog
type MockAuditLog struct {
	mock.Mock
}

func (m *MockAuditLog) Append(event *domain.CallEvent) error {
	args := m.Called(event)
	return args.Error(0)
}

// TestStartCall tests creating a new call
func TestStartCall(t *testing.T) {
	mockRepo := new(MockCallRepository)
	mockAudit := new(MockAuditLog)
	service := NewService(mockRepo, mockAudit, nil)

	conversationID := uuid.New()
	callerID := uuid.New()

	mockRepo.On("GetOngoing", mock.Anything, conversationID).Return(nil, postgres.ErrCallNotFound)
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)
	mockAudit.On("Append", mock.AnythingOfType("*domain.CallEvent")).Return(nil)

	call, err := service.StartCall(context.Background(), conversationID, callerID)

	assert.NoError(t, err)
	assert.NotNil(t, call)
	assert.Equal(t, conversationID, call.ConversationID)
	assert.Equal(t, callerID, call.StartedBy)
	assert.Equal(t, domain.CallStatusActive, call.Status)
	assert.True(t, strings.HasPrefix(call.RoomName, "room-"))

	mockRepo.AssertExpectations(t)
	mockAudit.AssertExpectations(t)
}

// TestStartCall_AlreadyInProgress tests starting a second call in the same conversation
func TestStartCall_AlreadyInProgress(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	conversationID := uuid.New()

	mockRepo.On("GetOngoing", mock.Anything, conversationID).Return(&domain.Call{
		ID:     uuid.New(),
		Status: domain.CallStatusActive,
	}, nil)

	call, err := service.StartCall(context.Background(), conversationID, uuid.New())

	assert.ErrorIs(t, err, ErrCallInProgress)
	assert.Nil(t, call)
	mockRepo.AssertNotCalled(t, "Create")
}

// TestAcceptCall tests resolving a call by room name
func TestAcceptCall(t *testing.T) {
	mockRepo := new(MockCallRepository)
	mockAudit := new(MockAuditLog)
	service := NewService(mockRepo, mockAudit, nil)

	existing := &domain.Call{
		ID:       uuid.New(),
		RoomName: "room-42-abc",
		Status:   domain.CallStatusActive,
	}

	mockRepo.On("GetByRoomName", mock.Anything, "room-42-abc").Return(existing, nil)
	mockAudit.On("Append", mock.AnythingOfType("*domain.CallEvent")).Return(nil)

	call, err := service.AcceptCall(context.Background(), "room-42-abc", uuid.New())

	assert.NoError(t, err)
	assert.Equal(t, existing.ID, call.ID)
	mockRepo.AssertExpectations(t)
	mockAudit.AssertExpectations(t)
}

// TestAcceptCall_Ended tests accepting a call that already ended
func TestAcceptCall_Ended(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	mockRepo.On("GetByRoomName", mock.Anything, "room-42-abc").Return(&domain.Call{
		ID:     uuid.New(),
		Status: domain.CallStatusEnded,
	}, nil)

	call, err := service.AcceptCall(context.Background(), "room-42-abc", uuid.New())

	assert.ErrorIs(t, err, ErrCallEnded)
	assert.Nil(t, call)
}

// TestEndCall tests terminating a call
func TestEndCall(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	callID := uuid.New()
	now := time.Now()
	ended := &domain.Call{
		ID:       callID,
		Status:   domain.CallStatusEnded,
		EndedAt:  &now,
		Duration: 42,
	}

	mockRepo.On("MarkEnded", mock.Anything, callID).Return(nil)
	mockRepo.On("GetByID", mock.Anything, callID).Return(ended, nil)

	call, err := service.EndCall(context.Background(), callID, uuid.New())

	assert.NoError(t, err)
	assert.Equal(t, domain.CallStatusEnded, call.Status)
	assert.Equal(t, 42, call.Duration)
	mockRepo.AssertExpectations(t)
}

// TestRejectCall tests rejecting a never-accepted call
func TestRejectCall(t *testing.T) {
	mockRepo := new(MockCallRepository)
	mockAudit := new(MockAuditLog)
	service := NewService(mockRepo, mockAudit, nil)

	callID := uuid.New()

	mockRepo.On("GetByID", mock.Anything, callID).Return(&domain.Call{ID: callID}, nil)
	mockRepo.On("MarkEnded", mock.Anything, callID).Return(nil)
	mockAudit.On("Append", mock.MatchedBy(func(e *domain.CallEvent) bool {
		return e.Kind == "rejected" && e.CallID == callID
	})).Return(nil)

	err := service.RejectCall(context.Background(), callID, uuid.New())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockAudit.AssertExpectations(t)
}

// TestOngoingCall_None tests conversations with no active call
func TestOngoingCall_None(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	conversationID := uuid.New()
	mockRepo.On("GetOngoing", mock.Anything, conversationID).Return(nil, postgres.ErrCallNotFound)

	call, err := service.OngoingCall(context.Background(), conversationID)

	assert.NoError(t, err)
	assert.Nil(t, call)
}

// TestCallHistory_DefaultLimit tests limit defaulting
func TestCallHistory_DefaultLimit(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	conversationID := uuid.New()
	calls := []*domain.Call{{ID: uuid.New(), ConversationID: conversationID}}

	mockRepo.On("GetHistory", mock.Anything, conversationID, 20, 0).Return(calls, nil)

	result, err := service.CallHistory(context.Background(), conversationID, 0, 0)

	assert.NoError(t, err)
	assert.Len(t, result, 1)
	mockRepo.AssertExpectations(t)
}

// TestCallHistory_LimitCap tests limit capping
func TestCallHistory_LimitCap(t *testing.T) {
	mockRepo := new(MockCallRepository)
	service := NewService(mockRepo, nil, nil)

	conversationID := uuid.New()

	mockRepo.On("GetHistory", mock.Anything, conversationID, 100, 0).Return([]*domain.Call{}, nil)

	_, err := service.CallHistory(context.Background(), conversationID, 500, 0)

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

// TestStartCall_AuditFailureIgnored tests that audit log errors never surface
func TestStartCall_AuditFailureIgnored(t *testing.T) {
	mockRepo := new(MockCallRepository)
	mockAudit := new(MockAuditLog)
	service := NewService(mockRepo, mockAudit, nil)

	conversationID := uuid.New()

	mockRepo.On("GetOngoing", mock.Anything, conversationID).Return(nil, postgres.ErrCallNotFound)
	mockRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.Call")).Return(nil)
	mockAudit.On("Append", mock.AnythingOfType("*domain.CallEvent")).Return(assert.AnError)

	call, err := service.StartCall(context.Background(), conversationID, uuid.New())

	assert.NoError(t, err)
	assert.NotNil(t, call)
}
