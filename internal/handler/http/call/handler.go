package call

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nurselink-backend/internal/repository/postgres"
	"nurselink-backend/internal/service/call"
	"nurselink-backend/pkg/apperrors"
	"nurselink-backend/pkg/response"
)

// Handler handles call registry HTTP requests
type Handler struct {
	callService *call.Service
}

// NewHandler creates a new call handler
func NewHandler(callService *call.Service) *Handler {
	return &Handler{callService: callService}
}

// StartCallRequest represents the call start request body
type StartCallRequest struct {
	ConversationID string `json:"conversation_id" binding:"required,uuid"`
}

// AcceptCallRequest represents the call accept request body
type AcceptCallRequest struct {
	RoomName string `json:"room_name" binding:"required"`
}

// StartCall creates a new call for a conversation
// POST /video-calls/start
func (h *Handler) StartCall(c *gin.Context) {
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	callerID, ok := currentUserID(c)
	if !ok {
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	created, err := h.callService.StartCall(c.Request.Context(), conversationID, callerID)
	if err != nil {
		if errors.Is(err, call.ErrCallInProgress) {
			response.AppError(c, apperrors.CallInProgressError())
			return
		}
		response.InternalError(c, "Failed to start call")
		return
	}

	response.Success(c, http.StatusCreated, created)
}

// EndCall terminates a call
// PATCH /video-calls/:id/end
func (h *Handler) EndCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	ended, err := h.callService.EndCall(c.Request.Context(), callID, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrCallNotFound) {
			response.AppError(c, apperrors.CallNotFoundError())
			return
		}
		response.InternalError(c, "Failed to end call")
		return
	}

	response.Success(c, http.StatusOK, ended)
}

// AcceptCall resolves a call offer by room name for the accepting participant
// POST /video-calls/accept
func (h *Handler) AcceptCall(c *gin.Context) {
	var req AcceptCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ValidationError(c, err.Error())
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	accepted, err := h.callService.AcceptCall(c.Request.Context(), req.RoomName, userID)
	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrCallNotFound):
			response.AppError(c, apperrors.CallNotFoundError())
		case errors.Is(err, call.ErrCallEnded):
			response.AppError(c, apperrors.CallEndedError())
		default:
			response.InternalError(c, "Failed to accept call")
		}
		return
	}

	response.Success(c, http.StatusOK, accepted)
}

// RejectCall terminates a call that was never accepted
// PATCH /video-calls/:id/reject
func (h *Handler) RejectCall(c *gin.Context) {
	callID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid call ID")
		return
	}

	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	if err := h.callService.RejectCall(c.Request.Context(), callID, userID); err != nil {
		if errors.Is(err, postgres.ErrCallNotFound) {
			response.AppError(c, apperrors.CallNotFoundError())
			return
		}
		response.InternalError(c, "Failed to reject call")
		return
	}

	response.Success(c, http.StatusOK, nil)
}

// OngoingCall returns the unterminated call for a conversation, or null
// GET /video-calls/conversation/:id/ongoing
func (h *Handler) OngoingCall(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	ongoing, err := h.callService.OngoingCall(c.Request.Context(), conversationID)
	if err != nil {
		response.InternalError(c, "Failed to get ongoing call")
		return
	}

	// ongoing is nil when the conversation has no active call
	response.Success(c, http.StatusOK, ongoing)
}

// CallHistory returns past calls for a conversation, newest first
// GET /video-calls/conversation/:id/history
func (h *Handler) CallHistory(c *gin.Context) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.ValidationError(c, "Invalid conversation ID")
		return
	}

	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)

	history, err := h.callService.CallHistory(c.Request.Context(), conversationID, limit, offset)
	if err != nil {
		response.InternalError(c, "Failed to get call history")
		return
	}

	response.Success(c, http.StatusOK, history)
}

// currentUserID extracts the authenticated user from the Gin context
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		response.Unauthorized(c, "Not authenticated")
		return uuid.Nil, false
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		response.InternalError(c, "Invalid user ID")
		return uuid.Nil, false
	}

	return userID, true
}

func queryInt(c *gin.Context, key string, defaultValue int) int {
	raw := c.Query(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return defaultValue
	}
	return value
}
