// Package restclient implements the signaling.Registry boundary over the
// call registry's HTTP API.
package restclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"nurselink-backend/internal/domain"
)

// Client is a call registry API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a registry client authenticating with the given bearer token
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// envelope is the registry's standard response wrapper
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// doRequest executes one request against the registry and returns the data payload
func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("failed to decode response (status %d): %w", resp.StatusCode, err)
	}

	if resp.StatusCode >= 400 || !env.Success {
		if env.Error != nil {
			return nil, fmt.Errorf("registry error (status %d): %s: %s", resp.StatusCode, env.Error.Code, env.Error.Message)
		}
		return nil, fmt.Errorf("registry error (status %d)", resp.StatusCode)
	}

	return env.Data, nil
}

// StartCall creates a call for a conversation
// POST /video-calls/start
func (c *Client) StartCall(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/video-calls/start", map[string]string{
		"conversation_id": conversationID.String(),
	})
	if err != nil {
		return nil, err
	}

	return decodeCall(data)
}

// EndCall terminates a call
// PATCH /video-calls/{id}/end
func (c *Client) EndCall(ctx context.Context, callID uuid.UUID) (*domain.Call, error) {
	data, err := c.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/video-calls/%s/end", callID), nil)
	if err != nil {
		return nil, err
	}

	return decodeCall(data)
}

// AcceptCall resolves a call offer by room name
// POST /video-calls/accept
func (c *Client) AcceptCall(ctx context.Context, roomName string) (*domain.Call, error) {
	data, err := c.doRequest(ctx, http.MethodPost, "/video-calls/accept", map[string]string{
		"room_name": roomName,
	})
	if err != nil {
		return nil, err
	}

	return decodeCall(data)
}

// RejectCall terminates a call that was never accepted
// PATCH /video-calls/{id}/reject
func (c *Client) RejectCall(ctx context.Context, callID uuid.UUID) error {
	_, err := c.doRequest(ctx, http.MethodPatch, fmt.Sprintf("/video-calls/%s/reject", callID), nil)
	return err
}

// OngoingCall returns the unterminated call for a conversation, or nil
// GET /video-calls/conversation/{id}/ongoing
func (c *Client) OngoingCall(ctx context.Context, conversationID uuid.UUID) (*domain.Call, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/video-calls/conversation/%s/ongoing", conversationID), nil)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	return decodeCall(data)
}

// CallHistory returns past calls for a conversation, newest first
// GET /video-calls/conversation/{id}/history
func (c *Client) CallHistory(ctx context.Context, conversationID uuid.UUID) ([]domain.Call, error) {
	data, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/video-calls/conversation/%s/history", conversationID), nil)
	if err != nil {
		return nil, err
	}

	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var calls []domain.Call
	if err := json.Unmarshal(data, &calls); err != nil {
		return nil, fmt.Errorf("failed to decode call history: %w", err)
	}

	return calls, nil
}

func decodeCall(data json.RawMessage) (*domain.Call, error) {
	var call domain.Call
	if err := json.Unmarshal(data, &call); err != nil {
		return nil, fmt.Errorf("failed to decode call: %w", err)
	}
	return &call, nil
}
