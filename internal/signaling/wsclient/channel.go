// Package wsclient implements the signaling.Channel boundary over a
// WebSocket connection to the realtime hub.
package wsclient

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nurselink-backend/internal/domain"
	"nurselink-backend/pkg/apperrors"
	"nurselink-backend/pkg/logger"
)

const writeWait = 10 * time.Second

// Channel is a realtime channel connection for one conversation
type Channel struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	mu          sync.Mutex
	subscribers map[int]func(*domain.SignalEvent)
	nextID      int
	connected   bool

	done chan struct{}
}

// Dial connects to the hub's websocket endpoint for a conversation.
// Reconnecting after a drop is the caller's responsibility; the coordinator
// re-subscribes its handlers on the new Channel value.
func Dial(ctx context.Context, url, token string) (*Channel, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrCodeChannelUnavailable, "failed to connect realtime channel", err)
	}

	ch := &Channel{
		conn:        conn,
		subscribers: make(map[int]func(*domain.SignalEvent)),
		connected:   true,
		done:        make(chan struct{}),
	}

	go ch.readLoop()

	return ch, nil
}

// readLoop dispatches inbound events to subscribers until the connection drops
func (ch *Channel) readLoop() {
	defer func() {
		ch.mu.Lock()
		ch.connected = false
		ch.mu.Unlock()
		close(ch.done)
	}()

	for {
		_, message, err := ch.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("Realtime channel closed", zap.Error(err))
			}
			return
		}

		var event domain.SignalEvent
		if err := json.Unmarshal(message, &event); err != nil {
			logger.Warn("Invalid event on realtime channel", zap.Error(err))
			continue
		}

		ch.mu.Lock()
		handlers := make([]func(*domain.SignalEvent), 0, len(ch.subscribers))
		for _, handler := range ch.subscribers {
			handlers = append(handlers, handler)
		}
		ch.mu.Unlock()

		for _, handler := range handlers {
			handler(&event)
		}
	}
}

// Publish sends an event to the hub. When the connection is down it fails
// fast; events are never queued.
func (ch *Channel) Publish(ctx context.Context, event *domain.SignalEvent) error {
	if !ch.Connected() {
		return apperrors.ChannelUnavailableError()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ch.conn.SetWriteDeadline(deadline)

	return ch.conn.WriteMessage(websocket.TextMessage, payload)
}

// Subscribe registers a handler for inbound events and returns its release func
func (ch *Channel) Subscribe(handler func(*domain.SignalEvent)) func() {
	ch.mu.Lock()
	id := ch.nextID
	ch.nextID++
	ch.subscribers[id] = handler
	ch.mu.Unlock()

	return func() {
		ch.mu.Lock()
		delete(ch.subscribers, id)
		ch.mu.Unlock()
	}
}

// Connected reports whether the connection is up
func (ch *Channel) Connected() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.connected
}

// Done is closed when the connection has dropped
func (ch *Channel) Done() <-chan struct{} {
	return ch.done
}

// Close shuts the connection down
func (ch *Channel) Close() error {
	ch.writeMu.Lock()
	ch.conn.SetWriteDeadline(time.Now().Add(writeWait))
	ch.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	ch.writeMu.Unlock()

	return ch.conn.Close()
}
