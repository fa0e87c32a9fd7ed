package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"nurselink-backend/internal/domain"
	"nurselink-backend/internal/middleware"
	"nurselink-backend/pkg/env"
	"nurselink-backend/pkg/logger"
	"nurselink-backend/pkg/metrics"
)

const (
	pingInterval = 60 * time.Second
	writeWait    = 10 * time.Second
)

// Hub relays call-signaling events between the participants of a conversation.
// Events published by one participant are translated into the notification the
// other participants should see and fanned out over Redis pub/sub, so peers
// connected to other instances receive them too.
type Hub struct {
	// Registered clients per conversation
	conversations map[uuid.UUID]map[*Client]bool

	// Cancel functions for conversation subscriptions
	subscriptionCancels map[uuid.UUID]context.CancelFunc

	redisClient *redis.Client

	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *domain.SignalEvent

	metrics *metrics.Metrics

	// Concurrency limit for WebSocket connections
	maxConnections int
	semaphore      chan struct{}
}

// Client represents one participant's realtime channel connection
type Client struct {
	hub            *Hub
	conn           *websocket.Conn
	send           chan []byte
	userID         uuid.UUID
	conversationID uuid.UUID
	ctx            context.Context
	cancel         context.CancelFunc
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		return middleware.AllowedOrigins()[origin]
	},
}

// NewHub creates a new signaling hub
func NewHub(redisClient *redis.Client, m *metrics.Metrics) *Hub {
	maxConns := env.GetInt("WS_MAX_CONNECTIONS", 1000)

	hub := &Hub{
		conversations:       make(map[uuid.UUID]map[*Client]bool),
		subscriptionCancels: make(map[uuid.UUID]context.CancelFunc),
		redisClient:         redisClient,
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		broadcast:           make(chan *domain.SignalEvent, 256),
		metrics:             m,
		maxConnections:      maxConns,
		semaphore:           make(chan struct{}, maxConns),
	}

	go hub.run()

	return hub
}

// translate maps an event published by one participant to the notification
// delivered to the other participants. Unknown types are dropped.
func translate(event *domain.SignalEvent) *domain.SignalEvent {
	out := *event
	switch event.Type {
	case domain.SignalStartVideoCall:
		out.Type = domain.SignalIncomingVideoCall
		out.CallerID = event.UserID
	case domain.SignalRejectVideoCall:
		out.Type = domain.SignalVideoCallRejected
	case domain.SignalHangupVideoCall, domain.SignalEndVideoCall:
		out.Type = domain.SignalVideoCallHungUp
	case domain.SignalAcceptVideoCall:
		// forwarded as-is
	default:
		return nil
	}
	return &out
}

// run handles hub operations
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.conversations[client.conversationID] == nil {
				h.conversations[client.conversationID] = make(map[*Client]bool)

				ctx, cancel := context.WithCancel(context.Background())
				h.subscriptionCancels[client.conversationID] = cancel

				go h.subscribeToConversation(ctx, client.conversationID)
			}
			h.conversations[client.conversationID][client] = true
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.WebSocketConnected()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.conversations[client.conversationID]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					client.cancel()

					if len(clients) == 0 {
						if cancel, ok := h.subscriptionCancels[client.conversationID]; ok {
							cancel()
							delete(h.subscriptionCancels, client.conversationID)
						}
						delete(h.conversations, client.conversationID)
					}
				}
			}
			h.mu.Unlock()

			if h.metrics != nil {
				h.metrics.WebSocketDisconnected()
			}

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

// deliver sends a translated event to every participant except its sender
func (h *Hub) deliver(event *domain.SignalEvent) {
	out := translate(event)
	if out == nil {
		logger.Warn("Dropping unknown signal event",
			zap.String("type", event.Type),
			zap.String("conversation_id", event.ConversationID.String()))
		return
	}

	if h.metrics != nil {
		h.metrics.RecordSignalEvent(out.Type)
	}

	// Full lock: slow clients are evicted during delivery
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.conversations[event.ConversationID]
	if !ok {
		return
	}

	payload, _ := json.Marshal(out)

	for client := range clients {
		if client.userID == event.UserID {
			continue
		}
		select {
		case client.send <- payload:
		default:
			close(client.send)
			delete(clients, client)
		}
	}
}

// conversationChannel is the Redis pub/sub channel for one conversation's signals
func conversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation:%s:signals", conversationID)
}

// publish fans an event out to all instances through Redis, falling back to
// local-only delivery when Redis is unavailable
func (h *Hub) publish(ctx context.Context, event *domain.SignalEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}

	if h.redisClient != nil {
		if err := h.redisClient.Publish(ctx, conversationChannel(event.ConversationID), payload).Err(); err == nil {
			return
		} else {
			logger.Warn("Failed to publish signal to redis, delivering locally",
				zap.String("conversation_id", event.ConversationID.String()),
				zap.Error(err))
		}
	}

	h.broadcast <- event
}

// subscribeToConversation subscribes to Redis pub/sub for a conversation
func (h *Hub) subscribeToConversation(ctx context.Context, conversationID uuid.UUID) {
	if h.redisClient == nil {
		return
	}

	pubsub := h.redisClient.Subscribe(ctx, conversationChannel(conversationID))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("Failed to subscribe to redis channel",
			zap.String("conversation_id", conversationID.String()),
			zap.Error(err))
		return
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if msg == nil {
				continue
			}
			var event domain.SignalEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				logger.Warn("Failed to unmarshal redis signal",
					zap.String("conversation_id", conversationID.String()),
					zap.Error(err))
				continue
			}

			h.broadcast <- &event
		}
	}
}

// ServeWS handles WebSocket requests for the realtime channel
// GET /ws/conversations/:id
func (h *Hub) ServeWS(c *gin.Context) {
	select {
	case h.semaphore <- struct{}{}:
		defer func() {
			<-h.semaphore
		}()
	default:
		logger.Warn("WebSocket connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server at capacity, please try again later"})
		return
	}

	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(400, gin.H{"error": "invalid conversation id"})
		return
	}

	userIDVal, exists := c.Get("user_id")
	if !exists {
		c.JSON(401, gin.H{"error": "unauthorized"})
		return
	}

	userID, ok := userIDVal.(uuid.UUID)
	if !ok {
		c.JSON(500, gin.H{"error": "invalid user_id"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("WebSocket upgrade failed",
			zap.String("conversation_id", conversationID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:            h,
		conn:           conn,
		send:           make(chan []byte, 256),
		userID:         userID,
		conversationID: conversationID,
		ctx:            ctx,
		cancel:         cancel,
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// readPump reads signal events from the WebSocket
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pingInterval))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket connection closed",
					zap.String("conversation_id", c.conversationID.String()),
					zap.String("user_id", c.userID.String()),
					zap.Error(err))
			}
			break
		}

		var event domain.SignalEvent
		if err := json.Unmarshal(message, &event); err != nil {
			logger.Warn("Invalid signal event from WebSocket",
				zap.String("conversation_id", c.conversationID.String()),
				zap.String("user_id", c.userID.String()),
				zap.Error(err))
			continue
		}

		// Sender identity and scope are never trusted from the payload
		event.UserID = c.userID
		event.ConversationID = c.conversationID
		event.Timestamp = time.Now().UTC()

		c.hub.publish(c.ctx, &event)
	}
}

// writePump writes events to the WebSocket
func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
