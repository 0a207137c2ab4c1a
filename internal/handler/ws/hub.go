// Package ws is the real-time transport: one WebSocket hub carrying chat
// events, read receipts and call signaling. Connections are bound to an
// authenticated user; events fan out through Redis pub/sub channels
// (room:<id>, user:<id>) so delivery reaches clients on every instance.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"cipherlink-backend/internal/service/call"
	"cipherlink-backend/internal/service/receipt"
	"cipherlink-backend/pkg/env"
	"cipherlink-backend/pkg/logger"
	"cipherlink-backend/pkg/metrics"
)

// ReceiptHandler processes message:read events
type ReceiptHandler interface {
	MarkRead(ctx context.Context, userID int64, ev receipt.ReadEvent) receipt.Ack
}

// CallHandler processes call signaling events
type CallHandler interface {
	Invite(ctx context.Context, userID int64, ev call.InviteEvent) error
	Answer(ctx context.Context, userID int64, ev call.AnswerEvent) error
	Candidate(ctx context.Context, userID int64, ev call.CandidateEvent) error
	Hangup(ctx context.Context, userID int64, ev call.HangupEvent) error
}

type delivery struct {
	channel string
	payload []byte
}

// Hub manages WebSocket connections and bridges them to Redis pub/sub
type Hub struct {
	// Registered clients per channel (room:<id> and user:<id>)
	channels map[string]map[*Client]bool

	// Cancel functions for channel subscriptions
	subscriptionCancels map[string]context.CancelFunc

	// Redis client for Pub/Sub
	redisClient *redis.Client

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Channels
	register   chan *Client
	unregister chan *Client
	deliver    chan *delivery

	// Protocol services, bound after construction
	receipts ReceiptHandler
	calls    CallHandler

	// Concurrency limit for concurrent WebSocket connections
	maxConnections int
	semaphore      chan struct{}

	metrics *metrics.Metrics
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		allowed := env.GetString("WS_ALLOWED_ORIGINS", "")
		if allowed == "" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return false
		}
		for _, candidate := range strings.Split(allowed, ",") {
			if origin == strings.TrimSpace(candidate) {
				return true
			}
		}
		return false
	},
}

// NewHub creates a new hub and starts its event loop
func NewHub(redisClient *redis.Client, m *metrics.Metrics) *Hub {
	maxConns := env.GetInt("WS_MAX_CONNECTIONS", 1000)
	if maxConns < 1 {
		maxConns = 1000
	}

	hub := &Hub{
		channels:            make(map[string]map[*Client]bool),
		subscriptionCancels: make(map[string]context.CancelFunc),
		redisClient:         redisClient,
		register:            make(chan *Client),
		unregister:          make(chan *Client),
		deliver:             make(chan *delivery, 256),
		maxConnections:      maxConns,
		semaphore:           make(chan struct{}, maxConns),
		metrics:             m,
	}

	go hub.run()

	return hub
}

// Bind attaches the protocol services that inbound frames dispatch to.
// Separate from NewHub because those services emit through the hub itself.
func (h *Hub) Bind(receipts ReceiptHandler, calls CallHandler) {
	h.receipts = receipts
	h.calls = calls
}

// run handles hub operations
func (h *Hub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			for _, channel := range client.subscriptions() {
				if h.channels[channel] == nil {
					h.channels[channel] = make(map[*Client]bool)

					// First local client for this channel: open the Redis
					// subscription that feeds it
					ctx, cancel := context.WithCancel(context.Background())
					h.subscriptionCancels[channel] = cancel
					go h.subscribe(ctx, channel)
				}
				h.channels[channel][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			closed := false
			for _, channel := range client.subscriptions() {
				clients, ok := h.channels[channel]
				if !ok {
					continue
				}
				if _, exists := clients[client]; exists {
					delete(clients, client)
					if !closed {
						close(client.send)
						closed = true
					}
				}
				if len(clients) == 0 {
					if cancel, ok := h.subscriptionCancels[channel]; ok {
						cancel()
						delete(h.subscriptionCancels, channel)
					}
					delete(h.channels, channel)
				}
			}
			h.mu.Unlock()

		case d := <-h.deliver:
			h.mu.Lock()
			if clients, ok := h.channels[d.channel]; ok {
				for client := range clients {
					select {
					case client.send <- d.payload:
					default:
						// Slow client: close the socket and let its readPump
						// run the normal unregister path
						delete(clients, client)
						client.conn.Close()
						if h.metrics != nil {
							h.metrics.RecordWebSocketError("slow_client_evicted")
						}
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// subscribe pumps one Redis channel into local delivery until canceled
func (h *Hub) subscribe(ctx context.Context, channel string) {
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		logger.Error("failed to subscribe to channel",
			zap.String("channel", channel),
			zap.Error(err))
		if h.metrics != nil {
			h.metrics.RecordWebSocketError("subscribe_failed")
		}
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
			h.deliver <- &delivery{channel: channel, payload: []byte(msg.Payload)}
		}
	}
}

// BroadcastToRoom publishes an event to every channel subscribed to a room
func (h *Hub) BroadcastToRoom(ctx context.Context, roomID int64, event string, payload any) error {
	return h.publish(ctx, roomChannel(roomID), event, payload)
}

// EmitToUser publishes an event to one user's private channel
func (h *Hub) EmitToUser(ctx context.Context, userID int64, event string, payload any) error {
	return h.publish(ctx, userChannel(userID), event, payload)
}

func (h *Hub) publish(ctx context.Context, channel, event string, payload any) error {
	frame, err := json.Marshal(OutboundFrame{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("failed to marshal %s frame: %w", event, err)
	}

	if err := h.redisClient.Publish(ctx, channel, frame).Err(); err != nil {
		if h.metrics != nil {
			h.metrics.RecordWebSocketError("publish_failed")
		}
		return fmt.Errorf("failed to publish %s to %s: %w", event, channel, err)
	}

	if h.metrics != nil {
		h.metrics.RecordWebSocketEvent(event, "out")
	}
	return nil
}

// ServeWS upgrades an authenticated HTTP request to a hub connection.
// room_id is optional: clients subscribe to a room for chat events; the
// per-user private channel is always attached.
func (h *Hub) ServeWS(c *gin.Context) {
	// Connection cap: reject before upgrading
	select {
	case h.semaphore <- struct{}{}:
	default:
		logger.Warn("connection rejected: max connections reached",
			zap.Int("max_connections", h.maxConnections))
		if h.metrics != nil {
			h.metrics.RecordWebSocketError("capacity_rejected")
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server at capacity, please try again later"})
		return
	}
	release := func() { <-h.semaphore }

	userIDVal, exists := c.Get("user_id")
	if !exists {
		release()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, ok := userIDVal.(int64)
	if !ok || userID <= 0 {
		release()
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid user_id"})
		return
	}

	var roomID int64
	if roomIDStr := c.Query("room_id"); roomIDStr != "" {
		parsed, err := strconv.ParseInt(roomIDStr, 10, 64)
		if err != nil || parsed <= 0 {
			release()
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room_id"})
			return
		}
		roomID = parsed
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		release()
		logger.Warn("upgrade failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := &Client{
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, 256),
		userID:  userID,
		roomID:  roomID,
		ctx:     ctx,
		cancel:  cancel,
		release: release,
	}

	if h.metrics != nil {
		h.metrics.IncWebSocketConnections()
	}

	client.hub.register <- client

	// Start goroutines for read/write
	go client.writePump()
	go client.readPump()
}
