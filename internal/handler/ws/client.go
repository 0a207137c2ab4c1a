package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"cipherlink-backend/internal/service/call"
	"cipherlink-backend/internal/service/receipt"
	"cipherlink-backend/pkg/constants"
	apperrors "cipherlink-backend/pkg/errors"
	"cipherlink-backend/pkg/logger"
)

// Client represents one WebSocket connection bound to an authenticated user
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	userID  int64
	roomID  int64
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
}

// subscriptions lists the Redis channels feeding this connection: always the
// user's private channel, plus the room channel when one was requested.
func (c *Client) subscriptions() []string {
	channels := []string{userChannel(c.userID)}
	if c.roomID > 0 {
		channels = append(channels, roomChannel(c.roomID))
	}
	return channels
}

// readPump reads frames from the WebSocket and dispatches them
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		c.cancel()
		c.release()
		if c.hub.metrics != nil {
			c.hub.metrics.DecWebSocketConnections()
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.WebSocketPingInterval))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("connection closed",
					zap.Int64("user_id", c.userID),
					zap.Error(err))
			}
			break
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			logger.Warn("invalid frame",
				zap.Int64("user_id", c.userID),
				zap.Error(err))
			if c.hub.metrics != nil {
				c.hub.metrics.RecordWebSocketError("invalid_frame")
			}
			continue
		}

		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketEvent(frame.Event, "in")
		}
		c.dispatch(frame)
	}
}

// dispatch routes one inbound frame to its protocol service. Every path
// returns normally; a protocol failure becomes an ack or an emitted error
// event, never a dropped connection.
func (c *Client) dispatch(frame Frame) {
	ctx, cancel := context.WithTimeout(c.ctx, constants.DefaultTimeout)
	defer cancel()

	switch frame.Event {
	case receipt.EventRead:
		var ev receipt.ReadEvent
		if err := json.Unmarshal(frame.Data, &ev); err != nil {
			c.ack(frame.AckID, receipt.Ack{OK: false, Error: string(apperrors.ErrCodeBadPayload)})
			return
		}
		c.ack(frame.AckID, c.hub.receipts.MarkRead(ctx, c.userID, ev))

	case call.EventInvite:
		var ev call.InviteEvent
		if !c.decode(frame, &ev) {
			return
		}
		c.logIfFailed(frame.Event, c.hub.calls.Invite(ctx, c.userID, ev))

	case call.EventAnswer:
		var ev call.AnswerEvent
		if !c.decode(frame, &ev) {
			return
		}
		c.logIfFailed(frame.Event, c.hub.calls.Answer(ctx, c.userID, ev))

	case call.EventCandidate:
		var ev call.CandidateEvent
		if !c.decode(frame, &ev) {
			return
		}
		c.logIfFailed(frame.Event, c.hub.calls.Candidate(ctx, c.userID, ev))

	case call.EventHangup:
		var ev call.HangupEvent
		if !c.decode(frame, &ev) {
			return
		}
		c.logIfFailed(frame.Event, c.hub.calls.Hangup(ctx, c.userID, ev))

	default:
		logger.Debug("unknown event",
			zap.Int64("user_id", c.userID),
			zap.String("event", frame.Event))
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketError("unknown_event")
		}
	}
}

func (c *Client) decode(frame Frame, dst any) bool {
	if err := json.Unmarshal(frame.Data, dst); err != nil {
		logger.Warn("malformed event payload",
			zap.Int64("user_id", c.userID),
			zap.String("event", frame.Event),
			zap.Error(err))
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketError("malformed_payload")
		}
		return false
	}
	return true
}

func (c *Client) logIfFailed(event string, err error) {
	if err != nil {
		logger.Error("event handling failed",
			zap.Int64("user_id", c.userID),
			zap.String("event", event),
			zap.Error(err))
	}
}

// ack answers the requesting connection only, and only when it asked for one
func (c *Client) ack(ackID string, data any) {
	if ackID == "" {
		return
	}

	frame, err := json.Marshal(OutboundFrame{Event: EventAck, AckID: ackID, Data: data})
	if err != nil {
		logger.Error("failed to marshal ack", zap.Error(err))
		return
	}

	select {
	case c.send <- frame:
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketEvent(EventAck, "out")
		}
	default:
		if c.hub.metrics != nil {
			c.hub.metrics.RecordWebSocketError("ack_dropped")
		}
	}
}

// writePump writes messages to the WebSocket and keeps the connection alive
func (c *Client) writePump() {
	ticker := time.NewTicker(constants.WebSocketPingInterval * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
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
			c.conn.SetWriteDeadline(time.Now().Add(constants.WebSocketWriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
