package ws

import (
	"encoding/json"
	"strconv"
)

// Frame is the envelope for every inbound WebSocket message. AckID is
// client-chosen; when present, the response to that specific request comes
// back as an ack frame carrying the same id.
type Frame struct {
	Event string          `json:"event"`
	AckID string          `json:"ackId,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OutboundFrame is the envelope for every message written to a connection
type OutboundFrame struct {
	Event string `json:"event"`
	AckID string `json:"ackId,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// EventAck carries the acknowledgment for an inbound frame that asked for one
const EventAck = "ack"

// channelName builders for the Redis pub/sub bridge. Every event emitted to
// a room or a user goes through Redis so it reaches clients connected to any
// instance, including the emitting one.

func roomChannel(roomID int64) string {
	return "room:" + strconv.FormatInt(roomID, 10)
}

func userChannel(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}
