// Package receipt implements the read-receipt protocol: a validated,
// idempotent, first-write-wins state machine driven by message:read events
// arriving over the persistent socket channel.
package receipt

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"cipherlink-backend/internal/domain"
	apperrors "cipherlink-backend/pkg/errors"
	"cipherlink-backend/pkg/metrics"
)

// MembershipStore checks room membership
type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
}

// MessageStore resolves a message's room
type MessageStore interface {
	FindRoom(ctx context.Context, messageID int64) (int64, error)
}

// ReceiptStore persists read receipts. Create must surface
// domain.ErrAlreadyExists on a duplicate (message, user) pair.
type ReceiptStore interface {
	Find(ctx context.Context, messageID, userID int64) (*domain.ReadReceipt, error)
	Create(ctx context.Context, messageID, userID int64) (*domain.ReadReceipt, error)
}

// Broadcaster fans an event out to every channel subscribed to a room
type Broadcaster interface {
	BroadcastToRoom(ctx context.Context, roomID int64, event string, payload any) error
}

// ReadEvent is the inbound message:read payload. Ids arrive as JSON numbers;
// pointers distinguish absent fields from zero values so malformed payloads
// can be rejected before any domain logic runs.
type ReadEvent struct {
	RoomID    *float64 `json:"roomId"`
	MessageID *float64 `json:"messageId"`
}

// Ack is the structured acknowledgment returned for every message:read event
type Ack struct {
	OK      bool       `json:"ok"`
	Error   string     `json:"error,omitempty"`
	Ignored bool       `json:"ignored,omitempty"`
	Created *bool      `json:"created,omitempty"`
	ReadAt  *time.Time `json:"readAt,omitempty"`
}

// ReadBroadcast is the message:read event rebroadcast to room subscribers
type ReadBroadcast struct {
	RoomID    int64     `json:"roomId"`
	MessageID int64     `json:"messageId"`
	UserID    int64     `json:"userId"`
	ReadAt    time.Time `json:"readAt"`
}

// EventRead is the event name used for both the inbound request and the
// rebroadcast to the room.
const EventRead = "message:read"

// Service drives the read-receipt state machine
type Service struct {
	memberships MembershipStore
	messages    MessageStore
	receipts    ReceiptStore
	broadcaster Broadcaster
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewService creates a new receipt service
func NewService(
	memberships MembershipStore,
	messages MessageStore,
	receipts ReceiptStore,
	broadcaster Broadcaster,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		memberships: memberships,
		messages:    messages,
		receipts:    receipts,
		broadcaster: broadcaster,
		metrics:     m,
		logger:      logger,
	}
}

// MarkRead handles one message:read event for the channel-bound user and
// always returns a structured acknowledgment; no failure escapes as a panic
// or unhandled error. Each validation step short-circuits with no side
// effects performed.
func (s *Service) MarkRead(ctx context.Context, userID int64, ev ReadEvent) Ack {
	// 1. Channel must be bound to an authenticated user
	if userID <= 0 {
		return s.reject(apperrors.ErrCodeUnauthorized)
	}

	// 2. Both ids must be finite integral numbers
	roomID, ok := toID(ev.RoomID)
	if !ok {
		return s.reject(apperrors.ErrCodeBadPayload)
	}
	messageID, ok := toID(ev.MessageID)
	if !ok {
		return s.reject(apperrors.ErrCodeBadPayload)
	}

	// 3. Client-optimistic ids (local, unconfirmed) are a benign no-op, not
	// an error: they routinely race ahead of the server-confirmed id
	if messageID <= 0 {
		s.record("ignored")
		return Ack{OK: true, Ignored: true}
	}

	// 4. Membership gate
	isMember, err := s.memberships.IsMember(ctx, roomID, userID)
	if err != nil {
		return s.serverError("membership check failed", err, userID, messageID)
	}
	if !isMember {
		return s.reject(apperrors.ErrCodeForbidden)
	}

	// 5. The message must live in the room the client claims
	actualRoom, err := s.messages.FindRoom(ctx, messageID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return s.serverError("message lookup failed", err, userID, messageID)
	}
	if errors.Is(err, domain.ErrNotFound) || actualRoom != roomID {
		return s.reject(apperrors.ErrCodeMessageNotInRoom)
	}

	// 6. Idempotent re-delivery: answer with the original readAt, no
	// rebroadcast - a reconnecting client replaying its queue must not
	// trigger duplicate-event storms
	existing, err := s.receipts.Find(ctx, messageID, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return s.serverError("receipt lookup failed", err, userID, messageID)
	}
	if existing != nil {
		s.record("duplicate")
		return ackExisting(existing.ReadAt)
	}

	// 7. Create, treating a lost create race as the already-exists branch:
	// the store's uniqueness constraint is the serialization point
	created, err := s.receipts.Create(ctx, messageID, userID)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			winner, findErr := s.receipts.Find(ctx, messageID, userID)
			if findErr != nil {
				return s.serverError("receipt re-read failed", findErr, userID, messageID)
			}
			s.record("duplicate")
			return ackExisting(winner.ReadAt)
		}
		return s.serverError("receipt create failed", err, userID, messageID)
	}

	// Exactly one broadcast per created receipt
	broadcast := ReadBroadcast{
		RoomID:    roomID,
		MessageID: messageID,
		UserID:    userID,
		ReadAt:    created.ReadAt,
	}
	if err := s.broadcaster.BroadcastToRoom(ctx, roomID, EventRead, broadcast); err != nil {
		// The receipt is durable; delivery is best-effort
		s.logger.Warn("read receipt broadcast failed",
			zap.Int64("room_id", roomID),
			zap.Int64("message_id", messageID),
			zap.Error(err))
	}

	s.record("created")
	yes := true
	return Ack{OK: true, Created: &yes, ReadAt: &created.ReadAt}
}

func ackExisting(readAt time.Time) Ack {
	no := false
	return Ack{OK: true, Created: &no, ReadAt: &readAt}
}

func (s *Service) reject(code apperrors.ErrorCode) Ack {
	s.record("rejected")
	return Ack{OK: false, Error: string(code)}
}

func (s *Service) serverError(msg string, err error, userID, messageID int64) Ack {
	s.logger.Error(msg,
		zap.Int64("user_id", userID),
		zap.Int64("message_id", messageID),
		zap.Error(err))
	s.record("error")
	return Ack{OK: false, Error: string(apperrors.ErrCodeInternal)}
}

func (s *Service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordReceipt(outcome)
	}
}

// toID accepts only finite, integral JSON numbers
func toID(v *float64) (int64, bool) {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0, false
	}
	if *v != math.Trunc(*v) {
		return 0, false
	}
	return int64(*v), true
}
