// Package chat implements the message send/history pipeline: resolve room
// members and their public keys, run the fan-out encryption, persist the
// envelope, and publish it to the room channel.
package chat

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/internal/service/encryption"
	"cipherlink-backend/pkg/constants"
	apperrors "cipherlink-backend/pkg/errors"
	"cipherlink-backend/pkg/metrics"
)

// EventNewMessage is published to the room channel for every stored message
const EventNewMessage = "message:new"

// MembershipStore resolves room membership
type MembershipStore interface {
	IsMember(ctx context.Context, roomID, userID int64) (bool, error)
	ListMemberIDs(ctx context.Context, roomID int64) ([]int64, error)
}

// UserStore resolves users and their published box keys
type UserStore interface {
	GetByIDs(ctx context.Context, userIDs []int64) ([]*domain.User, error)
}

// MessageStore persists encrypted messages
type MessageStore interface {
	Save(ctx context.Context, message *domain.Message) error
	ListByRoom(ctx context.Context, roomID int64, limit int, pageState []byte) ([]*domain.Message, []byte, error)
}

// Encryptor runs the fan-out encryption pipeline
type Encryptor interface {
	EncryptForParticipants(plaintext string, sender encryption.Identity, recipients []encryption.Recipient) (*encryption.Envelope, error)
}

// Publisher fans an event out to every channel subscribed to a room
type Publisher interface {
	BroadcastToRoom(ctx context.Context, roomID int64, event string, payload any) error
}

// Service handles chat business logic
type Service struct {
	memberships MembershipStore
	users       UserStore
	messages    MessageStore
	encryptor   Encryptor
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewService creates a new chat service
func NewService(
	memberships MembershipStore,
	users UserStore,
	messages MessageStore,
	encryptor Encryptor,
	publisher Publisher,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		memberships: memberships,
		users:       users,
		messages:    messages,
		encryptor:   encryptor,
		publisher:   publisher,
		metrics:     m,
		logger:      logger,
	}
}

// SendMessageInput contains message data
type SendMessageInput struct {
	RoomID           int64
	SenderID         int64
	Plaintext        string
	SenderPublicKey  string
	SenderPrivateKey string
}

// SendMessageOutput contains sent message info. UnreachableUserIDs lists
// members with no published key: the message carries no sealed key for them,
// so they can never decrypt it and the sender should know.
type SendMessageOutput struct {
	Message            *domain.MessageResponse
	UnreachableUserIDs []int64
}

// SendMessage encrypts a message for every room member, stores the envelope,
// and publishes it to the room channel. Only ciphertext and sealed keys ever
// leave this function; the plaintext is not persisted or forwarded.
func (s *Service) SendMessage(ctx context.Context, input *SendMessageInput) (*SendMessageOutput, error) {
	if input.Plaintext == "" {
		return nil, apperrors.BadPayload("message plaintext is required")
	}
	if len(input.Plaintext) > constants.MaxMessageLength {
		return nil, apperrors.BadPayload("message exceeds maximum length")
	}
	if input.SenderPublicKey == "" || input.SenderPrivateKey == "" {
		return nil, apperrors.BadPayload("sender key pair is required")
	}

	isMember, err := s.memberships.IsMember(ctx, input.RoomID, input.SenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !isMember {
		return nil, apperrors.Forbidden("not a member of this room")
	}

	recipients, unreachable, err := s.resolveRecipients(ctx, input.RoomID)
	if err != nil {
		return nil, err
	}

	envelope, err := s.encryptor.EncryptForParticipants(
		input.Plaintext,
		encryption.Identity{
			ID:         input.SenderID,
			PublicKey:  input.SenderPublicKey,
			PrivateKey: input.SenderPrivateKey,
		},
		recipients,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt message: %w", err)
	}

	message := &domain.Message{
		MessageID:     nextMessageID(),
		ChatRoomID:    input.RoomID,
		SenderID:      input.SenderID,
		Ciphertext:    envelope.Ciphertext,
		EncryptedKeys: envelope.EncryptedKeys,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.messages.Save(ctx, message); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordMessageSent()
	}

	response := toResponse(message)

	// The message is durable; real-time delivery is best-effort and clients
	// catch up from history on reconnect
	if err := s.publisher.BroadcastToRoom(ctx, input.RoomID, EventNewMessage, response); err != nil {
		s.logger.Warn("message publish failed",
			zap.Int64("room_id", input.RoomID),
			zap.Int64("message_id", message.MessageID),
			zap.Error(err))
	}

	return &SendMessageOutput{Message: response, UnreachableUserIDs: unreachable}, nil
}

// resolveRecipients loads the room's members and their published public keys.
// Members without a published key are skipped, not failed: there is nothing
// to seal for them and one stale account must not block a room. Their ids are
// returned so the sender learns who cannot read the message.
func (s *Service) resolveRecipients(ctx context.Context, roomID int64) ([]encryption.Recipient, []int64, error) {
	memberIDs, err := s.memberships.ListMemberIDs(ctx, roomID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list room members: %w", err)
	}

	members, err := s.users.GetByIDs(ctx, memberIDs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load member keys: %w", err)
	}

	recipients := make([]encryption.Recipient, 0, len(members))
	var unreachable []int64
	for _, member := range members {
		if member.PublicKey == "" {
			s.logger.Warn("room member has no published key",
				zap.Int64("room_id", roomID),
				zap.Int64("user_id", member.UserID))
			unreachable = append(unreachable, member.UserID)
			continue
		}
		recipients = append(recipients, encryption.Recipient{
			ID:        member.UserID,
			PublicKey: member.PublicKey,
		})
	}
	return recipients, unreachable, nil
}

// GetMessagesInput contains query parameters
type GetMessagesInput struct {
	RoomID    int64
	UserID    int64
	Limit     int
	PageState []byte
}

// GetMessagesOutput contains message list
type GetMessagesOutput struct {
	Messages      []*domain.MessageResponse
	NextPageState []byte
	HasMore       bool
}

// GetMessages retrieves room history with cursor-based pagination. Envelopes
// come back as stored; decryption happens on the client.
func (s *Service) GetMessages(ctx context.Context, input *GetMessagesInput) (*GetMessagesOutput, error) {
	isMember, err := s.memberships.IsMember(ctx, input.RoomID, input.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if !isMember {
		return nil, apperrors.Forbidden("not a member of this room")
	}

	limit := input.Limit
	if limit < 1 {
		limit = constants.DefaultPageSize
	}
	if limit > constants.MaxPageSize {
		limit = constants.MaxPageSize
	}

	messages, nextPageState, err := s.messages.ListByRoom(ctx, input.RoomID, limit, input.PageState)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}

	responses := make([]*domain.MessageResponse, len(messages))
	for i, message := range messages {
		responses[i] = toResponse(message)
	}

	return &GetMessagesOutput{
		Messages:      responses,
		NextPageState: nextPageState,
		HasMore:       len(nextPageState) > 0,
	}, nil
}

func toResponse(message *domain.Message) *domain.MessageResponse {
	return &domain.MessageResponse{
		MessageID:     message.MessageID,
		ChatRoomID:    message.ChatRoomID,
		SenderID:      message.SenderID,
		Ciphertext:    message.Ciphertext,
		EncryptedKeys: message.EncryptedKeys,
		CreatedAt:     message.CreatedAt,
	}
}

var lastMessageID atomic.Int64

// nextMessageID issues time-ordered ids: microsecond timestamps bumped past
// the previous id when two messages land in the same microsecond.
func nextMessageID() int64 {
	for {
		id := time.Now().UnixMicro()
		last := lastMessageID.Load()
		if id <= last {
			id = last + 1
		}
		if lastMessageID.CompareAndSwap(last, id) {
			return id
		}
	}
}
