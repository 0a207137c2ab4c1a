package cassandra

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocql/gocql"

	"cipherlink-backend/internal/domain"
	"cipherlink-backend/pkg/metrics"
)

// MessageRepository handles encrypted message storage in Cassandra.
// Messages are partitioned by room; a denormalized messages_by_id table
// serves the protocol-side lookup of a message's room by message id alone.
type MessageRepository struct {
	session *gocql.Session
}

// NewMessageRepository creates a new MessageRepository
func NewMessageRepository(session *gocql.Session) *MessageRepository {
	return &MessageRepository{session: session}
}

// Save inserts a message row and its id->room lookup entry
func (r *MessageRepository) Save(ctx context.Context, message *domain.Message) error {
	batch := r.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)

	batch.Query(`
		INSERT INTO messages (
			chat_room_id, message_id, sender_id, ciphertext, encrypted_keys, created_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`,
		message.ChatRoomID,
		message.MessageID,
		message.SenderID,
		message.Ciphertext,
		message.EncryptedKeys,
		message.CreatedAt,
	)

	batch.Query(`
		INSERT INTO messages_by_id (message_id, chat_room_id)
		VALUES (?, ?)
	`,
		message.MessageID,
		message.ChatRoomID,
	)

	start := time.Now()
	err := r.session.ExecuteBatch(batch)
	metrics.RecordCassandraQuery("save", "messages", err, time.Since(start))
	if err != nil {
		return fmt.Errorf("failed to save message: %w", err)
	}

	return nil
}

// FindRoom resolves the room a message belongs to, or domain.ErrNotFound.
// This backs the read-receipt protocol's message-room consistency check.
func (r *MessageRepository) FindRoom(ctx context.Context, messageID int64) (int64, error) {
	query := `SELECT chat_room_id FROM messages_by_id WHERE message_id = ? LIMIT 1`

	var roomID int64
	start := time.Now()
	err := r.session.Query(query, messageID).WithContext(ctx).Scan(&roomID)
	metrics.RecordCassandraQuery("find_room", "messages_by_id", err, time.Since(start))
	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("failed to find message room: %w", err)
	}

	return roomID, nil
}

// GetByID retrieves a specific message from its room partition
func (r *MessageRepository) GetByID(ctx context.Context, roomID, messageID int64) (*domain.Message, error) {
	query := `
		SELECT chat_room_id, message_id, sender_id, ciphertext, encrypted_keys, created_at
		FROM messages
		WHERE chat_room_id = ? AND message_id = ?
		LIMIT 1
	`

	message := &domain.Message{}
	err := r.session.Query(query, roomID, messageID).WithContext(ctx).Scan(
		&message.ChatRoomID,
		&message.MessageID,
		&message.SenderID,
		&message.Ciphertext,
		&message.EncryptedKeys,
		&message.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, gocql.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return message, nil
}

// ListByRoom retrieves messages for a room with cursor-based pagination
func (r *MessageRepository) ListByRoom(ctx context.Context, roomID int64, limit int, pageState []byte) ([]*domain.Message, []byte, error) {
	query := `
		SELECT chat_room_id, message_id, sender_id, ciphertext, encrypted_keys, created_at
		FROM messages
		WHERE chat_room_id = ?
		ORDER BY message_id DESC
		LIMIT ?
	`

	start := time.Now()
	iter := r.session.Query(query, roomID, limit).WithContext(ctx).PageState(pageState).Iter()

	var messages []*domain.Message
	for {
		message := &domain.Message{}
		if !iter.Scan(
			&message.ChatRoomID,
			&message.MessageID,
			&message.SenderID,
			&message.Ciphertext,
			&message.EncryptedKeys,
			&message.CreatedAt,
		) {
			break
		}
		messages = append(messages, message)
	}

	err := iter.Close()
	metrics.RecordCassandraQuery("list_by_room", "messages", err, time.Since(start))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	return messages, iter.PageState(), nil
}
