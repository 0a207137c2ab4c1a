package domain

import (
	"time"
)

// Message represents an end-to-end encrypted chat message.
// The body is a single AEAD ciphertext shared by all recipients; the session
// key that unlocks it is sealed once per recipient in EncryptedKeys, keyed by
// decimal user id. A member missing from EncryptedKeys at creation time can
// never read the message.
// Maps to the Cassandra messages table.
type Message struct {
	MessageID     int64             `json:"message_id" cql:"message_id"`
	ChatRoomID    int64             `json:"chat_room_id" cql:"chat_room_id"`
	SenderID      int64             `json:"sender_id" cql:"sender_id"`
	Ciphertext    string            `json:"ciphertext" cql:"ciphertext"`         // Base64: iv || tag || ct
	EncryptedKeys map[string]string `json:"encrypted_keys" cql:"encrypted_keys"` // userID -> sealed session key
	CreatedAt     time.Time         `json:"created_at" cql:"created_at"`
}

// MessageCreate represents data needed to send a message
type MessageCreate struct {
	Plaintext        string `json:"plaintext" binding:"required"`
	SenderPublicKey  string `json:"sender_public_key" binding:"required"`
	SenderPrivateKey string `json:"sender_private_key" binding:"required"`
}

// MessageResponse represents the message returned to clients
type MessageResponse struct {
	MessageID     int64             `json:"message_id"`
	ChatRoomID    int64             `json:"chat_room_id"`
	SenderID      int64             `json:"sender_id"`
	Ciphertext    string            `json:"ciphertext"`
	EncryptedKeys map[string]string `json:"encrypted_keys"`
	CreatedAt     time.Time         `json:"created_at"`
}
