package domain

import (
	"time"
)

// User represents a user entity in the system.
// Only the public half of the user's box key pair is stored server-side;
// the private key never leaves the client.
// Maps to CockroachDB users table
type User struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	Username  string    `json:"username" db:"username"`
	PublicKey string    `json:"public_key" db:"public_key"` // Base64 curve25519 box key
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
