package domain

import (
	"time"
)

// ReadReceipt marks a message as read by one user. Composite identity
// (MessageID, UserID); at most one receipt exists per pair - the first
// write wins and later writes are no-ops returning the original ReadAt.
// Maps to CockroachDB read_receipts table
type ReadReceipt struct {
	MessageID int64     `json:"message_id" db:"message_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ReadAt    time.Time `json:"read_at" db:"read_at"`
}
