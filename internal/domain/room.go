package domain

import (
	"time"
)

// RoomMembership ties a user to a chat room. Membership gates every
// room-scoped protocol event.
// Maps to CockroachDB room_members table
type RoomMembership struct {
	RoomID   int64     `json:"room_id" db:"room_id"`
	UserID   int64     `json:"user_id" db:"user_id"`
	JoinedAt time.Time `json:"joined_at" db:"joined_at"`
}
