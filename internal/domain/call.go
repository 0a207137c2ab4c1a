package domain

import (
	"time"
)

// Call represents a 1-1 audio/video call.
// State machine: INITIATED -> ANSWERED -> ENDED, INITIATED -> REJECTED,
// INITIATED -> ENDED (hangup before answer). REJECTED and ENDED are terminal.
type Call struct {
	CallID     int64      `json:"call_id" db:"call_id"`
	CallerID   int64      `json:"caller_id" db:"caller_id"`
	CalleeID   int64      `json:"callee_id" db:"callee_id"`
	ChatID     int64      `json:"chat_id" db:"chat_id"`
	Mode       string     `json:"mode" db:"mode"`     // AUDIO, VIDEO
	Status     string     `json:"status" db:"status"` // INITIATED, ANSWERED, REJECTED, ENDED
	AcceptedAt *time.Time `json:"accepted_at,omitempty" db:"accepted_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty" db:"ended_at"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// IsTerminal reports whether the call admits no further transitions
func (c *Call) IsTerminal() bool {
	return c.Status == "REJECTED" || c.Status == "ENDED"
}

// IsParticipant reports whether userID is the caller or the callee
func (c *Call) IsParticipant(userID int64) bool {
	return c.CallerID == userID || c.CalleeID == userID
}

// PeerOf returns the other participant's id
func (c *Call) PeerOf(userID int64) int64 {
	if c.CallerID == userID {
		return c.CalleeID
	}
	return c.CallerID
}
