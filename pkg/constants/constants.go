// Package constants defines application-wide constants for timeouts, limits, and durations.
package constants

import "time"

// Time-related constants
const (
	// DefaultTimeout is the default timeout for most operations
	DefaultTimeout = 30 * time.Second

	// WebSocketPingInterval is the interval for WebSocket ping/pong
	WebSocketPingInterval = 60 * time.Second

	// WebSocketWriteTimeout is the per-frame write deadline
	WebSocketWriteTimeout = 10 * time.Second

	// GracefulShutdownTimeout is the timeout for graceful server shutdown
	GracefulShutdownTimeout = 30 * time.Second
)

// JWT-related constants
const (
	// AccessTokenExpiry is the default access token lifetime
	AccessTokenExpiry = 15 * time.Minute

	// RefreshTokenExpiry is the default refresh token lifetime
	RefreshTokenExpiry = 24 * time.Hour
)

// Database connection constants
const (
	// MaxConnLifetime is the maximum lifetime of a database connection
	MaxConnLifetime = 1 * time.Hour

	// MaxConnIdleTime is the maximum idle time for a database connection
	MaxConnIdleTime = 30 * time.Minute

	// HealthCheckPeriod is the interval between database health checks
	HealthCheckPeriod = 1 * time.Minute
)

// Encryption constants
const (
	// SessionKeySize is the size of the per-message symmetric key in bytes
	SessionKeySize = 32

	// AEADNonceSize is the AES-GCM IV size in bytes
	AEADNonceSize = 12

	// AEADTagSize is the AES-GCM authentication tag size in bytes
	AEADTagSize = 16

	// BoxNonceSize is the NaCl box nonce size in bytes
	BoxNonceSize = 24

	// DefaultParallelThreshold is the unique-recipient count at which
	// session-key sealing moves from inline to the worker pool
	DefaultParallelThreshold = 3

	// SealQueueCapacity bounds the pool's pending task queue
	SealQueueCapacity = 1024
)

// Call status constants
const (
	// CallStatusInitiated indicates a call is waiting to be answered
	CallStatusInitiated = "INITIATED"

	// CallStatusAnswered indicates a call is in progress
	CallStatusAnswered = "ANSWERED"

	// CallStatusRejected indicates the callee declined the call
	CallStatusRejected = "REJECTED"

	// CallStatusEnded indicates a call has ended
	CallStatusEnded = "ENDED"

	// CallModeAudio indicates an audio-only call
	CallModeAudio = "AUDIO"

	// CallModeVideo indicates a video call
	CallModeVideo = "VIDEO"
)

// Pagination constants
const (
	// DefaultPageSize is the default number of items per page
	DefaultPageSize = 20

	// MaxPageSize is the maximum number of items per page
	MaxPageSize = 100
)

// Message constants
const (
	// MaxMessageLength is the maximum allowed plaintext length
	MaxMessageLength = 10000
)
