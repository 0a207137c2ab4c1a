package domain

import "errors"

// Sentinel errors shared by the repository implementations so services can
// branch without knowing the storage engine.
var (
	// ErrNotFound indicates the requested row does not exist
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a uniqueness constraint rejected the write.
	// For read receipts this is the serialization point of the first-write-wins
	// rule: the losing writer of a race lands here, not on a hard failure.
	ErrAlreadyExists = errors.New("already exists")
)
