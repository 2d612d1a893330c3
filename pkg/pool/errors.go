package pool

import "github.com/mvandermade/poolkeeper/internal/poolcore"

// Re-exported sentinel errors, so callers never need to import
// internal/poolcore directly.
var (
	ErrFull           = poolcore.ErrFull
	ErrPoolStopped    = poolcore.ErrPoolStopped
	ErrInvalidMessage = poolcore.ErrInvalidMessage
	ErrTimeout        = poolcore.ErrTimeout
	ErrSpawnFailed    = poolcore.ErrSpawnFailed
)
