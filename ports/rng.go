package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream creates a deterministic RNG stream for a stage and key (e.g. one log
	// of a batch), so each key draws the same numbers regardless of processing order
	Stream(ctx context.Context, stageName, key string, baseSeed int64) (*rand.Rand, error)
}
