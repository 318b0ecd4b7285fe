package rng

import (
	"context"
	"math/rand"

	"gocka/ports"
)

// SeededAdapter implements ports.RNGPort with math/rand sources
type SeededAdapter struct{}

// NewSeededAdapter creates the production RNG adapter
func NewSeededAdapter() *SeededAdapter {
	return &SeededAdapter{}
}

var _ ports.RNGPort = (*SeededAdapter)(nil)

// SeededStream creates a deterministic random number generator for a named operation
func (a *SeededAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed)), nil
}

// Stream mixes the stage name and key into the base seed, so the same
// (stage, key, seed) triple always yields the same sequence.
func (a *SeededAdapter) Stream(ctx context.Context, stageName, key string, baseSeed int64) (*rand.Rand, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seed := baseSeed
	if stageName != "" {
		seed = int64(hashString(stageName)) + seed
	}
	if key != "" {
		seed = int64(hashString(key)) + seed
	}
	return rand.New(rand.NewSource(seed)), nil
}

// hashString creates a simple hash for deterministic seeding
func hashString(s string) uint32 {
	var hash uint32 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint32(c) // djb2
	}
	return hash
}
