package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// Stream derives an independent generator for one chain of one fit, so
	// prior sampling and fake engines reproduce for a fixed seed.
	Stream(ctx context.Context, fitID string, purpose string, chain int, baseSeed int64) (*rand.Rand, error)
}
