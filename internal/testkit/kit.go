package testkit

import (
	"context"
	"math/rand"

	"gobayes/app"
	"gobayes/ports"
)

// TestKit wires the fakes needed to fit models without CmdStan
type TestKit struct {
	engine *FakeEngine
	repo   *InMemoryFitRepository
	rng    *RNGAdapter
}

// NewTestKit creates a test kit with a fresh engine and repository
func NewTestKit() *TestKit {
	rng := &RNGAdapter{}
	return &TestKit{
		engine: NewFakeEngine(rng),
		repo:   NewInMemoryFitRepository(),
		rng:    rng,
	}
}

// Engine returns the fake sampler engine
func (t *TestKit) Engine() *FakeEngine {
	return t.engine
}

// RNGAdapter returns an RNG adapter
func (t *TestKit) RNGAdapter() ports.RNGPort {
	return t.rng
}

// FitRepository returns the shared in-memory repository
func (t *TestKit) FitRepository() *InMemoryFitRepository {
	return t.repo
}

// FitService returns a fit service backed by the fakes
func (t *TestKit) FitService() *app.FitService {
	return app.NewFitService(t.engine, t.rng, t.repo)
}

// RNGAdapter implements the RNGPort interface for testing
type RNGAdapter struct{}

// SeededStream creates a deterministic random number generator for a named operation
func (r *RNGAdapter) SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(int64(hashString(name)) + seed)), nil
}

// Stream derives a generator from the fit, purpose and chain. A fixed
// base seed reproduces the same stream regardless of the fit ID, so reruns
// of one request agree.
func (r *RNGAdapter) Stream(ctx context.Context, fitID, purpose string, chain int, baseSeed int64) (*rand.Rand, error) {
	seed := baseSeed
	if baseSeed == 0 && fitID != "" {
		seed = int64(hashString(fitID))
	}
	if purpose != "" {
		seed += int64(hashString(purpose))
	}
	seed += int64(chain) * 7919
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
