package testkit

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/ports"
)

// InMemoryFitRepository implements ports.FitRepository with a map. Fits are
// kept as JSON snapshots, the same encoding the Postgres repository stores.
type InMemoryFitRepository struct {
	fits map[core.FitID]storedFit
	mu   sync.RWMutex
}

type storedFit struct {
	summary  ports.FitSummary
	snapshot []byte
}

func NewInMemoryFitRepository() *InMemoryFitRepository {
	return &InMemoryFitRepository{fits: make(map[core.FitID]storedFit)}
}

func (s *InMemoryFitRepository) Save(ctx context.Context, result *fit.Result) error {
	snapshot, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode fit %s: %w", result.ID(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fits[result.ID()] = storedFit{summary: ports.SummarizeFit(result), snapshot: snapshot}
	return nil
}

func (s *InMemoryFitRepository) Get(ctx context.Context, id core.FitID) (*fit.Result, error) {
	s.mu.RLock()
	stored, ok := s.fits[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrFitNotFound, id)
	}
	return fit.Decode(stored.snapshot)
}

// List returns the newest fits first
func (s *InMemoryFitRepository) List(ctx context.Context, limit int) ([]ports.FitSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ports.FitSummary, 0, len(s.fits))
	for _, stored := range s.fits {
		out = append(out, stored.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt, out[j].CreatedAt
		if ti.Time().Equal(tj.Time()) {
			return out[i].ID < out[j].ID
		}
		return ti.After(tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryFitRepository) Delete(ctx context.Context, id core.FitID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fits[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrFitNotFound, id)
	}
	delete(s.fits, id)
	return nil
}

// Len returns the number of stored fits
func (s *InMemoryFitRepository) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.fits)
}
