package ports

import (
	"context"

	"gobayes/domain/core"
	"gobayes/domain/fit"
)

// FitSummary is the listing view of a stored fit
type FitSummary struct {
	ID        core.FitID     `json:"id"`
	Family    string         `json:"family"`
	Response  string         `json:"response"`
	Rows      int            `json:"rows"`
	Warnings  int            `json:"warnings"`
	CreatedAt core.Timestamp `json:"created_at"`
}

// FitRepository persists fit results. Get returns core.ErrFitNotFound for
// unknown IDs.
type FitRepository interface {
	Save(ctx context.Context, result *fit.Result) error
	Get(ctx context.Context, id core.FitID) (*fit.Result, error)
	List(ctx context.Context, limit int) ([]FitSummary, error)
	Delete(ctx context.Context, id core.FitID) error
}

// SummarizeFit builds the listing view of a result
func SummarizeFit(r *fit.Result) FitSummary {
	spec := r.Spec()
	return FitSummary{
		ID:        r.ID(),
		Family:    r.Family().String(),
		Response:  spec.Response.Variable,
		Rows:      r.Rows(),
		Warnings:  len(r.Warnings()),
		CreatedAt: r.CreatedAt(),
	}
}
