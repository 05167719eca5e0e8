package api

import (
	"time"

	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/internal/hypothesis"
	"gobayes/internal/report"
)

// DataBody carries a dataset inline as a header and string rows, the way
// it would be read from a CSV file. Empty cells and NA are missing.
type DataBody struct {
	Name    string     `json:"name"`
	Header  []string   `json:"header" binding:"required,min=1,dive,required"`
	Rows    [][]string `json:"rows" binding:"required,min=1"`
	Factors []string   `json:"factors,omitempty"`
}

func (d DataBody) dataset() (*dataset.Dataset, error) {
	name := d.Name
	if name == "" {
		name = "request"
	}
	return dataset.FromRecordsWithFactors(name, d.Header, d.Rows, d.Factors)
}

// CreateFitRequest is the body of POST /api/fits
type CreateFitRequest struct {
	Model       model.Spec       `json:"model" binding:"required"`
	Data        DataBody         `json:"data" binding:"required"`
	Priors      prior.Spec       `json:"priors,omitempty" binding:"omitempty,dive"`
	Control     *sampler.Control `json:"control,omitempty"`
	SamplePrior bool             `json:"sample_prior,omitempty"`
}

// HypothesisRequest is the body of POST /api/fits/:id/hypothesis
type HypothesisRequest struct {
	Hypotheses []string `json:"hypotheses" binding:"required,min=1,dive,required"`
	Class      string   `json:"class,omitempty"`
	Group      string   `json:"group,omitempty"`
	Alpha      float64  `json:"alpha,omitempty" binding:"omitempty,gt=0,lt=1"`
}

func (r HypothesisRequest) options() hypothesis.Options {
	return hypothesis.Options{Class: r.Class, Group: r.Group, Alpha: r.Alpha}
}

// CompareRequest is the body of POST /api/compare
type CompareRequest struct {
	A         string `json:"a" binding:"required,uuid"`
	B         string `json:"b" binding:"required,uuid"`
	Criterion string `json:"criterion,omitempty" binding:"omitempty,oneof=loo waic"`
}

// FitView describes a stored fit without its draws
type FitView struct {
	ID                 string                 `json:"id"`
	Fingerprint        string                 `json:"fingerprint"`
	DatasetFingerprint string                 `json:"dataset_fingerprint"`
	Model              model.Spec             `json:"model"`
	Formula            string                 `json:"formula"`
	Family             string                 `json:"family"`
	Rows               int                    `json:"rows"`
	Chains             int                    `json:"chains"`
	DrawsPerChain      int                    `json:"draws_per_chain"`
	Parameters         []string               `json:"parameters"`
	Priors             []prior.Resolved       `json:"priors"`
	Control            sampler.Control        `json:"control"`
	Warnings           []fit.Warning          `json:"warnings,omitempty"`
	Diagnostics        fit.SamplerDiagnostics `json:"diagnostics"`
	CreatedAt          time.Time              `json:"created_at"`
	ElapsedMillis      int64                  `json:"elapsed_ms"`
}

func newFitView(r *fit.Result) FitView {
	return FitView{
		ID:                 r.ID().String(),
		Fingerprint:        r.Fingerprint().String(),
		DatasetFingerprint: r.DatasetFingerprint().String(),
		Model:              r.Spec(),
		Formula:            report.Describe(r.Spec()),
		Family:             r.Family().String(),
		Rows:               r.Rows(),
		Chains:             r.Chains(),
		DrawsPerChain:      r.DrawsPerChain(),
		Parameters:         r.Names(),
		Priors:             r.Priors(),
		Control:            r.Control(),
		Warnings:           r.Warnings(),
		Diagnostics:        r.Diagnostics(),
		CreatedAt:          r.CreatedAt().Time(),
		ElapsedMillis:      r.Elapsed().Milliseconds(),
	}
}

// CreateFitResponse is returned by POST /api/fits
type CreateFitResponse struct {
	Fit     FitView         `json:"fit"`
	Summary *report.Summary `json:"summary"`
}

// HypothesisResponse is returned by POST /api/fits/:id/hypothesis
type HypothesisResponse struct {
	FitID   string              `json:"fit_id"`
	Results []hypothesis.Result `json:"results"`
}
