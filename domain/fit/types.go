package fit

import (
	"fmt"

	"gobayes/domain/core"
)

// WarningKind classifies non-fatal sampler findings
type WarningKind string

const (
	WarningSamplerDivergence WarningKind = "SAMPLER_DIVERGENCE"
	WarningConvergence       WarningKind = "CONVERGENCE"
	WarningTreedepth         WarningKind = "TREEDEPTH"
)

// Warning is attached to a result instead of failing the fit. The caller
// decides whether to adjust control or priors and refit.
type Warning struct {
	Kind      WarningKind `json:"kind"`
	Message   string      `json:"message"`
	Parameter string      `json:"parameter,omitempty"`
	Value     float64     `json:"value,omitempty"`
}

func (w Warning) String() string {
	if w.Parameter != "" {
		return fmt.Sprintf("[%s] %s: %s", w.Kind, w.Parameter, w.Message)
	}
	return fmt.Sprintf("[%s] %s", w.Kind, w.Message)
}

// ParameterSummary is one row of the posterior summary table
type ParameterSummary struct {
	Parameter string  `json:"parameter"`
	Mean      float64 `json:"mean"`
	SD        float64 `json:"sd"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
	Prob      float64 `json:"prob"`
	Rhat      float64 `json:"rhat"`
	BulkESS   float64 `json:"bulk_ess"`
	TailESS   float64 `json:"tail_ess"`
}

// CompiledModel is the engine's representation of the program. Program is
// the generated source; Artifact is opaque to everything but the engine.
type CompiledModel struct {
	Engine   string    `json:"engine"`
	Program  string    `json:"program"`
	Hash     core.Hash `json:"hash"`
	Artifact []byte    `json:"artifact,omitempty"`
}

// SamplerDiagnostics aggregates per-chain sampler statistics
type SamplerDiagnostics struct {
	Divergences   int       `json:"divergences"`
	TreedepthHits int       `json:"treedepth_hits"`
	StepSizes     []float64 `json:"step_sizes,omitempty"`
}
