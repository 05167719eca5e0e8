package fit

import (
	"time"

	"gobayes/domain/core"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"

	"gonum.org/v1/gonum/mat"
)

// Result is the immutable outcome of one fitting call. All accessors
// return copies, so a Result can be shared between goroutines and handed to
// read-only analyses without risk of mutation.
type Result struct {
	id          core.FitID
	fingerprint core.Hash
	spec        model.Spec
	family      model.Family
	priors      []prior.Resolved
	control     sampler.Control
	params      []model.Parameter
	index       map[string]int
	draws       [][][]float64 // parameter -> chain -> draw
	summaries   []ParameterSummary
	compiled    CompiledModel
	warnings    []Warning
	diagnostics SamplerDiagnostics
	logLik      *mat.Dense // draws x observations
	priorDraws  map[string][]float64

	datasetFingerprint core.Hash
	rows               int
	createdAt          core.Timestamp
	elapsed            time.Duration
}

// Params carries everything needed to build a Result
type Params struct {
	ID                 core.FitID
	Fingerprint        core.Hash
	Spec               model.Spec
	Family             model.Family
	Priors             []prior.Resolved
	Control            sampler.Control
	Parameters         []model.Parameter
	Draws              map[string][][]float64
	Summaries          []ParameterSummary
	Compiled           CompiledModel
	Warnings           []Warning
	Diagnostics        SamplerDiagnostics
	LogLik             *mat.Dense
	PriorDraws         map[string][]float64
	DatasetFingerprint core.Hash
	Rows               int
	CreatedAt          core.Timestamp
	Elapsed            time.Duration
}

// NewResult deep-copies p into a Result. Draws must exist for every listed
// parameter; a missing entry leaves that parameter without draws.
func NewResult(p Params) *Result {
	r := &Result{
		id:                 p.ID,
		fingerprint:        p.Fingerprint,
		spec:               p.Spec,
		family:             p.Family,
		priors:             append([]prior.Resolved(nil), p.Priors...),
		control:            p.Control,
		params:             append([]model.Parameter(nil), p.Parameters...),
		index:              make(map[string]int, len(p.Parameters)),
		summaries:          append([]ParameterSummary(nil), p.Summaries...),
		compiled:           p.Compiled,
		warnings:           append([]Warning(nil), p.Warnings...),
		diagnostics:        p.Diagnostics,
		datasetFingerprint: p.DatasetFingerprint,
		rows:               p.Rows,
		createdAt:          p.CreatedAt,
		elapsed:            p.Elapsed,
	}
	if r.id.String() == "" {
		r.id = core.NewFitID()
	}
	if r.createdAt.IsZero() {
		r.createdAt = core.Now()
	}
	r.compiled.Artifact = append([]byte(nil), p.Compiled.Artifact...)
	r.diagnostics.StepSizes = append([]float64(nil), p.Diagnostics.StepSizes...)

	r.draws = make([][][]float64, len(r.params))
	for i, param := range r.params {
		r.index[param.Name] = i
		r.draws[i] = copyChains(p.Draws[param.Name])
	}
	if p.LogLik != nil {
		r.logLik = mat.DenseCopyOf(p.LogLik)
	}
	if len(p.PriorDraws) > 0 {
		r.priorDraws = make(map[string][]float64, len(p.PriorDraws))
		for name, values := range p.PriorDraws {
			r.priorDraws[name] = append([]float64(nil), values...)
		}
	}
	return r
}

func copyChains(chains [][]float64) [][]float64 {
	out := make([][]float64, len(chains))
	for c, chain := range chains {
		out[c] = append([]float64(nil), chain...)
	}
	return out
}

func (r *Result) ID() core.FitID                { return r.id }
func (r *Result) Fingerprint() core.Hash        { return r.fingerprint }
func (r *Result) Spec() model.Spec              { return r.spec }
func (r *Result) Family() model.Family          { return r.family }
func (r *Result) Control() sampler.Control      { return r.control }
func (r *Result) DatasetFingerprint() core.Hash { return r.datasetFingerprint }
func (r *Result) Rows() int                     { return r.rows }
func (r *Result) CreatedAt() core.Timestamp     { return r.createdAt }
func (r *Result) Elapsed() time.Duration        { return r.elapsed }
func (r *Result) Compiled() CompiledModel {
	c := r.compiled
	c.Artifact = append([]byte(nil), c.Artifact...)
	return c
}
func (r *Result) Diagnostics() SamplerDiagnostics {
	d := r.diagnostics
	d.StepSizes = append([]float64(nil), d.StepSizes...)
	return d
}

// Priors returns the prior applied to each parameter
func (r *Result) Priors() []prior.Resolved {
	return append([]prior.Resolved(nil), r.priors...)
}

// Parameters returns parameter metadata in layout order
func (r *Result) Parameters() []model.Parameter {
	return append([]model.Parameter(nil), r.params...)
}

// Names returns parameter names in layout order
func (r *Result) Names() []string {
	names := make([]string, len(r.params))
	for i, p := range r.params {
		names[i] = p.Name
	}
	return names
}

// Parameter looks up parameter metadata
func (r *Result) Parameter(name string) (model.Parameter, bool) {
	i, ok := r.index[name]
	if !ok {
		return model.Parameter{}, false
	}
	return r.params[i], true
}

// Chains returns the number of chains
func (r *Result) Chains() int {
	if len(r.draws) == 0 {
		return 0
	}
	return len(r.draws[0])
}

// DrawsPerChain returns the number of retained draws per chain
func (r *Result) DrawsPerChain() int {
	if len(r.draws) == 0 || len(r.draws[0]) == 0 {
		return 0
	}
	return len(r.draws[0][0])
}

// TotalDraws returns chains x draws per chain
func (r *Result) TotalDraws() int {
	return r.Chains() * r.DrawsPerChain()
}

// Draws returns the per-chain draws of a parameter
func (r *Result) Draws(name string) ([][]float64, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	return copyChains(r.draws[i]), true
}

// PooledDraws returns the draws of all chains concatenated in chain order
func (r *Result) PooledDraws(name string) ([]float64, bool) {
	i, ok := r.index[name]
	if !ok {
		return nil, false
	}
	out := make([]float64, 0, r.TotalDraws())
	for _, chain := range r.draws[i] {
		out = append(out, chain...)
	}
	return out, true
}

// Summary returns the stored per-parameter summary in layout order
func (r *Result) Summary() []ParameterSummary {
	return append([]ParameterSummary(nil), r.summaries...)
}

// SummaryFor returns one parameter's summary row
func (r *Result) SummaryFor(name string) (ParameterSummary, bool) {
	for _, s := range r.summaries {
		if s.Parameter == name {
			return s, true
		}
	}
	return ParameterSummary{}, false
}

// Warnings returns all warnings attached to the result
func (r *Result) Warnings() []Warning {
	return append([]Warning(nil), r.warnings...)
}

// HasWarning reports whether a warning of the given kind is attached
func (r *Result) HasWarning(kind WarningKind) bool {
	for _, w := range r.warnings {
		if w.Kind == kind {
			return true
		}
	}
	return false
}

// LogLik returns a copy of the pointwise log-likelihood matrix, one row per
// pooled draw and one column per observation; nil when not computed.
func (r *Result) LogLik() *mat.Dense {
	if r.logLik == nil {
		return nil
	}
	return mat.DenseCopyOf(r.logLik)
}

// PriorDraws returns draws from a parameter's prior, when sampled
func (r *Result) PriorDraws(name string) ([]float64, bool) {
	values, ok := r.priorDraws[name]
	if !ok {
		return nil, false
	}
	return append([]float64(nil), values...), true
}
