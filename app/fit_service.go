package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gobayes/domain/core"
	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/internal"
	"gobayes/internal/diagnostics"
	"gobayes/internal/likelihood"
	"gobayes/ports"
)

// FitService turns a model description and a dataset into a fit result
type FitService struct {
	engine ports.SamplerEngine
	rng    ports.RNGPort
	repo   ports.FitRepository
	logger *internal.Logger
}

// FitRequest is the input of one fitting call
type FitRequest struct {
	Spec    model.Spec
	Data    *dataset.Dataset
	Priors  prior.Spec
	Control sampler.Control

	// SamplePrior draws from the proper priors as well, which point
	// hypotheses need for Savage-Dickey evidence ratios.
	SamplePrior bool
}

// NewFitService creates a fit service. repo may be nil, in which case
// results are not persisted.
func NewFitService(engine ports.SamplerEngine, rng ports.RNGPort, repo ports.FitRepository) *FitService {
	return &FitService{
		engine: engine,
		rng:    rng,
		repo:   repo,
		logger: internal.DefaultLogger.With("fit"),
	}
}

// Fit validates the request, compiles and samples the model and assembles
// an immutable result. Specification problems wrap
// core.ErrInvalidSpecification and are reported before the engine runs;
// sampler problems become warnings on the result.
func (s *FitService) Fit(ctx context.Context, req FitRequest) (*fit.Result, error) {
	start := time.Now()

	// priors first: an unknown class must fail without touching the data
	if err := req.Priors.Validate(); err != nil {
		return nil, err
	}
	control := req.Control.WithDefaults()
	if err := control.Validate(); err != nil {
		return nil, err
	}
	layout, err := model.BuildLayout(&req.Spec, req.Data)
	if err != nil {
		return nil, err
	}
	resolved, err := prior.Resolve(req.Priors, layout)
	if err != nil {
		return nil, err
	}

	fitID := core.NewFitID()
	s.logger.Info("fit %s: %s with %d parameters on %d rows", fitID, layout.Family(), len(layout.Names()), req.Data.Rows())

	compiled, err := s.engine.Compile(ctx, ports.CompileRequest{Layout: layout, Priors: resolved})
	if err != nil {
		return nil, fmt.Errorf("compile failed: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sampleStart := time.Now()
	raw, err := s.engine.Sample(ctx, compiled, layout, control)
	if err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}
	elapsed := time.Since(sampleStart)
	s.logger.Debug("fit %s: %s sampled %d chains in %s", fitID, s.engine.Name(), len(raw.Chains), elapsed.Round(time.Millisecond))

	draws, diag, err := assemble(layout, raw, control)
	if err != nil {
		return nil, err
	}
	for _, chain := range raw.Chains {
		for _, msg := range chain.Messages {
			s.logger.Debug("fit %s chain %d: %s", fitID, chain.Chain, msg)
		}
	}

	rows := make([]fit.ParameterSummary, 0, len(layout.Names()))
	for _, name := range layout.Names() {
		rows = append(rows, diagnostics.Summarize(name, draws[name], diagnostics.DefaultProb))
	}
	warnings := samplerWarnings(diag, control)
	warnings = append(warnings, diagnostics.ConvergenceWarnings(rows, control.Chains)...)
	for _, w := range warnings {
		s.logger.Warn("fit %s: %s", fitID, w)
	}

	pooled := make(likelihood.Draws, len(draws))
	for name, chains := range draws {
		pooled[name] = pool(chains)
	}
	logLik, err := likelihood.Evaluate(layout, pooled)
	if err != nil {
		return nil, fmt.Errorf("pointwise log-likelihood failed: %w", err)
	}

	var priorDraws map[string][]float64
	if req.SamplePrior {
		priorDraws, err = s.samplePriors(ctx, fitID, resolved, control)
		if err != nil {
			return nil, err
		}
	}

	fingerprint, err := requestFingerprint(req, control, req.Data.Fingerprint())
	if err != nil {
		return nil, err
	}

	result := fit.NewResult(fit.Params{
		ID:                 fitID,
		Fingerprint:        fingerprint,
		Spec:               layout.Spec(),
		Family:             layout.Family(),
		Priors:             resolved,
		Control:            control,
		Parameters:         layout.Parameters(),
		Draws:              draws,
		Summaries:          rows,
		Compiled:           *compiled,
		Warnings:           warnings,
		Diagnostics:        diag,
		LogLik:             logLik,
		PriorDraws:         priorDraws,
		DatasetFingerprint: req.Data.Fingerprint(),
		Rows:               req.Data.Rows(),
		Elapsed:            elapsed,
	})
	s.logger.Info("fit %s finished in %s with %d warnings", fitID, time.Since(start).Round(time.Millisecond), len(warnings))

	if s.repo != nil {
		if err := s.repo.Save(ctx, result); err != nil {
			return nil, fmt.Errorf("failed to store fit %s: %w", fitID, err)
		}
	}
	return result, nil
}

// assemble checks the engine output against the layout and collects the
// chains of every parameter.
func assemble(layout *model.Layout, raw *ports.RawDraws, control sampler.Control) (map[string][][]float64, fit.SamplerDiagnostics, error) {
	var diag fit.SamplerDiagnostics
	if raw == nil || len(raw.Chains) != control.Chains {
		got := 0
		if raw != nil {
			got = len(raw.Chains)
		}
		return nil, diag, fmt.Errorf("engine returned %d chains, expected %d", got, control.Chains)
	}

	names := layout.Names()
	draws := make(map[string][][]float64, len(names))
	length := -1
	for _, chain := range raw.Chains {
		diag.Divergences += chain.Divergent
		diag.TreedepthHits += chain.TreedepthHits
		diag.StepSizes = append(diag.StepSizes, chain.StepSize)
		for _, name := range names {
			values, ok := chain.Columns[name]
			if !ok {
				return nil, diag, fmt.Errorf("%w: engine returned no draws for %s in chain %d", core.ErrParameterNotFound, name, chain.Chain)
			}
			if length < 0 {
				length = len(values)
			}
			if len(values) != length || length == 0 {
				return nil, diag, fmt.Errorf("%w: chain %d has %d draws of %s, expected %d", core.ErrInsufficientDraws, chain.Chain, len(values), name, length)
			}
			draws[name] = append(draws[name], append([]float64(nil), values...))
		}
	}
	return draws, diag, nil
}

func samplerWarnings(diag fit.SamplerDiagnostics, control sampler.Control) []fit.Warning {
	var warnings []fit.Warning
	if diag.Divergences > control.DivergenceThreshold {
		warnings = append(warnings, fit.Warning{
			Kind:    fit.WarningSamplerDivergence,
			Value:   float64(diag.Divergences),
			Message: fmt.Sprintf("%d divergent transitions after warmup; increase adapt_delta above %.2f", diag.Divergences, control.AdaptDelta),
		})
	}
	if diag.TreedepthHits > 0 {
		warnings = append(warnings, fit.Warning{
			Kind:    fit.WarningTreedepth,
			Value:   float64(diag.TreedepthHits),
			Message: fmt.Sprintf("%d transitions hit the maximum treedepth of %d", diag.TreedepthHits, control.MaxTreedepth),
		})
	}
	return warnings
}

// samplePriors draws from every proper prior that supports direct sampling.
// One stream per fit keeps prior draws reproducible for a fixed seed.
func (s *FitService) samplePriors(ctx context.Context, fitID core.FitID, resolved []prior.Resolved, control sampler.Control) (map[string][]float64, error) {
	rng, err := s.rng.Stream(ctx, fitID.String(), "prior", 0, control.Seed)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]float64)
	for _, r := range resolved {
		if !r.Distribution.CanSample() {
			continue
		}
		values, err := r.Distribution.Sample(rng, control.TotalDraws(), r.Parameter.Lower, r.Parameter.Upper)
		if err != nil {
			return nil, core.NewSpecificationError("prior", fmt.Sprintf("%s: %v", r.Parameter.Name, err))
		}
		out[r.Parameter.Name] = values
	}
	return out, nil
}

func requestFingerprint(req FitRequest, control sampler.Control, data core.Hash) (core.Hash, error) {
	parts := []string{data.String()}
	for _, v := range []interface{}{req.Spec, req.Priors, control} {
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to fingerprint request: %w", err)
		}
		parts = append(parts, string(b))
	}
	return core.ComputeHash(parts...), nil
}

func pool(chains [][]float64) []float64 {
	n := 0
	for _, c := range chains {
		n += len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range chains {
		out = append(out, c...)
	}
	return out
}
