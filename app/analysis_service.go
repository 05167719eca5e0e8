package app

import (
	"fmt"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/internal"
	"gobayes/internal/diagnostics"
	"gobayes/internal/hypothesis"
	"gobayes/internal/loo"
	"gobayes/internal/report"
)

// AnalysisService answers read-only questions about finished fits
type AnalysisService struct {
	logger *internal.Logger
}

// NewAnalysisService creates an analysis service
func NewAnalysisService() *AnalysisService {
	return &AnalysisService{logger: internal.DefaultLogger.With("analysis")}
}

// Summary tabulates every parameter at the given interval probability.
// prob 0 uses the default 95% rows computed at fit time.
func (a *AnalysisService) Summary(r *fit.Result, prob float64, includeEffects bool) (*report.Summary, error) {
	rows := r.Summary()
	if prob != 0 && prob != diagnostics.DefaultProb {
		if prob <= 0 || prob >= 1 {
			return nil, core.NewSpecificationError("prob", fmt.Sprintf("must lie in (0, 1), got %v", prob))
		}
		rows = diagnostics.SummarizeResult(r, prob)
	}
	return report.NewSummary(r, rows, includeEffects), nil
}

// Criterion estimates LOO or WAIC for one fit
func (a *AnalysisService) Criterion(r *fit.Result, criterion string) (*loo.Result, error) {
	c, err := loo.ParseCriterion(criterion)
	if err != nil {
		return nil, core.NewSpecificationError("criterion", err.Error())
	}
	ll := r.LogLik()
	if ll == nil {
		return nil, fmt.Errorf("%w: fit %s has no pointwise log-likelihood", core.ErrInsufficientDraws, r.ID())
	}
	res, err := loo.Compute(ll, c)
	if err != nil {
		return nil, err
	}
	if bad := res.BadK(); len(bad) > 0 {
		a.logger.Warn("fit %s: %d observations with Pareto k > %.1f", r.ID(), len(bad), loo.KThreshold)
	}
	return res, nil
}

// Compare contrasts two fits of the same observations. The difference is
// elpd(b) - elpd(a).
func (a *AnalysisService) Compare(x, y *fit.Result, criterion string) (*loo.Comparison, error) {
	if !x.DatasetFingerprint().Equals(y.DatasetFingerprint()) || x.Rows() != y.Rows() {
		return nil, fmt.Errorf("%w: fits %s and %s were run on different data", core.ErrIncomparableFits, x.ID(), y.ID())
	}
	rx, err := a.Criterion(x, criterion)
	if err != nil {
		return nil, err
	}
	ry, err := a.Criterion(y, criterion)
	if err != nil {
		return nil, err
	}
	c, err := loo.Compare(rx, ry)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("compared %s and %s: elpd diff %.2f (se %.2f)", x.ID(), y.ID(), c.Diff, c.SE)
	return c, nil
}

// Hypothesis evaluates linear hypotheses against a fit's draws
func (a *AnalysisService) Hypothesis(r *fit.Result, hypotheses []string, opts hypothesis.Options) ([]hypothesis.Result, error) {
	return hypothesis.Test(r, hypotheses, opts)
}
