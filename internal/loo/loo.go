// Package loo estimates out-of-sample predictive accuracy from a pointwise
// log-likelihood matrix (draws x observations): WAIC and Pareto-smoothed
// importance-sampling leave-one-out cross-validation.
package loo

import (
	"fmt"
	"math"

	"gobayes/domain/core"
	"gobayes/domain/fit"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Criterion names an information criterion
type Criterion string

const (
	CriterionLOO  Criterion = "loo"
	CriterionWAIC Criterion = "waic"
)

// ParseCriterion accepts "loo" and "waic"; empty means loo
func ParseCriterion(s string) (Criterion, error) {
	switch Criterion(s) {
	case "", CriterionLOO:
		return CriterionLOO, nil
	case CriterionWAIC:
		return CriterionWAIC, nil
	}
	return "", fmt.Errorf("unknown criterion %q (use loo or waic)", s)
}

// KThreshold is the Pareto k above which PSIS estimates are unreliable
const KThreshold = 0.7

// Result holds the estimates of one criterion for one model
type Result struct {
	Criterion Criterion `json:"criterion"`
	Elpd      float64   `json:"elpd"`
	ElpdSE    float64   `json:"elpd_se"`
	P         float64   `json:"p"` // effective number of parameters
	PSE       float64   `json:"p_se"`
	IC        float64   `json:"ic"` // -2 * elpd
	ICSE      float64   `json:"ic_se"`
	Pointwise []float64 `json:"pointwise"`
	// ParetoK is +Inf for observations whose tail was too short to fit
	ParetoK      fit.Numbers `json:"pareto_k,omitempty"`
	Observations int         `json:"observations"`
	Draws        int         `json:"draws"`
}

// BadK returns the observations whose Pareto k exceeds KThreshold
func (r *Result) BadK() []int {
	var bad []int
	for i, k := range r.ParetoK {
		if k > KThreshold {
			bad = append(bad, i)
		}
	}
	return bad
}

// Compute dispatches on the criterion
func Compute(ll *mat.Dense, criterion Criterion) (*Result, error) {
	switch criterion {
	case CriterionWAIC:
		return WAIC(ll)
	case CriterionLOO, "":
		return PSISLOO(ll)
	}
	return nil, fmt.Errorf("unknown criterion %q", criterion)
}

func checkShape(ll *mat.Dense) (int, int, error) {
	if ll == nil {
		return 0, 0, fmt.Errorf("%w: no log-likelihood", core.ErrInsufficientDraws)
	}
	s, n := ll.Dims()
	if s < 2 || n < 1 {
		return 0, 0, fmt.Errorf("%w: need at least 2 draws and 1 observation, got %dx%d", core.ErrInsufficientDraws, s, n)
	}
	if bad := nonFinite(ll); len(bad) > 0 {
		return 0, 0, fmt.Errorf("%w: observations %v", core.ErrNonFiniteLogLik, bad)
	}
	return s, n, nil
}

// nonFinite returns the observations with a NaN or infinite log-likelihood
// in any draw. Neither criterion is defined for them.
func nonFinite(ll *mat.Dense) []int {
	s, n := ll.Dims()
	var bad []int
	for i := 0; i < n; i++ {
		for j := 0; j < s; j++ {
			if v := ll.At(j, i); math.IsNaN(v) || math.IsInf(v, 0) {
				bad = append(bad, i)
				break
			}
		}
	}
	return bad
}

// logMeanExp returns log(mean(exp(x)))
func logMeanExp(x []float64) float64 {
	return floats.LogSumExp(x) - math.Log(float64(len(x)))
}

// seOfSum is the standard error of a sum of n pointwise terms
func seOfSum(pointwise []float64) float64 {
	if len(pointwise) < 2 {
		return 0
	}
	return math.Sqrt(float64(len(pointwise)) * stat.Variance(pointwise, nil))
}

func finish(r *Result, elpd, p []float64) *Result {
	r.Pointwise = elpd
	r.Elpd = floats.Sum(elpd)
	r.ElpdSE = seOfSum(elpd)
	r.P = floats.Sum(p)
	r.PSE = seOfSum(p)
	r.IC = -2 * r.Elpd
	r.ICSE = 2 * r.ElpdSE
	return r
}

// WAIC computes the widely applicable information criterion
func WAIC(ll *mat.Dense) (*Result, error) {
	s, n, err := checkShape(ll)
	if err != nil {
		return nil, err
	}
	elpd := make([]float64, n)
	p := make([]float64, n)
	col := make([]float64, s)
	for i := 0; i < n; i++ {
		mat.Col(col, i, ll)
		lppd := logMeanExp(col)
		p[i] = stat.Variance(col, nil)
		elpd[i] = lppd - p[i]
	}
	return finish(&Result{Criterion: CriterionWAIC, Observations: n, Draws: s}, elpd, p), nil
}

// PSISLOO computes leave-one-out elpd with Pareto-smoothed importance
// weights. Observations with k above KThreshold have unreliable estimates.
func PSISLOO(ll *mat.Dense) (*Result, error) {
	s, n, err := checkShape(ll)
	if err != nil {
		return nil, err
	}
	elpd := make([]float64, n)
	p := make([]float64, n)
	ks := make([]float64, n)
	col := make([]float64, s)
	lwll := make([]float64, s)
	for i := 0; i < n; i++ {
		mat.Col(col, i, ll)
		lw := make([]float64, s)
		for j, v := range col {
			lw[j] = -v
		}
		lw, ks[i] = smooth(lw)
		for j := range lw {
			lwll[j] = lw[j] + col[j]
		}
		elpd[i] = floats.LogSumExp(lwll) - floats.LogSumExp(lw)
		p[i] = logMeanExp(col) - elpd[i]
	}
	r := finish(&Result{Criterion: CriterionLOO, Observations: n, Draws: s}, elpd, p)
	r.ParetoK = ks
	return r, nil
}
