package loo

import (
	"fmt"
	"math"

	"gobayes/domain/core"

	"gonum.org/v1/gonum/stat"
)

// Comparison is the elpd difference between two models on the same data.
// Diff is elpd(B) - elpd(A): positive values favor B.
type Comparison struct {
	Criterion Criterion `json:"criterion"`
	A         *Result   `json:"a"`
	B         *Result   `json:"b"`
	Diff      float64   `json:"elpd_diff"`
	SE        float64   `json:"se_diff"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Compare contrasts two estimates of the same criterion. The standard error
// comes from the pointwise differences.
func Compare(a, b *Result) (*Comparison, error) {
	if a.Criterion != b.Criterion {
		return nil, fmt.Errorf("%w: criteria differ (%s vs %s)", core.ErrIncomparableFits, a.Criterion, b.Criterion)
	}
	if len(a.Pointwise) != len(b.Pointwise) {
		return nil, fmt.Errorf("%w: %d vs %d observations", core.ErrIncomparableFits, len(a.Pointwise), len(b.Pointwise))
	}

	diff := make([]float64, len(a.Pointwise))
	sum := 0.0
	for i := range diff {
		diff[i] = b.Pointwise[i] - a.Pointwise[i]
		sum += diff[i]
	}
	c := &Comparison{Criterion: a.Criterion, A: a, B: b, Diff: sum}
	if len(diff) > 1 {
		c.SE = math.Sqrt(float64(len(diff)) * stat.Variance(diff, nil))
	}

	for _, m := range []struct {
		label string
		r     *Result
	}{{"a", a}, {"b", b}} {
		if bad := m.r.BadK(); len(bad) > 0 {
			c.Warnings = append(c.Warnings, fmt.Sprintf("model %s: %d observations with Pareto k > %.1f", m.label, len(bad), KThreshold))
		}
	}
	return c, nil
}
