// Package hypothesis tests linear hypotheses about model parameters against
// posterior draws, reporting the estimate of lhs - rhs, its credible
// interval and an evidence ratio.
package hypothesis

import (
	"encoding/json"
	"fmt"
	"math"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/internal/diagnostics"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Source supplies posterior and prior draws. *fit.Result satisfies it.
type Source interface {
	PooledDraws(name string) ([]float64, bool)
	PriorDraws(name string) ([]float64, bool)
}

// Options control name resolution and the interval level
type Options struct {
	// Class prefixes identifiers: "b" turns age into b_age. Defaults to b.
	Class string `json:"class,omitempty"`
	// Group is inserted after the class: sd + patient turns age into
	// sd_patient_age.
	Group string `json:"group,omitempty"`
	// Alpha is the tail probability of the interval; 0.05 gives a 95%
	// one-sided bound or a 95% two-sided interval.
	Alpha float64 `json:"alpha,omitempty"`
}

const defaultAlpha = 0.05

func (o Options) withDefaults() Options {
	if o.Class == "" {
		o.Class = "b"
	}
	if o.Alpha <= 0 || o.Alpha >= 1 {
		o.Alpha = defaultAlpha
	}
	return o
}

// Result is the outcome of one hypothesis
type Result struct {
	Hypothesis    string
	Operator      Operator
	Parameters    []string
	Estimate      float64
	EstError      float64
	Lower         float64
	Upper         float64
	EvidenceRatio float64
	PostProb      float64
	Star          bool
	Alpha         float64
}

// Test parses and evaluates each hypothesis
func Test(src Source, hypotheses []string, opts Options) ([]Result, error) {
	if len(hypotheses) == 0 {
		return nil, fmt.Errorf("%w: no hypothesis given", core.ErrInvalidHypothesis)
	}
	out := make([]Result, 0, len(hypotheses))
	for _, raw := range hypotheses {
		h, err := Parse(raw)
		if err != nil {
			return nil, err
		}
		r, err := Evaluate(src, h, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, nil
}

// Resolve maps an identifier to a parameter name: the class/group prefixed
// name when it exists, otherwise the identifier itself.
func Resolve(has func(string) bool, ident string, opts Options) (string, error) {
	opts = opts.withDefaults()
	prefix := opts.Class + "_"
	if opts.Group != "" {
		prefix += opts.Group + "_"
	}
	if candidate := prefix + ident; has(candidate) {
		return candidate, nil
	}
	if has(ident) {
		return ident, nil
	}
	return "", fmt.Errorf("%w: %q (tried %s%s)", core.ErrParameterNotFound, ident, prefix, ident)
}

// Evaluate computes the posterior of lhs - rhs
func Evaluate(src Source, h *Hypothesis, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	has := func(name string) bool {
		_, ok := src.PooledDraws(name)
		return ok
	}

	names := h.Linear.Names()
	resolved := make([]string, len(names))
	for i, ident := range names {
		name, err := Resolve(has, ident, opts)
		if err != nil {
			return nil, err
		}
		resolved[i] = name
	}

	posterior, err := combine(src.PooledDraws, h.Linear, names, resolved)
	if err != nil {
		return nil, err
	}
	if len(posterior) < 2 {
		return nil, fmt.Errorf("%w: hypothesis %q needs at least 2 draws", core.ErrInsufficientDraws, h.Raw)
	}

	r := &Result{
		Hypothesis: h.Raw,
		Operator:   h.Operator,
		Parameters: resolved,
		Alpha:      opts.Alpha,
	}
	r.Estimate, _ = stats.Mean(posterior)
	r.EstError, _ = stats.StandardDeviationSample(posterior)

	switch h.Operator {
	case Greater:
		r.Lower, r.Upper = diagnostics.Quantile(posterior, opts.Alpha), math.Inf(1)
		r.EvidenceRatio = oneSidedRatio(posterior, func(v float64) bool { return v > 0 })
	case Less:
		r.Lower, r.Upper = math.Inf(-1), diagnostics.Quantile(posterior, 1-opts.Alpha)
		r.EvidenceRatio = oneSidedRatio(posterior, func(v float64) bool { return v < 0 })
	case Equal:
		r.Lower, r.Upper = diagnostics.Interval(posterior, 1-opts.Alpha)
		r.EvidenceRatio = math.NaN()
		if prior, err := combine(src.PriorDraws, h.Linear, names, resolved); err == nil && len(prior) > 1 {
			r.EvidenceRatio = savageDickey(posterior, prior)
		}
	default:
		return nil, core.NewHypothesisError(h.Raw, fmt.Sprintf("unknown operator %q", h.Operator))
	}
	r.PostProb = postProb(r.EvidenceRatio)
	r.Star = r.Lower > 0 || r.Upper < 0
	return r, nil
}

// combine evaluates the linear form draw by draw
func combine(get func(string) ([]float64, bool), l Linear, idents, names []string) ([]float64, error) {
	var out []float64
	for i, name := range names {
		draws, ok := get(name)
		if !ok {
			return nil, fmt.Errorf("%w: no draws for %s", core.ErrParameterNotFound, name)
		}
		if out == nil {
			out = make([]float64, len(draws))
			for s := range out {
				out[s] = l.Const
			}
		}
		if len(draws) != len(out) {
			return nil, fmt.Errorf("parameters of the hypothesis have unequal draw counts")
		}
		coef := l.Terms[idents[i]]
		for s, v := range draws {
			out[s] += coef * v
		}
	}
	return out, nil
}

// oneSidedRatio is P(holds) / P(fails), +Inf when no draw fails
func oneSidedRatio(values []float64, holds func(float64) bool) float64 {
	yes := 0
	for _, v := range values {
		if holds(v) {
			yes++
		}
	}
	no := len(values) - yes
	if no == 0 {
		return math.Inf(1)
	}
	return float64(yes) / float64(no)
}

func postProb(er float64) float64 {
	switch {
	case math.IsNaN(er):
		return math.NaN()
	case math.IsInf(er, 1):
		return 1
	}
	return er / (1 + er)
}

// savageDickey is the ratio of posterior to prior density at zero
func savageDickey(posterior, prior []float64) float64 {
	post := kdeAt(posterior, 0)
	pri := kdeAt(prior, 0)
	if pri == 0 {
		if post == 0 {
			return math.NaN()
		}
		return math.Inf(1)
	}
	return post / pri
}

// kdeAt is a Gaussian kernel density estimate at x with Silverman's
// bandwidth
func kdeAt(values []float64, x float64) float64 {
	n := float64(len(values))
	sd, _ := stats.StandardDeviationSample(values)
	iqr, err := stats.InterQuartileRange(values)
	spread := sd
	if err == nil && iqr > 0 {
		spread = math.Min(sd, iqr/1.34)
	}
	if spread <= 0 {
		for _, v := range values {
			if v == x {
				return math.Inf(1)
			}
		}
		return 0
	}
	h := 0.9 * spread * math.Pow(n, -0.2)
	sum := 0.0
	for _, v := range values {
		sum += distuv.UnitNormal.Prob((x - v) / h)
	}
	return sum / (n * h)
}

type resultJSON struct {
	Hypothesis    string     `json:"hypothesis"`
	Operator      Operator   `json:"operator"`
	Parameters    []string   `json:"parameters"`
	Estimate      fit.Number `json:"estimate"`
	EstError      fit.Number `json:"est_error"`
	Lower         fit.Number `json:"ci_lower"`
	Upper         fit.Number `json:"ci_upper"`
	EvidenceRatio fit.Number `json:"evid_ratio"`
	PostProb      fit.Number `json:"post_prob"`
	Star          bool       `json:"star"`
	Alpha         float64    `json:"alpha"`
}

// MarshalJSON writes infinite bounds and undefined ratios as strings
func (r Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(resultJSON{
		Hypothesis: r.Hypothesis, Operator: r.Operator, Parameters: r.Parameters,
		Estimate: fit.Number(r.Estimate), EstError: fit.Number(r.EstError),
		Lower: fit.Number(r.Lower), Upper: fit.Number(r.Upper),
		EvidenceRatio: fit.Number(r.EvidenceRatio), PostProb: fit.Number(r.PostProb),
		Star: r.Star, Alpha: r.Alpha,
	})
}
