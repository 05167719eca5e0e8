package prior

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"unicode"

	"gobayes/domain/core"

	"gonum.org/v1/gonum/stat/distuv"
)

// Distribution is a parsed prior such as normal(0, 5). The zero value is
// the flat prior.
type Distribution struct {
	Name string    `json:"name,omitempty"`
	Args []float64 `json:"args,omitempty"`
}

// ParseDistribution parses "name(arg, ...)". Only the syntax is checked
// here; whether the engine knows the name is decided when compiling.
func ParseDistribution(s string) (Distribution, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "flat" {
		return Distribution{}, nil
	}

	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return Distribution{}, core.NewSpecificationError("prior", fmt.Sprintf("%q is not of the form name(args)", s))
	}
	name := strings.TrimSpace(s[:open])
	for _, r := range name {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return Distribution{}, core.NewSpecificationError("prior", fmt.Sprintf("invalid distribution name %q", name))
		}
	}

	body := strings.TrimSpace(s[open+1 : len(s)-1])
	var args []float64
	if body != "" {
		for _, raw := range strings.Split(body, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
			if err != nil {
				return Distribution{}, core.NewSpecificationError("prior", fmt.Sprintf("argument %q of %s is not a number", strings.TrimSpace(raw), name))
			}
			args = append(args, v)
		}
	}
	return Distribution{Name: name, Args: args}, nil
}

// IsFlat reports whether the distribution is the improper flat prior
func (d Distribution) IsFlat() bool {
	return d.Name == ""
}

func (d Distribution) String() string {
	if d.IsFlat() {
		return ""
	}
	args := make([]string, len(d.Args))
	for i, a := range d.Args {
		args[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}
	return fmt.Sprintf("%s(%s)", d.Name, strings.Join(args, ", "))
}

// quantiler is the part of the gonum distributions needed for sampling by
// inversion and for densities.
type quantiler interface {
	Quantile(p float64) float64
	Prob(x float64) float64
	CDF(x float64) float64
}

// continuous returns the gonum distribution for proper univariate priors.
func (d Distribution) continuous() (quantiler, error) {
	arg := func(i int, def float64) float64 {
		if i < len(d.Args) {
			return d.Args[i]
		}
		return def
	}
	switch d.Name {
	case "normal":
		return distuv.Normal{Mu: arg(0, 0), Sigma: arg(1, 1)}, nil
	case "std_normal":
		return distuv.UnitNormal, nil
	case "student_t":
		return distuv.StudentsT{Nu: arg(0, 3), Mu: arg(1, 0), Sigma: arg(2, 1)}, nil
	case "cauchy":
		return distuv.StudentsT{Nu: 1, Mu: arg(0, 0), Sigma: arg(1, 1)}, nil
	case "exponential":
		return distuv.Exponential{Rate: arg(0, 1)}, nil
	case "gamma":
		return distuv.Gamma{Alpha: arg(0, 1), Beta: arg(1, 1)}, nil
	case "inv_gamma":
		return distuv.InverseGamma{Alpha: arg(0, 1), Beta: arg(1, 1)}, nil
	case "lognormal":
		return distuv.LogNormal{Mu: arg(0, 0), Sigma: arg(1, 1)}, nil
	case "beta":
		return distuv.Beta{Alpha: arg(0, 1), Beta: arg(1, 1)}, nil
	case "uniform":
		return distuv.Uniform{Min: arg(0, 0), Max: arg(1, 1)}, nil
	}
	return nil, fmt.Errorf("%w: %s cannot be sampled directly", core.ErrUnknownDistribution, d.Name)
}

// CanSample reports whether Sample supports the distribution
func (d Distribution) CanSample() bool {
	if d.IsFlat() {
		return false
	}
	_, err := d.continuous()
	return err == nil
}

// Sample draws n values, truncated to [lower, upper] when bounds are given.
// Bounded parameters (sd, sigma, ...) use the prior restricted to their
// support, sampled by inversion of the truncated CDF.
func (d Distribution) Sample(rng *rand.Rand, n int, lower, upper *float64) ([]float64, error) {
	dist, err := d.continuous()
	if err != nil {
		return nil, err
	}
	lo, hi := 0.0, 1.0
	if lower != nil {
		lo = dist.CDF(*lower)
	}
	if upper != nil {
		hi = dist.CDF(*upper)
	}
	if hi <= lo {
		return nil, fmt.Errorf("prior %s has no mass inside the parameter bounds", d)
	}

	out := make([]float64, n)
	for i := range out {
		u := lo + (hi-lo)*rng.Float64()
		// keep u strictly inside (0, 1) so Quantile stays finite
		u = math.Min(math.Max(u, 1e-12), 1-1e-12)
		out[i] = dist.Quantile(u)
	}
	return out, nil
}
