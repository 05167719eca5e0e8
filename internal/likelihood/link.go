package likelihood

import (
	"fmt"
	"math"

	"gobayes/domain/model"

	"gonum.org/v1/gonum/stat/distuv"
)

// inverseLink maps a linear predictor onto the mean scale
func inverseLink(link model.Link) (func(float64) float64, error) {
	switch link {
	case model.LinkIdentity:
		return func(x float64) float64 { return x }, nil
	case model.LinkLog:
		return math.Exp, nil
	case model.LinkLogit:
		return logistic, nil
	case model.LinkProbit:
		return distuv.UnitNormal.CDF, nil
	case model.LinkCloglog:
		return func(x float64) float64 { return -math.Expm1(-math.Exp(x)) }, nil
	case model.LinkInverse:
		return func(x float64) float64 { return 1 / x }, nil
	case model.LinkSqrt:
		return func(x float64) float64 { return x * x }, nil
	}
	return nil, fmt.Errorf("no inverse for link %q", link)
}

func logistic(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// logProbs returns log p and log(1 - p) of a probability link evaluated at
// eta, without forming p, so the tails stay finite where p rounds to 0 or 1.
func logProbs(link model.Link) (func(eta float64) (float64, float64), error) {
	switch link {
	case model.LinkLogit:
		return func(x float64) (float64, float64) { return -log1pExp(-x), -log1pExp(x) }, nil
	case model.LinkProbit:
		return func(x float64) (float64, float64) { return logPhi(x), logPhi(-x) }, nil
	case model.LinkCloglog:
		return func(x float64) (float64, float64) {
			e := math.Exp(x)
			if e < 1e-12 {
				return x + math.Log1p(-e/2), -e
			}
			return math.Log(-math.Expm1(-e)), -e
		}, nil
	}
	return nil, fmt.Errorf("link %q is not a probability link", link)
}

// log1pExp returns log(1 + exp(x))
func log1pExp(x float64) float64 {
	if x > 0 {
		return x + math.Log1p(math.Exp(-x))
	}
	return math.Log1p(math.Exp(x))
}

// logPhi is the log of the standard normal CDF. Below -20 erfc underflows
// and the asymptotic series of the Mills ratio takes over.
func logPhi(x float64) float64 {
	if x > -20 {
		return math.Log(0.5 * math.Erfc(-x/math.Sqrt2))
	}
	x2 := x * x
	return -x2/2 - math.Log(-x) - 0.5*math.Log(2*math.Pi) + math.Log1p(-1/x2+3/(x2*x2))
}

// logDiffExp returns log(exp(a) - exp(b)) for a >= b
func logDiffExp(a, b float64) float64 {
	if math.IsInf(b, -1) {
		return a
	}
	if b >= a {
		return math.Inf(-1)
	}
	return a + math.Log1p(-math.Exp(b-a))
}
