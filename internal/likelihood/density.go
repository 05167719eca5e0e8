package likelihood

import (
	"math"

	"gobayes/domain/model"

	"gonum.org/v1/gonum/stat/distuv"
)

// density is the part of a response distribution the likelihood needs
type density interface {
	LogProb(x float64) float64
	CDF(x float64) float64
}

// aux holds the family's auxiliary parameters for one draw
type aux struct {
	sigma, nu, shape, phi float64
}

// invalid stands in for a density whose parameters left their support
type invalid struct{}

func (invalid) LogProb(float64) float64 { return math.Inf(-1) }
func (invalid) CDF(float64) float64     { return math.NaN() }

// responseDensity builds the response distribution of one observation.
// Bernoulli and binomial responses go through binomialLink instead.
func responseDensity(family model.FamilyName, mu float64, a aux, se float64) density {
	if math.IsNaN(mu) || math.IsInf(mu, 0) {
		return invalid{}
	}
	switch family {
	case model.FamilyGaussian:
		sd := math.Hypot(a.sigma, se)
		if sd <= 0 {
			return invalid{}
		}
		return distuv.Normal{Mu: mu, Sigma: sd}
	case model.FamilyStudent:
		sd := math.Hypot(a.sigma, se)
		if sd <= 0 || a.nu <= 0 {
			return invalid{}
		}
		return distuv.StudentsT{Mu: mu, Sigma: sd, Nu: a.nu}
	case model.FamilyPoisson:
		if mu <= 0 {
			return invalid{}
		}
		return distuv.Poisson{Lambda: mu}
	case model.FamilyNegBinomial:
		if mu <= 0 || a.shape <= 0 {
			return invalid{}
		}
		return negBinomial{mu: mu, shape: a.shape}
	case model.FamilyGamma:
		if mu <= 0 || a.shape <= 0 {
			return invalid{}
		}
		return distuv.Gamma{Alpha: a.shape, Beta: a.shape / mu}
	case model.FamilyLognormal:
		if a.sigma <= 0 {
			return invalid{}
		}
		return distuv.LogNormal{Mu: mu, Sigma: a.sigma}
	case model.FamilyBeta:
		if mu <= 0 || mu >= 1 || a.phi <= 0 {
			return invalid{}
		}
		return distuv.Beta{Alpha: mu * a.phi, Beta: (1 - mu) * a.phi}
	}
	return invalid{}
}

// binomialLink is a binomial distribution given log p and log(1 - p)
// directly from the linear predictor. A Bernoulli response has one trial.
type binomialLink struct {
	trials, logP, log1mP float64
}

func (d binomialLink) LogProb(y float64) float64 {
	if y < 0 || y > d.trials || y != math.Floor(y) {
		return math.Inf(-1)
	}
	a, _ := math.Lgamma(d.trials + 1)
	b, _ := math.Lgamma(y + 1)
	c, _ := math.Lgamma(d.trials - y + 1)
	ll := a - b - c
	if y > 0 {
		ll += y * d.logP
	}
	if d.trials > y {
		ll += (d.trials - y) * d.log1mP
	}
	return ll
}

func (d binomialLink) CDF(y float64) float64 {
	if y < 0 {
		return 0
	}
	sum := 0.0
	for k := 0.0; k <= math.Min(math.Floor(y), d.trials); k++ {
		sum += math.Exp(d.LogProb(k))
	}
	return math.Min(sum, 1)
}

// negBinomial is the mean/shape parameterization: variance mu + mu^2/shape.
type negBinomial struct {
	mu, shape float64
}

func (d negBinomial) LogProb(y float64) float64 {
	if y < 0 || y != math.Floor(y) {
		return math.Inf(-1)
	}
	a, _ := math.Lgamma(y + d.shape)
	b, _ := math.Lgamma(y + 1)
	c, _ := math.Lgamma(d.shape)
	return a - b - c + d.shape*math.Log(d.shape/(d.mu+d.shape)) + y*math.Log(d.mu/(d.mu+d.shape))
}

func (d negBinomial) CDF(y float64) float64 {
	if y < 0 {
		return 0
	}
	sum := 0.0
	for k := 0.0; k <= math.Floor(y); k++ {
		sum += math.Exp(d.LogProb(k))
	}
	return math.Min(sum, 1)
}

// logCDF and logCCDF guard against log(0) producing NaN for CDF values that
// round outside [0, 1].
func logCDF(d density, y float64) float64 {
	return math.Log(math.Max(0, math.Min(1, d.CDF(y))))
}

func logCCDF(d density, y float64) float64 {
	return math.Log(math.Max(0, math.Min(1, 1-d.CDF(y))))
}
