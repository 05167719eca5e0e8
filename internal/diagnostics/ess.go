package diagnostics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// BulkESS is the effective sample size of rank-normalized split chains.
func BulkESS(chains [][]float64) float64 {
	if !balanced(chains) || len(chains[0]) < 4 || !allFinite(chains) || isConstant(chains) {
		return math.NaN()
	}
	return ess(rankNormalize(splitChains(chains)))
}

// TailESS is the smaller effective sample size of the 5% and 95% quantile
// indicators.
func TailESS(chains [][]float64) float64 {
	if !balanced(chains) || len(chains[0]) < 4 || !allFinite(chains) || isConstant(chains) {
		return math.NaN()
	}
	split := splitChains(chains)
	sorted := pool(chains)
	sort.Float64s(sorted)
	lo := ess(indicator(split, stat.Quantile(0.05, stat.LinInterp, sorted, nil)))
	hi := ess(indicator(split, stat.Quantile(0.95, stat.LinInterp, sorted, nil)))
	if math.IsNaN(lo) {
		return hi
	}
	if math.IsNaN(hi) {
		return lo
	}
	return math.Min(lo, hi)
}

// ESS is the effective sample size of the raw chains, without splitting or
// rank normalization.
func ESS(chains [][]float64) float64 {
	if !balanced(chains) || len(chains[0]) < 4 || !allFinite(chains) || isConstant(chains) {
		return math.NaN()
	}
	return ess(chains)
}

// ess estimates the effective sample size from multi-chain
// autocorrelations, truncated by Geyer's initial monotone sequence. The
// estimate is capped at the total number of draws.
func ess(chains [][]float64) float64 {
	m := len(chains)
	n := len(chains[0])
	if n < 3 {
		return math.NaN()
	}

	acov := make([][]float64, m)
	means := make([]float64, m)
	vars := make([]float64, m)
	for i, c := range chains {
		acov[i] = autocovariance(c)
		means[i] = stat.Mean(c, nil)
		vars[i] = acov[i][0] * float64(n) / float64(n-1)
	}
	meanVar := stat.Mean(vars, nil)
	varPlus := meanVar * float64(n-1) / float64(n)
	if m > 1 {
		varPlus += stat.Variance(means, nil)
	}
	if varPlus == 0 || math.IsNaN(varPlus) {
		return math.NaN()
	}

	meanAcov := func(lag int) float64 {
		sum := 0.0
		for _, a := range acov {
			sum += a[lag]
		}
		return sum / float64(m)
	}
	rho := func(lag int) float64 {
		return 1 - (meanVar-meanAcov(lag))/varPlus
	}

	rhoHat := make([]float64, n)
	rhoEven := 1.0
	rhoOdd := rho(1)
	rhoHat[0] = rhoEven
	rhoHat[1] = rhoOdd

	t := 1
	for t < n-4 && rhoEven+rhoOdd > 0 {
		rhoEven = rho(t + 1)
		rhoOdd = rho(t + 2)
		if rhoEven+rhoOdd >= 0 {
			rhoHat[t+1] = rhoEven
			rhoHat[t+2] = rhoOdd
		}
		t += 2
	}
	maxT := t
	if rhoEven > 0 && maxT+1 < n {
		rhoHat[maxT+1] = rhoEven
	}

	// initial monotone sequence
	for t := 1; t <= maxT-3; t += 2 {
		if rhoHat[t+1]+rhoHat[t+2] > rhoHat[t-1]+rhoHat[t] {
			rhoHat[t+1] = (rhoHat[t-1] + rhoHat[t]) / 2
			rhoHat[t+2] = rhoHat[t+1]
		}
	}

	total := float64(m * n)
	tau := -1.0
	for k := 0; k < maxT; k++ {
		tau += 2 * rhoHat[k]
	}
	if maxT+1 < n {
		tau += rhoHat[maxT+1]
	}
	if tau <= 0 {
		return total
	}
	return math.Min(total/tau, total)
}

// autocovariance returns the biased autocovariance of x at every lag,
// computed with a zero-padded FFT.
func autocovariance(x []float64) []float64 {
	n := len(x)
	size := 1
	for size < 2*n {
		size <<= 1
	}
	mean := stat.Mean(x, nil)
	padded := make([]float64, size)
	for i, v := range x {
		padded[i] = v - mean
	}

	fft := fourier.NewFFT(size)
	coeff := fft.Coefficients(nil, padded)
	for i, c := range coeff {
		coeff[i] = complex(real(c)*real(c)+imag(c)*imag(c), 0)
	}
	seq := fft.Sequence(nil, coeff)

	out := make([]float64, n)
	if seq[0] == 0 {
		return out
	}
	variance := 0.0
	for _, v := range padded[:n] {
		variance += v * v
	}
	variance /= float64(n)
	for k := range out {
		out[k] = seq[k] / seq[0] * variance
	}
	return out
}
