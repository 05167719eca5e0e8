package loo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// minTail is the smallest tail that is fitted with a generalized Pareto
const minTail = 5

const epsilon = 2.220446049250313e-16

// smooth Pareto-smooths log importance ratios. It returns the smoothed
// log weights (normalized to a maximum of 0 and truncated there) and the
// estimated shape k of the tail.
func smooth(lw []float64) ([]float64, float64) {
	s := len(lw)
	out := append([]float64(nil), lw...)
	floats.AddConst(-floats.Max(out), out)

	tailLen := int(math.Ceil(math.Min(0.2*float64(s), 3*math.Sqrt(float64(s)))))
	k := math.Inf(1)
	if tailLen >= minTail && tailLen < s {
		order := make([]int, s)
		for i := range order {
			order[i] = i
		}
		sort.Slice(order, func(a, b int) bool { return out[order[a]] < out[order[b]] })

		tail := make([]float64, tailLen)
		for j := range tail {
			tail[j] = out[order[s-tailLen+j]]
		}
		cutoff := out[order[s-tailLen-1]]
		if tail[tailLen-1]-tail[0] > epsilon/100 {
			smoothed, kHat := smoothTail(tail, cutoff)
			k = kHat
			if !math.IsInf(kHat, 0) {
				for j, v := range smoothed {
					out[order[s-tailLen+j]] = v
				}
			}
		} else {
			k = 0
		}
	}

	for i, v := range out {
		if v > 0 {
			out[i] = 0
		}
	}
	return out, k
}

// smoothTail replaces the sorted tail by expected order statistics of a
// generalized Pareto fitted above cutoff.
func smoothTail(tail []float64, cutoff float64) ([]float64, float64) {
	expCutoff := math.Exp(cutoff)
	x := make([]float64, len(tail))
	for i, v := range tail {
		x[i] = math.Exp(v) - expCutoff
	}
	k, sigma := gpdFit(x)
	if math.IsInf(k, 0) || math.IsNaN(k) {
		return tail, math.Inf(1)
	}
	out := make([]float64, len(tail))
	n := float64(len(tail))
	for i := range out {
		p := (float64(i) + 0.5) / n
		out[i] = math.Log(gpdQuantile(p, k, sigma) + expCutoff)
	}
	return out, k
}

// gpdFit estimates the generalized Pareto shape and scale of ascending
// exceedances x with the empirical Bayes method of Zhang and Stephens,
// shrinking k towards 0.5 for small samples.
func gpdFit(x []float64) (float64, float64) {
	n := len(x)
	const prior = 3.0
	const minGridPoints = 30
	m := minGridPoints + int(math.Floor(math.Sqrt(float64(n))))

	xStar := x[int(math.Floor(float64(n)/4+0.5))-1]
	xMax := x[n-1]
	if xStar <= 0 || xMax <= 0 {
		return math.Inf(1), 0
	}

	theta := make([]float64, m)
	logLik := make([]float64, m)
	for j := range theta {
		theta[j] = 1/xMax + (1-math.Sqrt(float64(m)/(float64(j+1)-0.5)))/prior/xStar
		logLik[j] = float64(n) * profileLogLik(theta[j], x)
	}

	norm := floats.LogSumExp(logLik)
	thetaHat := 0.0
	for j := range theta {
		thetaHat += theta[j] * math.Exp(logLik[j]-norm)
	}

	k := 0.0
	for _, v := range x {
		k += math.Log1p(-thetaHat * v)
	}
	k /= float64(n)
	sigma := -k / thetaHat

	// weakly informative adjustment
	const a = 10.0
	k = k*float64(n)/(float64(n)+a) + a*0.5/(float64(n)+a)
	if math.IsNaN(k) {
		k = math.Inf(1)
	}
	return k, sigma
}

func profileLogLik(theta float64, x []float64) float64 {
	a := -theta
	k := 0.0
	for _, v := range x {
		k += math.Log1p(a * v)
	}
	k /= float64(len(x))
	return math.Log(a/k) - k - 1
}

// gpdQuantile is the quantile function of the generalized Pareto with
// location 0
func gpdQuantile(p, k, sigma float64) float64 {
	if k == 0 {
		return -sigma * math.Log1p(-p)
	}
	return sigma * math.Expm1(-k*math.Log1p(-p)) / k
}
