package diagnostics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Rhat returns the rank-normalized split R-hat: the larger of the bulk
// value (rank-normalized draws) and the tail value (rank-normalized folded
// draws). Identical draws everywhere give 1; chains that are each constant
// but disagree give +Inf. Fewer than 4 draws per chain give NaN.
func Rhat(chains [][]float64) float64 {
	if !balanced(chains) || len(chains[0]) < 4 || !allFinite(chains) {
		return math.NaN()
	}
	if isConstant(chains) {
		return 1
	}
	split := splitChains(chains)
	bulk := basicRhat(rankNormalize(split))
	tail := basicRhat(rankNormalize(fold(split)))
	return math.Max(bulk, tail)
}

// BasicRhat is the classic potential scale reduction factor on split
// chains, without rank normalization.
func BasicRhat(chains [][]float64) float64 {
	if !balanced(chains) || len(chains[0]) < 4 || !allFinite(chains) {
		return math.NaN()
	}
	if isConstant(chains) {
		return 1
	}
	return basicRhat(splitChains(chains))
}

func basicRhat(chains [][]float64) float64 {
	n := float64(len(chains[0]))
	means := make([]float64, len(chains))
	vars := make([]float64, len(chains))
	for i, c := range chains {
		means[i], vars[i] = stat.MeanVariance(c, nil)
	}
	within := stat.Mean(vars, nil)
	between := n * stat.Variance(means, nil)
	if within == 0 {
		if between == 0 {
			return 1
		}
		return math.Inf(1)
	}
	varPlus := (n-1)/n*within + between/n
	return math.Sqrt(varPlus / within)
}
