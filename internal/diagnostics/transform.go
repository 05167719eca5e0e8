package diagnostics

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// splitChains halves every chain, doubling the chain count. With an odd
// length the middle draw is dropped.
func splitChains(chains [][]float64) [][]float64 {
	out := make([][]float64, 0, 2*len(chains))
	for _, c := range chains {
		half := len(c) / 2
		out = append(out, c[:half], c[len(c)-half:])
	}
	return out
}

// pool concatenates chains in order
func pool(chains [][]float64) []float64 {
	n := 0
	for _, c := range chains {
		n += len(c)
	}
	out := make([]float64, 0, n)
	for _, c := range chains {
		out = append(out, c...)
	}
	return out
}

// reshape cuts pooled values back into chains of the given lengths
func reshape(values []float64, like [][]float64) [][]float64 {
	out := make([][]float64, len(like))
	pos := 0
	for i, c := range like {
		out[i] = values[pos : pos+len(c)]
		pos += len(c)
	}
	return out
}

// rankNormalize replaces draws by normal scores of their pooled ranks
// (average ranks for ties, Blom offset 3/8).
func rankNormalize(chains [][]float64) [][]float64 {
	values := pool(chains)
	ranks := averageRanks(values)
	s := float64(len(values))
	z := make([]float64, len(values))
	for i, r := range ranks {
		z[i] = distuv.UnitNormal.Quantile((r - 3.0/8.0) / (s + 1.0/4.0))
	}
	return reshape(z, chains)
}

// averageRanks returns 1-based ranks with ties sharing their mean rank
func averageRanks(values []float64) []float64 {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks := make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && values[idx[j+1]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// fold maps draws to their absolute deviation from the pooled median
func fold(chains [][]float64) [][]float64 {
	values := pool(chains)
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	median := stat.Quantile(0.5, stat.LinInterp, sorted, nil)
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = math.Abs(v - median)
	}
	return reshape(out, chains)
}

// indicator maps draws to 1 where v <= cut and 0 elsewhere
func indicator(chains [][]float64, cut float64) [][]float64 {
	out := make([][]float64, len(chains))
	for i, c := range chains {
		out[i] = make([]float64, len(c))
		for j, v := range c {
			if v <= cut {
				out[i][j] = 1
			}
		}
	}
	return out
}

func allFinite(chains [][]float64) bool {
	for _, c := range chains {
		for _, v := range c {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

func isConstant(chains [][]float64) bool {
	first := math.NaN()
	for _, c := range chains {
		for _, v := range c {
			if math.IsNaN(first) {
				first = v
				continue
			}
			if v != first {
				return false
			}
		}
	}
	return true
}

// balanced reports whether all chains have the same, nonzero length
func balanced(chains [][]float64) bool {
	if len(chains) == 0 || len(chains[0]) == 0 {
		return false
	}
	for _, c := range chains {
		if len(c) != len(chains[0]) {
			return false
		}
	}
	return true
}
