package diagnostics

import (
	"fmt"
	"math"
	"sort"

	"gobayes/domain/fit"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

// DefaultProb is the default credible interval probability
const DefaultProb = 0.95

// Convergence thresholds
const (
	RhatThreshold        = 1.01
	BulkESSPerChainFloor = 100
)

// Quantile returns the p-quantile of draws by linear interpolation
func Quantile(draws []float64, p float64) float64 {
	if len(draws) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// Interval returns the central credible interval holding prob of the draws
func Interval(draws []float64, prob float64) (float64, float64) {
	if len(draws) == 0 {
		return math.NaN(), math.NaN()
	}
	sorted := append([]float64(nil), draws...)
	sort.Float64s(sorted)
	alpha := (1 - prob) / 2
	return stat.Quantile(alpha, stat.LinInterp, sorted, nil),
		stat.Quantile(1-alpha, stat.LinInterp, sorted, nil)
}

// Summarize computes one summary row from per-chain draws
func Summarize(name string, chains [][]float64, prob float64) fit.ParameterSummary {
	if prob <= 0 || prob >= 1 {
		prob = DefaultProb
	}
	row := fit.ParameterSummary{
		Parameter: name, Prob: prob,
		Mean: math.NaN(), SD: math.NaN(), Lower: math.NaN(), Upper: math.NaN(),
		Rhat: Rhat(chains), BulkESS: BulkESS(chains), TailESS: TailESS(chains),
	}
	draws := pool(chains)
	if mean, err := stats.Mean(draws); err == nil {
		row.Mean = mean
	}
	if len(draws) > 1 {
		if sd, err := stats.StandardDeviationSample(draws); err == nil {
			row.SD = sd
		}
	}
	row.Lower, row.Upper = Interval(draws, prob)
	return row
}

// SummarizeResult summarizes every parameter of a result in layout order
func SummarizeResult(r *fit.Result, prob float64) []fit.ParameterSummary {
	names := r.Names()
	rows := make([]fit.ParameterSummary, 0, len(names))
	for _, name := range names {
		chains, _ := r.Draws(name)
		rows = append(rows, Summarize(name, chains, prob))
	}
	return rows
}

// ConvergenceWarnings flags parameters with R-hat above 1.01 or a bulk ESS
// below 100 per chain. An R-hat that cannot be computed, from chains too
// short or holding non-finite draws, is flagged as well.
func ConvergenceWarnings(rows []fit.ParameterSummary, chains int) []fit.Warning {
	var warnings []fit.Warning
	floor := float64(BulkESSPerChainFloor * chains)
	for _, row := range rows {
		switch {
		case math.IsInf(row.Rhat, 1) || (!math.IsNaN(row.Rhat) && row.Rhat > RhatThreshold):
			warnings = append(warnings, fit.Warning{
				Kind:      fit.WarningConvergence,
				Parameter: row.Parameter,
				Value:     row.Rhat,
				Message:   fmt.Sprintf("R-hat %.3f exceeds %.2f; chains have not mixed", row.Rhat, RhatThreshold),
			})
		case math.IsNaN(row.Rhat):
			warnings = append(warnings, fit.Warning{
				Kind:      fit.WarningConvergence,
				Parameter: row.Parameter,
				Value:     row.Rhat,
				Message:   "R-hat is undefined; chains are too short or hold non-finite draws",
			})
		case !math.IsNaN(row.BulkESS) && row.BulkESS < floor:
			warnings = append(warnings, fit.Warning{
				Kind:      fit.WarningConvergence,
				Parameter: row.Parameter,
				Value:     row.BulkESS,
				Message:   fmt.Sprintf("bulk ESS %.0f is below %.0f; run more iterations", row.BulkESS, floor),
			})
		}
	}
	return warnings
}
