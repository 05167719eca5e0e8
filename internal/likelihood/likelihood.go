// Package likelihood computes the pointwise log-likelihood of a fitted
// model: one row per posterior draw and one column per observation. It is
// the input of WAIC and PSIS-LOO.
package likelihood

import (
	"fmt"
	"math"

	"gobayes/domain/core"
	"gobayes/domain/model"

	"gonum.org/v1/gonum/mat"
)

// DrawSource supplies pooled posterior draws by parameter name.
// *fit.Result satisfies it.
type DrawSource interface {
	PooledDraws(name string) ([]float64, bool)
}

// Draws is a map-backed DrawSource
type Draws map[string][]float64

func (d Draws) PooledDraws(name string) ([]float64, bool) {
	v, ok := d[name]
	return v, ok
}

type evaluator struct {
	layout *model.Layout
	design *model.Design
	family model.Family
	source DrawSource
	draws  int
}

// Evaluate returns the draws x observations log-likelihood matrix.
func Evaluate(layout *model.Layout, source DrawSource) (*mat.Dense, error) {
	e := &evaluator{
		layout: layout,
		design: layout.Design(),
		family: layout.Family(),
		source: source,
		draws:  -1,
	}
	if e.design.N == 0 {
		return nil, fmt.Errorf("%w: no observations", core.ErrInsufficientDraws)
	}

	eta, err := e.linearPredictor()
	if err != nil {
		return nil, err
	}
	if e.draws <= 0 {
		return nil, fmt.Errorf("%w: no draws", core.ErrInsufficientDraws)
	}

	out := mat.NewDense(e.draws, e.design.N, nil)
	if e.family.IsOrdinal() {
		err = e.ordinal(eta, out)
	} else {
		err = e.univariate(eta, out)
	}
	if err != nil {
		return nil, err
	}

	if w := e.design.Weights; w != nil {
		for s := 0; s < e.draws; s++ {
			for i := 0; i < e.design.N; i++ {
				out.Set(s, i, out.At(s, i)*w[i])
			}
		}
	}
	return out, nil
}

// get returns the pooled draws of a parameter, checking that all
// parameters have the same number of draws.
func (e *evaluator) get(name string) ([]float64, error) {
	values, ok := e.source.PooledDraws(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrParameterNotFound, name)
	}
	if e.draws < 0 {
		e.draws = len(values)
	} else if len(values) != e.draws {
		return nil, fmt.Errorf("parameter %s has %d draws, expected %d", name, len(values), e.draws)
	}
	return values, nil
}

// linearPredictor returns eta as an N x S matrix. For ordinal families the
// intercept is absorbed in the thresholds.
func (e *evaluator) linearPredictor() (*mat.Dense, error) {
	d := e.design
	var eta *mat.Dense

	if d.X != nil && len(d.Coefs) > 0 {
		b, err := e.matrix(prefixed("b_", d.Coefs))
		if err != nil {
			return nil, err
		}
		eta = mat.NewDense(d.N, e.draws, nil)
		eta.Mul(d.X, b)
	}

	if d.Intercept && !e.family.IsOrdinal() {
		intercept, err := e.get("b_Intercept")
		if err != nil {
			return nil, err
		}
		if eta == nil {
			eta = mat.NewDense(d.N, e.draws, nil)
		}
		for i := 0; i < d.N; i++ {
			row := eta.RawRowView(i)
			for s := range row {
				row[s] += intercept[s]
			}
		}
	}

	for _, g := range d.Groups {
		for m, coef := range g.Coefs {
			levels := make([][]float64, len(g.Levels))
			for l, level := range g.Levels {
				values, err := e.get(model.RName(g.Group, level, coef))
				if err != nil {
					return nil, err
				}
				levels[l] = values
			}
			if eta == nil {
				eta = mat.NewDense(d.N, e.draws, nil)
			}
			for i := 0; i < d.N; i++ {
				z := g.Z.At(i, m)
				if z == 0 {
					continue
				}
				r := levels[g.Index[i]]
				row := eta.RawRowView(i)
				for s := range row {
					row[s] += z * r[s]
				}
			}
		}
	}

	if eta == nil {
		// a model without any location parameter still needs a draw count
		if err := e.countDraws(); err != nil {
			return nil, err
		}
		eta = mat.NewDense(d.N, e.draws, nil)
	}
	return eta, nil
}

func (e *evaluator) countDraws() error {
	for _, p := range e.layout.Parameters() {
		if _, err := e.get(p.Name); err != nil {
			return err
		}
		return nil
	}
	return fmt.Errorf("%w: model has no parameters", core.ErrInsufficientDraws)
}

// matrix stacks the draws of names as rows of a len(names) x S matrix
func (e *evaluator) matrix(names []string) (*mat.Dense, error) {
	var m *mat.Dense
	for k, name := range names {
		values, err := e.get(name)
		if err != nil {
			return nil, err
		}
		if m == nil {
			m = mat.NewDense(len(names), len(values), nil)
		}
		m.SetRow(k, values)
	}
	return m, nil
}

func prefixed(prefix string, names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = prefix + n
	}
	return out
}

func (e *evaluator) auxDraws() (func(s int) aux, error) {
	series := make(map[model.Class][]float64)
	for _, class := range e.family.AuxClasses() {
		values, err := e.get(string(class))
		if err != nil {
			return nil, err
		}
		series[class] = values
	}
	at := func(class model.Class, s int) float64 {
		if v, ok := series[class]; ok {
			return v[s]
		}
		return 0
	}
	return func(s int) aux {
		return aux{
			sigma: at(model.ClassSigma, s),
			nu:    at(model.ClassNu, s),
			shape: at(model.ClassShape, s),
			phi:   at(model.ClassPhi, s),
		}
	}, nil
}

func (e *evaluator) univariate(eta *mat.Dense, out *mat.Dense) error {
	d := e.design
	binary := e.family.Name == model.FamilyBernoulli || e.family.Name == model.FamilyBinomial
	var (
		inv   func(float64) float64
		probs func(float64) (float64, float64)
		err   error
	)
	if binary {
		probs, err = logProbs(e.family.Link)
	} else {
		inv, err = inverseLink(e.family.Link)
	}
	if err != nil {
		return err
	}
	auxAt, err := e.auxDraws()
	if err != nil {
		return err
	}
	discrete := e.family.IsDiscrete()

	for i := 0; i < d.N; i++ {
		y := d.Y[i]
		trials, se, rate := 1.0, 0.0, 1.0
		if d.Trials != nil {
			trials = d.Trials[i]
		}
		if d.SE != nil {
			se = d.SE[i]
		}
		if d.Rate != nil {
			rate = d.Rate[i]
		}
		cens := 0
		if d.Cens != nil {
			cens = d.Cens[i]
		}
		row := eta.RawRowView(i)
		for s := 0; s < e.draws; s++ {
			var dens density
			switch {
			case math.IsNaN(row[s]):
				dens = invalid{}
			case binary:
				logP, log1mP := probs(row[s])
				dens = binomialLink{trials: trials, logP: logP, log1mP: log1mP}
			default:
				dens = responseDensity(e.family.Name, inv(row[s])*rate, auxAt(s), se)
			}
			out.Set(s, i, e.pointwise(dens, y, cens, discrete))
		}
	}
	return nil
}

// pointwise applies censoring and truncation to one density evaluation
func (e *evaluator) pointwise(dens density, y float64, cens int, discrete bool) float64 {
	var ll float64
	switch cens {
	case -1:
		ll = logCDF(dens, y)
	case 1:
		ll = logCCDF(dens, y)
	default:
		ll = dens.LogProb(y)
	}

	d := e.design
	if d.Lower == nil && d.Upper == nil {
		return ll
	}
	lower := math.Inf(-1)
	if d.Lower != nil {
		lower = logCDF(dens, *d.Lower)
		if discrete {
			lower = logCDF(dens, *d.Lower-1)
		}
	}
	upper := 0.0
	if d.Upper != nil {
		upper = logCDF(dens, *d.Upper)
	}
	return ll - logDiffExp(upper, lower)
}

// ordinal evaluates the cumulative model: P(y = k) = F(t_k - eta) -
// F(t_{k-1} - eta), with category-specific effects shifting each threshold.
// The difference is taken on the log scale, from the upper tail when both
// cutpoints lie above zero.
func (e *evaluator) ordinal(eta *mat.Dense, out *mat.Dense) error {
	d := e.design
	probs, err := logProbs(e.family.Link)
	if err != nil {
		return err
	}

	thresholds, err := e.thresholds()
	if err != nil {
		return err
	}

	// cs[k] is N x S: the category-specific shift of threshold k
	cs := make([]*mat.Dense, d.Thresholds)
	if d.XCS != nil && len(d.CSCoefs) > 0 {
		for k := 1; k <= d.Thresholds; k++ {
			names := make([]string, len(d.CSCoefs))
			for j, coef := range d.CSCoefs {
				names[j] = model.CSName(coef, k)
			}
			b, err := e.matrix(names)
			if err != nil {
				return err
			}
			cs[k-1] = mat.NewDense(d.N, e.draws, nil)
			cs[k-1].Mul(d.XCS, b)
		}
	}

	cut := func(k, i, s int) float64 {
		if k < 1 {
			return math.Inf(-1)
		}
		if k > d.Thresholds {
			return math.Inf(1)
		}
		c := thresholds[k-1][s] - eta.At(i, s)
		if cs[k-1] != nil {
			c -= cs[k-1].At(i, s)
		}
		return c
	}

	for i := 0; i < d.N; i++ {
		k := int(d.Y[i])
		for s := 0; s < e.draws; s++ {
			hi, lo := cut(k, i, s), cut(k-1, i, s)
			out.Set(s, i, logCategory(probs, lo, hi))
		}
	}
	return nil
}

// logCategory returns log(F(hi) - F(lo)) given the log CDF and log survival
// function of the latent distribution.
func logCategory(probs func(float64) (float64, float64), lo, hi float64) float64 {
	if math.IsNaN(lo) || math.IsNaN(hi) {
		return math.NaN()
	}
	upper := math.IsInf(hi, 1)
	lower := math.IsInf(lo, -1)
	switch {
	case upper && lower:
		return 0
	case upper:
		_, logS := probs(lo)
		return logS
	case lower:
		logF, _ := probs(hi)
		return logF
	case lo > 0:
		_, logSLo := probs(lo)
		_, logSHi := probs(hi)
		return logDiffExp(logSLo, logSHi)
	}
	logFHi, _ := probs(hi)
	logFLo, _ := probs(lo)
	return logDiffExp(logFHi, logFLo)
}

// thresholds returns the draws of every ordinal threshold
func (e *evaluator) thresholds() ([][]float64, error) {
	d := e.design
	out := make([][]float64, d.Thresholds)
	if !d.Equidistant {
		for k := 1; k <= d.Thresholds; k++ {
			values, err := e.get(model.ThresholdName(k))
			if err != nil {
				return nil, err
			}
			out[k-1] = values
		}
		return out, nil
	}

	first, err := e.get(model.ThresholdName(1))
	if err != nil {
		return nil, err
	}
	delta, err := e.get("delta")
	if err != nil {
		return nil, err
	}
	for k := range out {
		out[k] = make([]float64, len(first))
		for s := range first {
			out[k][s] = first[s] + float64(k)*delta[s]
		}
	}
	return out, nil
}
