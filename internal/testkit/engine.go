package testkit

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/sampler"
	"gobayes/ports"
)

// FakeEngineName identifies programs compiled by FakeEngine
const FakeEngineName = "fake"

var knownDistributions = map[string]bool{
	"normal": true, "std_normal": true, "student_t": true, "cauchy": true,
	"exponential": true, "gamma": true, "inv_gamma": true, "lognormal": true,
	"beta": true, "uniform": true, "lkj": true, "lkj_corr_cholesky": true,
	"double_exponential": true, "laplace": true, "logistic": true,
}

// FakeEngine implements ports.SamplerEngine without an external process.
// Every parameter gets an AR(1) sequence around its configured mean, so
// summaries and diagnostics behave like those of a well mixed sampler.
type FakeEngine struct {
	// Means centers parameters by name. Unlisted parameters center on 0,
	// or 1 when bounded below.
	Means map[string]float64
	// SD is the marginal standard deviation of every parameter
	SD float64
	// Rho is the lag-1 autocorrelation within a chain
	Rho float64
	// ChainOffset shifts chain c by c*ChainOffset, producing chains that
	// disagree
	ChainOffset float64
	// DivergentPerChain and TreedepthPerChain are reported by every chain
	DivergentPerChain int
	TreedepthPerChain int
	// SampleErr fails Sample when set
	SampleErr error

	rng ports.RNGPort

	mu           sync.Mutex
	compileCalls int
	sampleCalls  int
}

// NewFakeEngine creates a fake engine drawing from rng streams
func NewFakeEngine(rng ports.RNGPort) *FakeEngine {
	return &FakeEngine{
		Means: make(map[string]float64),
		SD:    0.1,
		Rho:   0.2,
		rng:   rng,
	}
}

func (e *FakeEngine) Name() string { return FakeEngineName }

// CompileCalls returns how often Compile was called
func (e *FakeEngine) CompileCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileCalls
}

// SampleCalls returns how often Sample was called
func (e *FakeEngine) SampleCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleCalls
}

// Compile checks prior distribution names the way a real engine would and
// records one line per parameter as the program.
func (e *FakeEngine) Compile(ctx context.Context, req ports.CompileRequest) (*fit.CompiledModel, error) {
	e.mu.Lock()
	e.compileCalls++
	e.mu.Unlock()

	lines := []string{"family " + req.Layout.Family().String()}
	for _, r := range req.Priors {
		if !r.Distribution.IsFlat() && !knownDistributions[r.Distribution.Name] {
			return nil, fmt.Errorf("%w %q", core.ErrUnknownDistribution, r.Distribution.Name)
		}
		lines = append(lines, fmt.Sprintf("%s ~ %s", r.Parameter.Name, r.Distribution))
	}
	for _, p := range req.Layout.Parameters() {
		if p.Class == model.ClassR {
			lines = append(lines, p.Name)
		}
	}
	program := strings.Join(lines, "\n")
	return &fit.CompiledModel{
		Engine:  FakeEngineName,
		Program: program,
		Hash:    core.ComputeHash(lines...),
	}, nil
}

// Sample produces control.DrawsPerChain() draws per chain
func (e *FakeEngine) Sample(ctx context.Context, compiled *fit.CompiledModel, layout *model.Layout, control sampler.Control) (*ports.RawDraws, error) {
	e.mu.Lock()
	e.sampleCalls++
	e.mu.Unlock()

	if e.SampleErr != nil {
		return nil, e.SampleErr
	}
	if compiled == nil || compiled.Engine != FakeEngineName {
		return nil, fmt.Errorf("model was not compiled by %s", FakeEngineName)
	}

	n := control.DrawsPerChain()
	params := layout.Parameters()
	raw := &ports.RawDraws{}
	for c := 1; c <= control.Chains; c++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rng, err := e.rng.Stream(ctx, compiled.Hash.String(), "chain", c, control.Seed)
		if err != nil {
			return nil, err
		}

		chain := ports.ChainDraws{
			Chain:         c,
			Columns:       make(map[string][]float64, len(params)),
			Divergent:     e.DivergentPerChain,
			TreedepthHits: e.TreedepthPerChain,
			StepSize:      0.5,
		}
		innovation := e.SD * math.Sqrt(1-e.Rho*e.Rho)
		for _, p := range params {
			mean := e.mean(p, layout)
			values := make([]float64, n)
			x := rng.NormFloat64() * e.SD
			for i := range values {
				x = e.Rho*x + innovation*rng.NormFloat64()
				values[i] = constrain(p, mean+x+float64(c-1)*e.ChainOffset)
			}
			chain.Columns[p.Name] = values
		}
		orderThresholds(layout, chain.Columns, n)
		raw.Chains = append(raw.Chains, chain)
	}
	return raw, nil
}

func (e *FakeEngine) mean(p model.Parameter, layout *model.Layout) float64 {
	if m, ok := e.Means[p.Name]; ok {
		return m
	}
	if p.Class == model.ClassIntercept && p.Index > 0 {
		// spread thresholds symmetrically around zero
		return float64(p.Index) - float64(layout.Design().Thresholds+1)/2
	}
	if p.Lower != nil && p.Upper == nil {
		return *p.Lower + 1
	}
	return 0
}

func constrain(p model.Parameter, v float64) float64 {
	switch {
	case p.Lower != nil && p.Upper != nil:
		mid := (*p.Lower + *p.Upper) / 2
		half := (*p.Upper - *p.Lower) / 2
		return mid + half*math.Tanh(v)
	case p.Lower != nil:
		return *p.Lower + math.Abs(v-*p.Lower)
	case p.Upper != nil:
		return *p.Upper - math.Abs(*p.Upper-v)
	}
	return v
}

// orderThresholds sorts flexible ordinal thresholds within every draw
func orderThresholds(layout *model.Layout, columns map[string][]float64, n int) {
	d := layout.Design()
	if d.Thresholds < 2 || d.Equidistant {
		return
	}
	cut := make([]float64, d.Thresholds)
	for i := 0; i < n; i++ {
		for k := range cut {
			cut[k] = columns[model.ThresholdName(k+1)][i]
		}
		sort.Float64s(cut)
		for k, v := range cut {
			columns[model.ThresholdName(k+1)][i] = v
		}
	}
}
