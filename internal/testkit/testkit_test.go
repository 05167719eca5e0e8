package testkit

import (
	"context"
	"errors"
	"math"
	"testing"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestDatasetGenerator_Deterministic(t *testing.T) {
	a := NewDatasetGenerator(DefaultGeneratorConfig()).Herds()
	b := NewDatasetGenerator(DefaultGeneratorConfig()).Herds()
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, 60, a.Rows())

	other := DefaultGeneratorConfig()
	other.Seed = 7
	assert.NotEqual(t, a.Fingerprint(), NewDatasetGenerator(other).Herds().Fingerprint())
}

func TestDatasetGenerator_Shapes(t *testing.T) {
	g := NewDatasetGenerator(DefaultGeneratorConfig())

	herds := g.Herds()
	incidence, _ := herds.Column("incidence")
	size, _ := herds.Column("size")
	for i, v := range incidence.Numbers {
		assert.LessOrEqual(t, v, size.Numbers[i])
	}
	herd, ok := herds.Column("herd")
	require.True(t, ok)
	assert.Len(t, herd.Levels(), 15)

	kidney := g.Kidney()
	censored, _ := kidney.Column("censored")
	for _, v := range censored.Numbers {
		assert.Contains(t, []float64{0, 1}, v)
	}

	inhaler := g.Inhaler()
	rating, _ := inhaler.Column("rating")
	for _, v := range rating.Numbers {
		assert.GreaterOrEqual(t, v, 1.0)
		assert.LessOrEqual(t, v, 4.0)
	}
	assert.Equal(t, 30, inhaler.Rows())
	assert.Equal(t, 60, g.Epilepsy().Rows())
}

func herdLayout(t *testing.T) *model.Layout {
	t.Helper()
	spec := model.Spec{
		Response: model.Response{Variable: "incidence", Modifiers: map[model.ModifierName]model.Modifier{
			model.ModifierTrials: {Column: "size"},
		}},
		Population: []string{"period"},
		Groups:     []model.GroupTerm{{Group: "herd", Coefficients: []string{model.InterceptTerm}}},
		Family:     model.NewFamily(model.FamilyBinomial),
	}
	layout, err := model.BuildLayout(&spec, NewDatasetGenerator(DefaultGeneratorConfig()).Herds())
	require.NoError(t, err)
	return layout
}

func TestFakeEngine_CompileRejectsUnknownDistribution(t *testing.T) {
	layout := herdLayout(t)
	resolved, err := prior.Resolve(prior.Spec{prior.New("wibble(1)", model.ClassB)}, layout)
	require.NoError(t, err)

	engine := NewFakeEngine(&RNGAdapter{})
	_, err = engine.Compile(context.Background(), ports.CompileRequest{Layout: layout, Priors: resolved})
	assert.True(t, errors.Is(err, core.ErrUnknownDistribution))
	assert.Equal(t, 1, engine.CompileCalls())
}

func TestFakeEngine_Sample(t *testing.T) {
	layout := herdLayout(t)
	engine := NewFakeEngine(&RNGAdapter{})
	engine.Means["b_period"] = -0.5
	engine.DivergentPerChain = 2
	ctx := context.Background()

	compiled, err := engine.Compile(ctx, ports.CompileRequest{Layout: layout})
	require.NoError(t, err)

	control := sampler.Defaults()
	control.Iterations, control.Warmup, control.Seed = 400, sampler.Int(200), 11
	raw, err := engine.Sample(ctx, compiled, layout, control)
	require.NoError(t, err)
	require.Len(t, raw.Chains, 4)

	for _, chain := range raw.Chains {
		assert.Equal(t, 2, chain.Divergent)
		for _, name := range layout.Names() {
			assert.Len(t, chain.Columns[name], 200, name)
		}
		for _, v := range chain.Columns["sd_herd_Intercept"] {
			assert.GreaterOrEqual(t, v, 0.0)
		}
	}

	again, err := engine.Sample(ctx, compiled, layout, control)
	require.NoError(t, err)
	assert.Equal(t, raw.Chains[2].Columns["b_period"], again.Chains[2].Columns["b_period"])
	assert.Equal(t, 2, engine.SampleCalls())
}

func TestFakeEngine_OrderedThresholds(t *testing.T) {
	spec := model.Spec{
		Response:   model.Response{Variable: "rating"},
		Population: []string{"treat"},
		Family:     model.NewFamily(model.FamilyCumulative),
	}
	layout, err := model.BuildLayout(&spec, NewDatasetGenerator(DefaultGeneratorConfig()).Inhaler())
	require.NoError(t, err)

	engine := NewFakeEngine(&RNGAdapter{})
	engine.SD = 2
	compiled, err := engine.Compile(context.Background(), ports.CompileRequest{Layout: layout})
	require.NoError(t, err)
	control := sampler.Defaults()
	control.Iterations, control.Warmup, control.Chains = 100, sampler.Int(50), 1
	raw, err := engine.Sample(context.Background(), compiled, layout, control)
	require.NoError(t, err)

	thresholds := layout.Design().Thresholds
	cols := raw.Chains[0].Columns
	for i := 0; i < 50; i++ {
		for k := 2; k <= thresholds; k++ {
			assert.LessOrEqual(t, cols[model.ThresholdName(k-1)][i], cols[model.ThresholdName(k)][i])
		}
	}
}

func TestInMemoryFitRepository_NotFound(t *testing.T) {
	repo := NewInMemoryFitRepository()
	_, err := repo.Get(context.Background(), core.FitID("missing"))
	assert.True(t, errors.Is(err, core.ErrFitNotFound))
	assert.True(t, core.IsNotFoundError(repo.Delete(context.Background(), core.FitID("missing"))))
}

func TestInMemoryFitRepository_NonFiniteRoundTrip(t *testing.T) {
	ll := mat.NewDense(4, 2, []float64{-0.1, math.Inf(-1), -0.2, -3, -0.1, -2, math.NaN(), -1})
	result := fit.NewResult(fit.Params{
		ID:         core.NewFitID(),
		Parameters: []model.Parameter{{Name: "b_Intercept", Class: model.ClassIntercept}},
		Draws:      map[string][][]float64{"b_Intercept": {{40, 41}, {math.Inf(1), 39}}},
		LogLik:     ll,
		Rows:       2,
	})

	repo := NewInMemoryFitRepository()
	ctx := context.Background()
	require.NoError(t, repo.Save(ctx, result))

	back, err := repo.Get(ctx, result.ID())
	require.NoError(t, err)
	assert.NotSame(t, result, back)
	assert.True(t, math.IsInf(back.LogLik().At(0, 1), -1))
	assert.True(t, math.IsNaN(back.LogLik().At(3, 0)))
	assert.Equal(t, -3.0, back.LogLik().At(1, 1))

	draws, ok := back.Draws("b_Intercept")
	require.True(t, ok)
	assert.True(t, math.IsInf(draws[1][0], 1))

	list, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, result.ID(), list[0].ID)
}
