package app_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"gobayes/app"
	"gobayes/domain/core"
	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/internal/hypothesis"
	"gobayes/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func herdSpec() model.Spec {
	return model.Spec{
		Response: model.Response{Variable: "incidence", Modifiers: map[model.ModifierName]model.Modifier{
			model.ModifierTrials: {Column: "size"},
		}},
		Population: []string{"period"},
		Groups:     []model.GroupTerm{{Group: "herd", Coefficients: []string{model.InterceptTerm}}},
		Family:     model.NewFamily(model.FamilyBinomial),
	}
}

func smallControl() sampler.Control {
	return sampler.Control{Iterations: 1000, Warmup: sampler.Int(500), Seed: 1234}
}

func TestFit_BinomialHerdModel(t *testing.T) {
	kit := testkit.NewTestKit()
	data := testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds()

	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    data,
		Priors:  prior.Spec{prior.New("normal(0, 5)", model.ClassB)},
		Control: smallControl(),
	})
	require.NoError(t, err)

	count := func(name string) int {
		n := 0
		for _, p := range result.Names() {
			if p == name {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 1, count("b_period"))
	assert.Equal(t, 1, count("sd_herd_Intercept"))
	assert.Equal(t, 1, count("b_Intercept"))
	effects := 0
	for _, p := range result.Parameters() {
		if p.Class == model.ClassR {
			effects++
		}
	}
	assert.Equal(t, 15, effects)

	assert.Equal(t, 4, result.Chains())
	assert.Equal(t, 500, result.DrawsPerChain())
	assert.Equal(t, data.Rows(), result.Rows())
	assert.Equal(t, data.Fingerprint(), result.DatasetFingerprint())
	assert.Empty(t, result.Warnings())

	r, c := result.LogLik().Dims()
	assert.Equal(t, 2000, r)
	assert.Equal(t, data.Rows(), c)

	stored, err := kit.FitRepository().Get(context.Background(), result.ID())
	require.NoError(t, err)
	assert.Equal(t, result.ID(), stored.ID())
}

func TestFit_EveryParameterHasSummaryWithinDrawBounds(t *testing.T) {
	kit := testkit.NewTestKit()
	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: smallControl(),
	})
	require.NoError(t, err)

	rows := result.Summary()
	require.Len(t, rows, len(result.Names()))
	total := float64(result.TotalDraws())
	for i, row := range rows {
		assert.Equal(t, result.Names()[i], row.Parameter)
		assert.False(t, math.IsNaN(row.Rhat), row.Parameter)
		assert.LessOrEqual(t, row.BulkESS, total, row.Parameter)
		assert.LessOrEqual(t, row.TailESS, total, row.Parameter)
		assert.Less(t, row.Lower, row.Upper, row.Parameter)
	}
}

func TestFit_UnknownPriorClassFailsBeforeSampling(t *testing.T) {
	kit := testkit.NewTestKit()
	_, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:   herdSpec(),
		Data:   testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Priors: prior.Spec{prior.New("normal(0, 1)", model.Class("slope"))},
	})
	require.Error(t, err)
	assert.True(t, core.IsInvalidSpecification(err))
	assert.True(t, errors.Is(err, core.ErrUnknownPriorClass))
	assert.Equal(t, 0, kit.Engine().CompileCalls())
	assert.Equal(t, 0, kit.Engine().SampleCalls())
	assert.Equal(t, 0, kit.FitRepository().Len())
}

func TestFit_SpecificationErrors(t *testing.T) {
	data := testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds()

	tests := []struct {
		name   string
		mutate func(*model.Spec)
		priors prior.Spec
		target error
	}{
		{
			name:   "unknown column",
			mutate: func(s *model.Spec) { s.Population = []string{"season"} },
			target: core.ErrUnknownColumn,
		},
		{
			name: "unresolvable group coefficient",
			mutate: func(s *model.Spec) {
				s.Groups = []model.GroupTerm{{Group: "herd", Coefficients: []string{"Intercept", "altitude"}}}
			},
			target: core.ErrUnresolvedCoefficient,
		},
		{
			name:   "unknown distribution at compile",
			mutate: func(s *model.Spec) {},
			priors: prior.Spec{prior.New("horseshoe(1)", model.ClassB)},
			target: core.ErrUnknownDistribution,
		},
		{
			name:   "prior matching nothing",
			mutate: func(s *model.Spec) {},
			priors: prior.Spec{prior.New("normal(0, 1)", model.ClassSD).ForGroup("farm")},
			target: core.ErrUnmatchedPrior,
		},
		{
			name: "unknown modifier",
			mutate: func(s *model.Spec) {
				s.Response.Modifiers["offset"] = model.Modifier{Column: "size"}
			},
			target: core.ErrUnknownModifier,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := herdSpec()
			tt.mutate(&spec)
			kit := testkit.NewTestKit()
			_, err := kit.FitService().Fit(context.Background(), app.FitRequest{
				Spec: spec, Data: data, Priors: tt.priors, Control: smallControl(),
			})
			require.Error(t, err)
			assert.True(t, core.IsInvalidSpecification(err), err.Error())
			assert.True(t, errors.Is(err, tt.target), err.Error())
			assert.Equal(t, 0, kit.Engine().SampleCalls())
		})
	}
}

func TestFit_InvalidControl(t *testing.T) {
	kit := testkit.NewTestKit()
	_, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: sampler.Control{Iterations: 100, Warmup: sampler.Int(200)},
	})
	assert.True(t, errors.Is(err, core.ErrInvalidControl))
}

func TestFit_SamplerWarnings(t *testing.T) {
	kit := testkit.NewTestKit()
	kit.Engine().DivergentPerChain = 3
	kit.Engine().TreedepthPerChain = 1

	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: smallControl(),
	})
	require.NoError(t, err)
	assert.True(t, result.HasWarning(fit.WarningSamplerDivergence))
	assert.True(t, result.HasWarning(fit.WarningTreedepth))
	assert.Equal(t, 12, result.Diagnostics().Divergences)

	// a threshold above the count silences the divergence warning
	control := smallControl()
	control.DivergenceThreshold = 20
	result, err = kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: control,
	})
	require.NoError(t, err)
	assert.False(t, result.HasWarning(fit.WarningSamplerDivergence))
}

func TestFit_ConvergenceWarningForDisagreeingChains(t *testing.T) {
	kit := testkit.NewTestKit()
	kit.Engine().ChainOffset = 1

	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: smallControl(),
	})
	require.NoError(t, err)
	require.True(t, result.HasWarning(fit.WarningConvergence))

	row, ok := result.SummaryFor("b_period")
	require.True(t, ok)
	assert.Greater(t, row.Rhat, 1.01)
}

func TestFit_ConvergenceWarningForShortChains(t *testing.T) {
	data := dataset.New("short")
	require.NoError(t, data.AddNumeric("y", []float64{1.2, 0.8, 1.9, 1.1, 0.4, 1.5}))

	kit := testkit.NewTestKit()
	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    model.Spec{Response: model.Response{Variable: "y"}, Family: model.NewFamily(model.FamilyGaussian)},
		Data:    data,
		Control: sampler.Control{Iterations: 1003, Warmup: sampler.Int(1000)},
	})
	require.NoError(t, err)

	flagged := make(map[string]bool)
	for _, w := range result.Warnings() {
		if w.Kind == fit.WarningConvergence {
			flagged[w.Parameter] = true
		}
	}
	for _, name := range []string{"b_Intercept", "sigma"} {
		row, ok := result.SummaryFor(name)
		require.True(t, ok)
		assert.True(t, math.IsNaN(row.Rhat), name)
		assert.True(t, flagged[name], "%s has undefined R-hat and must be flagged", name)
	}
}

func TestFit_EngineFailure(t *testing.T) {
	kit := testkit.NewTestKit()
	kit.Engine().SampleErr = errors.New("chain 2 crashed")
	_, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: smallControl(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain 2 crashed")
	assert.False(t, core.IsInvalidSpecification(err))
}

func TestFit_CancelledContext(t *testing.T) {
	kit := testkit.NewTestKit()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := kit.FitService().Fit(ctx, app.FitRequest{
		Spec:    herdSpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Control: smallControl(),
	})
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestFit_FixedSeedReproduces(t *testing.T) {
	data := testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds()
	run := func() *fit.Result {
		r, err := testkit.NewTestKit().FitService().Fit(context.Background(), app.FitRequest{
			Spec: herdSpec(), Data: data, Control: smallControl(),
		})
		require.NoError(t, err)
		return r
	}
	a, b := run(), run()
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())

	sa, _ := a.SummaryFor("b_period")
	sb, _ := b.SummaryFor("b_period")
	assert.InDelta(t, sa.Mean, sb.Mean, 1e-12)
}

func TestFit_PointHypothesisWithPriorDraws(t *testing.T) {
	kit := testkit.NewTestKit()
	kit.Engine().Means["b_period"] = 0.02

	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:        herdSpec(),
		Data:        testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds(),
		Priors:      prior.Spec{prior.New("normal(0, 2)", model.ClassB)},
		Control:     smallControl(),
		SamplePrior: true,
	})
	require.NoError(t, err)

	draws, ok := result.PriorDraws("b_period")
	require.True(t, ok)
	assert.Len(t, draws, result.TotalDraws())
	_, ok = result.PriorDraws("b_Intercept")
	assert.False(t, ok, "flat priors are not sampled")

	out, err := app.NewAnalysisService().Hypothesis(result, []string{"period = 0"}, hypothesis.Options{})
	require.NoError(t, err)
	require.Len(t, out, 1)
	// posterior mass near zero is far denser than under normal(0, 2)
	assert.Greater(t, out[0].EvidenceRatio, 1.0)
	assert.True(t, strings.HasPrefix(out[0].Parameters[0], "b_period"))
}
