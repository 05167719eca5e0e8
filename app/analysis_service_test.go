package app_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"gobayes/app"
	"gobayes/domain/core"
	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/sampler"
	"gobayes/internal/hypothesis"
	"gobayes/internal/report"
	"gobayes/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epilepsySpec() model.Spec {
	return model.Spec{
		Response:   model.Response{Variable: "count"},
		Population: []string{"age", "treat"},
		Groups:     []model.GroupTerm{{Group: "patient", Coefficients: []string{"Intercept", "age"}}},
		Family:     model.NewFamily(model.FamilyPoisson),
	}
}

func fitEpilepsy(t *testing.T, means map[string]float64) *fit.Result {
	t.Helper()
	kit := testkit.NewTestKit()
	for name, m := range means {
		kit.Engine().Means[name] = m
	}
	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    epilepsySpec(),
		Data:    testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Epilepsy(),
		Control: smallControl(),
	})
	require.NoError(t, err)
	return result
}

func rowOf(t *testing.T, sections []report.Section, name string) fit.ParameterSummary {
	t.Helper()
	for _, sec := range sections {
		for _, row := range sec.Rows {
			if row.Parameter == name {
				return row
			}
		}
	}
	t.Fatalf("no summary row for %s", name)
	return fit.ParameterSummary{}
}

func TestAnalysis_SdHypothesisByGroup(t *testing.T) {
	analysis := app.NewAnalysisService()
	opts := hypothesis.Options{Class: "sd", Group: "patient"}

	favoring := fitEpilepsy(t, map[string]float64{"sd_patient_Intercept": 0.8, "sd_patient_age": 0.2})
	out, err := analysis.Hypothesis(favoring, []string{"Intercept - age > 0"}, opts)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, []string{"sd_patient_Intercept", "sd_patient_age"}, out[0].Parameters)
	assert.InDelta(t, 0.6, out[0].Estimate, 0.05)
	assert.Greater(t, out[0].EvidenceRatio, 1.0)
	assert.True(t, out[0].Star)

	against := fitEpilepsy(t, map[string]float64{"sd_patient_Intercept": 0.2, "sd_patient_age": 0.8})
	out, err = analysis.Hypothesis(against, []string{"Intercept - age > 0"}, opts)
	require.NoError(t, err)
	assert.Less(t, out[0].EvidenceRatio, 1.0)
	assert.False(t, out[0].Star)
}

func TestAnalysis_HypothesisUnknownParameter(t *testing.T) {
	result := fitEpilepsy(t, nil)
	_, err := app.NewAnalysisService().Hypothesis(result, []string{"weight > 0"}, hypothesis.Options{})
	assert.True(t, errors.Is(err, core.ErrParameterNotFound))
}

func TestAnalysis_Summary(t *testing.T) {
	result := fitEpilepsy(t, map[string]float64{"b_treat": -0.3})
	analysis := app.NewAnalysisService()

	def, err := analysis.Summary(result, 0, false)
	require.NoError(t, err)
	assert.Equal(t, 0.95, def.Prob)
	narrow, err := analysis.Summary(result, 0.5, true)
	require.NoError(t, err)
	assert.Equal(t, 0.5, narrow.Prob)

	wide := rowOf(t, def.Sections, "b_treat")
	tight := rowOf(t, narrow.Sections, "b_treat")
	assert.Less(t, wide.Lower, tight.Lower)
	assert.Greater(t, wide.Upper, tight.Upper)
	assert.Less(t, len(def.Sections), len(narrow.Sections), "group-level estimates add a section")

	_, err = analysis.Summary(result, 1.5, false)
	assert.True(t, core.IsInvalidSpecification(err))
}

func TestAnalysis_CompareModels(t *testing.T) {
	analysis := app.NewAnalysisService()
	a := fitEpilepsy(t, nil)
	b := fitEpilepsy(t, map[string]float64{"b_Intercept": 1.8, "b_treat": -0.3})

	for _, criterion := range []string{"loo", "waic"} {
		c, err := analysis.Compare(a, b, criterion)
		require.NoError(t, err, criterion)
		assert.Equal(t, string(c.Criterion), criterion)
		assert.InDelta(t, c.B.Elpd-c.A.Elpd, c.Diff, 1e-9)
		assert.Greater(t, c.Diff, 0.0, "the model centered near the truth predicts better")
		assert.False(t, math.IsNaN(c.SE))
	}

	_, err := analysis.Compare(a, b, "aic")
	assert.Error(t, err)
}

func TestAnalysis_CompareRequiresSameData(t *testing.T) {
	a := fitEpilepsy(t, nil)

	other := testkit.DefaultGeneratorConfig()
	other.Seed = 99
	kit := testkit.NewTestKit()
	b, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    epilepsySpec(),
		Data:    testkit.NewDatasetGenerator(other).Epilepsy(),
		Control: smallControl(),
	})
	require.NoError(t, err)

	_, err = app.NewAnalysisService().Compare(a, b, "loo")
	assert.True(t, errors.Is(err, core.ErrIncomparableFits))
}

func TestAnalysis_SaturatedBernoulliStaysFinite(t *testing.T) {
	outcome := make([]float64, 20)
	for i := range outcome {
		outcome[i] = 1
	}
	outcome[3], outcome[11] = 0, 0
	data := dataset.New("saturated")
	require.NoError(t, data.AddNumeric("y", outcome))

	kit := testkit.NewTestKit()
	kit.Engine().Means["b_Intercept"] = 40
	result, err := kit.FitService().Fit(context.Background(), app.FitRequest{
		Spec:    model.Spec{Response: model.Response{Variable: "y"}, Family: model.NewFamily(model.FamilyBernoulli)},
		Data:    data,
		Control: sampler.Control{Iterations: 400, Warmup: sampler.Int(200), Seed: 7},
	})
	require.NoError(t, err)

	ll := result.LogLik()
	intercept, _ := result.PooledDraws("b_Intercept")
	assert.InDelta(t, -intercept[0], ll.At(0, 3), 1e-9)
	assert.InDelta(t, 0, ll.At(0, 0), 1e-12)

	_, err = json.Marshal(result)
	require.NoError(t, err)

	crit, err := app.NewAnalysisService().Criterion(result, "loo")
	require.NoError(t, err)
	assert.False(t, math.IsNaN(crit.Elpd))
	assert.Less(t, crit.Elpd, -70.0)
}
