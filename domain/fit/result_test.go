package fit

import (
	"encoding/json"
	"math"
	"testing"

	"gobayes/domain/core"
	"gobayes/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func sampleParams() Params {
	zero := 0.0
	return Params{
		ID: core.NewFitID(),
		Parameters: []model.Parameter{
			{Name: "b_Intercept", Class: model.ClassIntercept},
			{Name: "sigma", Class: model.ClassSigma, Lower: &zero},
		},
		Draws: map[string][][]float64{
			"b_Intercept": {{1, 2, 3}, {4, 5, 6}},
			"sigma":       {{0.5, 0.6, 0.7}, {0.8, 0.9, 1.0}},
		},
		Summaries: []ParameterSummary{{Parameter: "b_Intercept", Mean: 3.5}},
		Warnings:  []Warning{{Kind: WarningSamplerDivergence, Message: "2 divergent transitions"}},
		LogLik:    mat.NewDense(6, 2, []float64{-1, -2, -1, -2, -1, -2, -1, -2, -1, -2, -1, -2}),
		Rows:      2,
	}
}

func TestResult_AccessorsReturnCopies(t *testing.T) {
	p := sampleParams()
	r := NewResult(p)

	// mutating the inputs after construction must not leak into the result
	p.Draws["b_Intercept"][0][0] = 100
	p.LogLik.Set(0, 0, 100)

	draws, ok := r.Draws("b_Intercept")
	require.True(t, ok)
	assert.Equal(t, 1.0, draws[0][0])
	draws[0][0] = 42

	again, _ := r.Draws("b_Intercept")
	assert.Equal(t, 1.0, again[0][0])

	ll := r.LogLik()
	ll.Set(0, 0, 7)
	assert.Equal(t, -1.0, r.LogLik().At(0, 0))
}

func TestResult_Shape(t *testing.T) {
	r := NewResult(sampleParams())

	assert.Equal(t, 2, r.Chains())
	assert.Equal(t, 3, r.DrawsPerChain())
	assert.Equal(t, 6, r.TotalDraws())
	assert.Equal(t, []string{"b_Intercept", "sigma"}, r.Names())

	pooled, ok := r.PooledDraws("b_Intercept")
	require.True(t, ok)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, pooled)

	_, ok = r.PooledDraws("b_age")
	assert.False(t, ok)

	assert.True(t, r.HasWarning(WarningSamplerDivergence))
	assert.False(t, r.HasWarning(WarningConvergence))
	assert.False(t, r.CreatedAt().IsZero())
}

func TestResult_SnapshotRoundTrip(t *testing.T) {
	r := NewResult(sampleParams())

	data, err := json.Marshal(r)
	require.NoError(t, err)

	back, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, r.ID(), back.ID())
	assert.Equal(t, r.Names(), back.Names())
	a, _ := r.PooledDraws("sigma")
	b, _ := back.PooledDraws("sigma")
	assert.Equal(t, a, b)
	assert.True(t, mat.Equal(r.LogLik(), back.LogLik()))

	sigma, ok := back.Parameter("sigma")
	require.True(t, ok)
	require.NotNil(t, sigma.Lower)
	assert.Equal(t, 0.0, *sigma.Lower)
}

func TestResult_SnapshotRoundTripNonFinite(t *testing.T) {
	p := sampleParams()
	p.Draws["sigma"][1][2] = math.Inf(1)
	p.LogLik.Set(0, 0, math.Inf(-1))
	p.LogLik.Set(3, 1, math.NaN())
	p.PriorDraws = map[string][]float64{"b_Intercept": {0.5, math.Inf(-1)}}
	r := NewResult(p)

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"-Inf"`)

	back, err := Decode(data)
	require.NoError(t, err)

	ll := back.LogLik()
	assert.True(t, math.IsInf(ll.At(0, 0), -1))
	assert.True(t, math.IsNaN(ll.At(3, 1)))
	assert.Equal(t, -2.0, ll.At(0, 1))

	sigma, _ := back.Draws("sigma")
	assert.True(t, math.IsInf(sigma[1][2], 1))
	assert.Equal(t, 0.9, sigma[1][1])

	prior, ok := back.PriorDraws("b_Intercept")
	require.True(t, ok)
	assert.True(t, math.IsInf(prior[1], -1))
}

func TestNumbers_JSON(t *testing.T) {
	data, err := json.Marshal(Numbers{1.5, math.NaN(), math.Inf(-1)})
	require.NoError(t, err)
	assert.JSONEq(t, `[1.5, "NaN", "-Inf"]`, string(data))

	var back Numbers
	require.NoError(t, json.Unmarshal([]byte(`[2, "+Inf"]`), &back))
	assert.Equal(t, 2.0, back[0])
	assert.True(t, math.IsInf(back[1], 1))

	var missing Numbers
	require.NoError(t, json.Unmarshal([]byte(`null`), &missing))
	assert.Nil(t, missing)
}

func TestFromSnapshot_RejectsRaggedDraws(t *testing.T) {
	s := NewResult(sampleParams()).Snapshot()
	s.Draws["sigma"] = []Numbers{{1, 2}, {3, 4, 5}}

	_, err := FromSnapshot(s)
	assert.Error(t, err)

	s = NewResult(sampleParams()).Snapshot()
	delete(s.Draws, "sigma")
	_, err = FromSnapshot(s)
	assert.Error(t, err)
}

func TestWarning_String(t *testing.T) {
	w := Warning{Kind: WarningConvergence, Parameter: "b_age", Message: "Rhat 1.05", Value: math.Inf(1)}
	assert.Equal(t, "[CONVERGENCE] b_age: Rhat 1.05", w.String())
}

func TestSummary_NonFiniteJSON(t *testing.T) {
	s := ParameterSummary{Parameter: "sigma", Mean: 1, Rhat: math.NaN(), BulkESS: math.Inf(1)}

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"rhat":"NaN"`)
	assert.Contains(t, string(data), `"bulk_ess":"+Inf"`)

	var back ParameterSummary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, math.IsNaN(back.Rhat))
	assert.True(t, math.IsInf(back.BulkESS, 1))
	assert.Equal(t, 1.0, back.Mean)
}
