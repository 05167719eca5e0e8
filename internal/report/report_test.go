package report

import (
	"math"
	"strings"
	"testing"

	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/internal/hypothesis"
	"gobayes/internal/loo"
	"gobayes/internal/profiling"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func epilepsyFit() (*fit.Result, []fit.ParameterSummary) {
	spec := model.Spec{
		Response:   model.Response{Variable: "count"},
		Population: []string{"age", "treat"},
		Groups:     []model.GroupTerm{{Group: "patient", Coefficients: []string{"Intercept", "age"}, Correlated: true}},
		Family:     model.NewFamily(model.FamilyPoisson),
	}
	params := []model.Parameter{
		{Name: "b_Intercept", Class: model.ClassIntercept},
		{Name: "b_age", Class: model.ClassB, Coef: "age"},
		{Name: "b_treat", Class: model.ClassB, Coef: "treat"},
		{Name: "sd_patient_Intercept", Class: model.ClassSD, Group: "patient", Coef: "Intercept"},
		{Name: "sd_patient_age", Class: model.ClassSD, Group: "patient", Coef: "age"},
		{Name: "cor_patient_Intercept__age", Class: model.ClassCor, Group: "patient", Coef: "Intercept__age"},
		{Name: "r_patient[1,Intercept]", Class: model.ClassR, Group: "patient", Level: "1", Coef: "Intercept"},
	}
	draws := make(map[string][][]float64)
	var rows []fit.ParameterSummary
	for _, p := range params {
		draws[p.Name] = [][]float64{{0.1, 0.2, 0.3, 0.4}}
		rows = append(rows, fit.ParameterSummary{Parameter: p.Name, Mean: 0.25, SD: 0.13, Lower: 0.1, Upper: 0.4, Prob: 0.95, Rhat: 1, BulkESS: 3200, TailESS: math.NaN()})
	}
	r := fit.NewResult(fit.Params{
		Spec:       spec,
		Family:     model.Family{Name: model.FamilyPoisson, Link: model.LinkLog},
		Parameters: params,
		Draws:      draws,
		Summaries:  rows,
		Rows:       59,
		Warnings:   []fit.Warning{{Kind: fit.WarningSamplerDivergence, Message: "3 divergent transitions after warmup"}},
	})
	return r, rows
}

func TestNewSummary_Sections(t *testing.T) {
	r, rows := epilepsyFit()

	s := NewSummary(r, rows, false)
	require.Len(t, s.Sections, 2)
	assert.Equal(t, "Population-Level Effects", s.Sections[0].Title)
	assert.Len(t, s.Sections[0].Rows, 3)
	assert.Equal(t, "Group-Level Effects: ~patient", s.Sections[1].Title)
	assert.Len(t, s.Sections[1].Rows, 3)
	assert.Equal(t, 0.95, s.Prob)

	withEffects := NewSummary(r, rows, true)
	assert.Len(t, withEffects.Sections, 3)
}

func TestDescribe(t *testing.T) {
	r, _ := epilepsyFit()
	assert.Equal(t, "count ~ age + treat + (1 + age | patient)", Describe(r.Spec()))

	spec := model.Spec{
		Response: model.Response{Variable: "incidence", Modifiers: map[model.ModifierName]model.Modifier{
			model.ModifierTrials: {Column: "size"},
		}},
		Population: []string{"period"},
		Groups:     []model.GroupTerm{{Group: "herd", Coefficients: []string{"Intercept"}}},
	}
	assert.Equal(t, "incidence | trials(size) ~ period + (1 | herd)", Describe(spec))

	ordinal := model.Spec{
		Response:         model.Response{Variable: "rating"},
		Population:       []string{"period", "treat"},
		CategorySpecific: map[string]bool{"treat": true},
	}
	assert.Equal(t, "rating ~ period + cs(treat)", Describe(ordinal))
}

func TestSummary_Renderings(t *testing.T) {
	r, rows := epilepsyFit()
	s := NewSummary(r, rows, false)

	text := s.Text()
	assert.Contains(t, text, "b_age")
	assert.Contains(t, text, "l-95% CI")
	assert.Contains(t, text, "3200")
	assert.Contains(t, text, "divergent")

	md := s.Markdown()
	assert.Contains(t, md, "| Parameter | Estimate |")
	assert.Contains(t, md, "## Warnings")

	html := string(s.HTML())
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "sd_patient_age")
	assert.True(t, strings.Contains(html, "<h2") && strings.Contains(html, "Group-Level Effects"))
}

func TestHypothesisAndCriterionText(t *testing.T) {
	text := HypothesisText([]hypothesis.Result{{
		Hypothesis: "Intercept - age > 0", Estimate: 1.2, EstError: 0.4,
		Lower: 0.5, Upper: math.Inf(1), EvidenceRatio: 99, PostProb: 0.99, Star: true,
	}})
	assert.Contains(t, text, "Intercept - age > 0")
	assert.Contains(t, text, "Inf")
	assert.Contains(t, text, "*")

	res := &loo.Result{Criterion: loo.CriterionLOO, Elpd: -100, ElpdSE: 5, P: 3, IC: 200, ICSE: 10, ParetoK: []float64{0.2, 0.9}, Observations: 2, Draws: 4000}
	out := CriterionText(res)
	assert.Contains(t, out, "elpd_loo")
	assert.Contains(t, out, "Pareto k")
}

func TestProfileText(t *testing.T) {
	p := &profiling.Profile{Name: "epilepsy", Rows: 4, Columns: []profiling.ColumnProfile{
		{Name: "count", Kind: dataset.KindNumeric, Missing: 1, Numeric: &profiling.NumericSummary{Mean: 3.5, StdDev: 1, Min: 2, Median: 3, Max: 5}},
		{Name: "treat", Kind: dataset.KindFactor, Levels: []profiling.LevelCount{{Level: "active", Count: 2}, {Level: "placebo", Count: 2}}},
	}}

	out := ProfileText(p)
	assert.Contains(t, out, "epilepsy (4 rows)")
	assert.Contains(t, out, "count")
	assert.Contains(t, out, "3.50")
	assert.Contains(t, out, "treat: 2 levels, 0 missing: active (2), placebo (2)")
}
