package model

import (
	"errors"
	"testing"

	"gobayes/domain/core"
	"gobayes/domain/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func herds(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.FromRecords("herds",
		[]string{"incidence", "size", "period", "herd", "label"},
		[][]string{
			{"2", "14", "p1", "h1", "a"},
			{"3", "12", "p2", "h1", "a"},
			{"0", "9", "p3", "h2", "b"},
			{"1", "10", "p1", "h2", "b"},
		})
	require.NoError(t, err)
	return ds
}

func herdsSpec() *Spec {
	return &Spec{
		Response: Response{
			Variable:  "incidence",
			Modifiers: map[ModifierName]Modifier{ModifierTrials: {Column: "size"}},
		},
		Population: []string{"period"},
		Groups:     []GroupTerm{{Group: "herd", Coefficients: []string{InterceptTerm}}},
		Family:     NewFamily(FamilyBinomial),
	}
}

func TestBuildLayout_BinomialWithGroupIntercept(t *testing.T) {
	layout, err := BuildLayout(herdsSpec(), herds(t))
	require.NoError(t, err)

	assert.Equal(t, []string{
		"b_Intercept", "b_periodp2", "b_periodp3",
		"sd_herd_Intercept",
		"r_herd[h1,Intercept]", "r_herd[h2,Intercept]",
	}, layout.Names())
	assert.Equal(t, "binomial(logit)", layout.Family().String())

	sd, ok := layout.Parameter("sd_herd_Intercept")
	require.True(t, ok)
	assert.Equal(t, ClassSD, sd.Class)
	require.NotNil(t, sd.Lower)
	assert.Equal(t, 0.0, *sd.Lower)

	d := layout.Design()
	assert.Equal(t, 4, d.N)
	assert.Equal(t, []float64{14, 12, 9, 10}, d.Trials)
	assert.Equal(t, []string{"periodp2", "periodp3"}, d.Coefs)
	assert.Equal(t, 1.0, d.X.At(1, 0))
	assert.Equal(t, 1.0, d.X.At(2, 1))
	require.Len(t, d.Groups, 1)
	assert.Equal(t, []int{0, 0, 1, 1}, d.Groups[0].Index)
	assert.Len(t, layout.ByClass(ClassR), 2)
}

func TestBuildLayout_CorrelatedSlopes(t *testing.T) {
	ds, err := dataset.FromRecords("growth", []string{"y", "x", "g"}, [][]string{
		{"1.2", "0", "a"}, {"2.1", "1", "a"}, {"0.7", "0", "b"}, {"1.9", "1", "b"},
	})
	require.NoError(t, err)

	spec := &Spec{
		Response:   Response{Variable: "y"},
		Population: []string{"x"},
		Groups:     []GroupTerm{{Group: "g", Coefficients: []string{InterceptTerm, "x"}, Correlated: true}},
		Family:     NewFamily(FamilyGaussian),
	}
	layout, err := BuildLayout(spec, ds)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"b_Intercept", "b_x",
		"sd_g_Intercept", "sd_g_x",
		"cor_g_Intercept__x",
		"sigma",
		"r_g[a,Intercept]", "r_g[a,x]", "r_g[b,Intercept]", "r_g[b,x]",
	}, layout.Names())

	cor, _ := layout.Parameter("cor_g_Intercept__x")
	assert.Equal(t, -1.0, *cor.Lower)
	assert.Equal(t, 1.0, *cor.Upper)
	assert.True(t, layout.Design().Groups[0].Correlated)
}

func TestBuildLayout_NoInterceptCodesEveryLevel(t *testing.T) {
	spec := herdsSpec()
	spec.NoIntercept = true
	spec.Groups = nil

	layout, err := BuildLayout(spec, herds(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"b_periodp1", "b_periodp2", "b_periodp3"}, layout.Names())
}

func TestBuildLayout_Ordinal(t *testing.T) {
	ds, err := dataset.FromRecords("inhaler", []string{"rating", "treat"}, [][]string{
		{"1", "0.5"}, {"2", "-0.5"}, {"4", "0.5"}, {"3", "-0.5"},
	})
	require.NoError(t, err)

	spec := &Spec{
		Response:   Response{Variable: "rating"},
		Population: []string{"treat"},
		Family:     NewFamily(FamilyCumulative),
	}
	layout, err := BuildLayout(spec, ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"b_Intercept[1]", "b_Intercept[2]", "b_Intercept[3]", "b_treat"}, layout.Names())
	assert.Equal(t, 3, layout.Design().Thresholds)
	assert.False(t, layout.Design().Intercept)

	spec.Thresholds = ThresholdsEquidistant
	layout, err = BuildLayout(spec, ds)
	require.NoError(t, err)
	assert.Equal(t, []string{"b_Intercept[1]", "delta", "b_treat"}, layout.Names())

	spec.Thresholds = ""
	spec.CategorySpecific = map[string]bool{"treat": true}
	layout, err = BuildLayout(spec, ds)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"b_Intercept[1]", "b_Intercept[2]", "b_Intercept[3]",
		CSName("treat", 1), CSName("treat", 2), CSName("treat", 3),
	}, layout.Names())

	spec.CategorySpecific = nil
	spec.Response.Modifiers = map[ModifierName]Modifier{ModifierCat: {Count: 5}}
	layout, err = BuildLayout(spec, ds)
	require.NoError(t, err)
	assert.Equal(t, 4, layout.Design().Thresholds)
}

func TestSpec_ValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Spec)
		target error
	}{
		{"unknown family", func(s *Spec) { s.Family = NewFamily("weibull") }, core.ErrUnknownFamily},
		{"unsupported link", func(s *Spec) { s.Family.Link = LinkLog }, core.ErrUnsupportedLink},
		{"unknown response", func(s *Spec) { s.Response.Variable = "cases" }, core.ErrUnknownColumn},
		{"unknown term", func(s *Spec) { s.Population = []string{"season"} }, core.ErrUnknownColumn},
		{"unknown group", func(s *Spec) { s.Groups[0].Group = "farm" }, core.ErrUnknownColumn},
		{"unknown modifier", func(s *Spec) { s.Response.Modifiers["offset"] = Modifier{Column: "size"} }, core.ErrUnknownModifier},
		{"modifier not for family", func(s *Spec) { s.Response.Modifiers[ModifierSE] = Modifier{Column: "size"} }, core.ErrInvalidSpecification},
		{"binomial without trials", func(s *Spec) { s.Response.Modifiers = nil }, core.ErrInvalidSpecification},
		{"unresolved coefficient", func(s *Spec) { s.Groups[0].Coefficients = []string{"slope"} }, core.ErrUnresolvedCoefficient},
		{"no coefficients", func(s *Spec) { s.Groups[0].Coefficients = nil }, core.ErrUnresolvedCoefficient},
		{"intercept as term", func(s *Spec) { s.Population = []string{InterceptTerm} }, core.ErrInvalidSpecification},
		{"thresholds on binomial", func(s *Spec) { s.Thresholds = ThresholdsFlexible }, core.ErrInvalidSpecification},
		{"factor response", func(s *Spec) {
			s.Family = NewFamily(FamilyPoisson)
			s.Response = Response{Variable: "label"}
		}, core.ErrInvalidSpecification},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := herdsSpec()
			tt.mutate(spec)
			_, err := BuildLayout(spec, herds(t))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
			assert.True(t, core.IsInvalidSpecification(err))
		})
	}
}

func TestBuildLayout_RejectsDataOutsideSupport(t *testing.T) {
	ds, err := dataset.FromRecords("d", []string{"k", "n"}, [][]string{{"5", "4"}, {"1", "3"}})
	require.NoError(t, err)
	spec := &Spec{
		Response: Response{Variable: "k", Modifiers: map[ModifierName]Modifier{ModifierTrials: {Column: "n"}}},
		Family:   NewFamily(FamilyBinomial),
	}
	_, err = BuildLayout(spec, ds)
	assert.ErrorIs(t, err, core.ErrInvalidSpecification, "more successes than trials")

	spec = &Spec{Response: Response{Variable: "k"}, Family: NewFamily(FamilyBernoulli)}
	_, err = BuildLayout(spec, ds)
	assert.ErrorIs(t, err, core.ErrInvalidSpecification)
}

func TestFamily_Resolve(t *testing.T) {
	f, err := NewFamily(FamilyPoisson).Resolve()
	require.NoError(t, err)
	assert.Equal(t, LinkLog, f.Link)
	assert.Equal(t, "poisson(log)", f.String())
	assert.Equal(t, "poisson", NewFamily(FamilyPoisson).String())

	assert.Equal(t, []Class{ClassSigma, ClassNu}, Family{Name: FamilyStudent}.AuxClasses())
	assert.True(t, Family{Name: FamilyNegBinomial}.IsDiscrete())
	assert.True(t, Family{Name: FamilyCumulative}.IsOrdinal())
	assert.Len(t, KnownFamilies(), 10)
}
