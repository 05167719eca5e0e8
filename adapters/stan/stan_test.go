package stan

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"gobayes/domain/core"
	"gobayes/domain/dataset"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func herdLayout(t *testing.T) *model.Layout {
	t.Helper()
	ds, err := dataset.FromColumns("cbpp", map[string]interface{}{
		"incidence": []float64{2, 3, 4, 0, 3, 1},
		"size":      []float64{14, 12, 9, 5, 22, 18},
		"period":    []string{"p1", "p2", "p3", "p1", "p2", "p3"},
		"herd":      []string{"1", "1", "1", "2", "2", "2"},
	})
	require.NoError(t, err)
	spec := model.Spec{
		Response: model.Response{Variable: "incidence", Modifiers: map[model.ModifierName]model.Modifier{
			model.ModifierTrials: {Column: "size"},
		}},
		Population: []string{"period"},
		Groups:     []model.GroupTerm{{Group: "herd", Coefficients: []string{model.InterceptTerm}}},
		Family:     model.NewFamily(model.FamilyBinomial),
	}
	layout, err := model.BuildLayout(&spec, ds)
	require.NoError(t, err)
	return layout
}

func resolve(t *testing.T, layout *model.Layout, priors prior.Spec) []prior.Resolved {
	t.Helper()
	resolved, err := prior.Resolve(priors, layout)
	require.NoError(t, err)
	return resolved
}

func TestProgram_Binomial(t *testing.T) {
	layout := herdLayout(t)
	program, err := Program(layout, resolve(t, layout, prior.Spec{
		prior.New("normal(0, 5)", model.ClassB),
		prior.New("student_t(3, 0, 2.5)", model.ClassSD),
	}))
	require.NoError(t, err)

	for _, want := range []string{
		"array[N] int Y;",
		"array[N] int<lower=0> trials;",
		"matrix[N, K] X;",
		"array[N] int<lower=1> J_1;",
		"vector<lower=0>[M_1] sd_1;",
		"matrix[N_1, M_1] r_1 = (diag_matrix(sd_1) * z_1)';",
		"target += normal_lpdf(b[1] | 0.0, 5.0);",
		"target += normal_lpdf(b[2] | 0.0, 5.0);",
		"target += student_t_lpdf(sd_1[1] | 3.0, 0.0, 2.5);",
		"real m = inv_logit(mu[n]);",
		"lp = binomial_lpmf(Y[n] | trials[n], m);",
	} {
		assert.Contains(t, program, want)
	}
	assert.NotContains(t, program, "Intercept |", "flat intercept prior emits nothing")
}

func TestProgram_RejectsUnknownDistribution(t *testing.T) {
	layout := herdLayout(t)
	_, err := Program(layout, resolve(t, layout, prior.Spec{prior.New("horseshoe_plus(1)", model.ClassB)}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnknownDistribution))
	assert.True(t, core.IsInvalidSpecification(err))

	_, err = Program(layout, resolve(t, layout, prior.Spec{prior.New("normal(0)", model.ClassB)}))
	require.Error(t, err)
	assert.True(t, core.IsInvalidSpecification(err))
}

func TestProgram_CorrelatedGroupsAndCensoring(t *testing.T) {
	ds, err := dataset.FromColumns("kidney", map[string]interface{}{
		"time":     []float64{8, 16, 23, 13, 22, 28, 447, 318},
		"censored": []float64{0, 0, 1, 0, 0, 1, 0, 0},
		"age":      []float64{28, 28, 48, 48, 32, 32, 31, 32},
		"patient":  []string{"1", "1", "2", "2", "3", "3", "4", "4"},
	})
	require.NoError(t, err)
	spec := model.Spec{
		Response: model.Response{Variable: "time", Modifiers: map[model.ModifierName]model.Modifier{
			model.ModifierCens:  {Column: "censored"},
			model.ModifierTrunc: {Lower: model.Float(0)},
		}},
		Population: []string{"age"},
		Groups:     []model.GroupTerm{{Group: "patient", Coefficients: []string{"Intercept", "age"}, Correlated: true}},
		Family:     model.NewFamily(model.FamilyGamma),
	}
	layout, err := model.BuildLayout(&spec, ds)
	require.NoError(t, err)

	program, err := Program(layout, resolve(t, layout, prior.Spec{prior.New("lkj(2)", model.ClassCor)}))
	require.NoError(t, err)
	for _, want := range []string{
		"cholesky_factor_corr[M_1] L_1;",
		"diag_pre_multiply(sd_1, L_1)",
		"target += lkj_corr_cholesky_lpdf(L_1 | 2.0);",
		"corr_matrix[M_1] Cor_1 = multiply_lower_tri_self_transpose(L_1);",
		"real m = exp(mu[n]);",
		"else if (cens[n] == 1) lp = gamma_lccdf(Y[n] | shape, shape / m);",
		"lp -= gamma_lccdf(0.0 | shape, shape / m);",
		"real<lower=0> shape;",
	} {
		assert.Contains(t, program, want)
	}

	_, err = Program(layout, resolve(t, layout, prior.Spec{prior.New("normal(0, 1)", model.ClassCor)}))
	assert.True(t, core.IsInvalidSpecification(err))
}

func TestProgram_OrdinalEquidistant(t *testing.T) {
	ds, err := dataset.FromColumns("inhaler", map[string]interface{}{
		"rating": []float64{1, 2, 3, 4, 2, 1},
		"treat":  []float64{0, 1, 0, 1, 0, 1},
		"period": []float64{0.5, -0.5, 0.5, -0.5, 0.5, -0.5},
	})
	require.NoError(t, err)
	spec := model.Spec{
		Response:         model.Response{Variable: "rating"},
		Population:       []string{"period", "treat"},
		Family:           model.Family{Name: model.FamilyCumulative, Link: model.LinkProbit},
		Thresholds:       model.ThresholdsEquidistant,
		CategorySpecific: map[string]bool{"treat": true},
	}
	layout, err := model.BuildLayout(&spec, ds)
	require.NoError(t, err)

	program, err := Program(layout, resolve(t, layout, nil))
	require.NoError(t, err)
	for _, want := range []string{
		"real cumulative_probit_lpmf(int y, vector c) {",
		"real first_Intercept;",
		"real<lower=0> delta;",
		"Intercept[k] = first_Intercept + (k - 1) * delta;",
		"matrix[Kcs, nthres] bcs;",
		"c -= (Xcs[n] * bcs)';",
	} {
		assert.Contains(t, program, want)
	}
	assert.NotContains(t, program, "mu += Intercept;")
}

func TestData(t *testing.T) {
	layout := herdLayout(t)
	raw, err := Data(layout)
	require.NoError(t, err)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &data))
	assert.EqualValues(t, 6, data["N"])
	assert.EqualValues(t, 2, data["K"])
	assert.EqualValues(t, 2, data["N_1"])
	assert.EqualValues(t, 1, data["M_1"])
	assert.Equal(t, []interface{}{1.0, 1.0, 1.0, 2.0, 2.0, 2.0}, data["J_1"])
	assert.Equal(t, []interface{}{14.0, 12.0, 9.0, 5.0, 22.0, 18.0}, data["trials"])
}

// stanCSV writes a CmdStan-like output file for every mapped column
func stanCSV(layout *model.Layout, draws int, divergentAt int) string {
	var columns []string
	for col := range columnNames(layout) {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	var b strings.Builder
	b.WriteString("# model = test\n# num_samples = 3\n")
	b.WriteString("lp__,accept_stat__,stepsize__,treedepth__,n_leapfrog__,divergent__,energy__,z_1.1.1," + strings.Join(columns, ",") + "\n")
	b.WriteString("# Adaptation terminated\n")
	for s := 0; s < draws; s++ {
		div := 0
		if s == divergentAt {
			div = 1
		}
		depth := 3
		if s == 0 {
			depth = 10
		}
		fmt.Fprintf(&b, "-10.5,0.9,0.25,%d,7,%d,11,0.1", depth, div)
		for i := range columns {
			fmt.Fprintf(&b, ",%d.5", i+s)
		}
		b.WriteString("\n")
	}
	b.WriteString("# Elapsed Time: 0.1 seconds\n")
	return b.String()
}

func TestParseCSV(t *testing.T) {
	layout := herdLayout(t)
	draws, err := ParseCSV(strings.NewReader(stanCSV(layout, 4, 2)), layout, 3, 10)
	require.NoError(t, err)

	assert.Equal(t, 3, draws.Chain)
	assert.Equal(t, 1, draws.Divergent)
	assert.Equal(t, 1, draws.TreedepthHits)
	assert.Equal(t, 0.25, draws.StepSize)
	for _, name := range layout.Names() {
		assert.Len(t, draws.Columns[name], 4, name)
	}
	assert.NotContains(t, draws.Columns, "z_1.1.1")
}

func TestParseCSV_MissingColumn(t *testing.T) {
	layout := herdLayout(t)
	csv := "lp__,divergent__,Intercept\n-1,0,0.5\n"
	_, err := ParseCSV(strings.NewReader(csv), layout, 1, 10)
	assert.Error(t, err)
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	layout *model.Layout
	output string
	fail   error
}

func (f *fakeRunner) run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, append([]string{name}, args...))
	f.mu.Unlock()
	if f.fail != nil {
		return []byte(f.output), f.fail
	}
	for _, a := range args {
		if strings.HasPrefix(a, "file=") && strings.HasSuffix(a, ".csv") {
			if err := os.WriteFile(strings.TrimPrefix(a, "file="), []byte(stanCSV(f.layout, 5, -1)), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return []byte(f.output), nil
}

func TestEngine_CompileCachesAndSamples(t *testing.T) {
	layout := herdLayout(t)
	runner := &fakeRunner{layout: layout}
	engine := NewEngine(Config{Home: "/opt/cmdstan", WorkDir: t.TempDir()}, WithRunner(runner.run))
	ctx := context.Background()
	req := ports.CompileRequest{Layout: layout, Priors: resolve(t, layout, nil)}

	first, err := engine.Compile(ctx, req)
	require.NoError(t, err)
	second, err := engine.Compile(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, EngineName, first.Engine)
	require.Len(t, runner.calls, 1)
	assert.Equal(t, "make", runner.calls[0][0])

	control := sampler.Defaults()
	control.Seed = 42
	control.Cores = 2
	raw, err := engine.Sample(ctx, first, layout, control)
	require.NoError(t, err)
	require.Len(t, raw.Chains, 4)
	for i, c := range raw.Chains {
		assert.Equal(t, i+1, c.Chain)
		assert.Len(t, c.Columns["b_Intercept"], 5)
	}

	sampleCall := strings.Join(runner.calls[1], " ")
	assert.Contains(t, sampleCall, "num_samples=1000 num_warmup=1000")
	assert.Contains(t, sampleCall, "adapt delta=0.8")
	assert.Contains(t, sampleCall, "random seed=42")
}

func TestEngine_CompileErrors(t *testing.T) {
	layout := herdLayout(t)
	req := ports.CompileRequest{Layout: layout, Priors: resolve(t, layout, nil)}

	rejected := &fakeRunner{output: "Semantic error in 'model.stan', line 3:\n  bad\n\nmake: *** Error 1", fail: errors.New("exit status 2")}
	_, err := NewEngine(Config{WorkDir: t.TempDir()}, WithRunner(rejected.run)).Compile(context.Background(), req)
	assert.True(t, core.IsInvalidSpecification(err))

	broken := &fakeRunner{output: "make: g++: not found", fail: errors.New("exit status 2")}
	_, err = NewEngine(Config{WorkDir: t.TempDir()}, WithRunner(broken.run)).Compile(context.Background(), req)
	require.Error(t, err)
	assert.False(t, core.IsInvalidSpecification(err))
}

func TestEngine_SampleRequiresCompiledModel(t *testing.T) {
	engine := NewEngine(Config{WorkDir: t.TempDir()})
	_, err := engine.Sample(context.Background(), &fit.CompiledModel{Engine: "other"}, herdLayout(t), sampler.Defaults())
	assert.Error(t, err)
}
