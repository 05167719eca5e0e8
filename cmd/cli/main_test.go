package main

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gobayes/domain/fit"
	"gobayes/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const herdsModel = `name: herds
data:
  path: herds.csv
  factors: [herd]
model:
  response:
    variable: incidence
    modifiers:
      trials: {column: size}
  population: [period]
  groups:
    - {group: herd, coefficients: [Intercept]}
  family: {name: binomial}
priors:
  - {prior: "normal(0, 5)", class: b}
control:
  iter: 400
  warmup: 200
  chains: 2
  seed: 7
hypotheses:
  - "period < 0"
`

// execute runs the CLI against the in-process engine without a database
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("GOBAYES_ENGINE", "fake")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "ERROR")
	for _, key := range []string{"SAMPLER_CHAINS", "SAMPLER_ITER", "SAMPLER_WARMUP", "SAMPLER_CORES", "SAMPLER_ADAPT_DELTA"} {
		t.Setenv(key, "")
	}

	cmd := newRootCmd()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env", ""}, args...))
	_, err := cmd.ExecuteC()
	return stdout.String(), stderr.String(), err
}

// herdsProject writes the herds data and model file into a temp directory
func herdsProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	header, rows := testkit.NewDatasetGenerator(testkit.DefaultGeneratorConfig()).Herds().Records()
	var data bytes.Buffer
	w := csv.NewWriter(&data)
	require.NoError(t, w.Write(header))
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "herds.csv"), data.Bytes(), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "herds.yaml"), []byte(herdsModel), 0o600))
	return dir
}

func TestFitCmd_WritesSnapshot(t *testing.T) {
	dir := herdsProject(t)
	out := filepath.Join(dir, "herds.fit.json")

	stdout, stderr, err := execute(t, "fit", "--model", filepath.Join(dir, "herds.yaml"), "--out", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Family: binomial")
	assert.Contains(t, stdout, "2 chains, 200 post-warmup draws each")
	assert.Contains(t, stdout, "period < 0", "hypotheses of the model file are tested")
	assert.Contains(t, stderr, "fit ")

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	result, err := fit.Decode(body)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Chains())
	assert.Equal(t, int64(7), result.Control().Seed)
	assert.Contains(t, result.Names(), "b_period")
	assert.Contains(t, result.Names(), "sd_herd_Intercept")
	assert.True(t, strings.Contains(stderr, result.ID().String()))
}

func TestFitCmd_FlagsOverrideModelFile(t *testing.T) {
	dir := herdsProject(t)
	out := filepath.Join(dir, "fit.json")

	_, _, err := execute(t, "fit", "-m", filepath.Join(dir, "herds.yaml"), "--seed", "99", "--chains", "3", "--format", "markdown", "-o", out)
	require.NoError(t, err)

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, int64(99), gjson.GetBytes(body, "control.seed").Int())
	assert.Equal(t, int64(3), gjson.GetBytes(body, "control.chains").Int())
	assert.Equal(t, int64(200), gjson.GetBytes(body, "control.warmup").Int())
}

func TestSavedFitCommands(t *testing.T) {
	dir := herdsProject(t)
	out := filepath.Join(dir, "herds.fit.json")
	_, _, err := execute(t, "fit", "--model", filepath.Join(dir, "herds.yaml"), "--out", out)
	require.NoError(t, err)

	stdout, _, err := execute(t, "summary", out, "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, stdout, "# Fit ")

	stdout, _, err = execute(t, "hypothesis", out, "period < 0", "Intercept - period > 0")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Intercept - period > 0")

	stdout, _, err = execute(t, "loo", out)
	require.NoError(t, err)
	assert.Contains(t, stdout, "elpd_loo")

	stdout, _, err = execute(t, "loo", out, out, "--criterion", "waic")
	require.NoError(t, err)
	assert.Contains(t, stdout, "elpd_waic")
	assert.Contains(t, stdout, "b - a")
}

func TestDescribeCmd_JSON(t *testing.T) {
	dir := herdsProject(t)

	stdout, _, err := execute(t, "describe", filepath.Join(dir, "herds.csv"), "--factor", "herd", "--json")
	require.NoError(t, err)
	assert.Equal(t, "factor", gjson.Get(stdout, `columns.#(name=="herd").kind`).String())
	assert.Equal(t, int64(60), gjson.Get(stdout, "rows").Int())
	assert.True(t, gjson.Get(stdout, `columns.#(name=="size").numeric.integer`).Bool())
}

func TestExampleCmd(t *testing.T) {
	stdout, _, err := execute(t, "example", "inhaler", "--groups", "5")
	require.NoError(t, err)

	records, err := csv.NewReader(strings.NewReader(stdout)).ReadAll()
	require.NoError(t, err)
	assert.Contains(t, records[0], "rating")
	assert.Greater(t, len(records), 1)

	_, _, err = execute(t, "example", "unicorns")
	assert.ErrorContains(t, err, "unknown example")
}

func TestCommandErrors(t *testing.T) {
	dir := herdsProject(t)
	noData := filepath.Join(dir, "nodata.yaml")
	require.NoError(t, os.WriteFile(noData, []byte(strings.Replace(herdsModel, "  path: herds.csv\n", "", 1)), 0o600))

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"model flag required", []string{"fit"}, `required flag(s) "model" not set`},
		{"no data path", []string{"fit", "--model", noData}, "no data"},
		{"unknown format", []string{"fit", "--model", filepath.Join(dir, "herds.yaml"), "--format", "pdf"}, "unknown format"},
		{"missing fit", []string{"summary", filepath.Join(dir, "missing.json")}, "neither a fit file nor a fit ID"},
		{"fit id without database", []string{"summary", "0192f1d2-7c1e-7a4b-9f00-000000000001"}, "DATABASE_URL is not set"},
		{"list without database", []string{"list"}, "DATABASE_URL is not set"},
		{"hypothesis needs an expression", []string{"hypothesis", "fit.json"}, "requires at least 2 arg(s)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
