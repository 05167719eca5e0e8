package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_StepsAreIdempotent(t *testing.T) {
	steps := NewRunner().steps()
	require.NotEmpty(t, steps)
	assert.Equal(t, "create fits table", steps[0].name)

	for _, s := range steps {
		upper := strings.ToUpper(s.sql)
		assert.True(t,
			strings.Contains(upper, "IF NOT EXISTS"),
			"%s must be safe to re-run", s.name)
		assert.NotContains(t, upper, "DROP ", s.name)
	}
}

func TestRunner_SchemaCoversRepositoryColumns(t *testing.T) {
	tokens := make(map[string]bool)
	for _, s := range NewRunner().steps() {
		clean := strings.NewReplacer("(", " ", ")", " ", ",", " ", ";", " ").Replace(s.sql)
		for _, f := range strings.Fields(clean) {
			tokens[f] = true
		}
	}
	for _, col := range []string{
		"id", "fingerprint", "dataset_fingerprint", "family", "response", "row_count",
		"warning_count", "model", "summary", "snapshot", "elapsed_ms", "created_at",
	} {
		assert.True(t, tokens[col], col)
	}
}

func TestRunner_Version(t *testing.T) {
	assert.Equal(t, "2.0.0", NewRunner().Version())
}
