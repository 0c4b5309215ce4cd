package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypolab/domain/hypothesis"
	"hypolab/internal/binding"
	"hypolab/internal/validation"
)

func TestReadDocumentYAMLUsesJSONFieldNames(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bundle.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
hypotheses:
  - id: H-RS1-001
    session_id: RS1
    statement: Gene X drives the effect
    category: mechanistic
    confidence: medium
    state: proposed
`), 0o644))
	jsonPath := filepath.Join(dir, "bundle.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"hypotheses":[{"id":"H-RS1-001","session_id":"RS1",
"statement":"Gene X drives the effect","category":"mechanistic","confidence":"medium","state":"proposed"}]}`), 0o644))

	var fromYAML, fromJSON validation.Bundle
	require.NoError(t, readDocument(yamlPath, &fromYAML))
	require.NoError(t, readDocument(jsonPath, &fromJSON))

	assert.Equal(t, fromJSON, fromYAML)
	require.Len(t, fromYAML.Hypotheses, 1)
	assert.Equal(t, "RS1", fromYAML.Hypotheses[0].SessionID)
	assert.Equal(t, hypothesis.CategoryMechanistic, fromYAML.Hypotheses[0].Category)
}

func TestReadDocumentErrors(t *testing.T) {
	var b validation.Bundle
	assert.Error(t, readDocument(filepath.Join(t.TempDir(), "missing.json"), &b))

	path := filepath.Join(t.TempDir(), "broken.yml")
	require.NoError(t, os.WriteFile(path, []byte("hypotheses: [\n"), 0o644))
	assert.Error(t, readDocument(path, &b))
}

func TestInferDriver(t *testing.T) {
	assert.Equal(t, "sqlite", inferDriver("file:hypolab.db?cache=shared"))
	assert.Equal(t, "sqlite", inferDriver("history.db"))
	assert.Equal(t, "sqlite", inferDriver(":memory:"))
	assert.Equal(t, "postgres", inferDriver("postgres://localhost/hypolab?sslmode=disable"))
}

func TestApplyOverride(t *testing.T) {
	defaults := binding.ApplyOptions{MinConfidence: hypothesis.ConfidenceMedium}

	cmd := newExecuteCmd(&globals{})
	opts, err := applyOverride(cmd, defaults, "", false)
	require.NoError(t, err)
	assert.Nil(t, opts, "no flags keeps the policy filter")

	require.NoError(t, cmd.Flags().Set("kills-only", "true"))
	opts, err = applyOverride(cmd, defaults, "", true)
	require.NoError(t, err)
	assert.Equal(t, &binding.ApplyOptions{MinConfidence: hypothesis.ConfidenceMedium, KillsOnly: true}, opts)

	for _, level := range []string{"HIGH", "hgih"} {
		cmd := newExecuteCmd(&globals{})
		require.NoError(t, cmd.Flags().Set("min-confidence", level))
		_, err := applyOverride(cmd, defaults, level, false)
		assert.ErrorContains(t, err, "--min-confidence", level)
	}
}
