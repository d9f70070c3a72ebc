package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BIOAGENT_WORKSPACE", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 50, cfg.MaxRounds)
	assert.Equal(t, 0.6, cfg.RouterConfidence)
	assert.False(t, cfg.MultiAgent)
	assert.True(t, cfg.EnableMemory)
	assert.Equal(t, cfg.Model, cfg.SpecialistModel)
	assert.Equal(t, 30*time.Minute, cfg.TurnTimeout)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BIOAGENT_WORKSPACE", t.TempDir())
	t.Setenv("BIOAGENT_MODEL", "custom-model")
	t.Setenv("BIOAGENT_MAX_ROUNDS", "7")
	t.Setenv("BIOAGENT_MULTI_AGENT", "true")
	t.Setenv("BIOAGENT_ROUTER_CONFIDENCE", "0.8")
	t.Setenv("BIOAGENT_TURN_TIMEOUT", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "custom-model", cfg.Model)
	assert.Equal(t, 7, cfg.MaxRounds)
	assert.True(t, cfg.MultiAgent)
	assert.Equal(t, 0.8, cfg.RouterConfidence)
	assert.Equal(t, 5*time.Minute, cfg.TurnTimeout)
}

func TestFastModeCollapses(t *testing.T) {
	t.Setenv("BIOAGENT_WORKSPACE", t.TempDir())
	t.Setenv("BIOAGENT_FAST_MODE", "true")
	t.Setenv("BIOAGENT_MULTI_AGENT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.MultiAgent)
	assert.False(t, cfg.EnableSummaries)
	assert.False(t, cfg.EnableRAG)
	assert.False(t, cfg.EnableKG)
	assert.LessOrEqual(t, cfg.MaxRounds, 15)
	// Artifacts survive fast mode.
	assert.True(t, cfg.EnableArtifacts)
}

func TestWorkspaceLayout(t *testing.T) {
	ws := t.TempDir()
	t.Setenv("BIOAGENT_WORKSPACE", ws)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(ws, "data", "ingested"), cfg.IngestedDir())
	assert.Equal(t, filepath.Join(ws, "data", "registry.json"), cfg.RegistryPath())
	assert.Equal(t, filepath.Join(ws, "artifacts"), cfg.ArtifactsDir())
	assert.Equal(t, filepath.Join(ws, "memory", "kg.json"), cfg.KnowledgeGraphPath())
	assert.Equal(t, filepath.Join(ws, "memory", "index"), cfg.IndexDir())
	assert.Equal(t, filepath.Join(ws, "results"), cfg.ResultsDir)
}

func TestValidate(t *testing.T) {
	cfg := &Config{APIKey: "", Workspace: t.TempDir(), MaxSpecialists: 1}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ANTHROPIC_API_KEY")

	cfg.APIKey = "sk-test"
	cfg.MaxRounds = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max rounds")

	cfg.MaxRounds = 10
	require.NoError(t, cfg.Validate())
}
