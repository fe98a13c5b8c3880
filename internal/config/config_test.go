package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, "memgraph", cfg.Name)
	require.Equal(t, DefaultPort, cfg.Port)
	require.Equal(t, "info", cfg.LogLevel)
	require.True(t, cfg.BackupOnStart)
	require.Equal(t, "6h", cfg.BackupInterval)
	require.Equal(t, 5, cfg.MinBackups)
	require.Equal(t, "local", cfg.Embeddings.Provider)
	require.Equal(t, 32, cfg.Embeddings.BatchSize)
	require.Equal(t, 10, cfg.Vector.DefaultK)
	require.InDelta(t, 0.7, cfg.Vector.DefaultHybridWeight, 1e-9)
	if !cfg.InDocker {
		require.Equal(t, DefaultHost, cfg.Host)
	}
}

func TestLoadDerivedPaths(t *testing.T) {
	base := t.TempDir()
	cfg, err := Load(base)
	require.NoError(t, err)

	require.Equal(t, base, cfg.BaseDir)
	require.Equal(t, filepath.Join(base, "data", "knowledge_graph.db"), cfg.DatabasePath)
	require.Equal(t, filepath.Join(base, "backup"), cfg.BackupDir)
}

func TestLoadConfigFile(t *testing.T) {
	base := t.TempDir()
	doc := map[string]any{
		"name":      "graph-svc",
		"port":      7100,
		"log_level": "debug",
		"embeddings": map[string]any{
			"provider": "ollama",
			"model":    "nomic-embed-text",
		},
		"vector": map[string]any{
			"default_k":             25,
			"default_hybrid_weight": 0.5,
		},
	}
	data, err := yaml.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), data, 0o640))

	cfg, err := Load(base)
	require.NoError(t, err)
	require.Equal(t, "graph-svc", cfg.Name)
	require.Equal(t, 7100, cfg.Port)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "ollama", cfg.Embeddings.Provider)
	require.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	require.Equal(t, 25, cfg.Vector.DefaultK)
	require.InDelta(t, 0.5, cfg.Vector.DefaultHybridWeight, 1e-9)

	// Unset keys still fall back to defaults.
	require.Equal(t, 32, cfg.Embeddings.BatchSize)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	base := t.TempDir()
	data, err := yaml.Marshal(map[string]any{"port": 7100})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), data, 0o640))

	t.Setenv("MEMGRAPH_PORT", "7200")
	t.Setenv("MEMGRAPH_LOG_LEVEL", "warn")

	cfg, err := Load(base)
	require.NoError(t, err)
	require.Equal(t, 7200, cfg.Port)
	require.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	t.Setenv("MEMGRAPH_PORT", "70000")
	_, err := Load(t.TempDir())
	require.ErrorContains(t, err, "invalid port")
}

func TestLoadRejectsMalformedFile(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "config.yaml"), []byte("port: [not\n"), 0o640))
	_, err := Load(base)
	require.ErrorContains(t, err, "read config")
}

func TestDefaultBaseDirHonorsEnv(t *testing.T) {
	t.Setenv("MEMGRAPH_HOME", "/srv/memgraph")
	require.Equal(t, "/srv/memgraph", DefaultBaseDir())
}
