package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 50, cfg.ImageWidth)
	require.Equal(t, 50, cfg.ImageHeight)
	require.Equal(t, 128, cfg.EmbeddingDims)
	require.Equal(t, 1, cfg.NumEpochs)
	require.Equal(t, 1e-3, cfg.LearningRate)
	require.Equal(t, 0.1, cfg.Momentum)
	require.Equal(t, 1.0, cfg.Alpha)
	require.Equal(t, 10, cfg.LogInterval)
	require.Equal(t, 10, cfg.CheckpointInterval)
	require.Equal(t, "cpu", cfg.Device)
	require.Nil(t, cfg.Seed)

	empty, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, cfg, *empty)
}

func TestLoadConfig(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "bfvos.json")
	require.NoError(t, os.WriteFile(filename, []byte(`{"numEpochs": 3, "seed": 5, "device": "cuda"}`), 0644))
	cfg, err := LoadConfig(filename)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.NumEpochs)
	require.Equal(t, int64(5), *cfg.Seed)
	require.Equal(t, "cuda", cfg.Device)
	// Unspecified fields keep their defaults
	require.Equal(t, 128, cfg.EmbeddingDims)

	require.NoError(t, os.WriteFile(filename, []byte(`{"device": "tpu"}`), 0644))
	_, err = LoadConfig(filename)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CheckpointInterval = 0
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ImageWidth = -1
	require.Error(t, cfg.Validate())
}
