package lfconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 64, c.MaxNumThreads)
	require.Equal(t, 2, c.HPK)
	require.Equal(t, 5, c.MaxLevels)
	require.Equal(t, 0.75, c.LoadFactor)
}

func TestLoadGeneratesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lfindex.toml")

	_, err := os.Stat(cfgPath)
	require.True(t, os.IsNotExist(err))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	_, err = os.Stat(cfgPath)
	require.NoError(t, err)
}

func TestLoadFillsInMissingValues(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "lfindex.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`version = "1.0.0"
hp_k = 4
`), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.HPK)
	require.Equal(t, 64, cfg.MaxNumThreads)
	require.Equal(t, 0.75, cfg.LoadFactor)
}
