package config_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/mindburn-labs/hull/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSize(t *testing.T) {
	cases := map[string]int64{
		"128":  128,
		"4k":   4 * 1024,
		"16M":  16 * 1024 * 1024,
		"1g":   1024 * 1024 * 1024,
		"2G":   2 * 1024 * 1024 * 1024,
	}
	for raw, want := range cases {
		got, err := config.ParseSize(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := config.ParseSize("notanumber")
	assert.Error(t, err)

	_, err = config.ParseSize("-4k")
	assert.Error(t, err)
}

func TestParseDefaults(t *testing.T) {
	dir := t.TempDir()
	entry := filepath.Join(dir, "app.hull")
	require.NoError(t, os.WriteFile(entry, []byte("-- app"), 0o644))

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	var stderr bytes.Buffer
	cfg, err := config.Parse(nil, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Bind)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "app.hull", cfg.EntryPoint)
}

func TestParseExplicitFlags(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := config.Parse([]string{
		"-p", "8080", "-b", "0.0.0.0", "-d", "data.db",
		"-m", "64m", "-M", "256m", "-s", "8m", "-l", "debug",
		"script.hull",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Bind)
	assert.Equal(t, "data.db", cfg.DBPath)
	assert.Equal(t, int64(64*1024*1024), cfg.HeapLimit)
	assert.Equal(t, int64(256*1024*1024), cfg.ProcLimit)
	assert.Equal(t, int64(8*1024*1024), cfg.StackLimit)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "script.hull", cfg.EntryPoint)
}

func TestParseVerifySigAndUnveilTableFlags(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := config.Parse([]string{
		"--verify-sig", "ci.pub", "--print-unveil-table", "script.hull",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "ci.pub", cfg.VerifySigKeyPath)
	assert.True(t, cfg.PrintUnveilTable)
}

func TestParseDefaultsVerifySigEmptyAndUnveilTableFalse(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := config.Parse([]string{"script.hull"}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.VerifySigKeyPath)
	assert.False(t, cfg.PrintUnveilTable)
}

func TestParseRejectsBadPort(t *testing.T) {
	var stderr bytes.Buffer
	_, err := config.Parse([]string{"-p", "99999", "script.hull"}, &stderr)
	assert.Error(t, err)
}

func TestParseRejectsBadLogLevel(t *testing.T) {
	var stderr bytes.Buffer
	_, err := config.Parse([]string{"-l", "verbose", "script.hull"}, &stderr)
	assert.Error(t, err)
}

func TestParseHelp(t *testing.T) {
	var stderr bytes.Buffer
	cfg, err := config.Parse([]string{"-h"}, &stderr)
	require.NoError(t, err)
	assert.True(t, cfg.ShowHelp)
}

func TestParseNoEntryPointFound(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(cwd) }()

	var stderr bytes.Buffer
	_, err = config.Parse(nil, &stderr)
	assert.Error(t, err)
}
