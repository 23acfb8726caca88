package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	var out bytes.Buffer
	cfg, help, err := Parse([]string{"pipeline.hcl"}, &out)
	require.NoError(t, err)
	require.False(t, help)
	assert.Equal(t, "pipeline.hcl", cfg.GridPath)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "pool", cfg.Backend)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, time.Duration(0), cfg.Timeout)
}

func TestParseFlags(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{
		"-grid", "grids/",
		"-workers", "8",
		"-backend", "remote",
		"-remote-url", "http://worker:8080/invoke",
		"-log-level", "debug",
		"-timeout", "30s",
	}, &out)
	require.NoError(t, err)
	assert.Equal(t, "grids/", cfg.GridPath)
	assert.Equal(t, 8, cfg.Workers)
	assert.Equal(t, "remote", cfg.Backend)
	assert.Equal(t, "http://worker:8080/invoke", cfg.RemoteURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
}

func TestParseServeNeedsNoPath(t *testing.T) {
	var out bytes.Buffer
	cfg, _, err := Parse([]string{"-serve", ":8080"}, &out)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServeAddr)
	assert.Empty(t, cfg.GridPath)
}

func TestParseMissingPath(t *testing.T) {
	var out bytes.Buffer
	_, _, err := Parse(nil, &out)
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
	assert.Contains(t, out.String(), "Usage:")
}

func TestParseHelp(t *testing.T) {
	var out bytes.Buffer
	_, help, err := Parse([]string{"-h"}, &out)
	require.NoError(t, err)
	assert.True(t, help)
	assert.Contains(t, out.String(), "GRID_PATH")
}
