package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, closeFn, err := New(Options{File: path})
	require.NoError(t, err)
	logger.Info("scan started", "files", 3)
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan started")
	assert.Contains(t, string(data), "files=3")

	// Append mode: a second run adds to the same file.
	logger, closeFn, err = New(Options{File: path})
	require.NoError(t, err)
	logger.Info("second run")
	require.NoError(t, closeFn())

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "scan started")
	assert.Contains(t, string(data), "second run")
}

func TestNewVerboseLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.log")

	logger, closeFn, err := New(Options{File: path})
	require.NoError(t, err)
	logger.Debug("hidden")
	require.NoError(t, closeFn())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")

	logger, closeFn, err = New(Options{Verbose: true, File: path})
	require.NoError(t, err)
	logger.Debug("visible")
	require.NoError(t, closeFn())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "visible")
}

func TestNewBadFile(t *testing.T) {
	_, _, err := New(Options{File: filepath.Join(t.TempDir(), "no", "such", "dir.log")})
	assert.Error(t, err)
}
