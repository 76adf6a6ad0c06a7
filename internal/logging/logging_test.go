package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var quiet bytes.Buffer
	logger, _ := New(Options{Stderr: &quiet})
	logger.Info("narration")
	logger.Warn("publish failed")
	assert.NotContains(t, quiet.String(), "narration")
	assert.Contains(t, quiet.String(), "publish failed")

	var verbose bytes.Buffer
	logger, _ = New(Options{Debug: true, Stderr: &verbose})
	logger.Debug("recovery step sent", "field", 1)
	assert.Contains(t, verbose.String(), "recovery step sent")
	assert.Contains(t, verbose.String(), "field=1")
}

func TestNewWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "litterwatch.log")
	var stderr bytes.Buffer
	logger, closer := New(Options{Debug: true, File: path, Stderr: &stderr})
	logger.Info("device needs reset")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "device needs reset")
	assert.Contains(t, stderr.String(), "device needs reset")
}
