package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestNewJSONToStdout(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(Config{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("dropped")
	logger.Warn("kept", "symbol", "us:AAPL")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "kept", rec["msg"])
	assert.Equal(t, "us:AAPL", rec["symbol"])
}

func TestNewBothWritesFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "vault.log")
	logger, closer, err := New(Config{Output: "both", FilePath: path, MaxSize: 1}, &buf)
	require.NoError(t, err)

	logger.Info("sync finished", "succeeded", 3)
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sync finished")
	assert.Contains(t, buf.String(), "succeeded=3")
}

func TestNewRejectsBadOutput(t *testing.T) {
	_, _, err := New(Config{Output: "syslog"}, &bytes.Buffer{})
	assert.Error(t, err)
	_, _, err = New(Config{Output: "file"}, &bytes.Buffer{})
	assert.Error(t, err)
}
