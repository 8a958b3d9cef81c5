package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_WritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	log, err := NewLogger(LoggerConfig{
		App:        "shoptrend",
		Level:      "debug",
		Format:     "json",
		OutputPath: path,
		MaxSize:    1,
		Quiet:      true,
	})
	require.NoError(t, err)

	log.Info("aggregation finished", zap.String("keyword", "shoes"))
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(raw))

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "shoptrend", entry["app"])
	assert.Equal(t, "shoes", entry["keyword"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewLogger_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := NewLogger(LoggerConfig{Level: "warn", Format: "json", OutputPath: path, Quiet: true})
	require.NoError(t, err)

	log.Info("dropped")
	log.Warn("kept")
	require.NoError(t, log.Sync())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "dropped")
	assert.Contains(t, string(raw), "kept")
}

func TestNewLogger_QuietWithoutFileIsNop(t *testing.T) {
	log, err := NewLogger(LoggerConfig{Level: "bogus", Quiet: true})
	require.NoError(t, err)
	assert.NotNil(t, log)
}
