package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eshaffer321/invoice-ledger/internal/infrastructure/config"
)

func TestMavenHandler_Format(t *testing.T) {
	// Arrange
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info"}).With("system", "pipeline")

	// Act
	logger.Info("Processed invoice", "fingerprint", "ab12", "reason", "within tolerance")

	// Assert
	line := buf.String()
	assert.True(t, strings.HasPrefix(line, "[INFO] [pipeline] ["), line)
	assert.Contains(t, line, " Processed invoice fingerprint=ab12 reason=\"within tolerance\"\n")
	assert.NotContains(t, line, "system=")
}

func TestMavenHandler_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "warn"})

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
	assert.Contains(t, buf.String(), "[WARN]")
}

func TestMavenHandler_Groups(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "debug"})

	logger.WithGroup("line").With("position", 3).Debug("matched", "code", "MLEKO")
	logger.Info("totals", slog.Group("delta", "value", "0.01", "tolerance", "0.02"))

	out := buf.String()
	assert.Contains(t, out, "line.position=3 line.code=MLEKO")
	assert.Contains(t, out, "delta.value=0.01 delta.tolerance=0.02")
}

func TestNewLoggerTo_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, config.LoggingConfig{Level: "info", Format: "json"})

	logger.Info("recorded", "alerts", 2)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "recorded", record["msg"])
	assert.Equal(t, float64(2), record["alerts"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("loud"))
}
