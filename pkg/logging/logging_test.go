package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelssec/aso-compliance/pkg/config"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for name, want := range tests {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("trace")
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "warn", Format: "json", Writer: &buf})
	require.NoError(t, err)

	logger.Info("dropped")
	logger.Warn("catalog loaded", "frameworks", 3)

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "catalog loaded", record["msg"])
	assert.Equal(t, 3.0, record["frameworks"])
}

func TestNew_TextIsUncolouredOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Level: "debug", Format: "text", Writer: &buf})
	require.NoError(t, err)

	logger.Debug("gate evaluated", "allowed", true)
	assert.Contains(t, buf.String(), "gate evaluated")
	assert.Contains(t, buf.String(), "allowed=true")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestNew_InvalidFormat(t *testing.T) {
	_, err := New(Options{Level: "info", Format: "xml"})
	assert.ErrorIs(t, err, config.ErrInvalidLogFormat)

	_, err = Setup(Options{Level: "loud", Format: "text"})
	assert.ErrorIs(t, err, config.ErrInvalidLogLevel)
}
