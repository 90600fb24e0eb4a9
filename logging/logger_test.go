package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("debug"))
	assert.Equal(t, LogLevelInfo, ParseLevel("info"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warn"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel("error"))
	// Unknown values fall back to info.
	assert.Equal(t, LogLevelInfo, ParseLevel("verbose"))
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&Config{Level: LogLevelInfo, Format: "json", Output: &buf})

		logger.Info("server listening", "addr", "127.0.0.1:8082")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "server listening", entry["msg"])
		assert.Equal(t, "127.0.0.1:8082", entry["addr"])
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New(&Config{Level: LogLevelError, Format: "text", Output: &buf})

		logger.Debug("dropped")
		logger.Info("dropped")
		logger.Warn("dropped")
		assert.Empty(t, buf.String())

		logger.Error("kept")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		assert.NotNil(t, New(nil))
	})
}
