// File: internal/observability/logger_test.go
package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/compass-pilot/internal/config"
)

// syncBuffer adapts a bytes.Buffer into the WriteSyncer Initialize wants,
// keeping the captured output in memory where assertions can reach it.
type syncBuffer struct {
	bytes.Buffer
}

func (*syncBuffer) Sync() error { return nil }

// resetGlobalLogger restores singleton state between tests.
func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		cfg := config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "pilot-test",
			Colors:      config.ColorConfig{Info: "green"},
		}
		Initialize(cfg, buf)
		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO", "output should contain the log level")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "info level should be colorized green")
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "pilot-test.", "component name carries the dot suffix")
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		cfg := config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "json-test",
		}
		Initialize(cfg, buf)
		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var entry map[string]interface{}
		err := json.Unmarshal(buf.Bytes(), &entry)
		require.NoError(t, err, "log output should be valid JSON")

		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "json-test", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("file core writes to the configured log file", func(t *testing.T) {
		resetGlobalLogger()
		logPath := filepath.Join(t.TempDir(), "pilot-test.log")

		cfg := config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logPath,
			MaxSize: 1,
		}
		Initialize(cfg, &syncBuffer{})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logPath)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("second initialization is ignored", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "first"}, buf)
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "second"}, &syncBuffer{})
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")
		assert.True(t, strings.Contains(buf.String(), "first"))
		assert.False(t, strings.Contains(buf.String(), "second"))
	})

	t.Run("bad level falls back to info", func(t *testing.T) {
		resetGlobalLogger()
		buf := &syncBuffer{}

		Initialize(config.LoggerConfig{Level: "shouting", Format: "json", ServiceName: "lvl"}, buf)
		GetLogger().Debug("hidden")
		GetLogger().Info("visible")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "visible")
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("returns a fallback logger before initialization", func(t *testing.T) {
		resetGlobalLogger()
		logger := GetLogger()
		require.NotNil(t, logger)
	})

	t.Run("returns the stored logger after initialization", func(t *testing.T) {
		resetGlobalLogger()
		Initialize(config.LoggerConfig{Level: "info", ServiceName: "global-test"}, zapcore.AddSync(&syncBuffer{}))

		logger := GetLogger()
		assert.Equal(t, globalLogger.Load(), logger)
	})
}

func TestSyncWithoutInitialization(t *testing.T) {
	resetGlobalLogger()
	// Must not panic or log spuriously.
	Sync()
}
