package logger

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

func TestNew_ServiceConfigs(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		checkFunc func(t *testing.T, output string)
	}{
		{
			name:   "json lines carry model attributes",
			config: Config{Level: "info", Format: "json"},
			checkFunc: func(t *testing.T, output string) {
				var logEntry map[string]any
				require.NoError(t, json.Unmarshal([]byte(output), &logEntry))
				assert.Equal(t, "INFO", logEntry["level"])
				assert.Equal(t, "Training completed", logEntry["msg"])
				assert.Equal(t, float64(7), logEntry["model_id"])
			},
		},
		{
			name:   "console without color has no escape codes",
			config: Config{Level: "info", Format: "console", NoColor: true},
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "Training completed")
				assert.Contains(t, output, "model_id=7")
				assert.NotContains(t, output, "\x1b[")
			},
		},
		{
			name:   "console with color",
			config: Config{Level: "info", Format: "console"},
			checkFunc: func(t *testing.T, output string) {
				assert.Contains(t, output, "Training completed")
				assert.Contains(t, output, "\x1b[")
			},
		},
		{
			name:   "info records dropped at warn level",
			config: Config{Level: "warn", Format: "json"},
			checkFunc: func(t *testing.T, output string) {
				assert.Empty(t, output)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			config := tt.config
			config.writer = &buf

			logger, err := New(&config)
			require.NoError(t, err)
			defer logger.Close()

			logger.Info("Training completed", slog.Int64("model_id", 7))
			tt.checkFunc(t, buf.String())
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	logger, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file", slog.Int64("model_id", 3))
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var logEntry map[string]any
	require.NoError(t, json.Unmarshal(data, &logEntry))
	assert.Equal(t, "written to file", logEntry["msg"])
	assert.Equal(t, float64(3), logEntry["model_id"])
}

func TestNew_FileOutputAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")

	for _, msg := range []string{"first", "second"} {
		logger, err := New(&Config{Format: "json", Output: path})
		require.NoError(t, err)
		logger.Info(msg)
		require.NoError(t, logger.Close())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	assert.Len(t, lines, 2)
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "worker.log")

	logger, err := New(&Config{Output: path})
	require.Error(t, err)
	assert.Nil(t, logger)
}

func TestLogger_CloseStandardStreams(t *testing.T) {
	for _, output := range []string{"stdout", "stderr", ""} {
		logger, err := New(&Config{Output: output})
		require.NoError(t, err)
		assert.NoError(t, logger.Close(), output)
	}
}
