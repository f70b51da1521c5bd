package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriterLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWriterLogger("test", &buf, WARN)

	logger.Info("не должно попасть")
	logger.Warn("предупреждение %d", 1)
	logger.Error("ошибка")

	out := buf.String()
	assert.NotContains(t, out, "не должно попасть")
	assert.Contains(t, out, "[WARN] [test] предупреждение 1")
	assert.Contains(t, out, "[ERROR] [test] ошибка")
}

func TestDefaultLoggerSwap(t *testing.T) {
	var buf bytes.Buffer
	prev := current()
	SetDefaultLogger(NewWriterLogger("swap", &buf, DEBUG))
	defer SetDefaultLogger(prev)

	Debug("отладка")
	LogStrike("stone", 1, 2, "safe", 1, 0, 0)
	assert.Equal(t, 2, strings.Count(buf.String(), "[DEBUG]"))
}

func TestNewLoggerWritesFile(t *testing.T) {
	prevDir := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prevDir }()

	logger, err := NewLogger("file")
	require.NoError(t, err)
	logger.SetLevels(ERROR, DEBUG)
	logger.Debug("в файл")
	require.NoError(t, logger.Close())

	matches, err := filepath.Glob(filepath.Join(LogDir, "file_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "[DEBUG] [file] в файл")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("что-то"))
}

func TestLoggerManagerCachesComponents(t *testing.T) {
	prevDir := LogDir
	LogDir = t.TempDir()
	defer func() { LogDir = prevDir }()
	lm := &LoggerManager{loggers: make(map[string]*Logger)}

	a, err := lm.GetLogger("api")
	require.NoError(t, err)
	b, err := lm.GetLogger("api")
	require.NoError(t, err)
	assert.Same(t, a, b)

	_, err = lm.GetLogger("storage")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "storage"}, lm.ListComponents())

	require.NoError(t, lm.SetLogLevel("api", ERROR, ERROR))
	assert.Error(t, lm.SetLogLevel("missing", ERROR, ERROR))

	require.NoError(t, lm.CloseAll())
	assert.Empty(t, lm.ListComponents())
}
