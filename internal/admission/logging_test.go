package admission

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStdLoggerWritesJSONLines(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewStdLogger(&buf)

	logger.Info("check denied", map[string]any{"endpoint": "/api/data"})

	out := buf.String()
	require.Contains(t, out, `"level":"info"`)
	require.Contains(t, out, `"msg":"check denied"`)
	require.Contains(t, out, `"endpoint":"/api/data"`)
}

func TestStdLoggerAllLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := NewStdLogger(&buf)

	logger.Debug("d", nil)
	logger.Warn("w", nil)
	logger.Error("e", nil)

	out := buf.String()
	require.Contains(t, out, `"level":"debug"`)
	require.Contains(t, out, `"level":"warn"`)
	require.Contains(t, out, `"level":"error"`)
}

func TestLogHelpersTolerateNilLogger(t *testing.T) {
	t.Parallel()
	logDebug(nil, "m", nil)
	logInfo(nil, "m", nil)
	logWarn(nil, "m", nil)
	logError(nil, "m", nil)
}
