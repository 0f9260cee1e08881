package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"debug", LogLevelDebug, false},
		{"INFO", LogLevelInfo, false},
		{"", LogLevelInfo, false},
		{"warning", LogLevelWarn, false},
		{" error ", LogLevelError, false},
		{"loud", LogLevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOracleLoggerAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf}).
		WithComponent("session").
		WithSession("s-1", "a-b-c-")

	l.Info("session.start", "transport", "sse")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "session.start", entry["msg"])
	assert.Equal(t, "session", entry["component"])
	assert.Equal(t, "s-1", entry["session_id"])
	assert.Equal(t, "a-b-c-", entry["session_key"])
	assert.Equal(t, "sse", entry["transport"])
}

func TestOracleLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	l.Info("hidden")
	l.LogTaskRun("ORIGIN", time.Millisecond, true, nil)
	assert.Empty(t, buf.String())

	l.LogTaskRun("CELESTIAL", time.Millisecond, false, errors.New("boom"))
	out := buf.String()
	assert.True(t, strings.Contains(out, "task.run.failed"))
	assert.True(t, strings.Contains(out, "error=boom"))
}

func TestWithContextDoesNotLeak(t *testing.T) {
	base := NewLogger(nil)
	child := base.WithContext("attempt_id", "x")
	assert.Len(t, child.context, 1)
	assert.Empty(t, base.context)
}

func TestStartTimer(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.StartTimer("divine")()

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "operation.complete", entry["msg"])
	assert.Equal(t, "divine", entry["operation"])
	assert.Contains(t, entry, "duration")
}
