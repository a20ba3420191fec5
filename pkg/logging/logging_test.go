package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace": LevelTrace,
		"DEBUG": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"fatal": LevelFatal,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestComponentLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, LevelInfo)
	l := Component(base, "capability.fs")
	l.Info("denied", "path", "/etc/passwd")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "capability.fs", entry["component"])
	assert.Equal(t, "denied", entry["msg"])
	assert.Equal(t, "/etc/passwd", entry["path"])
}

func TestLogAndReturn(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, LevelInfo)
	cause := errors.New("boom")

	got := LogAndReturn(context.Background(), l, LevelError, "capability failed", cause)
	assert.Equal(t, cause, got)
	assert.Contains(t, buf.String(), "boom")
}
