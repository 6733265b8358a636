package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var entry map[string]any
		require.NoError(t, dec.Decode(&entry))
		out = append(out, entry)
	}
	return out
}

func TestLoggerWritesStructuredJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: DebugLevel, Service: "npc-registry", Output: &buf})

	l.Info("entity created", EntityIDField("npc_0001"), IntField("count", 3), BoolField("fresh", true))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "entity created", entries[0]["msg"])
	assert.Equal(t, "info", entries[0]["level"])
	assert.Equal(t, "npc-registry", entries[0]["service"])
	assert.Equal(t, "npc_0001", entries[0]["npc_id"])
	assert.EqualValues(t, 3, entries[0]["count"])
	assert.Equal(t, true, entries[0]["fresh"])
}

func TestLoggerWithFieldsIsImmutable(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Level: InfoLevel, Output: &buf})
	child := base.WithFields(SessionField("chat-1"))

	base.Info("base")
	child.Info("child")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0], "session_id")
	assert.Equal(t, "chat-1", entries[1]["session_id"])
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Level: WarnLevel, Output: &buf})

	l.Debug("dropped")
	l.Info("dropped")
	l.Warn("kept")
	l.Error("kept", ErrorField(errors.New("boom")))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warning", entries[0]["level"])
	assert.Equal(t, "boom", entries[1]["error"])
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		"warning": WarnLevel,
		" error ": ErrorLevel,
		"bogus":   InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
	assert.Equal(t, "warn", WarnLevel.String())
}

func TestErrorFieldNil(t *testing.T) {
	assert.Equal(t, "<nil>", ErrorField(nil).Value)
	assert.Equal(t, "1.5s", DurationField("d", 1500*time.Millisecond).Value)
}

func TestEnsureHTTPCorrelationID(t *testing.T) {
	t.Run("keeps a valid id", func(t *testing.T) {
		id := uuid.New().String()
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(CorrelationIDHeader, id)

		r, got := EnsureHTTPCorrelationID(r)
		assert.Equal(t, id, got)
		assert.Equal(t, id, GetCorrelationIDFromContext(r.Context()))
	})

	t.Run("replaces an invalid id", func(t *testing.T) {
		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set(CorrelationIDHeader, "not-a-uuid")

		r, got := EnsureHTTPCorrelationID(r)
		assert.NotEqual(t, "not-a-uuid", got)
		_, err := uuid.Parse(got)
		assert.NoError(t, err)
		assert.Equal(t, got, r.Header.Get(CorrelationIDHeader))
	})
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	base := NewLogger(Config{Output: &buf})

	FromContext(context.Background(), base).Info("plain")
	ctx := WithCorrelationIDContext(context.Background(), "abc")
	FromContext(ctx, base).Info("tagged")

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 2)
	assert.NotContains(t, entries[0], CorrelationIDFieldKey)
	assert.Equal(t, "abc", entries[1][CorrelationIDFieldKey])
}
