package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestStartSpanNestsUnderTrace(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), NewWriter(&buf, "debug"))

	ctx, parent := StartSpan(ctx, "session.init")
	traceID := TraceIDFromContext(ctx)
	parentID := SpanIDFromContext(ctx)
	require.NotEmpty(t, traceID)
	require.NotEmpty(t, parentID)

	childCtx, child := StartSpan(ctx, "requests.fetch", slog.Int("limit", 100))
	assert.Equal(t, traceID, TraceIDFromContext(childCtx))
	assert.NotEqual(t, parentID, SpanIDFromContext(childCtx))

	child.End(errors.New("offline"))
	parent.End(nil)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "ERROR", lines[0]["level"])
	assert.Equal(t, "requests.fetch", lines[0]["op"])
	assert.Equal(t, parentID, lines[0]["parent_span_id"])
	assert.Equal(t, traceID, lines[0]["trace_id"])
	assert.Equal(t, "offline", lines[0]["error"])
	assert.EqualValues(t, 100, lines[0]["limit"])

	assert.Equal(t, "DEBUG", lines[1]["level"])
	assert.Equal(t, "session.init", lines[1]["op"])
	assert.NotContains(t, lines[1], "parent_span_id")
}

func TestNilSpanEndIsSafe(t *testing.T) {
	var span *Span
	assert.NotPanics(t, func() { span.End(nil) })
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel(" DEBUG "))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.Same(t, slog.Default(), FromContext(context.Background()))
}
