package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fulfillment-service/pkg/ctxutil"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestIDHandlerAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, slog.LevelInfo).With("component", "test")

	ctx := ctxutil.WithRequestID(context.Background(), "evt-42")
	log.InfoContext(ctx, "[test] Handle", "step", "ok")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "evt-42", line["request_id"])
	assert.Equal(t, "test", line["component"])
}

func TestRequestIDHandlerWithoutRequestID(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, slog.LevelInfo).InfoContext(context.Background(), "[test] Handle")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, ok := line["request_id"]
	assert.False(t, ok)
}
