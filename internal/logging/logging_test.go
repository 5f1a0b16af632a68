package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_WritesFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "fulfillment", "info")

	Log(context.Background(), l, "reconcile", Fields{
		OrderCode: "OD-1",
		Step:      "webhook",
		Status:    "completed",
	})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "fulfillment", got["service"])
	assert.Equal(t, "OD-1", got["order_code"])
	assert.Equal(t, "webhook", got["step"])
	assert.Equal(t, "INFO", got["level"])
	_, hasErr := got["error"]
	assert.False(t, hasErr)
}

func TestLog_ErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "fulfillment", "info")

	Log(context.Background(), l, "publish failed", Fields{Err: errors.New("broker down")})

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "ERROR", got["level"])
	assert.Equal(t, "broker down", got["error"])
}

func TestNew_DebugFilteredAtInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "fulfillment", "info")
	l.Debug("hidden")
	assert.Empty(t, buf.String())
}
