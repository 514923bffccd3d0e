package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Info("index computed", "final", 0.42, "providers", 7, "error", errors.New("boom"))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "index computed", line["message"])
	assert.Equal(t, 0.42, line["final"])
	assert.Equal(t, float64(7), line["providers"])
	assert.Equal(t, "boom", line["error"])
	assert.Equal(t, "info", line["level"])
}

func TestLogger_OddFieldsIgnored(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json")

	l.Warn("dangling", "key")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	_, ok := line["key"]
	assert.False(t, ok)
}

func TestLogger_WithAndComponent(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "json").With("run_id", "abc")

	zl := l.Component("gate")
	zl.Info().Msg("hello")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "abc", line["run_id"])
	assert.Equal(t, "gate", line["component"])
}

func TestNoopLogger(t *testing.T) {
	l := NewNoopLogger()
	assert.NotPanics(t, func() {
		l.Info("nothing", "k", "v")
		l.Error("nothing")
	})
}
