//nolint:thelper // ok for tests
package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamedLoggerWritesJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel).Named("lifecycle")
	l.Info("state changed", String("from", "idle"), String("to", "racing"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "lifecycle", entry["logger"])
	assert.Equal(t, "state changed", entry["msg"])
	assert.Equal(t, "racing", entry["to"])
}

func TestLevelSuppressesDebug(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(buf, InfoLevel)
	l.Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestWithFilter(t *testing.T) {
	opt, err := WithFilter("*:simulation")
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	l := New(buf, DebugLevel, opt)
	l.Named("gameapi").Info("dropped")
	assert.Empty(t, buf.String())
	l.Named("simulation").Info("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestContextLogger(t *testing.T) {
	assert.Same(t, Default(), GetFromContext(context.Background()))
	l := New(&bytes.Buffer{}, InfoLevel)
	ctx := AddToContext(context.Background(), l)
	assert.Same(t, l, GetFromContext(ctx))
}

func TestParseLevel(t *testing.T) {
	lvl, err := ParseLevel("warn")
	require.NoError(t, err)
	assert.Equal(t, WarnLevel, lvl)
	_, err = ParseLevel("loud")
	assert.Error(t, err)
}
