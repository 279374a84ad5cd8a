package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogLogger_TextLevels(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "auth", false)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "a=1",
		"level=INFO", "msg=inf", "b=2",
		"level=WARN", "msg=wrn", "c=3",
		"level=ERROR", "msg=err", "d=4",
		"service=auth",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_ProdIsJSONWithoutDebug(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "gateway", true)
	ctx := context.Background()

	log.Debug(ctx, "hidden")
	log.With("request_id", "r-1").Info(ctx, "hello", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "gateway", entry["service"])
	assert.Equal(t, "r-1", entry["request_id"])
	assert.Equal(t, "v", entry["k"])
}

func TestNop_DoesNotPanic(t *testing.T) {
	log := Nop()
	log.Info(context.TODO(), "ok")
	log.With("x", 1).Error(context.TODO(), "ok")
}
