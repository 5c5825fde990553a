package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, true, slog.LevelInfo)

	ctx := AppendCtx(context.Background(), slog.String("run", "abc123"))
	ctx = AppendCtx(ctx, slog.String("codec", "png"))
	log.InfoContext(ctx, "decoded", "width", 640)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "decoded", rec["msg"])
	assert.Equal(t, "abc123", rec["run"])
	assert.Equal(t, "png", rec["codec"])
	assert.Equal(t, float64(640), rec["width"])
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelWarn)
	log.Info("quiet")
	assert.Zero(t, buf.Len())
	log.Warn("loud")
	assert.Contains(t, buf.String(), "loud")
}

func TestTextHandler(t *testing.T) {
	var buf bytes.Buffer
	log := Logger(&buf, false, slog.LevelDebug)
	log.Debug("hello", "k", "v")
	assert.Contains(t, buf.String(), "k=v")
}
