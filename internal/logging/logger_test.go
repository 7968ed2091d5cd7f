package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesJSONToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "wingman.log")

	l, closer, err := New("info", file)
	require.NoError(t, err)

	l.Info().Str("k", "v").Msg("hello")
	l.Debug().Msg("filtered")
	closer()

	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"hello"`)
	assert.Contains(t, string(data), `"k":"v"`)
	assert.NotContains(t, string(data), "filtered")
}

func TestNew_InvalidLevel(t *testing.T) {
	_, _, err := New("loud", "")
	assert.Error(t, err)
}

func TestThreadID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, ThreadID(ctx))

	ctx = WithThreadID(ctx, "thread-1")
	assert.Equal(t, "thread-1", ThreadID(ctx))
}

func TestCtx_AttachesThreadID(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	Ctx(WithThreadID(context.Background(), "t-42"), &base).Info().Msg("x")
	assert.Contains(t, buf.String(), `"thread_id":"t-42"`)

	buf.Reset()
	Ctx(context.Background(), &base).Info().Msg("y")
	assert.NotContains(t, buf.String(), "thread_id")
}

func TestComponent_FollowsGlobalLogger(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })

	var buf bytes.Buffer
	log.Logger = zerolog.New(&buf).Level(zerolog.WarnLevel)

	Component("composer").Info().Msg("filtered")
	Component("composer").Warn().Msg("kept")

	assert.NotContains(t, buf.String(), "filtered")
	assert.Contains(t, buf.String(), `"cmp":"composer"`)
	assert.Contains(t, buf.String(), `"message":"kept"`)
}
