package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openOptions(url string, log *logrus.Logger) Options {
	return Options{
		URL:          url,
		OpTimeout:    200 * time.Millisecond,
		ProbeTimeout: 500 * time.Millisecond,
		Logger:       log,
	}
}

func TestOpen_NoURLUsesMemory(t *testing.T) {
	log, hook := test.NewNullLogger()

	sel := Open(openOptions("", log))

	assert.Equal(t, ModeMemory, sel.Mode)
	assert.True(t, sel.Mode.Degraded())
	assert.Nil(t, sel.Client)
	assert.IsType(t, &MemoryBackend{}, sel.Backend)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestOpen_UnreachableFallsBackOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	log, hook := test.NewNullLogger()
	sel := Open(openOptions("redis://"+addr+"/0", log))

	assert.Equal(t, ModeMemory, sel.Mode)
	require.Len(t, hook.AllEntries(), 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	// The fallback keeps serving; no reconnect is attempted per call.
	ctx := context.Background()
	require.NoError(t, sel.Backend.Set(ctx, "user:1", "alice", time.Minute))
	v, ok, err := sel.Backend.Get(ctx, "user:1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alice", v)
	assert.Len(t, hook.AllEntries(), 1)
}

func TestOpen_ReachableUsesRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	log, _ := test.NewNullLogger()

	sel := Open(openOptions("redis://"+mr.Addr()+"/0", log))
	require.NotNil(t, sel.Client)
	t.Cleanup(func() { _ = sel.Client.Close() })

	assert.Equal(t, ModeRedis, sel.Mode)
	assert.False(t, sel.Mode.Degraded())

	ctx := context.Background()
	require.NoError(t, sel.Backend.Set(ctx, "session:s1", "tok", TTLSession))
	v, err := mr.Get("session:s1")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
}
