package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestController_Cache(t *testing.T) {
	c := NewController(Config{CacheBytes: 100})
	assert.Equal(t, int64(100), c.CacheLimit())

	require.True(t, c.ReserveCache(60))
	require.True(t, c.ReserveCache(40))
	assert.False(t, c.ReserveCache(1))
	assert.Equal(t, int64(100), c.CacheUsage())

	c.ReleaseCache(60)
	assert.True(t, c.ReserveCache(10))
	assert.Equal(t, int64(50), c.CacheUsage())
}

func TestController_UnlimitedCache(t *testing.T) {
	c := NewController(Config{})
	require.True(t, c.ReserveCache(1 << 30))
	assert.Equal(t, int64(1 << 30), c.CacheUsage())
	c.ReleaseCache(1 << 30)
	assert.Zero(t, c.CacheUsage())
}

func TestController_Workers(t *testing.T) {
	c := NewController(Config{Workers: 2})
	assert.Equal(t, 2, c.Workers())
	assert.Equal(t, 1, NewController(Config{}).Workers())

	r1, err := c.Worker(t.Context())
	require.NoError(t, err)
	r2, err := c.Worker(t.Context())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	_, err = c.Worker(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r1()
	r3, err := c.Worker(t.Context())
	require.NoError(t, err)
	r2()
	r3()
}

func TestController_Writes(t *testing.T) {
	c := NewController(Config{WriteBytesPerSec: 100})
	assert.True(t, c.AllowWrite(100))
	assert.False(t, c.AllowWrite(100))

	require.NoError(t, NewController(Config{}).ThrottleWrite(t.Context(), 1<<20))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, c.ThrottleWrite(ctx, 100))
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	assert.True(t, c.ReserveCache(10))
	c.ReleaseCache(10)
	assert.Zero(t, c.CacheUsage())
	assert.Zero(t, c.CacheLimit())
	assert.Equal(t, 1, c.Workers())

	release, err := c.Worker(t.Context())
	require.NoError(t, err)
	release()

	require.NoError(t, c.ThrottleWrite(t.Context(), 10))
	assert.True(t, c.AllowWrite(10))
}
