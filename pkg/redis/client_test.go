package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bookclub-search/pkg/config"
)

func TestIsNilError(t *testing.T) {
	assert.True(t, IsNilError(redis.Nil))
	assert.True(t, IsNilError(fmt.Errorf("get: %w", redis.Nil)))
	assert.False(t, IsNilError(errors.New("connection refused")))
	assert.False(t, IsNilError(nil))
}

// TestClient_Integration needs a disposable Redis; set BC_TEST_REDIS_ADDR.
func TestClient_Integration(t *testing.T) {
	addr := os.Getenv("BC_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("BC_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	prefix := fmt.Sprintf("test-%d:", time.Now().UnixNano())
	for i := 0; i < 3; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("v"), time.Minute))
	}

	v, err := c.Get(ctx, prefix+"0")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)

	_, err = c.Get(ctx, prefix+"missing")
	assert.True(t, IsNilError(err))

	n, err := c.FlushByPattern(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
