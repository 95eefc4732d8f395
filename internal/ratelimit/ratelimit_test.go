package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter(limit int, window time.Duration) (*Limiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := New(limit, window)
	l.now = clock.now
	return l, clock
}

func TestAllow_ExhaustsBucket(t *testing.T) {
	l, _ := newTestLimiter(3, time.Minute)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "keys have independent buckets")
}

func TestAllow_Refills(t *testing.T) {
	l, clock := newTestLimiter(2, time.Minute)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.advance(30 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))

	clock.advance(10 * time.Minute)
	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"), "refill is capped at limit")
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter(1, time.Minute)
	defer l.Close()

	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	l.Reset("a")
	assert.True(t, l.Allow("a"))
}

func TestEvictStale(t *testing.T) {
	l, clock := newTestLimiter(5, time.Minute)
	defer l.Close()

	l.Allow("old")
	clock.advance(3 * time.Minute)
	l.Allow("new")
	l.evictStale()
	assert.Equal(t, 1, l.Len())
}

func TestRetryAfter(t *testing.T) {
	l := New(60, time.Minute)
	defer l.Close()
	assert.Equal(t, time.Second, l.RetryAfter())
	l.Close()
}
