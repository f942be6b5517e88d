package cache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gqlforge/gqlforge/internal/fingerprint"
)

func TestGroupDedupesConcurrentCallsForSameID(t *testing.T) {
	g := NewGroup()
	id := fingerprint.Bytes("same")

	var calls int32
	var wg sync.WaitGroup
	results := make([]any, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := g.Do(id, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(5 * time.Millisecond)
				return "result", nil
			})
			require.NoError(t, err)
			results[i] = v
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "result", r)
	}
}

func TestGroupDoesNotDedupeDifferentIDs(t *testing.T) {
	g := NewGroup()
	var calls int32
	call := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	_, _ = g.Do(fingerprint.Bytes("a"), call)
	_, _ = g.Do(fingerprint.Bytes("b"), call)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestForgetAllowsFreshCallAfterCancellation(t *testing.T) {
	g := NewGroup()
	id := fingerprint.Bytes("x")
	var calls int32
	call := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	_, _ = g.Do(id, call)
	g.Forget(id)
	_, _ = g.Do(id, call)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestTTLCacheExpiresEntries(t *testing.T) {
	c := NewTTLCache(10)
	id := fingerprint.Bytes("k")
	c.Set(id, "v", 10*time.Millisecond)

	v, ok := c.Get(id)
	require.True(t, ok)
	assert.Equal(t, "v", v)

	time.Sleep(20 * time.Millisecond)
	_, ok = c.Get(id)
	assert.False(t, ok)
}

func TestEnvelopeSkipsEvaluationOnCacheHit(t *testing.T) {
	group := NewGroup()
	ttlCache := NewTTLCache(10)
	id := fingerprint.Bytes("cached")

	var calls int32
	eval := func() (any, error) {
		atomic.AddInt32(&calls, 1)
		return "fresh", nil
	}

	v, err := Envelope(group, ttlCache, id, time.Minute, eval)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)

	v, err = Envelope(NewGroup(), ttlCache, id, time.Minute, eval)
	require.NoError(t, err)
	assert.Equal(t, "fresh", v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnvelopeWithoutCacheStillDedupesWithinGroup(t *testing.T) {
	group := NewGroup()
	id := fingerprint.Bytes("nocache")
	var calls int32

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Envelope(group, nil, id, 0, func() (any, error) {
				atomic.AddInt32(&calls, 1)
				time.Sleep(5 * time.Millisecond)
				return "v", nil
			})
			require.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestEnvelopeForgetsOnError(t *testing.T) {
	group := NewGroup()
	id := fingerprint.Bytes("erroring")
	wantErr := fmt.Errorf("upstream down")

	_, err := Envelope(group, nil, id, 0, func() (any, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	var secondCalled bool
	_, _ = Envelope(group, nil, id, 0, func() (any, error) {
		secondCalled = true
		return "ok", nil
	})
	assert.True(t, secondCalled, "a fresh call after an error must not be suppressed by a stale in-flight entry")
}
