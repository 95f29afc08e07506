package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrComputeCachesWithinTTL(t *testing.T) {
	v := NewValidation()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return "value", nil
	}

	got, err := v.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", got)

	got, err = v.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, "value", got)
	assert.Equal(t, 1, calls, "second read must be served from cache")
}

func TestGetOrComputeRecomputesAfterTTL(t *testing.T) {
	v := NewValidation()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	got, err := v.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	// 30s is still fresh; one second past it is not.
	now = now.Add(30 * time.Second)
	_, err = v.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(time.Second)
	got, err = v.GetOrCompute("k", 30*time.Second, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
	assert.Equal(t, 2, calls)
}

func TestFailedComputeIsNotCached(t *testing.T) {
	v := NewValidation()
	boom := errors.New("db down")
	calls := 0

	_, err := v.GetOrCompute("k", time.Minute, func() (interface{}, error) {
		calls++
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, v.Len(), "a failure must leave no entry behind")

	got, err := v.GetOrCompute("k", time.Minute, func() (interface{}, error) {
		calls++
		return "recovered", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
	assert.Equal(t, 2, calls)
}

func TestInvalidateForcesRecompute(t *testing.T) {
	v := NewValidation()
	calls := 0
	compute := func() (interface{}, error) {
		calls++
		return calls, nil
	}

	_, err := v.GetOrCompute("k", time.Hour, compute)
	require.NoError(t, err)

	v.Invalidate("k")

	got, err := v.GetOrCompute("k", time.Hour, compute)
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestKeysAreIndependent(t *testing.T) {
	v := NewValidation()
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := string(rune('a' + n%8))
			_, err := v.GetOrCompute(key, time.Minute, func() (interface{}, error) {
				return key, nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, v.Len())
}

func TestSweepDropsOldEntries(t *testing.T) {
	v := NewValidation()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	v.now = func() time.Time { return now }

	_, err := v.GetOrCompute("old", time.Hour, func() (interface{}, error) { return 1, nil })
	require.NoError(t, err)

	now = now.Add(10 * time.Minute)
	_, err = v.GetOrCompute("fresh", time.Hour, func() (interface{}, error) { return 2, nil })
	require.NoError(t, err)

	v.sweep(5 * time.Minute)
	assert.Equal(t, 1, v.Len())

	// The surviving entry is the fresh one.
	got, err := v.GetOrCompute("fresh", time.Hour, func() (interface{}, error) { return 3, nil })
	require.NoError(t, err)
	assert.Equal(t, 2, got)
}

func TestSweeperStopIsIdempotent(t *testing.T) {
	v := NewValidation()
	stop := v.StartSweeper(time.Millisecond, time.Minute)
	stop()
	stop()
}
