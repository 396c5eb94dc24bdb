package loom

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPollingFutureRetriesUntilReady(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	count := 0
	var result int
	_, err = s.Spawn(func() {
		f := NewPollingFuture(func() (int, bool) {
			count++
			return count, count == 3
		})
		v, err := Await(s, f)
		require.NoError(t, err)
		result = v
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	require.Equal(t, 3, result)
	require.Equal(t, 3, count)
}

func TestCallbackFutureLatchesValueAfterCompletion(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	polls := 0
	cb := NewCallbackFuture(func() (string, bool) {
		polls++
		return "done", polls == 2
	})

	var first, second string
	_, err = s.Spawn(func() {
		v, err := cb.Await(s)
		require.NoError(t, err)
		first = v
		v2, err := cb.Await(s)
		require.NoError(t, err)
		second = v2
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	require.Equal(t, "done", first)
	require.Equal(t, "done", second)
	require.Equal(t, 2, polls, "second Await must not re-invoke cb once latched")
}

func TestDoAsyncRunsOnAwaitingFiber(t *testing.T) {
	s, err := NewScheduler()
	require.NoError(t, err)

	x := 1
	var captured int
	_, err = s.Spawn(func() {
		x = 2 // mutate before DoAsync even runs
		f := DoAsync(func() int { return x })
		v, err := Await(s, f)
		require.NoError(t, err)
		captured = v
	})
	require.NoError(t, err)

	require.NoError(t, s.Run())
	require.Equal(t, 2, captured)
}
