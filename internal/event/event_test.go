// Copyright Mia srl
// SPDX-License-Identifier: AGPL-3.0-only or Commercial

package event

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive[T any](t *testing.T, feed Feed[T]) T {
	t.Helper()

	select {
	case value, ok := <-feed.C():
		require.True(t, ok, "feed closed unexpectedly")
		return value
	case <-time.After(time.Second):
		require.FailNow(t, "timeout waiting for value")
	}

	var zero T
	return zero
}

func requireEmpty[T any](t *testing.T, feed Feed[T]) {
	t.Helper()

	select {
	case value, ok := <-feed.C():
		if ok {
			assert.Failf(t, "unexpected value", "%v", value)
		}
	default:
	}
}

func TestEmitterFiltersSubscriptions(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[int](0)
	all := emitter.Subscribe(nil)
	even := emitter.Subscribe(func(v int) bool { return v%2 == 0 })
	require.Equal(t, 2, emitter.Len())

	emitter.Emit(1)
	emitter.Emit(2)

	assert.Equal(t, 1, receive(t, all))
	assert.Equal(t, 2, receive(t, all))
	assert.Equal(t, 2, receive(t, even))
	requireEmpty(t, even)
}

func TestCancelUnsubscribes(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[string](1)
	feed := emitter.Subscribe(nil)

	feed.Cancel()
	feed.Cancel()
	assert.Equal(t, 0, emitter.Len())

	_, ok := <-feed.C()
	assert.False(t, ok)

	assert.NotPanics(t, func() { emitter.Emit("after cancel") })
}

func TestSlowSubscriberDropsValues(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[int](2)
	feed := emitter.Subscribe(nil)

	for i := range 5 {
		emitter.Emit(i)
	}

	assert.Equal(t, uint64(3), feed.Dropped())
	assert.Equal(t, 0, receive(t, feed))
	assert.Equal(t, 1, receive(t, feed))
}

func TestCloseEndsFeeds(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[int](0)
	feed := emitter.Subscribe(nil)
	emitter.Close()

	_, ok := <-feed.C()
	assert.False(t, ok)
	assert.NotPanics(t, feed.Cancel)

	late := emitter.Subscribe(nil)
	_, ok = <-late.C()
	assert.False(t, ok)
}

func TestMap(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[int](0)
	feed := Map(emitter.Subscribe(nil), strconv.Itoa)

	emitter.Emit(7)
	assert.Equal(t, "7", receive(t, feed))

	feed.Cancel()
	require.Eventually(t, func() bool { return emitter.Len() == 0 }, time.Second, 10*time.Millisecond)

	_, ok := <-feed.C()
	assert.False(t, ok)
}

func TestMapEndsWithSource(t *testing.T) {
	t.Parallel()

	emitter := NewEmitter[int](0)
	feed := Map(emitter.Subscribe(nil), func(v int) int { return v * 2 })
	emitter.Close()

	select {
	case _, ok := <-feed.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		assert.Fail(t, "mapped feed not closed")
	}
}
