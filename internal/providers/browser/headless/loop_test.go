package headless

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopRunsTasksInOrder(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		require.NoError(t, loop.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		}))
	}
	require.NoError(t, loop.Settle(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopSettleWaitsForNestedTasks(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	var ran bool
	require.NoError(t, loop.Post(func() {
		_ = loop.Post(func() {
			_ = loop.Post(func() { ran = true })
		})
	}))
	require.NoError(t, loop.Settle(context.Background()))
	assert.True(t, ran)
}

func TestLoopSurvivesPanics(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	require.NoError(t, loop.Post(func() { panic("boom") }))

	ran := false
	require.NoError(t, loop.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLoopDoHonorsContext(t *testing.T) {
	loop := NewLoop(nil)
	defer loop.Close()

	release := make(chan struct{})
	require.NoError(t, loop.Post(func() { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := loop.Do(ctx, func() {})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)
}

func TestLoopClosed(t *testing.T) {
	loop := NewLoop(nil)

	drained := false
	require.NoError(t, loop.Post(func() { drained = true }))
	loop.Close()
	loop.Close()

	assert.True(t, drained)
	assert.ErrorIs(t, loop.Post(func() {}), ErrLoopClosed)
	assert.ErrorIs(t, loop.Do(context.Background(), func() {}), ErrLoopClosed)
}
