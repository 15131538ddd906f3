package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversInOrder(t *testing.T) {
	b := New[int]()
	defer b.Close()

	var mu sync.Mutex
	var got []int
	b.Subscribe(func(e int) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	for i := range 100 {
		require.NoError(t, b.Publish(i))
	}
	require.NoError(t, b.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	b := New[string]()
	defer b.Close()

	var first, second []string
	unsubscribe := b.Subscribe(func(e string) { first = append(first, e) })
	b.Subscribe(func(e string) { second = append(second, e) })

	require.NoError(t, b.Publish("a"))
	require.NoError(t, b.Flush(context.Background()))

	unsubscribe()
	unsubscribe()

	require.NoError(t, b.Publish("b"))
	require.NoError(t, b.Flush(context.Background()))

	assert.Equal(t, []string{"a"}, first)
	assert.Equal(t, []string{"a", "b"}, second)
}

func TestBus_HandlerMayPublish(t *testing.T) {
	b := New[int]()
	defer b.Close()

	var mu sync.Mutex
	var got []int
	b.Subscribe(func(e int) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		if e < 3 {
			_ = b.Publish(e + 1)
		}
	})

	require.NoError(t, b.Publish(0))
	require.NoError(t, b.Flush(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestBus_Close(t *testing.T) {
	b := New[int]()

	var count int
	b.Subscribe(func(int) {
		time.Sleep(time.Millisecond)
		count++
	})

	for i := range 5 {
		require.NoError(t, b.Publish(i))
	}

	b.Close()
	assert.Equal(t, 5, count, "queued events are delivered before Close returns")
	assert.ErrorIs(t, b.Publish(6), ErrBusClosed)

	assert.NotPanics(t, b.Close)
}

func TestBus_FlushHonoursContext(t *testing.T) {
	b := New[int]()
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe(func(int) { <-release })
	require.NoError(t, b.Publish(1))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, b.Flush(ctx), context.DeadlineExceeded)

	close(release)
	assert.NoError(t, b.Flush(context.Background()))
}
