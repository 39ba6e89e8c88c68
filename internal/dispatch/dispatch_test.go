package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunDeliversInOrder(t *testing.T) {
	d := New(128)

	var got []int
	done := make(chan struct{})
	d.Register("n", func(ev Event) {
		got = append(got, ev.Data.(int))
		if len(got) == 100 {
			close(done)
		}
	})

	for i := 0; i < 100; i++ {
		require.NoError(t, d.Post(Event{Kind: "n", Data: i}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events not delivered")
	}
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestHandlersNeverOverlap(t *testing.T) {
	d := New(256)

	var mu sync.Mutex
	active, maxActive, count := 0, 0, 0
	done := make(chan struct{})
	h := func(Event) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()
		time.Sleep(100 * time.Microsecond)
		mu.Lock()
		active--
		count++
		if count == 200 {
			close(done)
		}
		mu.Unlock()
	}
	d.Register("a", h)
	d.Register("b", h)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(kind Kind) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for d.Post(Event{Kind: kind}) == ErrFull {
					time.Sleep(time.Millisecond)
				}
			}
		}(Kind([]string{"a", "b"}[i%2]))
	}
	wg.Wait()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("events not delivered")
	}
	assert.Equal(t, 1, maxActive)
}

func TestPostStampsTime(t *testing.T) {
	d := New(1)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	require.NoError(t, d.Post(Event{Kind: "x"}))
	ev := <-d.queue
	assert.Equal(t, fixed, ev.At)
}

func TestPostFullAndClosed(t *testing.T) {
	d := New(1)
	require.NoError(t, d.Post(Event{Kind: "x"}))
	assert.ErrorIs(t, d.Post(Event{Kind: "x"}), ErrFull)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, d.Run(ctx), context.Canceled)
	assert.ErrorIs(t, d.Post(Event{Kind: "x"}), ErrClosed)
}

func TestUnhandledKindIsDropped(t *testing.T) {
	d := New(4)
	delivered := make(chan struct{})
	d.Register("known", func(Event) { close(delivered) })

	require.NoError(t, d.Post(Event{Kind: "unknown"}))
	require.NoError(t, d.Post(Event{Kind: "known"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("known event not delivered after unknown one")
	}
}
