package broadcast_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/broadcast"
	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	t.Run("initial value first", func(t *testing.T) {
		h := broadcast.New[int](4)
		initial := 7
		ch, unsubscribe := h.Subscribe(&initial)
		defer unsubscribe()

		h.Publish(8)
		require.Equal(t, 7, <-ch)
		require.Equal(t, 8, <-ch)
	})

	t.Run("full buffer keeps newest", func(t *testing.T) {
		h := broadcast.New[int](2)
		ch, unsubscribe := h.Subscribe(nil)
		defer unsubscribe()

		for i := 1; i <= 5; i++ {
			h.Publish(i)
		}
		require.Equal(t, 4, <-ch)
		require.Equal(t, 5, <-ch)
	})

	t.Run("unsubscribe closes", func(t *testing.T) {
		h := broadcast.New[string](1)
		ch, unsubscribe := h.Subscribe(nil)

		unsubscribe()
		unsubscribe()
		_, ok := <-ch
		require.False(t, ok)

		h.Publish("ignored")
	})

	t.Run("close", func(t *testing.T) {
		h := broadcast.New[int](1)
		ch, unsubscribe := h.Subscribe(nil)
		h.Close()
		_, ok := <-ch
		require.False(t, ok)
		unsubscribe()

		late, _ := h.Subscribe(nil)
		_, ok = <-late
		require.False(t, ok)
	})
}

func TestQueueHub(t *testing.T) {
	t.Run("delivers every value in order", func(t *testing.T) {
		h := broadcast.NewQueue[int]()
		initial := 0
		ch, unsubscribe := h.Subscribe(&initial)
		defer unsubscribe()

		for i := 1; i <= 100; i++ {
			h.Publish(i)
		}
		for want := 0; want <= 100; want++ {
			select {
			case got := <-ch:
				require.Equal(t, want, got)
			case <-time.After(time.Second):
				t.Fatalf("value %d not delivered", want)
			}
		}
	})

	t.Run("unsubscribe closes", func(t *testing.T) {
		h := broadcast.NewQueue[int]()
		ch, unsubscribe := h.Subscribe(nil)
		h.Publish(1)

		unsubscribe()
		unsubscribe()
		require.Eventually(t, func() bool {
			for {
				select {
				case _, ok := <-ch:
					if !ok {
						return true
					}
				default:
					return false
				}
			}
		}, time.Second, time.Millisecond)
	})

	t.Run("close", func(t *testing.T) {
		h := broadcast.NewQueue[int]()
		ch, _ := h.Subscribe(nil)
		h.Close()

		select {
		case _, ok := <-ch:
			require.False(t, ok)
		case <-time.After(time.Second):
			t.Fatal("channel not closed")
		}
	})
}
