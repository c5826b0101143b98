package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4)
	q.Push("a")
	q.Push("b")
	q.Push("c")

	line, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "a", line)

	line, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "b", line)
}

func TestOverflowDropsOldest(t *testing.T) {
	q := New(2)
	q.Push("a")
	q.Push("b")
	q.Push("c") // drops "a"

	require.Equal(t, uint64(1), q.TakeDropped())
	require.Equal(t, uint64(0), q.TakeDropped())

	line, ok := q.Pop()
	require.True(t, ok)
	require.Equal(t, "b", line)
	line, ok = q.Pop()
	require.True(t, ok)
	require.Equal(t, "c", line)
}

func TestCloseWakesPop(t *testing.T) {
	q := New(4)
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Pop()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake on Close")
	}
}

func TestPushAfterCloseDropsSilently(t *testing.T) {
	q := New(4)
	q.Close()
	q.Push("x")
	require.Equal(t, 0, q.Len())
}

// TestLenNeverExceedsCapacity exercises the invariant that FrameQueue.len
// never exceeds capacity at any observation point.
func TestLenNeverExceedsCapacity(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.IntRange(1, 20).Draw(t, "capacity")
		pushes := rapid.IntRange(0, 200).Draw(t, "pushes")

		q := New(capacity)
		for i := 0; i < pushes; i++ {
			q.Push("line")
			if q.Len() > capacity {
				t.Fatalf("len %d exceeds capacity %d", q.Len(), capacity)
			}
		}
	})
}

// TestDropCounterMatchesOverflow checks that every drop increments the
// counter by exactly one, and the counter resets to 0 on TakeDropped.
func TestDropCounterMatchesOverflow(t *testing.T) {
	q := New(3)
	for i := 0; i < 10; i++ {
		q.Push("line")
	}
	// 10 pushed, capacity 3 => 7 drops.
	require.Equal(t, uint64(7), q.TakeDropped())
	require.Equal(t, uint64(0), q.TakeDropped())
}
