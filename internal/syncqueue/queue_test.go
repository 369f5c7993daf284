package syncqueue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlushOutgoing_FIFO(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c", "m1")
	q.EnqueueOutgoing("c", "m2")

	assert.Equal(t, []string{"m1", "m2"}, q.FlushOutgoing("c"))
	assert.Empty(t, q.FlushOutgoing("c"), "flush drains the queue")
}

func TestFlushOutgoing_UnknownClient(t *testing.T) {
	q := New()
	q.EnqueueOutgoing("c1", "m1")

	assert.Empty(t, q.FlushOutgoing("nobody"))
	assert.Equal(t, 0, q.OutgoingLen("nobody"))
	assert.Equal(t, 1, q.OutgoingLen("c1"), "other clients are untouched")
}

func TestFlushOutgoing_PerClientIsolation(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c1", "a")
	q.EnqueueOutgoing("c2", "x")
	q.EnqueueOutgoing("c1", "b")

	assert.Equal(t, []string{"a", "b"}, q.FlushOutgoing("c1"))
	assert.Equal(t, []string{"x"}, q.FlushOutgoing("c2"))
}

func TestPaused_BuffersUntilResume(t *testing.T) {
	q := New()

	q.Pause()
	q.EnqueueOutgoing("c", "m1")
	q.EnqueueOutgoing("c", "m2")
	q.ReceiveIncoming("c", "in1")

	assert.Empty(t, q.FlushOutgoing("c"), "paused flush returns nothing")
	assert.Empty(t, q.DrainIncoming(), "paused drain returns nothing")
	assert.Equal(t, 2, q.OutgoingLen("c"), "paused flush leaves the queue intact")
	assert.Equal(t, 1, q.IncomingLen())

	q.EnqueueOutgoing("c", "m3")
	q.Resume()

	assert.Equal(t, []string{"m1", "m2", "m3"}, q.FlushOutgoing("c"))
	assert.Empty(t, q.FlushOutgoing("c"))
	assert.Equal(t, []Tagged{{Client: "c", Text: "in1"}}, q.DrainIncoming())
	assert.Empty(t, q.DrainIncoming())
}

func TestDrainIncoming_ArrivalOrderAcrossClients(t *testing.T) {
	q := New()

	q.Pause()
	q.ReceiveIncoming("c1", "m1")
	q.ReceiveIncoming("c2", "m2")
	q.Resume()

	assert.Equal(t, []Tagged{
		{Client: "c1", Text: "m1"},
		{Client: "c2", Text: "m2"},
	}, q.DrainIncoming())
}

func TestPauseResume_Idempotent(t *testing.T) {
	tests := []struct {
		name string
		ops  func(q *Queue)
	}{
		{"single", func(q *Queue) { q.Pause(); q.Resume() }},
		{"double pause", func(q *Queue) { q.Pause(); q.Pause(); q.Resume() }},
		{"double resume", func(q *Queue) { q.Pause(); q.Resume(); q.Resume() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := New()
			q.EnqueueOutgoing("c", "m1")
			tt.ops(q)
			assert.False(t, q.Paused())
			assert.Equal(t, []string{"m1"}, q.FlushOutgoing("c"))
		})
	}

	q := New()
	q.Pause()
	q.Pause()
	assert.True(t, q.Paused())
}

func TestRequeueOutgoing_GoesToFront(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c", "m1")
	q.EnqueueOutgoing("c", "m2")
	flushed := q.FlushOutgoing("c")
	q.EnqueueOutgoing("c", "m3")

	q.RequeueOutgoing("c", flushed[1:])

	assert.Equal(t, []string{"m2", "m3"}, q.FlushOutgoing("c"))
}

func TestRequeueOutgoing_AfterForgetIsDropped(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c", "m1")
	flushed := q.FlushOutgoing("c")
	q.Forget("c")

	q.RequeueOutgoing("c", flushed)

	assert.Empty(t, q.Clients())
	assert.Zero(t, q.OutgoingLen("c"))
	assert.Nil(t, q.Forget("c"), "a forgotten client stays forgotten")
}

func TestRequeueIncoming_GoesToFront(t *testing.T) {
	q := New()

	q.ReceiveIncoming("c1", "a")
	q.ReceiveIncoming("c2", "b")
	q.ReceiveIncoming("c1", "c")
	drained := q.DrainIncoming()
	require.Len(t, drained, 3)
	q.ReceiveIncoming("c2", "d")

	q.RequeueIncoming(drained[1:])

	assert.Equal(t, []Tagged{
		{Client: "c2", Text: "b"},
		{Client: "c1", Text: "c"},
		{Client: "c2", Text: "d"},
	}, q.DrainIncoming())
}

func TestRequeueIncoming_WhilePausedStaysBuffered(t *testing.T) {
	q := New()

	q.ReceiveIncoming("c1", "a")
	drained := q.DrainIncoming()
	q.Pause()
	q.RequeueIncoming(drained)

	assert.Nil(t, q.DrainIncoming())
	assert.Equal(t, 1, q.IncomingLen())

	q.Resume()
	assert.Equal(t, drained, q.DrainIncoming())
}

func TestClients_OnlyPending(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("b", "1")
	q.EnqueueOutgoing("a", "1")
	q.EnqueueOutgoing("c", "1")
	q.FlushOutgoing("c")

	assert.Equal(t, []string{"a", "b"}, q.Clients())
}

func TestForget(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c", "m1")
	assert.Equal(t, []string{"m1"}, q.Forget("c"))
	assert.Empty(t, q.Clients())
	assert.Nil(t, q.Forget("c"))
}

func TestWait_SignalsOnEnqueueAndResume(t *testing.T) {
	q := New()

	q.EnqueueOutgoing("c", "m1")
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected signal after enqueue")
	}

	q.Pause()
	q.ReceiveIncoming("c", "in")
	select {
	case <-q.Wait():
		t.Fatal("no signal while paused")
	default:
	}

	q.Resume()
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("expected signal after resume")
	}
}

func TestConcurrentEnqueue_PreservesPerClientOrder(t *testing.T) {
	q := New()
	const clients, perClient = 8, 200

	var wg sync.WaitGroup
	for c := 0; c < clients; c++ {
		wg.Add(1)
		go func(client string) {
			defer wg.Done()
			for i := 0; i < perClient; i++ {
				q.EnqueueOutgoing(client, fmt.Sprintf("%d", i))
				q.ReceiveIncoming(client, fmt.Sprintf("%d", i))
			}
		}(fmt.Sprintf("c%d", c))
	}

	// Flush concurrently with the writers; every flush must be an ordered run.
	flushed := make(map[string][]string)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	collect := func() {
		for c := 0; c < clients; c++ {
			client := fmt.Sprintf("c%d", c)
			flushed[client] = append(flushed[client], q.FlushOutgoing(client)...)
		}
	}
loop:
	for {
		select {
		case <-done:
			break loop
		default:
			collect()
		}
	}
	collect()

	for c := 0; c < clients; c++ {
		client := fmt.Sprintf("c%d", c)
		require.Len(t, flushed[client], perClient)
		for i, text := range flushed[client] {
			assert.Equal(t, fmt.Sprintf("%d", i), text)
		}
	}

	// Incoming interleaves clients but keeps each client's order.
	next := make(map[string]int)
	for _, m := range q.DrainIncoming() {
		assert.Equal(t, fmt.Sprintf("%d", next[m.Client]), m.Text)
		next[m.Client]++
	}
	for c := 0; c < clients; c++ {
		assert.Equal(t, perClient, next[fmt.Sprintf("c%d", c)])
	}
}
