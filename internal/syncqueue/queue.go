package syncqueue

import (
	"slices"
	"sync"
	"sync/atomic"
)

// Tagged is an incoming message together with the client it came from.
type Tagged struct {
	Client string
	Text   string
}

// Queue holds per-client outgoing queues, the shared incoming queue and the
// pause flag.
//
// Thread-safety: all methods are safe for concurrent use. Enqueue and Flush
// on one client are serialized by that client's lock, so concurrent flushes
// never interleave. Receive calls are serialized by the incoming lock, which
// fixes a total arrival order across clients.
type Queue struct {
	paused atomic.Bool

	mu       sync.Mutex // guards the outgoing map, not its queues
	outgoing map[string]*clientQueue

	inMu     sync.Mutex
	incoming []Tagged

	signal chan struct{} // signals pending work (buffered, size 1)
}

// clientQueue is one client's outgoing FIFO.
type clientQueue struct {
	mu       sync.Mutex
	messages []string
}

// New creates an empty, active queue.
func New() *Queue {
	return &Queue{
		outgoing: make(map[string]*clientQueue),
		incoming: make([]Tagged, 0, 64),
		signal:   make(chan struct{}, 1),
	}
}

// client returns the outgoing queue for id, creating it on first use when
// create is set.
func (q *Queue) client(id string, create bool) *clientQueue {
	q.mu.Lock()
	defer q.mu.Unlock()

	cq, ok := q.outgoing[id]
	if !ok && create {
		cq = &clientQueue{}
		q.outgoing[id] = cq
	}
	return cq
}

// notify wakes a waiter. Multiple signals coalesce.
func (q *Queue) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// EnqueueOutgoing appends text to client's outgoing queue. While paused the
// message just stays buffered.
func (q *Queue) EnqueueOutgoing(client, text string) {
	cq := q.client(client, true)
	cq.mu.Lock()
	cq.messages = append(cq.messages, text)
	cq.mu.Unlock()

	if !q.Paused() {
		q.notify()
	}
}

// FlushOutgoing removes and returns client's queued messages in insertion
// order. Returns nil while paused (leaving the queue intact) and for a
// client with nothing queued.
func (q *Queue) FlushOutgoing(client string) []string {
	if q.Paused() {
		return nil
	}
	cq := q.client(client, false)
	if cq == nil {
		return nil
	}

	cq.mu.Lock()
	defer cq.mu.Unlock()

	if q.Paused() {
		return nil
	}
	out := cq.messages
	cq.messages = nil
	return out
}

// RequeueOutgoing puts undelivered messages back at the front of client's
// queue, ahead of anything enqueued since they were flushed. Messages for a
// client that has been forgotten are dropped.
func (q *Queue) RequeueOutgoing(client string, texts []string) {
	if len(texts) == 0 {
		return
	}
	cq := q.client(client, false)
	if cq == nil {
		return
	}
	cq.mu.Lock()
	cq.messages = append(slices.Clone(texts), cq.messages...)
	cq.mu.Unlock()
}

// ReceiveIncoming appends text, tagged with client, to the shared incoming
// queue.
func (q *Queue) ReceiveIncoming(client, text string) {
	q.inMu.Lock()
	q.incoming = append(q.incoming, Tagged{Client: client, Text: text})
	q.inMu.Unlock()

	if !q.Paused() {
		q.notify()
	}
}

// DrainIncoming removes and returns all incoming messages in arrival order.
// Returns nil while paused, leaving the queue intact.
func (q *Queue) DrainIncoming() []Tagged {
	q.inMu.Lock()
	defer q.inMu.Unlock()

	if q.Paused() || len(q.incoming) == 0 {
		return nil
	}
	out := q.incoming
	q.incoming = make([]Tagged, 0, cap(out))
	return out
}

// RequeueIncoming puts drained but unapplied messages back at the front of
// the incoming queue in their original order, ahead of anything received
// since the drain.
func (q *Queue) RequeueIncoming(msgs []Tagged) {
	if len(msgs) == 0 {
		return
	}
	q.inMu.Lock()
	q.incoming = append(slices.Clone(msgs), q.incoming...)
	q.inMu.Unlock()

	if !q.Paused() {
		q.notify()
	}
}

// Pause stops Flush and Drain from returning messages. Idempotent.
func (q *Queue) Pause() {
	q.paused.Store(true)
}

// Resume makes buffered messages available again. Idempotent.
func (q *Queue) Resume() {
	if q.paused.Swap(false) {
		q.notify()
	}
}

// Paused reports whether the queue is paused.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// Wait returns a channel that signals when messages may be available.
// Use with select for context-aware waiting:
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Drain and flush
//	}
func (q *Queue) Wait() <-chan struct{} {
	return q.signal
}

// Clients returns the ids of clients with messages queued, sorted.
func (q *Queue) Clients() []string {
	q.mu.Lock()
	cqs := make(map[string]*clientQueue, len(q.outgoing))
	for id, cq := range q.outgoing {
		cqs[id] = cq
	}
	q.mu.Unlock()

	ids := make([]string, 0, len(cqs))
	for id, cq := range cqs {
		cq.mu.Lock()
		pending := len(cq.messages) > 0
		cq.mu.Unlock()
		if pending {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// OutgoingLen returns the number of messages queued for client.
func (q *Queue) OutgoingLen(client string) int {
	cq := q.client(client, false)
	if cq == nil {
		return 0
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	return len(cq.messages)
}

// IncomingLen returns the number of incoming messages not yet drained.
func (q *Queue) IncomingLen() int {
	q.inMu.Lock()
	defer q.inMu.Unlock()
	return len(q.incoming)
}

// Forget drops client's outgoing queue, for example after it disconnects.
// Returns the messages that were still queued.
func (q *Queue) Forget(client string) []string {
	q.mu.Lock()
	cq, ok := q.outgoing[client]
	delete(q.outgoing, client)
	q.mu.Unlock()

	if !ok {
		return nil
	}
	cq.mu.Lock()
	defer cq.mu.Unlock()
	out := cq.messages
	cq.messages = nil
	return out
}
