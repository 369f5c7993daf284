// Package syncqueue buffers synchronization messages between the
// authoritative replica and its clients.
//
// Each client has its own outgoing FIFO. Incoming messages from all clients
// share one FIFO so they are applied in arrival order. Pausing the queue
// stops Flush and Drain from handing anything out; nothing is discarded, and
// after Resume the buffered messages come out in their original order.
//
// Message text is opaque here. The queue never parses, validates or
// deduplicates it, and it never talks to a transport: callers flush the
// queue and deliver what they get.
package syncqueue
