// Package synchronizer connects the authoritative revision store to remote
// clients.
//
// ARCHITECTURE:
//
// Server owns the authoritative side. It sends each new client a setup
// message with the whole graph, applies client commits in arrival order as
// children of the tip, and pushes every new revision to every client. It
// never writes to a connection: outgoing text goes into a
// syncqueue.Queue.
//
// Relay is the JSON text boundary. Transports hand it raw text with
// Receive; Pump drains the incoming queue into the server and flushes each
// client's outgoing queue into the Transport. Pausing the relay pauses the
// queue, so nothing is lost and order is kept.
//
// WebSocketHub is a Transport over gorilla/websocket. Each connection gets
// a UUIDv7 client id.
//
// Message ordering:
// Every message is stamped with a seq from a logical Clock. A client sees
// pushes in revision-number order because the server pushes revisions
// strictly in order and each client's outgoing queue is FIFO.
package synchronizer
