package synchronizer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/revgraph/internal/syncqueue"
)

// Transport delivers encoded messages to connected clients.
// Implemented by WebSocketHub.
type Transport interface {
	Send(ctx context.Context, client, text string) error
}

// RelayOption configures a Relay.
type RelayOption func(*Relay)

// WithRelayLogger sets the relay's logger.
func WithRelayLogger(logger *slog.Logger) RelayOption {
	return func(r *Relay) {
		r.logger = logger
	}
}

// Relay moves text between a transport, the queue and the server.
//
// Thread-safety: Receive, Connect and Disconnect are safe from any
// goroutine (typically one per connection). Pump calls are serialized.
type Relay struct {
	server    *Server
	queue     *syncqueue.Queue
	transport Transport
	logger    *slog.Logger

	pumpMu sync.Mutex
}

// NewRelay creates a relay. The server must write its outgoing messages to q.
func NewRelay(server *Server, q *syncqueue.Queue, transport Transport, opts ...RelayOption) *Relay {
	r := &Relay{
		server:    server,
		queue:     q,
		transport: transport,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect registers a newly connected client with the server.
func (r *Relay) Connect(ctx context.Context, client string) error {
	return r.server.Register(ctx, client)
}

// Receive queues text received from client.
func (r *Relay) Receive(client, text string) {
	r.queue.ReceiveIncoming(client, text)
}

// Disconnect unregisters client and drops its undelivered messages.
func (r *Relay) Disconnect(client string) {
	r.server.Unregister(client)
	if dropped := r.queue.Forget(client); len(dropped) > 0 {
		r.logger.Debug("dropped undelivered messages",
			"client", client,
			"count", len(dropped))
	}
}

// Paused reports whether the relay is paused.
func (r *Relay) Paused() bool {
	return r.queue.Paused()
}

// SetPaused pauses or resumes the relay. Resuming pumps immediately so
// buffered messages go out in their original order.
func (r *Relay) SetPaused(ctx context.Context, paused bool) error {
	if paused {
		r.queue.Pause()
		r.logger.Info("relay paused")
		return nil
	}
	r.queue.Resume()
	r.logger.Info("relay resumed")
	return r.Pump(ctx)
}

// Pump applies all incoming messages, pushes revisions other writers
// committed, then delivers every client's outgoing messages.
//
// Rejected client messages are logged and skipped. When a send fails, the
// client's remaining messages go back to the front of its queue for the
// next pump. Store errors are returned; the message that hit one and those
// after it go back to the front of the incoming queue.
func (r *Relay) Pump(ctx context.Context) error {
	r.pumpMu.Lock()
	defer r.pumpMu.Unlock()

	msgs := r.queue.DrainIncoming()
	for i, m := range msgs {
		if err := r.server.HandleMessage(ctx, m.Client, m.Text); err != nil {
			if IsProtocolError(err) {
				continue
			}
			r.queue.RequeueIncoming(msgs[i:])
			return err
		}
	}

	if !r.queue.Paused() {
		if err := r.server.Sync(ctx); err != nil {
			return err
		}
	}

	for _, client := range r.queue.Clients() {
		texts := r.queue.FlushOutgoing(client)
		for i, text := range texts {
			if err := r.transport.Send(ctx, client, text); err != nil {
				r.logger.Warn("send failed, requeueing",
					"client", client,
					"pending", len(texts)-i,
					"error", err)
				r.queue.RequeueOutgoing(client, texts[i:])
				break
			}
		}
	}
	return nil
}

// Run pumps whenever the queue signals work, and every interval to pick up
// revisions committed by other writers. Returns when ctx is cancelled.
func (r *Relay) Run(ctx context.Context, interval time.Duration) error {
	slog.Info("relay starting", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("relay stopping: context cancelled")
			return ctx.Err()
		case <-r.queue.Wait():
		case <-ticker.C:
		}
		if err := r.Pump(ctx); err != nil {
			r.logger.Error("pump failed", "error", err)
		}
	}
}
