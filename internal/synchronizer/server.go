package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// RevisionStore is the store surface the server needs.
// *store.Store satisfies it.
type RevisionStore interface {
	Append(ctx context.Context, rev ir.Revision) (ir.Revision, error)
	LatestRevisionNumber(ctx context.Context) (ir.RevisionNumber, error)
	RevisionByNumber(ctx context.Context, n ir.RevisionNumber) (ir.Revision, error)
	RevisionsAfter(ctx context.Context, n ir.RevisionNumber) ([]ir.Revision, error)
}

// Outbox receives encoded messages addressed to one client.
// *syncqueue.Queue satisfies it.
type Outbox interface {
	EnqueueOutgoing(client, text string)
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithServerLogger sets the server's logger.
func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server is the authoritative side of synchronization.
//
// Thread-safety: all methods are safe for concurrent use; they are
// serialized by one mutex so pushes reach every client in revision order.
type Server struct {
	store  RevisionStore
	out    Outbox
	clock  *Clock
	logger *slog.Logger

	mu      sync.Mutex
	clients []string          // registration order
	pushed  ir.RevisionNumber // latest revision pushed to clients
	primed  bool
}

// NewServer creates a server over s writing outgoing messages to out.
func NewServer(s RevisionStore, out Outbox, opts ...ServerOption) *Server {
	srv := &Server{
		store:  s,
		out:    out,
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// Register adds client and queues a setup message carrying every revision
// already pushed. Revisions committed but not yet pushed are pushed to the
// existing clients first, so the new client sees each revision exactly once.
// Registering a known client again just resends the setup message.
func (s *Server) Register(ctx context.Context, client string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.sync(ctx); err != nil {
		return fmt.Errorf("register %s: %w", client, err)
	}

	revs, err := s.store.RevisionsAfter(ctx, ir.None)
	if err != nil {
		return fmt.Errorf("register %s: %w", client, err)
	}
	revs = slices.DeleteFunc(revs, func(r ir.Revision) bool { return r.Number > s.pushed })

	if err := s.send(client, ir.Message{Type: ir.MessageSetup, Revisions: revs}); err != nil {
		return fmt.Errorf("register %s: %w", client, err)
	}
	if !slices.Contains(s.clients, client) {
		s.clients = append(s.clients, client)
	}

	s.logger.Info("client registered",
		"client", client,
		"revisions", len(revs))
	return nil
}

// Unregister removes client. Unknown clients are ignored.
func (s *Server) Unregister(client string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clients = slices.DeleteFunc(s.clients, func(c string) bool { return c == client })
	s.logger.Info("client unregistered", "client", client)
}

// Clients returns the registered client ids in registration order.
func (s *Server) Clients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.clients)
}

// Commit appends a local revision and pushes it to every client.
func (s *Server) Commit(ctx context.Context, rev ir.Revision) (ir.Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.store.Append(ctx, rev)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("commit: %w", err)
	}
	if err := s.sync(ctx); err != nil {
		return ir.Revision{}, fmt.Errorf("commit: %w", err)
	}
	return stored, nil
}

// Sync pushes revisions appended to the store by other writers since the
// last push.
func (s *Server) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sync(ctx)
}

// HandleMessage applies one message received from client.
//
// A commit message becomes a remote revision whose parent is the current
// tip; it is pushed to every client, the sender included, which serves as
// its acknowledgement. A rejected message is answered with an error message
// and reported as a *ProtocolError.
func (s *Server) HandleMessage(ctx context.Context, client, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg, err := ir.DecodeMessage(text)
	if err != nil {
		return s.reject(client, &ProtocolError{Code: ErrCodeMalformedMessage, Message: err.Error(), Client: client})
	}
	if msg.Type != ir.MessageCommit {
		return s.reject(client, &ProtocolError{
			Code:    ErrCodeUnknownType,
			Message: fmt.Sprintf("clients may not send %q messages", msg.Type),
			Client:  client,
		})
	}

	if !msg.Base.IsNone() {
		if _, err := s.store.RevisionByNumber(ctx, msg.Base); err != nil {
			if errors.Is(err, store.ErrRevisionNotFound) {
				return s.reject(client, &ProtocolError{
					Code:    ErrCodeUnknownBase,
					Message: fmt.Sprintf("base revision %s does not exist", msg.Base),
					Client:  client,
				})
			}
			return fmt.Errorf("handle message: %w", err)
		}
	}

	tip, err := s.store.LatestRevisionNumber(ctx)
	if err != nil {
		return fmt.Errorf("handle message: %w", err)
	}
	stored, err := s.store.Append(ctx, ir.Revision{
		Parent:  tip,
		Kind:    ir.KindRemote,
		Origin:  client,
		Changes: msg.Changes,
	})
	if err != nil {
		return fmt.Errorf("handle message: %w", err)
	}

	s.logger.Debug("remote commit applied",
		"client", client,
		"seq", msg.Seq,
		"base", msg.Base,
		"revision", stored.Number)

	if err := s.sync(ctx); err != nil {
		return fmt.Errorf("handle message: %w", err)
	}
	return nil
}

// sync pushes every revision after the last pushed one. Caller holds mu.
func (s *Server) sync(ctx context.Context) error {
	if !s.primed {
		// Revisions that predate the server are delivered by setup messages.
		latest, err := s.store.LatestRevisionNumber(ctx)
		if err != nil {
			return err
		}
		s.pushed = latest
		s.primed = true
		return nil
	}

	revs, err := s.store.RevisionsAfter(ctx, s.pushed)
	if err != nil {
		return err
	}
	for _, rev := range revs {
		for _, client := range s.clients {
			if err := s.send(client, ir.Message{Type: ir.MessagePush, Revisions: []ir.Revision{rev}}); err != nil {
				return err
			}
		}
		s.pushed = rev.Number
	}
	if len(revs) > 0 {
		s.logger.Debug("revisions pushed",
			"count", len(revs),
			"latest", s.pushed,
			"clients", len(s.clients))
	}
	return nil
}

// reject answers client with an error message and returns perr.
func (s *Server) reject(client string, perr *ProtocolError) error {
	s.logger.Warn("client message rejected",
		"client", client,
		"code", perr.Code,
		"error", perr.Message)
	if err := s.send(client, ir.Message{Type: ir.MessageError, Error: perr.Error()}); err != nil {
		return err
	}
	return perr
}

// send stamps msg with the next seq and queues it for client.
func (s *Server) send(client string, msg ir.Message) error {
	msg.Seq = s.clock.Next()
	text, err := ir.EncodeMessage(msg)
	if err != nil {
		return err
	}
	s.out.EnqueueOutgoing(client, text)
	return nil
}
