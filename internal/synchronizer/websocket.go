package synchronizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClientGone is returned by Send for a client with no open connection.
var ErrClientGone = errors.New("client not connected")

// writeWait bounds a single write when the context has no deadline.
const writeWait = 10 * time.Second

// Inbox receives connection events and text from a transport.
// Implemented by Relay.
type Inbox interface {
	Connect(ctx context.Context, client string) error
	Receive(client, text string)
	Disconnect(client string)
}

// HubOption configures a WebSocketHub.
type HubOption func(*WebSocketHub)

// WithIDGenerator sets the client id generator.
func WithIDGenerator(ids IDGenerator) HubOption {
	return func(h *WebSocketHub) {
		h.ids = ids
	}
}

// WithHubLogger sets the hub's logger.
func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *WebSocketHub) {
		h.logger = logger
	}
}

// WebSocketHub is a Transport over websocket connections.
type WebSocketHub struct {
	upgrader websocket.Upgrader
	ids      IDGenerator
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*hubConn
}

// hubConn serializes writes; gorilla connections allow one concurrent writer.
type hubConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

var _ Transport = (*WebSocketHub)(nil)

// NewWebSocketHub creates a hub with no connections.
func NewWebSocketHub(opts ...HubOption) *WebSocketHub {
	h := &WebSocketHub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ids:    UUIDv7Generator{},
		logger: slog.Default(),
		conns:  make(map[string]*hubConn),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handler returns an http.Handler that upgrades requests to websocket
// connections and feeds them into inbox.
func (h *WebSocketHub) Handler(inbox Inbox) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.serve(w, r, inbox)
	})
}

func (h *WebSocketHub) serve(w http.ResponseWriter, r *http.Request, inbox Inbox) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade", "error", err)
		return
	}
	defer conn.Close()

	client := h.ids.Generate()
	h.mu.Lock()
	h.conns[client] = &hubConn{conn: conn}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, client)
		h.mu.Unlock()
		inbox.Disconnect(client)
	}()

	if err := inbox.Connect(r.Context(), client); err != nil {
		h.logger.Error("failed to register client", "client", client, "error", err)
		return
	}
	h.logger.Debug("client connected", "client", client, "remote", r.RemoteAddr)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Warn("read failed", "client", client, "error", err)
			}
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		inbox.Receive(client, string(data))
	}
}

// Send writes text to client's connection as one text frame.
func (h *WebSocketHub) Send(ctx context.Context, client, text string) error {
	h.mu.Lock()
	hc, ok := h.conns[client]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("send to %s: %w", client, ErrClientGone)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}

	hc.writeMu.Lock()
	defer hc.writeMu.Unlock()

	if err := hc.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("send to %s: %w", client, err)
	}
	if err := hc.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("send to %s: %w", client, err)
	}
	return nil
}

// Connected returns the number of open connections.
func (h *WebSocketHub) Connected() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close closes every open connection.
func (h *WebSocketHub) Close() error {
	h.mu.Lock()
	conns := make([]*hubConn, 0, len(h.conns))
	for _, hc := range h.conns {
		conns = append(conns, hc)
	}
	h.mu.Unlock()

	var errs []error
	for _, hc := range conns {
		hc.writeMu.Lock()
		_ = hc.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		hc.writeMu.Unlock()
		if err := hc.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
