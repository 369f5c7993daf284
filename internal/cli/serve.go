package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/revgraph/internal/config"
	"github.com/roach88/revgraph/internal/history"
	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
	"github.com/roach88/revgraph/internal/synchronizer"
	"github.com/roach88/revgraph/internal/syncqueue"
)

// shutdownTimeout bounds how long in-flight HTTP requests get on shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	Database   string
	Listen     string
	Path       string
	Tracked    []string
	Inner      bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the revision graph to synchronization clients",
		Long: `Start the synchronizer: clients connect over websockets, receive the
graph on connect, send commits, and receive every new revision in order.

With tracked entities configured, the server also exposes the history
track over HTTP:
  GET  /history        nodes and undo/redo availability
  POST /history/undo   commit an undo and push it to clients
  POST /history/redo   commit a redo and push it to clients
  POST /sync/pause     buffer messages in both directions
  POST /sync/resume    deliver everything buffered, in order

Flags override values from the config file.

Examples:
  revgraph serve --config ./revgraph.yaml
  revgraph serve --db ./graph.db --listen :8787 --tracked doc-1`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "host:port to listen on")
	cmd.Flags().StringVar(&opts.Path, "path", "", "websocket endpoint path")
	cmd.Flags().StringSliceVar(&opts.Tracked, "tracked", nil, "entity ids the server-side history track follows")
	cmd.Flags().BoolVar(&opts.Inner, "inner", false, "include entities composed by the tracked ones")

	return cmd
}

// loadServeConfig reads the config file (or defaults) and applies flag
// overrides before validating.
func loadServeConfig(opts *ServeOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Read(opts.ConfigPath); err != nil {
			return nil, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("db") {
		cfg.Database = opts.Database
	}
	if flags.Changed("listen") {
		cfg.Listen = opts.Listen
	}
	if flags.Changed("path") {
		cfg.Path = opts.Path
	}
	if flags.Changed("tracked") {
		cfg.Tracked = opts.Tracked
	}
	if flags.Changed("inner") {
		cfg.InnerObjects = opts.Inner
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadServeConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, cfg.Level())
	slog.SetDefault(logger)

	slog.Info("opening database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	q := syncqueue.New()
	srv := synchronizer.NewServer(st, q, synchronizer.WithServerLogger(logger))
	hub := synchronizer.NewWebSocketHub(synchronizer.WithHubLogger(logger))
	relay := synchronizer.NewRelay(srv, q, hub, synchronizer.WithRelayLogger(logger))

	var track *history.HistoryTrack
	if len(cfg.Tracked) > 0 {
		tracked := make([]ir.EntityID, len(cfg.Tracked))
		for i, id := range cfg.Tracked {
			tracked[i] = ir.EntityID(id)
		}
		track = history.New(st, tracked,
			history.WithInnerObjects(cfg.InnerObjects),
			history.WithLogger(logger))
	}

	handler := newServeMux(cfg.Path, hub, relay, track, logger)

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	httpSrv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(ctx, cfg.FlushInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpSrv.Serve(ln)
	}()

	slog.Info("synchronizer started", "addr", ln.Addr().String(), "path", cfg.Path, "tracked", cfg.Tracked)
	fmt.Fprintf(cmd.OutOrStdout(), "Serving ws://%s%s\n", ln.Addr(), cfg.Path)
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = WrapExitError(ExitFailure, "server error", err)
		}
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	if err := hub.Close(); err != nil {
		slog.Warn("closing connections", "error", err)
	}
	<-relayDone

	slog.Info("synchronizer stopped gracefully")
	return runErr
}

// serveHandlers holds what the HTTP control surface drives.
type serveHandlers struct {
	relay  *synchronizer.Relay
	track  *history.HistoryTrack
	logger *slog.Logger
}

// newServeMux routes the websocket endpoint and, when track is non-nil,
// the history endpoints. Sync pause/resume is always available.
func newServeMux(path string, hub *synchronizer.WebSocketHub, relay *synchronizer.Relay, track *history.HistoryTrack, logger *slog.Logger) *http.ServeMux {
	h := &serveHandlers{relay: relay, track: track, logger: logger}

	mux := http.NewServeMux()
	mux.Handle(path, hub.Handler(relay))
	mux.HandleFunc("POST /sync/pause", h.setPaused(true))
	mux.HandleFunc("POST /sync/resume", h.setPaused(false))
	if track != nil {
		mux.HandleFunc("GET /history", h.history)
		mux.HandleFunc("POST /history/undo", h.edit("undo", (*history.HistoryTrack).Undo))
		mux.HandleFunc("POST /history/redo", h.edit("redo", (*history.HistoryTrack).Redo))
	}
	return mux
}

func (h *serveHandlers) history(w http.ResponseWriter, r *http.Request) {
	result, err := describeTrack(r.Context(), h.track)
	if err != nil {
		h.fail(w, http.StatusInternalServerError, "E_TRACK", err)
		return
	}
	h.respond(w, http.StatusOK, CLIResponse{Status: "ok", Data: result})
}

func (h *serveHandlers) edit(op string, edit editFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		node, err := edit(h.track, ctx)
		if err != nil {
			h.fail(w, http.StatusInternalServerError, "E_TRACK", err)
			return
		}
		if node == nil {
			h.respond(w, http.StatusConflict, CLIResponse{
				Status: "error",
				Error:  &CLIError{Code: "E_NOTHING_TO_" + strings.ToUpper(op), Message: "nothing to " + op},
			})
			return
		}

		// Push the new revision now rather than on the next tick.
		if err := h.relay.Pump(ctx); err != nil {
			h.logger.Error("pump after edit failed", "op", op, "error", err)
		}

		result := EditResult{
			Operation: op,
			Revision:  node.Number(),
			Parent:    node.Revision.Parent,
			Target:    node.Revision.Target,
			Entities:  node.Revision.ChangedEntities(),
		}
		if result.CanUndo, err = h.track.CanUndo(ctx); err != nil {
			h.fail(w, http.StatusInternalServerError, "E_TRACK", err)
			return
		}
		if result.CanRedo, err = h.track.CanRedo(ctx); err != nil {
			h.fail(w, http.StatusInternalServerError, "E_TRACK", err)
			return
		}
		h.respond(w, http.StatusOK, CLIResponse{Status: "ok", Data: result})
	}
}

func (h *serveHandlers) setPaused(paused bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h.relay.SetPaused(r.Context(), paused); err != nil {
			h.fail(w, http.StatusInternalServerError, "E_SYNC", err)
			return
		}
		h.respond(w, http.StatusOK, CLIResponse{
			Status: "ok",
			Data:   map[string]bool{"paused": h.relay.Paused()},
		})
	}
}

func (h *serveHandlers) fail(w http.ResponseWriter, status int, code string, err error) {
	h.logger.Error("request failed", "code", code, "error", err)
	h.respond(w, status, CLIResponse{
		Status: "error",
		Error:  &CLIError{Code: code, Message: err.Error()},
	})
}

func (h *serveHandlers) respond(w http.ResponseWriter, status int, resp CLIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("write response", "error", err)
	}
}
