package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revgraph/internal/history"
	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// TrackOptions holds flags shared by the commands that open a history track.
type TrackOptions struct {
	*RootOptions
	Database string
	Entities []string
	Inner    bool
	Branch   uint64 // 0 follows the latest revision
}

// TrackNode is one node in the track output.
type TrackNode struct {
	Number   ir.RevisionNumber   `json:"number"`
	Parent   ir.RevisionNumber   `json:"parent"`
	Child    ir.RevisionNumber   `json:"child"`
	Branches []ir.RevisionNumber `json:"branches"`
	Kind     ir.Kind             `json:"kind"`
	Target   ir.RevisionNumber   `json:"target,omitempty"`
	Entities []ir.EntityID       `json:"entities"`
}

// TrackResult holds the complete track output.
type TrackResult struct {
	Objects      []ir.EntityID     `json:"objects"`
	InnerObjects bool              `json:"inner_objects"`
	Tip          ir.RevisionNumber `json:"tip"`
	Nodes        []TrackNode       `json:"nodes"`
	CanUndo      bool              `json:"can_undo"`
	CanRedo      bool              `json:"can_redo"`
}

// NewTrackCommand creates the track command.
func NewTrackCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "track",
		Short: "Show the history track of a set of entities",
		Long: `Show the revisions of the active path that change the given entities.

The active path runs from the root to the latest revision, or to the
latest descendant of --branch. Branches leaving the path are listed
under the node they leave after.

Examples:
  revgraph track --db ./graph.db --entity doc-1
  revgraph track --db ./graph.db --entity doc-1 --inner
  revgraph track --db ./graph.db --entity doc-1 --branch 4 --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrack(cmd.Context(), opts, cmd)
		},
	}

	addTrackFlags(cmd, opts)
	cmd.Flags().Uint64Var(&opts.Branch, "branch", 0, "follow the branch containing this revision")

	return cmd
}

func addTrackFlags(cmd *cobra.Command, opts *TrackOptions) {
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVarP(&opts.Entities, "entity", "e", nil, "tracked entity id (repeatable, required)")
	_ = cmd.MarkFlagRequired("entity")
	cmd.Flags().BoolVar(&opts.Inner, "inner", false, "include entities composed by the tracked ones")
}

// openTrack opens the database and builds a track over opts.Entities.
// The caller closes the returned store.
func openTrack(ctx context.Context, opts *TrackOptions, logger *slog.Logger) (*store.Store, *history.HistoryTrack, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	ids := make([]ir.EntityID, 0, len(opts.Entities))
	for _, e := range opts.Entities {
		if e == "" {
			st.Close()
			return nil, nil, NewExitError(ExitCommandError, "entity ids must be non-empty")
		}
		ids = append(ids, ir.EntityID(e))
	}

	track := history.New(st, ids,
		history.WithInnerObjects(opts.Inner),
		history.WithLogger(logger))

	if opts.Branch != 0 {
		if err := track.SelectBranch(ctx, ir.RevisionNumber(opts.Branch)); err != nil {
			st.Close()
			if errors.Is(err, store.ErrRevisionNotFound) {
				return nil, nil, WrapExitError(ExitCommandError, "unknown branch revision", err)
			}
			return nil, nil, WrapExitError(ExitCommandError, "failed to select branch", err)
		}
	}
	return st, track, nil
}

func runTrack(ctx context.Context, opts *TrackOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, track, err := openTrack(ctx, opts, newLogger(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn))
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := describeTrack(ctx, track)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read track", err)
	}

	return newPrinter(opts.RootOptions, cmd.OutOrStdout()).result(result, func(w io.Writer) {
		writeTrackText(w, result)
	})
}

// describeTrack captures the track's nodes and editing state.
func describeTrack(ctx context.Context, track *history.HistoryTrack) (TrackResult, error) {
	result := TrackResult{
		Objects:      track.Objects(),
		InnerObjects: track.IncludesInnerObjects(),
		Nodes:        []TrackNode{},
	}

	var err error
	if result.Tip, err = track.Tip(ctx); err != nil {
		return result, err
	}
	nodes, err := track.Nodes(ctx)
	if err != nil {
		return result, err
	}
	for _, n := range nodes {
		branches := n.SecondaryBranchNumbers()
		if branches == nil {
			branches = []ir.RevisionNumber{}
		}
		result.Nodes = append(result.Nodes, TrackNode{
			Number:   n.Number(),
			Parent:   n.ParentNumber(),
			Child:    n.ChildNumber(),
			Branches: branches,
			Kind:     n.Revision.Kind,
			Target:   n.Revision.Target,
			Entities: n.Revision.ChangedEntities(),
		})
	}
	if result.CanUndo, err = track.CanUndo(ctx); err != nil {
		return result, err
	}
	if result.CanRedo, err = track.CanRedo(ctx); err != nil {
		return result, err
	}
	return result, nil
}

func writeTrackText(w io.Writer, result TrackResult) {
	objects := make([]string, len(result.Objects))
	for i, id := range result.Objects {
		objects[i] = string(id)
	}
	fmt.Fprintf(w, "Track: %s", strings.Join(objects, ", "))
	if result.InnerObjects {
		fmt.Fprint(w, " (with inner objects)")
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Tip: %s\n", result.Tip)
	fmt.Fprintln(w)

	if len(result.Nodes) == 0 {
		fmt.Fprintln(w, "  (no nodes)")
	}
	for _, n := range result.Nodes {
		label := string(n.Kind)
		if !n.Target.IsNone() {
			label = fmt.Sprintf("%s(%s)", n.Kind, n.Target)
		}
		fmt.Fprintf(w, "  %-6s %s", n.Number, label)
		for _, b := range n.Branches {
			fmt.Fprintf(w, "  +branch %s", b)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Can undo: %t, can redo: %t\n", result.CanUndo, result.CanRedo)
}
