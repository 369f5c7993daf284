package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revgraph/internal/history"
	"github.com/roach88/revgraph/internal/ir"
)

// EditResult is the output of undo and redo.
type EditResult struct {
	Operation string            `json:"operation"`
	Revision  ir.RevisionNumber `json:"revision"`
	Parent    ir.RevisionNumber `json:"parent"`
	Target    ir.RevisionNumber `json:"target"`
	Entities  []ir.EntityID     `json:"entities"`
	CanUndo   bool              `json:"can_undo"`
	CanRedo   bool              `json:"can_redo"`
}

// NewUndoCommand creates the undo command.
func NewUndoCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "undo",
		"Undo the latest edit of a history track",
		`Commit a revision that inverts the most recent edit on the track
that is still in effect. History is never rewritten: the undo is a new
child of the tip.

Exit codes:
  0 - Revision committed
  1 - Nothing to undo
  2 - Command error (invalid paths, unknown branch, etc.)

Examples:
  revgraph undo --db ./graph.db --entity doc-1
  revgraph undo --db ./graph.db --entity doc-1 --branch 4`,
		(*history.HistoryTrack).Undo)
}

// NewRedoCommand creates the redo command.
func NewRedoCommand(rootOpts *RootOptions) *cobra.Command {
	return newEditCommand(rootOpts, "redo",
		"Redo the latest undone edit of a history track",
		`Commit a revision that re-applies the most recently undone edit.
A new edit after an undo discards the redo history.

Exit codes:
  0 - Revision committed
  1 - Nothing to redo
  2 - Command error (invalid paths, unknown branch, etc.)

Examples:
  revgraph redo --db ./graph.db --entity doc-1`,
		(*history.HistoryTrack).Redo)
}

type editFunc func(*history.HistoryTrack, context.Context) (*history.Node, error)

func newEditCommand(rootOpts *RootOptions, op, short, long string, edit editFunc) *cobra.Command {
	opts := &TrackOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           op,
		Short:         short,
		Long:          long,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEdit(cmd.Context(), opts, op, edit, cmd)
		},
	}

	addTrackFlags(cmd, opts)
	cmd.Flags().Uint64Var(&opts.Branch, "branch", 0, "edit the branch containing this revision")

	return cmd
}

func runEdit(ctx context.Context, opts *TrackOptions, op string, edit editFunc, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose, slog.LevelWarn)
	st, track, err := openTrack(ctx, opts, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	out := newPrinter(opts.RootOptions, cmd.OutOrStdout())

	node, err := edit(track, ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("failed to %s", op), err)
	}
	if node == nil {
		msg := fmt.Sprintf("nothing to %s", op)
		if err := out.failure("E_NOTHING_TO_"+strings.ToUpper(op), msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}

	result := EditResult{
		Operation: op,
		Revision:  node.Number(),
		Parent:    node.Revision.Parent,
		Target:    node.Revision.Target,
		Entities:  node.Revision.ChangedEntities(),
	}
	if result.CanUndo, err = track.CanUndo(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read track", err)
	}
	if result.CanRedo, err = track.CanRedo(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to read track", err)
	}

	logger.Debug("edit committed", "op", op, "revision", result.Revision, "target", result.Target)

	return out.result(result, func(w io.Writer) {
		fmt.Fprintf(w, "Committed %s: %s(%s) on %s\n", result.Revision, op, result.Target, result.Parent)
	})
}
