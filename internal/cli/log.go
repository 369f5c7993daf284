package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	Database string
	After    uint64
}

// LogEntry is one revision in the log output.
type LogEntry struct {
	Number   ir.RevisionNumber `json:"number"`
	Parent   ir.RevisionNumber `json:"parent"`
	Kind     ir.Kind           `json:"kind"`
	Target   ir.RevisionNumber `json:"target,omitempty"`
	Origin   string            `json:"origin,omitempty"`
	Entities []ir.EntityID     `json:"entities"`
	Hash     string            `json:"hash"`
}

// LogResult holds the complete log output.
type LogResult struct {
	Latest    ir.RevisionNumber `json:"latest"`
	Revisions []LogEntry        `json:"revisions"`
}

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log",
		Short: "List revisions in the graph",
		Long: `List every revision in the revision graph, oldest first.

Each line shows the revision, its parent, why it was committed
(commit, undo, redo, remote) and the entities it changed.

Examples:
  revgraph log --db ./graph.db
  revgraph log --db ./graph.db --after 10
  revgraph log --db ./graph.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd.Context(), opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().Uint64Var(&opts.After, "after", 0, "only list revisions numbered above this one")

	return cmd
}

func runLog(ctx context.Context, opts *LogOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	var result LogResult
	err = st.Snapshot(ctx, func(r store.Reader) error {
		latest, err := r.LatestRevisionNumber(ctx)
		if err != nil {
			return err
		}
		revs, err := r.RevisionsAfter(ctx, ir.RevisionNumber(opts.After))
		if err != nil {
			return err
		}
		result.Latest = latest
		result.Revisions = make([]LogEntry, 0, len(revs))
		for _, rev := range revs {
			result.Revisions = append(result.Revisions, logEntry(rev))
		}
		return nil
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read revisions", err)
	}

	return newPrinter(opts.RootOptions, cmd.OutOrStdout()).result(result, func(w io.Writer) {
		if len(result.Revisions) == 0 {
			fmt.Fprintln(w, "No revisions.")
			return
		}
		for _, e := range result.Revisions {
			fmt.Fprintln(w, formatLogEntry(e, opts.Verbose))
		}
	})
}

func logEntry(rev ir.Revision) LogEntry {
	return LogEntry{
		Number:   rev.Number,
		Parent:   rev.Parent,
		Kind:     rev.Kind,
		Target:   rev.Target,
		Origin:   rev.Origin,
		Entities: rev.ChangedEntities(),
		Hash:     rev.Hash,
	}
}

// formatLogEntry renders "r3 <- r2 undo(r2) [doc]". Verbose adds the hash.
func formatLogEntry(e LogEntry, verbose bool) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%-6s", e.Number)
	if e.Parent.IsNone() {
		b.WriteString(" (root)")
	} else {
		fmt.Fprintf(&b, " <- %s", e.Parent)
	}

	switch {
	case !e.Target.IsNone():
		fmt.Fprintf(&b, " %s(%s)", e.Kind, e.Target)
	case e.Origin != "":
		fmt.Fprintf(&b, " %s from %s", e.Kind, e.Origin)
	default:
		fmt.Fprintf(&b, " %s", e.Kind)
	}

	ids := make([]string, len(e.Entities))
	for i, id := range e.Entities {
		ids[i] = string(id)
	}
	fmt.Fprintf(&b, " [%s]", strings.Join(ids, ", "))

	if verbose {
		fmt.Fprintf(&b, " %s", e.Hash)
	}
	return b.String()
}
