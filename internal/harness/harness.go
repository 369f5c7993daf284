package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/roach88/revgraph/internal/history"
	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// Harness is the scenario execution engine.
// It owns a fresh store and one history track over it.
type Harness struct {
	store  *store.Store
	track  *history.HistoryTrack
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Revision numbers are assigned by the store, so runs are reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database and a track over the tracked set
// 2. Execute steps in order
// 3. Capture the final snapshot
// 4. Evaluate assertions against the snapshot
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests

	tracked := make([]ir.EntityID, len(scenario.Tracked))
	for i, id := range scenario.Tracked {
		tracked[i] = ir.EntityID(id)
	}

	h := &Harness{
		store: st,
		track: history.New(st, tracked,
			history.WithInnerObjects(scenario.InnerObjects),
			history.WithLogger(logger)),
		logger: logger,
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		rev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Op, err)
		}
		result.AddStep(step.Op, rev)

		h.logger.Info("step completed",
			"step", i,
			"op", step.Op,
			"revision", rev,
		)
	}

	if err := h.capture(ctx, &result.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}

	return result, nil
}

// execute runs one step and returns the revision it produced or moved to.
func (h *Harness) execute(ctx context.Context, step Step) (ir.RevisionNumber, error) {
	switch step.Op {
	case OpCommit:
		return h.commit(ctx, step)
	case OpUndo:
		return nodeNumber(h.track.Undo(ctx))
	case OpRedo:
		return nodeNumber(h.track.Redo(ctx))
	case OpSelect:
		if err := h.track.SelectBranch(ctx, ir.RevisionNumber(step.Revision)); err != nil {
			return ir.None, err
		}
		return h.track.Tip(ctx)
	case OpSelectLatest:
		h.track.SelectLatest()
		return h.track.Tip(ctx)
	case OpBack:
		return nodeNumber(h.track.Back(ctx))
	case OpForward:
		return nodeNumber(h.track.Forward(ctx))
	default:
		return ir.None, fmt.Errorf("unknown op %q", step.Op)
	}
}

func nodeNumber(n *history.Node, err error) (ir.RevisionNumber, error) {
	if err != nil || n == nil {
		return ir.None, err
	}
	return n.Number(), nil
}

// commit appends the step's changes. Before snapshots and former composers
// are read from the parent; repeated entities chain from the previous change.
func (h *Harness) commit(ctx context.Context, step Step) (ir.RevisionNumber, error) {
	parent, err := h.store.LatestRevisionNumber(ctx)
	if err != nil {
		return ir.None, err
	}
	if step.Parent != nil {
		parent = ir.RevisionNumber(*step.Parent)
	}

	rev := ir.Revision{Parent: parent, Kind: ir.KindCommit}
	if step.Origin != "" {
		rev.Kind = ir.KindRemote
		rev.Origin = step.Origin
	}

	seen := make(map[ir.EntityID]ir.EntityChange, len(step.Changes))
	for j, cs := range step.Changes {
		c := ir.EntityChange{Entity: ir.EntityID(cs.Entity)}
		if prev, ok := seen[c.Entity]; ok {
			c.Before = prev.After.Clone()
			c.FormerComposer = prev.Composer
		} else if !parent.IsNone() {
			if c.Before, _, err = h.store.EntityStateAt(ctx, c.Entity, parent); err != nil {
				return ir.None, err
			}
			if c.FormerComposer, err = h.store.ComposerAt(ctx, c.Entity, parent); err != nil {
				return ir.None, err
			}
		}

		c.Composer = c.FormerComposer
		if cs.Composer != nil {
			c.Composer = ir.EntityID(*cs.Composer)
		}
		if !cs.Remove {
			if c.After, err = ir.ObjectFromMap(cs.After); err != nil {
				return ir.None, fmt.Errorf("changes[%d].after: %w", j, err)
			}
		}

		rev.Changes = append(rev.Changes, c)
		seen[c.Entity] = c
	}

	stored, err := h.store.Append(ctx, rev)
	if err != nil {
		return ir.None, err
	}
	return stored.Number, nil
}

// capture records the track and graph as they stand after the last step.
func (h *Harness) capture(ctx context.Context, snap *Snapshot) error {
	nodes, err := h.track.Nodes(ctx)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		branches := n.SecondaryBranchNumbers()
		if branches == nil {
			branches = []ir.RevisionNumber{}
		}
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			Number:   n.Number(),
			Parent:   n.ParentNumber(),
			Child:    n.ChildNumber(),
			Branches: branches,
		})
	}

	if snap.Current, err = nodeNumber(h.track.Current(ctx)); err != nil {
		return err
	}
	if snap.Tip, err = h.track.Tip(ctx); err != nil {
		return err
	}
	if snap.CanUndo, err = h.track.CanUndo(ctx); err != nil {
		return err
	}
	if snap.CanRedo, err = h.track.CanRedo(ctx); err != nil {
		return err
	}

	revs, err := h.store.RevisionsAfter(ctx, ir.None)
	if err != nil {
		return err
	}
	var entities []ir.EntityID
	for _, rev := range revs {
		changed := rev.ChangedEntities()
		snap.Revisions = append(snap.Revisions, RevisionSnapshot{
			Number:   rev.Number,
			Parent:   rev.Parent,
			Kind:     rev.Kind,
			Target:   rev.Target,
			Origin:   rev.Origin,
			Entities: changed,
		})
		entities = append(entities, changed...)
	}
	slices.Sort(entities)
	entities = slices.Compact(entities)

	if snap.Tip.IsNone() {
		return nil
	}
	for _, e := range entities {
		state, ok, err := h.store.EntityStateAt(ctx, e, snap.Tip)
		if err != nil {
			return err
		}
		if ok {
			snap.States[e] = state
		}
	}
	return nil
}
