package history

import (
	"context"
	"fmt"

	"github.com/roach88/revgraph/internal/ir"
)

// editStacks replays the track's nodes to derive which edits can be undone
// and redone. Edits push onto the undo stack and clear the redo stack; an
// undo moves its target to the redo stack and a redo moves it back.
func editStacks(nodes []*Node) (undo, redo []ir.RevisionNumber) {
	for _, n := range nodes {
		rev := n.Revision
		switch rev.Kind {
		case ir.KindUndo:
			var ok bool
			if undo, ok = removeLast(undo, rev.Target); ok {
				redo = append(redo, rev.Target)
			}
		case ir.KindRedo:
			var ok bool
			if redo, ok = removeLast(redo, rev.Target); ok {
				undo = append(undo, rev.Target)
			}
		default:
			undo = append(undo, rev.Number)
			redo = redo[:0]
		}
	}
	return undo, redo
}

func removeLast(stack []ir.RevisionNumber, n ir.RevisionNumber) ([]ir.RevisionNumber, bool) {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == n {
			return append(stack[:i], stack[i+1:]...), true
		}
	}
	return stack, false
}

// CanUndo reports whether the track has an edit to undo.
func (t *HistoryTrack) CanUndo(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return false, err
	}
	undo, _ := editStacks(t.nodes)
	return len(undo) > 0, nil
}

// CanRedo reports whether the track has an undone edit to redo.
func (t *HistoryTrack) CanRedo(ctx context.Context) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return false, err
	}
	_, redo := editStacks(t.nodes)
	return len(redo) > 0, nil
}

// Undo commits a revision inverting the most recent edit still in effect,
// as a child of the tip, and returns its node. Returns nil when there is
// nothing to undo.
func (t *HistoryTrack) Undo(ctx context.Context) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	undo, _ := editStacks(t.nodes)
	if len(undo) == 0 {
		return nil, nil
	}
	target := t.byNumber[undo[len(undo)-1]].Revision

	n, err := t.commit(ctx, ir.KindUndo, target.Number, target.InverseChanges())
	if err != nil {
		return nil, fmt.Errorf("undo %s: %w", target.Number, err)
	}
	return n, nil
}

// Redo commits a revision re-applying the most recently undone edit, as a
// child of the tip, and returns its node. Returns nil when there is nothing
// to redo.
func (t *HistoryTrack) Redo(ctx context.Context) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	_, redo := editStacks(t.nodes)
	if len(redo) == 0 {
		return nil, nil
	}
	target, err := t.store.RevisionByNumber(ctx, redo[len(redo)-1])
	if err != nil {
		return nil, fmt.Errorf("redo: %w", err)
	}

	n, err := t.commit(ctx, ir.KindRedo, target.Number, target.CloneChanges())
	if err != nil {
		return nil, fmt.Errorf("redo %s: %w", target.Number, err)
	}
	return n, nil
}

// commit appends changes on top of the tip, rebasing each change's Before
// snapshot and former composer onto the tip's actual state. Caller holds mu.
func (t *HistoryTrack) commit(ctx context.Context, kind ir.Kind, target ir.RevisionNumber, changes []ir.EntityChange) (*Node, error) {
	seen := make(map[ir.EntityID]ir.EntityChange, len(changes))
	for i := range changes {
		c := &changes[i]
		if prev, ok := seen[c.Entity]; ok {
			c.Before = prev.After.Clone()
			c.FormerComposer = prev.Composer
			seen[c.Entity] = *c
			continue
		}
		before, _, err := t.store.EntityStateAt(ctx, c.Entity, t.tip)
		if err != nil {
			return nil, err
		}
		former, err := t.store.ComposerAt(ctx, c.Entity, t.tip)
		if err != nil {
			return nil, err
		}
		c.Before = before
		c.FormerComposer = former
		seen[c.Entity] = *c
	}

	stored, err := t.store.Append(ctx, ir.Revision{
		Parent:  t.tip,
		Kind:    kind,
		Target:  target,
		Changes: changes,
	})
	if err != nil {
		return nil, err
	}

	t.logger.Debug("history track committed",
		"kind", kind,
		"target", target,
		"revision", stored.Number)

	t.cursor = ir.None
	t.valid = false
	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	return t.byNumber[stored.Number], nil
}
