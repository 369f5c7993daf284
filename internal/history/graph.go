package history

import (
	"context"
	"fmt"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// refresh rebuilds the cached nodes when the store has moved past the
// watermark. Caller holds mu.
func (t *HistoryTrack) refresh(ctx context.Context) error {
	latest, err := t.store.LatestRevisionNumber(ctx)
	if err != nil {
		return fmt.Errorf("refresh track: %w", err)
	}
	if t.valid && latest == t.watermark {
		return nil
	}
	if err := t.store.Snapshot(ctx, func(r store.Reader) error {
		return t.rebuild(ctx, r)
	}); err != nil {
		return fmt.Errorf("refresh track: %w", err)
	}
	return nil
}

// rebuild recomputes nodes, tip and watermark from one consistent read of
// the graph. Caller holds mu.
func (t *HistoryTrack) rebuild(ctx context.Context, r store.Reader) error {
	latest, err := r.LatestRevisionNumber(ctx)
	if err != nil {
		return err
	}

	tip := latest
	if !latest.IsNone() && !t.selected.IsNone() {
		if tip, err = r.LatestDescendant(ctx, t.selected); err != nil {
			return err
		}
	}

	nodes := []*Node{}
	byNumber := make(map[ir.RevisionNumber]*Node)

	if !tip.IsNone() && len(t.objects) > 0 {
		path, err := r.Ancestry(ctx, tip)
		if err != nil {
			return err
		}
		onPath := make(map[ir.RevisionNumber]struct{}, len(path))
		for _, rev := range path {
			onPath[rev.Number] = struct{}{}
		}

		var onTrack []int
		for i, rev := range path {
			ok, err := t.onTrack(ctx, r, rev)
			if err != nil {
				return err
			}
			if ok {
				onTrack = append(onTrack, i)
			}
		}

		for k, i := range onTrack {
			n := &Node{Revision: path[i]}
			end := len(path)
			if k > 0 {
				n.parent = path[onTrack[k-1]].Number
			}
			if k+1 < len(onTrack) {
				end = onTrack[k+1]
				n.child = path[end].Number
			}
			// Forks before the first node attach to it.
			start := i
			if k == 0 {
				start = 0
			}
			if n.branches, err = t.branchesFrom(ctx, r, path[start:end], onPath, tip); err != nil {
				return err
			}
			nodes = append(nodes, n)
			byNumber[n.Number()] = n
		}
	}

	t.nodes = nodes
	t.byNumber = byNumber
	t.tip = tip
	t.watermark = latest
	t.valid = true
	if _, ok := byNumber[t.cursor]; !ok {
		t.cursor = ir.None
	}

	t.logger.Debug("history track rebuilt",
		"watermark", latest,
		"tip", tip,
		"nodes", len(nodes))
	return nil
}

// branchesFrom collects the first on-track revision of every subtree that
// leaves the active path at one of the segment's revisions.
func (t *HistoryTrack) branchesFrom(ctx context.Context, r store.Reader, segment []ir.Revision, onPath map[ir.RevisionNumber]struct{}, tip ir.RevisionNumber) ([]ir.RevisionNumber, error) {
	var out []ir.RevisionNumber
	for _, rev := range segment {
		children, err := r.ChildrenOf(ctx, rev)
		if err != nil {
			return nil, err
		}
		for _, c := range children {
			if _, ok := onPath[c.Number]; ok {
				continue
			}
			first, ok, err := t.firstOnTrack(ctx, r, c, tip)
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, first.Number)
			}
		}
	}
	return out, nil
}

// firstOnTrack returns rev if it is on-track, else the next on-track
// revision forwards from it.
func (t *HistoryTrack) firstOnTrack(ctx context.Context, r store.Reader, rev ir.Revision, tip ir.RevisionNumber) (ir.Revision, bool, error) {
	ok, err := t.onTrack(ctx, r, rev)
	if err != nil || ok {
		return rev, ok, err
	}
	return t.nextOnTrack(ctx, r, rev, false, tip)
}

// nextOnTrack walks from rev by parent links (backwards) or primary-child
// links (forwards) until it meets an on-track revision.
func (t *HistoryTrack) nextOnTrack(ctx context.Context, r store.Reader, rev ir.Revision, backwards bool, tip ir.RevisionNumber) (ir.Revision, bool, error) {
	cur := rev
	for {
		var (
			next ir.Revision
			ok   bool
			err  error
		)
		if backwards {
			next, ok, err = r.ParentOf(ctx, cur)
		} else {
			next, ok, err = primaryChild(ctx, r, cur, tip)
		}
		if err != nil || !ok {
			return ir.Revision{}, false, err
		}

		on, err := t.onTrack(ctx, r, next)
		if err != nil {
			return ir.Revision{}, false, err
		}
		if on {
			return next, true, nil
		}
		cur = next
	}
}

// primaryChild picks the child of rev a forward walk continues with: the
// child on the way to tip, or else the child whose subtree holds the most
// recent revision.
func primaryChild(ctx context.Context, r store.Reader, rev ir.Revision, tip ir.RevisionNumber) (ir.Revision, bool, error) {
	children, err := r.ChildrenOf(ctx, rev)
	if err != nil {
		return ir.Revision{}, false, err
	}
	switch len(children) {
	case 0:
		return ir.Revision{}, false, nil
	case 1:
		return children[0], true, nil
	}

	if !tip.IsNone() {
		for _, c := range children {
			if c.Number == tip {
				return c, true, nil
			}
			ok, err := r.IsAncestorOf(ctx, c.Number, tip)
			if err != nil {
				return ir.Revision{}, false, err
			}
			if ok {
				return c, true, nil
			}
		}
	}

	best, bestLatest := children[0], ir.None
	for _, c := range children {
		latest, err := r.LatestDescendant(ctx, c.Number)
		if err != nil {
			return ir.Revision{}, false, err
		}
		if latest > bestLatest {
			best, bestLatest = c, latest
		}
	}
	return best, true, nil
}

// onTrack reports whether rev changes a tracked entity, or, with inner
// objects included, an entity composed by one just before or just after rev.
func (t *HistoryTrack) onTrack(ctx context.Context, r store.Reader, rev ir.Revision) (bool, error) {
	if len(t.objects) == 0 {
		return false, nil
	}
	if rev.Touches(t.objects) {
		return true, nil
	}
	if !t.includesInnerObjects {
		return false, nil
	}

	for _, e := range rev.ChangedEntities() {
		for _, at := range []ir.RevisionNumber{rev.Number, rev.Parent} {
			if at.IsNone() {
				continue
			}
			inside, err := t.composedByTracked(ctx, r, e, at)
			if err != nil {
				return false, err
			}
			if inside {
				return true, nil
			}
		}
	}
	return false, nil
}

// composedByTracked follows entity's composer chain as of revision at and
// reports whether it reaches a tracked entity.
func (t *HistoryTrack) composedByTracked(ctx context.Context, r store.Reader, entity ir.EntityID, at ir.RevisionNumber) (bool, error) {
	seen := map[ir.EntityID]struct{}{entity: {}}
	cur := entity
	for {
		composer, err := r.ComposerAt(ctx, cur, at)
		if err != nil {
			return false, err
		}
		if composer == "" {
			return false, nil
		}
		if _, ok := t.objects[composer]; ok {
			return true, nil
		}
		if _, ok := seen[composer]; ok {
			return false, nil
		}
		seen[composer] = struct{}{}
		cur = composer
	}
}
