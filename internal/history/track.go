package history

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/revgraph/internal/ir"
	"github.com/roach88/revgraph/internal/store"
)

// RevisionStore is the store surface a HistoryTrack needs.
// *store.Store satisfies it.
type RevisionStore interface {
	store.Reader
	Snapshot(ctx context.Context, fn func(store.Reader) error) error
	Append(ctx context.Context, rev ir.Revision) (ir.Revision, error)
}

// Option configures a HistoryTrack.
type Option func(*HistoryTrack)

// WithInnerObjects makes revisions that change an entity composed
// (transitively) by a tracked entity count as on-track.
func WithInnerObjects(include bool) Option {
	return func(t *HistoryTrack) {
		t.includesInnerObjects = include
	}
}

// WithLogger sets the logger for rebuild diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(t *HistoryTrack) {
		t.logger = logger
	}
}

// HistoryTrack is the history of a set of tracked entities.
//
// The tracked set and the inner-objects flag are fixed at construction.
// Methods are safe to call from multiple goroutines, but a track is meant
// to be driven from one place, typically the editor owning the entities.
type HistoryTrack struct {
	store                RevisionStore
	objects              map[ir.EntityID]struct{}
	includesInnerObjects bool
	logger               *slog.Logger

	mu        sync.Mutex
	valid     bool
	watermark ir.RevisionNumber // latest revision number at the last rebuild
	selected  ir.RevisionNumber // branch selection, ir.None follows the latest revision
	tip       ir.RevisionNumber
	nodes     []*Node
	byNumber  map[ir.RevisionNumber]*Node
	cursor    ir.RevisionNumber // ir.None follows the last node
}

// New creates a track over s following objects.
func New(s RevisionStore, objects []ir.EntityID, opts ...Option) *HistoryTrack {
	t := &HistoryTrack{
		store:   s,
		objects: ir.EntitySet(objects...),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Objects returns the tracked entity ids, sorted.
func (t *HistoryTrack) Objects() []ir.EntityID {
	ids := make([]ir.EntityID, 0, len(t.objects))
	for id := range t.objects {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// IncludesInnerObjects reports whether composed entities count as tracked.
func (t *HistoryTrack) IncludesInnerObjects() bool {
	return t.includesInnerObjects
}

// Watermark returns the latest revision number the cached nodes were
// computed against, or ir.None before the first read.
func (t *HistoryTrack) Watermark() ir.RevisionNumber {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.watermark
}

// Tip returns the last revision of the active path: the latest revision,
// or the latest descendant of the selected branch.
func (t *HistoryTrack) Tip(ctx context.Context) (ir.RevisionNumber, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return ir.None, err
	}
	return t.tip, nil
}

// Nodes returns the on-track revisions of the active path, oldest first.
func (t *HistoryTrack) Nodes(ctx context.Context) ([]*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	return slices.Clone(t.nodes), nil
}

// RevisionIsOnTrack reports whether rev changes a tracked entity or, with
// inner objects included, an entity composed by one. It reads the store
// directly and never touches the cached graph, so it needs no lock and
// does not refresh the track.
func (t *HistoryTrack) RevisionIsOnTrack(ctx context.Context, rev ir.Revision) (bool, error) {
	return t.onTrack(ctx, t.store, rev)
}

// NextRevisionOnTrackAfter walks from rev toward the root (backwards) or
// toward the tip (forwards) and returns the first on-track revision it
// meets. rev itself is never returned. The boolean is false when the walk
// reaches the end of the graph.
//
// Going forwards through a branch point, the walk follows the child leading
// to the tip, or else the child with the most recent descendant.
func (t *HistoryTrack) NextRevisionOnTrackAfter(ctx context.Context, rev ir.Revision, backwards bool) (ir.Revision, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return ir.Revision{}, false, err
	}

	var (
		next  ir.Revision
		found bool
	)
	err := t.store.Snapshot(ctx, func(r store.Reader) error {
		var err error
		next, found, err = t.nextOnTrack(ctx, r, rev, backwards, t.tip)
		return err
	})
	if err != nil {
		return ir.Revision{}, false, err
	}
	return next, found, nil
}

// SelectBranch makes the branch containing n the active path. The tip
// becomes the latest descendant of n until another branch is selected.
func (t *HistoryTrack) SelectBranch(ctx context.Context, n ir.RevisionNumber) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.store.RevisionByNumber(ctx, n); err != nil {
		return fmt.Errorf("select branch: %w", err)
	}
	t.selected = n
	t.cursor = ir.None
	t.valid = false
	return nil
}

// SelectLatest drops any branch selection so the tip follows the latest
// revision in the store.
func (t *HistoryTrack) SelectLatest() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.selected = ir.None
	t.cursor = ir.None
	t.valid = false
}

// Current returns the node under the cursor. The cursor sits on the last
// node until Back or Forward moves it.
func (t *HistoryTrack) Current(ctx context.Context) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	return t.current(), nil
}

// Back moves the cursor to the previous node and returns it.
// At the first node it returns nil and leaves the cursor alone.
func (t *HistoryTrack) Back(ctx context.Context) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	n := t.current()
	if n == nil || n.parent.IsNone() {
		return nil, nil
	}
	t.cursor = n.parent
	return t.byNumber[n.parent], nil
}

// Forward moves the cursor to the next node and returns it.
// At the last node it returns nil.
func (t *HistoryTrack) Forward(ctx context.Context) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	n := t.current()
	if n == nil || n.child.IsNone() {
		return nil, nil
	}
	if n.child == t.nodes[len(t.nodes)-1].Number() {
		t.cursor = ir.None
	} else {
		t.cursor = n.child
	}
	return t.byNumber[n.child], nil
}

// Parent returns the node before n on the track.
func (t *HistoryTrack) Parent(ctx context.Context, n *Node) (*Node, error) {
	if n == nil || n.parent.IsNone() {
		return nil, nil
	}
	return t.resolve(ctx, n.parent)
}

// Child returns the node after n on the track.
func (t *HistoryTrack) Child(ctx context.Context, n *Node) (*Node, error) {
	if n == nil || n.child.IsNone() {
		return nil, nil
	}
	return t.resolve(ctx, n.child)
}

// SecondaryBranches returns the first node of each branch leaving the
// active path after n. Nodes off the active path carry their own parent
// and child but no secondary branches.
func (t *HistoryTrack) SecondaryBranches(ctx context.Context, n *Node) ([]*Node, error) {
	if n == nil {
		return nil, nil
	}
	out := make([]*Node, 0, len(n.branches))
	for _, b := range n.branches {
		node, err := t.resolve(ctx, b)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// current returns the node under the cursor. Caller holds mu.
func (t *HistoryTrack) current() *Node {
	if len(t.nodes) == 0 {
		return nil
	}
	if !t.cursor.IsNone() {
		if n, ok := t.byNumber[t.cursor]; ok {
			return n
		}
	}
	return t.nodes[len(t.nodes)-1]
}

// resolve returns the node for revision n, building a detached node when
// n is not on the active path.
func (t *HistoryTrack) resolve(ctx context.Context, n ir.RevisionNumber) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.refresh(ctx); err != nil {
		return nil, err
	}
	if node, ok := t.byNumber[n]; ok {
		return node, nil
	}

	var node *Node
	err := t.store.Snapshot(ctx, func(r store.Reader) error {
		rev, err := r.RevisionByNumber(ctx, n)
		if err != nil {
			return err
		}
		node = &Node{Revision: rev}
		prev, ok, err := t.nextOnTrack(ctx, r, rev, true, t.tip)
		if err != nil {
			return err
		}
		if ok {
			node.parent = prev.Number
		}
		next, ok, err := t.nextOnTrack(ctx, r, rev, false, t.tip)
		if err != nil {
			return err
		}
		if ok {
			node.child = next.Number
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("resolve node %s: %w", n, err)
	}
	return node, nil
}
