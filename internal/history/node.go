package history

import (
	"context"
	"slices"

	"github.com/roach88/revgraph/internal/ir"
)

// Node is an immutable entry of a track: one on-track revision and the
// numbers of its neighbours on the track.
type Node struct {
	Revision ir.Revision

	parent   ir.RevisionNumber
	child    ir.RevisionNumber
	branches []ir.RevisionNumber
}

// Number returns the revision number of the node.
func (n *Node) Number() ir.RevisionNumber {
	return n.Revision.Number
}

// ParentNumber returns the previous on-track revision, or ir.None for the
// first node of a track.
func (n *Node) ParentNumber() ir.RevisionNumber {
	return n.parent
}

// ChildNumber returns the next on-track revision along the active path,
// or ir.None for the last node.
func (n *Node) ChildNumber() ir.RevisionNumber {
	return n.child
}

// SecondaryBranchNumbers returns the first on-track revision of every branch
// that leaves the active path between this node and its child.
func (n *Node) SecondaryBranchNumbers() []ir.RevisionNumber {
	return slices.Clone(n.branches)
}

// Track is a navigable sequence of nodes with a cursor.
//
// Methods returning *Node return nil when there is no such node.
type Track interface {
	Nodes(ctx context.Context) ([]*Node, error)
	Current(ctx context.Context) (*Node, error)
	Back(ctx context.Context) (*Node, error)
	Forward(ctx context.Context) (*Node, error)
	Parent(ctx context.Context, n *Node) (*Node, error)
	Child(ctx context.Context, n *Node) (*Node, error)
	SecondaryBranches(ctx context.Context, n *Node) ([]*Node, error)
}

// EditableTrack is a Track whose edits can be undone and redone.
type EditableTrack interface {
	Track
	CanUndo(ctx context.Context) (bool, error)
	CanRedo(ctx context.Context) (bool, error)
	Undo(ctx context.Context) (*Node, error)
	Redo(ctx context.Context) (*Node, error)
}

var _ EditableTrack = (*HistoryTrack)(nil)
