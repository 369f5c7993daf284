package testutil

import (
	"context"
	"testing"

	"github.com/roach88/revgraph/internal/ir"
)

// GraphStore is the store surface the graph builder needs.
// *store.Store satisfies it.
type GraphStore interface {
	Append(ctx context.Context, rev ir.Revision) (ir.Revision, error)
	ComposerAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.EntityID, error)
	EntityStateAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.Object, bool, error)
}

// GraphBuilder appends revisions with Before snapshots and former composers
// filled in from the store, so fixtures stay consistent with the graph.
//
// Every helper fails the test on error.
type GraphBuilder struct {
	t     testing.TB
	store GraphStore
}

// NewGraphBuilder creates a builder writing to s.
func NewGraphBuilder(t testing.TB, s GraphStore) *GraphBuilder {
	t.Helper()
	return &GraphBuilder{t: t, store: s}
}

// Edit describes one entity change for Commit.
type Edit struct {
	Entity   ir.EntityID
	Composer ir.EntityID
	// After is the new attribute snapshot; nil removes the entity.
	After ir.Object
}

// Set returns an edit that sets entity's attributes without changing its composer.
func Set(entity ir.EntityID, after ir.Object) Edit {
	return Edit{Entity: entity, After: after, Composer: keepComposer}
}

// Compose returns an edit that sets entity's attributes and composer.
func Compose(entity, composer ir.EntityID, after ir.Object) Edit {
	return Edit{Entity: entity, Composer: composer, After: after}
}

// keepComposer marks an edit that inherits the entity's current composer.
const keepComposer ir.EntityID = "\x00keep"

// Commit appends a commit revision on top of parent.
func (g *GraphBuilder) Commit(parent ir.RevisionNumber, edits ...Edit) ir.Revision {
	g.t.Helper()
	return g.append(ir.Revision{Parent: parent, Kind: ir.KindCommit}, edits)
}

// Remote appends a remote revision from origin on top of parent.
func (g *GraphBuilder) Remote(parent ir.RevisionNumber, origin string, edits ...Edit) ir.Revision {
	g.t.Helper()
	return g.append(ir.Revision{Parent: parent, Kind: ir.KindRemote, Origin: origin}, edits)
}

// Touch appends a commit that bumps a counter attribute on each entity.
// Useful when only the graph shape matters.
func (g *GraphBuilder) Touch(parent ir.RevisionNumber, entities ...ir.EntityID) ir.Revision {
	g.t.Helper()
	rev := ir.Revision{Parent: parent, Kind: ir.KindCommit}
	ctx := context.Background()
	for _, e := range entities {
		before, _, err := g.store.EntityStateAt(ctx, e, parent)
		if err != nil {
			g.t.Fatalf("state of %s: %v", e, err)
		}
		var n int64
		if v, ok := before["n"].(ir.Int); ok {
			n = int64(v)
		}
		after := before.Clone()
		if after == nil {
			after = ir.Object{}
		}
		after["n"] = ir.Int(n + 1)
		composer, err := g.store.ComposerAt(ctx, e, parent)
		if err != nil {
			g.t.Fatalf("composer of %s: %v", e, err)
		}
		rev.Changes = append(rev.Changes, ir.EntityChange{
			Entity:         e,
			Composer:       composer,
			FormerComposer: composer,
			Before:         before,
			After:          after,
		})
	}
	return g.appendRevision(rev)
}

func (g *GraphBuilder) append(rev ir.Revision, edits []Edit) ir.Revision {
	g.t.Helper()
	ctx := context.Background()
	for _, e := range edits {
		var before ir.Object
		var former ir.EntityID
		if !rev.Parent.IsNone() {
			var err error
			if before, _, err = g.store.EntityStateAt(ctx, e.Entity, rev.Parent); err != nil {
				g.t.Fatalf("state of %s: %v", e.Entity, err)
			}
			if former, err = g.store.ComposerAt(ctx, e.Entity, rev.Parent); err != nil {
				g.t.Fatalf("composer of %s: %v", e.Entity, err)
			}
		}
		composer := e.Composer
		if composer == keepComposer {
			composer = former
		}
		rev.Changes = append(rev.Changes, ir.EntityChange{
			Entity:         e.Entity,
			Composer:       composer,
			FormerComposer: former,
			Before:         before,
			After:          e.After,
		})
	}
	return g.appendRevision(rev)
}

func (g *GraphBuilder) appendRevision(rev ir.Revision) ir.Revision {
	g.t.Helper()
	stored, err := g.store.Append(context.Background(), rev)
	if err != nil {
		g.t.Fatalf("append revision: %v", err)
	}
	return stored
}
