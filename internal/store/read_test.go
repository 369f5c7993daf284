package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/revgraph/internal/ir"
)

// buildBranchingGraph creates:
//
//	r1(a) ─ r2(b) ─ r3(a)
//	           └─── r4(c) ─ r5(a)
func buildBranchingGraph(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	for _, rev := range []ir.Revision{
		change(ir.None, "a"),
		change(1, "b"),
		change(2, "a"),
		change(2, "c"),
		change(4, "a"),
	} {
		_, err := s.Append(ctx, rev)
		require.NoError(t, err)
	}
}

func TestLatestRevisionNumber_Empty(t *testing.T) {
	s := createTestStore(t)

	latest, err := s.LatestRevisionNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ir.None, latest)
}

func TestRevisionByNumber_NotFound(t *testing.T) {
	s := createTestStore(t)

	_, err := s.RevisionByNumber(context.Background(), 3)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRevisionNotFound))
}

func TestParentOf(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	r4, err := s.RevisionByNumber(ctx, 4)
	require.NoError(t, err)
	parent, ok, err := s.ParentOf(ctx, r4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ir.RevisionNumber(2), parent.Number)

	r1, err := s.RevisionByNumber(ctx, 1)
	require.NoError(t, err)
	_, ok, err = s.ParentOf(ctx, r1)
	require.NoError(t, err)
	assert.False(t, ok, "root has no parent")
}

func TestChildrenOf(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	r2, err := s.RevisionByNumber(ctx, 2)
	require.NoError(t, err)
	children, err := s.ChildrenOf(ctx, r2)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, ir.RevisionNumber(3), children[0].Number)
	assert.Equal(t, ir.RevisionNumber(4), children[1].Number)

	r5, err := s.RevisionByNumber(ctx, 5)
	require.NoError(t, err)
	leaf, err := s.ChildrenOf(ctx, r5)
	require.NoError(t, err)
	assert.NotNil(t, leaf)
	assert.Empty(t, leaf)
}

func TestIsAncestorOf(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	tests := []struct {
		a, b ir.RevisionNumber
		want bool
	}{
		{1, 5, true},
		{2, 5, true},
		{4, 5, true},
		{3, 5, false},
		{5, 5, false},
		{5, 1, false},
		{ir.None, 5, false},
	}
	for _, tt := range tests {
		got, err := s.IsAncestorOf(ctx, tt.a, tt.b)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "IsAncestorOf(%d, %d)", tt.a, tt.b)
	}
}

func TestAncestry(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	chain, err := s.Ancestry(ctx, 5)
	require.NoError(t, err)
	var numbers []ir.RevisionNumber
	for _, r := range chain {
		numbers = append(numbers, r.Number)
	}
	assert.Equal(t, []ir.RevisionNumber{1, 2, 4, 5}, numbers)
	assert.Equal(t, ir.EntityID("c"), chain[2].Changes[0].Entity, "changes are attached")

	_, err = s.Ancestry(ctx, 42)
	assert.True(t, errors.Is(err, ErrRevisionNotFound))
}

func TestLatestDescendant(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	tests := []struct {
		n, want ir.RevisionNumber
	}{
		{1, 5},
		{2, 5},
		{3, 3},
		{4, 5},
	}
	for _, tt := range tests {
		got, err := s.LatestDescendant(ctx, tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "LatestDescendant(%d)", tt.n)
	}

	_, err := s.LatestDescendant(ctx, 9)
	assert.True(t, errors.Is(err, ErrRevisionNotFound))
}

func TestComposerAt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// r1 creates "item" inside list-1, r2 moves it to list-2, r3 (a sibling
	// branch of r2) leaves it alone.
	for _, rev := range []ir.Revision{
		{Changes: []ir.EntityChange{{Entity: "item", Composer: "list-1", After: ir.Object{}}}},
		{Parent: 1, Changes: []ir.EntityChange{{Entity: "item", Composer: "list-2", FormerComposer: "list-1", After: ir.Object{}}}},
		{Parent: 1, Changes: []ir.EntityChange{{Entity: "other"}}},
	} {
		_, err := s.Append(ctx, rev)
		require.NoError(t, err)
	}

	tests := []struct {
		n    ir.RevisionNumber
		want ir.EntityID
	}{
		{1, "list-1"},
		{2, "list-2"},
		{3, "list-1"},
	}
	for _, tt := range tests {
		got, err := s.ComposerAt(ctx, "item", tt.n)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "ComposerAt(item, %d)", tt.n)
	}

	none, err := s.ComposerAt(ctx, "unknown", 3)
	require.NoError(t, err)
	assert.Equal(t, ir.EntityID(""), none)
}

func TestEntityStateAt(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, rev := range []ir.Revision{
		{Changes: []ir.EntityChange{{Entity: "a", After: ir.Object{"n": ir.Int(1)}}}},
		{Parent: 1, Changes: []ir.EntityChange{{Entity: "a", Before: ir.Object{"n": ir.Int(1)}, After: ir.Object{"n": ir.Int(2)}}}},
		{Parent: 2, Changes: []ir.EntityChange{{Entity: "a", Before: ir.Object{"n": ir.Int(2)}}}},
	} {
		_, err := s.Append(ctx, rev)
		require.NoError(t, err)
	}

	state, ok, err := s.EntityStateAt(ctx, "a", 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, ir.Object{"n": ir.Int(2)}, state)

	_, ok, err = s.EntityStateAt(ctx, "a", 3)
	require.NoError(t, err)
	assert.False(t, ok, "entity removed at r3")

	_, ok, err = s.EntityStateAt(ctx, "b", 3)
	require.NoError(t, err)
	assert.False(t, ok, "entity never created")
}

func TestRevisionsAfter(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	all, err := s.RevisionsAfter(ctx, ir.None)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	tail, err := s.RevisionsAfter(ctx, 3)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, ir.RevisionNumber(4), tail[0].Number)

	none, err := s.RevisionsAfter(ctx, 5)
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestSnapshot_ReadsThroughView(t *testing.T) {
	s := createTestStore(t)
	buildBranchingGraph(t, s)
	ctx := context.Background()

	var latest ir.RevisionNumber
	var chain []ir.Revision
	err := s.Snapshot(ctx, func(r Reader) error {
		var err error
		if latest, err = r.LatestRevisionNumber(ctx); err != nil {
			return err
		}
		chain, err = r.Ancestry(ctx, latest)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ir.RevisionNumber(5), latest)
	assert.Len(t, chain, 4)
}

func TestSnapshot_PropagatesCallbackError(t *testing.T) {
	s := createTestStore(t)
	boom := errors.New("boom")

	err := s.Snapshot(context.Background(), func(Reader) error { return boom })
	assert.ErrorIs(t, err, boom)

	// The connection is released after a failed snapshot.
	_, err = s.LatestRevisionNumber(context.Background())
	require.NoError(t, err)
}

func TestStateMarshalRoundTrip(t *testing.T) {
	text, err := marshalState(ir.Object{"b": ir.Int(1), "a": ir.String("x")})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":1}`, text)

	obj, err := unmarshalState(text)
	require.NoError(t, err)
	assert.Equal(t, ir.Object{"a": ir.String("x"), "b": ir.Int(1)}, obj)

	empty, err := marshalState(nil)
	require.NoError(t, err)
	assert.Equal(t, "", empty)

	obj, err = unmarshalState("{}")
	require.NoError(t, err)
	assert.Equal(t, ir.Object{}, obj)
}
