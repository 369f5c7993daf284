package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityChangeInverse(t *testing.T) {
	c := EntityChange{
		Entity:         "item-1",
		Composer:       "list-2",
		FormerComposer: "list-1",
		Before:         Object{"label": String("old")},
		After:          Object{"label": String("new")},
	}

	inv := c.Inverse()
	assert.Equal(t, EntityID("item-1"), inv.Entity)
	assert.Equal(t, EntityID("list-1"), inv.Composer)
	assert.Equal(t, EntityID("list-2"), inv.FormerComposer)
	assert.Equal(t, Object{"label": String("new")}, inv.Before)
	assert.Equal(t, Object{"label": String("old")}, inv.After)

	assert.Equal(t, c, inv.Inverse(), "inverse of inverse is the original change")
}

func TestRevisionChangedEntities(t *testing.T) {
	r := Revision{Changes: []EntityChange{{Entity: "b"}, {Entity: "a"}, {Entity: "b"}}}
	assert.Equal(t, []EntityID{"a", "b"}, r.ChangedEntities())
	assert.True(t, r.Touches(EntitySet("a")))
	assert.False(t, r.Touches(EntitySet("c")))
	assert.False(t, r.Touches(EntitySet()))
}

func TestRevisionInverseChangesReversed(t *testing.T) {
	r := Revision{Changes: []EntityChange{
		{Entity: "a", After: Object{"v": Int(1)}},
		{Entity: "b", After: Object{"v": Int(2)}},
	}}

	inv := r.InverseChanges()
	assert.Equal(t, EntityID("b"), inv[0].Entity)
	assert.Equal(t, EntityID("a"), inv[1].Entity)
	assert.Nil(t, inv[0].After)
	assert.Equal(t, Object{"v": Int(2)}, inv[0].Before)
}

func TestRevisionNumber(t *testing.T) {
	assert.True(t, None.IsNone())
	assert.Equal(t, "r12", RevisionNumber(12).String())
	assert.True(t, Revision{Number: 1}.IsRoot())
	assert.False(t, Revision{Number: 2, Parent: 1}.IsRoot())
}

func TestKindIsEdit(t *testing.T) {
	assert.True(t, KindCommit.IsEdit())
	assert.True(t, KindRemote.IsEdit())
	assert.False(t, KindUndo.IsEdit())
	assert.False(t, KindRedo.IsEdit())
}
