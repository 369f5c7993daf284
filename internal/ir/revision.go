package ir

import (
	"slices"
	"strconv"
)

// RevisionNumber identifies a revision. Numbers are assigned by the store,
// start at 1 and strictly increase. Zero means "no revision".
type RevisionNumber uint64

// None is the zero RevisionNumber, used as the parent of a root revision.
const None RevisionNumber = 0

// IsNone reports whether n refers to no revision.
func (n RevisionNumber) IsNone() bool {
	return n == None
}

func (n RevisionNumber) String() string {
	return "r" + strconv.FormatUint(uint64(n), 10)
}

// EntityID is an opaque identifier for an entity in the object graph.
type EntityID string

// Kind records why a revision was committed.
type Kind string

const (
	// KindCommit is an ordinary local edit.
	KindCommit Kind = "commit"
	// KindUndo inverts the revision named by Target.
	KindUndo Kind = "undo"
	// KindRedo re-applies the revision named by Target.
	KindRedo Kind = "redo"
	// KindRemote is an edit received from a synchronization client.
	KindRemote Kind = "remote"
)

// IsEdit reports whether revisions of this kind are content edits that
// can be undone (as opposed to undo/redo bookkeeping commits).
func (k Kind) IsEdit() bool {
	return k == KindCommit || k == KindRemote || k == ""
}

// EntityChange describes the state transition of one entity in a revision.
//
// Before and After are full attribute snapshots. Composer is the entity that
// composes (owns) this entity after the change; FormerComposer is the composer
// before it. An empty composer means the entity is top-level.
type EntityChange struct {
	Entity         EntityID `json:"entity"`
	Composer       EntityID `json:"composer,omitempty"`
	FormerComposer EntityID `json:"former_composer,omitempty"`
	Before         Object   `json:"before,omitempty"`
	After          Object   `json:"after,omitempty"`
}

// Inverse returns the change that undoes c.
func (c EntityChange) Inverse() EntityChange {
	return EntityChange{
		Entity:         c.Entity,
		Composer:       c.FormerComposer,
		FormerComposer: c.Composer,
		Before:         c.After.Clone(),
		After:          c.Before.Clone(),
	}
}

// Revision is an immutable, numbered delta in the revision graph.
type Revision struct {
	Number RevisionNumber `json:"number"`
	Parent RevisionNumber `json:"parent"`
	Kind   Kind           `json:"kind"`
	// Target is the revision an undo or redo refers to.
	Target RevisionNumber `json:"target,omitempty"`
	// Origin is the client id for remote revisions.
	Origin  string         `json:"origin,omitempty"`
	Changes []EntityChange `json:"changes"`
	Hash    string         `json:"hash,omitempty"`
}

// IsRoot reports whether the revision has no parent.
func (r Revision) IsRoot() bool {
	return r.Parent.IsNone()
}

// ChangedEntities returns the ids of all entities touched by the revision,
// sorted and without duplicates.
func (r Revision) ChangedEntities() []EntityID {
	ids := make([]EntityID, 0, len(r.Changes))
	for _, c := range r.Changes {
		ids = append(ids, c.Entity)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Touches reports whether the revision changes any entity in set.
func (r Revision) Touches(set map[EntityID]struct{}) bool {
	for _, c := range r.Changes {
		if _, ok := set[c.Entity]; ok {
			return true
		}
	}
	return false
}

// InverseChanges returns the changes that undo r, in reverse order.
func (r Revision) InverseChanges() []EntityChange {
	out := make([]EntityChange, len(r.Changes))
	for i, c := range r.Changes {
		out[len(r.Changes)-1-i] = c.Inverse()
	}
	return out
}

// CloneChanges returns a deep enough copy of the changes that callers can
// modify the attribute objects freely.
func (r Revision) CloneChanges() []EntityChange {
	out := make([]EntityChange, len(r.Changes))
	for i, c := range r.Changes {
		c.Before = c.Before.Clone()
		c.After = c.After.Clone()
		out[i] = c
	}
	return out
}

// EntitySet builds a lookup set from ids.
func EntitySet(ids ...EntityID) map[EntityID]struct{} {
	set := make(map[EntityID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
