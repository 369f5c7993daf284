package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/revgraph/internal/ir"
)

// createTestStore creates a new file-backed store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// change builds a commit revision touching the given entities, each with a
// single "v" attribute equal to the entity id.
func change(parent ir.RevisionNumber, entities ...ir.EntityID) ir.Revision {
	rev := ir.Revision{Parent: parent, Kind: ir.KindCommit}
	for _, e := range entities {
		rev.Changes = append(rev.Changes, ir.EntityChange{
			Entity: e,
			After:  ir.Object{"v": ir.String(e)},
		})
	}
	return rev
}
