package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/revgraph/internal/ir"
)

// Append commits rev as a new revision and returns it as stored.
//
// The store assigns Number (MAX(number)+1) and Hash; whatever the caller put
// in those fields is ignored. Parent must be ir.None (a new root) or an
// existing revision, otherwise ErrUnknownParent is returned. An empty Kind
// defaults to ir.KindCommit.
//
// The revision row and its entity changes are written in one transaction.
func (s *Store) Append(ctx context.Context, rev ir.Revision) (ir.Revision, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("append: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var latest sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(number) FROM revisions`).Scan(&latest); err != nil {
		return ir.Revision{}, fmt.Errorf("append: latest: %w", err)
	}

	if !rev.Parent.IsNone() {
		var count int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM revisions WHERE number = ?`, uint64(rev.Parent)).Scan(&count)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("append: check parent: %w", err)
		}
		if count == 0 {
			return ir.Revision{}, fmt.Errorf("append: parent %s: %w", rev.Parent, ErrUnknownParent)
		}
	}

	stored := ir.Revision{
		Number:  ir.RevisionNumber(latest.Int64 + 1),
		Parent:  rev.Parent,
		Kind:    rev.Kind,
		Target:  rev.Target,
		Origin:  rev.Origin,
		Changes: rev.CloneChanges(),
	}
	if stored.Kind == "" {
		stored.Kind = ir.KindCommit
	}

	stored.Hash, err = ir.RevisionHash(stored)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("append: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO revisions (number, parent, kind, target, origin, hash)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		uint64(stored.Number),
		uint64(stored.Parent),
		string(stored.Kind),
		uint64(stored.Target),
		stored.Origin,
		stored.Hash,
	)
	if err != nil {
		return ir.Revision{}, fmt.Errorf("append: insert revision: %w", err)
	}

	for i, c := range stored.Changes {
		before, err := marshalState(c.Before)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("append: change %d: %w", i, err)
		}
		after, err := marshalState(c.After)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("append: change %d: %w", i, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO entity_changes
			(revision, position, entity, composer, former_composer, before_state, after_state)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			uint64(stored.Number),
			i,
			string(c.Entity),
			string(c.Composer),
			string(c.FormerComposer),
			before,
			after,
		)
		if err != nil {
			return ir.Revision{}, fmt.Errorf("append: insert change %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ir.Revision{}, fmt.Errorf("append: commit: %w", err)
	}

	return stored, nil
}
