package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/revgraph/internal/ir"
)

// reader implements Reader over either the database or a transaction.
type reader struct {
	q querier
}

// ancestryCTE selects the revision numbered ? and all of its ancestors.
const ancestryCTE = `
	WITH RECURSIVE chain(number, parent) AS (
		SELECT number, parent FROM revisions WHERE number = ?
		UNION ALL
		SELECT r.number, r.parent FROM revisions r JOIN chain c ON r.number = c.parent
	)`

// LatestRevisionNumber returns the highest committed revision number,
// or ir.None for an empty store.
func (r reader) LatestRevisionNumber(ctx context.Context) (ir.RevisionNumber, error) {
	var latest sql.NullInt64
	if err := r.q.QueryRowContext(ctx, `SELECT MAX(number) FROM revisions`).Scan(&latest); err != nil {
		return ir.None, fmt.Errorf("latest revision number: %w", err)
	}
	if !latest.Valid {
		return ir.None, nil
	}
	return ir.RevisionNumber(latest.Int64), nil
}

// RevisionByNumber returns the revision numbered n.
// Returns ErrRevisionNotFound if it does not exist.
func (r reader) RevisionByNumber(ctx context.Context, n ir.RevisionNumber) (ir.Revision, error) {
	revs, err := r.queryRevisions(ctx, `
		SELECT number, parent, kind, target, origin, hash
		FROM revisions
		WHERE number = ?
	`, uint64(n))
	if err != nil {
		return ir.Revision{}, fmt.Errorf("revision by number: %w", err)
	}
	if len(revs) == 0 {
		return ir.Revision{}, fmt.Errorf("revision %s: %w", n, ErrRevisionNotFound)
	}
	return revs[0], nil
}

// ParentOf returns the parent of rev, or false for a root revision.
func (r reader) ParentOf(ctx context.Context, rev ir.Revision) (ir.Revision, bool, error) {
	if rev.IsRoot() {
		return ir.Revision{}, false, nil
	}
	parent, err := r.RevisionByNumber(ctx, rev.Parent)
	if err != nil {
		return ir.Revision{}, false, fmt.Errorf("parent of %s: %w", rev.Number, err)
	}
	return parent, true, nil
}

// ChildrenOf returns the direct children of rev ordered by number.
// Returns an empty slice (not nil) for a leaf.
func (r reader) ChildrenOf(ctx context.Context, rev ir.Revision) ([]ir.Revision, error) {
	revs, err := r.queryRevisions(ctx, `
		SELECT number, parent, kind, target, origin, hash
		FROM revisions
		WHERE parent = ? AND number <> 0
		ORDER BY number ASC
	`, uint64(rev.Number))
	if err != nil {
		return nil, fmt.Errorf("children of %s: %w", rev.Number, err)
	}
	return revs, nil
}

// IsAncestorOf reports whether ancestor is a strict ancestor of descendant.
func (r reader) IsAncestorOf(ctx context.Context, ancestor, descendant ir.RevisionNumber) (bool, error) {
	if ancestor.IsNone() || ancestor >= descendant {
		return false, nil
	}
	var count int
	err := r.q.QueryRowContext(ctx, ancestryCTE+`
		SELECT COUNT(*) FROM chain WHERE number = ?
	`, uint64(descendant), uint64(ancestor)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("is ancestor of: %w", err)
	}
	return count > 0, nil
}

// Ancestry returns revision n and all its ancestors, root first.
// Returns ErrRevisionNotFound if n does not exist.
func (r reader) Ancestry(ctx context.Context, n ir.RevisionNumber) ([]ir.Revision, error) {
	revs, err := r.queryRevisions(ctx, ancestryCTE+`
		SELECT r.number, r.parent, r.kind, r.target, r.origin, r.hash
		FROM revisions r JOIN chain c ON r.number = c.number
		ORDER BY r.number ASC
	`, uint64(n))
	if err != nil {
		return nil, fmt.Errorf("ancestry of %s: %w", n, err)
	}
	if len(revs) == 0 {
		return nil, fmt.Errorf("ancestry of %s: %w", n, ErrRevisionNotFound)
	}
	return revs, nil
}

// LatestDescendant returns the highest-numbered revision in the subtree
// rooted at n (n itself for a leaf).
func (r reader) LatestDescendant(ctx context.Context, n ir.RevisionNumber) (ir.RevisionNumber, error) {
	var latest sql.NullInt64
	err := r.q.QueryRowContext(ctx, `
		WITH RECURSIVE sub(number) AS (
			SELECT number FROM revisions WHERE number = ?
			UNION ALL
			SELECT r.number FROM revisions r JOIN sub s ON r.parent = s.number
		)
		SELECT MAX(number) FROM sub
	`, uint64(n)).Scan(&latest)
	if err != nil {
		return ir.None, fmt.Errorf("latest descendant of %s: %w", n, err)
	}
	if !latest.Valid {
		return ir.None, fmt.Errorf("latest descendant of %s: %w", n, ErrRevisionNotFound)
	}
	return ir.RevisionNumber(latest.Int64), nil
}

// ComposerAt returns the entity composing entity as of revision n: the
// composer recorded by the most recent change to entity on n's ancestry.
// Returns "" when the entity is top-level or was never changed.
func (r reader) ComposerAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.EntityID, error) {
	var composer string
	err := r.q.QueryRowContext(ctx, ancestryCTE+`
		SELECT ec.composer
		FROM entity_changes ec JOIN chain c ON ec.revision = c.number
		WHERE ec.entity = ?
		ORDER BY ec.revision DESC, ec.position DESC
		LIMIT 1
	`, uint64(n), string(entity)).Scan(&composer)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("composer of %s at %s: %w", entity, n, err)
	}
	return ir.EntityID(composer), nil
}

// EntityStateAt returns the attribute snapshot of entity as of revision n.
// The boolean is false when the entity has no state at n (never created,
// or its last change removed it).
func (r reader) EntityStateAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.Object, bool, error) {
	var after string
	err := r.q.QueryRowContext(ctx, ancestryCTE+`
		SELECT ec.after_state
		FROM entity_changes ec JOIN chain c ON ec.revision = c.number
		WHERE ec.entity = ?
		ORDER BY ec.revision DESC, ec.position DESC
		LIMIT 1
	`, uint64(n), string(entity)).Scan(&after)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("state of %s at %s: %w", entity, n, err)
	}
	state, err := unmarshalState(after)
	if err != nil {
		return nil, false, err
	}
	return state, state != nil, nil
}

// RevisionsAfter returns all revisions numbered above n, ordered by number.
// RevisionsAfter(ctx, ir.None) returns the whole graph.
func (r reader) RevisionsAfter(ctx context.Context, n ir.RevisionNumber) ([]ir.Revision, error) {
	revs, err := r.queryRevisions(ctx, `
		SELECT number, parent, kind, target, origin, hash
		FROM revisions
		WHERE number > ?
		ORDER BY number ASC
	`, uint64(n))
	if err != nil {
		return nil, fmt.Errorf("revisions after %s: %w", n, err)
	}
	return revs, nil
}

// queryRevisions scans revision rows and attaches their entity changes.
// Returns an empty slice (not nil) when nothing matches.
func (r reader) queryRevisions(ctx context.Context, query string, args ...any) ([]ir.Revision, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query revisions: %w", err)
	}
	defer rows.Close()

	revs := []ir.Revision{}
	for rows.Next() {
		var (
			rev            ir.Revision
			number, parent uint64
			target         uint64
			kind           string
		)
		if err := rows.Scan(&number, &parent, &kind, &target, &rev.Origin, &rev.Hash); err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		rev.Number = ir.RevisionNumber(number)
		rev.Parent = ir.RevisionNumber(parent)
		rev.Target = ir.RevisionNumber(target)
		rev.Kind = ir.Kind(kind)
		rev.Changes = []ir.EntityChange{}
		revs = append(revs, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate revisions: %w", err)
	}
	// Close before issuing the next query: the store has one connection.
	rows.Close()

	if err := r.attachChanges(ctx, revs); err != nil {
		return nil, err
	}
	return revs, nil
}

// changeBatch bounds the number of placeholders per IN clause.
const changeBatch = 500

// attachChanges loads entity changes for revs in batches.
func (r reader) attachChanges(ctx context.Context, revs []ir.Revision) error {
	index := make(map[ir.RevisionNumber]int, len(revs))
	for i, rev := range revs {
		index[rev.Number] = i
	}

	for start := 0; start < len(revs); start += changeBatch {
		end := min(start+changeBatch, len(revs))

		placeholders := make([]string, 0, end-start)
		args := make([]any, 0, end-start)
		for _, rev := range revs[start:end] {
			placeholders = append(placeholders, "?")
			args = append(args, uint64(rev.Number))
		}

		rows, err := r.q.QueryContext(ctx, `
			SELECT revision, entity, composer, former_composer, before_state, after_state
			FROM entity_changes
			WHERE revision IN (`+strings.Join(placeholders, ",")+`)
			ORDER BY revision ASC, position ASC
		`, args...)
		if err != nil {
			return fmt.Errorf("query entity changes: %w", err)
		}

		for rows.Next() {
			var (
				revision                uint64
				entity, composer, former string
				before, after           string
			)
			if err := rows.Scan(&revision, &entity, &composer, &former, &before, &after); err != nil {
				rows.Close()
				return fmt.Errorf("scan entity change: %w", err)
			}
			change := ir.EntityChange{
				Entity:         ir.EntityID(entity),
				Composer:       ir.EntityID(composer),
				FormerComposer: ir.EntityID(former),
			}
			if change.Before, err = unmarshalState(before); err != nil {
				rows.Close()
				return err
			}
			if change.After, err = unmarshalState(after); err != nil {
				rows.Close()
				return err
			}
			i := index[ir.RevisionNumber(revision)]
			revs[i].Changes = append(revs[i].Changes, change)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("iterate entity changes: %w", err)
		}
		rows.Close()
	}
	return nil
}
