package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/revgraph/internal/ir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added immutability triggers on revisions and entity_changes
const currentSchemaVersion = 1

var (
	// ErrRevisionNotFound is returned when a revision number does not exist.
	ErrRevisionNotFound = errors.New("revision not found")

	// ErrUnknownParent is returned by Append when the parent does not exist.
	ErrUnknownParent = errors.New("unknown parent revision")
)

// Reader is the read surface of the revision store.
// Both *Store and *View implement it.
type Reader interface {
	LatestRevisionNumber(ctx context.Context) (ir.RevisionNumber, error)
	RevisionByNumber(ctx context.Context, n ir.RevisionNumber) (ir.Revision, error)
	ParentOf(ctx context.Context, rev ir.Revision) (ir.Revision, bool, error)
	ChildrenOf(ctx context.Context, rev ir.Revision) ([]ir.Revision, error)
	IsAncestorOf(ctx context.Context, ancestor, descendant ir.RevisionNumber) (bool, error)
	Ancestry(ctx context.Context, n ir.RevisionNumber) ([]ir.Revision, error)
	LatestDescendant(ctx context.Context, n ir.RevisionNumber) (ir.RevisionNumber, error)
	ComposerAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.EntityID, error)
	EntityStateAt(ctx context.Context, entity ir.EntityID, n ir.RevisionNumber) (ir.Object, bool, error)
	RevisionsAfter(ctx context.Context, n ir.RevisionNumber) ([]ir.Revision, error)
}

// querier is the subset of *sql.DB and *sql.Tx used by reads.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store provides durable storage for the revision graph.
// Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	reader
	db *sql.DB
}

// View is a read-only view bound to one transaction. See Store.Snapshot.
type View struct {
	reader
}

var (
	_ Reader = (*Store)(nil)
	_ Reader = (*View)(nil)
)

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time. One connection also means
	// a Snapshot transaction holds the store exclusively until it returns.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{reader: reader{q: db}, db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Snapshot runs fn against a View whose reads all happen inside one
// transaction. fn must only use the View it is given: the store has a
// single connection, so calling other Store methods from fn blocks.
func (s *Store) Snapshot(ctx context.Context, fn func(Reader) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("snapshot: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if err := fn(&View{reader: reader{q: tx}}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("snapshot: commit: %w", err)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	// The v1 triggers are part of schema.sql and created with IF NOT EXISTS,
	// so databases from before v1 only need the version bump.
	if version < currentSchemaVersion {
		if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
