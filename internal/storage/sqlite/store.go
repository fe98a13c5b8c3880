// Package sqlite implements the storage engine using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	// Import SQLite driver
	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/zabob/memgraph/internal/storage"
)

// busyTimeout is the lock-contention wait applied to every connection.
// The concurrency model requires at least 5 seconds; without it concurrent
// writers surface spurious SQLITE_BUSY errors instead of short waits.
const busyTimeout = 5 * time.Second

// Store implements storage.Storage on a single SQLite database file.
type Store struct {
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

// setupWASMCache configures WASM compilation caching so the embedded SQLite
// build compiles once per machine instead of once per process start.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		if c, err := wazero.NewCompilationCacheWithDir(filepath.Join(userCache, "memgraph", "wasm")); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// Open opens (and if needed creates and migrates) the database at path.
//
// Three settings are applied unconditionally: WAL journaling, the busy
// timeout, and foreign-key enforcement. The cascade and visibility
// guarantees of the storage contract do not hold without them.
func Open(ctx context.Context, path string) (*Store, error) {
	var connStr string
	isInMemory := path == ":memory:" || (strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	pragmas := fmt.Sprintf("_pragma=foreign_keys(ON)&_pragma=busy_timeout(%d)&_time_format=sqlite", busyTimeout.Milliseconds())
	switch {
	case path == ":memory:":
		// Shared in-memory database. WAL does not work in memory; DELETE
		// journaling is fine because there is no cross-process visibility
		// to maintain.
		connStr = "file::memory:?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&" + pragmas
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&" + pragmas
		}
	default:
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		connStr = "file:" + path + "?" + pragmas
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection by default; a pool of one
		// keeps every statement on the same database.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports one writer plus concurrent readers. A small pool
		// bounds goroutine pile-up on write-lock contention.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrate(ctx, db, path); err != nil {
		_ = db.Close()
		return nil, err
	}

	absPath := path
	if !isInMemory {
		if absPath, err = filepath.Abs(path); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}

	return &Store{db: db, dbPath: absPath}, nil
}

// Close checkpoints the WAL and closes the database. Without the truncating
// checkpoint, committed writes can be stranded in the -wal file.
func (s *Store) Close() error {
	s.closed.Store(true)
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return s.db.Close()
}

// Path returns the absolute path to the database file.
func (s *Store) Path() string {
	return s.dbPath
}

// Checkpoint folds WAL contents back into the main database file. Called
// after every mutating tool invocation so that the next call — from any
// client or any process on the same file — observes the writes.
func (s *Store) Checkpoint(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(FULL)")
	return err
}

// dbtx is satisfied by *sql.DB, *sql.Tx and *sql.Conn so that query helpers
// run both standalone and inside RunInTransaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// RunInTransaction executes fn inside one IMMEDIATE transaction.
//
// IMMEDIATE acquires the write lock up front, serializing concurrent
// writers instead of failing at first write. database/sql cannot express
// the mode through BeginTx, so the transaction runs as raw SQL on a
// dedicated connection.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return mapSQLiteErr(fmt.Errorf("begin transaction: %w", err))
	}

	committed := false
	defer func() {
		if !committed {
			// Background context so rollback happens even on cancellation.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if err := fn(&tx{conn: conn}); err != nil {
		return err
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return mapSQLiteErr(fmt.Errorf("commit transaction: %w", err))
	}
	committed = true
	return nil
}

// tx implements storage.Tx on a dedicated connection holding an open
// IMMEDIATE transaction.
type tx struct {
	conn *sql.Conn
}

func (t *tx) CreateEntity(ctx context.Context, name, entityType string) (int64, error) {
	return createEntity(ctx, t.conn, name, entityType)
}

func (t *tx) AddObservation(ctx context.Context, entityName, content string) (int64, error) {
	return addObservation(ctx, t.conn, entityName, content)
}

func (t *tx) CreateRelation(ctx context.Context, from, to, relationType string) (int64, bool, error) {
	return createRelation(ctx, t.conn, from, to, relationType)
}

func (t *tx) ResolveNames(ctx context.Context, names []string) (map[string]int64, error) {
	return resolveNames(ctx, t.conn, names)
}

func (t *tx) DeleteEntity(ctx context.Context, name string) (bool, error) {
	return deleteEntity(ctx, t.conn, name)
}

func (t *tx) DeleteRelation(ctx context.Context, from, to, relationType string) (bool, error) {
	return deleteRelation(ctx, t.conn, from, to, relationType)
}

// mapSQLiteErr converts driver errors to the storage sentinels.
func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var serr *sqlite3.Error
	if errors.As(err, &serr) {
		switch {
		case serr.Code() == sqlite3.BUSY || serr.Code() == sqlite3.LOCKED:
			return fmt.Errorf("%w: %w", storage.ErrBusy, err)
		case serr.ExtendedCode() == sqlite3.CONSTRAINT_UNIQUE || serr.ExtendedCode() == sqlite3.CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", storage.ErrAlreadyExists, err)
		}
	}
	return err
}

// now returns the wall-clock timestamp written to created_at/updated_at
// columns, truncated to milliseconds so round-trips through the sqlite
// time format compare equal.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
