package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// migrate brings the database at path to the current schema version.
//
// Version 1 stored observations as a JSON array column on entities and
// keyed relations by entity name. Version 2 gives observations their own
// table, rekeys relations by entity id, and adds embeddings, metadata and
// the two FTS indices. The migration runs in a single IMMEDIATE transaction
// and is idempotent on version >= 2. A timestamped snapshot of the database
// file is taken before a real migration begins.
func migrate(ctx context.Context, db *sql.DB, path string) error {
	version, err := currentVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version >= schemaVersion {
		// Re-exec the schema so new installs of the same version pick up
		// late-added indices. Everything in it is IF NOT EXISTS.
		if _, err := db.ExecContext(ctx, schema); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
		return nil
	}

	legacy, err := isLegacyV1(ctx, db)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}

	if legacy {
		if err := snapshotFile(db, path); err != nil {
			return fmt.Errorf("pre-migration snapshot: %w", err)
		}
	}

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	if legacy {
		if err := migrateV1toV2(ctx, conn); err != nil {
			return fmt.Errorf("migrate v1 to v2: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	if legacy {
		// Rebuild the FTS mirrors from the migrated base tables. The
		// triggers only cover writes made after this point.
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO entities_fts(rowid, name, entity_type)
			SELECT id, name, entity_type FROM entities`); err != nil {
			return fmt.Errorf("rebuild entities_fts: %w", err)
		}
		if _, err := conn.ExecContext(ctx, `
			INSERT INTO observations_fts(rowid, content)
			SELECT id, content FROM observations`); err != nil {
			return fmt.Errorf("rebuild observations_fts: %w", err)
		}
	}

	if _, err := conn.ExecContext(ctx, `
		INSERT INTO schema_metadata (version, description, applied_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		schemaVersion, "observations table, id-keyed relations, embeddings, FTS", now(), now()); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	committed = true
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	ok, err := tableExists(ctx, db, "schema_metadata")
	if err != nil || !ok {
		return 0, err
	}
	var version int
	err = db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_metadata`).Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// isLegacyV1 reports whether the file carries a version-1 layout: an
// entities table with the JSON-array observations column.
func isLegacyV1(ctx context.Context, db *sql.DB) (bool, error) {
	ok, err := tableExists(ctx, db, "entities")
	if err != nil || !ok {
		return false, err
	}
	return columnExists(ctx, db, "entities", "observations")
}

func tableExists(ctx context.Context, q dbtx, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table','view') AND name = ?`, name).Scan(&n)
	return n > 0, err
}

func columnExists(ctx context.Context, q dbtx, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// migrateV1toV2 rewrites the legacy tables in place. Runs inside the
// caller's transaction.
func migrateV1toV2(ctx context.Context, conn *sql.Conn) error {
	// The v1 FTS table and triggers reference the observations column;
	// they go first.
	drops := []string{
		`DROP TRIGGER IF EXISTS entities_fts_insert`,
		`DROP TRIGGER IF EXISTS entities_fts_delete`,
		`DROP TRIGGER IF EXISTS entities_fts_update`,
		`DROP TABLE IF EXISTS entities_fts`,
	}
	for _, stmt := range drops {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if _, err := conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS observations (
			id INTEGER PRIMARY KEY,
			entity_id INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return err
	}

	// Explode the JSON-array column into one observation row per element,
	// preserving array order and stamping created_at with the entity's
	// created_at.
	type legacyEntity struct {
		id           int64
		observations string
		createdAt    time.Time
	}
	rows, err := conn.QueryContext(ctx, `SELECT id, observations, created_at FROM entities`)
	if err != nil {
		return err
	}
	var legacies []legacyEntity
	for rows.Next() {
		var e legacyEntity
		if err := rows.Scan(&e.id, &e.observations, &e.createdAt); err != nil {
			_ = rows.Close()
			return err
		}
		legacies = append(legacies, e)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, e := range legacies {
		if e.observations == "" {
			continue
		}
		var contents []string
		if err := json.Unmarshal([]byte(e.observations), &contents); err != nil {
			return fmt.Errorf("entity %d: parse observations array: %w", e.id, err)
		}
		for _, content := range contents {
			if _, err := conn.ExecContext(ctx, `
				INSERT INTO observations (entity_id, content, created_at)
				VALUES (?, ?, ?)`, e.id, content, e.createdAt); err != nil {
				return err
			}
		}
	}

	if _, err := conn.ExecContext(ctx, `ALTER TABLE entities DROP COLUMN observations`); err != nil {
		return err
	}

	// V1 relations were keyed by entity name. Rebuild against entity ids;
	// rows whose endpoints no longer resolve are dropped, matching the
	// cascade the v2 schema would have applied.
	if ok, err := columnIsText(ctx, conn, "relations", "from_entity"); err != nil {
		return err
	} else if ok {
		stmts := []string{
			`CREATE TABLE relations_v2 (
				id INTEGER PRIMARY KEY,
				from_entity INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
				to_entity INTEGER NOT NULL REFERENCES entities(id) ON DELETE CASCADE,
				relation_type TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE(from_entity, to_entity, relation_type)
			)`,
			`INSERT INTO relations_v2 (from_entity, to_entity, relation_type, created_at, updated_at)
				SELECT ef.id, et.id, r.relation_type, r.created_at, r.updated_at
				FROM relations r
				JOIN entities ef ON ef.name = r.from_entity
				JOIN entities et ON et.name = r.to_entity`,
			`DROP TABLE relations`,
			`ALTER TABLE relations_v2 RENAME TO relations`,
		}
		for _, stmt := range stmts {
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return err
			}
		}
	}

	return nil
}

func columnIsText(ctx context.Context, q dbtx, table, column string) (bool, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%q)`, table))
	if err != nil {
		return false, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return ctype == "TEXT", nil
		}
	}
	return false, rows.Err()
}

// snapshotFile copies the database file aside before a migration touches
// it. The WAL is truncated first so the copy is self-contained.
func snapshotFile(db *sql.DB, path string) error {
	if path == ":memory:" {
		return nil
	}
	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return err
	}
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = src.Close() }()

	dstPath := fmt.Sprintf("%s.pre-migration-%d", path, time.Now().Unix())
	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}
