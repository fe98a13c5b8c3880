package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
)

// CreateRelation inserts a directed, typed edge. If the identical
// (from, to, type) triple already exists its id is returned with
// created=false. Both endpoints must resolve; otherwise
// storage.ErrNotFound.
func (s *Store) CreateRelation(ctx context.Context, from, to, relationType string) (int64, bool, error) {
	return createRelation(ctx, s.db, from, to, relationType)
}

func createRelation(ctx context.Context, q dbtx, from, to, relationType string) (int64, bool, error) {
	if relationType == "" {
		return 0, false, fmt.Errorf("%w: relation type must be non-empty", storage.ErrInvalid)
	}
	ids, err := resolveNames(ctx, q, []string{from, to})
	if err != nil {
		return 0, false, err
	}
	fromID, ok := ids[from]
	if !ok {
		return 0, false, fmt.Errorf("relation endpoint %q: %w", from, storage.ErrNotFound)
	}
	toID, ok := ids[to]
	if !ok {
		return 0, false, fmt.Errorf("relation endpoint %q: %w", to, storage.ErrNotFound)
	}

	var existing int64
	err = q.QueryRowContext(ctx, `
		SELECT id FROM relations
		WHERE from_entity = ? AND to_entity = ? AND relation_type = ?`,
		fromID, toID, relationType).Scan(&existing)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("check relation: %w", err)
	}

	ts := now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO relations (from_entity, to_entity, relation_type, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`, fromID, toID, relationType, ts, ts)
	if err != nil {
		// A concurrent writer can insert the same triple between the check
		// and the insert; treat the unique violation as the no-op case.
		mapped := mapSQLiteErr(err)
		if errors.Is(mapped, storage.ErrAlreadyExists) {
			err = q.QueryRowContext(ctx, `
				SELECT id FROM relations
				WHERE from_entity = ? AND to_entity = ? AND relation_type = ?`,
				fromID, toID, relationType).Scan(&existing)
			if err == nil {
				return existing, false, nil
			}
		}
		return 0, false, fmt.Errorf("create relation: %w", mapped)
	}
	id, err := res.LastInsertId()
	return id, err == nil, err
}

// DeleteRelation removes the (from, to, type) triple. Idempotent: returns
// false when no such relation exists.
func (s *Store) DeleteRelation(ctx context.Context, from, to, relationType string) (bool, error) {
	return deleteRelation(ctx, s.db, from, to, relationType)
}

func deleteRelation(ctx context.Context, q dbtx, from, to, relationType string) (bool, error) {
	res, err := q.ExecContext(ctx, `
		DELETE FROM relations WHERE id IN (
			SELECT r.id FROM relations r
			JOIN entities ef ON ef.id = r.from_entity
			JOIN entities et ON et.id = r.to_entity
			WHERE ef.name = ? AND et.name = ? AND r.relation_type = ?
		)`, from, to, relationType)
	if err != nil {
		return false, mapSQLiteErr(fmt.Errorf("delete relation: %w", err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// readRelations returns all relations with endpoint names hydrated.
func readRelations(ctx context.Context, q dbtx) ([]*types.Relation, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r.id, ef.name, et.name, r.relation_type, r.created_at, r.updated_at
		FROM relations r
		JOIN entities ef ON ef.id = r.from_entity
		JOIN entities et ON et.id = r.to_entity
		ORDER BY ef.name, et.name, r.relation_type`)
	if err != nil {
		return nil, fmt.Errorf("read relations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	relations := []*types.Relation{}
	for rows.Next() {
		r := &types.Relation{}
		if err := rows.Scan(&r.ID, &r.FromEntity, &r.ToEntity, &r.RelationType, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		relations = append(relations, r)
	}
	return relations, rows.Err()
}
