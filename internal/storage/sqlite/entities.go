package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
)

// CreateEntity inserts a new entity. Returns storage.ErrAlreadyExists when
// the name is taken and storage.ErrInvalid for empty name or type.
func (s *Store) CreateEntity(ctx context.Context, name, entityType string) (int64, error) {
	return createEntity(ctx, s.db, name, entityType)
}

func createEntity(ctx context.Context, q dbtx, name, entityType string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: entity name must be non-empty", storage.ErrInvalid)
	}
	if entityType == "" {
		return 0, fmt.Errorf("%w: entity type must be non-empty", storage.ErrInvalid)
	}
	ts := now()
	res, err := q.ExecContext(ctx, `
		INSERT INTO entities (name, entity_type, created_at, updated_at)
		VALUES (?, ?, ?, ?)`, name, entityType, ts, ts)
	if err != nil {
		return 0, mapSQLiteErr(fmt.Errorf("create entity %q: %w", name, err))
	}
	return res.LastInsertId()
}

// GetEntity returns the entity with its ordered observation list, or
// storage.ErrNotFound.
func (s *Store) GetEntity(ctx context.Context, name string) (*types.Entity, error) {
	e := &types.Entity{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, created_at, updated_at
		FROM entities WHERE name = ?`, name).
		Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %q: %w", name, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get entity %q: %w", name, err)
	}
	obs, err := loadObservations(ctx, s.db, []int64{e.ID})
	if err != nil {
		return nil, err
	}
	e.Observations = obs[e.ID]
	if e.Observations == nil {
		e.Observations = []string{}
	}
	return e, nil
}

// ResolveNames maps entity names to ids. Names that do not exist are simply
// absent from the result; callers decide whether that is an error.
func (s *Store) ResolveNames(ctx context.Context, names []string) (map[string]int64, error) {
	return resolveNames(ctx, s.db, names)
}

func resolveNames(ctx context.Context, q dbtx, names []string) (map[string]int64, error) {
	ids := make(map[string]int64, len(names))
	if len(names) == 0 {
		return ids, nil
	}
	placeholders := strings.Repeat("?,", len(names))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := q.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, name FROM entities WHERE name IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("resolve names: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// DeleteEntity removes an entity; observations, relations and embeddings
// cascade. Idempotent: returns false when the name does not exist.
func (s *Store) DeleteEntity(ctx context.Context, name string) (bool, error) {
	return deleteEntity(ctx, s.db, name)
}

func deleteEntity(ctx context.Context, q dbtx, name string) (bool, error) {
	res, err := q.ExecContext(ctx, `DELETE FROM entities WHERE name = ?`, name)
	if err != nil {
		return false, mapSQLiteErr(fmt.Errorf("delete entity %q: %w", name, err))
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// EntitiesByID hydrates entity records (with observations) for the given
// internal ids, preserving input order. Unknown ids are skipped.
func (s *Store) EntitiesByID(ctx context.Context, ids []int64) ([]*types.Entity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, entity_type, created_at, updated_at
		FROM entities WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("entities by id: %w", err)
	}
	byID := make(map[int64]*types.Entity, len(ids))
	for rows.Next() {
		e := &types.Entity{}
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		byID[e.ID] = e
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	obs, err := loadObservations(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		e.Observations = obs[id]
		if e.Observations == nil {
			e.Observations = []string{}
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadGraph returns the full dump: entities ordered by name, each carrying
// its ordered observation list, plus all relations.
func (s *Store) ReadGraph(ctx context.Context) (*types.Graph, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, entity_type, created_at, updated_at
		FROM entities ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	entities := []*types.Entity{}
	var ids []int64
	for rows.Next() {
		e := &types.Entity{}
		if err := rows.Scan(&e.ID, &e.Name, &e.EntityType, &e.CreatedAt, &e.UpdatedAt); err != nil {
			_ = rows.Close()
			return nil, err
		}
		entities = append(entities, e)
		ids = append(ids, e.ID)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	obs, err := loadObservations(ctx, s.db, ids)
	if err != nil {
		return nil, err
	}
	for _, e := range entities {
		e.Observations = obs[e.ID]
		if e.Observations == nil {
			e.Observations = []string{}
		}
	}

	relations, err := readRelations(ctx, s.db)
	if err != nil {
		return nil, err
	}
	return &types.Graph{Entities: entities, Relations: relations}, nil
}

// loadObservations returns the observation contents for each entity id, in
// created_at order with ties broken by row id.
func loadObservations(ctx context.Context, q dbtx, ids []int64) (map[int64][]string, error) {
	out := make(map[int64][]string)
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`
		SELECT entity_id, content FROM observations
		WHERE entity_id IN (%s)
		ORDER BY entity_id, created_at, id`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("load observations: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var entityID int64
		var content string
		if err := rows.Scan(&entityID, &content); err != nil {
			return nil, err
		}
		out[entityID] = append(out[entityID], content)
	}
	return out, rows.Err()
}
