package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
)

// nameWeight ranks a name/type match above observation-only matches, so a
// search for an entity's exact name puts that entity first.
const nameWeight = 2.0

// SearchLexical runs BM25 search over both FTS streams and combines the
// scores per entity:
//
//	score = 2 x best name/type match + sum of observation matches
//
// Multi-token queries use OR semantics: any token matching makes the
// document a candidate. Each hit's observations are reordered so matching
// observations come first, preserving created_at order within each group.
func (s *Store) SearchLexical(ctx context.Context, query string, limit int) ([]*storage.LexicalHit, error) {
	match := ftsQuery(query)
	if match == "" {
		return []*storage.LexicalHit{}, nil
	}
	if limit <= 0 {
		limit = 10
	}

	// Raw BM25 is more negative for better matches; negate into a positive
	// relevance. bm25() requires the FTS table name and breaks under outer
	// joins, so each stream is scored in its own MATCH query and combined
	// in process.
	nameScores := map[int64]float64{}
	rows, err := s.db.QueryContext(ctx, `
		SELECT rowid, -bm25(entities_fts) FROM entities_fts WHERE entities_fts MATCH ?`, match)
	if err != nil {
		return nil, fmt.Errorf("entity FTS: %w", err)
	}
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if score > nameScores[id] {
			nameScores[id] = score
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	obsScores := map[int64]float64{} // observation id -> score
	rows, err = s.db.QueryContext(ctx, `
		SELECT rowid, -bm25(observations_fts) FROM observations_fts WHERE observations_fts MATCH ?`, match)
	if err != nil {
		return nil, fmt.Errorf("observation FTS: %w", err)
	}
	for rows.Next() {
		var id int64
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			_ = rows.Close()
			return nil, err
		}
		obsScores[id] = score
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Attribute observation matches to their owning entities.
	matchedObs := map[int64]map[int64]bool{} // entity id -> matched observation ids
	entityScores := map[int64]float64{}
	entityObsMatches := map[int64]int{}
	for id, score := range nameScores {
		entityScores[id] = nameWeight * score
	}
	if len(obsScores) > 0 {
		ids := make([]int64, 0, len(obsScores))
		for id := range obsScores {
			ids = append(ids, id)
		}
		owners, err := s.observationOwners(ctx, ids)
		if err != nil {
			return nil, err
		}
		for obsID, entityID := range owners {
			entityScores[entityID] += obsScores[obsID]
			entityObsMatches[entityID]++
			if matchedObs[entityID] == nil {
				matchedObs[entityID] = map[int64]bool{}
			}
			matchedObs[entityID][obsID] = true
		}
	}

	if len(entityScores) == 0 {
		return []*storage.LexicalHit{}, nil
	}

	ranked := make([]int64, 0, len(entityScores))
	for id := range entityScores {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if entityScores[ranked[i]] != entityScores[ranked[j]] {
			return entityScores[ranked[i]] > entityScores[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	entities, err := s.entitiesWithPartitionedObservations(ctx, ranked, matchedObs)
	if err != nil {
		return nil, err
	}

	hits := make([]*storage.LexicalHit, 0, len(entities))
	for _, e := range entities {
		hits = append(hits, &storage.LexicalHit{
			Entity:             e,
			Score:              entityScores[e.ID],
			ObservationMatches: entityObsMatches[e.ID],
		})
	}
	return hits, nil
}

// observationOwners maps observation ids to their entity ids.
func (s *Store) observationOwners(ctx context.Context, obsIDs []int64) (map[int64]int64, error) {
	placeholders := strings.Repeat("?,", len(obsIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(obsIDs))
	for i, id := range obsIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT id, entity_id FROM observations WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("observation owners: %w", err)
	}
	defer func() { _ = rows.Close() }()
	owners := make(map[int64]int64, len(obsIDs))
	for rows.Next() {
		var obsID, entityID int64
		if err := rows.Scan(&obsID, &entityID); err != nil {
			return nil, err
		}
		owners[obsID] = entityID
	}
	return owners, rows.Err()
}

// entitiesWithPartitionedObservations hydrates entities in ranked order,
// placing matched observations first. Entities routinely carry hundreds of
// observations; matches-first ordering is what keeps the result usable.
func (s *Store) entitiesWithPartitionedObservations(ctx context.Context, ids []int64, matched map[int64]map[int64]bool) ([]*types.Entity, error) {
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
		return nil, fmt.Errorf("hydrate entities: %w", err)
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

	rows, err = s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, entity_id, content FROM observations
		WHERE entity_id IN (%s)
		ORDER BY entity_id, created_at, id`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("hydrate observations: %w", err)
	}
	matchedFirst := map[int64][]string{}
	rest := map[int64][]string{}
	for rows.Next() {
		var obsID, entityID int64
		var content string
		if err := rows.Scan(&obsID, &entityID, &content); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if matched[entityID] != nil && matched[entityID][obsID] {
			matchedFirst[entityID] = append(matchedFirst[entityID], content)
		} else {
			rest[entityID] = append(rest[entityID], content)
		}
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*types.Entity, 0, len(ids))
	for _, id := range ids {
		e, ok := byID[id]
		if !ok {
			continue
		}
		e.Observations = append(matchedFirst[id], rest[id]...)
		if e.Observations == nil {
			e.Observations = []string{}
		}
		out = append(out, e)
	}
	return out, nil
}

// ftsQuery tokenizes on whitespace and joins tokens with OR. AND semantics
// returned zero results for natural multi-word queries and pushed callers
// into creating duplicate entities, so any-token match is deliberate.
// Tokens are double-quoted so FTS5 operators in user input stay literal.
func ftsQuery(query string) string {
	fields := strings.Fields(query)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.ReplaceAll(f, `"`, `""`)
		tokens = append(tokens, `"`+f+`"`)
	}
	return strings.Join(tokens, " OR ")
}
