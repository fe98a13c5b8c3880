package sqlite

import (
	"context"
	"fmt"

	"github.com/zabob/memgraph/internal/types"
)

// Stats returns graph-wide counts for the stats tool and the web UI.
func (s *Store) Stats(ctx context.Context) (*types.Stats, error) {
	stats := &types.Stats{}
	queries := []struct {
		sql  string
		dest *int64
	}{
		{`SELECT COUNT(*) FROM entities`, &stats.EntityCount},
		{`SELECT COUNT(*) FROM relations`, &stats.RelationCount},
		{`SELECT COUNT(*) FROM observations`, &stats.ObservationCount},
		{`SELECT COUNT(DISTINCT entity_type) FROM entities`, &stats.EntityTypeCount},
		{`SELECT COUNT(DISTINCT relation_type) FROM relations`, &stats.RelationTypeCount},
		{`SELECT COUNT(*) FROM embeddings`, &stats.EmbeddingCount},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
	}
	return stats, nil
}
