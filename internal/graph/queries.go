package graph

import (
	"context"

	"github.com/zabob/memgraph/internal/search"
	"github.com/zabob/memgraph/internal/types"
)

// ReadGraph returns the full dump: all entities with ordered observations
// plus all relations.
func (s *Service) ReadGraph(ctx context.Context) (*types.Graph, error) {
	g, err := s.store.ReadGraph(ctx)
	if err != nil {
		return nil, s.mapError("read_graph", err)
	}
	return g, nil
}

// SearchNodes runs the lexical (BM25) search. Empty queries return an
// empty result set rather than an error.
func (s *Service) SearchNodes(ctx context.Context, query string, k int) ([]*types.SearchResult, error) {
	if k <= 0 {
		k = s.defaults.K
	}
	hits, err := s.store.SearchLexical(ctx, query, k)
	if err != nil {
		return nil, s.mapError("search_nodes", err)
	}
	results := make([]*types.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, &types.SearchResult{
			Name:               h.Entity.Name,
			EntityType:         h.Entity.EntityType,
			Observations:       h.Entity.Observations,
			ObservationMatches: h.ObservationMatches,
			Score:              h.Score,
		})
	}
	return results, nil
}

// SearchSemantic embeds the query with the current provider and runs
// cosine k-NN over the stored vectors. Provider failures surface as
// ProviderUnavailable; this tool never degrades silently.
func (s *Service) SearchSemantic(ctx context.Context, query string, k int, threshold float64) ([]*types.SearchResult, error) {
	if k <= 0 {
		k = s.defaults.K
	}
	if threshold == 0 {
		threshold = s.defaults.Threshold
	}
	results, err := s.searchSemantic(ctx, query, k, threshold)
	if err != nil {
		return nil, s.mapError("search_entities_semantic", err)
	}
	return results, nil
}

func (s *Service) searchSemantic(ctx context.Context, query string, k int, threshold float64) ([]*types.SearchResult, error) {
	provider := s.registry.Current()
	vec, err := provider.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := s.store.SearchSimilar(ctx, vec, k, threshold, provider.ModelName())
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(hits))
	simByID := make(map[int64]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.EntityID
		simByID[h.EntityID] = h.Similarity
	}
	entities, err := s.store.EntitiesByID(ctx, ids)
	if err != nil {
		return nil, err
	}
	results := make([]*types.SearchResult, 0, len(entities))
	for _, e := range entities {
		results = append(results, &types.SearchResult{
			Name:         e.Name,
			EntityType:   e.EntityType,
			Observations: e.Observations,
			Score:        simByID[e.ID],
		})
	}
	return results, nil
}

// HybridResult is the search_hybrid payload. Warning is set when the
// semantic side failed and the ranking fell back to lexical-only.
type HybridResult struct {
	Results []*types.SearchResult `json:"entities"`
	Warning string                `json:"warning,omitempty"`
}

// SearchHybrid fuses normalized lexical and semantic rankings:
//
//	fused = vectorWeight x semantic + (1 - vectorWeight) x lexical
//
// A negative vectorWeight selects the configured default; an explicit 0
// or 1 pins the ranking to one side. Both sides are queried for 2k
// candidates before fusion so a hit strong on only one side is not cut
// off early. Semantic failure degrades to lexical-only with a warning
// instead of failing the call.
func (s *Service) SearchHybrid(ctx context.Context, query string, k int, vectorWeight float64) (*HybridResult, error) {
	if k <= 0 {
		k = s.defaults.K
	}
	if vectorWeight < 0 {
		vectorWeight = s.defaults.HybridWeight
	}
	candidates := 2 * k

	lexHits, err := s.store.SearchLexical(ctx, query, candidates)
	if err != nil {
		return nil, s.mapError("search_hybrid", err)
	}

	result := &HybridResult{}
	semResults, err := s.searchSemantic(ctx, query, candidates, 0)
	if err != nil {
		s.log.Warn("hybrid search degrading to lexical-only", "error", err)
		result.Warning = "semantic search unavailable: " + s.mapError("search_hybrid", err).Detail
		semResults = nil
	}

	lexical := make([]search.Scored, len(lexHits))
	byName := make(map[string]*types.SearchResult, len(lexHits)+len(semResults))
	obsMatches := make(map[string]int, len(lexHits))
	for i, h := range lexHits {
		lexical[i] = search.Scored{Name: h.Entity.Name, Score: h.Score}
		obsMatches[h.Entity.Name] = h.ObservationMatches
		byName[h.Entity.Name] = &types.SearchResult{
			Name:         h.Entity.Name,
			EntityType:   h.Entity.EntityType,
			Observations: h.Entity.Observations,
		}
	}
	semantic := make([]search.Scored, len(semResults))
	for i, r := range semResults {
		semantic[i] = search.Scored{Name: r.Name, Score: r.Score}
		if _, ok := byName[r.Name]; !ok {
			byName[r.Name] = &types.SearchResult{
				Name:         r.Name,
				EntityType:   r.EntityType,
				Observations: r.Observations,
			}
		}
	}

	for _, f := range search.Fuse(lexical, semantic, vectorWeight, k) {
		r := byName[f.Name]
		r.Score = f.Score
		r.ObservationMatches = obsMatches[f.Name]
		r.ComponentScores = &types.ComponentScores{Lexical: f.Lexical, Semantic: f.Semantic}
		result.Results = append(result.Results, r)
	}
	if result.Results == nil {
		result.Results = []*types.SearchResult{}
	}
	return result, nil
}

// GetStats returns the graph summary counts.
func (s *Service) GetStats(ctx context.Context) (*types.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, s.mapError("get_stats", err)
	}
	return stats, nil
}

// GetServerInfo returns the running server's identity snapshot.
func (s *Service) GetServerInfo(_ context.Context) (ServerInfo, error) {
	return s.info(), nil
}
