package graph

import (
	"context"
	"strings"

	"github.com/zabob/memgraph/internal/embedding"
	"github.com/zabob/memgraph/internal/types"
)

// GenerateEmbeddingsResult reports how many vectors were written and how
// many entities were skipped because they already had one for the current
// model.
type GenerateEmbeddingsResult struct {
	Model     string `json:"model"`
	Generated int    `json:"generated"`
	Skipped   int    `json:"skipped"`
}

// GenerateEmbeddings embeds the named entities, or every entity missing a
// vector for the current model when names is empty. force regenerates
// vectors that already exist. Work proceeds in provider batches; the
// vectors of each batch are committed together, so a provider failure
// midway keeps what was already written.
func (s *Service) GenerateEmbeddings(ctx context.Context, names []string, force bool, batchSize int) (*GenerateEmbeddingsResult, error) {
	if batchSize <= 0 {
		batchSize = s.defaults.BatchSize
	}
	provider := s.registry.Current()
	model := provider.ModelName()
	result := &GenerateEmbeddingsResult{Model: model}

	var ids []int64
	if len(names) == 0 {
		missing, err := s.store.EntitiesMissingEmbedding(ctx, model)
		if err != nil {
			return nil, s.mapError("generate_embeddings", err)
		}
		ids = missing
	} else {
		resolved, err := s.store.ResolveNames(ctx, dedupe(names))
		if err != nil {
			return nil, s.mapError("generate_embeddings", err)
		}
		var missing []string
		for _, n := range dedupe(names) {
			id, ok := resolved[n]
			if !ok {
				missing = append(missing, n)
				continue
			}
			ids = append(ids, id)
		}
		if len(missing) > 0 {
			return nil, types.MissingEntitiesError(missing)
		}
	}

	if !force {
		kept := ids[:0]
		for _, id := range ids {
			has, err := s.store.HasEmbedding(ctx, id, model)
			if err != nil {
				return nil, s.mapError("generate_embeddings", err)
			}
			if has {
				result.Skipped++
				continue
			}
			kept = append(kept, id)
		}
		ids = kept
	}
	if len(ids) == 0 {
		return result, nil
	}

	entities, err := s.store.EntitiesByID(ctx, ids)
	if err != nil {
		return nil, s.mapError("generate_embeddings", err)
	}

	for start := 0; start < len(entities); start += batchSize {
		end := min(start+batchSize, len(entities))
		batch := entities[start:end]

		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = embeddingSource(e)
		}
		vecs, err := provider.BatchGenerate(ctx, texts)
		if err != nil {
			return nil, s.mapError("generate_embeddings", err)
		}

		rows := make([]*types.EmbeddingRow, len(batch))
		for i, e := range batch {
			rows[i] = &types.EmbeddingRow{
				EntityID:  e.ID,
				ModelName: model,
				Vector:    vecs[i],
			}
		}
		if err := s.store.PutEmbeddings(ctx, rows); err != nil {
			return nil, s.mapError("generate_embeddings", err)
		}
		result.Generated += len(rows)
	}

	s.checkpoint(ctx)
	return result, nil
}

// embeddingSource is the text a provider sees for one entity: the name
// followed by every observation, newline-joined.
func embeddingSource(e *types.Entity) string {
	parts := make([]string, 0, len(e.Observations)+1)
	parts = append(parts, e.Name)
	parts = append(parts, e.Observations...)
	return strings.Join(parts, "\n")
}

// ConfigureEmbeddingsResult echoes the installed provider.
type ConfigureEmbeddingsResult struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimensions int    `json:"dimensions"`
}

// ConfigureEmbeddings replaces the registry's current provider. Existing
// vectors for other models stay in the store; searches only consult the
// current model's rows.
func (s *Service) ConfigureEmbeddings(_ context.Context, cfg embedding.Config) (*ConfigureEmbeddingsResult, error) {
	if cfg.Provider == "" {
		return nil, types.InvalidError("provider", "provider must be non-empty")
	}
	p, err := s.registry.Configure(cfg)
	if err != nil {
		return nil, s.mapError("configure_embeddings", err)
	}
	s.log.Info("embedding provider configured", "provider", cfg.Provider, "model", p.ModelName())
	return &ConfigureEmbeddingsResult{
		Provider:   cfg.Provider,
		Model:      p.ModelName(),
		Dimensions: p.Dimensions(),
	}, nil
}
