// Package types provides shared value types for the knowledge graph.
//
// The concrete storage implementation lives in internal/storage/sqlite.
// This package holds the records exchanged between the storage engine,
// the tool layer, and the protocol adapters.
package types

import "time"

// Entity is a named, typed node in the graph. The external key is always
// Name; the numeric ID is internal to the storage engine and never leaves
// the process.
type Entity struct {
	ID         int64     `json:"-"`
	Name       string    `json:"name"`
	EntityType string    `json:"entity_type"`
	CreatedAt  time.Time `json:"created_at,omitzero"`
	UpdatedAt  time.Time `json:"updated_at,omitzero"`

	// Observations in created_at order (ties broken by row id).
	Observations []string `json:"observations"`
}

// Observation is an append-only text statement owned by exactly one entity.
type Observation struct {
	ID        int64     `json:"-"`
	EntityID  int64     `json:"-"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// Relation is a directed, typed edge between two entities. Its logical
// identity is the (from, to, type) triple; creating an existing triple is
// a no-op.
type Relation struct {
	ID           int64     `json:"-"`
	FromEntity   string    `json:"from_entity"`
	ToEntity     string    `json:"to_entity"`
	RelationType string    `json:"relation_type"`
	CreatedAt    time.Time `json:"created_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
}

// Graph is the full dump shape returned by read_graph.
type Graph struct {
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
}

// SearchResult is one ranked entity returned by the search tools.
// Observations are reordered matches-first; within each group created_at
// order is preserved.
type SearchResult struct {
	Name               string           `json:"name"`
	EntityType         string           `json:"entity_type"`
	Observations       []string         `json:"observations"`
	ObservationMatches int              `json:"observation_matches"`
	Score              float64          `json:"score"`
	ComponentScores    *ComponentScores `json:"component_scores,omitempty"`
}

// ComponentScores carries the per-side contributions of a hybrid search hit.
type ComponentScores struct {
	Lexical  float64 `json:"lexical"`
	Semantic float64 `json:"semantic"`
}

// Stats summarizes the graph for the stats tool and the web UI.
type Stats struct {
	EntityCount       int64 `json:"entity_count"`
	RelationCount     int64 `json:"relation_count"`
	ObservationCount  int64 `json:"observation_count"`
	EntityTypeCount   int64 `json:"entity_type_count"`
	RelationTypeCount int64 `json:"relation_type_count"`
	EmbeddingCount    int64 `json:"embedding_count"`
}

// EmbeddingRow is a persisted (entity, model) vector.
type EmbeddingRow struct {
	EntityID   int64
	ModelName  string
	Dimensions int
	Vector     []float32
	CreatedAt  time.Time
}

// SimilarityHit is one result of a vector k-NN scan.
type SimilarityHit struct {
	EntityID   int64
	Similarity float64
}

// NewEntity is the input shape for entity creation tools.
type NewEntity struct {
	Name         string   `json:"name"`
	EntityType   string   `json:"entity_type"`
	Observations []string `json:"observations,omitempty"`
}

// NewRelation is the input shape for relation creation tools.
type NewRelation struct {
	From         string `json:"from"`
	To           string `json:"to"`
	RelationType string `json:"relation_type"`
}

// EntityObservations appends observations to a pre-existing entity inside
// create_subgraph.
type EntityObservations struct {
	EntityName   string   `json:"entity_name"`
	Observations []string `json:"observations"`
}
