// Package storage provides the storage engine interface and shared errors.
//
// The concrete implementation lives in the sqlite sub-package. Consumers
// depend on this interface rather than on the concrete type so that mocks
// and alternative backends can be substituted.
package storage

import (
	"context"
	"errors"

	"github.com/zabob/memgraph/internal/types"
)

// ErrNotFound is returned when a referenced entity or relation does not
// exist in the database.
var ErrNotFound = errors.New("not found")

// ErrAlreadyExists is returned when creating an entity whose name is taken.
var ErrAlreadyExists = errors.New("already exists")

// ErrInvalid is returned for empty required fields and malformed input
// before any write is attempted.
var ErrInvalid = errors.New("invalid input")

// ErrBusy is returned when lock contention outlived the busy timeout.
var ErrBusy = errors.New("database busy")

// LexicalHit is one entity-level match from the BM25 search, before result
// shaping by the tool layer.
type LexicalHit struct {
	Entity             *types.Entity
	Score              float64
	ObservationMatches int
}

// Storage is the interface satisfied by *sqlite.Store. It exclusively owns
// all persistent state: entities, observations, relations, embeddings, and
// the schema metadata row.
type Storage interface {
	// Entity CRUD
	CreateEntity(ctx context.Context, name, entityType string) (int64, error)
	GetEntity(ctx context.Context, name string) (*types.Entity, error)
	ResolveNames(ctx context.Context, names []string) (map[string]int64, error)
	DeleteEntity(ctx context.Context, name string) (bool, error)

	// Observations
	AddObservation(ctx context.Context, entityName, content string) (int64, error)

	// Relations. CreateRelation reports created=false when the identical
	// triple already existed.
	CreateRelation(ctx context.Context, from, to, relationType string) (int64, bool, error)
	DeleteRelation(ctx context.Context, from, to, relationType string) (bool, error)

	// Reads
	ReadGraph(ctx context.Context) (*types.Graph, error)
	SearchLexical(ctx context.Context, query string, limit int) ([]*LexicalHit, error)
	Stats(ctx context.Context) (*types.Stats, error)

	// Vector store (same durable file, own transactions)
	PutEmbedding(ctx context.Context, row *types.EmbeddingRow) error
	PutEmbeddings(ctx context.Context, rows []*types.EmbeddingRow) error
	GetEmbedding(ctx context.Context, entityID int64, modelName string) (*types.EmbeddingRow, error)
	HasEmbedding(ctx context.Context, entityID int64, modelName string) (bool, error)
	DeleteEmbeddings(ctx context.Context, entityID int64, modelName string) error
	SearchSimilar(ctx context.Context, query []float32, k int, threshold float64, modelName string) ([]*types.SimilarityHit, error)
	EntitiesMissingEmbedding(ctx context.Context, modelName string) ([]int64, error)
	EntitiesByID(ctx context.Context, ids []int64) ([]*types.Entity, error)

	// Transactions
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error

	// Durability barrier: fold WAL contents back into the main file so any
	// later call, from any process on the same file, observes prior writes.
	Checkpoint(ctx context.Context) error

	// Lifecycle
	Path() string
	Close() error
}

// Tx exposes the subset of storage operations that execute inside a single
// database transaction. If the callback returns an error or panics the
// transaction is rolled back; on nil return it is committed.
type Tx interface {
	CreateEntity(ctx context.Context, name, entityType string) (int64, error)
	AddObservation(ctx context.Context, entityName, content string) (int64, error)
	CreateRelation(ctx context.Context, from, to, relationType string) (int64, bool, error)
	ResolveNames(ctx context.Context, names []string) (map[string]int64, error)
	DeleteEntity(ctx context.Context, name string) (bool, error)
	DeleteRelation(ctx context.Context, from, to, relationType string) (bool, error)
}
