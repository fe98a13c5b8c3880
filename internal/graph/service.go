// Package graph implements the tool layer: the fixed set of named graph
// operations exposed to protocol clients, with reference validation,
// partial-failure reporting, and the per-call durability barrier.
package graph

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/zabob/memgraph/internal/embedding"
	"github.com/zabob/memgraph/internal/storage"
	"github.com/zabob/memgraph/internal/types"
)

// Defaults are the search and embedding knobs from the configuration
// record.
type Defaults struct {
	K            int
	Threshold    float64
	HybridWeight float64
	BatchSize    int
}

// ServerInfo is the identity snapshot served by get_server_info and the
// health endpoint. The supervisor fills it in at startup.
type ServerInfo struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	PID           int    `json:"pid"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	InDocker      bool   `json:"in_docker"`
	ContainerName string `json:"container_name,omitempty"`
	DatabasePath  string `json:"database_path"`
	StartedAt     string `json:"started_at"`
}

// Service dispatches tool calls against one storage engine and one
// embedding registry. Safe for concurrent use; the storage engine handles
// its own locking.
type Service struct {
	store    storage.Storage
	registry *embedding.Registry
	defaults Defaults
	log      *slog.Logger
	info     func() ServerInfo
}

// NewService wires the tool layer. infoFn may be nil when no supervisor is
// running (stdio-only mode).
func NewService(store storage.Storage, registry *embedding.Registry, defaults Defaults, log *slog.Logger, infoFn func() ServerInfo) *Service {
	if defaults.K <= 0 {
		defaults.K = 10
	}
	if defaults.HybridWeight == 0 {
		defaults.HybridWeight = 0.7
	}
	if defaults.BatchSize <= 0 {
		defaults.BatchSize = 32
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if infoFn == nil {
		infoFn = func() ServerInfo { return ServerInfo{} }
	}
	return &Service{store: store, registry: registry, defaults: defaults, log: log, info: infoFn}
}

// checkpoint is the post-commit durability barrier: issued after every
// mutating tool call, before the response is written, so that the next
// call — from any client, via any adapter — observes the writes.
func (s *Service) checkpoint(ctx context.Context) {
	if err := s.store.Checkpoint(ctx); err != nil {
		s.log.Warn("wal checkpoint failed", "error", err)
	}
}

// mapError converts internal errors to the protocol taxonomy. A *ToolError
// passes through unchanged; anything unrecognized becomes Internal with a
// redacted message (full context goes to the log).
func (s *Service) mapError(op string, err error) *types.ToolError {
	var te *types.ToolError
	if errors.As(err, &te) {
		return te
	}
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return &types.ToolError{Kind: types.ErrKindNotFound, Detail: err.Error()}
	case errors.Is(err, storage.ErrAlreadyExists):
		return &types.ToolError{Kind: types.ErrKindAlreadyExists, Detail: err.Error()}
	case errors.Is(err, storage.ErrInvalid):
		return &types.ToolError{Kind: types.ErrKindInvalid, Detail: err.Error()}
	case errors.Is(err, storage.ErrBusy):
		return types.ConflictError("storage lock contention exceeded busy timeout")
	case errors.Is(err, embedding.ErrUnavailable):
		return types.ProviderUnavailableError(err.Error())
	default:
		s.log.Error("tool failed", "tool", op, "error", err)
		return types.InternalError(op + " failed")
	}
}

// validateExternalRefs enforces the reference-declaration contract: every
// name the batch uses must be declared in refs, and every declared name
// must resolve to an existing entity. Declared-but-unresolvable names fail
// the whole call with MissingEntities; an undeclared use is an Invalid —
// the caller did not state its dependencies.
func (s *Service) validateExternalRefs(ctx context.Context, resolve func(context.Context, []string) (map[string]int64, error), used, refs []string) error {
	declared := make(map[string]bool, len(refs))
	for _, r := range refs {
		if r == "" {
			return types.InvalidError("external_refs", "entity names must be non-empty")
		}
		declared[r] = true
	}
	var undeclared []string
	for _, u := range used {
		if !declared[u] {
			undeclared = append(undeclared, u)
		}
	}
	if len(undeclared) > 0 {
		return types.InvalidError("external_refs",
			fmt.Sprintf("names used but not declared: %s", strings.Join(dedupe(undeclared), ", ")))
	}

	ids, err := resolve(ctx, refs)
	if err != nil {
		return err
	}
	var missing []string
	for _, r := range dedupe(refs) {
		if _, ok := ids[r]; !ok {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return types.MissingEntitiesError(missing)
	}
	return nil
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}
