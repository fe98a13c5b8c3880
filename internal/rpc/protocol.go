// Package rpc implements the tool-call protocol and its two transports:
// HTTP with server-sent-event responses, and line-delimited stdio.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zabob/memgraph/internal/embedding"
	"github.com/zabob/memgraph/internal/graph"
	"github.com/zabob/memgraph/internal/telemetry"
	"github.com/zabob/memgraph/internal/types"
)

// Tool name constants for the protocol surface.
const (
	ToolCreateEntities      = "create_entities"
	ToolCreateRelations     = "create_relations"
	ToolAddObservations     = "add_observations"
	ToolCreateSubgraph      = "create_subgraph"
	ToolDeleteEntities      = "delete_entities"
	ToolDeleteRelations     = "delete_relations"
	ToolReadGraph           = "read_graph"
	ToolSearchNodes         = "search_nodes"
	ToolSearchSemantic      = "search_entities_semantic"
	ToolSearchHybrid        = "search_hybrid"
	ToolGenerateEmbeddings  = "generate_embeddings"
	ToolConfigureEmbeddings = "configure_embeddings"
	ToolGetStats            = "get_stats"
	ToolGetServerInfo       = "get_server_info"
)

const methodToolsCall = "tools/call"

// Request is one tool-call envelope.
type Request struct {
	ID     string `json:"id"`
	Method string `json:"method"`
	Params struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"params"`
}

// Response is the reply envelope: exactly one of Result or Error is set.
type Response struct {
	ID     string         `json:"id"`
	Result *Result        `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// Result wraps the tool payload. The payload travels as a JSON string in
// a text content item, so the envelope framing stays payload-agnostic.
type Result struct {
	Content []ContentItem `json:"content"`
}

// ContentItem is one piece of response content.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ResponseError is the protocol error object. Code is the taxonomy kind;
// Data carries the kind-specific structured fields.
type ResponseError struct {
	Code    string           `json:"code"`
	Message string           `json:"message"`
	Data    *types.ToolError `json:"data,omitempty"`
}

// Server dispatches decoded requests into the graph service. It holds no
// per-client state; both transports share one instance.
type Server struct {
	svc *graph.Service
	log *slog.Logger
}

// NewServer wires the dispatcher.
func NewServer(svc *graph.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{svc: svc, log: log}
}

// Handle executes one request and always produces a response envelope:
// protocol-level problems (bad method, unknown tool, malformed arguments)
// become Invalid errors rather than transport failures. Conflict results
// are retried once before surfacing, since lock contention that outlived
// the busy timeout usually clears immediately after.
func (s *Server) Handle(ctx context.Context, req *Request) *Response {
	start := time.Now()
	payload, terr := s.dispatch(ctx, req)

	if terr != nil && terr.Kind == types.ErrKindConflict {
		s.log.Debug("retrying tool call after lock conflict", "tool", req.Params.Name)
		retryWait := backoff.NewExponentialBackOff()
		retryWait.InitialInterval = 100 * time.Millisecond
		select {
		case <-ctx.Done():
		case <-time.After(retryWait.NextBackOff()):
			payload, terr = s.dispatch(ctx, req)
		}
	}

	errKind := ""
	if terr != nil {
		errKind = string(terr.Kind)
	}
	telemetry.RecordToolCall(ctx, req.Params.Name, time.Since(start), errKind)
	s.log.Debug("tool call", "tool", req.Params.Name, "duration", time.Since(start), "error", errKind)

	if terr != nil {
		return &Response{ID: req.ID, Error: &ResponseError{
			Code:    string(terr.Kind),
			Message: terr.Error(),
			Data:    terr,
		}}
	}

	text, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("marshal tool result", "tool", req.Params.Name, "error", err)
		return &Response{ID: req.ID, Error: &ResponseError{
			Code:    string(types.ErrKindInternal),
			Message: "failed to encode tool result",
		}}
	}
	return &Response{ID: req.ID, Result: &Result{
		Content: []ContentItem{{Type: "text", Text: string(text)}},
	}}
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *types.ToolError) {
	if req.Method != methodToolsCall {
		return nil, types.InvalidError("method", fmt.Sprintf("unknown method %q", req.Method))
	}

	payload, err := s.call(ctx, req.Params.Name, req.Params.Arguments)
	if err == nil {
		return payload, nil
	}
	var terr *types.ToolError
	if errors.As(err, &terr) {
		return nil, terr
	}
	// The service maps everything; anything else is an adapter-side decode
	// failure.
	return nil, types.InvalidError("arguments", err.Error())
}

func (s *Server) call(ctx context.Context, tool string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch tool {
	case ToolCreateEntities:
		var args struct {
			Entities []types.NewEntity `json:"entities"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.CreateEntities(ctx, args.Entities)

	case ToolCreateRelations:
		var args struct {
			Relations    []types.NewRelation `json:"relations"`
			ExternalRefs []string            `json:"external_refs"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.CreateRelations(ctx, args.Relations, args.ExternalRefs)

	case ToolAddObservations:
		var args struct {
			EntityName   string   `json:"entity_name"`
			Observations []string `json:"observations"`
			ExternalRefs []string `json:"external_refs"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.AddObservations(ctx, args.EntityName, args.Observations, args.ExternalRefs)

	case ToolCreateSubgraph:
		var args struct {
			Entities                []types.NewEntity          `json:"entities"`
			Relations               []types.NewRelation        `json:"relations"`
			ObservationsForExisting []types.EntityObservations `json:"observations_for_existing"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.CreateSubgraph(ctx, args.Entities, args.Relations, args.ObservationsForExisting)

	case ToolDeleteEntities:
		var args struct {
			Names []string `json:"names"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.DeleteEntities(ctx, args.Names)

	case ToolDeleteRelations:
		var args struct {
			Relations []types.NewRelation `json:"relations"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.DeleteRelations(ctx, args.Relations)

	case ToolReadGraph:
		return s.svc.ReadGraph(ctx)

	case ToolSearchNodes:
		var args struct {
			Query string `json:"query"`
			K     int    `json:"k"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		results, err := s.svc.SearchNodes(ctx, args.Query, args.K)
		if err != nil {
			return nil, err
		}
		return searchPayload{Entities: results}, nil

	case ToolSearchSemantic:
		var args struct {
			Query     string  `json:"query"`
			K         int     `json:"k"`
			Threshold float64 `json:"threshold"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		results, err := s.svc.SearchSemantic(ctx, args.Query, args.K, args.Threshold)
		if err != nil {
			return nil, err
		}
		return searchPayload{Entities: results}, nil

	case ToolSearchHybrid:
		var args struct {
			Query string `json:"query"`
			K     int    `json:"k"`
			// Pointer distinguishes an explicit 0 (lexical-only) from an
			// absent field (configured default).
			VectorWeight *float64 `json:"vector_weight"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		weight := -1.0
		if args.VectorWeight != nil {
			weight = *args.VectorWeight
		}
		return s.svc.SearchHybrid(ctx, args.Query, args.K, weight)

	case ToolGenerateEmbeddings:
		var args struct {
			EntityNames []string `json:"entity_names"`
			Force       bool     `json:"force"`
			BatchSize   int      `json:"batch_size"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.GenerateEmbeddings(ctx, args.EntityNames, args.Force, args.BatchSize)

	case ToolConfigureEmbeddings:
		var args struct {
			Provider string `json:"provider"`
			Model    string `json:"model"`
			APIKey   string `json:"api_key"`
			BaseURL  string `json:"base_url"`
		}
		if err := json.Unmarshal(raw, &args); err != nil {
			return nil, decodeErr(tool, err)
		}
		return s.svc.ConfigureEmbeddings(ctx, embedding.Config{
			Provider: args.Provider,
			Model:    args.Model,
			APIKey:   args.APIKey,
			BaseURL:  args.BaseURL,
		})

	case ToolGetStats:
		return s.svc.GetStats(ctx)

	case ToolGetServerInfo:
		return s.svc.GetServerInfo(ctx)

	default:
		return nil, types.InvalidError("tool", fmt.Sprintf("unknown tool %q", tool))
	}
}

// searchPayload is the wire shape of the plain search tools.
type searchPayload struct {
	Entities []*types.SearchResult `json:"entities"`
}

func decodeErr(tool string, err error) *types.ToolError {
	return types.InvalidError("arguments", fmt.Sprintf("%s: %v", tool, err))
}
