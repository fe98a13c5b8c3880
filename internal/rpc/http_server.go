package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/zabob/memgraph/internal/graph"
	"github.com/zabob/memgraph/internal/webui"
)

const (
	defaultToolTimeout = 30 * time.Second
	// Embedding generation can pull a model on first use; give it room.
	embeddingToolTimeout = 5 * time.Minute
)

// HTTPServer fronts the dispatcher with the HTTP transport: POST /mcp
// returns a server-sent-event stream carrying the response envelope,
// GET /health serves the identity snapshot, and the remaining routes serve
// the embedded visualization bundle.
type HTTPServer struct {
	server *Server
	log    *slog.Logger
	info   func() graph.ServerInfo

	httpServer *http.Server
	listener   net.Listener
	mu         sync.RWMutex

	// allowedOrigins restricts CORS when non-empty; the default is
	// permissive, which is acceptable for a localhost-bound service.
	allowedOrigins []string
}

// NewHTTPServer wires the HTTP transport around a dispatcher.
func NewHTTPServer(server *Server, log *slog.Logger, infoFn func() graph.ServerInfo, allowedOrigins []string) *HTTPServer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if infoFn == nil {
		infoFn = func() graph.ServerInfo { return graph.ServerInfo{} }
	}
	return &HTTPServer{server: server, log: log, info: infoFn, allowedOrigins: allowedOrigins}
}

// Handler builds the route table. Exposed for tests.
func (h *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mcp", h.handleMCP)
	mux.HandleFunc("/health", h.handleHealth)
	mux.Handle("/", webui.Handler())
	return h.withCORS(mux)
}

// Serve listens on the given listener until ctx is canceled, then shuts
// down gracefully with a bounded drain.
func (h *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	h.mu.Lock()
	h.listener = ln
	h.httpServer = &http.Server{
		Handler:     h.Handler(),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: SSE responses for slow tools outlive any fixed
		// write deadline; the per-request tool timeout bounds the work.
		IdleTimeout: 120 * time.Second,
	}
	srv := h.httpServer
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	err := srv.Serve(ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Addr returns the bound address.
func (h *HTTPServer) Addr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return ""
}

// handleMCP handles POST /mcp: one tool-request envelope in, an SSE stream
// carrying one response envelope out.
func (h *HTTPServer) handleMCP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("malformed request envelope: %v", err), http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// A client disconnect must not abort the storage operation: the call
	// runs to completion on its own merits and the response is discarded
	// with the connection. Only the wall-clock timeout cancels the work.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), toolTimeout(req.Params.Name))
	defer cancel()

	resp := h.server.Handle(ctx, &req)
	writeSSEMessage(w, resp)
	flusher.Flush()
}

func toolTimeout(tool string) time.Duration {
	if tool == ToolGenerateEmbeddings {
		return embeddingToolTimeout
	}
	return defaultToolTimeout
}

// writeSSEMessage frames one response envelope as an SSE event.
func writeSSEMessage(w http.ResponseWriter, resp *Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: message\n")
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// handleHealth handles GET /health with the identity snapshot.
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info := h.info()
	payload := map[string]any{
		"status":        "ok",
		"name":          info.Name,
		"version":       info.Version,
		"host":          info.Host,
		"port":          info.Port,
		"database_path": info.DatabasePath,
		"in_docker":     info.InDocker,
	}
	if info.ContainerName != "" {
		payload["container_name"] = info.ContainerName
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// withCORS applies the CORS policy: permissive by default (the service
// binds localhost), restrictable via configured origins.
func (h *HTTPServer) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && h.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPServer) originAllowed(origin string) bool {
	if len(h.allowedOrigins) == 0 {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}
