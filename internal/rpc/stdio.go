package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/zabob/memgraph/internal/types"
)

// maxStdioLine bounds one request envelope on the stdio transport. Large
// graph imports go through create_subgraph batches, not one giant line.
const maxStdioLine = 16 * 1024 * 1024

// StdioServer reads one request envelope per line from in and writes one
// response envelope per line to out. Requests are processed strictly in
// order; the response for request n is written before request n+1 is
// read. Used when the service is spawned as a child over pipes.
type StdioServer struct {
	server *Server
	log    *slog.Logger
}

// NewStdioServer wires the stdio transport around a dispatcher.
func NewStdioServer(server *Server, log *slog.Logger) *StdioServer {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &StdioServer{server: server, log: log}
}

// Serve runs until in reaches EOF or ctx is canceled. Malformed lines
// produce an error envelope (with an empty id when none could be parsed)
// rather than terminating the stream.
func (s *StdioServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxStdioLine)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req Request
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			s.log.Warn("malformed stdio request", "error", err)
			resp := &Response{Error: &ResponseError{
				Code:    string(types.ErrKindInvalid),
				Message: fmt.Sprintf("malformed request envelope: %v", err),
			}}
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write stdio response: %w", err)
			}
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, toolTimeout(req.Params.Name))
		resp := s.server.Handle(callCtx, &req)
		cancel()

		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write stdio response: %w", err)
		}
	}
	return scanner.Err()
}
