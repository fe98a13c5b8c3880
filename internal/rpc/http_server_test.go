package rpc

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zabob/memgraph/internal/graph"
)

func newTestHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := newTestServer(t)
	infoFn := func() graph.ServerInfo {
		return graph.ServerInfo{Name: "memgraph-test", Version: "0.0.1", Host: "127.0.0.1", Port: 1234}
	}
	hs := NewHTTPServer(server, nil, infoFn, nil)
	ts := httptest.NewServer(hs.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postTool(t *testing.T, ts *httptest.Server, tool string, args any) (*Response, *http.Response) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	req := &Request{ID: "1", Method: methodToolsCall}
	req.Params.Name = tool
	req.Params.Arguments = raw
	body, err := json.Marshal(req)
	require.NoError(t, err)

	httpResp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { _ = httpResp.Body.Close() })

	var buf bytes.Buffer
	_, err = buf.ReadFrom(httpResp.Body)
	require.NoError(t, err)

	// One SSE message event carrying the envelope.
	var envelope *Response
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.HasPrefix(line, "data: ") {
			envelope = &Response{}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), envelope))
		}
	}
	require.NotNil(t, envelope, "SSE stream must carry a data frame")
	return envelope, httpResp
}

func TestMCPEndpointSSEFraming(t *testing.T) {
	ts := newTestHTTPServer(t)

	envelope, httpResp := postTool(t, ts, ToolGetStats, nil)
	require.Equal(t, "text/event-stream", httpResp.Header.Get("Content-Type"))
	require.Equal(t, "1", envelope.ID)
	require.NotNil(t, envelope.Result)
}

func TestMCPEndpointToolRoundTrip(t *testing.T) {
	ts := newTestHTTPServer(t)

	envelope, _ := postTool(t, ts, ToolCreateEntities, map[string]any{
		"entities": []map[string]any{{"name": "X", "entity_type": "t"}},
	})
	require.Nil(t, envelope.Error)

	envelope, _ = postTool(t, ts, ToolSearchNodes, map[string]any{"query": "X"})
	require.Nil(t, envelope.Error)
	require.Contains(t, envelope.Result.Content[0].Text, `"X"`)
}

func TestMCPEndpointRejectsGet(t *testing.T) {
	ts := newTestHTTPServer(t)
	resp, err := http.Get(ts.URL + "/mcp")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMCPEndpointMalformedEnvelope(t *testing.T) {
	ts := newTestHTTPServer(t)
	resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestHTTPServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var payload map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Equal(t, "ok", payload["status"])
	require.Equal(t, "memgraph-test", payload["name"])
	require.Equal(t, float64(1234), payload["port"])
}

func TestCORSHeadersPermissiveByDefault(t *testing.T) {
	ts := newTestHTTPServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestCORSRestrictedOrigins(t *testing.T) {
	server := newTestServer(t)
	hs := NewHTTPServer(server, nil, nil, []string{"http://allowed.example"})
	ts := httptest.NewServer(hs.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://evil.example")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestStaticAssetsServed(t *testing.T) {
	ts := newTestHTTPServer(t)
	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
