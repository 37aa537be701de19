package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-gateway/internal/backend"
	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/registry"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
	"github.com/jonwraymond/mcp-gateway/internal/transport"
)

type fakeTransport struct {
	running bool
	tools   *rpc.Response
	reply   *rpc.Response
}

func (f *fakeTransport) Start(ctx context.Context) (transport.StartResult, error) {
	f.running = true
	return transport.StartResult{Initialized: true, Tools: f.tools}, nil
}
func (f *fakeTransport) Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	if f.reply != nil {
		return f.reply.WithID(req.ID), nil
	}
	return &rpc.Response{JSONRPC: rpc.Version, ID: req.ID, Result: json.RawMessage(`{}`)}, nil
}
func (f *fakeTransport) Running() bool     { return f.running }
func (f *fakeTransport) RestartCount() int { return 0 }
func (f *fakeTransport) Stop() error       { f.running = false; return nil }

func newTestServer(adapters map[string]*backend.Adapter, enableMeta bool) *Server {
	reg := registry.NewFromAdapters(adapters, nil)
	return New(reg, nil, nil, enableMeta)
}

func TestHandleBackend_UnknownBackendReturns404(t *testing.T) {
	srv := newTestServer(map[string]*backend.Adapter{}, true)
	req := httptest.NewRequest(http.MethodPost, "/mcp/ghost", strings.NewReader(`{"jsonrpc":"2.0","method":"tools/list","id":1}`))
	rec := httptest.NewRecorder()

	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeUnknownBackend, resp.Error.Code)
	assert.Equal(t, rpc.NullID, resp.ID, "unknown-backend id must be null even though the request carried one")
}

func TestHandleBackend_MalformedJSONReturns400(t *testing.T) {
	adapter := backend.NewWithTransport(config.BackendConfig{Name: "weather", Command: "true"}, &fakeTransport{})
	srv := newTestServer(map[string]*backend.Adapter{"weather": adapter}, true)

	req := httptest.NewRequest(http.MethodPost, "/mcp/weather", strings.NewReader(`{not json`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeParseError, resp.Error.Code)
}

func TestHandleBackend_ForwardsAndReturnsCachedTools(t *testing.T) {
	toolsResp := &rpc.Response{JSONRPC: rpc.Version, Result: json.RawMessage(`{"tools":[{"name":"forecast"}]}`)}
	adapter := backend.NewWithTransport(config.BackendConfig{Name: "weather", Command: "true"}, &fakeTransport{tools: toolsResp})
	srv := newTestServer(map[string]*backend.Adapter{"weather": adapter}, true)

	body := `{"jsonrpc":"2.0","method":"tools/list","id":42}`
	req := httptest.NewRequest(http.MethodPost, "/mcp/weather", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, json.RawMessage(`42`), resp.ID)
	assert.JSONEq(t, string(toolsResp.Result), string(resp.Result))
}

func TestHandleMeta_DisabledReturns403(t *testing.T) {
	srv := newTestServer(map[string]*backend.Adapter{}, false)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestHandleBackend_TrailingSlashDispatchesToMetaFacade(t *testing.T) {
	srv := newTestServer(map[string]*backend.Adapter{}, true)

	req := httptest.NewRequest(http.MethodPost, "/mcp/", strings.NewReader(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "2024-11-05", result["protocolVersion"])
}

func TestHandleMeta_InitializeOverMetaFacade(t *testing.T) {
	srv := newTestServer(map[string]*backend.Adapter{}, true)

	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(`{"jsonrpc":"2.0","method":"initialize","id":1}`))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp rpc.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Nil(t, resp.Error)

	var result map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &result))
	assert.Equal(t, "mcp-gateway", result["serverInfo"].(map[string]any)["name"])
}

func TestHandleHealth_ReportsBackendState(t *testing.T) {
	adapter := backend.NewWithTransport(config.BackendConfig{Name: "weather", Command: "true"}, &fakeTransport{running: true})
	srv := newTestServer(map[string]*backend.Adapter{"weather": adapter}, true)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	backends := body["backends"].(map[string]any)
	weather := backends["weather"].(map[string]any)
	assert.Equal(t, true, weather["running"])
}
