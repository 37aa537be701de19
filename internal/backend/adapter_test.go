package backend

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
	"github.com/jonwraymond/mcp-gateway/internal/transport"
)

// fakeTransport is an in-memory transport.Transport used to exercise
// Adapter's lifecycle logic without spawning a process or hitting a
// network socket.
type fakeTransport struct {
	running      bool
	startResult  transport.StartResult
	startErr     error
	startCalls   int
	sendResponse *rpc.Response
	sendErr      error
	sendCalls    int
	stopCalls    int
}

func (f *fakeTransport) Start(ctx context.Context) (transport.StartResult, error) {
	f.startCalls++
	if f.startErr != nil {
		return transport.StartResult{}, f.startErr
	}
	f.running = true
	return f.startResult, nil
}

func (f *fakeTransport) Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	f.sendCalls++
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	return f.sendResponse.WithID(req.ID), nil
}

func (f *fakeTransport) Running() bool     { return f.running }
func (f *fakeTransport) RestartCount() int { return 0 }
func (f *fakeTransport) Stop() error {
	f.stopCalls++
	f.running = false
	return nil
}

func newTestAdapter(ft *fakeTransport) *Adapter {
	return &Adapter{
		Config:    config.BackendConfig{Name: "test", IdleTimeout: 300, Enabled: true},
		transport: ft,
		lastUsed:  time.Now(),
	}
}

func toolsResult(t *testing.T, names ...string) *rpc.Response {
	t.Helper()
	tools := make([]map[string]any, 0, len(names))
	for _, n := range names {
		tools = append(tools, map[string]any{"name": n, "description": "tool " + n})
	}
	raw, err := json.Marshal(map[string]any{"tools": tools})
	require.NoError(t, err)
	return &rpc.Response{JSONRPC: rpc.Version, ID: json.RawMessage(`2`), Result: raw}
}

func TestAdapter_StartIsIdempotent(t *testing.T) {
	ft := &fakeTransport{startResult: transport.StartResult{Initialized: true}}
	a := newTestAdapter(ft)

	require.NoError(t, a.Start(context.Background()))
	require.NoError(t, a.Start(context.Background()))

	assert.Equal(t, 1, ft.startCalls, "second Start should be a no-op once the transport reports Running")
}

func TestAdapter_StartFailurePropagatesAsBackendUnavailable(t *testing.T) {
	ft := &fakeTransport{startErr: gwerrors.Transport("boom")}
	a := newTestAdapter(ft)

	err := a.Start(context.Background())
	require.Error(t, err)
	var gwErr *gwerrors.Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, gwerrors.KindBackend, gwErr.Kind)
}

func TestAdapter_SendCachesToolsListFromStart(t *testing.T) {
	cached := toolsResult(t, "alpha", "beta")
	ft := &fakeTransport{startResult: transport.StartResult{Initialized: true, Tools: cached}}
	a := newTestAdapter(ft)

	req := &rpc.Request{JSONRPC: rpc.Version, Method: "tools/list", ID: json.RawMessage(`7`)}
	resp, err := a.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`7`), resp.ID)
	assert.JSONEq(t, string(cached.Result), string(resp.Result))

	// A second call must not reach the transport's Send at all.
	_, err = a.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 0, ft.sendCalls, "tools/list must be served from cache, never forwarded")
}

func TestAdapter_SendForwardsNonCachedMethods(t *testing.T) {
	ft := &fakeTransport{
		startResult:  transport.StartResult{Initialized: true},
		sendResponse: &rpc.Response{JSONRPC: rpc.Version, Result: json.RawMessage(`{"ok":true}`)},
	}
	a := newTestAdapter(ft)

	req := &rpc.Request{JSONRPC: rpc.Version, Method: "tools/call", ID: json.RawMessage(`9`)}
	resp, err := a.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 1, ft.sendCalls)
	assert.Equal(t, json.RawMessage(`9`), resp.ID)
}

func TestAdapter_StopClearsCacheAndTransport(t *testing.T) {
	cached := toolsResult(t, "alpha")
	ft := &fakeTransport{startResult: transport.StartResult{Initialized: true, Tools: cached}}
	a := newTestAdapter(ft)

	require.NoError(t, a.Start(context.Background()))
	assert.True(t, a.ToolsCached())

	require.NoError(t, a.Stop())
	assert.Equal(t, 1, ft.stopCalls)
	assert.False(t, a.ToolsCached())
	assert.False(t, a.Running())
}

func TestAdapter_ToolsCountReflectsCache(t *testing.T) {
	cached := toolsResult(t, "a", "b", "c")
	ft := &fakeTransport{startResult: transport.StartResult{Initialized: true, Tools: cached}}
	a := newTestAdapter(ft)

	assert.Equal(t, 0, a.ToolsCount())
	require.NoError(t, a.Start(context.Background()))
	assert.Equal(t, 3, a.ToolsCount())
}
