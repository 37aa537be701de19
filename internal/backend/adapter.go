// Package backend adapts a single configured backend into the one
// lifecycle every transport shares: lazy start, serialized requests, a
// tools/list cache, and idle hibernation. This is the "BackendAdapter" of
// spec §3/§4.1, grounded on the teacher's internal/backend.Backend
// interface shape but built around this gateway's own transport set rather
// than the official MCP SDK client.
package backend

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
	"github.com/jonwraymond/mcp-gateway/internal/transport"
)

// Adapter owns one backend's transport and everything needed to serialize
// access to it: a single mutex, the last-used clock for idle hibernation,
// and the tools/list cache populated at start.
type Adapter struct {
	Config config.BackendConfig

	mu        sync.Mutex
	transport transport.Transport
	toolsCache *rpc.Response
	lastUsed  time.Time
}

// New builds an adapter for cfg, selecting the transport implementation
// from cfg.TransportType().
func New(cfg config.BackendConfig) *Adapter {
	return NewWithTransport(cfg, newTransport(cfg))
}

// NewWithTransport builds an adapter around a caller-supplied transport,
// bypassing the usual cfg.TransportType() selection. Exported chiefly so
// other packages' tests can exercise the adapter's lifecycle against a
// fake transport.Transport without spawning a process or opening a socket.
func NewWithTransport(cfg config.BackendConfig, t transport.Transport) *Adapter {
	return &Adapter{
		Config:    cfg,
		transport: t,
		lastUsed:  time.Now(),
	}
}

func newTransport(cfg config.BackendConfig) transport.Transport {
	switch cfg.TransportType() {
	case config.TransportStdio:
		return transport.NewStdio(cfg)
	case config.TransportSSE:
		return transport.NewSSE(cfg)
	default:
		return transport.NewStreamable(cfg)
	}
}

// Start ensures the backend's transport is running, starting it if
// necessary. It is idempotent and safe to call before every forwarded
// request, matching the original gateway's `if not self.is_running: await
// self.start()` guard at each call site.
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.startLocked(ctx)
}

func (a *Adapter) startLocked(ctx context.Context) error {
	if a.transport.Running() {
		return nil
	}
	result, err := a.transport.Start(ctx)
	if err != nil {
		return gwerrors.BackendUnavailable(a.Config.Name)
	}
	if !result.Initialized {
		return gwerrors.BackendUnavailable(a.Config.Name)
	}
	if result.Tools != nil {
		a.toolsCache = result.Tools
	}
	return nil
}

// Send forwards req to the backend, ensuring it is started first, and
// serving tools/list from cache when one has been populated. Exactly one
// Send/Start pair runs at a time per adapter (spec §5: "a single mutex
// ensuring one concurrent transport operation at a time").
func (a *Adapter) Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastUsed = time.Now()

	if req.Method == "tools/list" && a.toolsCache != nil {
		return a.toolsCache.Clone().WithID(req.ID), nil
	}

	if err := a.startLocked(ctx); err != nil {
		return nil, err
	}
	// Starting may have just seeded the cache; serve tools/list from it.
	if req.Method == "tools/list" && a.toolsCache != nil {
		return a.toolsCache.Clone().WithID(req.ID), nil
	}
	return a.transport.Send(ctx, req)
}

// Tools returns the cached tools/list result, starting the backend first if
// it has never been reached. Used by the meta facade's gateway_list_tools
// and gateway_search_tools, which must see the cache without forcing a
// fresh round trip on every call.
func (a *Adapter) Tools(ctx context.Context) (*rpc.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.startLocked(ctx); err != nil {
		return nil, err
	}
	if a.toolsCache != nil {
		return a.toolsCache.Clone(), nil
	}
	return nil, gwerrors.BackendUnavailable(a.Config.Name)
}

// Running reports the transport's own liveness definition (process alive
// for stdio; initialized for HTTP/SSE) without taking the lock — callers
// reporting health must never block behind an in-flight request.
func (a *Adapter) Running() bool {
	return a.transport.Running()
}

// RestartCount reports how many times the underlying process has been
// respawned (always 0 for HTTP/SSE backends).
func (a *Adapter) RestartCount() int {
	return a.transport.RestartCount()
}

// ToolsCached reports whether a tools/list result is currently cached,
// without forcing a start.
func (a *Adapter) ToolsCached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.toolsCache != nil
}

// ToolsCount returns the number of tools in the cached tools/list result,
// or 0 if nothing is cached yet. Used for the /health and
// gateway_list_servers "tools_cached" field.
func (a *Adapter) ToolsCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.toolsCache == nil || a.toolsCache.Result == nil {
		return 0
	}
	var payload struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(a.toolsCache.Result, &payload); err != nil {
		return 0
	}
	return len(payload.Tools)
}

// IdleFor reports how long it has been since the last request reached this
// adapter.
func (a *Adapter) IdleFor() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Since(a.lastUsed)
}

// Stop tears down the transport and clears the tools cache, putting the
// adapter back into its pre-start state. Hibernation (idle-checker) and
// shutdown both call this.
func (a *Adapter) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.toolsCache = nil
	return a.transport.Stop()
}
