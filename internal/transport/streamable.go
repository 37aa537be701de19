package transport

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

const (
	streamableInitTimeout    = 10 * time.Second
	streamableRequestTimeout = 30 * time.Second
	sessionHeader            = "Mcp-Session-Id"
)

// Streamable speaks MCP as a single POST per call against an HTTP endpoint,
// accepting either a plain JSON body or an SSE-framed one in reply.
//
// Per spec §4.3, a failed initialize handshake does not fail Start: the
// transport still marks itself initialized so that a backend slow to come up
// (or one that simply doesn't implement initialize) doesn't block the
// gateway from forwarding later calls to it. This mirrors the original
// gateway's http-session bring-up, which swallows every error from its
// initial handshake.
type Streamable struct {
	cfg    config.BackendConfig
	client *http.Client

	initialized atomic.Bool
	sessionID   atomic.Value // string
}

func NewStreamable(cfg config.BackendConfig) *Streamable {
	return &Streamable{cfg: cfg, client: &http.Client{}}
}

func (h *Streamable) Running() bool       { return h.initialized.Load() }
func (h *Streamable) RestartCount() int   { return 0 }

func (h *Streamable) Start(ctx context.Context) (StartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, streamableInitTimeout)
	defer cancel()

	// Errors from the handshake itself are intentionally swallowed: the
	// transport still reports Initialized true below regardless of outcome.
	if resp, err := h.post(ctx, initializeRequest()); err == nil {
		_ = resp
	}

	h.initialized.Store(true)
	result := StartResult{Initialized: true}

	toolsCtx, toolsCancel := context.WithTimeout(context.Background(), streamableInitTimeout)
	defer toolsCancel()
	if resp, err := h.post(toolsCtx, toolsListRequest()); err == nil && cacheable(resp) {
		result.Tools = resp
	}
	return result, nil
}

func (h *Streamable) Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	if req.IsNotification() {
		ctx, cancel := context.WithTimeout(ctx, streamableRequestTimeout)
		defer cancel()
		_, _ = h.post(ctx, req)
		return &rpc.Response{JSONRPC: rpc.Version, ID: rpc.NullID, Result: mustMarshal(nil)}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, streamableRequestTimeout)
	defer cancel()
	resp, err := h.post(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.WithID(req.ID), nil
}

func (h *Streamable) Stop() error {
	h.initialized.Store(false)
	h.sessionID.Store("")
	return nil
}

// post sends req as the body of a single POST, negotiating either a plain
// JSON or SSE-framed reply by Content-Type, and folds every failure into a
// -32000 gwerrors.Transport rather than a raw Go error.
func (h *Streamable) post(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	body, err := rpcEncodeRequest(req)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: encode request: %v", h.cfg.Name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.cfg.HTTPURL, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Transport("backend %q: build request: %v", h.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range h.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if sid, ok := h.sessionID.Load().(string); ok && sid != "" {
		httpReq.Header.Set(sessionHeader, sid)
	}

	httpResp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: %v", h.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	if sid := httpResp.Header.Get(sessionHeader); sid != "" {
		h.sessionID.Store(sid)
	}

	data, err := readBody(httpResp)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: read reply: %v", h.cfg.Name, err)
	}
	resp, err := decodeResponse(data)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: malformed reply: %v", h.cfg.Name, err)
	}
	return resp, nil
}

// readBody extracts the JSON payload from an HTTP reply, handling both a
// plain application/json body and an SSE-framed one (one or more `data: `
// lines, the last of which carries the JSON-RPC response).
func readBody(resp *http.Response) ([]byte, error) {
	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "text/event-stream") {
		return io.ReadAll(resp.Body)
	}

	var last []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		text := scanner.Text()
		if strings.HasPrefix(text, "data:") {
			last = []byte(strings.TrimSpace(strings.TrimPrefix(text, "data:")))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if last == nil {
		return nil, io.ErrUnexpectedEOF
	}
	return last, nil
}
