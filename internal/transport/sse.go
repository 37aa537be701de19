package transport

import (
	"bufio"
	"bytes"
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/mcp-gateway/internal/config"
	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

const sseNegotiateTimeout = 10 * time.Second

// SSE speaks the legacy two-leg MCP transport: a GET to the configured
// /sse endpoint streams a one-line `data: ...` event naming the POST
// endpoint subsequent calls must use; once negotiated, every call is a
// streamable-HTTP-style POST to that message URL.
//
// Unlike Streamable, a failed negotiation here is not swallowed: if the
// gateway never sees a usable message endpoint, the backend is left
// uninitialized and start fails outright (spec §4.4/§9).
type SSE struct {
	cfg    config.BackendConfig
	client *http.Client

	messageURL atomic.Value // string
}

func NewSSE(cfg config.BackendConfig) *SSE {
	return &SSE{cfg: cfg, client: &http.Client{}}
}

func (s *SSE) Running() bool {
	url, _ := s.messageURL.Load().(string)
	return url != ""
}

func (s *SSE) RestartCount() int { return 0 }

func (s *SSE) Start(ctx context.Context) (StartResult, error) {
	ctx, cancel := context.WithTimeout(ctx, sseNegotiateTimeout)
	defer cancel()

	msgURL, err := s.negotiate(ctx)
	if err != nil {
		return StartResult{}, err
	}
	s.messageURL.Store(msgURL)

	if _, err := s.post(ctx, msgURL, initializeRequest()); err != nil {
		s.messageURL.Store("")
		return StartResult{}, err
	}

	result := StartResult{Initialized: true}
	toolsCtx, toolsCancel := context.WithTimeout(context.Background(), sseNegotiateTimeout)
	defer toolsCancel()
	if resp, err := s.post(toolsCtx, msgURL, toolsListRequest()); err == nil && cacheable(resp) {
		result.Tools = resp
	}
	return result, nil
}

// negotiate opens the SSE stream and reads lines until one carries a
// `data: ` event naming a path that looks like a message endpoint
// (containing "/message"), deriving the full URL from the configured
// HTTPURL's base.
func (s *SSE) negotiate(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.HTTPURL, nil)
	if err != nil {
		return "", gwerrors.Transport("backend %q: build sse request: %v", s.cfg.Name, err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range s.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", gwerrors.Transport("backend %q: sse connect: %v", s.cfg.Name, err)
	}
	defer resp.Body.Close()

	base := strings.TrimSuffix(s.cfg.HTTPURL, "/sse")

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		text := scanner.Text()
		if !strings.HasPrefix(text, "data:") {
			continue
		}
		path := strings.TrimSpace(strings.TrimPrefix(text, "data:"))
		if !strings.Contains(path, "/message") {
			continue
		}
		if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
			return path, nil
		}
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		return base + path, nil
	}
	if err := scanner.Err(); err != nil {
		return "", gwerrors.Transport("backend %q: sse negotiate: %v", s.cfg.Name, err)
	}
	return "", gwerrors.Transport("backend %q: sse stream closed before a message endpoint was announced", s.cfg.Name)
}

func (s *SSE) Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error) {
	msgURL, _ := s.messageURL.Load().(string)
	if req.IsNotification() {
		ctx, cancel := context.WithTimeout(ctx, streamableRequestTimeout)
		defer cancel()
		_, _ = s.post(ctx, msgURL, req)
		return &rpc.Response{JSONRPC: rpc.Version, ID: rpc.NullID, Result: mustMarshal(nil)}, nil
	}
	ctx, cancel := context.WithTimeout(ctx, streamableRequestTimeout)
	defer cancel()
	resp, err := s.post(ctx, msgURL, req)
	if err != nil {
		return nil, err
	}
	return resp.WithID(req.ID), nil
}

func (s *SSE) Stop() error {
	s.messageURL.Store("")
	return nil
}

// post mirrors Streamable.post but targets the negotiated message URL rather
// than the configured HTTPURL, since SSE's initial endpoint is GET-only.
func (s *SSE) post(ctx context.Context, url string, req *rpc.Request) (*rpc.Response, error) {
	body, err := rpcEncodeRequest(req)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: encode request: %v", s.cfg.Name, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, gwerrors.Transport("backend %q: build request: %v", s.cfg.Name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: %v", s.cfg.Name, err)
	}
	defer httpResp.Body.Close()

	data, err := readBody(httpResp)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: read reply: %v", s.cfg.Name, err)
	}
	resp, err := decodeResponse(data)
	if err != nil {
		return nil, gwerrors.Transport("backend %q: malformed reply: %v", s.cfg.Name, err)
	}
	return resp, nil
}
