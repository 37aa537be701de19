// Package transport implements the three wire protocols a backend may speak:
// stdio (newline-delimited JSON over a subprocess's pipes), streamable HTTP
// (a single POST per call, optionally answered with an SSE-framed body), and
// SSE (a GET that negotiates a message endpoint before falling back to the
// same POST exchange as streamable HTTP). Each is a distinct Transport
// implementation; internal/backend composes one per adapter and never
// branches on transport kind itself.
package transport

import (
	"context"
	"encoding/json"

	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

// clientInfo is advertised on every initialize handshake, across all three
// transports.
const (
	protocolVersion = "2024-11-05"
	clientName      = "mcp-gateway"
	clientVersion   = "1.0"
)

// StartResult reports the outcome of a transport's handshake.
type StartResult struct {
	// Initialized is true once the transport has a usable connection to the
	// backend per its own initialization semantics (spec §4.2-§4.4 — these
	// differ by transport: streamable HTTP marks itself initialized even when
	// the initialize handshake fails, while stdio requires a reply to
	// initialize and SSE requires both the message endpoint negotiation and
	// the initialize POST to succeed).
	Initialized bool
	// Tools is the cached tools/list reply obtained as part of start, or nil
	// if the backend didn't reply with a usable result.
	Tools *rpc.Response
}

// Transport is the contract every backend wire protocol implements.
// Adapters hold exactly one Transport and never call it concurrently from
// more than one goroutine — that serialization is the adapter's job, not
// the transport's.
type Transport interface {
	// Start performs whatever handshake this transport requires (spawning a
	// subprocess, negotiating a message endpoint, sending `initialize`) and,
	// on success, also attempts a tools/list fetch to seed the cache. It
	// does not block indefinitely: each transport applies its own bounded
	// timeout per spec §4.2-§4.4.
	Start(ctx context.Context) (StartResult, error)

	// Send dispatches a single JSON-RPC request and returns the reply (or a
	// best-effort synthetic response if a notification was sent). Errors
	// returned here are always *gwerrors.Error values so the caller can
	// render a wire-accurate JSON-RPC error; Send itself never panics on a
	// backend-side failure.
	Send(ctx context.Context, req *rpc.Request) (*rpc.Response, error)

	// Running reports liveness using the transport-appropriate definition:
	// for stdio, whether the child process is still alive; for HTTP/SSE,
	// whether the transport currently considers itself initialized. This
	// asymmetry matches the original gateway's is_running semantics and
	// drives both the idle-checker and the /health and gateway_list_servers
	// "running" field.
	Running() bool

	// RestartCount reports how many times this transport has respawned its
	// process after the first spawn (0 after the first Start, 1 after the
	// second). Always 0 for HTTP/SSE transports, which never restart a
	// process.
	RestartCount() int

	// Stop releases the transport's resources (kills the subprocess;
	// clears HTTP/SSE session state) and resets Running to false.
	Stop() error
}

func mustMarshal(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// v is always one of our own small literal structs; a marshal
		// failure here means a programming error, not a runtime condition.
		panic(err)
	}
	return raw
}

// initializeRequest builds the outbound `initialize` call every transport
// sends as its first message.
func initializeRequest() *rpc.Request {
	params := mustMarshal(map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
	})
	return &rpc.Request{
		JSONRPC: rpc.Version,
		Method:  "initialize",
		ID:      json.RawMessage(`1`),
		Params:  params,
	}
}

// toolsListRequest builds the outbound `tools/list` call used both to seed
// the cache at start and (for the caller) as the cache key's shape.
func toolsListRequest() *rpc.Request {
	return &rpc.Request{
		JSONRPC: rpc.Version,
		Method:  "tools/list",
		ID:      json.RawMessage(`2`),
	}
}

// rpcEncodeRequest serializes an outbound request to its wire bytes.
func rpcEncodeRequest(req *rpc.Request) ([]byte, error) {
	return json.Marshal(req)
}

// decodeResponse parses a single JSON-RPC response from raw bytes.
func decodeResponse(data []byte) (*rpc.Response, error) {
	var resp rpc.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// cacheable reports whether resp is a usable tools/list result worth
// caching: a successful reply with a result payload. An error reply (backend
// doesn't support tools/list, or errored) is never cached.
func cacheable(resp *rpc.Response) bool {
	return resp != nil && resp.Error == nil && resp.Result != nil
}
