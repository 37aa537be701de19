// Package gwerrors gives the five abstract error kinds of the gateway's
// error-handling design (spec §7) concrete Go types, and maps them to the
// JSON-RPC wire error each produces. Grounded in the teacher's
// internal/errors ErrorCode-enum shape, adapted from a tool-execution error
// taxonomy to a transport/protocol one.
package gwerrors

import (
	"fmt"

	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

// Kind enumerates the five abstract error kinds from spec §7.
type Kind string

const (
	KindConfig    Kind = "config"
	KindProtocol  Kind = "protocol"
	KindTransport Kind = "transport"
	KindTimeout   Kind = "timeout"
	KindBackend   Kind = "backend"
)

// Error is a gateway error carrying enough context to render the JSON-RPC
// error object the spec requires at each call site.
type Error struct {
	Kind    Kind
	Message string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// RPCError renders this error as the wire Error object.
func (e *Error) RPCError() *rpc.Error {
	return &rpc.Error{Code: e.Code, Message: e.Message}
}

// Config reports a ConfigError (spec: backend missing a transport, invalid
// port, malformed config). Raised at startup only; never surfaced over the
// wire.
func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Message: fmt.Sprintf(format, args...)}
}

// Protocol reports malformed JSON or an unknown method from a client.
func Protocol(code int, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Transport reports a wire-level I/O failure talking to a backend. Always
// surfaced with code -32000 per spec §4.1/§7.
func Transport(format string, args ...any) *Error {
	return &Error{Kind: KindTransport, Code: rpc.CodeServerError, Message: fmt.Sprintf(format, args...)}
}

// Timeout reports a bounded wait that elapsed without reply.
func Timeout() *Error {
	return &Error{Kind: KindTimeout, Code: rpc.CodeServerError, Message: "Timeout waiting for response"}
}

// BackendUnavailable reports a failed backend start.
func BackendUnavailable(name string) *Error {
	return &Error{Kind: KindBackend, Code: rpc.CodeServerError, Message: fmt.Sprintf("Backend unavailable: %s", name)}
}

// UnknownBackend reports an unresolvable backend/server name.
func UnknownBackend(name string) *Error {
	return &Error{Kind: KindProtocol, Code: rpc.CodeUnknownBackend, Message: fmt.Sprintf("Unknown backend: %s", name)}
}
