// Package server wires the gateway's HTTP surface: per-backend fan-out at
// /mcp/{name}, the optional meta facade at /mcp, and a health endpoint.
// Routing is grounded on stacklok-toolhive's chi-based API routers, adapted
// from a resource-oriented REST tree to the two wildcard JSON-RPC routes
// spec §4.6 requires.
package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jonwraymond/mcp-gateway/internal/gwerrors"
	"github.com/jonwraymond/mcp-gateway/internal/metafacade"
	"github.com/jonwraymond/mcp-gateway/internal/observability"
	"github.com/jonwraymond/mcp-gateway/internal/registry"
	"github.com/jonwraymond/mcp-gateway/internal/rpc"
)

// Server is the gateway's HTTP entry point.
type Server struct {
	reg        *registry.Registry
	meta       *metafacade.Facade
	log        *slog.Logger
	metrics    *observability.Metrics
	enableMeta bool
}

// New builds a Server over reg. The meta facade is only reachable at /mcp
// when enableMeta is true; otherwise /mcp responds 403, per spec §4.6.
// metrics may be nil, in which case request/backend metrics are simply not
// recorded.
func New(reg *registry.Registry, log *slog.Logger, metrics *observability.Metrics, enableMeta bool) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		reg:        reg,
		meta:       metafacade.New(reg),
		log:        log,
		metrics:    metrics,
		enableMeta: enableMeta,
	}
}

// Router builds the chi mux serving /health, /metrics, /mcp, and /mcp/{name}.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.accessLog)

	r.Get("/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.HandleFunc("/mcp", s.handleMeta)
	r.HandleFunc("/mcp/*", s.handleBackend)
	return r
}

// handleHealth reports per-backend liveness without starting anything,
// per spec §4.6/§8 ("`GET /health` returns JSON `{status: "healthy",
// backends: {...}}`").
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	backends := make(map[string]any, len(s.reg.All()))
	for name, a := range s.reg.All() {
		running, restarts, cached := a.Running(), a.RestartCount(), a.ToolsCount()
		backends[name] = map[string]any{
			"running":       running,
			"restart_count": restarts,
			"tools_cached":  cached,
		}
		s.metrics.SetBackendState(name, running, restarts, cached)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "healthy", "backends": backends})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Handler().ServeHTTP(w, r)
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	if !s.enableMeta {
		http.Error(w, "meta facade disabled", http.StatusForbidden)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpc.NullID, rpc.CodeParseError, "failed to read request body")
		return
	}
	req, err := rpc.Decode(body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpc.NullID, rpc.CodeParseError, "invalid JSON-RPC request")
		return
	}

	resp := s.meta.Handle(r.Context(), req)
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleBackend(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" {
		// /mcp/ (trailing slash, empty tail) is the same meta facade
		// endpoint as /mcp, per spec §4.6.
		s.handleMeta(w, r)
		return
	}
	adapter, ok := s.reg.Get(name)
	if !ok {
		writeRPCErrorFromGW(w, http.StatusNotFound, rpc.NullID, gwerrors.UnknownBackend(name))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpc.NullID, rpc.CodeParseError, "failed to read request body")
		return
	}
	req, err := rpc.Decode(body)
	if err != nil {
		writeRPCError(w, http.StatusBadRequest, rpc.NullID, rpc.CodeParseError, "invalid JSON-RPC request")
		return
	}

	if err := adapter.Start(r.Context()); err != nil {
		writeRPCErrorFromGW(w, http.StatusServiceUnavailable, req.ID, err)
		return
	}

	resp, err := adapter.Send(r.Context(), req)
	if err != nil {
		writeRPCErrorFromGW(w, http.StatusOK, req.ID, err)
		return
	}
	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeRPCErrorFromGW(w http.ResponseWriter, status int, id json.RawMessage, err error) {
	if gwErr, ok := err.(*gwerrors.Error); ok {
		writeRPCError(w, status, id, gwErr.Code, gwErr.Message)
		return
	}
	writeRPCError(w, status, id, rpc.CodeServerError, err.Error())
}

func writeRPCError(w http.ResponseWriter, status int, id json.RawMessage, code int, message string) {
	writeJSON(w, status, rpc.NewError(id, code, message))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusRecorder captures the status code written through it so access
// logging and metrics can report it after the handler runs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// accessLog logs one structured line per request with a correlation id and
// records request metrics, grounded on the teacher's
// internal/middleware/logging.go pattern adapted from a tool-provider
// wrapper to plain HTTP middleware.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		start := time.Now()
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		s.log.Info("request started", "request_id", reqID, "method", r.Method, "path", r.URL.Path)
		next.ServeHTTP(sr, r)
		duration := time.Since(start)

		s.log.Info("request finished", "request_id", reqID, "method", r.Method,
			"path", r.URL.Path, "status", sr.status, "duration_ms", duration.Milliseconds())
		s.metrics.RecordRequest(r.URL.Path, http.StatusText(sr.status), duration)
	})
}
