// Package registry builds the set of backend adapters from configuration
// and supervises their lifetime: periodic idle hibernation and an orderly
// shutdown. Grounded on the teacher's internal/backend/loader.LoadFromConfig
// for construction and its manager's idle-ticker pattern for supervision,
// adapted from the MCP SDK's connection manager to this gateway's own
// Adapter type.
package registry

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonwraymond/mcp-gateway/internal/backend"
	"github.com/jonwraymond/mcp-gateway/internal/config"
)

// idleCheckInterval is the cadence at which the registry looks for
// backends that have been quiet past their configured idle_timeout, per
// spec §4.5.
const idleCheckInterval = 60 * time.Second

// Registry holds one Adapter per enabled backend, built once at startup.
type Registry struct {
	backends map[string]*backend.Adapter
	log      *slog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New constructs a Registry from a validated GatewayConfig, instantiating
// one adapter per enabled backend. Disabled backends are omitted entirely,
// matching get_enabled_backends() in the original gateway.
func New(cfg config.GatewayConfig, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	enabled := cfg.EnabledBackends()
	backends := make(map[string]*backend.Adapter, len(enabled))
	for name, bc := range enabled {
		backends[name] = backend.New(bc)
	}
	return &Registry{backends: backends, log: log}
}

// NewFromAdapters builds a Registry directly from a pre-built adapter map,
// bypassing config-driven construction. Exported so other packages' tests
// can exercise registry-dependent code (the meta facade, the router)
// against adapters wired to fake transports.
func NewFromAdapters(backends map[string]*backend.Adapter, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{backends: backends, log: log}
}

// Get returns the adapter for name, or nil with ok=false if name is not a
// configured, enabled backend.
func (r *Registry) Get(name string) (*backend.Adapter, bool) {
	a, ok := r.backends[name]
	return a, ok
}

// Names returns the configured backend names in sorted order, used by the
// meta facade's gateway_list_servers and gateway_search_tools so iteration
// order is deterministic (the latter's limit short-circuit depends on it).
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every adapter keyed by name.
func (r *Registry) All() map[string]*backend.Adapter {
	return r.backends
}

// Run starts the idle-checker loop and blocks until ctx is canceled or
// Shutdown is called, whichever happens first.
func (r *Registry) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	defer close(r.done)

	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.checkIdle()
		}
	}
}

// checkIdle stops every backend whose idle time has exceeded its
// configured idle_timeout, per spec §4.5's hibernation invariant.
func (r *Registry) checkIdle() {
	for name, a := range r.backends {
		if !a.Running() {
			continue
		}
		// idle_timeout of 0 means "hibernate on the first tick after any
		// request" rather than "never hibernate" — it is not a disable
		// switch, per spec §8.
		timeout := time.Duration(a.Config.IdleTimeout * float64(time.Second))
		if timeout > 0 && a.IdleFor() <= timeout {
			continue
		}
		r.log.Info("hibernating idle backend", "backend", name, "idle_timeout", timeout)
		if err := a.Stop(); err != nil {
			r.log.Warn("hibernate failed", "backend", name, "error", err)
		}
	}
}

// Shutdown stops the idle-checker loop (if running) and stops every
// backend's transport, releasing subprocesses and HTTP session state.
func (r *Registry) Shutdown() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
			<-r.done
		}
		for name, a := range r.backends {
			if err := a.Stop(); err != nil {
				r.log.Warn("shutdown stop failed", "backend", name, "error", err)
			}
		}
	})
}
