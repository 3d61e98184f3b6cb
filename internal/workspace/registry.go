package workspace

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/canteen-coders/canteen-client/internal/cart"
	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/config"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
)

// KeyNamespace prefixes every key the workspaces write.
const KeyNamespace = "canteen"

// Backends are the shared stores workspaces are carved from. Durable may be
// nil when no record family is configured for it.
type Backends struct {
	Session kv.Store
	Durable kv.Store
}

// Registry owns the live workspaces keyed by client id.
type Registry struct {
	cfg      config.ClientConfig
	backends Backends
	auth     session.Authenticator
	logg     *logger.Logger
	metrics  *metrics.ClientMetrics
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*Workspace
}

// Option configures optional registry behavior.
type Option func(*Registry)

func WithLogger(logg *logger.Logger) Option {
	return func(r *Registry) { r.logg = logg }
}

func WithMetrics(m *metrics.ClientMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRegistry validates that the configured scopes have a backend.
func NewRegistry(cfg config.ClientConfig, backends Backends, auth session.Authenticator, opts ...Option) (*Registry, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator required")
	}
	if backends.Session == nil {
		return nil, fmt.Errorf("session backend required")
	}
	if cfg.UsesDurable() && backends.Durable == nil {
		return nil, fmt.Errorf("durable backend required for configured scopes")
	}

	r := &Registry{
		cfg:        cfg,
		backends:   backends,
		auth:       auth,
		now:        time.Now,
		workspaces: make(map[string]*Workspace),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logg == nil {
		r.logg = logger.Nop()
	}
	return r, nil
}

// Get returns the workspace of clientID, building and initializing it on
// first use. Building reads storage, so it runs outside the registry lock; a
// concurrent first request for the same client keeps whichever copy landed
// first.
func (r *Registry) Get(ctx context.Context, clientID string) (*Workspace, error) {
	clientID = strings.TrimSpace(clientID)
	if clientID == "" {
		return nil, fmt.Errorf("client id required")
	}
	if ws, ok := r.existing(clientID); ok {
		return ws, nil
	}

	ctx = r.logg.WithClientID(ctx, clientID)
	built := build(ctx, clientID, r.storeFor(ctx, clientID), r.auth,
		[]session.Option{session.WithLogger(r.logg), session.WithMetrics(r.metrics), session.WithClock(r.now)},
		[]cart.Option{cart.WithLogger(r.logg), cart.WithMetrics(r.metrics)},
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	if ws, ok := r.workspaces[clientID]; ok {
		built.close()
		ws.touch(r.now())
		return ws, nil
	}
	built.touch(r.now())
	r.workspaces[clientID] = built
	r.metrics.SetWorkspaces(len(r.workspaces))
	r.logg.Debug(ctx, "workspace created")
	return built, nil
}

func (r *Registry) existing(clientID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[clientID]
	if ok {
		ws.touch(r.now())
	}
	return ws, ok
}

// Lookup returns an existing workspace without creating one.
func (r *Registry) Lookup(clientID string) (*Workspace, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ws, ok := r.workspaces[clientID]
	return ws, ok
}

// Len is the number of live workspaces.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workspaces)
}

// Sweep evicts workspaces idle for longer than the client TTL and refreshes
// the session of the rest from storage.
func (r *Registry) Sweep(ctx context.Context) {
	now := r.now()

	r.mu.Lock()
	live := make([]*Workspace, 0, len(r.workspaces))
	for id, ws := range r.workspaces {
		if ws.idleSince(now) > r.cfg.TTL {
			ws.close()
			delete(r.workspaces, id)
			r.logg.Debug(r.logg.WithClientID(ctx, id), "workspace evicted")
			continue
		}
		live = append(live, ws)
	}
	r.metrics.SetWorkspaces(len(r.workspaces))
	r.mu.Unlock()

	for _, ws := range live {
		ws.Session.Refresh(r.logg.WithClientID(ctx, ws.ID))
	}
}

// Run sweeps on the configured interval until ctx is done. A non-positive
// interval disables sweeping.
func (r *Registry) Run(ctx context.Context) error {
	if r.cfg.SweepInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

func (r *Registry) storeFor(ctx context.Context, clientID string) *kv.Fallback {
	perClient := func(scope kv.Scope) kv.Store {
		return kv.Namespaced(r.backend(scope), KeyNamespace, "client", clientID)
	}

	carts := perClient(kv.ScopeSession)
	if r.cfg.CartStorageScope() == kv.ScopeDurable {
		carts = kv.Namespaced(r.backends.Durable, KeyNamespace)
	}

	store := routed{
		principal: perClient(r.cfg.PrincipalStorageScope()),
		cart:      carts,
	}
	return kv.NewFallback(store, func(op string, err error) {
		r.metrics.IncStoreDegraded(op)
		r.logg.Error(ctx, "storage unavailable, workspace continues in memory", err)
	})
}

func (r *Registry) backend(scope kv.Scope) kv.Store {
	if scope == kv.ScopeDurable {
		return r.backends.Durable
	}
	return r.backends.Session
}
