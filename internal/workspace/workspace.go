// Package workspace composes the session, cart and guard of one browser
// client and keeps them alive for the client's lifetime.
package workspace

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/canteen-coders/canteen-client/internal/cart"
	"github.com/canteen-coders/canteen-client/internal/guard"
	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/kv"
)

// Workspace is the per-client state. Stores are built in dependency order:
// session, then cart, then guard.
type Workspace struct {
	ID      string
	Session *session.Store
	Cart    *cart.Store
	Guard   *guard.Guard

	store       *kv.Fallback
	unsubscribe func()

	mu       sync.Mutex
	lastSeen time.Time
}

// Degraded reports whether the workspace lost its storage backend.
func (w *Workspace) Degraded() bool {
	return w.store.Degraded()
}

func (w *Workspace) touch(now time.Time) {
	w.mu.Lock()
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *Workspace) idleSince(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	return now.Sub(w.lastSeen)
}

func (w *Workspace) close() {
	if w.unsubscribe != nil {
		w.unsubscribe()
	}
}

// build wires the stores over store and resolves the session.
func build(ctx context.Context, id string, store *kv.Fallback, auth session.Authenticator, sessOpts []session.Option, cartOpts []cart.Option) *Workspace {
	sess := session.New(store, auth, sessOpts...)
	c := cart.New(store, cartOpts...)
	unsubscribe := sess.Subscribe(func(ctx context.Context, p *session.Principal) {
		userID := ""
		if p != nil {
			userID = p.UserID
		}
		c.Sync(ctx, userID)
	})
	g := guard.New(sess)

	sess.Initialize(ctx)

	return &Workspace{
		ID:          id,
		Session:     sess,
		Cart:        c,
		Guard:       g,
		store:       store,
		unsubscribe: unsubscribe,
	}
}

// routed sends cart records to one backend and everything else to another, so
// a single fallback can cover the whole workspace.
type routed struct {
	principal kv.Store
	cart      kv.Store
}

func (r routed) pick(key string) kv.Store {
	if strings.HasPrefix(key, cart.KeyPrefix+":") {
		return r.cart
	}
	return r.principal
}

func (r routed) Get(ctx context.Context, key string) (string, bool, error) {
	return r.pick(key).Get(ctx, key)
}

func (r routed) Set(ctx context.Context, key, value string) error {
	return r.pick(key).Set(ctx, key, value)
}

func (r routed) Remove(ctx context.Context, key string) error {
	return r.pick(key).Remove(ctx, key)
}
