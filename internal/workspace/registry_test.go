package workspace

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/canteen-coders/canteen-client/internal/authclient"
	"github.com/canteen-coders/canteen-client/internal/cart"
	"github.com/canteen-coders/canteen-client/internal/guard"
	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/config"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/shopspring/decimal"
)

type fakeAuth struct {
	identities map[string]authclient.Identity
}

func (f *fakeAuth) Login(_ context.Context, creds authclient.Credentials) (*authclient.Identity, error) {
	identity, ok := f.identities[creds.Email]
	if !ok {
		return nil, errors.New("unknown user")
	}
	return &identity, nil
}

func (f *fakeAuth) Register(context.Context, authclient.Registration) error { return nil }

func newAuth() *fakeAuth {
	return &fakeAuth{identities: map[string]authclient.Identity{
		"a@school.edu": {Token: "tok-a", UserID: "A", Role: "CUSTOMER"},
		"b@school.edu": {Token: "tok-b", UserID: "B", Role: "CUSTOMER"},
		"v@school.edu": {Token: "tok-v", UserID: "V", Role: "VENDOR"},
	}}
}

func clientConfig() config.ClientConfig {
	return config.ClientConfig{
		CookieName:     "canteen_client",
		TTL:            time.Hour,
		SweepInterval:  10 * time.Millisecond,
		PrincipalScope: "session",
		CartScope:      "session",
	}
}

func newRegistry(t *testing.T, cfg config.ClientConfig, backends Backends, opts ...Option) *Registry {
	t.Helper()
	r, err := NewRegistry(cfg, backends, newAuth(), opts...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return r
}

func itemX() cart.Item {
	return cart.Item{ItemID: "x", Name: "Adobo", UnitPrice: decimal.NewFromInt(50)}
}

func TestIdentitySwitchScenario(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, clientConfig(), Backends{Session: kv.NewMemoryStore()})
	ws, err := r.Get(ctx, "client-1")
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if ws.Session.Pending() {
		t.Fatalf("workspace session should be resolved")
	}

	if res := ws.Session.Login(ctx, "a@school.edu", "pw"); !res.OK {
		t.Fatalf("login A: %+v", res)
	}
	if err := ws.Cart.AddItem(ctx, itemX()); err != nil {
		t.Fatalf("add: %v", err)
	}

	ws.Session.Logout(ctx)
	if ws.Cart.Count() != 0 {
		t.Fatalf("cart should be empty after logout")
	}

	ws.Session.Login(ctx, "b@school.edu", "pw")
	if ws.Cart.Count() != 0 {
		t.Fatalf("B should start with an empty cart, got %+v", ws.Cart.Lines())
	}

	ws.Session.Logout(ctx)
	ws.Session.Login(ctx, "a@school.edu", "pw")
	lines := ws.Cart.Lines()
	if len(lines) != 1 || lines[0].ItemID != "x" || lines[0].Quantity != 1 {
		t.Fatalf("A's cart not restored: %+v", lines)
	}
}

func TestReloadRestoresPrincipalAndCart(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	cfg := clientConfig()

	first := newRegistry(t, cfg, Backends{Session: backend})
	ws, _ := first.Get(ctx, "client-1")
	ws.Session.Login(ctx, "a@school.edu", "pw")
	_ = ws.Cart.AddItem(ctx, itemX())
	_ = ws.Cart.AddItem(ctx, itemX())

	second := newRegistry(t, cfg, Backends{Session: backend})
	restored, _ := second.Get(ctx, "client-1")
	if p := restored.Session.Principal(); p == nil || p.UserID != "A" {
		t.Fatalf("principal not restored: %+v", p)
	}
	if restored.Cart.Count() != 2 {
		t.Fatalf("cart not restored: %+v", restored.Cart.Lines())
	}

	other, _ := second.Get(ctx, "client-2")
	if other.Session.Principal() != nil || other.Cart.Count() != 0 {
		t.Fatalf("clients must not share session-scoped state")
	}
}

func TestDurableCartsFollowIdentityAcrossClients(t *testing.T) {
	ctx := context.Background()
	cfg := clientConfig()
	cfg.CartScope = "durable"
	r := newRegistry(t, cfg, Backends{Session: kv.NewMemoryStore(), Durable: kv.NewMemoryStore()})

	laptop, _ := r.Get(ctx, "laptop")
	laptop.Session.Login(ctx, "a@school.edu", "pw")
	_ = laptop.Cart.AddItem(ctx, itemX())

	phone, _ := r.Get(ctx, "phone")
	phone.Session.Login(ctx, "a@school.edu", "pw")
	if phone.Cart.Count() != 1 {
		t.Fatalf("durable cart should follow the identity, got %+v", phone.Cart.Lines())
	}
}

func TestNewRegistryRequiresDurableBackend(t *testing.T) {
	cfg := clientConfig()
	cfg.PrincipalScope = "durable"
	if _, err := NewRegistry(cfg, Backends{Session: kv.NewMemoryStore()}, newAuth()); err == nil {
		t.Fatalf("expected error without durable backend")
	}
	if _, err := NewRegistry(clientConfig(), Backends{}, newAuth()); err == nil {
		t.Fatalf("expected error without session backend")
	}
}

func TestGuardFollowsSession(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, clientConfig(), Backends{Session: kv.NewMemoryStore()})
	ws, _ := r.Get(ctx, "client-1")

	if got := ws.Guard.Check("/vendor/dashboard"); got != guard.Deny {
		t.Fatalf("anonymous vendor dashboard: %s", got)
	}
	ws.Session.Login(ctx, "v@school.edu", "pw")
	if got := ws.Guard.Check("/vendor/dashboard"); got != guard.Allow {
		t.Fatalf("vendor dashboard: %s", got)
	}
	if got := ws.Guard.Check("/cart"); got != guard.Deny {
		t.Fatalf("vendor cart: %s", got)
	}
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (brokenStore) Set(context.Context, string, string) error { return errors.New("connection refused") }
func (brokenStore) Remove(context.Context, string) error      { return errors.New("connection refused") }

func TestStorageFailureDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, clientConfig(), Backends{Session: brokenStore{}})
	ws, err := r.Get(ctx, "client-1")
	if err != nil {
		t.Fatalf("get workspace: %v", err)
	}
	if !ws.Degraded() {
		t.Fatalf("expected degraded workspace")
	}
	if ws.Session.Principal() != nil {
		t.Fatalf("unreadable storage must mean logged out")
	}

	ws.Session.Login(ctx, "a@school.edu", "pw")
	_ = ws.Cart.AddItem(ctx, itemX())
	if ws.Cart.Count() != 1 {
		t.Fatalf("cart should keep working in memory")
	}
	ws.Session.Logout(ctx)
	ws.Session.Login(ctx, "a@school.edu", "pw")
	if ws.Cart.Count() != 1 {
		t.Fatalf("in-memory cart should survive relogin within the workspace")
	}
}

func TestSweepRefreshesAndEvicts(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	r := newRegistry(t, clientConfig(), Backends{Session: backend}, WithClock(clock))

	ws, _ := r.Get(ctx, "client-1")
	other := newRegistry(t, clientConfig(), Backends{Session: backend})
	tab, _ := other.Get(ctx, "client-1")
	tab.Session.Login(ctx, "a@school.edu", "pw")

	r.Sweep(ctx)
	if p := ws.Session.Principal(); p == nil || p.UserID != "A" {
		t.Fatalf("sweep should pick up the external login, got %+v", p)
	}

	now = now.Add(2 * time.Hour)
	r.Sweep(ctx)
	if r.Len() != 0 {
		t.Fatalf("idle workspace should be evicted")
	}
	if _, ok := r.Lookup("client-1"); ok {
		t.Fatalf("evicted workspace still visible")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	r := newRegistry(t, clientConfig(), Backends{Session: kv.NewMemoryStore()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
}

func TestGetRejectsEmptyClientID(t *testing.T) {
	r := newRegistry(t, clientConfig(), Backends{Session: kv.NewMemoryStore()})
	if _, err := r.Get(context.Background(), " "); err == nil {
		t.Fatalf("expected error")
	}
}

var _ session.Authenticator = (*fakeAuth)(nil)

// stallingStore blocks reads for one client until release is closed.
type stallingStore struct {
	*kv.MemoryStore
	client  string
	entered chan struct{}
	release chan struct{}
}

func (s *stallingStore) Get(ctx context.Context, key string) (string, bool, error) {
	if strings.Contains(key, ":"+s.client+":") {
		select {
		case s.entered <- struct{}{}:
		default:
		}
		<-s.release
	}
	return s.MemoryStore.Get(ctx, key)
}

func TestSlowClientDoesNotBlockOthers(t *testing.T) {
	backend := &stallingStore{
		MemoryStore: kv.NewMemoryStore(),
		client:      "slow",
		entered:     make(chan struct{}, 1),
		release:     make(chan struct{}),
	}
	r := newRegistry(t, clientConfig(), Backends{Session: backend})

	slowDone := make(chan *Workspace)
	go func() {
		ws, _ := r.Get(context.Background(), "slow")
		slowDone <- ws
	}()
	<-backend.entered

	fastDone := make(chan struct{})
	go func() {
		defer close(fastDone)
		if _, err := r.Get(context.Background(), "fast"); err != nil {
			t.Errorf("get fast: %v", err)
		}
		r.Sweep(context.Background())
	}()
	select {
	case <-fastDone:
	case <-time.After(2 * time.Second):
		close(backend.release)
		t.Fatal("registry blocked behind a slow client")
	}

	close(backend.release)
	ws := <-slowDone
	if ws == nil || ws.Session.Pending() {
		t.Fatalf("slow workspace should resolve once storage answers")
	}
	if got, ok := r.Lookup("slow"); !ok || got != ws {
		t.Fatalf("expected the built workspace to be registered")
	}
	if r.Len() != 2 {
		t.Fatalf("expected 2 workspaces, got %d", r.Len())
	}
}
