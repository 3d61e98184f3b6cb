package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/canteen-coders/canteen-client/api/controllers"
	"github.com/canteen-coders/canteen-client/internal/authclient"
	"github.com/canteen-coders/canteen-client/internal/workspace"
	"github.com/canteen-coders/canteen-client/pkg/config"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/kv"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type stubAuth struct{}

func (stubAuth) Login(_ context.Context, creds authclient.Credentials) (*authclient.Identity, error) {
	switch creds.Email {
	case "a@school.edu":
		return &authclient.Identity{Token: "tok-a", UserID: "A", Role: "CUSTOMER"}, nil
	case "b@school.edu":
		return &authclient.Identity{Token: "tok-b", UserID: "B", Role: "CUSTOMER"}, nil
	case "v@school.edu":
		return &authclient.Identity{Token: "tok-v", UserID: "V", Role: "VENDOR"}, nil
	case "down@school.edu":
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "auth service error")
	}
	return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "")
}

func (stubAuth) Register(context.Context, authclient.Registration) error { return nil }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "dev"},
		Client: config.ClientConfig{
			CookieName:     "canteen_client",
			TTL:            time.Hour,
			PrincipalScope: "session",
			CartScope:      "session",
		},
	}
}

type client struct {
	t       *testing.T
	handler http.Handler
	cookie  *http.Cookie
}

func newClient(t *testing.T, ready map[string]controllers.Pinger) *client {
	t.Helper()
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	m := metrics.NewClientMetrics(reg)
	registry, err := workspace.NewRegistry(cfg.Client, workspace.Backends{Session: kv.NewMemoryStore()}, stubAuth{}, workspace.WithMetrics(m))
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return &client{t: t, handler: NewRouter(Deps{
		Config:   cfg,
		Registry: registry,
		Metrics:  m,
		Gatherer: reg,
		Ready:    ready,
	})}
}

func (c *client) do(method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	c.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, req)
	for _, ck := range w.Result().Cookies() {
		if ck.Name == "canteen_client" {
			c.cookie = ck
		}
	}
	var decoded map[string]any
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(w.Body.Bytes(), &decoded)
	}
	return w, decoded
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("missing data envelope in %v", body)
	}
	return d
}

func TestHealthEndpoints(t *testing.T) {
	c := newClient(t, map[string]controllers.Pinger{"redis": stubPinger{}})
	if w, _ := c.do(http.MethodGet, "/health/live", ""); w.Code != http.StatusOK {
		t.Fatalf("live: %d", w.Code)
	}
	if w, _ := c.do(http.MethodGet, "/health/ready", ""); w.Code != http.StatusOK {
		t.Fatalf("ready: %d", w.Code)
	}

	down := newClient(t, map[string]controllers.Pinger{"redis": stubPinger{err: errors.New("refused")}})
	if w, _ := down.do(http.MethodGet, "/health/ready", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("ready with failing dependency: %d", w.Code)
	}
}

func TestGuardedPages(t *testing.T) {
	c := newClient(t, nil)

	if w, _ := c.do(http.MethodGet, "/vendor/dashboard", ""); w.Code != http.StatusNotFound {
		t.Fatalf("anonymous vendor dashboard: %d", w.Code)
	}
	w, body := c.do(http.MethodGet, "/shops/", "")
	if w.Code != http.StatusOK || data(t, body)["view"] != controllers.ViewShops {
		t.Fatalf("anonymous shops: %d %v", w.Code, body)
	}
	if w, _ := c.do(http.MethodGet, "/order-history", ""); w.Code != http.StatusSeeOther {
		t.Fatalf("anonymous order history should redirect, got %d", w.Code)
	}

	c.do(http.MethodPost, "/api/client/session/login", `{"email":"a@school.edu","password":"pw"}`)
	if w, _ := c.do(http.MethodGet, "/admin/dashboard", ""); w.Code != http.StatusNotFound {
		t.Fatalf("customer admin dashboard: %d", w.Code)
	}
	w, body = c.do(http.MethodGet, "/shop/42/menu", "")
	d := data(t, body)
	if w.Code != http.StatusOK || d["view"] != controllers.ViewShopMenu {
		t.Fatalf("customer shop menu: %d %v", w.Code, body)
	}
	if params, _ := d["params"].(map[string]any); params["shopId"] != "42" {
		t.Fatalf("expected shopId param, got %v", d["params"])
	}
	if w, _ := c.do(http.MethodGet, "/order-history", ""); w.Code != http.StatusOK {
		t.Fatalf("customer order history: %d", w.Code)
	}

	mw, _ := c.do(http.MethodGet, "/metrics", "")
	if !strings.Contains(mw.Body.String(), `guard_decisions_total{decision="deny"}`) {
		t.Fatalf("expected guard metrics, got %s", mw.Body.String())
	}
}

func TestLoginResponses(t *testing.T) {
	c := newClient(t, nil)

	w, body := c.do(http.MethodPost, "/api/client/session/login", `{"email":"v@school.edu","password":"pw"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d %v", w.Code, body)
	}
	d := data(t, body)
	if d["role"] != "VENDOR" || d["redirect"] != "/vendor/dashboard" {
		t.Fatalf("unexpected login payload %v", d)
	}

	w, body = c.do(http.MethodPost, "/api/client/session/login", `{"email":"x@school.edu","password":"pw"}`)
	errBody, _ := body["error"].(map[string]any)
	if w.Code != http.StatusUnauthorized || errBody["message"] != "Login failed" {
		t.Fatalf("rejected login: %d %v", w.Code, body)
	}

	w, body = c.do(http.MethodPost, "/api/client/session/login", `{"email":"down@school.edu","password":"pw"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("unavailable login: %d %v", w.Code, body)
	}

	if w, _ := c.do(http.MethodPost, "/api/client/session/login", `{"email":"not-an-email"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid body: %d", w.Code)
	}
}

func TestCartFlowAcrossIdentities(t *testing.T) {
	c := newClient(t, nil)
	adobo := `{"itemId":"x","name":"Adobo","unitPrice":"50"}`

	c.do(http.MethodPost, "/api/client/session/login", `{"email":"a@school.edu","password":"pw"}`)
	c.do(http.MethodPost, "/api/client/cart/items", adobo)
	c.do(http.MethodPost, "/api/client/cart/items", adobo)
	_, body := c.do(http.MethodPost, "/api/client/cart/items", `{"itemId":"y","name":"Rice","unitPrice":30}`)
	d := data(t, body)
	if d["count"] != float64(3) || d["total"] != "130" {
		t.Fatalf("unexpected cart %v", d)
	}

	_, body = c.do(http.MethodPut, "/api/client/cart/items/y", `{"quantity":0}`)
	if d := data(t, body); d["count"] != float64(2) {
		t.Fatalf("set quantity 0 should remove: %v", d)
	}

	c.do(http.MethodPost, "/api/client/session/logout", "")
	c.do(http.MethodPost, "/api/client/session/login", `{"email":"b@school.edu","password":"pw"}`)
	if _, body := c.do(http.MethodGet, "/api/client/cart", ""); data(t, body)["count"] != float64(0) {
		t.Fatalf("B should have an empty cart: %v", body)
	}

	c.do(http.MethodPost, "/api/client/session/logout", "")
	c.do(http.MethodPost, "/api/client/session/login", `{"email":"a@school.edu","password":"pw"}`)
	if _, body := c.do(http.MethodGet, "/api/client/cart", ""); data(t, body)["count"] != float64(2) {
		t.Fatalf("A's cart should be restored: %v", body)
	}

	w, body := c.do(http.MethodPost, "/api/client/cart/checkout", `{"pickupTime":"12:30 PM","paymentMethod":"Maya"}`)
	if w.Code != http.StatusCreated || data(t, body)["total"] != "100" {
		t.Fatalf("checkout: %d %v", w.Code, body)
	}
	w, body = c.do(http.MethodPost, "/api/client/cart/checkout", `{"pickupTime":"12:30 PM","paymentMethod":"Maya"}`)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("checkout of empty cart: %d %v", w.Code, body)
	}
	if w, _ := c.do(http.MethodPost, "/api/client/cart/checkout", `{"pickupTime":"12:30 PM","paymentMethod":"Bitcoin"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid payment method: %d", w.Code)
	}
}

func TestSessionEndpoint(t *testing.T) {
	c := newClient(t, nil)
	_, body := c.do(http.MethodGet, "/api/client/session", "")
	d := data(t, body)
	if d["pending"] != false || d["principal"] != nil {
		t.Fatalf("unexpected anonymous session %v", d)
	}

	if w, _ := c.do(http.MethodPost, "/api/client/session/register", `{"firstName":"Ana","lastName":"Cruz","email":"ana@school.edu","password":"secret1","phoneNumber":"0917"}`); w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}
	_, body = c.do(http.MethodGet, "/api/client/session", "")
	if data(t, body)["principal"] != nil {
		t.Fatalf("register must not log in")
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	c := newClient(t, nil)
	w, body := c.do(http.MethodGet, "/nowhere", "")
	errBody, _ := body["error"].(map[string]any)
	if w.Code != http.StatusNotFound || errBody["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected response %d %v", w.Code, body)
	}
}

func TestCartAPIHiddenFromNonCustomers(t *testing.T) {
	c := newClient(t, nil)
	c.do(http.MethodPost, "/api/client/session/login", `{"email":"v@school.edu","password":"pw"}`)

	if w, _ := c.do(http.MethodPost, "/api/client/cart/items", `{"itemId":"x","name":"Adobo","unitPrice":"50"}`); w.Code != http.StatusNotFound {
		t.Fatalf("vendor add item: %d", w.Code)
	}
	w, body := c.do(http.MethodPost, "/api/client/cart/checkout", `{"pickupTime":"12:30 PM","paymentMethod":"Cash"}`)
	errBody, _ := body["error"].(map[string]any)
	if w.Code != http.StatusNotFound || errBody["code"] != "NOT_FOUND" {
		t.Fatalf("vendor checkout: %d %v", w.Code, body)
	}

	anon := newClient(t, nil)
	if w, _ := anon.do(http.MethodGet, "/api/client/cart", ""); w.Code != http.StatusOK {
		t.Fatalf("anonymous cart read: %d", w.Code)
	}
}
