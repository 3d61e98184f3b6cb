package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/canteen-coders/canteen-client/api/controllers"
	"github.com/canteen-coders/canteen-client/api/middleware"
	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/internal/workspace"
	"github.com/canteen-coders/canteen-client/pkg/config"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
)

// Deps are the collaborators the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *workspace.Registry
	Metrics  *metrics.ClientMetrics
	Gatherer prometheus.Gatherer
	Ready    map[string]controllers.Pinger
}

func NewRouter(deps Deps) http.Handler {
	cfg, logg := deps.Config, deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.Client.AllowedOrigins),
		chimw.StripSlashes,
	)

	notFound := func(w http.ResponseWriter, r *http.Request) {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "no such route"))
	}
	r.NotFound(notFound)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.Ready))
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.ClientWorkspace(deps.Registry, cfg.Client, logg))

		r.Route("/api/client", func(r chi.Router) {
			r.Route("/session", func(r chi.Router) {
				r.Get("/", controllers.SessionGet(logg))
				r.Post("/login", controllers.SessionLogin(logg))
				r.Post("/register", controllers.SessionRegister(logg))
				r.Post("/logout", controllers.SessionLogout(logg))
			})
			r.Route("/cart", func(r chi.Router) {
				r.Use(middleware.GuardAs("/cart", deps.Metrics, logg))

				r.Get("/", controllers.CartGet(logg))
				r.Delete("/", controllers.CartClear(logg))
				r.Post("/items", controllers.CartAddItem(logg))
				r.Put("/items/{itemId}", controllers.CartSetQuantity(logg))
				r.Delete("/items/{itemId}", controllers.CartRemoveItem(logg))
				r.Post("/checkout", controllers.CartCheckout(logg))
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RouteGuard(middleware.RolePolicy, deps.Metrics, logg))

			r.Get("/", controllers.Page(controllers.ViewLanding, logg))
			r.Get("/login", controllers.Page(controllers.ViewLogin, logg))
			r.Get("/register", controllers.Page(controllers.ViewRegister, logg))
			r.Get("/shops", controllers.Page(controllers.ViewShops, logg))
			r.Get("/shop/{shopId}/menu", controllers.Page(controllers.ViewShopMenu, logg))
			r.Get("/cart", controllers.Page(controllers.ViewCart, logg))

			r.Route("/vendor", func(r chi.Router) {
				r.Get("/dashboard", controllers.Page(controllers.ViewVendorDashboard, logg))
				r.Get("/orders", controllers.Page(controllers.ViewVendorOrders, logg))
				r.Get("/shop-management", controllers.Page(controllers.ViewShopManagement, logg))
			})
			r.Route("/admin", func(r chi.Router) {
				r.Get("/dashboard", controllers.Page(controllers.ViewAdminDashboard, logg))
				r.Get("/management", controllers.Page(controllers.ViewAdminManagement, logg))
				r.Get("/ledger", controllers.Page(controllers.ViewAdminLedger, logg))
			})
		})

		r.With(middleware.RouteGuard(middleware.SessionRequired, deps.Metrics, logg)).
			Get("/order-history", controllers.Page(controllers.ViewOrderHistory, logg))
	})

	return r
}
