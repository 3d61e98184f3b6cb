package controllers

import (
	"net/http"

	"github.com/canteen-coders/canteen-client/api/middleware"
	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// View names returned by the page routes.
const (
	ViewLanding         = "landing"
	ViewLogin           = "login"
	ViewRegister        = "register"
	ViewShops           = "shops"
	ViewShopMenu        = "shop-menu"
	ViewCart            = "cart"
	ViewOrderHistory    = "order-history"
	ViewVendorDashboard = "vendor-dashboard"
	ViewVendorOrders    = "vendor-orders"
	ViewShopManagement  = "shop-management"
	ViewAdminDashboard  = "admin-dashboard"
	ViewAdminManagement = "admin-management"
	ViewAdminLedger     = "admin-ledger"
)

type pageResponse struct {
	View      string             `json:"view"`
	Path      string             `json:"path"`
	Params    map[string]string  `json:"params,omitempty"`
	Principal *session.Principal `json:"principal"`
	CartCount int                `json:"cartCount"`
}

// Page renders the descriptor of an allowed view.
func Page(view string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}

		resp := pageResponse{
			View:      view,
			Path:      r.URL.Path,
			Principal: ws.Session.Principal(),
			CartCount: ws.Cart.Count(),
		}
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			for i, key := range rctx.URLParams.Keys {
				// Mounted sub-routers record their remainder under "*".
				if key == "*" {
					continue
				}
				if resp.Params == nil {
					resp.Params = make(map[string]string, len(rctx.URLParams.Keys))
				}
				resp.Params[key] = rctx.URLParams.Values[i]
			}
		}
		responses.WriteSuccess(w, resp)
	}
}
