package middleware

import (
	"net/http"

	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/internal/guard"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/canteen-coders/canteen-client/pkg/metrics"
)

// LoadingView is rendered while the session is still resolving.
const LoadingView = "loading"

// GuardMode selects which guard check a page route applies.
type GuardMode int

const (
	// RolePolicy applies the per-role allow lists.
	RolePolicy GuardMode = iota
	// SessionRequired additionally redirects anonymous clients to login.
	SessionRequired
)

// RouteGuard runs the client's route guard before a page handler.
func RouteGuard(mode GuardMode, m *metrics.ClientMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return guardWith(mode, nil, m, logg)
}

// GuardAs applies the role policy of page to an API route, so data behind a
// page is only reachable by principals allowed to view it.
func GuardAs(page string, m *metrics.ClientMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return guardWith(RolePolicy, func(*http.Request) string { return page }, m, logg)
}

func guardWith(mode GuardMode, pathOf func(*http.Request) string, m *metrics.ClientMetrics, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ws, ok := RequireWorkspace(w, r, logg)
			if !ok {
				return
			}

			path := r.URL.Path
			if pathOf != nil {
				path = pathOf(r)
			}
			var decision guard.Decision
			if mode == SessionRequired {
				decision = ws.Guard.RequireSession(path)
			} else {
				decision = ws.Guard.Check(path)
			}
			m.IncGuardDecision(decision.String())

			switch decision {
			case guard.Allow:
				next.ServeHTTP(w, r)
			case guard.Pending:
				responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]string{"view": LoadingView})
			case guard.Redirect:
				http.Redirect(w, r, guard.LoginPath, http.StatusSeeOther)
			default:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "route denied"))
			}
		})
	}
}
