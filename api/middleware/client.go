package middleware

import (
	"context"
	"net/http"

	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/internal/workspace"
	"github.com/canteen-coders/canteen-client/pkg/config"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/google/uuid"
)

type workspaceSource interface {
	Get(ctx context.Context, clientID string) (*workspace.Workspace, error)
}

// ClientWorkspace identifies the browser client by cookie, issuing a new id
// when it is missing or malformed, and attaches its workspace to the request.
func ClientWorkspace(registry workspaceSource, cfg config.ClientConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := ""
			if cookie, err := r.Cookie(cfg.CookieName); err == nil {
				if id, err := uuid.Parse(cookie.Value); err == nil {
					clientID = id.String()
				}
			}
			if clientID == "" {
				clientID = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    clientID,
				Path:     "/",
				MaxAge:   int(cfg.TTL.Seconds()),
				HttpOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithClientID(ctx, clientID)
			}

			ws, err := registry.Get(ctx, clientID)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve client workspace"))
				return
			}

			if p := ws.Session.Principal(); p != nil && logg != nil {
				ctx = logg.WithUserID(ctx, p.UserID)
				ctx = logg.WithActorRole(ctx, string(p.Role))
			}

			next.ServeHTTP(w, r.WithContext(WithWorkspace(ctx, ws)))
		})
	}
}

// RequireWorkspace fetches the workspace or writes an internal error.
func RequireWorkspace(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (*workspace.Workspace, bool) {
	ws := WorkspaceFromContext(r.Context())
	if ws == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "client workspace missing"))
		return nil, false
	}
	return ws, true
}
