package controllers

import (
	"net/http"

	"github.com/canteen-coders/canteen-client/api/middleware"
	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/api/validators"
	"github.com/canteen-coders/canteen-client/internal/guard"
	"github.com/canteen-coders/canteen-client/internal/session"
	"github.com/canteen-coders/canteen-client/pkg/enums"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/logger"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	From     string `json:"from" validate:"omitempty,max=256"`
}

type loginResponse struct {
	Role     enums.Role         `json:"role"`
	Redirect string             `json:"redirect"`
	User     *session.Principal `json:"user"`
}

type registerRequest struct {
	FirstName   string `json:"firstName" validate:"required,notblank,max=100"`
	LastName    string `json:"lastName" validate:"required,notblank,max=100"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=6"`
	PhoneNumber string `json:"phoneNumber" validate:"required,notblank,max=32"`
}

type sessionResponse struct {
	Pending   bool               `json:"pending"`
	Principal *session.Principal `json:"principal"`
}

// SessionGet reports the current principal of the client.
func SessionGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, sessionResponse{
			Pending:   ws.Session.Pending(),
			Principal: ws.Session.Principal(),
		})
	}
}

// SessionLogin authenticates the client and returns where to go next.
func SessionLogin(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}

		var body loginRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := ws.Session.Login(r.Context(), body.Email, body.Password)
		if !result.OK {
			code := pkgerrors.CodeUnauthorized
			if result.Unavailable {
				code = pkgerrors.CodeDependency
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(code, result.Message))
			return
		}

		responses.WriteSuccess(w, loginResponse{
			Role:     result.Role,
			Redirect: guard.LandingPath(result.Role, body.From),
			User:     ws.Session.Principal(),
		})
	}
}

// SessionRegister creates an account; the client still has to log in.
func SessionRegister(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}

		var body registerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result := ws.Session.Register(r.Context(), body.FirstName, body.LastName, body.Email, body.Password, body.PhoneNumber)
		if !result.OK {
			code := pkgerrors.CodeValidation
			if result.Unavailable {
				code = pkgerrors.CodeDependency
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(code, result.Message))
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]string{"redirect": guard.LoginPath})
	}
}

// SessionLogout clears the principal; the cart store follows.
func SessionLogout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		ws.Session.Logout(r.Context())
		responses.WriteSuccess(w, sessionResponse{Pending: false, Principal: nil})
	}
}
