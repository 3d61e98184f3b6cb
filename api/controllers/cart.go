package controllers

import (
	"net/http"
	"strings"

	"github.com/canteen-coders/canteen-client/api/middleware"
	"github.com/canteen-coders/canteen-client/api/responses"
	"github.com/canteen-coders/canteen-client/api/validators"
	"github.com/canteen-coders/canteen-client/internal/cart"
	"github.com/canteen-coders/canteen-client/internal/workspace"
	"github.com/canteen-coders/canteen-client/pkg/enums"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/canteen-coders/canteen-client/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type addItemRequest struct {
	ItemID    string          `json:"itemId" validate:"required,notblank,max=64"`
	Name      string          `json:"name" validate:"required,max=200"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Category  string          `json:"category" validate:"max=100"`
	ImageURL  string          `json:"imageUrl" validate:"omitempty,url"`
	ShopID    string          `json:"shopId" validate:"max=64"`
}

type setQuantityRequest struct {
	Quantity *int `json:"quantity" validate:"required"`
}

type checkoutRequest struct {
	PickupTime          string `json:"pickupTime" validate:"required,notblank,max=64"`
	PaymentMethod       string `json:"paymentMethod" validate:"required,payment_method"`
	SpecialInstructions string `json:"specialInstructions" validate:"max=500"`
}

type cartResponse struct {
	Lines []cart.Line     `json:"lines"`
	Count int             `json:"count"`
	Total decimal.Decimal `json:"total"`
}

func snapshot(ws *workspace.Workspace) cartResponse {
	return cartResponse{
		Lines: ws.Cart.Lines(),
		Count: ws.Cart.Count(),
		Total: ws.Cart.Total(),
	}
}

// CartGet returns the lines and aggregates of the active cart.
func CartGet(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		responses.WriteSuccess(w, snapshot(ws))
	}
}

func CartAddItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}

		var body addItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		err := ws.Cart.AddItem(r.Context(), cart.Item{
			ItemID:    body.ItemID,
			Name:      body.Name,
			UnitPrice: body.UnitPrice,
			Category:  body.Category,
			ImageURL:  body.ImageURL,
			ShopID:    body.ShopID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot(ws))
	}
}

func CartSetQuantity(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body setQuantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ws.Cart.SetQuantity(r.Context(), itemID, *body.Quantity)
		responses.WriteSuccess(w, snapshot(ws))
	}
}

func CartRemoveItem(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		itemID, err := itemIDParam(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ws.Cart.RemoveItem(r.Context(), itemID)
		responses.WriteSuccess(w, snapshot(ws))
	}
}

func CartClear(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}
		ws.Cart.Clear(r.Context())
		responses.WriteSuccess(w, snapshot(ws))
	}
}

// CartCheckout confirms the order locally and empties the cart.
func CartCheckout(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, ok := middleware.RequireWorkspace(w, r, logg)
		if !ok {
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		confirmation, err := ws.Cart.Checkout(r.Context(), cart.CheckoutRequest{
			PickupTime:          body.PickupTime,
			PaymentMethod:       enums.PaymentMethod(body.PaymentMethod),
			SpecialInstructions: body.SpecialInstructions,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, confirmation)
	}
}

func itemIDParam(r *http.Request) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "itemId"))
	if id == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "itemId is required")
	}
	return id, nil
}
