package cart

import (
	"context"
	"strings"
	"time"

	"github.com/canteen-coders/canteen-client/pkg/enums"
	pkgerrors "github.com/canteen-coders/canteen-client/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CheckoutRequest carries the pickup details chosen on the cart page.
type CheckoutRequest struct {
	PickupTime          string
	PaymentMethod       enums.PaymentMethod
	SpecialInstructions string
}

// Confirmation is the locally assembled order summary.
type Confirmation struct {
	ConfirmationID      uuid.UUID           `json:"confirmationId"`
	UserID              string              `json:"userId"`
	Lines               []Line              `json:"lines"`
	Count               int                 `json:"count"`
	Total               decimal.Decimal     `json:"total"`
	PickupTime          string              `json:"pickupTime"`
	PaymentMethod       enums.PaymentMethod `json:"paymentMethod"`
	SpecialInstructions string              `json:"specialInstructions,omitempty"`
	PlacedAt            time.Time           `json:"placedAt"`
}

// Checkout validates the request, snapshots the cart into a Confirmation and
// clears the cart.
func (s *Store) Checkout(ctx context.Context, req CheckoutRequest) (*Confirmation, error) {
	pickup := strings.TrimSpace(req.PickupTime)
	if pickup == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select an estimated pickup time")
	}
	if !req.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Please select a payment method")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "login required to checkout")
	}
	if len(s.lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	lines := make([]Line, len(s.lines))
	copy(lines, s.lines)
	confirmation := &Confirmation{
		ConfirmationID:      uuid.New(),
		UserID:              s.identity,
		Lines:               lines,
		Count:               countOf(lines),
		Total:               totalOf(lines),
		PickupTime:          pickup,
		PaymentMethod:       req.PaymentMethod,
		SpecialInstructions: strings.TrimSpace(req.SpecialInstructions),
		PlacedAt:            time.Now().UTC(),
	}

	s.clearLocked(ctx)
	s.metrics.IncCartMutation("checkout")
	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":         s.identity,
		"confirmation_id": confirmation.ConfirmationID.String(),
		"payment_method":  string(req.PaymentMethod),
	})
	s.logg.Info(ctx, "checkout confirmed")
	return confirmation, nil
}
