package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/api/responses"
	"github.com/himanshu-firke/shopsphere-backend/api/validators"
	cartsvc "github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/internal/promo"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
)

// GetCart returns the customer's current cart snapshot.
func GetCart(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, store.Snapshot())
	}
}

// RefreshCart re-fetches the remote cart and replaces local state. Rejected
// while reconciliations are still in flight.
func RefreshCart(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		snap, err := store.Refresh(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

type addCartItemRequest struct {
	ProductID              uuid.UUID `json:"product_id" validate:"required"`
	VariantID              *string   `json:"variant_id,omitempty"`
	Name                   string    `json:"name" validate:"required"`
	Image                  *string   `json:"image,omitempty"`
	UnitPriceCents         int       `json:"unit_price_cents" validate:"required,min=0"`
	OriginalUnitPriceCents *int      `json:"original_unit_price_cents,omitempty"`
	Quantity               int       `json:"quantity" validate:"required,min=1"`
	MaxQuantity            int       `json:"max_quantity" validate:"required,min=1"`
}

// AddCartItem adds a line (or merges quantities into an existing line).
func AddCartItem(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.AddLine(cartsvc.Line{
			ProductID:              payload.ProductID,
			VariantID:              payload.VariantID,
			Name:                   payload.Name,
			Image:                  payload.Image,
			UnitPriceCents:         payload.UnitPriceCents,
			OriginalUnitPriceCents: payload.OriginalUnitPriceCents,
			Quantity:               payload.Quantity,
			MaxQuantity:            payload.MaxQuantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required"`
}

// UpdateCartItem sets the quantity of an existing line.
func UpdateCartItem(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := lineKeyFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.UpdateQuantity(key, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// RemoveCartItem removes a line. Removing an absent line is a no-op.
func RemoveCartItem(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key, err := lineKeyFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.RemoveLine(key)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// ClearCart empties the cart.
func ClearCart(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.Clear()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

type applyPromoRequest struct {
	Code string `json:"code" validate:"required"`
}

// ApplyPromo evaluates a promo code against the current subtotal and applies
// the resulting discount to the cart.
func ApplyPromo(carts *cartsvc.Manager, promos promo.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if promos == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "promo service unavailable"))
			return
		}

		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload applyPromoRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		current := store.Snapshot()
		result, err := promos.Evaluate(r.Context(), payload.Code, current.Cart.SubtotalCents)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.ApplyDiscount(result.DiscountCents, &result.Code)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// RemovePromo drops any applied discount.
func RemovePromo(carts *cartsvc.Manager, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		store, err := storeFromRequest(r, carts)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		snap, err := store.RemoveDiscount()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snap)
	}
}

// lineKeyFromRequest builds the line identity key from the product path
// parameter plus the optional variant query parameter.
func lineKeyFromRequest(r *http.Request) (string, error) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id")
	}
	var variantID *string
	if variant := r.URL.Query().Get("variant"); variant != "" {
		variantID = &variant
	}
	return cartsvc.LineKey(productID, variantID), nil
}

func storeFromRequest(r *http.Request, carts *cartsvc.Manager) (*cartsvc.Store, error) {
	if carts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "cart service unavailable")
	}
	customerID, err := customerFromRequest(r)
	if err != nil {
		return nil, err
	}
	return carts.Get(r.Context(), customerID.String())
}
