package cart

import (
	"context"

	"github.com/google/uuid"
)

// RemoteCart is the authoritative cart held by the upstream cart service.
// Price and stock fields in its responses override local optimistic state.
type RemoteCart struct {
	Lines         []Line `json:"lines"`
	ShippingCents int    `json:"shipping_cents"`
}

// AddItemInput is the payload for a remote add-item call.
type AddItemInput struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID *string   `json:"variant_id,omitempty"`
	Quantity  int       `json:"quantity"`
}

// RemoteService is the upstream cart service contract. Every call returns the
// full authoritative cart. Implementations must honor context cancellation
// and bound each call with a timeout.
type RemoteService interface {
	Fetch(ctx context.Context) (*RemoteCart, error)
	AddItem(ctx context.Context, input AddItemInput) (*RemoteCart, error)
	UpdateItem(ctx context.Context, lineKey string, quantity int) (*RemoteCart, error)
	RemoveItem(ctx context.Context, lineKey string) (*RemoteCart, error)
	Clear(ctx context.Context) (*RemoteCart, error)
}
