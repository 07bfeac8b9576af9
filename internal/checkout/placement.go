package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

const placementBodyReadLimit int64 = 2048

// PlacementRequest is the full order handed to the order service. SessionID
// doubles as the idempotency key, so a retried placement cannot double-charge.
type PlacementRequest struct {
	SessionID  uuid.UUID           `json:"session_id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	Lines      []cart.Line         `json:"lines"`
	Subtotal   int                 `json:"subtotal_cents"`
	Shipping   int                 `json:"shipping_cents"`
	Discount   int                 `json:"discount_cents"`
	Total      int                 `json:"total_cents"`
	PromoCode  *string             `json:"promo_code,omitempty"`
	Method     enums.PaymentMethod `json:"payment_method"`
	Contact    ShippingDetails     `json:"contact"`
}

// PlacementResult is the order service's acceptance.
type PlacementResult struct {
	OrderID uuid.UUID `json:"order_id"`
}

// OrderPlacer submits a finalized order. Implementations distinguish rejected
// orders (placement failures, retryable after the cause is fixed) from
// transport faults.
type OrderPlacer interface {
	Place(ctx context.Context, req PlacementRequest) (*PlacementResult, error)
}

// HTTPOrderPlacer talks to the order service over JSON/HTTP.
type HTTPOrderPlacer struct {
	httpClient *http.Client
	baseURL    string
}

// NewHTTPOrderPlacer builds the order service client.
func NewHTTPOrderPlacer(baseURL string, client *http.Client) (*HTTPOrderPlacer, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" {
		return nil, fmt.Errorf("order service base url is required")
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPOrderPlacer{httpClient: client, baseURL: strings.TrimRight(trimmed, "/")}, nil
}

// Place submits the order. A 4xx answer is a placement failure (the order
// service refused, e.g. a line went out of stock on the final check); other
// faults are network failures.
func (p *HTTPOrderPlacer) Place(ctx context.Context, req PlacementRequest) (*PlacementResult, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "marshal placement request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "build placement request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.SessionID.String())

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "execute placement request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest && resp.StatusCode < http.StatusInternalServerError {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, placementBodyReadLimit))
		return nil, pkgerrors.New(pkgerrors.CodePlacement, "order was not accepted").WithDetails(map[string]any{
			"status":   resp.StatusCode,
			"response": strings.TrimSpace(string(msg)),
		})
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, placementBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "placement request failed")
	}

	var result PlacementResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "decode placement response")
	}
	if result.OrderID == uuid.Nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, fmt.Errorf("missing order id"), "decode placement response")
	}
	return &result, nil
}
