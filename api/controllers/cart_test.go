package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/api/middleware"
	cartsvc "github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/pkg/types"
)

type echoRemote struct{}

func (echoRemote) Fetch(context.Context) (*cartsvc.RemoteCart, error) { return &cartsvc.RemoteCart{}, nil }

func (echoRemote) AddItem(context.Context, cartsvc.AddItemInput) (*cartsvc.RemoteCart, error) {
	return nil, nil
}

func (echoRemote) UpdateItem(context.Context, string, int) (*cartsvc.RemoteCart, error) {
	return nil, nil
}

func (echoRemote) RemoveItem(context.Context, string) (*cartsvc.RemoteCart, error) {
	return nil, nil
}

func (echoRemote) Clear(context.Context) (*cartsvc.RemoteCart, error) { return nil, nil }

func newTestManager(t *testing.T) *cartsvc.Manager {
	t.Helper()
	mgr, err := cartsvc.NewManager(cartsvc.ManagerOptions{
		Remote: func(string) (cartsvc.RemoteService, error) { return echoRemote{}, nil },
	})
	if err != nil {
		t.Fatalf("unexpected error building manager: %v", err)
	}
	t.Cleanup(mgr.Close)
	return mgr
}

func authedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	return req.WithContext(middleware.WithCustomerID(req.Context(), uuid.NewString()))
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return envelope
}

func TestAddCartItemReturnsSnapshot(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t)
	handler := AddCartItem(mgr, nil)

	productID := uuid.New()
	body := `{"product_id":"` + productID.String() + `","name":"Desk Lamp","unit_price_cents":2500,"quantity":2,"max_quantity":5}`

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cart/items", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	envelope := decodeEnvelope(t, rec)
	var snap cartsvc.Snapshot
	if err := json.Unmarshal(envelope["data"], &snap); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	if len(snap.Cart.Lines) != 1 || snap.Cart.SubtotalCents != 5000 {
		t.Fatalf("unexpected snapshot: %+v", snap.Cart)
	}
}

func TestAddCartItemRejectsMalformedBody(t *testing.T) {
	t.Parallel()

	handler := AddCartItem(newTestManager(t), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, authedRequest(t, http.MethodPost, "/api/v1/cart/items", `{"quantity":`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGetCartRequiresCustomerContext(t *testing.T) {
	t.Parallel()

	handler := GetCart(newTestManager(t), nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", rec.Code, rec.Body.String())
	}

	var envelope types.ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decoding error envelope: %v", err)
	}
	if envelope.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %q", envelope.Error.Code)
	}
}

func TestRemoveCartItemParsesVariantQuery(t *testing.T) {
	t.Parallel()

	mgr := newTestManager(t)
	productID := uuid.New()
	variant := "blue"

	ctx := context.Background()
	customer := uuid.NewString()
	store, err := mgr.Get(ctx, customer)
	if err != nil {
		t.Fatalf("unexpected error getting store: %v", err)
	}
	if _, err := store.AddLine(cartsvc.Line{
		ProductID:      productID,
		VariantID:      &variant,
		Name:           "Mug",
		UnitPriceCents: 900,
		Quantity:       1,
		MaxQuantity:    3,
	}); err != nil {
		t.Fatalf("unexpected error seeding line: %v", err)
	}

	router := chi.NewRouter()
	router.Delete("/cart/items/{productID}", RemoveCartItem(mgr, nil))

	req := httptest.NewRequest(http.MethodDelete, "/cart/items/"+productID.String()+"?variant=blue", nil)
	req = req.WithContext(middleware.WithCustomerID(req.Context(), customer))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if snap := store.Snapshot(); len(snap.Cart.Lines) != 0 {
		t.Fatalf("expected empty cart, got %+v", snap.Cart.Lines)
	}
}
