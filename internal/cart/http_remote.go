package cart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

const errorBodyReadLimit int64 = 1024

// HTTPRemoteService talks to the upstream cart service over JSON/HTTP. Each
// customer's cart lives at /carts/{customerID}; every response body is the
// full authoritative cart.
type HTTPRemoteService struct {
	httpClient *http.Client
	baseURL    string
	customerID string
	authToken  string
}

// RemoteOption configures optional remote client behavior.
type RemoteOption func(*HTTPRemoteService)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) RemoteOption {
	return func(s *HTTPRemoteService) {
		if client != nil {
			s.httpClient = client
		}
	}
}

// WithAuthToken sets the bearer token forwarded to the cart service.
func WithAuthToken(token string) RemoteOption {
	return func(s *HTTPRemoteService) {
		s.authToken = strings.TrimSpace(token)
	}
}

// NewHTTPRemoteService builds a remote cart client bound to one customer.
func NewHTTPRemoteService(baseURL, customerID string, opts ...RemoteOption) (*HTTPRemoteService, error) {
	trimmedURL := strings.TrimSpace(baseURL)
	if trimmedURL == "" {
		return nil, fmt.Errorf("cart service base url is required")
	}
	if strings.TrimSpace(customerID) == "" {
		return nil, fmt.Errorf("customer id is required")
	}

	svc := &HTTPRemoteService{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(trimmedURL, "/"),
		customerID: strings.TrimSpace(customerID),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc, nil
}

// Fetch returns the authoritative cart.
func (s *HTTPRemoteService) Fetch(ctx context.Context) (*RemoteCart, error) {
	return s.do(ctx, http.MethodGet, s.cartURL(""), nil)
}

// AddItem adds quantity of a product to the remote cart.
func (s *HTTPRemoteService) AddItem(ctx context.Context, input AddItemInput) (*RemoteCart, error) {
	return s.do(ctx, http.MethodPost, s.cartURL("items"), input)
}

// UpdateItem sets the quantity of an existing remote line.
func (s *HTTPRemoteService) UpdateItem(ctx context.Context, lineKey string, quantity int) (*RemoteCart, error) {
	body := struct {
		Quantity int `json:"quantity"`
	}{Quantity: quantity}
	return s.do(ctx, http.MethodPut, s.cartURL("items/"+url.PathEscape(lineKey)), body)
}

// RemoveItem deletes a remote line.
func (s *HTTPRemoteService) RemoveItem(ctx context.Context, lineKey string) (*RemoteCart, error) {
	return s.do(ctx, http.MethodDelete, s.cartURL("items/"+url.PathEscape(lineKey)), nil)
}

// Clear empties the remote cart.
func (s *HTTPRemoteService) Clear(ctx context.Context) (*RemoteCart, error) {
	return s.do(ctx, http.MethodDelete, s.cartURL(""), nil)
}

func (s *HTTPRemoteService) cartURL(suffix string) string {
	base := fmt.Sprintf("%s/carts/%s", s.baseURL, url.PathEscape(s.customerID))
	if suffix == "" {
		return base
	}
	return base + "/" + suffix
}

func (s *HTTPRemoteService) do(ctx context.Context, method, target string, body any) (*RemoteCart, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "marshal cart request")
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "build cart request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "execute cart request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusConflict {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.New(pkgerrors.CodeStockConflict, strings.TrimSpace(string(msg)))
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "cart request failed")
	}

	var cart RemoteCart
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "decode cart response")
	}
	return &cart, nil
}
