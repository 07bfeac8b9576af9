package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	"github.com/himanshu-firke/shopsphere-backend/pkg/redis"
)

// ShippingDetails is the contact and destination captured at the shipping
// step, denormalized into the session so later address-book edits cannot
// change an in-flight checkout.
type ShippingDetails struct {
	Email      string   `json:"email"`
	Name       string   `json:"name"`
	Lines      []string `json:"lines"`
	City       string   `json:"city"`
	Region     string   `json:"region"`
	PostalCode string   `json:"postal_code"`
	Phone      string   `json:"phone"`
}

// PaymentDetails is what the session retains after the payment step. Raw
// instrument data never lands here, only the method and a display reference.
type PaymentDetails struct {
	Method    enums.PaymentMethod `json:"method"`
	Reference string              `json:"reference"`
}

// Session is one customer's trip through the checkout wizard. The cart is
// frozen at Begin: later cart mutations do not leak into the order being
// reviewed.
type Session struct {
	ID         uuid.UUID           `json:"id"`
	CustomerID uuid.UUID           `json:"customer_id"`
	Step       enums.CheckoutStep  `json:"step"`
	Cart       cart.Cart           `json:"cart"`
	Shipping   *ShippingDetails    `json:"shipping,omitempty"`
	Payment    *PaymentDetails     `json:"payment,omitempty"`
	OrderID    *uuid.UUID          `json:"order_id,omitempty"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SessionStore persists at most one session per customer.
// Load returns (nil, nil) when no session exists.
type SessionStore interface {
	Load(ctx context.Context, customerID string) (*Session, error)
	Save(ctx context.Context, session *Session) error
	Delete(ctx context.Context, customerID string) error
}

// RedisSessionStore keeps checkout sessions in Redis with a rolling TTL, so an
// abandoned checkout expires on its own.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore builds a Redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) (*RedisSessionStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &RedisSessionStore{client: client, ttl: ttl}, nil
}

// Load fetches and decodes a customer's session.
func (s *RedisSessionStore) Load(ctx context.Context, customerID string) (*Session, error) {
	raw, err := s.client.Get(ctx, s.client.CheckoutSessionKey(customerID))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading checkout session: %w", err)
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return nil, fmt.Errorf("decoding checkout session: %w", err)
	}
	return &session, nil
}

// Save encodes and stores the session, refreshing the TTL.
func (s *RedisSessionStore) Save(ctx context.Context, session *Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encoding checkout session: %w", err)
	}
	key := s.client.CheckoutSessionKey(session.CustomerID.String())
	if err := s.client.Set(ctx, key, payload, s.ttl); err != nil {
		return fmt.Errorf("saving checkout session: %w", err)
	}
	return nil
}

// Delete removes the customer's session.
func (s *RedisSessionStore) Delete(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, s.client.CheckoutSessionKey(customerID)); err != nil {
		return fmt.Errorf("deleting checkout session: %w", err)
	}
	return nil
}
