package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	"github.com/himanshu-firke/shopsphere-backend/pkg/redis"
	"github.com/google/uuid"
)

// PersistedSnapshot is the durable form of a cart session. It survives
// process restarts; in-flight reconciliation state does not.
type PersistedSnapshot struct {
	Cart      Cart                `json:"cart"`
	Seq       uint64              `json:"seq"`
	SyncState enums.CartSyncState `json:"sync_state"`
	SavedAt   time.Time           `json:"saved_at"`
}

// Validate checks the snapshot for structural corruption. All faults are
// collected so the log line names everything wrong at once.
func (p PersistedSnapshot) Validate() error {
	var result error
	if !p.SyncState.IsValid() {
		result = multierr.Append(result, fmt.Errorf("unknown sync state %q", p.SyncState))
	}
	seen := map[string]struct{}{}
	for i, line := range p.Cart.Lines {
		if line.ProductID == uuid.Nil {
			result = multierr.Append(result, fmt.Errorf("line %d: missing product id", i))
		}
		if line.Quantity < 1 {
			result = multierr.Append(result, fmt.Errorf("line %d: quantity %d out of range", i, line.Quantity))
		}
		if line.MaxQuantity >= 1 && line.Quantity > line.MaxQuantity {
			result = multierr.Append(result, fmt.Errorf("line %d: quantity %d exceeds max %d", i, line.Quantity, line.MaxQuantity))
		}
		if line.UnitPriceCents < 0 {
			result = multierr.Append(result, fmt.Errorf("line %d: negative unit price", i))
		}
		key := line.Key()
		if _, dup := seen[key]; dup {
			result = multierr.Append(result, fmt.Errorf("line %d: duplicate identity key %s", i, key))
		}
		seen[key] = struct{}{}
	}
	if p.Cart.DiscountCents < 0 {
		result = multierr.Append(result, errors.New("negative discount"))
	}
	if p.Cart.ShippingCents < 0 {
		result = multierr.Append(result, errors.New("negative shipping"))
	}
	return result
}

// SnapshotStore persists cart sessions between requests and restarts.
// Load returns (nil, nil) when no snapshot exists.
type SnapshotStore interface {
	Load(ctx context.Context, customerID string) (*PersistedSnapshot, error)
	Save(ctx context.Context, customerID string, snap PersistedSnapshot) error
	Delete(ctx context.Context, customerID string) error
}

// RedisSnapshotStore keeps snapshots in Redis under a per-customer key with a
// rolling TTL.
type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore builds a Redis-backed snapshot store.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) (*RedisSnapshotStore, error) {
	if client == nil {
		return nil, errors.New("redis client required")
	}
	return &RedisSnapshotStore{client: client, ttl: ttl}, nil
}

// Load fetches and decodes a customer's snapshot. A payload that fails to
// decode is reported as a snapshot with an invalid state so the caller's
// corruption path handles it uniformly.
func (s *RedisSnapshotStore) Load(ctx context.Context, customerID string) (*PersistedSnapshot, error) {
	raw, err := s.client.Get(ctx, s.client.CartSnapshotKey(customerID))
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading cart snapshot: %w", err)
	}
	var snap PersistedSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return &PersistedSnapshot{SyncState: enums.CartSyncState("corrupt")}, nil
	}
	return &snap, nil
}

// Save encodes and stores the snapshot, refreshing the TTL.
func (s *RedisSnapshotStore) Save(ctx context.Context, customerID string, snap PersistedSnapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding cart snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.client.CartSnapshotKey(customerID), payload, s.ttl); err != nil {
		return fmt.Errorf("saving cart snapshot: %w", err)
	}
	return nil
}

// Delete removes the customer's snapshot.
func (s *RedisSnapshotStore) Delete(ctx context.Context, customerID string) error {
	if err := s.client.Del(ctx, s.client.CartSnapshotKey(customerID)); err != nil {
		return fmt.Errorf("deleting cart snapshot: %w", err)
	}
	return nil
}
