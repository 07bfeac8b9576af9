package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
	"github.com/himanshu-firke/shopsphere-backend/pkg/metrics"
)

// RemoteFactory builds the remote cart client for one customer session.
type RemoteFactory func(customerID string) (RemoteService, error)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Remote         RemoteFactory
	Snapshots      SnapshotStore
	Metrics        *metrics.StorefrontMetrics
	Logger         *logger.Logger
	ShippingCents  int
	RequestTimeout time.Duration
}

// Manager hands out exactly one Store per customer, keeping the
// single-writer-per-session rule: all mutations for a customer funnel through
// the same store, so its sequence numbers totally order them.
type Manager struct {
	mu     sync.Mutex
	stores map[string]*Store
	opts   ManagerOptions
	closed bool
}

// NewManager builds a store registry.
func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote factory is required")
	}
	return &Manager{
		stores: map[string]*Store{},
		opts:   opts,
	}, nil
}

// Get returns the customer's store, creating it on first use.
func (m *Manager) Get(ctx context.Context, customerID string) (*Store, error) {
	if customerID == "" {
		return nil, fmt.Errorf("customer id is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("cart manager is closed")
	}
	if store, ok := m.stores[customerID]; ok {
		return store, nil
	}

	remote, err := m.opts.Remote(customerID)
	if err != nil {
		return nil, fmt.Errorf("building remote cart client: %w", err)
	}
	store, err := NewStore(ctx, Options{
		CustomerID:     customerID,
		Remote:         remote,
		Snapshots:      m.opts.Snapshots,
		Metrics:        m.opts.Metrics,
		Logger:         m.opts.Logger,
		ShippingCents:  m.opts.ShippingCents,
		RequestTimeout: m.opts.RequestTimeout,
	})
	if err != nil {
		return nil, err
	}
	m.stores[customerID] = store
	return store, nil
}

// Release closes and drops the customer's store, e.g. on logout.
func (m *Manager) Release(customerID string) {
	m.mu.Lock()
	store, ok := m.stores[customerID]
	delete(m.stores, customerID)
	m.mu.Unlock()

	if ok {
		store.Close()
	}
}

// Close tears down every store. Used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	stores := make([]*Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	m.stores = map[string]*Store{}
	m.mu.Unlock()

	for _, store := range stores {
		store.Close()
	}
}
