package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

type stubRemote struct {
	mu       sync.Mutex
	calls    []string
	fetchFn  func(ctx context.Context) (*RemoteCart, error)
	addFn    func(ctx context.Context, input AddItemInput) (*RemoteCart, error)
	updateFn func(ctx context.Context, lineKey string, quantity int) (*RemoteCart, error)
	removeFn func(ctx context.Context, lineKey string) (*RemoteCart, error)
	clearFn  func(ctx context.Context) (*RemoteCart, error)
}

func (s *stubRemote) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call)
}

func (s *stubRemote) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubRemote) Fetch(ctx context.Context) (*RemoteCart, error) {
	s.record("fetch")
	if s.fetchFn != nil {
		return s.fetchFn(ctx)
	}
	return &RemoteCart{}, nil
}

func (s *stubRemote) AddItem(ctx context.Context, input AddItemInput) (*RemoteCart, error) {
	s.record("add")
	if s.addFn != nil {
		return s.addFn(ctx, input)
	}
	return &RemoteCart{}, nil
}

func (s *stubRemote) UpdateItem(ctx context.Context, lineKey string, quantity int) (*RemoteCart, error) {
	s.record("update")
	if s.updateFn != nil {
		return s.updateFn(ctx, lineKey, quantity)
	}
	return &RemoteCart{}, nil
}

func (s *stubRemote) RemoveItem(ctx context.Context, lineKey string) (*RemoteCart, error) {
	s.record("remove")
	if s.removeFn != nil {
		return s.removeFn(ctx, lineKey)
	}
	return &RemoteCart{}, nil
}

func (s *stubRemote) Clear(ctx context.Context) (*RemoteCart, error) {
	s.record("clear")
	if s.clearFn != nil {
		return s.clearFn(ctx)
	}
	return &RemoteCart{}, nil
}

type memSnapshotStore struct {
	mu      sync.Mutex
	snaps   map[string]PersistedSnapshot
	deletes int
}

func newMemSnapshotStore() *memSnapshotStore {
	return &memSnapshotStore{snaps: map[string]PersistedSnapshot{}}
}

func (m *memSnapshotStore) Load(_ context.Context, customerID string) (*PersistedSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[customerID]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (m *memSnapshotStore) Save(_ context.Context, customerID string, snap PersistedSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[customerID] = snap
	return nil
}

func (m *memSnapshotStore) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, customerID)
	m.deletes++
	return nil
}

func newTestStore(t *testing.T, remote RemoteService, snaps SnapshotStore) *Store {
	t.Helper()
	store, err := NewStore(context.Background(), Options{
		CustomerID: "customer-1",
		Remote:     remote,
		Snapshots:  snaps,
	})
	if err != nil {
		t.Fatalf("unexpected error building store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func testLine(price, quantity, max int) Line {
	return Line{
		ProductID:      uuid.New(),
		Name:           "widget",
		UnitPriceCents: price,
		Quantity:       quantity,
		MaxQuantity:    max,
	}
}

// waitForSnapshot drains subscriber notifications until one matches.
func waitForSnapshot(t *testing.T, ch <-chan Snapshot, match func(Snapshot) bool) Snapshot {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case snap := <-ch:
			if match(snap) {
				return snap
			}
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot")
		}
	}
}

func TestStoreAddLineMergesByIdentityKey(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	line := testLine(500, 2, 5)

	if _, err := store.AddLine(line); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	snap, err := store.AddLine(line)
	if err != nil {
		t.Fatalf("unexpected error on merge add: %v", err)
	}

	if len(snap.Cart.Lines) != 1 {
		t.Fatalf("expected 1 line after merge, got %d", len(snap.Cart.Lines))
	}
	if snap.Cart.Lines[0].Quantity != 4 {
		t.Fatalf("expected merged quantity 4, got %d", snap.Cart.Lines[0].Quantity)
	}
	if snap.Cart.SubtotalCents != 2000 {
		t.Fatalf("expected subtotal 2000, got %d", snap.Cart.SubtotalCents)
	}
}

func TestStoreAddLineRejectsStockClamp(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	line := testLine(500, 4, 5)

	if _, err := store.AddLine(line); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}

	// 4 + 2 exceeds max 5: the whole add is rejected, nothing partial.
	line.Quantity = 2
	snap, err := store.AddLine(line)
	if err == nil {
		t.Fatalf("expected stock conflict error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStockConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeStockConflict, err)
	}
	if snap.Cart.Lines[0].Quantity != 4 {
		t.Fatalf("expected quantity unchanged at 4, got %d", snap.Cart.Lines[0].Quantity)
	}
}

func TestStoreUpdateQuantity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		quantity int
		wantCode pkgerrors.Code
	}{
		{name: "valid", quantity: 5},
		{name: "below one", quantity: 0, wantCode: pkgerrors.CodeValidation},
		{name: "above max", quantity: 6, wantCode: pkgerrors.CodeStockConflict},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := newTestStore(t, &stubRemote{}, nil)
			line := testLine(100, 2, 5)
			if _, err := store.AddLine(line); err != nil {
				t.Fatalf("unexpected error seeding line: %v", err)
			}

			snap, err := store.UpdateQuantity(line.Key(), tc.quantity)
			if tc.wantCode == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if snap.Cart.Lines[0].Quantity != tc.quantity {
					t.Fatalf("expected quantity %d, got %d", tc.quantity, snap.Cart.Lines[0].Quantity)
				}
				return
			}

			if err == nil {
				t.Fatalf("expected error for quantity %d", tc.quantity)
			}
			if typed := pkgerrors.As(err); typed == nil || typed.Code() != tc.wantCode {
				t.Fatalf("expected %s, got %v", tc.wantCode, err)
			}
			if snap.Cart.Lines[0].Quantity != 2 {
				t.Fatalf("expected quantity unchanged at 2, got %d", snap.Cart.Lines[0].Quantity)
			}
		})
	}
}

func TestStoreUpdateQuantityUnknownLine(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	_, err := store.UpdateQuantity("missing/default", 1)
	if err == nil {
		t.Fatalf("expected not found error")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeNotFound, err)
	}
}

func TestStoreRemoveLineIsIdempotent(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{}
	store := newTestStore(t, remote, nil)
	line := testLine(100, 1, 3)
	if _, err := store.AddLine(line); err != nil {
		t.Fatalf("unexpected error seeding line: %v", err)
	}

	// Removing an absent key is a no-op, not an error.
	snap, err := store.RemoveLine("missing/default")
	if err != nil {
		t.Fatalf("unexpected error removing absent key: %v", err)
	}
	if len(snap.Cart.Lines) != 1 {
		t.Fatalf("expected cart untouched, got %d lines", len(snap.Cart.Lines))
	}

	snap, err = store.RemoveLine(line.Key())
	if err != nil {
		t.Fatalf("unexpected error on remove: %v", err)
	}
	if !snap.Cart.IsEmpty() {
		t.Fatalf("expected empty cart after remove")
	}

	// Settle in-flight dispatches, then confirm the no-op never hit the remote.
	store.Close()
	remote.mu.Lock()
	defer remote.mu.Unlock()
	removes := 0
	for _, call := range remote.calls {
		if call == "remove" {
			removes++
		}
	}
	if removes != 1 {
		t.Fatalf("expected exactly 1 remote remove call, got %d", removes)
	}
}

func TestStoreDiscountReplacesNotStacks(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	if _, err := store.AddLine(testLine(1000, 1, 5)); err != nil {
		t.Fatalf("unexpected error seeding line: %v", err)
	}

	if _, err := store.ApplyDiscount(300, strPtr("SPRING")); err != nil {
		t.Fatalf("unexpected error applying first discount: %v", err)
	}
	snap, err := store.ApplyDiscount(2500, strPtr("WELCOME10"))
	if err != nil {
		t.Fatalf("unexpected error applying second discount: %v", err)
	}

	// Replaced, not 300+2500, and clamped to the 1000 subtotal.
	if snap.Cart.DiscountCents != 1000 {
		t.Fatalf("expected clamped discount 1000, got %d", snap.Cart.DiscountCents)
	}
	if snap.Cart.PromoCode == nil || *snap.Cart.PromoCode != "WELCOME10" {
		t.Fatalf("expected promo code WELCOME10, got %v", snap.Cart.PromoCode)
	}

	snap, err = store.RemoveDiscount()
	if err != nil {
		t.Fatalf("unexpected error removing discount: %v", err)
	}
	if snap.Cart.DiscountCents != 0 || snap.Cart.PromoCode != nil {
		t.Fatalf("expected discount cleared, got %d / %v", snap.Cart.DiscountCents, snap.Cart.PromoCode)
	}
}

func TestStoreDiscardsStaleRemoteResponse(t *testing.T) {
	t.Parallel()

	firstProduct := uuid.New()
	secondProduct := uuid.New()
	release := make(chan struct{})
	staleCart := &RemoteCart{Lines: []Line{
		{ProductID: firstProduct, Name: "widget", UnitPriceCents: 500, Quantity: 1, MaxQuantity: 5},
	}}
	freshCart := &RemoteCart{Lines: []Line{
		{ProductID: firstProduct, Name: "widget", UnitPriceCents: 500, Quantity: 1, MaxQuantity: 5},
		{ProductID: secondProduct, Name: "gadget", UnitPriceCents: 900, Quantity: 1, MaxQuantity: 5},
	}}

	var callNum int
	var callMu sync.Mutex
	remote := &stubRemote{}
	remote.addFn = func(ctx context.Context, _ AddItemInput) (*RemoteCart, error) {
		callMu.Lock()
		callNum++
		mine := callNum
		callMu.Unlock()
		if mine == 1 {
			// First response arrives after the second has been applied.
			<-release
			return staleCart, nil
		}
		defer close(release)
		return freshCart, nil
	}

	store := newTestStore(t, remote, nil)
	updates := make(chan Snapshot, 16)
	defer store.Subscribe(func(snap Snapshot) { updates <- snap })()

	if _, err := store.AddLine(Line{ProductID: firstProduct, Name: "widget", UnitPriceCents: 500, Quantity: 1, MaxQuantity: 5}); err != nil {
		t.Fatalf("unexpected error on first add: %v", err)
	}
	if _, err := store.AddLine(Line{ProductID: secondProduct, Name: "gadget", UnitPriceCents: 900, Quantity: 1, MaxQuantity: 5}); err != nil {
		t.Fatalf("unexpected error on second add: %v", err)
	}

	waitForSnapshot(t, updates, func(snap Snapshot) bool {
		return snap.SyncState == enums.CartSyncSynced
	})

	// Close waits out the stale in-flight response before we assert.
	store.Close()

	snap := store.Snapshot()
	if len(snap.Cart.Lines) != 2 {
		t.Fatalf("stale response overwrote newer state: %d lines", len(snap.Cart.Lines))
	}
	if snap.Cart.SubtotalCents != 1400 {
		t.Fatalf("expected subtotal 1400, got %d", snap.Cart.SubtotalCents)
	}
}

func TestStoreSyncFailureRetainsOptimisticState(t *testing.T) {
	t.Parallel()

	remote := &stubRemote{}
	remote.addFn = func(ctx context.Context, _ AddItemInput) (*RemoteCart, error) {
		return nil, errors.New("connection refused")
	}

	store := newTestStore(t, remote, nil)
	updates := make(chan Snapshot, 16)
	defer store.Subscribe(func(snap Snapshot) { updates <- snap })()

	line := testLine(750, 1, 3)
	if _, err := store.AddLine(line); err != nil {
		t.Fatalf("unexpected error on add: %v", err)
	}

	failed := waitForSnapshot(t, updates, func(snap Snapshot) bool {
		return snap.SyncState == enums.CartSyncUnsynced
	})
	if failed.SyncError == "" {
		t.Fatalf("expected failure notification to carry the sync error")
	}
	if len(failed.Cart.Lines) != 1 || failed.Cart.Lines[0].Quantity != 1 {
		t.Fatalf("expected optimistic line retained, got %+v", failed.Cart.Lines)
	}

	// The error surfaces once: later snapshots do not repeat it.
	if snap := store.Snapshot(); snap.SyncError != "" {
		t.Fatalf("expected sync error to surface only once, got %q", snap.SyncError)
	}
}

func TestStoreRefreshRejectsPendingMutations(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	remote := &stubRemote{}
	remote.addFn = func(ctx context.Context, _ AddItemInput) (*RemoteCart, error) {
		<-block
		return &RemoteCart{}, nil
	}

	store := newTestStore(t, remote, nil)
	t.Cleanup(func() { close(block) })

	if _, err := store.AddLine(testLine(100, 1, 3)); err != nil {
		t.Fatalf("unexpected error on add: %v", err)
	}

	_, err := store.Refresh(context.Background())
	if err == nil {
		t.Fatalf("expected state conflict while mutation is pending")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeStateConflict, err)
	}
}

func TestStoreRefreshReplacesLocalState(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	remote := &stubRemote{}
	remote.fetchFn = func(ctx context.Context) (*RemoteCart, error) {
		return &RemoteCart{
			Lines:         []Line{{ProductID: productID, Name: "widget", UnitPriceCents: 500, Quantity: 2, MaxQuantity: 5}},
			ShippingCents: 300,
		}, nil
	}

	store := newTestStore(t, remote, nil)
	snap, err := store.Refresh(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on refresh: %v", err)
	}
	if len(snap.Cart.Lines) != 1 || snap.Cart.Lines[0].Quantity != 2 {
		t.Fatalf("expected remote lines applied, got %+v", snap.Cart.Lines)
	}
	if snap.Cart.TotalCents != 1300 {
		t.Fatalf("expected total 1300, got %d", snap.Cart.TotalCents)
	}
	if snap.SyncState != enums.CartSyncSynced {
		t.Fatalf("expected synced state, got %s", snap.SyncState)
	}
}

func TestStoreRestoresPersistedSnapshot(t *testing.T) {
	t.Parallel()

	snaps := newMemSnapshotStore()
	persisted := PersistedSnapshot{
		Cart: Cart{
			Lines: []Line{{ProductID: uuid.New(), Name: "widget", UnitPriceCents: 500, Quantity: 2, MaxQuantity: 5}},
		},
		Seq:       7,
		SyncState: enums.CartSyncPending,
		SavedAt:   time.Now().UTC(),
	}
	if err := snaps.Save(context.Background(), "customer-1", persisted); err != nil {
		t.Fatalf("unexpected error seeding snapshot: %v", err)
	}

	store := newTestStore(t, &stubRemote{}, snaps)
	snap := store.Snapshot()

	if len(snap.Cart.Lines) != 1 {
		t.Fatalf("expected restored line, got %d lines", len(snap.Cart.Lines))
	}
	if snap.Seq != 7 {
		t.Fatalf("expected restored seq 7, got %d", snap.Seq)
	}
	// Pending work did not survive the restart.
	if snap.SyncState != enums.CartSyncUnsynced {
		t.Fatalf("expected unsynced after restoring pending snapshot, got %s", snap.SyncState)
	}
}

func TestStoreRestoreKeepsConfiguredShippingRate(t *testing.T) {
	t.Parallel()

	snaps := newMemSnapshotStore()
	persisted := PersistedSnapshot{
		Cart: Cart{
			Lines: []Line{{ProductID: uuid.New(), Name: "widget", UnitPriceCents: 500, Quantity: 2, MaxQuantity: 5}},
		},
		Seq:       3,
		SyncState: enums.CartSyncSynced,
		SavedAt:   time.Now().UTC(),
	}
	if err := snaps.Save(context.Background(), "customer-1", persisted); err != nil {
		t.Fatalf("unexpected error seeding snapshot: %v", err)
	}

	store, err := NewStore(context.Background(), Options{
		CustomerID:    "customer-1",
		Remote:        &stubRemote{},
		Snapshots:     snaps,
		ShippingCents: 250,
	})
	if err != nil {
		t.Fatalf("unexpected error building store: %v", err)
	}
	t.Cleanup(store.Close)

	snap := store.Snapshot()
	if snap.Cart.ShippingCents != 250 {
		t.Fatalf("expected configured shipping 250 after restore, got %d", snap.Cart.ShippingCents)
	}
	if snap.Cart.TotalCents != 1250 {
		t.Fatalf("expected total 1250, got %d", snap.Cart.TotalCents)
	}

	// A snapshot that carries its own rate keeps it.
	persisted.Cart.ShippingCents = 400
	if err := snaps.Save(context.Background(), "customer-2", persisted); err != nil {
		t.Fatalf("unexpected error seeding snapshot: %v", err)
	}
	other, err := NewStore(context.Background(), Options{
		CustomerID:    "customer-2",
		Remote:        &stubRemote{},
		Snapshots:     snaps,
		ShippingCents: 250,
	})
	if err != nil {
		t.Fatalf("unexpected error building store: %v", err)
	}
	t.Cleanup(other.Close)

	if snap := other.Snapshot(); snap.Cart.ShippingCents != 400 {
		t.Fatalf("expected persisted shipping 400 to win, got %d", snap.Cart.ShippingCents)
	}
}

func TestStoreResetsCorruptSnapshot(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	snaps := newMemSnapshotStore()
	corrupt := PersistedSnapshot{
		Cart: Cart{
			Lines: []Line{
				{ProductID: productID, UnitPriceCents: 500, Quantity: 2, MaxQuantity: 5},
				{ProductID: productID, UnitPriceCents: 500, Quantity: 9, MaxQuantity: 5},
			},
		},
		SyncState: enums.CartSyncSynced,
	}
	if err := snaps.Save(context.Background(), "customer-1", corrupt); err != nil {
		t.Fatalf("unexpected error seeding snapshot: %v", err)
	}

	store := newTestStore(t, &stubRemote{}, snaps)
	snap := store.Snapshot()

	if !snap.Cart.IsEmpty() {
		t.Fatalf("expected full reset for corrupt snapshot, got %d lines", len(snap.Cart.Lines))
	}
	snaps.mu.Lock()
	deletes := snaps.deletes
	snaps.mu.Unlock()
	if deletes != 1 {
		t.Fatalf("expected corrupt snapshot deleted, got %d deletes", deletes)
	}
}

func TestStoreClear(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	if _, err := store.AddLine(testLine(100, 1, 3)); err != nil {
		t.Fatalf("unexpected error seeding line: %v", err)
	}
	if _, err := store.ApplyDiscount(50, strPtr("SPRING")); err != nil {
		t.Fatalf("unexpected error applying discount: %v", err)
	}

	snap, err := store.Clear()
	if err != nil {
		t.Fatalf("unexpected error on clear: %v", err)
	}
	if !snap.Cart.IsEmpty() || snap.Cart.DiscountCents != 0 || snap.Cart.PromoCode != nil {
		t.Fatalf("expected cleared cart, got %+v", snap.Cart)
	}
}

func TestStoreRejectsMutationsAfterClose(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, &stubRemote{}, nil)
	store.Close()

	_, err := store.AddLine(testLine(100, 1, 3))
	if err == nil {
		t.Fatalf("expected error after close")
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected %s, got %v", pkgerrors.CodeStateConflict, err)
	}
}
