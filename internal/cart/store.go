package cart

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
	"github.com/himanshu-firke/shopsphere-backend/pkg/metrics"
	"github.com/google/uuid"
)

const defaultRequestTimeout = 5 * time.Second

// Snapshot is an immutable view of the store handed to callers and
// subscribers. SyncError is set only on the single notification that surfaces
// a failed reconciliation; it is never repeated afterwards.
type Snapshot struct {
	Cart      Cart                `json:"cart"`
	SyncState enums.CartSyncState `json:"sync_state"`
	Seq       uint64              `json:"seq"`
	SyncError string              `json:"sync_error,omitempty"`
}

// Subscriber receives a snapshot after every observable change.
type Subscriber func(Snapshot)

// Options configures a Store.
type Options struct {
	CustomerID     string
	Remote         RemoteService
	Snapshots      SnapshotStore
	Metrics        *metrics.StorefrontMetrics
	Logger         *logger.Logger
	ShippingCents  int
	RequestTimeout time.Duration
}

// Store holds the authoritative client-session cart. Mutations apply
// optimistically, persist a local snapshot, then reconcile asynchronously
// against the remote cart service. Remote responses are applied in issue
// order; stale responses are discarded so a slow earlier response never
// overwrites newer local state.
type Store struct {
	mu         sync.Mutex
	cart       Cart
	seq        uint64
	appliedSeq uint64
	syncState  enums.CartSyncState
	closed     bool

	customerID string
	remote     RemoteService
	snapshots  SnapshotStore
	metrics    *metrics.StorefrontMetrics
	logg       *logger.Logger
	timeout    time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	subMu   sync.Mutex
	subs    map[int]Subscriber
	nextSub int
}

// NewStore builds a store for one customer session. A persisted snapshot, if
// present and intact, is restored; a corrupted snapshot triggers a full cart
// reset (the only unrecoverable local-state fault).
func NewStore(ctx context.Context, opts Options) (*Store, error) {
	if opts.CustomerID == "" {
		return nil, fmt.Errorf("customer id required")
	}
	if opts.Remote == nil {
		return nil, fmt.Errorf("remote cart service required")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}

	storeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Store{
		cart:       Cart{ShippingCents: opts.ShippingCents},
		syncState:  enums.CartSyncSynced,
		customerID: opts.CustomerID,
		remote:     opts.Remote,
		snapshots:  opts.Snapshots,
		metrics:    opts.Metrics,
		logg:       opts.Logger,
		timeout:    opts.RequestTimeout,
		ctx:        storeCtx,
		cancel:     cancel,
		subs:       map[int]Subscriber{},
	}
	s.cart.recompute()

	if opts.Snapshots != nil {
		s.restore(ctx)
	}
	return s, nil
}

func (s *Store) restore(ctx context.Context) {
	persisted, err := s.snapshots.Load(ctx, s.customerID)
	if err != nil {
		s.warn(ctx, "cart snapshot load failed", err)
		return
	}
	if persisted == nil {
		return
	}
	if err := persisted.Validate(); err != nil {
		// Corrupt local state: reset rather than resurrect bad data.
		s.warn(ctx, "cart snapshot corrupt, resetting cart", err)
		if delErr := s.snapshots.Delete(ctx, s.customerID); delErr != nil {
			s.warn(ctx, "cart snapshot delete failed", delErr)
		}
		return
	}
	configuredShipping := s.cart.ShippingCents
	s.cart = persisted.Cart.Clone()
	if s.cart.ShippingCents == 0 {
		// Older snapshots predate the flat rate; keep the configured value.
		s.cart.ShippingCents = configuredShipping
	}
	s.seq = persisted.Seq
	s.appliedSeq = persisted.Seq
	s.syncState = persisted.SyncState
	if s.syncState == enums.CartSyncPending {
		// In-flight work did not survive the previous process.
		s.syncState = enums.CartSyncUnsynced
	}
	s.cart.recompute()
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a change listener and returns its unsubscribe func.
func (s *Store) Subscribe(fn Subscriber) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

// AddLine adds the given line, merging into an existing line with the same
// identity key. An add that would push the quantity past MaxQuantity is
// rejected whole; there is no partial add.
func (s *Store) AddLine(line Line) (Snapshot, error) {
	if line.ProductID == uuid.Nil {
		return s.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if line.Quantity < 1 {
		return s.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if line.MaxQuantity < 1 {
		return s.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "max quantity must be at least 1")
	}
	if line.UnitPriceCents < 0 {
		return s.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}

	key := line.Key()
	if idx := s.cart.lineIndex(key); idx >= 0 {
		existing := s.cart.Lines[idx]
		next := existing.Quantity + line.Quantity
		if next > existing.MaxQuantity {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, pkgerrors.New(pkgerrors.CodeStockConflict, "quantity exceeds available stock").WithDetails(map[string]any{
				"line_key":      key,
				"requested_qty": next,
				"max_qty":       existing.MaxQuantity,
			})
		}
		s.cart.Lines[idx].Quantity = next
	} else {
		if line.Quantity > line.MaxQuantity {
			snap := s.snapshotLocked()
			s.mu.Unlock()
			return snap, pkgerrors.New(pkgerrors.CodeStockConflict, "quantity exceeds available stock").WithDetails(map[string]any{
				"line_key":      key,
				"requested_qty": line.Quantity,
				"max_qty":       line.MaxQuantity,
			})
		}
		added := line
		added.VariantID = copyStringPtr(line.VariantID)
		added.Image = copyStringPtr(line.Image)
		added.OriginalUnitPriceCents = copyIntPtr(line.OriginalUnitPriceCents)
		s.cart.Lines = append(s.cart.Lines, added)
	}

	input := AddItemInput{ProductID: line.ProductID, VariantID: copyStringPtr(line.VariantID), Quantity: line.Quantity}
	snap := s.mutatedLocked()
	seq := s.seq
	s.mu.Unlock()

	s.notify(snap)
	s.dispatch("add_item", seq, func(ctx context.Context) (*RemoteCart, error) {
		return s.remote.AddItem(ctx, input)
	})
	return snap, nil
}

// RemoveLine removes the line with the given identity key. Removal is
// idempotent: an absent key is a no-op and triggers no remote call.
func (s *Store) RemoveLine(key string) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}

	idx := s.cart.lineIndex(key)
	if idx < 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, nil
	}
	s.cart.Lines = append(s.cart.Lines[:idx], s.cart.Lines[idx+1:]...)

	snap := s.mutatedLocked()
	seq := s.seq
	s.mu.Unlock()

	s.notify(snap)
	s.dispatch("remove_item", seq, func(ctx context.Context) (*RemoteCart, error) {
		return s.remote.RemoveItem(ctx, key)
	})
	return snap, nil
}

// UpdateQuantity sets the quantity of an existing line. Out-of-range requests
// leave the cart unchanged and are reported to the caller.
func (s *Store) UpdateQuantity(key string, quantity int) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}

	idx := s.cart.lineIndex(key)
	if idx < 0 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, pkgerrors.New(pkgerrors.CodeNotFound, "cart line not found")
	}
	line := s.cart.Lines[idx]
	if quantity < 1 {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if quantity > line.MaxQuantity {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, pkgerrors.New(pkgerrors.CodeStockConflict, "quantity exceeds available stock").WithDetails(map[string]any{
			"line_key":      key,
			"requested_qty": quantity,
			"max_qty":       line.MaxQuantity,
		})
	}
	s.cart.Lines[idx].Quantity = quantity

	snap := s.mutatedLocked()
	seq := s.seq
	s.mu.Unlock()

	s.notify(snap)
	s.dispatch("update_item", seq, func(ctx context.Context) (*RemoteCart, error) {
		return s.remote.UpdateItem(ctx, key, quantity)
	})
	return snap, nil
}

// ApplyDiscount sets the cart discount, replacing any previous one. The
// discount lives client-side only: the remote cart service knows nothing of
// promo codes, so no reconciliation call is issued.
func (s *Store) ApplyDiscount(amountCents int, promoCode *string) (Snapshot, error) {
	if amountCents < 0 {
		return s.Snapshot(), pkgerrors.New(pkgerrors.CodeValidation, "discount cannot be negative")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}
	s.cart.DiscountCents = amountCents
	s.cart.PromoCode = copyStringPtr(promoCode)
	s.cart.recompute()
	snap := s.snapshotLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// RemoveDiscount clears the discount and promo code.
func (s *Store) RemoveDiscount() (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}
	s.cart.DiscountCents = 0
	s.cart.PromoCode = nil
	s.cart.recompute()
	snap := s.snapshotLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// Clear empties the cart and resets discount state. Used after successful
// order placement and on explicit user request.
func (s *Store) Clear() (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}
	s.cart.Lines = nil
	s.cart.DiscountCents = 0
	s.cart.PromoCode = nil

	snap := s.mutatedLocked()
	seq := s.seq
	s.mu.Unlock()

	s.notify(snap)
	s.dispatch("clear", seq, func(ctx context.Context) (*RemoteCart, error) {
		return s.remote.Clear(ctx)
	})
	return snap, nil
}

// Refresh synchronously replaces local state with the remote cart. Only legal
// when no optimistic mutation is pending; used when a session starts with no
// usable snapshot.
func (s *Store) Refresh(ctx context.Context) (Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}
	if s.seq != s.appliedSeq {
		snap := s.snapshotLocked()
		s.mu.Unlock()
		return snap, pkgerrors.New(pkgerrors.CodeStateConflict, "cart has pending mutations")
	}
	s.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	remote, err := s.remote.Fetch(callCtx)
	if err != nil {
		return s.Snapshot(), pkgerrors.Wrap(pkgerrors.CodeNetwork, err, "fetch remote cart")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, errStoreClosed()
	}
	if s.seq == s.appliedSeq {
		s.replaceFromRemoteLocked(remote)
		s.syncState = enums.CartSyncSynced
	}
	snap := s.snapshotLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.notify(snap)
	return snap, nil
}

// Close tears the store down. Pending remote responses are discarded, not
// applied.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

// mutatedLocked finalizes an optimistic mutation: recompute, bump the request
// sequence, mark pending, persist. Caller holds the lock.
func (s *Store) mutatedLocked() Snapshot {
	s.cart.recompute()
	s.seq++
	s.syncState = enums.CartSyncPending
	s.persistLocked()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	return Snapshot{
		Cart:      s.cart.Clone(),
		SyncState: s.syncState,
		Seq:       s.seq,
	}
}

func (s *Store) persistLocked() {
	if s.snapshots == nil {
		return
	}
	persisted := PersistedSnapshot{
		Cart:      s.cart.Clone(),
		Seq:       s.seq,
		SyncState: s.syncState,
		SavedAt:   time.Now().UTC(),
	}
	if err := s.snapshots.Save(s.ctx, s.customerID, persisted); err != nil {
		s.warn(s.ctx, "cart snapshot save failed", err)
	}
}

func (s *Store) dispatch(operation string, seq uint64, call func(ctx context.Context) (*RemoteCart, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
		defer cancel()
		remote, err := call(ctx)
		s.applyRemote(operation, seq, remote, err)
	}()
}

// applyRemote reconciles one remote response. Responses are applied in issue
// order: anything at or below appliedSeq is stale and dropped. A successful
// response replaces local state only when no newer optimistic mutation exists.
func (s *Store) applyRemote(operation string, seq uint64, remote *RemoteCart, err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if seq <= s.appliedSeq {
		s.mu.Unlock()
		s.metrics.ObserveCartSync(operation, metrics.SyncStale)
		return
	}
	s.appliedSeq = seq

	if err != nil {
		latest := seq == s.seq
		if latest {
			s.syncState = enums.CartSyncUnsynced
		}
		snap := s.snapshotLocked()
		snap.SyncError = err.Error()
		s.persistLocked()
		s.mu.Unlock()

		s.metrics.ObserveCartSync(operation, metrics.SyncFailed)
		s.warn(s.ctx, "cart sync failed, optimistic state retained", err)
		s.notify(snap)
		return
	}

	if seq == s.seq {
		s.replaceFromRemoteLocked(remote)
		s.syncState = enums.CartSyncSynced
	}
	snap := s.snapshotLocked()
	s.persistLocked()
	s.mu.Unlock()

	s.metrics.ObserveCartSync(operation, metrics.SyncApplied)
	s.notify(snap)
}

// replaceFromRemoteLocked overlays the authoritative remote lines onto local
// state. The discount and promo code are client-side concerns and survive the
// replacement; totals are recomputed from the new lines.
func (s *Store) replaceFromRemoteLocked(remote *RemoteCart) {
	if remote == nil {
		return
	}
	lines := make([]Line, len(remote.Lines))
	copy(lines, remote.Lines)
	for i, line := range lines {
		lines[i].VariantID = copyStringPtr(line.VariantID)
		lines[i].Image = copyStringPtr(line.Image)
		lines[i].OriginalUnitPriceCents = copyIntPtr(line.OriginalUnitPriceCents)
	}
	s.cart.Lines = lines
	if remote.ShippingCents > 0 {
		s.cart.ShippingCents = remote.ShippingCents
	}
	s.cart.recompute()
}

func (s *Store) notify(snap Snapshot) {
	s.subMu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

func (s *Store) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}

func errStoreClosed() error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "cart store is closed")
}
