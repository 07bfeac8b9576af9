package checkout

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: map[string]Session{}}
}

func (m *memSessionStore) Load(_ context.Context, customerID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	session, ok := m.sessions[customerID]
	if !ok {
		return nil, nil
	}
	return &session, nil
}

func (m *memSessionStore) Save(_ context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[session.CustomerID.String()] = *session
	return nil
}

func (m *memSessionStore) Delete(_ context.Context, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, customerID)
	return nil
}

type noopRemote struct{}

func (noopRemote) Fetch(context.Context) (*cart.RemoteCart, error) { return &cart.RemoteCart{}, nil }
func (noopRemote) AddItem(context.Context, cart.AddItemInput) (*cart.RemoteCart, error) {
	return &cart.RemoteCart{}, nil
}
func (noopRemote) UpdateItem(context.Context, string, int) (*cart.RemoteCart, error) {
	return &cart.RemoteCart{}, nil
}
func (noopRemote) RemoveItem(context.Context, string) (*cart.RemoteCart, error) {
	return &cart.RemoteCart{}, nil
}
func (noopRemote) Clear(context.Context) (*cart.RemoteCart, error) { return &cart.RemoteCart{}, nil }

type stubCarts struct {
	store *cart.Store
}

func (s *stubCarts) Get(context.Context, string) (*cart.Store, error) {
	return s.store, nil
}

type stubAddrs struct {
	addrs map[uuid.UUID]*models.Address
}

func (s *stubAddrs) Get(_ context.Context, _ uuid.UUID, id uuid.UUID) (*models.Address, error) {
	if addr, ok := s.addrs[id]; ok {
		return addr, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
}

type stubPlacer struct {
	mu     sync.Mutex
	calls  int
	result *PlacementResult
	err    error
}

func (s *stubPlacer) Place(context.Context, PlacementRequest) (*PlacementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func (s *stubPlacer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type wizardFixture struct {
	svc        Service
	store      *cart.Store
	placer     *stubPlacer
	customerID uuid.UUID
}

func newWizardFixture(t *testing.T, seedCart bool) *wizardFixture {
	t.Helper()

	customerID := uuid.New()
	store, err := cart.NewStore(context.Background(), cart.Options{
		CustomerID: customerID.String(),
		Remote:     noopRemote{},
	})
	if err != nil {
		t.Fatalf("unexpected error building cart store: %v", err)
	}
	t.Cleanup(store.Close)

	if seedCart {
		if _, err := store.AddLine(cart.Line{
			ProductID:      uuid.New(),
			Name:           "widget",
			UnitPriceCents: 2500,
			Quantity:       2,
			MaxQuantity:    5,
		}); err != nil {
			t.Fatalf("unexpected error seeding cart: %v", err)
		}
	}

	placer := &stubPlacer{result: &PlacementResult{OrderID: uuid.New()}}
	svc, err := NewService(Options{
		Sessions:  newMemSessionStore(),
		Carts:     &stubCarts{store: store},
		Addresses: &stubAddrs{addrs: map[uuid.UUID]*models.Address{}},
		Placer:    placer,
	})
	if err != nil {
		t.Fatalf("unexpected error building wizard: %v", err)
	}
	return &wizardFixture{svc: svc, store: store, placer: placer, customerID: customerID}
}

func validShipping() ShippingInput {
	return ShippingInput{
		Email:      "buyer@example.com",
		Name:       "Test Buyer",
		Lines:      []string{"42 Elm Street"},
		City:       "Pune",
		Region:     "MH",
		PostalCode: "411001",
		Phone:      "+919812345678",
	}
}

func validCardPayment() PaymentInput {
	return PaymentInput{
		Method:     enums.PaymentMethodCard,
		CardNumber: "4111111111111111",
		CardExpiry: "12/39",
		CardCVV:    "123",
	}
}

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", code)
	}
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestBeginRequiresNonEmptyCart(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, false)
	_, err := fx.svc.Begin(context.Background(), fx.customerID)
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestBeginFreezesCartSnapshot(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	session, err := fx.svc.Begin(context.Background(), fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}
	if session.Step != enums.CheckoutStepShipping {
		t.Fatalf("expected shipping step, got %s", session.Step)
	}

	// A cart mutation after Begin must not leak into the frozen session.
	if _, err := fx.store.AddLine(cart.Line{
		ProductID:      uuid.New(),
		Name:           "gadget",
		UnitPriceCents: 999,
		Quantity:       1,
		MaxQuantity:    3,
	}); err != nil {
		t.Fatalf("unexpected error mutating cart: %v", err)
	}

	current, err := fx.svc.Current(context.Background(), fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error loading session: %v", err)
	}
	if len(current.Cart.Lines) != 1 {
		t.Fatalf("expected frozen cart with 1 line, got %d", len(current.Cart.Lines))
	}
	if current.Cart.SubtotalCents != 5000 {
		t.Fatalf("expected frozen subtotal 5000, got %d", current.Cart.SubtotalCents)
	}
}

func TestBeginResumesUnfinishedSession(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	first, err := fx.svc.Begin(context.Background(), fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}
	second, err := fx.svc.Begin(context.Background(), fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error on resumed begin: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected resumed session %s, got %s", first.ID, second.ID)
	}
}

func TestWizardHappyPath(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	ctx := context.Background()

	if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}

	session, err := fx.svc.SubmitShipping(ctx, fx.customerID, validShipping())
	if err != nil {
		t.Fatalf("unexpected error on shipping: %v", err)
	}
	if session.Step != enums.CheckoutStepPayment {
		t.Fatalf("expected payment step, got %s", session.Step)
	}

	session, err = fx.svc.SubmitPayment(ctx, fx.customerID, validCardPayment())
	if err != nil {
		t.Fatalf("unexpected error on payment: %v", err)
	}
	if session.Step != enums.CheckoutStepReview {
		t.Fatalf("expected review step, got %s", session.Step)
	}
	if session.Payment.Reference != "card ending 1111" {
		t.Fatalf("expected masked card reference, got %q", session.Payment.Reference)
	}

	session, err = fx.svc.PlaceOrder(ctx, fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error on place order: %v", err)
	}
	if session.Step != enums.CheckoutStepPlaced {
		t.Fatalf("expected placed step, got %s", session.Step)
	}
	if session.OrderID == nil {
		t.Fatalf("expected order id on placed session")
	}
	if !fx.store.Snapshot().Cart.IsEmpty() {
		t.Fatalf("expected live cart cleared after placement")
	}
}

func TestPlaceOrderRejectedOutsideReview(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	ctx := context.Background()

	if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}

	_, err := fx.svc.PlaceOrder(ctx, fx.customerID)
	assertCode(t, err, pkgerrors.CodeStateConflict)
	if fx.placer.callCount() != 0 {
		t.Fatalf("expected placer untouched, got %d calls", fx.placer.callCount())
	}
}

func TestPlaceOrderFailureRetainsCartAndSession(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	fx.placer.err = pkgerrors.New(pkgerrors.CodePlacement, "order was not accepted")
	ctx := context.Background()

	if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}
	if _, err := fx.svc.SubmitShipping(ctx, fx.customerID, validShipping()); err != nil {
		t.Fatalf("unexpected error on shipping: %v", err)
	}
	if _, err := fx.svc.SubmitPayment(ctx, fx.customerID, validCardPayment()); err != nil {
		t.Fatalf("unexpected error on payment: %v", err)
	}

	_, err := fx.svc.PlaceOrder(ctx, fx.customerID)
	assertCode(t, err, pkgerrors.CodePlacement)

	session, err := fx.svc.Current(ctx, fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error loading session: %v", err)
	}
	if session.Step != enums.CheckoutStepReview {
		t.Fatalf("expected session to stay at review, got %s", session.Step)
	}
	if fx.store.Snapshot().Cart.IsEmpty() {
		t.Fatalf("expected live cart retained after failed placement")
	}
}

func TestBackTransitions(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	ctx := context.Background()

	if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}

	// Back from the first step has nowhere to go.
	_, err := fx.svc.Back(ctx, fx.customerID)
	assertCode(t, err, pkgerrors.CodeStateConflict)

	if _, err := fx.svc.SubmitShipping(ctx, fx.customerID, validShipping()); err != nil {
		t.Fatalf("unexpected error on shipping: %v", err)
	}
	if _, err := fx.svc.SubmitPayment(ctx, fx.customerID, validCardPayment()); err != nil {
		t.Fatalf("unexpected error on payment: %v", err)
	}

	session, err := fx.svc.Back(ctx, fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error going back from review: %v", err)
	}
	if session.Step != enums.CheckoutStepPayment {
		t.Fatalf("expected payment step, got %s", session.Step)
	}

	session, err = fx.svc.Back(ctx, fx.customerID)
	if err != nil {
		t.Fatalf("unexpected error going back from payment: %v", err)
	}
	if session.Step != enums.CheckoutStepShipping {
		t.Fatalf("expected shipping step, got %s", session.Step)
	}
	// Captured shipping data survives the round trip.
	if session.Shipping == nil || session.Shipping.City != "Pune" {
		t.Fatalf("expected shipping details retained, got %+v", session.Shipping)
	}
}

func TestSubmitPaymentValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input PaymentInput
	}{
		{name: "short card number", input: PaymentInput{Method: enums.PaymentMethodCard, CardNumber: "4111", CardExpiry: "12/39", CardCVV: "123"}},
		{name: "malformed expiry", input: PaymentInput{Method: enums.PaymentMethodCard, CardNumber: "4111111111111111", CardExpiry: "13/39", CardCVV: "123"}},
		{name: "expired card", input: PaymentInput{Method: enums.PaymentMethodCard, CardNumber: "4111111111111111", CardExpiry: "01/20", CardCVV: "123"}},
		{name: "bad cvv", input: PaymentInput{Method: enums.PaymentMethodCard, CardNumber: "4111111111111111", CardExpiry: "12/39", CardCVV: "12"}},
		{name: "bad upi handle", input: PaymentInput{Method: enums.PaymentMethodUPI, UPIHandle: "not-a-handle"}},
		{name: "missing upi handle", input: PaymentInput{Method: enums.PaymentMethodUPI}},
		{name: "unknown method", input: PaymentInput{Method: enums.PaymentMethod("crypto")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fx := newWizardFixture(t, true)
			ctx := context.Background()
			if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
				t.Fatalf("unexpected error on begin: %v", err)
			}
			if _, err := fx.svc.SubmitShipping(ctx, fx.customerID, validShipping()); err != nil {
				t.Fatalf("unexpected error on shipping: %v", err)
			}

			_, err := fx.svc.SubmitPayment(ctx, fx.customerID, tc.input)
			assertCode(t, err, pkgerrors.CodeValidation)

			// The failed submit must not advance the wizard.
			session, err := fx.svc.Current(ctx, fx.customerID)
			if err != nil {
				t.Fatalf("unexpected error loading session: %v", err)
			}
			if session.Step != enums.CheckoutStepPayment {
				t.Fatalf("expected payment step after rejected input, got %s", session.Step)
			}
		})
	}
}

func TestSubmitShippingWithSavedAddress(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	addrID := uuid.New()
	saved := &models.Address{
		ID:         addrID,
		OwnerID:    fx.customerID,
		Type:       enums.AddressTypeShipping,
		Name:       "Saved Buyer",
		Lines:      []string{"7 Oak Avenue"},
		City:       "Mumbai",
		Region:     "MH",
		PostalCode: "400001",
		Phone:      "+919876543210",
	}

	svc, err := NewService(Options{
		Sessions:  newMemSessionStore(),
		Carts:     &stubCarts{store: fx.store},
		Addresses: &stubAddrs{addrs: map[uuid.UUID]*models.Address{addrID: saved}},
		Placer:    fx.placer,
	})
	if err != nil {
		t.Fatalf("unexpected error building wizard: %v", err)
	}

	ctx := context.Background()
	if _, err := svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}

	// Unknown saved address is rejected without advancing.
	badID := uuid.New()
	_, err = svc.SubmitShipping(ctx, fx.customerID, ShippingInput{Email: "buyer@example.com", AddressID: &badID})
	assertCode(t, err, pkgerrors.CodeNotFound)

	session, err := svc.SubmitShipping(ctx, fx.customerID, ShippingInput{
		Email:     "buyer@example.com",
		AddressID: &addrID,
	})
	if err != nil {
		t.Fatalf("unexpected error on shipping: %v", err)
	}
	if session.Shipping.City != "Mumbai" || session.Shipping.Name != "Saved Buyer" {
		t.Fatalf("expected saved address denormalized, got %+v", session.Shipping)
	}
}

func TestAbandonDropsSessionKeepsCart(t *testing.T) {
	t.Parallel()

	fx := newWizardFixture(t, true)
	ctx := context.Background()

	if _, err := fx.svc.Begin(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on begin: %v", err)
	}
	if err := fx.svc.Abandon(ctx, fx.customerID); err != nil {
		t.Fatalf("unexpected error on abandon: %v", err)
	}

	_, err := fx.svc.Current(ctx, fx.customerID)
	assertCode(t, err, pkgerrors.CodeNotFound)

	if fx.store.Snapshot().Cart.IsEmpty() {
		t.Fatalf("expected cart untouched by abandon")
	}
}
