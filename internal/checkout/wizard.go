package checkout

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/internal/cart"
	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
	"github.com/himanshu-firke/shopsphere-backend/pkg/metrics"
)

const defaultPlacementTimeout = 10 * time.Second

type cartAccess interface {
	Get(ctx context.Context, customerID string) (*cart.Store, error)
}

type addressLoader interface {
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Address, error)
}

// Service drives the checkout wizard: shipping, payment, review, placed. All
// transitions are guarded; a request that does not match the session's
// current step is rejected without side effects.
type Service interface {
	Begin(ctx context.Context, customerID uuid.UUID) (*Session, error)
	Current(ctx context.Context, customerID uuid.UUID) (*Session, error)
	SubmitShipping(ctx context.Context, customerID uuid.UUID, input ShippingInput) (*Session, error)
	SubmitPayment(ctx context.Context, customerID uuid.UUID, input PaymentInput) (*Session, error)
	Back(ctx context.Context, customerID uuid.UUID) (*Session, error)
	PlaceOrder(ctx context.Context, customerID uuid.UUID) (*Session, error)
	Abandon(ctx context.Context, customerID uuid.UUID) error
}

// Options configures the wizard service.
type Options struct {
	Sessions         SessionStore
	Carts            cartAccess
	Addresses        addressLoader
	Placer           OrderPlacer
	Metrics          *metrics.StorefrontMetrics
	Logger           *logger.Logger
	PlacementTimeout time.Duration
}

type service struct {
	sessions SessionStore
	carts    cartAccess
	addrs    addressLoader
	placer   OrderPlacer
	metrics  *metrics.StorefrontMetrics
	logg     *logger.Logger
	validate *validator.Validate
	timeout  time.Duration
	now      func() time.Time
}

// NewService builds the checkout wizard.
func NewService(opts Options) (Service, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("session store required")
	}
	if opts.Carts == nil {
		return nil, fmt.Errorf("cart access required")
	}
	if opts.Addresses == nil {
		return nil, fmt.Errorf("address loader required")
	}
	if opts.Placer == nil {
		return nil, fmt.Errorf("order placer required")
	}
	if opts.PlacementTimeout <= 0 {
		opts.PlacementTimeout = defaultPlacementTimeout
	}
	return &service{
		sessions: opts.Sessions,
		carts:    opts.Carts,
		addrs:    opts.Addresses,
		placer:   opts.Placer,
		metrics:  opts.Metrics,
		logg:     opts.Logger,
		validate: newValidator(),
		timeout:  opts.PlacementTimeout,
		now:      time.Now,
	}, nil
}

// Begin starts a checkout, freezing the current cart into the session. An
// unfinished session is resumed instead of being replaced.
func (s *service) Begin(ctx context.Context, customerID uuid.UUID) (*Session, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}

	existing, err := s.loadSession(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Step != enums.CheckoutStepPlaced {
		return existing, nil
	}

	store, err := s.carts.Get(ctx, customerID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading cart")
	}
	snap := store.Snapshot()
	if snap.Cart.IsEmpty() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	now := s.now().UTC()
	session := &Session{
		ID:         uuid.New(),
		CustomerID: customerID,
		Step:       enums.CheckoutStepShipping,
		Cart:       snap.Cart.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving checkout session")
	}
	return session, nil
}

// Current returns the customer's in-flight session.
func (s *service) Current(ctx context.Context, customerID uuid.UUID) (*Session, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	session, err := s.loadSession(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no checkout in progress")
	}
	return session, nil
}

// SubmitShipping records the destination and advances to the payment step.
func (s *service) SubmitShipping(ctx context.Context, customerID uuid.UUID, input ShippingInput) (*Session, error) {
	session, err := s.sessionAtStep(ctx, customerID, enums.CheckoutStepShipping)
	if err != nil {
		return nil, err
	}
	if err := s.validateShipping(input); err != nil {
		return nil, err
	}

	details, err := s.resolveShipping(ctx, customerID, input)
	if err != nil {
		return nil, err
	}

	session.Shipping = details
	session.Step = enums.CheckoutStepPayment
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving checkout session")
	}
	return session, nil
}

// SubmitPayment validates the instrument and advances to review. Only the
// method and a masked reference are retained.
func (s *service) SubmitPayment(ctx context.Context, customerID uuid.UUID, input PaymentInput) (*Session, error) {
	session, err := s.sessionAtStep(ctx, customerID, enums.CheckoutStepPayment)
	if err != nil {
		return nil, err
	}
	if err := s.validatePayment(input, s.now()); err != nil {
		return nil, err
	}

	session.Payment = &PaymentDetails{
		Method:    input.Method,
		Reference: paymentReference(input),
	}
	session.Step = enums.CheckoutStepReview
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving checkout session")
	}
	return session, nil
}

// Back steps the wizard one step towards shipping. Captured data stays on the
// session so moving forward again does not force re-entry.
func (s *service) Back(ctx context.Context, customerID uuid.UUID) (*Session, error) {
	session, err := s.Current(ctx, customerID)
	if err != nil {
		return nil, err
	}

	switch session.Step {
	case enums.CheckoutStepPayment:
		session.Step = enums.CheckoutStepShipping
	case enums.CheckoutStepReview:
		session.Step = enums.CheckoutStepPayment
	default:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot go back from "+session.Step.String()).WithDetails(map[string]any{
			"step": session.Step.String(),
		})
	}

	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving checkout session")
	}
	return session, nil
}

// PlaceOrder submits the reviewed order. Success clears the live cart and
// marks the session placed; failure leaves session and cart untouched so the
// customer can retry.
func (s *service) PlaceOrder(ctx context.Context, customerID uuid.UUID) (*Session, error) {
	session, err := s.sessionAtStep(ctx, customerID, enums.CheckoutStepReview)
	if err != nil {
		return nil, err
	}
	if session.Shipping == nil || session.Payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "checkout session is incomplete")
	}

	req := PlacementRequest{
		SessionID:  session.ID,
		CustomerID: customerID,
		Lines:      session.Cart.Lines,
		Subtotal:   session.Cart.SubtotalCents,
		Shipping:   session.Cart.ShippingCents,
		Discount:   session.Cart.DiscountCents,
		Total:      session.Cart.TotalCents,
		PromoCode:  session.Cart.PromoCode,
		Method:     session.Payment.Method,
		Contact:    *session.Shipping,
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := s.now()
	result, err := s.placer.Place(callCtx, req)
	elapsed := s.now().Sub(started)
	if err != nil {
		s.metrics.ObservePlacement(session.Payment.Method.String(), "failed", elapsed)
		return nil, err
	}
	s.metrics.ObservePlacement(session.Payment.Method.String(), "placed", elapsed)

	session.Step = enums.CheckoutStepPlaced
	session.OrderID = &result.OrderID
	session.UpdatedAt = s.now().UTC()
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "saving checkout session")
	}

	// The order is already placed; a cart that fails to clear is an
	// inconvenience, not a failure.
	if store, cartErr := s.carts.Get(ctx, customerID.String()); cartErr == nil {
		if _, clearErr := store.Clear(); clearErr != nil {
			s.warn(ctx, "clearing cart after placement failed", clearErr)
		}
	} else {
		s.warn(ctx, "loading cart after placement failed", cartErr)
	}

	return session, nil
}

// Abandon drops the in-flight session. The cart is untouched.
func (s *service) Abandon(ctx context.Context, customerID uuid.UUID) error {
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if err := s.sessions.Delete(ctx, customerID.String()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting checkout session")
	}
	return nil
}

func (s *service) loadSession(ctx context.Context, customerID uuid.UUID) (*Session, error) {
	session, err := s.sessions.Load(ctx, customerID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading checkout session")
	}
	return session, nil
}

func (s *service) sessionAtStep(ctx context.Context, customerID uuid.UUID, step enums.CheckoutStep) (*Session, error) {
	session, err := s.Current(ctx, customerID)
	if err != nil {
		return nil, err
	}
	if session.Step != step {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "operation not allowed at step "+session.Step.String()).WithDetails(map[string]any{
			"step":          session.Step.String(),
			"expected_step": step.String(),
		})
	}
	return session, nil
}

func (s *service) resolveShipping(ctx context.Context, customerID uuid.UUID, input ShippingInput) (*ShippingDetails, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if input.AddressID != nil {
		addr, err := s.addrs.Get(ctx, customerID, *input.AddressID)
		if err != nil {
			return nil, err
		}
		return &ShippingDetails{
			Email:      email,
			Name:       addr.Name,
			Lines:      addr.Lines,
			City:       addr.City,
			Region:     addr.Region,
			PostalCode: addr.PostalCode,
			Phone:      addr.Phone,
		}, nil
	}

	return &ShippingDetails{
		Email:      email,
		Name:       strings.TrimSpace(input.Name),
		Lines:      input.Lines,
		City:       strings.TrimSpace(input.City),
		Region:     strings.TrimSpace(input.Region),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Phone:      strings.TrimSpace(input.Phone),
	}, nil
}

func (s *service) warn(ctx context.Context, msg string, err error) {
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), msg)
}
