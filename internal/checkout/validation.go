package checkout

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

var (
	cardNumberPattern = regexp.MustCompile(`^[0-9]{16}$`)
	cardExpiryPattern = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cardCVVPattern    = regexp.MustCompile(`^[0-9]{3,4}$`)
	upiHandlePattern  = regexp.MustCompile(`^[a-zA-Z0-9._-]{2,64}@[a-zA-Z]{2,32}$`)
	phonePattern      = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	postalCodePattern = regexp.MustCompile(`^[0-9A-Za-z][0-9A-Za-z -]{2,9}$`)
)

// ShippingInput is the payload of the shipping step. Either AddressID selects
// a saved address, or the inline fields describe a new destination.
type ShippingInput struct {
	Email     string     `json:"email" validate:"required,email"`
	AddressID *uuid.UUID `json:"address_id,omitempty"`

	Name       string   `json:"name,omitempty"`
	Lines      []string `json:"lines,omitempty"`
	City       string   `json:"city,omitempty"`
	Region     string   `json:"region,omitempty"`
	PostalCode string   `json:"postal_code,omitempty" validate:"omitempty,postal_code"`
	Phone      string   `json:"phone,omitempty" validate:"omitempty,phone"`
}

// PaymentInput is the payload of the payment step. Card and UPI fields are
// validated, forwarded to the placement service, and never stored.
type PaymentInput struct {
	Method enums.PaymentMethod `json:"method" validate:"required"`

	CardNumber string `json:"card_number,omitempty" validate:"omitempty,card_number"`
	CardExpiry string `json:"card_expiry,omitempty" validate:"omitempty,card_expiry"`
	CardCVV    string `json:"card_cvv,omitempty" validate:"omitempty,card_cvv"`
	UPIHandle  string `json:"upi_handle,omitempty" validate:"omitempty,upi_handle"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("card_number", regexRule(cardNumberPattern))
	_ = v.RegisterValidation("card_expiry", regexRule(cardExpiryPattern))
	_ = v.RegisterValidation("card_cvv", regexRule(cardCVVPattern))
	_ = v.RegisterValidation("upi_handle", regexRule(upiHandlePattern))
	_ = v.RegisterValidation("phone", regexRule(phonePattern))
	_ = v.RegisterValidation("postal_code", regexRule(postalCodePattern))
	return v
}

func regexRule(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}
}

func (s *service) validateShipping(input ShippingInput) error {
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid shipping details")
	}
	if input.AddressID != nil {
		return nil
	}
	// Inline destination: the address fields become required.
	if strings.TrimSpace(input.Name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	}
	if len(input.Lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one address line is required")
	}
	if strings.TrimSpace(input.City) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "city is required")
	}
	if strings.TrimSpace(input.Region) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "region is required")
	}
	if !postalCodePattern.MatchString(input.PostalCode) {
		return pkgerrors.New(pkgerrors.CodeValidation, "postal code is invalid")
	}
	return nil
}

func (s *service) validatePayment(input PaymentInput, now time.Time) error {
	if !input.Method.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment method")
	}
	if err := s.validate.Struct(input); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment details")
	}

	switch input.Method {
	case enums.PaymentMethodCard:
		if input.CardNumber == "" || input.CardExpiry == "" || input.CardCVV == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "card number, expiry and cvv are required")
		}
		if expired, err := cardExpired(input.CardExpiry, now); err != nil || expired {
			return pkgerrors.New(pkgerrors.CodeValidation, "card expiry is in the past")
		}
	case enums.PaymentMethodUPI:
		if input.UPIHandle == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "upi handle is required")
		}
	case enums.PaymentMethodCOD:
		// Nothing to validate beyond the method itself.
	}
	return nil
}

// cardExpired treats a card as valid through the last day of its MM/YY month.
func cardExpired(expiry string, now time.Time) (bool, error) {
	parts := strings.SplitN(expiry, "/", 2)
	if len(parts) != 2 {
		return true, fmt.Errorf("malformed expiry %q", expiry)
	}
	month, err := strconv.Atoi(parts[0])
	if err != nil {
		return true, err
	}
	year, err := strconv.Atoi(parts[1])
	if err != nil {
		return true, err
	}
	endOfMonth := time.Date(2000+year, time.Month(month), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return !now.Before(endOfMonth), nil
}

// paymentReference builds the display-safe summary retained in the session.
func paymentReference(input PaymentInput) string {
	switch input.Method {
	case enums.PaymentMethodCard:
		return "card ending " + input.CardNumber[len(input.CardNumber)-4:]
	case enums.PaymentMethodUPI:
		at := strings.Index(input.UPIHandle, "@")
		if at > 2 {
			return input.UPIHandle[:2] + strings.Repeat("*", at-2) + input.UPIHandle[at:]
		}
		return input.UPIHandle
	default:
		return "cash on delivery"
	}
}
