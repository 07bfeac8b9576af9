package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

// RuleSource loads promo rules by normalized code. A (nil, nil) return means
// the code is unknown.
type RuleSource interface {
	RuleByCode(ctx context.Context, code string) (*models.PromoRule, error)
}

// Result is the outcome of evaluating a promo code against a subtotal. Valid
// is always true on a returned result; rejections surface as typed errors,
// and the flag marks that explicitly for API clients.
type Result struct {
	Code          string `json:"code"`
	Valid         bool   `json:"valid"`
	DiscountCents int    `json:"discount_cents"`
}

// Service evaluates promo codes. Evaluation is pure: it never mutates cart
// state, the caller decides whether to apply the resulting discount.
type Service interface {
	Evaluate(ctx context.Context, code string, subtotalCents int) (*Result, error)
}

type service struct {
	rules RuleSource
	now   func() time.Time
}

// NewService builds the promo evaluator.
func NewService(rules RuleSource) (Service, error) {
	if rules == nil {
		return nil, errors.New("rule source is required")
	}
	return &service{rules: rules, now: time.Now}, nil
}

// NormalizeCode uppercases and trims a promo code for lookup and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *service) Evaluate(ctx context.Context, code string, subtotalCents int) (*Result, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "promo code is required")
	}
	if subtotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subtotal cannot be negative")
	}

	rule, err := s.rules.RuleByCode(ctx, normalized)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "loading promo rule")
	}
	if rule == nil {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "unknown promo code").WithDetails(map[string]any{"code": normalized})
	}
	if !rule.Active {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "promo code is no longer active").WithDetails(map[string]any{"code": normalized})
	}
	if rule.ExpiresAt != nil && rule.ExpiresAt.Before(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "promo code has expired").WithDetails(map[string]any{"code": normalized})
	}
	if rule.MinSubtotalCents > 0 && subtotalCents < rule.MinSubtotalCents {
		return nil, pkgerrors.New(pkgerrors.CodePromoInvalid, "subtotal below promo minimum").WithDetails(map[string]any{
			"code":               normalized,
			"min_subtotal_cents": rule.MinSubtotalCents,
		})
	}

	discount, err := discountFor(rule, subtotalCents)
	if err != nil {
		return nil, err
	}
	if discount > subtotalCents {
		discount = subtotalCents
	}
	if discount < 0 {
		discount = 0
	}
	return &Result{Code: normalized, Valid: true, DiscountCents: discount}, nil
}

// discountFor computes the raw discount before clamping. Percentage math runs
// on decimals and floors to whole cents so a discount never exceeds the exact
// fraction.
func discountFor(rule *models.PromoRule, subtotalCents int) (int, error) {
	switch rule.Kind {
	case enums.PromoKindPercentage:
		if rule.Rate.IsNegative() || rule.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return 0, pkgerrors.New(pkgerrors.CodePromoInvalid, "promo rate out of range").WithDetails(map[string]any{"code": rule.Code})
		}
		raw := decimal.NewFromInt(int64(subtotalCents)).Mul(rule.Rate)
		return int(raw.Floor().IntPart()), nil
	case enums.PromoKindFixed:
		return rule.AmountCents, nil
	default:
		return 0, pkgerrors.New(pkgerrors.CodePromoInvalid, "unknown promo kind").WithDetails(map[string]any{"code": rule.Code})
	}
}
