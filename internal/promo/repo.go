package promo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
)

// Repository loads promo rules from the database.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a promo repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// RuleByCode returns the rule for a normalized code, or (nil, nil) when the
// code does not exist.
func (r *Repository) RuleByCode(ctx context.Context, code string) (*models.PromoRule, error) {
	var rule models.PromoRule
	err := r.db.WithContext(ctx).
		Where("code = ?", NormalizeCode(code)).
		First(&rule).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

// Upsert inserts or replaces a promo rule. Used by admin tooling and seeds.
func (r *Repository) Upsert(ctx context.Context, rule *models.PromoRule) error {
	rule.Code = NormalizeCode(rule.Code)
	return r.db.WithContext(ctx).Save(rule).Error
}
