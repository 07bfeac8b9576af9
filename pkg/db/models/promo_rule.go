package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
)

// PromoRule defines one redeemable promo code. Percentage rules carry a rate
// in [0,1]; fixed rules carry a flat amount in cents.
type PromoRule struct {
	Code             string          `gorm:"column:code;primaryKey"`
	Kind             enums.PromoKind `gorm:"column:kind;type:text;not null"`
	Rate             decimal.Decimal `gorm:"column:rate;type:numeric(6,4);not null;default:0"`
	AmountCents      int             `gorm:"column:amount_cents;not null;default:0"`
	MinSubtotalCents int             `gorm:"column:min_subtotal_cents;not null;default:0"`
	Active           bool            `gorm:"column:active;not null;default:true"`
	ExpiresAt        *time.Time      `gorm:"column:expires_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
