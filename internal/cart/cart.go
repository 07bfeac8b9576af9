package cart

import (
	"strings"

	"github.com/google/uuid"
)

// DefaultVariant keys lines that carry no variant.
const DefaultVariant = "default"

// Line is one product (plus optional variant) with a quantity in a cart.
type Line struct {
	ProductID              uuid.UUID `json:"product_id"`
	VariantID              *string   `json:"variant_id,omitempty"`
	Name                   string    `json:"name"`
	Image                  *string   `json:"image,omitempty"`
	UnitPriceCents         int       `json:"unit_price_cents"`
	OriginalUnitPriceCents *int      `json:"original_unit_price_cents,omitempty"`
	Quantity               int       `json:"quantity"`
	MaxQuantity            int       `json:"max_quantity"`
}

// Key returns the identity key of the line, unique within a cart.
func (l Line) Key() string {
	return LineKey(l.ProductID, l.VariantID)
}

// LineKey builds the identity key for a product/variant pair.
func LineKey(productID uuid.UUID, variantID *string) string {
	variant := DefaultVariant
	if variantID != nil && strings.TrimSpace(*variantID) != "" {
		variant = strings.TrimSpace(*variantID)
	}
	return productID.String() + "/" + variant
}

// Cart holds ordered lines plus derived totals. Lines keep insertion order;
// identity keys are unique.
type Cart struct {
	Lines         []Line  `json:"lines"`
	SubtotalCents int     `json:"subtotal_cents"`
	ShippingCents int     `json:"shipping_cents"`
	DiscountCents int     `json:"discount_cents"`
	PromoCode     *string `json:"promo_code,omitempty"`
	TotalCents    int     `json:"total_cents"`
}

// Clone returns a deep copy, safe to hand to subscribers and snapshots.
func (c Cart) Clone() Cart {
	out := c
	out.Lines = make([]Line, len(c.Lines))
	copy(out.Lines, c.Lines)
	for i, line := range out.Lines {
		out.Lines[i].VariantID = copyStringPtr(line.VariantID)
		out.Lines[i].Image = copyStringPtr(line.Image)
		out.Lines[i].OriginalUnitPriceCents = copyIntPtr(line.OriginalUnitPriceCents)
	}
	out.PromoCode = copyStringPtr(c.PromoCode)
	return out
}

// IsEmpty reports whether the cart holds no lines.
func (c Cart) IsEmpty() bool {
	return len(c.Lines) == 0
}

// lineIndex returns the position of the line with the given identity key, or -1.
func (c Cart) lineIndex(key string) int {
	for i, line := range c.Lines {
		if line.Key() == key {
			return i
		}
	}
	return -1
}

// recompute derives subtotal and total from the lines. The discount is
// clamped so the total never goes negative.
func (c *Cart) recompute() {
	subtotal := 0
	for _, line := range c.Lines {
		subtotal += line.UnitPriceCents * line.Quantity
	}
	c.SubtotalCents = subtotal

	if c.DiscountCents < 0 {
		c.DiscountCents = 0
	}
	if c.DiscountCents > subtotal {
		c.DiscountCents = subtotal
	}
	c.TotalCents = subtotal + c.ShippingCents - c.DiscountCents
}

func copyStringPtr(src *string) *string {
	if src == nil {
		return nil
	}
	val := *src
	return &val
}

func copyIntPtr(src *int) *int {
	if src == nil {
		return nil
	}
	val := *src
	return &val
}
