package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
)

// Address is one entry in a customer's address book. Per (owner_id, type) at
// most one row may have is_default = true.
type Address struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID    uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index:idx_addresses_owner_type"`
	Type       enums.AddressType `gorm:"column:type;type:text;not null;index:idx_addresses_owner_type"`
	Name       string            `gorm:"column:name;not null"`
	Lines      pq.StringArray    `gorm:"column:lines;type:text[];not null"`
	City       string            `gorm:"column:city;not null"`
	Region     string            `gorm:"column:region;not null"`
	PostalCode string            `gorm:"column:postal_code;not null"`
	Phone      string            `gorm:"column:phone;not null"`
	IsDefault  bool              `gorm:"column:is_default;not null;default:false"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
