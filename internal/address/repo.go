package address

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
)

// Repository exposes persistence operations for the address book.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs an address repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) AddressRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new address.
func (r *Repository) Create(ctx context.Context, addr *models.Address) (*models.Address, error) {
	if addr.ID == uuid.Nil {
		addr.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(addr).Error; err != nil {
		return nil, err
	}
	return addr, nil
}

// Update saves the provided address.
func (r *Repository) Update(ctx context.Context, addr *models.Address) (*models.Address, error) {
	if err := r.db.WithContext(ctx).Save(addr).Error; err != nil {
		return nil, err
	}
	return addr, nil
}

// FindByIDAndOwner returns the owner's address, or (nil, nil) when absent.
func (r *Repository) FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ListByOwner returns all of the owner's addresses, defaults first.
func (r *Repository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Address, error) {
	var addrs []models.Address
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("is_default DESC, created_at ASC").
		Find(&addrs).Error
	if err != nil {
		return nil, err
	}
	return addrs, nil
}

// FindDefault returns the owner's default address of the given type, or
// (nil, nil) when none is set.
func (r *Repository) FindDefault(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) (*models.Address, error) {
	var addr models.Address
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND type = ? AND is_default = ?", ownerID, addrType, true).
		First(&addr).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

// ClearDefault unsets is_default on every address of the owner/type pair.
func (r *Repository) ClearDefault(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) error {
	return r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("owner_id = ? AND type = ? AND is_default = ?", ownerID, addrType, true).
		Update("is_default", false).Error
}

// SetDefault marks the given address as default. Caller clears siblings first,
// inside the same transaction.
func (r *Repository) SetDefault(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Address{}).
		Where("id = ?", id).
		Update("is_default", true).Error
}

// Delete removes the owner's address. Returns the number of rows removed.
func (r *Repository) Delete(ctx context.Context, id, ownerID uuid.UUID) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Delete(&models.Address{})
	return result.RowsAffected, result.Error
}
