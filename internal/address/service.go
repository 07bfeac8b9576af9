package address

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// AddressRepository is the persistence surface the service depends on.
type AddressRepository interface {
	WithTx(tx *gorm.DB) AddressRepository
	Create(ctx context.Context, addr *models.Address) (*models.Address, error)
	Update(ctx context.Context, addr *models.Address) (*models.Address, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID uuid.UUID) (*models.Address, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Address, error)
	FindDefault(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) (*models.Address, error)
	ClearDefault(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) error
	SetDefault(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id, ownerID uuid.UUID) (int64, error)
}

// CreateInput carries the fields of a new address.
type CreateInput struct {
	Type        enums.AddressType
	Name        string
	Lines       []string
	City        string
	Region      string
	PostalCode  string
	Phone       string
	MakeDefault bool
}

// UpdateInput carries the mutable fields of an existing address. The type is
// immutable: changing it would silently move the default marker across books.
type UpdateInput struct {
	Name       string
	Lines      []string
	City       string
	Region     string
	PostalCode string
	Phone      string
}

// Service manages a customer's address book and its per-type default marker.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*models.Address, error)
	Update(ctx context.Context, ownerID, id uuid.UUID, input UpdateInput) (*models.Address, error)
	Delete(ctx context.Context, ownerID, id uuid.UUID) error
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Address, error)
	List(ctx context.Context, ownerID uuid.UUID) ([]models.Address, error)
	SetDefault(ctx context.Context, ownerID, id uuid.UUID) (*models.Address, error)
	Default(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) (*models.Address, error)
}

type service struct {
	tx   txRunner
	repo AddressRepository
}

// NewService builds the address service.
func NewService(tx txRunner, repo AddressRepository) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("address repository required")
	}
	return &service{tx: tx, repo: repo}, nil
}

// Create inserts a new address. The first address of a type becomes the
// default automatically; otherwise MakeDefault switches the marker atomically
// with the insert.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, input CreateInput) (*models.Address, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if err := validateFields(input.Name, input.Lines, input.City, input.Region, input.PostalCode); err != nil {
		return nil, err
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown address type")
	}

	addr := &models.Address{
		OwnerID:    ownerID,
		Type:       input.Type,
		Name:       strings.TrimSpace(input.Name),
		Lines:      pq.StringArray(trimLines(input.Lines)),
		City:       strings.TrimSpace(input.City),
		Region:     strings.TrimSpace(input.Region),
		PostalCode: strings.TrimSpace(input.PostalCode),
		Phone:      strings.TrimSpace(input.Phone),
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindDefault(ctx, ownerID, input.Type)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading current default")
		}
		addr.IsDefault = input.MakeDefault || current == nil
		if addr.IsDefault && current != nil {
			if err := repo.ClearDefault(ctx, ownerID, input.Type); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing previous default")
			}
		}

		if _, err := repo.Create(ctx, addr); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "creating address")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// Update rewrites the mutable fields of the owner's address.
func (s *service) Update(ctx context.Context, ownerID, id uuid.UUID, input UpdateInput) (*models.Address, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id and address id required")
	}
	if err := validateFields(input.Name, input.Lines, input.City, input.Region, input.PostalCode); err != nil {
		return nil, err
	}

	addr, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading address")
	}
	if addr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}

	addr.Name = strings.TrimSpace(input.Name)
	addr.Lines = pq.StringArray(trimLines(input.Lines))
	addr.City = strings.TrimSpace(input.City)
	addr.Region = strings.TrimSpace(input.Region)
	addr.PostalCode = strings.TrimSpace(input.PostalCode)
	addr.Phone = strings.TrimSpace(input.Phone)

	updated, err := s.repo.Update(ctx, addr)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "updating address")
	}
	return updated, nil
}

// Delete removes the owner's address. Deleting the default leaves the type
// with no default; nothing is promoted in its place.
func (s *service) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id and address id required")
	}

	rows, err := s.repo.Delete(ctx, id, ownerID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "deleting address")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return nil
}

// Get returns the owner's address by id.
func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Address, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id and address id required")
	}
	addr, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading address")
	}
	if addr == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
	}
	return addr, nil
}

// List returns the owner's address book, defaults first.
func (s *service) List(ctx context.Context, ownerID uuid.UUID) ([]models.Address, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	addrs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "listing addresses")
	}
	return addrs, nil
}

// SetDefault atomically moves the default marker of the address's type: the
// previous default is cleared and the target set inside one transaction, so
// no interleaving can observe two defaults or none where one existed.
func (s *service) SetDefault(ctx context.Context, ownerID, id uuid.UUID) (*models.Address, error) {
	if ownerID == uuid.Nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id and address id required")
	}

	var addr *models.Address
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		found, err := repo.FindByIDAndOwner(ctx, id, ownerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading address")
		}
		if found == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		if found.IsDefault {
			addr = found
			return nil
		}

		if err := repo.ClearDefault(ctx, ownerID, found.Type); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "clearing previous default")
		}
		if err := repo.SetDefault(ctx, found.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "setting default")
		}
		found.IsDefault = true
		addr = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return addr, nil
}

// Default returns the owner's default address of the given type, or
// (nil, nil) when none is set.
func (s *service) Default(ctx context.Context, ownerID uuid.UUID, addrType enums.AddressType) (*models.Address, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if !addrType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown address type")
	}
	addr, err := s.repo.FindDefault(ctx, ownerID, addrType)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "loading default address")
	}
	return addr, nil
}

func validateFields(name string, lines []string, city, region, postalCode string) error {
	if strings.TrimSpace(name) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient name is required")
	}
	if len(trimLines(lines)) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one address line is required")
	}
	if strings.TrimSpace(city) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "city is required")
	}
	if strings.TrimSpace(region) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "region is required")
	}
	if strings.TrimSpace(postalCode) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "postal code is required")
	}
	return nil
}

func trimLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
