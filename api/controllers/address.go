package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/api/responses"
	"github.com/himanshu-firke/shopsphere-backend/api/validators"
	addresssvc "github.com/himanshu-firke/shopsphere-backend/internal/address"
	"github.com/himanshu-firke/shopsphere-backend/pkg/db/models"
	"github.com/himanshu-firke/shopsphere-backend/pkg/enums"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
	"github.com/himanshu-firke/shopsphere-backend/pkg/logger"
)

type addressResponse struct {
	ID         uuid.UUID         `json:"id"`
	Type       enums.AddressType `json:"type"`
	Name       string            `json:"name"`
	Lines      []string          `json:"lines"`
	City       string            `json:"city"`
	Region     string            `json:"region"`
	PostalCode string            `json:"postal_code"`
	Phone      string            `json:"phone"`
	IsDefault  bool              `json:"is_default"`
}

func newAddressResponse(record *models.Address) addressResponse {
	return addressResponse{
		ID:         record.ID,
		Type:       record.Type,
		Name:       record.Name,
		Lines:      []string(record.Lines),
		City:       record.City,
		Region:     record.Region,
		PostalCode: record.PostalCode,
		Phone:      record.Phone,
		IsDefault:  record.IsDefault,
	}
}

// ListAddresses returns the customer's address book, defaults first.
func ListAddresses(svc addresssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		ownerID, err := customerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := svc.List(r.Context(), ownerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		out := make([]addressResponse, 0, len(records))
		for i := range records {
			out = append(out, newAddressResponse(&records[i]))
		}
		responses.WriteSuccess(w, out)
	}
}

type createAddressRequest struct {
	Type        string   `json:"type" validate:"required"`
	Name        string   `json:"name" validate:"required"`
	Lines       []string `json:"lines" validate:"required,min=1"`
	City        string   `json:"city" validate:"required"`
	Region      string   `json:"region" validate:"required"`
	PostalCode  string   `json:"postal_code" validate:"required"`
	Phone       string   `json:"phone,omitempty"`
	MakeDefault bool     `json:"make_default"`
}

// CreateAddress adds an address to the customer's book.
func CreateAddress(svc addresssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		ownerID, err := customerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addrType, err := enums.ParseAddressType(payload.Type)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address type"))
			return
		}

		record, err := svc.Create(r.Context(), ownerID, addresssvc.CreateInput{
			Type:        addrType,
			Name:        payload.Name,
			Lines:       payload.Lines,
			City:        payload.City,
			Region:      payload.Region,
			PostalCode:  payload.PostalCode,
			Phone:       payload.Phone,
			MakeDefault: payload.MakeDefault,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newAddressResponse(record))
	}
}

type updateAddressRequest struct {
	Name       string   `json:"name" validate:"required"`
	Lines      []string `json:"lines" validate:"required,min=1"`
	City       string   `json:"city" validate:"required"`
	Region     string   `json:"region" validate:"required"`
	PostalCode string   `json:"postal_code" validate:"required"`
	Phone      string   `json:"phone,omitempty"`
}

// UpdateAddress rewrites the mutable fields of an address. The type and the
// default marker stay as they are.
func UpdateAddress(svc addresssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		ownerID, err := customerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addressID, err := addressIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateAddressRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Update(r.Context(), ownerID, addressID, addresssvc.UpdateInput{
			Name:       payload.Name,
			Lines:      payload.Lines,
			City:       payload.City,
			Region:     payload.Region,
			PostalCode: payload.PostalCode,
			Phone:      payload.Phone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAddressResponse(record))
	}
}

// DeleteAddress removes an address. Deleting the default leaves its type
// without a default; no sibling is promoted.
func DeleteAddress(svc addresssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		ownerID, err := customerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addressID, err := addressIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), ownerID, addressID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "deleted"})
	}
}

// SetDefaultAddress atomically moves the default marker of the address's type.
func SetDefaultAddress(svc addresssvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "address service unavailable"))
			return
		}

		ownerID, err := customerFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		addressID, err := addressIDFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.SetDefault(r.Context(), ownerID, addressID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newAddressResponse(record))
	}
}

func addressIDFromRequest(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "addressID"))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid address id")
	}
	return id, nil
}
