package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/himanshu-firke/shopsphere-backend/api/middleware"
	pkgerrors "github.com/himanshu-firke/shopsphere-backend/pkg/errors"
)

// customerFromRequest resolves the authenticated customer seeded by the auth
// middleware.
func customerFromRequest(r *http.Request) (uuid.UUID, error) {
	raw := middleware.CustomerIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid customer id")
	}
	return id, nil
}
