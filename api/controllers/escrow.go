package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/escrow"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

type createEscrowRequest struct {
	ListingID string      `json:"listingId" validate:"required"`
	DealerID  string      `json:"dealerId" validate:"required"`
	Amount    json.Number `json:"amount" validate:"required"`
	Currency  string      `json:"currency" validate:"required"`
}

type escrowResponse struct {
	Success bool              `json:"success,omitempty"`
	Escrow  *escrow.EscrowDTO `json:"escrow"`
}

// CreateEscrow opens an escrow and returns the payment client secret.
func CreateEscrow(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createEscrowRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := parseUUID(body.ListingID, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		dealerID, err := parseUUID(body.DealerID, "dealerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), actor, escrow.CreateInput{
			ListingID: listingID,
			DealerID:  dealerID,
			Amount:    body.Amount.String(),
			Currency:  body.Currency,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// GetEscrow returns an escrow visible to the caller.
func GetEscrow(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := uuidParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Get(r.Context(), actor, escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, escrowResponse{Escrow: record})
	}
}

// AdminReleaseEscrow releases a funded escrow once delivery completed.
func AdminReleaseEscrow(svc escrow.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "escrow service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		escrowID, err := uuidParam(r, "escrowId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Release(r.Context(), actor, escrowID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, escrowResponse{Success: true, Escrow: record})
	}
}
