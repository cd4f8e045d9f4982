package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/listings"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

type createListingRequest struct {
	Title          string              `json:"title" validate:"required,max=200"`
	Make           string              `json:"make" validate:"required,max=80"`
	Model          string              `json:"model" validate:"required,max=80"`
	Year           int                 `json:"year" validate:"required"`
	Price          json.Number         `json:"price" validate:"required"`
	Currency       string              `json:"currency" validate:"required"`
	Specifications *types.VehicleSpecs `json:"specifications,omitempty"`
}

type rejectListingRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"required"`
}

type listingDecisionResponse struct {
	Success bool                 `json:"success"`
	Listing *listings.ListingDTO `json:"listing"`
	Message string               `json:"message"`
}

type listingResponse struct {
	Success bool                 `json:"success,omitempty"`
	Listing *listings.ListingDTO `json:"listing"`
}

// DealerCreateListing submits a listing for moderation.
func DealerCreateListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := listings.CreateInput{
			Title:    validators.SanitizeString(body.Title, 200),
			Make:     validators.SanitizeString(body.Make, 80),
			Model:    validators.SanitizeString(body.Model, 80),
			Year:     body.Year,
			Price:    body.Price.String(),
			Currency: body.Currency,
		}
		if body.Specifications != nil {
			input.Specifications = *body.Specifications
		}

		listing, err := svc.Create(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listingResponse{Success: true, Listing: listing})
	}
}

// GetListing returns a listing by id.
func GetListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Get(r.Context(), actor, listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingResponse{Listing: listing})
	}
}

// AdminListListings returns the moderation queue, optionally filtered by status.
func AdminListListings(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		query := listings.ListQuery{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseListingStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			query.Status = &status
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		query.Page = page.Page
		query.Limit = page.Limit

		result, err := svc.ListForModeration(r.Context(), actor, query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminApproveListing moves a pending listing to active.
func AdminApproveListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Approve(r.Context(), actor, listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingDecisionResponse{
			Success: true,
			Listing: listing,
			Message: "Listing approved",
		})
	}
}

// AdminRejectListing moves a pending listing to rejected with the moderator's reason.
func AdminRejectListing(svc listings.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "listing service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := uuidParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectListingRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		listing, err := svc.Reject(r.Context(), actor, listings.RejectInput{
			ListingID: listingID,
			Reason:    body.RejectionReason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listingDecisionResponse{
			Success: true,
			Listing: listing,
			Message: "Listing rejected",
		})
	}
}
