package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/carbridge-backend/api/responses"
	"github.com/angelmondragon/carbridge-backend/api/validators"
	"github.com/angelmondragon/carbridge-backend/internal/transactions"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/logger"
)

type createTransactionRequest struct {
	ListingID       string      `json:"listing_id" validate:"required,uuid"`
	Amount          json.Number `json:"amount" validate:"required"`
	Currency        string      `json:"currency" validate:"required"`
	BuyerEmail      string      `json:"buyer_email" validate:"required,email"`
	BuyerName       string      `json:"buyer_name" validate:"required,max=200"`
	BuyerPhone      *string     `json:"buyer_phone,omitempty"`
	BuyerCountry    *string     `json:"buyer_country,omitempty"`
	ShippingAddress *string     `json:"shipping_address,omitempty"`
}

type refundTransactionRequest struct {
	Reason string       `json:"reason" validate:"required"`
	Amount *json.Number `json:"amount,omitempty"`
}

type transactionResponse struct {
	Success     bool                         `json:"success"`
	Transaction *transactions.TransactionDTO `json:"transaction"`
}

// CreateTransaction starts a buyer checkout for an active listing.
func CreateTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createTransactionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := parseUUID(body.ListingID, "listing_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Create(r.Context(), actor, transactions.CreateInput{
			ListingID:       listingID,
			Amount:          body.Amount.String(),
			Currency:        body.Currency,
			BuyerEmail:      strings.TrimSpace(body.BuyerEmail),
			BuyerName:       validators.SanitizeString(body.BuyerName, 200),
			BuyerPhone:      optionalString(body.BuyerPhone),
			BuyerCountry:    optionalString(body.BuyerCountry),
			ShippingAddress: optionalString(body.ShippingAddress),
			Source:          "web",
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, transactionResponse{Success: true, Transaction: txn})
	}
}

// ListTransactions returns the caller's role-scoped page of transactions.
func ListTransactions(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		q := r.URL.Query()
		result, err := svc.List(r.Context(), actor, transactions.ListQuery{
			Status: strings.TrimSpace(q.Get("status")),
			Page:   page.Page,
			Limit:  page.Limit,
			Sort:   strings.TrimSpace(q.Get("sort")),
			Order:  strings.TrimSpace(q.Get("order")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// RefundTransaction refunds a succeeded transaction in full or in part.
func RefundTransaction(svc transactions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "transaction service unavailable"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		transactionID, err := uuidParam(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body refundTransactionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := transactions.RefundInput{
			TransactionID: transactionID,
			Reason:        validators.SanitizeString(body.Reason, 500),
		}
		if body.Amount != nil {
			amount, err := decimal.NewFromString(body.Amount.String())
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{"amount": "must be a decimal amount"}))
				return
			}
			input.Amount = &amount
		}

		result, err := svc.Refund(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
