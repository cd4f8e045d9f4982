package transactions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/auth"
	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/carbridge-backend/pkg/errors"
	"github.com/angelmondragon/carbridge-backend/pkg/types"
)

// EscrowLinker attaches escrow payment intents to buyer transactions.
type EscrowLinker struct {
	repo Repository
}

// NewEscrowLinker builds the linker used by the escrow service.
func NewEscrowLinker(repo Repository) (*EscrowLinker, error) {
	if repo == nil {
		return nil, fmt.Errorf("transactions repository required")
	}
	return &EscrowLinker{repo: repo}, nil
}

// LinkEscrow moves the buyer's pending transaction for the listing to
// processing, or creates a processing one when checkout was skipped. The
// escrow must charge exactly what the pending transaction recorded.
func (l *EscrowLinker) LinkEscrow(ctx context.Context, tx *gorm.DB, escrow *models.Escrow, buyer auth.Actor) (*models.Transaction, error) {
	repo := l.repo.WithTx(tx)
	intentID := escrow.PaymentIntentID
	escrowID := escrow.ID

	pending, err := repo.FindPendingForBuyer(ctx, escrow.ListingID, escrow.BuyerID)
	switch {
	case err == nil:
		if !pending.Amount.Equal(escrow.Amount) || pending.Currency != escrow.Currency {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "escrow amount does not match pending transaction").
				WithDetails(map[string]string{
					"amount":   pending.Amount.String() + " " + pending.Currency.String(),
					"received": escrow.Amount.String() + " " + escrow.Currency.String(),
				})
		}
		rows, err := repo.TransitionStatus(ctx, pending.ID, enums.TransactionStatusPending, enums.TransactionStatusProcessing, map[string]any{
			"escrow_id":         escrowID,
			"payment_intent_id": intentID,
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link transaction")
		}
		if rows == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "transaction already processed")
		}
		pending.Status = enums.TransactionStatusProcessing
		pending.EscrowID = &escrowID
		pending.PaymentIntentID = &intentID
		return pending, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending transaction")
	}

	email, name := buyer.Email, buyer.Email
	var phone *string
	user, err := repo.FindUser(ctx, escrow.BuyerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load buyer")
	}
	if user != nil {
		email, name, phone = user.Email, user.Name, user.Phone
	}

	txn := &models.Transaction{
		ListingID:       escrow.ListingID,
		DealerID:        escrow.DealerID,
		BuyerID:         escrow.BuyerID,
		EscrowID:        &escrowID,
		Amount:          escrow.Amount,
		Currency:        escrow.Currency,
		Status:          enums.TransactionStatusProcessing,
		PaymentIntentID: &intentID,
		BuyerEmail:      email,
		BuyerName:       name,
		BuyerPhone:      phone,
		Metadata: types.TransactionMetadata{
			CheckoutDetails: &types.CheckoutDetails{CheckoutSource: "escrow", ClientIP: buyer.IP},
		},
	}
	if err := repo.Create(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create transaction")
	}
	return txn, nil
}
