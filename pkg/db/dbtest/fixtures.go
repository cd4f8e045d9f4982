package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/carbridge-backend/pkg/db/models"
	"github.com/angelmondragon/carbridge-backend/pkg/enums"
)

// SeedDealer inserts a dealer with a dealer user and returns both.
func SeedDealer(t testing.TB, conn *gorm.DB) (*models.Dealer, *models.User) {
	t.Helper()
	dealer := &models.Dealer{
		Name:    "Harbor Motors",
		Email:   "sales+" + uuid.NewString()[:8] + "@harbor.example",
		Country: "DE",
	}
	if err := conn.Create(dealer).Error; err != nil {
		t.Fatalf("seed dealer: %v", err)
	}
	dealerID := dealer.ID
	user := SeedUser(t, conn, enums.RoleDealer, &dealerID)
	return dealer, user
}

// SeedUser inserts an active user with role.
func SeedUser(t testing.TB, conn *gorm.DB, role enums.Role, dealerID *uuid.UUID) *models.User {
	t.Helper()
	user := &models.User{
		Email:        role.String() + "+" + uuid.NewString()[:8] + "@carbridge.example",
		Name:         "Test " + role.String(),
		PasswordHash: "unused",
		Role:         role,
		DealerID:     dealerID,
		IsActive:     true,
	}
	if err := conn.Create(user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

// SeedListing inserts a listing owned by dealerID.
func SeedListing(t testing.TB, conn *gorm.DB, dealerID uuid.UUID, status enums.ListingStatus, price string) *models.Listing {
	t.Helper()
	listing := &models.Listing{
		DealerID: dealerID,
		Title:    "2019 Toyota Land Cruiser",
		Make:     "Toyota",
		Model:    "Land Cruiser",
		Year:     2019,
		Price:    decimal.RequireFromString(price),
		Currency: enums.CurrencyUSD,
		Status:   status,
	}
	listing.Specifications.Color = "white"
	if err := conn.Create(listing).Error; err != nil {
		t.Fatalf("seed listing: %v", err)
	}
	return listing
}

// SeedTransaction inserts a transaction for listing in status.
func SeedTransaction(t testing.TB, conn *gorm.DB, listing *models.Listing, buyerID uuid.UUID, status enums.TransactionStatus, paymentIntentID *string) *models.Transaction {
	t.Helper()
	txn := &models.Transaction{
		ListingID:       listing.ID,
		DealerID:        listing.DealerID,
		BuyerID:         buyerID,
		Amount:          listing.Price,
		Currency:        listing.Currency,
		Status:          status,
		PaymentIntentID: paymentIntentID,
		BuyerEmail:      "buyer@carbridge.example",
		BuyerName:       "Ada Buyer",
	}
	if err := conn.Create(txn).Error; err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}
