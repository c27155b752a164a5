package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"brokerage/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// counter provides unique values across fixtures within a test run.
var counter atomic.Int64

func nextID() int64 {
	return counter.Add(1)
}

// CreateTestUser creates a user with a hashed password and unique email.
func CreateTestUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	email := fmt.Sprintf("user%d@test.com", nextID())
	return CreateTestUserWithEmail(t, db, email)
}

// CreateTestAdmin creates a user holding the admin role.
func CreateTestAdmin(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()

	admin := CreateTestUserWithEmail(t, db, fmt.Sprintf("admin%d@test.com", nextID()))
	if err := db.Model(admin).Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote test admin: %v", err)
	}
	admin.Role = models.RoleAdmin
	return admin
}

// CreateTestUserWithEmail creates a user with the given email.
func CreateTestUserWithEmail(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	user := &models.User{
		Email:    email,
		Password: string(hash),
		Role:     models.RoleUser,
		IsActive: true,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestAccount creates an account with zero balance.
func CreateTestAccount(t *testing.T, db *gorm.DB, userID uint) *models.Account {
	t.Helper()
	return CreateTestAccountWithBalance(t, db, userID, decimal.Zero)
}

// CreateTestAccountWithBalance creates an account with the given cash balance.
func CreateTestAccountWithBalance(t *testing.T, db *gorm.DB, userID uint, balance decimal.Decimal) *models.Account {
	t.Helper()

	account := &models.Account{
		UserID:   userID,
		Name:     fmt.Sprintf("Test Account %d", nextID()),
		Balance:  balance,
		Currency: "USD",
		IsActive: true,
	}
	if err := db.Create(account).Error; err != nil {
		t.Fatalf("failed to create test account: %v", err)
	}
	return account
}

// CreateTestSecurity creates a stock security with a unique symbol.
func CreateTestSecurity(t *testing.T, db *gorm.DB) *models.Security {
	t.Helper()
	return CreateTestSecurityWithSymbol(t, db, fmt.Sprintf("TST%d", nextID()))
}

// CreateTestSecurityWithSymbol creates a stock security with the given symbol.
func CreateTestSecurityWithSymbol(t *testing.T, db *gorm.DB, symbol string) *models.Security {
	t.Helper()

	security := &models.Security{
		Symbol:    symbol,
		Name:      fmt.Sprintf("Test Security %s", symbol),
		AssetType: models.AssetTypeStock,
		Currency:  "USD",
		Exchange:  "NASDAQ",
	}
	if err := db.Create(security).Error; err != nil {
		t.Fatalf("failed to create test security: %v", err)
	}
	return security
}

// RecordTestPrice appends a price point to the security's time series.
func RecordTestPrice(t *testing.T, db *gorm.DB, securityID uint, price decimal.Decimal) *models.SecurityPrice {
	t.Helper()

	point := &models.SecurityPrice{
		SecurityID: securityID,
		Price:      price,
		RecordedAt: time.Now(),
	}
	if err := db.Create(point).Error; err != nil {
		t.Fatalf("failed to record test price: %v", err)
	}
	return point
}

// CreateTestHolding creates a position in the given account.
func CreateTestHolding(t *testing.T, db *gorm.DB, accountID uint, symbol string, quantity, averageCost decimal.Decimal) *models.Holding {
	t.Helper()

	holding := &models.Holding{
		AccountID:   accountID,
		Symbol:      symbol,
		AssetType:   models.AssetTypeStock,
		Quantity:    quantity,
		AverageCost: averageCost,
	}
	if err := db.Create(holding).Error; err != nil {
		t.Fatalf("failed to create test holding: %v", err)
	}
	return holding
}

// CreateTestSellOrder creates a pending sell order awaiting review.
func CreateTestSellOrder(t *testing.T, db *gorm.DB, userID, accountID uint, symbol string, quantity, estimatedPrice decimal.Decimal) *models.SellOrder {
	t.Helper()

	now := time.Now()
	expiresAt := now.Add(24 * time.Hour)
	order := &models.SellOrder{
		UserID:         userID,
		AccountID:      accountID,
		Symbol:         symbol,
		AssetType:      models.AssetTypeStock,
		Quantity:       quantity,
		EstimatedPrice: estimatedPrice,
		EstimatedTotal: estimatedPrice.Mul(quantity),
		Status:         models.SellOrderStatusPending,
		ApprovalStatus: models.ApprovalPendingReview,
		SubmittedAt:    now,
		ExpiresAt:      &expiresAt,
	}
	if err := db.Create(order).Error; err != nil {
		t.Fatalf("failed to create test sell order: %v", err)
	}
	return order
}
