package services

import (
	"errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
)

// accountService handles account-related business logic.
type accountService struct {
	db *gorm.DB
}

// NewAccountService creates a new AccountServicer.
func NewAccountService(db *gorm.DB) AccountServicer {
	return &accountService{db: db}
}

// CreateAccount creates a new brokerage cash account for a user.
func (s *accountService) CreateAccount(userID uint, name, currency string, initialDeposit decimal.Decimal) (*models.Account, error) {
	if name == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "account name is required")
	}
	if initialDeposit.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "initial deposit cannot be negative")
	}
	if currency == "" {
		currency = "USD"
	}

	account := &models.Account{
		UserID:   userID,
		Name:     name,
		Balance:  initialDeposit,
		Currency: currency,
		IsActive: true,
	}

	if err := s.db.Create(account).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return account, nil
}

// GetUserAccounts retrieves a paginated list of accounts for a user.
func (s *accountService) GetUserAccounts(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Account{}).Where("user_id = ? AND is_active = ?", userID, true)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var accounts []models.Account
	if err := base.Scopes(pagination.Paginate(page)).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(accounts, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// GetAccountByID retrieves an account by ID for a specific user
func (s *accountService) GetAccountByID(userID, accountID uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ? AND is_active = ?", accountID, userID, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}

// ApplyBalanceDelta applies a signed balance change to an account inside the
// caller's transaction. A delta that would take the balance below zero is
// rejected with ErrInsufficientFunds and nothing is written. On success the
// in-memory account reflects the new balance.
func (s *accountService) ApplyBalanceDelta(tx *gorm.DB, account *models.Account, delta decimal.Decimal) error {
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return apperrors.ErrInsufficientFunds
	}

	if err := tx.Model(account).Update("balance", newBalance).Error; err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	account.Balance = newBalance
	return nil
}

// Deposit credits cash into an account.
func (s *accountService) Deposit(userID, accountID uint, amount decimal.Decimal) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	return s.adjustCash(userID, accountID, amount)
}

// Withdraw debits cash from an account. Fails with ErrInsufficientFunds if
// the account does not carry the amount.
func (s *accountService) Withdraw(userID, accountID uint, amount decimal.Decimal) (*models.Account, error) {
	if !amount.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "amount must be greater than zero")
	}
	return s.adjustCash(userID, accountID, amount.Neg())
}

// adjustCash re-reads the account and applies the delta in one transaction.
func (s *accountService) adjustCash(userID, accountID uint, delta decimal.Decimal) (*models.Account, error) {
	var account *models.Account
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var a models.Account
		if txErr := forUpdate(tx).Where("id = ? AND user_id = ? AND is_active = ?", accountID, userID, true).First(&a).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		account = &a
		return s.ApplyBalanceDelta(tx, account, delta)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
