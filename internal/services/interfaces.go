package services

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"brokerage/internal/models"
	"brokerage/internal/pagination"
)

// UserServicer defines the contract for user-related business logic.
type UserServicer interface {
	CreateUser(email, password, firstName, lastName string) (*models.User, error)
	GetUserByEmail(email string) (*models.User, error)
	GetUserByID(id uint) (*models.User, error)
	VerifyPassword(user *models.User, password string) bool
	AttemptLogin(email, password string) (*models.User, error)
	StoreRefreshTokenHash(userID uint, tokenHash string) error
	GetRefreshTokenHash(userID uint) (string, error)
}

// AccountServicer defines the contract for account-related business logic.
// ApplyBalanceDelta is the single mutation primitive for account balances:
// a signed delta applied inside the caller's transaction, rejected if the
// resulting balance would be negative.
type AccountServicer interface {
	CreateAccount(userID uint, name, currency string, initialDeposit decimal.Decimal) (*models.Account, error)
	GetUserAccounts(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.Account], error)
	GetAccountByID(userID, accountID uint) (*models.Account, error)
	ApplyBalanceDelta(tx *gorm.DB, account *models.Account, delta decimal.Decimal) error
	Deposit(userID, accountID uint, amount decimal.Decimal) (*models.Account, error)
	Withdraw(userID, accountID uint, amount decimal.Decimal) (*models.Account, error)
}

// SecurityServicer defines the contract for the security master and the
// price time series behind it. It embeds QuoteServicer so the trade path can
// depend on just the quote lookup.
type SecurityServicer interface {
	QuoteServicer
	CreateSecurity(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error)
	GetSecurityByID(id uint) (*models.Security, error)
	ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error)
	RecordPrice(securityID uint, price decimal.Decimal, recordedAt time.Time) (*models.SecurityPrice, error)
}

// QuoteServicer resolves the current market price for a symbol. Trade
// validation depends on this narrow interface so tests can substitute a fake
// price source.
type QuoteServicer interface {
	GetQuote(symbol string, assetType models.AssetType) (decimal.Decimal, error)
}

// TradeOrder is a user-submitted buy or sell request.
type TradeOrder struct {
	AccountID  uint
	Symbol     string
	AssetType  models.AssetType
	Side       models.TradeSide
	OrderType  models.OrderType
	Quantity   decimal.Decimal
	LimitPrice *decimal.Decimal
	Fee        decimal.Decimal
}

// OrderValidation is the result of a pre-flight order check. For the
// user-correctable failures (price unavailable, insufficient funds,
// insufficient shares, invalid quantity) Valid is false and ErrorCode and
// ErrorMessage explain why; the read-only figures are populated where they
// are known.
type OrderValidation struct {
	Valid            bool             `json:"valid"`
	ErrorCode        string           `json:"error_code,omitempty"`
	ErrorMessage     string           `json:"error_message,omitempty"`
	CurrentPrice     *decimal.Decimal `json:"current_price,omitempty"`
	ExecutionPrice   *decimal.Decimal `json:"execution_price,omitempty"`
	EstimatedCost    *decimal.Decimal `json:"estimated_cost,omitempty"`
	AvailableBalance *decimal.Decimal `json:"available_balance,omitempty"`
	AvailableShares  *decimal.Decimal `json:"available_shares,omitempty"`
}

// TradeResult reports a settled trade back to the caller.
type TradeResult struct {
	TradeID          string           `json:"trade_id"`
	Side             models.TradeSide `json:"side"`
	ExecutedPrice    decimal.Decimal  `json:"executed_price"`
	ExecutedQuantity decimal.Decimal  `json:"executed_quantity"`
	Total            decimal.Decimal  `json:"total"`
	Fee              decimal.Decimal  `json:"fee"`
	NewBalance       decimal.Decimal  `json:"new_balance"`
	ExecutedAt       time.Time        `json:"executed_at"`
}

// TradeServicer defines the contract for instant order validation and
// settlement. ExecuteOrder re-validates inside its transaction; results from
// a prior ValidateOrder call are never trusted.
type TradeServicer interface {
	ValidateOrder(userID uint, order TradeOrder) (*OrderValidation, error)
	ExecuteOrder(userID uint, order TradeOrder) (*TradeResult, error)
	ListTrades(userID, accountID uint, page pagination.PageRequest) (*pagination.PageResponse[models.Trade], error)
}

// SellOrderRequest is a user submission into the admin-reviewed sell path.
// EstimatedPrice may be zero, in which case the current quote is used.
type SellOrderRequest struct {
	AccountID      uint
	Symbol         string
	AssetType      models.AssetType
	Quantity       decimal.Decimal
	EstimatedPrice decimal.Decimal
	UserNotes      string
}

// SellOrderSettlement pairs an approved sell order with the trade that
// settled it.
type SellOrderSettlement struct {
	Order *models.SellOrder `json:"order"`
	Trade *models.Trade     `json:"trade"`
}

// AdminSellOrderView is a pending order joined with its owner and account
// context for the review queue. The join is composed explicitly in
// application code.
type AdminSellOrderView struct {
	models.SellOrder
	OwnerEmail  string `json:"owner_email"`
	OwnerName   string `json:"owner_name"`
	AccountName string `json:"account_name"`
	Currency    string `json:"currency"`
}

// SellOrderServicer defines the contract for the admin-gated sell order
// workflow: submission reserves shares, and only an admin action (approve or
// reject) or an owner cancellation releases them.
type SellOrderServicer interface {
	Submit(userID uint, req SellOrderRequest) (*models.SellOrder, error)
	Cancel(userID uint, orderID string) (*models.SellOrder, error)
	MarkUnderReview(adminID uint, orderID string) (*models.SellOrder, error)
	Approve(adminID uint, orderID string, actualPrice decimal.Decimal, adminNotes string) (*SellOrderSettlement, error)
	Reject(adminID uint, orderID string, reason, adminNotes string) (*models.SellOrder, error)
	ExpireDue(now time.Time) (int64, error)
	GetOrderByID(userID uint, orderID string) (*models.SellOrder, error)
	ListForUser(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SellOrder], error)
	ListPendingForAdmin(page pagination.PageRequest) (*pagination.PageResponse[AdminSellOrderView], error)
}

// PortfolioTotals aggregates an account's cash and market value.
type PortfolioTotals struct {
	Cash        decimal.Decimal `json:"cash"`
	MarketValue decimal.Decimal `json:"market_value"`
	Equity      decimal.Decimal `json:"equity"`
}

// PortfolioState is the full read model for an account: the account itself,
// every holding with availability figures, and the open sell orders that
// produce the locked amounts.
type PortfolioState struct {
	Account    *models.Account              `json:"account"`
	Holdings   []models.HoldingAvailability `json:"holdings"`
	OpenOrders []models.SellOrder           `json:"pending_orders"`
	Totals     PortfolioTotals              `json:"totals"`
}

// PortfolioServicer defines the read models derived from holdings and
// outstanding sell orders.
type PortfolioServicer interface {
	AvailableQuantity(userID, accountID uint, symbol string, assetType models.AssetType) (decimal.Decimal, error)
	HoldingsWithAvailability(userID, accountID uint) ([]models.HoldingAvailability, error)
	PortfolioState(userID, accountID uint) (*PortfolioState, error)
}

// AuditServicer defines the contract for audit logging.
type AuditServicer interface {
	Log(userID uint, action, resourceType, resourceID, ipAddress string, changes map[string]interface{})
}
