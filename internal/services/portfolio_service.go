package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
)

// portfolioService builds read models over holdings and open sell orders.
type portfolioService struct {
	db     *gorm.DB
	quotes QuoteServicer
}

// NewPortfolioService creates a new PortfolioServicer.
func NewPortfolioService(db *gorm.DB, quotes QuoteServicer) PortfolioServicer {
	return &portfolioService{db: db, quotes: quotes}
}

// AvailableQuantity returns how many shares of a symbol the account can
// still sell: the held quantity minus what open sell orders have reserved.
// A symbol with no holding reports zero rather than an error.
func (s *portfolioService) AvailableQuantity(userID, accountID uint, symbol string, assetType models.AssetType) (decimal.Decimal, error) {
	if _, err := s.ownedAccount(userID, accountID); err != nil {
		return decimal.Zero, err
	}

	// Holdings are stored under the upper-cased symbol.
	_, _, available, err := holdingAvailability(s.db, accountID, strings.ToUpper(symbol), assetType, time.Now())
	if err != nil {
		return decimal.Zero, err
	}
	return available, nil
}

// HoldingsWithAvailability returns every position in the account with its
// locked and available split and a mark against the latest recorded price.
// A position whose symbol has no recorded price marks at zero instead of
// failing the whole listing.
func (s *portfolioService) HoldingsWithAvailability(userID, accountID uint) ([]models.HoldingAvailability, error) {
	if _, err := s.ownedAccount(userID, accountID); err != nil {
		return nil, err
	}
	return s.holdingsView(accountID, time.Now())
}

// PortfolioState assembles the account's full picture in one response: cash,
// every holding with availability, the open sell orders producing the locks,
// and the cash plus market value totals.
func (s *portfolioService) PortfolioState(userID, accountID uint) (*PortfolioState, error) {
	account, err := s.ownedAccount(userID, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	holdings, err := s.holdingsView(accountID, now)
	if err != nil {
		return nil, err
	}

	openOrders, err := s.openOrders(accountID, now)
	if err != nil {
		return nil, err
	}

	marketValue := decimal.Zero
	for i := range holdings {
		marketValue = marketValue.Add(holdings[i].MarketValue)
	}

	return &PortfolioState{
		Account:    account,
		Holdings:   holdings,
		OpenOrders: openOrders,
		Totals: PortfolioTotals{
			Cash:        account.Balance,
			MarketValue: marketValue,
			Equity:      account.Balance.Add(marketValue),
		},
	}, nil
}

// holdingsView loads the account's holdings and computes locked amounts from
// the open sell orders in one pass, keyed per (symbol, asset type) in
// application code.
func (s *portfolioService) holdingsView(accountID uint, now time.Time) ([]models.HoldingAvailability, error) {
	var holdings []models.Holding
	if err := s.db.Where("account_id = ?", accountID).Order("symbol ASC").Find(&holdings).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	openOrders, err := s.openOrders(accountID, now)
	if err != nil {
		return nil, err
	}

	type positionKey struct {
		symbol    string
		assetType models.AssetType
	}
	locked := make(map[positionKey]decimal.Decimal)
	for i := range openOrders {
		key := positionKey{openOrders[i].Symbol, openOrders[i].AssetType}
		locked[key] = locked[key].Add(openOrders[i].Quantity)
	}

	views := make([]models.HoldingAvailability, 0, len(holdings))
	for i := range holdings {
		h := holdings[i]
		view := models.HoldingAvailability{Holding: h}
		view.Locked = locked[positionKey{h.Symbol, h.AssetType}]
		view.Available = h.Quantity.Sub(view.Locked)
		if view.Available.IsNegative() {
			view.Available = decimal.Zero
		}

		price, quoteErr := s.quotes.GetQuote(h.Symbol, h.AssetType)
		if quoteErr != nil {
			if !errors.Is(quoteErr, apperrors.ErrPriceUnavailable) {
				return nil, quoteErr
			}
			price = decimal.Zero
		}
		view.CurrentPrice = price
		view.MarketValue = h.Quantity.Mul(price)
		views = append(views, view)
	}
	return views, nil
}

// openOrders returns the account's sell orders that still reserve shares.
// The expiry cutoff is applied here rather than relying on the sweep having
// run, so a just-expired order never counts as locked.
func (s *portfolioService) openOrders(accountID uint, now time.Time) ([]models.SellOrder, error) {
	var orders []models.SellOrder
	if err := s.db.
		Where("account_id = ? AND status = ?", accountID, models.SellOrderStatusPending).
		Order("submitted_at ASC").
		Find(&orders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	open := orders[:0]
	for i := range orders {
		if orders[i].IsOpen(now) {
			open = append(open, orders[i])
		}
	}
	return open, nil
}

func (s *portfolioService) ownedAccount(userID, accountID uint) (*models.Account, error) {
	var account models.Account
	if err := s.db.Where("id = ? AND user_id = ? AND is_active = ?", accountID, userID, true).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAccountNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &account, nil
}
