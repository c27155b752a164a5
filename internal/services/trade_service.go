package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/logger"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
)

// tradeService validates and settles instant buy/sell orders.
type tradeService struct {
	db       *gorm.DB
	accounts AccountServicer
	quotes   QuoteServicer
}

// NewTradeService creates a new TradeServicer.
func NewTradeService(db *gorm.DB, accounts AccountServicer, quotes QuoteServicer) TradeServicer {
	return &tradeService{db: db, accounts: accounts, quotes: quotes}
}

// orderCheck carries the figures produced by a pre-flight order check. On a
// user-correctable failure the figures known at the point of failure are
// still populated so callers can report them.
type orderCheck struct {
	account        *models.Account
	currentPrice   decimal.Decimal
	executionPrice decimal.Decimal
	estimatedCost  decimal.Decimal // buy orders
	available      decimal.Decimal // sell orders: sellable (unlocked) shares
}

// check runs the full pre-flight validation of an order against the given
// database handle. ExecuteOrder passes its transaction here so the state
// that settlement acts on is the state that was validated.
func (s *tradeService) check(db *gorm.DB, userID uint, order TradeOrder) (*orderCheck, error) {
	chk := &orderCheck{}
	order.Symbol = strings.ToUpper(order.Symbol)

	if !order.Quantity.IsPositive() {
		return chk, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	if order.Fee.IsNegative() {
		return chk, apperrors.WithMessage(apperrors.ErrInvalidInput, "fee cannot be negative")
	}
	if order.Side != models.TradeSideBuy && order.Side != models.TradeSideSell {
		return chk, apperrors.WithMessage(apperrors.ErrInvalidInput, "side must be buy or sell")
	}
	switch order.OrderType {
	case models.OrderTypeMarket:
	case models.OrderTypeLimit:
		if order.LimitPrice == nil || !order.LimitPrice.IsPositive() {
			return chk, apperrors.WithMessage(apperrors.ErrInvalidInput, "limit orders require a positive limit price")
		}
	default:
		return chk, apperrors.WithMessage(apperrors.ErrInvalidInput, "order type must be market or limit")
	}

	var account models.Account
	err := forUpdate(db).Where("id = ? AND user_id = ? AND is_active = ?", order.AccountID, userID, true).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return chk, apperrors.ErrAccountNotFound
		}
		return chk, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	chk.account = &account

	currentPrice, err := s.quotes.GetQuote(order.Symbol, order.AssetType)
	if err != nil {
		return chk, err
	}
	chk.currentPrice = currentPrice

	chk.executionPrice = currentPrice
	if order.OrderType == models.OrderTypeLimit {
		chk.executionPrice = *order.LimitPrice
	}

	if order.Side == models.TradeSideBuy {
		chk.estimatedCost = chk.executionPrice.Mul(order.Quantity).Add(order.Fee)
		if account.Balance.LessThan(chk.estimatedCost) {
			return chk, apperrors.WithMessage(apperrors.ErrInsufficientFunds,
				fmt.Sprintf("Order costs %s but only %s is available", chk.estimatedCost, account.Balance))
		}
		return chk, nil
	}

	// Sell orders check available (unlocked) shares, not the raw position,
	// so overlapping sell requests cannot jointly exceed it.
	_, _, available, err := holdingAvailability(db, account.ID, order.Symbol, order.AssetType, time.Now())
	if err != nil {
		return chk, err
	}
	chk.available = available
	if available.LessThan(order.Quantity) {
		return chk, apperrors.WithMessage(apperrors.ErrInsufficientShares,
			fmt.Sprintf("Only %s shares are available to sell", available))
	}
	return chk, nil
}

// ValidateOrder runs the read-only pre-flight check for an order. The
// user-correctable failures come back as a Valid=false result carrying the
// reason; infrastructure failures come back as errors.
func (s *tradeService) ValidateOrder(userID uint, order TradeOrder) (*OrderValidation, error) {
	chk, err := s.check(s.db, userID, order)
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && isOrderRejection(appErr.Code) {
			return invalidOrder(appErr, chk, order.Side), nil
		}
		return nil, err
	}

	v := &OrderValidation{
		Valid:          true,
		CurrentPrice:   &chk.currentPrice,
		ExecutionPrice: &chk.executionPrice,
	}
	if order.Side == models.TradeSideBuy {
		v.EstimatedCost = &chk.estimatedCost
		v.AvailableBalance = &chk.account.Balance
	} else {
		v.AvailableShares = &chk.available
	}
	return v, nil
}

// isOrderRejection reports whether an error code is a user-correctable order
// rejection rather than an infrastructure failure.
func isOrderRejection(code string) bool {
	switch code {
	case apperrors.ErrInvalidInput.Code,
		apperrors.ErrPriceUnavailable.Code,
		apperrors.ErrInsufficientFunds.Code,
		apperrors.ErrInsufficientShares.Code,
		apperrors.ErrAccountNotFound.Code:
		return true
	}
	return false
}

// invalidOrder builds a Valid=false validation result from a rejection,
// keeping whatever figures the check produced before failing.
func invalidOrder(appErr *apperrors.AppError, chk *orderCheck, side models.TradeSide) *OrderValidation {
	v := &OrderValidation{
		Valid:        false,
		ErrorCode:    appErr.Code,
		ErrorMessage: appErr.Message,
	}
	if chk == nil {
		return v
	}
	if chk.currentPrice.IsPositive() {
		v.CurrentPrice = &chk.currentPrice
		v.ExecutionPrice = &chk.executionPrice
	}
	if chk.account != nil {
		if side == models.TradeSideBuy {
			v.AvailableBalance = &chk.account.Balance
			if chk.estimatedCost.IsPositive() {
				v.EstimatedCost = &chk.estimatedCost
			}
		} else {
			v.AvailableShares = &chk.available
		}
	}
	return v
}

// ExecuteOrder settles an order: one transaction wraps re-validation, the
// trade insert, the balance mutation, and the holding mutation, in that
// order. A failure at any step rolls back every step, so no trade row ever
// survives a failed settlement and the ledger never diverges from the
// holdings.
func (s *tradeService) ExecuteOrder(userID uint, order TradeOrder) (*TradeResult, error) {
	order.Symbol = strings.ToUpper(order.Symbol)

	var result *TradeResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		chk, txErr := s.check(tx, userID, order)
		if txErr != nil {
			return txErr
		}

		executedAt := time.Now()
		var trade *models.Trade
		if order.Side == models.TradeSideBuy {
			trade, txErr = settleBuy(tx, s.accounts, userID, chk.account, order, chk.executionPrice, executedAt)
		} else {
			trade, txErr = settleSell(tx, s.accounts, userID, chk.account,
				order.Symbol, order.AssetType, order.OrderType, order.Quantity, chk.executionPrice, order.Fee, executedAt)
		}
		if txErr != nil {
			return txErr
		}

		result = &TradeResult{
			TradeID:          trade.ID,
			Side:             trade.Side,
			ExecutedPrice:    trade.FilledPrice,
			ExecutedQuantity: trade.Quantity,
			Total:            trade.Total,
			Fee:              trade.Fee,
			NewBalance:       chk.account.Balance,
			ExecutedAt:       trade.ExecutedAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListTrades returns a paginated trade history for an account, newest first.
func (s *tradeService) ListTrades(userID, accountID uint, page pagination.PageRequest) (*pagination.PageResponse[models.Trade], error) {
	if _, err := s.accounts.GetAccountByID(userID, accountID); err != nil {
		return nil, err
	}

	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Trade{}).Where("account_id = ?", accountID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var trades []models.Trade
	if err := base.Order("executed_at DESC").Scopes(pagination.Paginate(page)).Find(&trades).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(trades, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// settleBuy writes the trade record, debits the account, and creates or
// grows the holding. The average cost of a grown holding is the quantity
// weighted average of the old position and the new fill; the fee is part of
// the cash debit but not of the cost basis.
func settleBuy(tx *gorm.DB, accounts AccountServicer, userID uint, account *models.Account, order TradeOrder, executionPrice decimal.Decimal, executedAt time.Time) (*models.Trade, error) {
	total := executionPrice.Mul(order.Quantity).Add(order.Fee)

	trade := &models.Trade{
		UserID:      userID,
		AccountID:   account.ID,
		Symbol:      order.Symbol,
		AssetType:   order.AssetType,
		Side:        models.TradeSideBuy,
		OrderType:   order.OrderType,
		Quantity:    order.Quantity,
		FilledPrice: executionPrice,
		Total:       total,
		Fee:         order.Fee,
		Status:      models.TradeStatusFilled,
		ExecutedAt:  executedAt,
	}
	if err := tx.Create(trade).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := accounts.ApplyBalanceDelta(tx, account, total.Neg()); err != nil {
		return nil, err
	}

	var holding models.Holding
	err := forUpdate(tx).Where("account_id = ? AND symbol = ? AND asset_type = ?", account.ID, order.Symbol, order.AssetType).
		First(&holding).Error
	switch {
	case err == nil:
		newQuantity := holding.Quantity.Add(order.Quantity)
		newAverageCost := holding.Quantity.Mul(holding.AverageCost).
			Add(order.Quantity.Mul(executionPrice)).
			Div(newQuantity)
		if err := tx.Model(&holding).Updates(map[string]interface{}{
			"quantity":     newQuantity,
			"average_cost": newAverageCost,
		}).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		holding = models.Holding{
			AccountID:   account.ID,
			Symbol:      order.Symbol,
			AssetType:   order.AssetType,
			Quantity:    order.Quantity,
			AverageCost: executionPrice,
		}
		if err := tx.Create(&holding).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	default:
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return trade, nil
}

// settleSell writes the trade record, credits the account, and shrinks or
// deletes the holding. The holding must exist: validation guarantees it, so
// absence here is a consistency failure, logged and surfaced without any
// partial write surviving the rollback. Average cost is untouched by sells.
//
// Both the instant sell path and the approved sell order path settle
// through this function, at their respective execution prices.
func settleSell(tx *gorm.DB, accounts AccountServicer, userID uint, account *models.Account, symbol string, assetType models.AssetType, orderType models.OrderType, quantity, executionPrice, fee decimal.Decimal, executedAt time.Time) (*models.Trade, error) {
	total := executionPrice.Mul(quantity).Sub(fee)

	trade := &models.Trade{
		UserID:      userID,
		AccountID:   account.ID,
		Symbol:      symbol,
		AssetType:   assetType,
		Side:        models.TradeSideSell,
		OrderType:   orderType,
		Quantity:    quantity,
		FilledPrice: executionPrice,
		Total:       total,
		Fee:         fee,
		Status:      models.TradeStatusFilled,
		ExecutedAt:  executedAt,
	}
	if err := tx.Create(trade).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if err := accounts.ApplyBalanceDelta(tx, account, total); err != nil {
		return nil, err
	}

	var holding models.Holding
	err := forUpdate(tx).Where("account_id = ? AND symbol = ? AND asset_type = ?", account.ID, symbol, assetType).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Get().Errorw("holding missing during sell settlement",
				"account_id", account.ID,
				"symbol", symbol,
				"asset_type", assetType,
				"quantity", quantity.String(),
			)
			return nil, apperrors.ErrHoldingNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	newQuantity := holding.Quantity.Sub(quantity)
	if newQuantity.IsPositive() {
		if err := tx.Model(&holding).Update("quantity", newQuantity).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	} else {
		// Position fully closed: the row goes away rather than lingering
		// at zero. A negative remainder is treated the same way.
		if err := tx.Unscoped().Delete(&holding).Error; err != nil {
			return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
		}
	}

	return trade, nil
}
