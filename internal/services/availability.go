package services

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
)

// lockedQuantity sums the quantity reserved by open sell orders against one
// (account, symbol, asset type) position. Orders past their expiry deadline
// stop counting immediately, even before the sweep flips them to expired.
//
// The sum runs in application code rather than SQL so the decimal columns
// are aggregated with exact arithmetic on every supported driver.
func lockedQuantity(db *gorm.DB, accountID uint, symbol string, assetType models.AssetType, now time.Time) (decimal.Decimal, error) {
	var orders []models.SellOrder
	err := db.Where("account_id = ? AND symbol = ? AND asset_type = ? AND status = ?",
		accountID, symbol, assetType, models.SellOrderStatusPending).Find(&orders).Error
	if err != nil {
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	locked := decimal.Zero
	for i := range orders {
		if orders[i].IsOpen(now) {
			locked = locked.Add(orders[i].Quantity)
		}
	}
	return locked, nil
}

// holdingAvailability loads a holding together with its locked and available
// quantities. A missing holding is reported with a nil holding, zero totals,
// and no error: callers decide whether absence is a failure.
func holdingAvailability(db *gorm.DB, accountID uint, symbol string, assetType models.AssetType, now time.Time) (*models.Holding, decimal.Decimal, decimal.Decimal, error) {
	// The holding row is read locked so concurrent reservations and sells
	// against the same position line up behind each other.
	var holding models.Holding
	err := forUpdate(db).Where("account_id = ? AND symbol = ? AND asset_type = ?", accountID, symbol, assetType).
		First(&holding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, decimal.Zero, decimal.Zero, nil
		}
		return nil, decimal.Zero, decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	locked, err := lockedQuantity(db, accountID, symbol, assetType, now)
	if err != nil {
		return nil, decimal.Zero, decimal.Zero, err
	}

	available := holding.Quantity.Sub(locked)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return &holding, locked, available, nil
}
