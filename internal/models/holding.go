package models

import "github.com/shopspring/decimal"

// Holding represents a position in a single symbol within an account.
// One row exists per (account, symbol, asset type); a holding whose quantity
// reaches zero is deleted rather than kept around as an empty row.
//
// AverageCost is the per-unit cost basis, recomputed as a weighted average on
// each buy and left untouched by sells.
type Holding struct {
	Base
	AccountID   uint            `gorm:"not null;uniqueIndex:uq_holdings_account_symbol" json:"account_id"`
	Symbol      string          `gorm:"not null;uniqueIndex:uq_holdings_account_symbol" json:"symbol"`
	AssetType   AssetType       `gorm:"not null;uniqueIndex:uq_holdings_account_symbol" json:"asset_type"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	AverageCost decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"average_cost"`

	Account Account `gorm:"foreignKey:AccountID" json:"account,omitempty"`
}

// CostBasis returns the total cost basis of the position.
func (h *Holding) CostBasis() decimal.Decimal {
	return h.Quantity.Mul(h.AverageCost)
}

// HoldingAvailability is the read model consumed by the portfolio views:
// the position plus how much of it is reserved by in-flight sell orders.
type HoldingAvailability struct {
	Holding
	Locked       decimal.Decimal `json:"locked"`
	Available    decimal.Decimal `json:"available"`
	CurrentPrice decimal.Decimal `json:"current_price"`
	MarketValue  decimal.Decimal `json:"market_value"`
}
