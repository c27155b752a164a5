package models

import (
	"time"

	"brokerage/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// TradeSide represents which side of the market a trade was on.
type TradeSide string

const (
	TradeSideBuy  TradeSide = "buy"
	TradeSideSell TradeSide = "sell"
)

// OrderType represents how the execution price was determined.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// TradeStatus represents the settlement state of a trade record.
// Trades are only ever written as part of a committed settlement
// transaction, so persisted rows are always filled.
type TradeStatus string

const (
	TradeStatusFilled TradeStatus = "filled"
)

// Trade is the immutable record of a filled transaction. No Base embed and
// no soft deletes: a trade row is written once alongside the ledger mutation
// it belongs to and never updated.
type Trade struct {
	ID          string          `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;index" json:"user_id"`
	AccountID   uint            `gorm:"not null;index" json:"account_id"`
	Symbol      string          `gorm:"not null" json:"symbol"`
	AssetType   AssetType       `gorm:"not null" json:"asset_type"`
	Side        TradeSide       `gorm:"not null" json:"side"`
	OrderType   OrderType       `gorm:"not null" json:"order_type"`
	Quantity    decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"quantity"`
	FilledPrice decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"filled_price"`
	Total       decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"total"`
	Fee         decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"fee"`
	Status      TradeStatus     `gorm:"not null" json:"status"`
	ExecutedAt  time.Time       `gorm:"not null" json:"executed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (t *Trade) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.New()
	}
	return nil
}
