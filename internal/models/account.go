package models

import "github.com/shopspring/decimal"

// Account represents a brokerage cash account. The balance only ever moves
// through relative deltas applied inside a database transaction, so a
// committed row never holds a negative balance.
type Account struct {
	Base
	UserID   uint            `gorm:"not null;index" json:"user_id"`
	Name     string          `gorm:"not null" json:"name"`
	Balance  decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"balance"`
	Currency string          `gorm:"not null;default:'USD'" json:"currency"`
	IsActive bool            `gorm:"default:true" json:"is_active"`

	// Relationships
	Holdings []Holding `gorm:"foreignKey:AccountID" json:"holdings,omitempty"`
}
