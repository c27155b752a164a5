package models

import (
	"time"

	"brokerage/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SecurityPrice represents a historical price entry for a security.
// This is immutable time-series data — no Base embed, no soft deletes.
type SecurityPrice struct {
	ID         string          `gorm:"type:uuid;primaryKey" json:"id"`
	SecurityID uint            `gorm:"not null;index" json:"security_id"`
	Price      decimal.Decimal `gorm:"type:numeric(20,8);not null" json:"price"`
	RecordedAt time.Time       `gorm:"not null;index" json:"recorded_at"`
	Security   Security        `gorm:"foreignKey:SecurityID" json:"security,omitempty"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (s *SecurityPrice) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New()
	}
	return nil
}
