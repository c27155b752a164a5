package models

import (
	"time"

	"brokerage/internal/uuid"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// SellOrderStatus represents the lifecycle state of a sell order.
type SellOrderStatus string

const (
	SellOrderStatusPending   SellOrderStatus = "pending"
	SellOrderStatusApproved  SellOrderStatus = "approved"
	SellOrderStatusRejected  SellOrderStatus = "rejected"
	SellOrderStatusCancelled SellOrderStatus = "cancelled"
	SellOrderStatusExpired   SellOrderStatus = "expired"
)

// SellOrderApproval represents where a pending order sits in the admin
// review pipeline.
type SellOrderApproval string

const (
	ApprovalPendingReview SellOrderApproval = "pending_review"
	ApprovalUnderReview   SellOrderApproval = "under_review"
	ApprovalApproved      SellOrderApproval = "approved"
	ApprovalRejected      SellOrderApproval = "rejected"
)

// SellOrder is a sell request awaiting admin review. While the order is
// pending its quantity counts against the holding's locked amount, reducing
// what is available for further sells. Terminal states (approved, rejected,
// cancelled, expired) freeze the record.
type SellOrder struct {
	ID              string            `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uint              `gorm:"not null;index" json:"user_id"`
	AccountID       uint              `gorm:"not null;index" json:"account_id"`
	Symbol          string            `gorm:"not null" json:"symbol"`
	AssetType       AssetType         `gorm:"not null" json:"asset_type"`
	Quantity        decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"quantity"`
	EstimatedPrice  decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"estimated_price"`
	EstimatedTotal  decimal.Decimal   `gorm:"type:numeric(20,8);not null" json:"estimated_total"`
	ActualPrice     *decimal.Decimal  `gorm:"type:numeric(20,8)" json:"actual_price,omitempty"`
	ActualTotal     *decimal.Decimal  `gorm:"type:numeric(20,8)" json:"actual_total,omitempty"`
	Status          SellOrderStatus   `gorm:"not null;index" json:"status"`
	ApprovalStatus  SellOrderApproval `gorm:"not null" json:"approval_status"`
	SubmittedAt     time.Time         `gorm:"not null" json:"submitted_at"`
	ReviewedAt      *time.Time        `json:"reviewed_at,omitempty"`
	ReviewedBy      *uint             `json:"reviewed_by,omitempty"`
	ExecutedAt      *time.Time        `json:"executed_at,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
	AdminNotes      string            `json:"admin_notes,omitempty"`
	UserNotes       string            `json:"user_notes,omitempty"`
	ExpiresAt       *time.Time        `json:"expires_at,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// BeforeCreate hook generates a UUIDv7 for new records
func (o *SellOrder) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New()
	}
	return nil
}

// IsOpen reports whether the order still reserves shares: it is pending and
// has not passed its expiry deadline as of now.
func (o *SellOrder) IsOpen(now time.Time) bool {
	if o.Status != SellOrderStatusPending {
		return false
	}
	if o.ExpiresAt != nil && o.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// IsTerminal reports whether the order has reached a frozen state.
func (o *SellOrder) IsTerminal() bool {
	switch o.Status {
	case SellOrderStatusApproved, SellOrderStatusRejected, SellOrderStatusCancelled, SellOrderStatusExpired:
		return true
	}
	return false
}
