package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
)

// defaultOrderTTL is how long a submitted sell order stays reviewable
// before it expires and releases its reservation.
const defaultOrderTTL = 7 * 24 * time.Hour

// sellOrderService handles the admin-gated sell order workflow.
type sellOrderService struct {
	db       *gorm.DB
	accounts AccountServicer
	quotes   QuoteServicer
}

// NewSellOrderService creates a new SellOrderServicer.
func NewSellOrderService(db *gorm.DB, accounts AccountServicer, quotes QuoteServicer) SellOrderServicer {
	return &sellOrderService{db: db, accounts: accounts, quotes: quotes}
}

// Submit places a sell request into the review queue. The availability check
// and the insert run in one transaction, so two overlapping submissions
// cannot jointly reserve more than the position holds. No ledger or holding
// mutation happens here: shares are reserved, not moved.
func (s *sellOrderService) Submit(userID uint, req SellOrderRequest) (*models.SellOrder, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "quantity must be greater than zero")
	}
	if req.EstimatedPrice.IsNegative() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "estimated price cannot be negative")
	}
	req.Symbol = strings.ToUpper(req.Symbol)

	estimatedPrice := req.EstimatedPrice
	if estimatedPrice.IsZero() {
		quote, err := s.quotes.GetQuote(req.Symbol, req.AssetType)
		if err != nil {
			return nil, err
		}
		estimatedPrice = quote
	}

	now := time.Now()
	expiresAt := now.Add(defaultOrderTTL)

	var order *models.SellOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var account models.Account
		if txErr := forUpdate(tx).Where("id = ? AND user_id = ? AND is_active = ?", req.AccountID, userID, true).First(&account).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}

		_, _, available, txErr := holdingAvailability(tx, account.ID, req.Symbol, req.AssetType, now)
		if txErr != nil {
			return txErr
		}
		if available.LessThan(req.Quantity) {
			return apperrors.WithMessage(apperrors.ErrInsufficientShares,
				fmt.Sprintf("Only %s shares are available to sell", available))
		}

		order = &models.SellOrder{
			UserID:         userID,
			AccountID:      account.ID,
			Symbol:         req.Symbol,
			AssetType:      req.AssetType,
			Quantity:       req.Quantity,
			EstimatedPrice: estimatedPrice,
			EstimatedTotal: estimatedPrice.Mul(req.Quantity),
			Status:         models.SellOrderStatusPending,
			ApprovalStatus: models.ApprovalPendingReview,
			SubmittedAt:    now,
			UserNotes:      req.UserNotes,
			ExpiresAt:      &expiresAt,
		}
		if txErr := tx.Create(order).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Cancel withdraws a sell order. Only the owner may cancel, and only while
// the order is still pending review: once an admin has picked it up, or it
// has reached a terminal state, ownership of the transition has passed on.
func (s *sellOrderService) Cancel(userID uint, orderID string) (*models.SellOrder, error) {
	if err := s.expireIfDue(orderID, time.Now()); err != nil {
		return nil, err
	}

	var order *models.SellOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, txErr := loadOrder(tx, orderID)
		if txErr != nil {
			return txErr
		}
		if o.UserID != userID {
			return apperrors.ErrOrderNotFound
		}
		if o.Status != models.SellOrderStatusPending || o.ApprovalStatus != models.ApprovalPendingReview {
			return apperrors.ErrOrderNotCancellable
		}

		if txErr := tx.Model(o).Update("status", models.SellOrderStatusCancelled).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		o.Status = models.SellOrderStatusCancelled
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// MarkUnderReview moves a pending order into the admin's hands. From this
// point the owner can no longer cancel it.
func (s *sellOrderService) MarkUnderReview(adminID uint, orderID string) (*models.SellOrder, error) {
	if err := s.expireIfDue(orderID, time.Now()); err != nil {
		return nil, err
	}

	var order *models.SellOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, txErr := loadOrder(tx, orderID)
		if txErr != nil {
			return txErr
		}
		if o.Status != models.SellOrderStatusPending || o.ApprovalStatus != models.ApprovalPendingReview {
			return apperrors.ErrOrderAlreadyReviewed
		}

		if txErr := tx.Model(o).Updates(map[string]interface{}{
			"approval_status": models.ApprovalUnderReview,
			"reviewed_by":     adminID,
		}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}
		o.ApprovalStatus = models.ApprovalUnderReview
		o.ReviewedBy = &adminID
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// Approve settles a pending sell order at the admin-supplied actual fill
// price, which may differ from the user's estimate. One transaction covers
// the trade insert, the balance credit, the holding reduction, and the order
// state change, so a half-applied approval cannot be observed. The quantity
// reservation releases by virtue of the holding itself shrinking.
func (s *sellOrderService) Approve(adminID uint, orderID string, actualPrice decimal.Decimal, adminNotes string) (*SellOrderSettlement, error) {
	if !actualPrice.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "actual price must be greater than zero")
	}
	if err := s.expireIfDue(orderID, time.Now()); err != nil {
		return nil, err
	}

	var settlement *SellOrderSettlement
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, txErr := loadOrder(tx, orderID)
		if txErr != nil {
			return txErr
		}
		if o.Status != models.SellOrderStatusPending {
			return apperrors.ErrOrderAlreadyReviewed
		}

		var account models.Account
		if txErr := forUpdate(tx).Where("id = ?", o.AccountID).First(&account).Error; txErr != nil {
			if errors.Is(txErr, gorm.ErrRecordNotFound) {
				return apperrors.ErrAccountNotFound
			}
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}

		now := time.Now()
		trade, txErr := settleSell(tx, s.accounts, o.UserID, &account,
			o.Symbol, o.AssetType, models.OrderTypeMarket, o.Quantity, actualPrice, decimal.Zero, now)
		if txErr != nil {
			return txErr
		}

		actualTotal := actualPrice.Mul(o.Quantity)
		if txErr := tx.Model(o).Updates(map[string]interface{}{
			"status":          models.SellOrderStatusApproved,
			"approval_status": models.ApprovalApproved,
			"actual_price":    actualPrice,
			"actual_total":    actualTotal,
			"reviewed_by":     adminID,
			"reviewed_at":     now,
			"executed_at":     now,
			"admin_notes":     adminNotes,
		}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}

		o.Status = models.SellOrderStatusApproved
		o.ApprovalStatus = models.ApprovalApproved
		o.ActualPrice = &actualPrice
		o.ActualTotal = &actualTotal
		o.ReviewedBy = &adminID
		o.ReviewedAt = &now
		o.ExecutedAt = &now
		o.AdminNotes = adminNotes
		settlement = &SellOrderSettlement{Order: o, Trade: trade}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settlement, nil
}

// Reject declines a pending sell order. A reason is required. No ledger or
// holding mutation happens: the reservation simply stops counting.
func (s *sellOrderService) Reject(adminID uint, orderID string, reason, adminNotes string) (*models.SellOrder, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "rejection reason is required")
	}
	if err := s.expireIfDue(orderID, time.Now()); err != nil {
		return nil, err
	}

	var order *models.SellOrder
	err := s.db.Transaction(func(tx *gorm.DB) error {
		o, txErr := loadOrder(tx, orderID)
		if txErr != nil {
			return txErr
		}
		if o.Status != models.SellOrderStatusPending {
			return apperrors.ErrOrderAlreadyReviewed
		}

		now := time.Now()
		if txErr := tx.Model(o).Updates(map[string]interface{}{
			"status":           models.SellOrderStatusRejected,
			"approval_status":  models.ApprovalRejected,
			"rejection_reason": reason,
			"admin_notes":      adminNotes,
			"reviewed_by":      adminID,
			"reviewed_at":      now,
		}).Error; txErr != nil {
			return apperrors.Wrap(apperrors.ErrInternalServer, txErr)
		}

		o.Status = models.SellOrderStatusRejected
		o.ApprovalStatus = models.ApprovalRejected
		o.RejectionReason = reason
		o.AdminNotes = adminNotes
		o.ReviewedBy = &adminID
		o.ReviewedAt = &now
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ExpireDue flips every pending order past its deadline to expired and
// returns how many were affected. Expired orders already stopped counting
// as locked the moment their deadline passed; this sweep just makes the
// state visible.
func (s *sellOrderService) ExpireDue(now time.Time) (int64, error) {
	result := s.db.Model(&models.SellOrder{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", models.SellOrderStatusPending, now).
		Update("status", models.SellOrderStatusExpired)
	if result.Error != nil {
		return 0, apperrors.Wrap(apperrors.ErrInternalServer, result.Error)
	}
	return result.RowsAffected, nil
}

// GetOrderByID returns a sell order if it belongs to the user.
func (s *sellOrderService) GetOrderByID(userID uint, orderID string) (*models.SellOrder, error) {
	order, err := loadOrder(s.db, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, apperrors.ErrOrderNotFound
	}
	return order, nil
}

// ListForUser returns the user's sell orders, newest first.
func (s *sellOrderService) ListForUser(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SellOrder], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.SellOrder{}).Where("user_id = ?", userID)
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var orders []models.SellOrder
	if err := base.Order("submitted_at DESC").Scopes(pagination.Paginate(page)).Find(&orders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(orders, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// ListPendingForAdmin returns the review queue, oldest submission first,
// with each order's owner and account stitched in. The joins are composed
// explicitly: batched lookups keyed in application code, no inferred
// relationships.
func (s *sellOrderService) ListPendingForAdmin(page pagination.PageRequest) (*pagination.PageResponse[AdminSellOrderView], error) {
	if _, err := s.ExpireDue(time.Now()); err != nil {
		return nil, err
	}

	page.Defaults()

	base := s.db.Model(&models.SellOrder{}).Where("status = ?", models.SellOrderStatusPending)

	var totalItems int64
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var orders []models.SellOrder
	if err := base.Order("submitted_at ASC").Scopes(pagination.Paginate(page)).Find(&orders).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	views, err := s.composeAdminViews(orders)
	if err != nil {
		return nil, err
	}

	result := pagination.NewPageResponse(views, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// composeAdminViews batch-loads the owners and accounts referenced by the
// given orders and stitches them into review-queue rows.
func (s *sellOrderService) composeAdminViews(orders []models.SellOrder) ([]AdminSellOrderView, error) {
	if len(orders) == 0 {
		return []AdminSellOrderView{}, nil
	}

	userIDSet := make(map[uint]struct{})
	accountIDSet := make(map[uint]struct{})
	for i := range orders {
		userIDSet[orders[i].UserID] = struct{}{}
		accountIDSet[orders[i].AccountID] = struct{}{}
	}
	userIDs := make([]uint, 0, len(userIDSet))
	for id := range userIDSet {
		userIDs = append(userIDs, id)
	}
	accountIDs := make([]uint, 0, len(accountIDSet))
	for id := range accountIDSet {
		accountIDs = append(accountIDs, id)
	}

	var users []models.User
	if err := s.db.Where("id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	usersByID := make(map[uint]*models.User, len(users))
	for i := range users {
		usersByID[users[i].ID] = &users[i]
	}

	var accounts []models.Account
	if err := s.db.Where("id IN ?", accountIDs).Find(&accounts).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	accountsByID := make(map[uint]*models.Account, len(accounts))
	for i := range accounts {
		accountsByID[accounts[i].ID] = &accounts[i]
	}

	views := make([]AdminSellOrderView, 0, len(orders))
	for i := range orders {
		view := AdminSellOrderView{SellOrder: orders[i]}
		if u := usersByID[orders[i].UserID]; u != nil {
			view.OwnerEmail = u.Email
			view.OwnerName = strings.TrimSpace(u.FirstName + " " + u.LastName)
		}
		if a := accountsByID[orders[i].AccountID]; a != nil {
			view.AccountName = a.Name
			view.Currency = a.Currency
		}
		views = append(views, view)
	}
	return views, nil
}

// loadOrder fetches a sell order by ID. Inside a transaction the row comes
// back locked, so competing transitions on the same order serialize.
func loadOrder(db *gorm.DB, orderID string) (*models.SellOrder, error) {
	var order models.SellOrder
	if err := forUpdate(db).Where("id = ?", orderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrOrderNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &order, nil
}

// expireIfDue flips one pending order past its deadline to expired. It runs
// on its own connection, before the caller opens its transition transaction,
// so the flip stays committed even when the transition is then refused and
// rolled back. Transitions reload the order afterwards and fail against the
// expired state.
func (s *sellOrderService) expireIfDue(orderID string, now time.Time) error {
	err := s.db.Model(&models.SellOrder{}).
		Where("id = ? AND status = ? AND expires_at IS NOT NULL AND expires_at < ?",
			orderID, models.SellOrderStatusPending, now).
		Update("status", models.SellOrderStatusExpired).Error
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return nil
}
