package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
	"brokerage/internal/services"
)

// SellOrderHandler handles the sell order review workflow: user submission
// and cancellation, and the admin review queue with its decisions.
type SellOrderHandler struct {
	sellOrderService services.SellOrderServicer
	auditService     services.AuditServicer
}

// NewSellOrderHandler creates a new SellOrderHandler.
func NewSellOrderHandler(sellOrderService services.SellOrderServicer, auditService services.AuditServicer) *SellOrderHandler {
	return &SellOrderHandler{sellOrderService: sellOrderService, auditService: auditService}
}

// SubmitSellOrderRequest represents the request payload for submitting a sell order.
type SubmitSellOrderRequest struct {
	AccountID      uint             `json:"account_id" binding:"required"`
	Symbol         string           `json:"symbol" binding:"required,min=1,max=20"`
	AssetType      models.AssetType `json:"asset_type" binding:"required,asset_type"`
	Quantity       decimal.Decimal  `json:"quantity" binding:"required"`
	EstimatedPrice decimal.Decimal  `json:"estimated_price"`
	UserNotes      string           `json:"user_notes" binding:"max=500"`
}

// ApproveSellOrderRequest represents the request payload for approving a sell order.
// ActualPrice is a pointer so a missing field fails the required binding
// instead of decoding to zero.
type ApproveSellOrderRequest struct {
	ActualPrice *decimal.Decimal `json:"actual_price" binding:"required"`
	AdminNotes  string           `json:"admin_notes" binding:"max=500"`
}

// RejectSellOrderRequest represents the request payload for rejecting a sell order.
type RejectSellOrderRequest struct {
	Reason     string `json:"reason" binding:"required,min=1,max=500"`
	AdminNotes string `json:"admin_notes" binding:"max=500"`
}

// Submit handles placing a sell order into the review queue.
// @Summary     Submit sell order
// @Description Submit a sell request for admin review; shares are reserved, not sold
// @Tags        sell-orders
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body SubmitSellOrderRequest true "Sell order details"
// @Success     201 {object} models.SellOrder "Submitted order"
// @Failure     400 {object} ErrorResponse "Invalid input or insufficient available shares"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     422 {object} ErrorResponse "Price unavailable for estimate"
// @Router      /sell-orders [post]
func (h *SellOrderHandler) Submit(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req SubmitSellOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	order, err := h.sellOrderService.Submit(userID, services.SellOrderRequest{
		AccountID:      req.AccountID,
		Symbol:         req.Symbol,
		AssetType:      req.AssetType,
		Quantity:       req.Quantity,
		EstimatedPrice: req.EstimatedPrice,
		UserNotes:      req.UserNotes,
	})
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "SUBMIT_SELL_ORDER", "sell_order", order.ID, c.ClientIP(),
		map[string]interface{}{"symbol": order.Symbol, "quantity": order.Quantity.String()})

	c.JSON(http.StatusCreated, gin.H{"order": order})
}

// ListMine handles listing the user's sell orders.
// @Summary     List sell orders
// @Description Get a paginated list of the user's sell orders, newest first
// @Tags        sell-orders
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.SellOrder] "Paginated orders"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Router      /sell-orders [get]
func (h *SellOrderHandler) ListMine(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.sellOrderService.ListForUser(userID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetOrder handles fetching one of the user's sell orders.
// @Summary     Get sell order
// @Description Get one of the user's sell orders by ID
// @Tags        sell-orders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Sell order ID"
// @Success     200 {object} models.SellOrder "Sell order"
// @Failure     400 {object} ErrorResponse "Invalid order ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Router      /sell-orders/{id} [get]
func (h *SellOrderHandler) GetOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.sellOrderService.GetOrderByID(userID, orderID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// Cancel handles withdrawing a pending sell order.
// @Summary     Cancel sell order
// @Description Cancel a sell order that is still awaiting review
// @Tags        sell-orders
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Sell order ID"
// @Success     200 {object} models.SellOrder "Cancelled order"
// @Failure     400 {object} ErrorResponse "Invalid order ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     409 {object} ErrorResponse "Order no longer cancellable"
// @Router      /sell-orders/{id}/cancel [post]
func (h *SellOrderHandler) Cancel(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.sellOrderService.Cancel(userID, orderID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CANCEL_SELL_ORDER", "sell_order", order.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// ListPending handles listing the admin review queue.
// @Summary     List pending sell orders
// @Description Get the admin review queue, oldest submission first, with owner and account context
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[services.AdminSellOrderView] "Review queue"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin required"
// @Router      /admin/sell-orders [get]
func (h *SellOrderHandler) ListPending(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.sellOrderService.ListPendingForAdmin(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// MarkUnderReview handles an admin picking up an order for review.
// @Summary     Mark sell order under review
// @Description Move a pending sell order into review, blocking owner cancellation
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Param       id path string true "Sell order ID"
// @Success     200 {object} models.SellOrder "Order under review"
// @Failure     400 {object} ErrorResponse "Invalid order ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin required"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     409 {object} ErrorResponse "Order already reviewed"
// @Router      /admin/sell-orders/{id}/review [post]
func (h *SellOrderHandler) MarkUnderReview(c *gin.Context) {
	adminID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	order, err := h.sellOrderService.MarkUnderReview(adminID, orderID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(adminID, "REVIEW_SELL_ORDER", "sell_order", order.ID, c.ClientIP(), nil)

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// Approve handles an admin approving and settling a sell order.
// @Summary     Approve sell order
// @Description Approve a pending sell order and settle it at the actual fill price
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                  true "Sell order ID"
// @Param       request body ApproveSellOrderRequest true "Approval details"
// @Success     200 {object} services.SellOrderSettlement "Approved order and settled trade"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin required"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     409 {object} ErrorResponse "Order already reviewed"
// @Router      /admin/sell-orders/{id}/approve [post]
func (h *SellOrderHandler) Approve(c *gin.Context) {
	adminID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req ApproveSellOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	settlement, err := h.sellOrderService.Approve(adminID, orderID, *req.ActualPrice, req.AdminNotes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(adminID, "APPROVE_SELL_ORDER", "sell_order", settlement.Order.ID, c.ClientIP(),
		map[string]interface{}{
			"actual_price": req.ActualPrice.String(),
			"trade_id":     settlement.Trade.ID,
		})

	c.JSON(http.StatusOK, gin.H{"order": settlement.Order, "trade": settlement.Trade})
}

// Reject handles an admin declining a sell order.
// @Summary     Reject sell order
// @Description Reject a pending sell order with a reason; nothing is settled
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       id      path string                 true "Sell order ID"
// @Param       request body RejectSellOrderRequest true "Rejection details"
// @Success     200 {object} models.SellOrder "Rejected order"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin required"
// @Failure     404 {object} ErrorResponse "Order not found"
// @Failure     409 {object} ErrorResponse "Order already reviewed"
// @Router      /admin/sell-orders/{id}/reject [post]
func (h *SellOrderHandler) Reject(c *gin.Context) {
	adminID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	orderID, err := parseOrderID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req RejectSellOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	order, err := h.sellOrderService.Reject(adminID, orderID, req.Reason, req.AdminNotes)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(adminID, "REJECT_SELL_ORDER", "sell_order", order.ID, c.ClientIP(),
		map[string]interface{}{"reason": req.Reason})

	c.JSON(http.StatusOK, gin.H{"order": order})
}
