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

// TradeHandler handles order validation and settlement requests.
type TradeHandler struct {
	tradeService services.TradeServicer
	auditService services.AuditServicer
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeService services.TradeServicer, auditService services.AuditServicer) *TradeHandler {
	return &TradeHandler{tradeService: tradeService, auditService: auditService}
}

// OrderRequest represents the request payload for validating or executing an order.
type OrderRequest struct {
	AccountID  uint             `json:"account_id" binding:"required"`
	Symbol     string           `json:"symbol" binding:"required,min=1,max=20"`
	AssetType  models.AssetType `json:"asset_type" binding:"required,asset_type"`
	Side       models.TradeSide `json:"side" binding:"required,trade_side"`
	OrderType  models.OrderType `json:"order_type" binding:"required,order_type"`
	Quantity   decimal.Decimal  `json:"quantity" binding:"required"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Fee        decimal.Decimal  `json:"fee"`
}

func (r OrderRequest) toOrder() services.TradeOrder {
	return services.TradeOrder{
		AccountID:  r.AccountID,
		Symbol:     r.Symbol,
		AssetType:  r.AssetType,
		Side:       r.Side,
		OrderType:  r.OrderType,
		Quantity:   r.Quantity,
		LimitPrice: r.LimitPrice,
		Fee:        r.Fee,
	}
}

// ValidateOrder handles the read-only pre-flight check for an order.
// @Summary     Validate order
// @Description Check whether an order could settle right now, without executing it
// @Tags        trades
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body OrderRequest true "Order details"
// @Success     200 {object} services.OrderValidation "Validation result"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /trades/validate [post]
func (h *TradeHandler) ValidateOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	validation, err := h.tradeService.ValidateOrder(userID, req.toOrder())
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, validation)
}

// ExecuteOrder handles settling an order.
// @Summary     Execute order
// @Description Validate and settle an order in a single transaction
// @Tags        trades
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body OrderRequest true "Order details"
// @Success     201 {object} services.TradeResult "Settled trade"
// @Failure     400 {object} ErrorResponse "Invalid input, insufficient funds or shares"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Failure     422 {object} ErrorResponse "Price unavailable"
// @Router      /trades [post]
func (h *TradeHandler) ExecuteOrder(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req OrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.tradeService.ExecuteOrder(userID, req.toOrder())
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "EXECUTE_TRADE", "trade", result.TradeID, c.ClientIP(),
		map[string]interface{}{
			"symbol":   req.Symbol,
			"side":     string(req.Side),
			"quantity": req.Quantity.String(),
			"price":    result.ExecutedPrice.String(),
		})

	c.JSON(http.StatusCreated, gin.H{"trade": result})
}

// ListTrades handles listing an account's trade history.
// @Summary     List trades
// @Description Get a paginated trade history for an account, newest first
// @Tags        trades
// @Produce     json
// @Security    BearerAuth
// @Param       id        path  int true  "Account ID"
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Trade] "Paginated trades"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Router      /accounts/{id}/trades [get]
func (h *TradeHandler) ListTrades(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	accountID, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.tradeService.ListTrades(userID, accountID, page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
