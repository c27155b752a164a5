package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
	"brokerage/internal/services"
)

// SecurityHandler handles security master and price ingestion requests.
type SecurityHandler struct {
	securityService services.SecurityServicer
	auditService    services.AuditServicer
}

// NewSecurityHandler creates a new SecurityHandler.
func NewSecurityHandler(securityService services.SecurityServicer, auditService services.AuditServicer) *SecurityHandler {
	return &SecurityHandler{securityService: securityService, auditService: auditService}
}

// CreateSecurityRequest represents the request payload for creating a security.
type CreateSecurityRequest struct {
	Symbol    string           `json:"symbol" binding:"required,min=1,max=20"`
	Name      string           `json:"name" binding:"required,min=1,max=200"`
	AssetType models.AssetType `json:"asset_type" binding:"required,asset_type"`
	Currency  string           `json:"currency" binding:"omitempty,iso4217"`
	Exchange  string           `json:"exchange,omitempty"`
}

// RecordPricesRequest represents the request payload for bulk price recording.
type RecordPricesRequest struct {
	Prices []RecordPriceEntry `json:"prices" binding:"required,min=1,dive"`
}

// RecordPriceEntry represents a single price entry in a bulk request.
type RecordPriceEntry struct {
	SecurityID uint            `json:"security_id" binding:"required"`
	Price      decimal.Decimal `json:"price" binding:"required"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// CreateSecurity handles creating a new security.
// @Summary     Create security
// @Description Create a new tradeable security (admin only)
// @Tags        admin
// @Accept      json
// @Produce     json
// @Security    BearerAuth
// @Param       request body CreateSecurityRequest true "Security details"
// @Success     201 {object} models.Security "Security created"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     403 {object} ErrorResponse "Admin required"
// @Failure     409 {object} ErrorResponse "Duplicate security"
// @Router      /admin/securities [post]
func (h *SecurityHandler) CreateSecurity(c *gin.Context) {
	userID, err := getUserID(c)
	if err != nil {
		respondWithError(c, err)
		return
	}

	var req CreateSecurityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	security, err := h.securityService.CreateSecurity(req.Symbol, req.Name, req.AssetType, req.Currency, req.Exchange)
	if err != nil {
		respondWithError(c, err)
		return
	}

	h.auditService.Log(userID, "CREATE_SECURITY", "security", fmt.Sprintf("%d", security.ID), c.ClientIP(),
		map[string]interface{}{"symbol": security.Symbol, "asset_type": string(req.AssetType)})

	c.JSON(http.StatusCreated, gin.H{"security": security})
}

// ListSecurities handles listing all securities.
// @Summary     List securities
// @Description Get a paginated list of all tradeable securities
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       page      query int false "Page number (default 1)"
// @Param       page_size query int false "Items per page (default 20, max 100)"
// @Success     200 {object} pagination.PageResponse[models.Security] "Paginated securities"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     500 {object} ErrorResponse "Server error"
// @Router      /securities [get]
func (h *SecurityHandler) ListSecurities(c *gin.Context) {
	var page pagination.PageRequest
	if err := c.ShouldBindQuery(&page); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	result, err := h.securityService.ListSecurities(page)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSecurity handles retrieving a specific security.
// @Summary     Get security by ID
// @Description Get a specific security by ID
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Security ID"
// @Success     200 {object} models.Security "Security details"
// @Failure     400 {object} ErrorResponse "Invalid security ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Security not found"
// @Router      /securities/{id} [get]
func (h *SecurityHandler) GetSecurity(c *gin.Context) {
	id, err := parsePathID(c, "id")
	if err != nil {
		respondWithError(c, err)
		return
	}

	security, err := h.securityService.GetSecurityByID(id)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"security": security})
}

// GetQuote handles fetching the latest price for a security.
// @Summary     Get quote
// @Description Get the latest recorded price for a symbol
// @Tags        securities
// @Produce     json
// @Security    BearerAuth
// @Param       symbol     path  string true  "Symbol"
// @Param       asset_type query string false "Asset type (default stock)"
// @Success     200 {object} map[string]string "Latest price"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     422 {object} ErrorResponse "Price unavailable"
// @Router      /quotes/{symbol} [get]
func (h *SecurityHandler) GetQuote(c *gin.Context) {
	symbol := c.Param("symbol")
	assetType := models.AssetType(c.DefaultQuery("asset_type", string(models.AssetTypeStock)))

	price, err := h.securityService.GetQuote(symbol, assetType)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "asset_type": assetType, "price": price})
}

// RecordPrices handles bulk price recording from the market data pipeline.
// @Summary     Record prices
// @Description Bulk record prices for securities (pipeline endpoint)
// @Tags        pipeline
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       request body RecordPricesRequest true "Price entries"
// @Success     200 {object} map[string]int "Prices recorded count"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Invalid API key"
// @Failure     503 {object} ErrorResponse "Pipeline not configured"
// @Router      /pipeline/prices [post]
func (h *SecurityHandler) RecordPrices(c *gin.Context) {
	var req RecordPricesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, err.Error()))
		return
	}

	recorded := 0
	for _, p := range req.Prices {
		if _, err := h.securityService.RecordPrice(p.SecurityID, p.Price, p.RecordedAt); err != nil {
			respondWithError(c, err)
			return
		}
		recorded++
	}

	c.JSON(http.StatusOK, gin.H{"prices_recorded": recorded})
}
