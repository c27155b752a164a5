package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/services"
)

// PortfolioHandler serves the read models over holdings and reservations.
type PortfolioHandler struct {
	portfolioService services.PortfolioServicer
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioService services.PortfolioServicer) *PortfolioHandler {
	return &PortfolioHandler{portfolioService: portfolioService}
}

// GetPortfolio handles fetching an account's full portfolio state.
// @Summary     Get portfolio
// @Description Get an account's cash, holdings with availability, open sell orders, and totals
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Account ID"
// @Success     200 {object} services.PortfolioState "Portfolio state"
// @Failure     400 {object} ErrorResponse "Invalid account ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Router      /accounts/{id}/portfolio [get]
func (h *PortfolioHandler) GetPortfolio(c *gin.Context) {
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

	state, err := h.portfolioService.PortfolioState(userID, accountID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetHoldings handles listing an account's holdings with availability.
// @Summary     Get holdings
// @Description Get an account's holdings with locked and available quantities
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Param       id path int true "Account ID"
// @Success     200 {object} map[string][]models.HoldingAvailability "Holdings"
// @Failure     400 {object} ErrorResponse "Invalid account ID"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Router      /accounts/{id}/holdings [get]
func (h *PortfolioHandler) GetHoldings(c *gin.Context) {
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

	holdings, err := h.portfolioService.HoldingsWithAvailability(userID, accountID)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"holdings": holdings})
}

// GetAvailability handles fetching the sellable quantity for one symbol.
// @Summary     Get available quantity
// @Description Get how many shares of a symbol the account can still sell
// @Tags        portfolio
// @Produce     json
// @Security    BearerAuth
// @Param       id         path  int    true  "Account ID"
// @Param       symbol     path  string true  "Symbol"
// @Param       asset_type query string false "Asset type (default stock)"
// @Success     200 {object} map[string]string "Available quantity"
// @Failure     400 {object} ErrorResponse "Invalid input"
// @Failure     401 {object} ErrorResponse "Unauthorized"
// @Failure     404 {object} ErrorResponse "Account not found"
// @Router      /accounts/{id}/holdings/{symbol}/availability [get]
func (h *PortfolioHandler) GetAvailability(c *gin.Context) {
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

	symbol := c.Param("symbol")
	if symbol == "" {
		respondWithError(c, apperrors.WithMessage(apperrors.ErrInvalidInput, "symbol is required"))
		return
	}
	assetType := models.AssetType(c.DefaultQuery("asset_type", string(models.AssetTypeStock)))

	available, err := h.portfolioService.AvailableQuantity(userID, accountID, symbol, assetType)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "asset_type": assetType, "available": available})
}
