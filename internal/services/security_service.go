package services

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
)

// securityService handles the security master and its price time series.
// It implements both SecurityServicer and QuoteServicer.
type securityService struct {
	db *gorm.DB
}

// NewSecurityService creates a new SecurityServicer.
func NewSecurityService(db *gorm.DB) SecurityServicer {
	return &securityService{db: db}
}

// CreateSecurity creates a new security record.
func (s *securityService) CreateSecurity(symbol, name string, assetType models.AssetType, currency, exchange string) (*models.Security, error) {
	if strings.TrimSpace(symbol) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Symbol is required")
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "Name is required")
	}
	if currency == "" {
		currency = "USD"
	}

	security := &models.Security{
		Symbol:    strings.ToUpper(symbol),
		Name:      name,
		AssetType: assetType,
		Currency:  currency,
		Exchange:  exchange,
	}

	if err := s.db.Create(security).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, apperrors.ErrDuplicateSecurity
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	return security, nil
}

// GetSecurityByID returns a security by its ID.
func (s *securityService) GetSecurityByID(id uint) (*models.Security, error) {
	var security models.Security
	if err := s.db.First(&security, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSecurityNotFound
		}
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return &security, nil
}

// ListSecurities returns a paginated list of securities ordered by symbol.
func (s *securityService) ListSecurities(page pagination.PageRequest) (*pagination.PageResponse[models.Security], error) {
	page.Defaults()

	var totalItems int64
	base := s.db.Model(&models.Security{})
	if err := base.Count(&totalItems).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var securities []models.Security
	if err := s.db.Model(&models.Security{}).Order("symbol ASC").
		Scopes(pagination.Paginate(page)).Find(&securities).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	result := pagination.NewPageResponse(securities, page.Page, page.PageSize, totalItems)
	return &result, nil
}

// RecordPrice appends a price observation to a security's time series.
func (s *securityService) RecordPrice(securityID uint, price decimal.Decimal, recordedAt time.Time) (*models.SecurityPrice, error) {
	if !price.IsPositive() {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput, "price must be greater than zero")
	}
	if _, err := s.GetSecurityByID(securityID); err != nil {
		return nil, err
	}
	if recordedAt.IsZero() {
		recordedAt = time.Now()
	}

	entry := &models.SecurityPrice{
		SecurityID: securityID,
		Price:      price,
		RecordedAt: recordedAt,
	}
	if err := s.db.Create(entry).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}
	return entry, nil
}

// GetQuote resolves the current market price for a symbol: the most recent
// price row of the matching security. A missing security, an empty time
// series, or a non-positive latest price all surface as ErrPriceUnavailable.
func (s *securityService) GetQuote(symbol string, assetType models.AssetType) (decimal.Decimal, error) {
	var security models.Security
	err := s.db.Where("symbol = ? AND asset_type = ?", strings.ToUpper(symbol), assetType).First(&security).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.ErrPriceUnavailable
		}
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	var latest models.SecurityPrice
	err = s.db.Where("security_id = ?", security.ID).
		Order("recorded_at DESC").First(&latest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.ErrPriceUnavailable
		}
		return decimal.Zero, apperrors.Wrap(apperrors.ErrInternalServer, err)
	}

	if !latest.Price.IsPositive() {
		return decimal.Zero, apperrors.ErrPriceUnavailable
	}
	return latest.Price, nil
}

// isUniqueConstraintError reports whether err is a unique constraint
// violation from either the postgres or sqlite driver.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "UNIQUE constraint failed")
}
