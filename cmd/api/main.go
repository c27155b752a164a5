package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"brokerage/internal/config"
	"brokerage/internal/database"
	"brokerage/internal/handlers"
	"brokerage/internal/logger"
	"brokerage/internal/middleware"
	"brokerage/internal/services"
	"brokerage/internal/validator"
)

// @title           Brokerage API
// @version         1.0
// @description     Backend for a mobile brokerage: accounts, market prices, instant trades and the admin-reviewed sell order workflow.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for the market data pipeline.

func main() {
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dbConfig, err := database.NewConfig()
	if err != nil {
		return fmt.Errorf("failed to load database configuration: %w", err)
	}

	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	// Initialize services
	db := dbManager.DB()
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	securityService := services.NewSecurityService(db)
	tradeService := services.NewTradeService(db, accountService, securityService)
	sellOrderService := services.NewSellOrderService(db, accountService, securityService)
	portfolioService := services.NewPortfolioService(db, securityService)
	auditService := services.NewAuditService(db)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(userService)
	accountHandler := handlers.NewAccountHandler(accountService, auditService)
	securityHandler := handlers.NewSecurityHandler(securityService, auditService)
	tradeHandler := handlers.NewTradeHandler(tradeService, auditService)
	sellOrderHandler := handlers.NewSellOrderHandler(sellOrderService, auditService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)

	// Initialize Gin router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogging())
	router.Use(middleware.ErrorHandler())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check endpoint
	router.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// API v1 group
	v1 := router.Group("/api/v1")

	// Public routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	// User profile
	protected.GET("/profile", authHandler.GetProfile)

	// Account routes
	accounts := protected.Group("/accounts")
	accounts.POST("", accountHandler.CreateAccount)
	accounts.GET("", accountHandler.ListAccounts)
	accounts.GET("/:id", accountHandler.GetAccount)
	accounts.POST("/:id/deposit", accountHandler.Deposit)
	accounts.POST("/:id/withdraw", accountHandler.Withdraw)
	accounts.GET("/:id/trades", tradeHandler.ListTrades)
	accounts.GET("/:id/portfolio", portfolioHandler.GetPortfolio)
	accounts.GET("/:id/holdings", portfolioHandler.GetHoldings)
	accounts.GET("/:id/holdings/:symbol/availability", portfolioHandler.GetAvailability)

	// Security master and quotes
	securities := protected.Group("/securities")
	securities.GET("", securityHandler.ListSecurities)
	securities.GET("/:id", securityHandler.GetSecurity)
	protected.GET("/quotes/:symbol", securityHandler.GetQuote)

	// Trade routes
	trades := protected.Group("/trades")
	trades.POST("", tradeHandler.ExecuteOrder)
	trades.POST("/validate", tradeHandler.ValidateOrder)

	// Sell order routes
	sellOrders := protected.Group("/sell-orders")
	sellOrders.POST("", sellOrderHandler.Submit)
	sellOrders.GET("", sellOrderHandler.ListMine)
	sellOrders.GET("/:id", sellOrderHandler.GetOrder)
	sellOrders.POST("/:id/cancel", sellOrderHandler.Cancel)

	// Admin routes
	admin := v1.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminRequired())
	admin.POST("/securities", securityHandler.CreateSecurity)
	admin.GET("/sell-orders", sellOrderHandler.ListPending)
	admin.POST("/sell-orders/:id/review", sellOrderHandler.MarkUnderReview)
	admin.POST("/sell-orders/:id/approve", sellOrderHandler.Approve)
	admin.POST("/sell-orders/:id/reject", sellOrderHandler.Reject)

	// Market data pipeline routes
	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(appConfig.PipelineAPIKey))
	pipeline.POST("/prices", securityHandler.RecordPrices)
	pipeline.GET("/securities", securityHandler.ListSecurities)

	log.Infof("Starting brokerage backend server on port %s", appConfig.Port)
	return router.Run(":" + appConfig.Port)
}
