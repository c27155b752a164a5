package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"brokerage/internal/handlers"
	"brokerage/internal/logger"
	"brokerage/internal/middleware"
	"brokerage/internal/models"
	"brokerage/internal/services"
	"brokerage/internal/validator"
)

const pipelineKey = "test-pipeline-key"

// testApp holds the full application stack for integration tests.
type testApp struct {
	DB     *gorm.DB
	Router *gin.Engine
}

// dbCounter ensures each test gets a unique in-memory database.
var dbCounter atomic.Int64

func init() {
	gin.SetMode(gin.TestMode)
	logger.Init("test")
	validator.Register()
}

// setupIsolatedDB creates an isolated in-memory SQLite database for a single test.
func setupIsolatedDB(t *testing.T) *gorm.DB {
	t.Helper()

	n := dbCounter.Add(1)
	dsn := fmt.Sprintf("file:testdb%d?mode=memory&cache=shared", n)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	allModels := []interface{}{
		&models.User{},
		&models.Account{},
		&models.Security{},
		&models.SecurityPrice{},
		&models.Holding{},
		&models.Trade{},
		&models.SellOrder{},
		&models.AuditLog{},
	}
	if err := db.AutoMigrate(allModels...); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	return db
}

// setupApp creates a full application stack backed by an isolated in-memory SQLite.
func setupApp(t *testing.T) *testApp {
	t.Helper()

	db := setupIsolatedDB(t)

	// Services
	userService := services.NewUserService(db)
	accountService := services.NewAccountService(db)
	securityService := services.NewSecurityService(db)
	tradeService := services.NewTradeService(db, accountService, securityService)
	sellOrderService := services.NewSellOrderService(db, accountService, securityService)
	portfolioService := services.NewPortfolioService(db, securityService)
	auditService := services.NewAuditService(db)

	// Handlers
	authHandler := handlers.NewAuthHandler(userService)
	accountHandler := handlers.NewAccountHandler(accountService, auditService)
	securityHandler := handlers.NewSecurityHandler(securityService, auditService)
	tradeHandler := handlers.NewTradeHandler(tradeService, auditService)
	sellOrderHandler := handlers.NewSellOrderHandler(sellOrderService, auditService)
	portfolioHandler := handlers.NewPortfolioHandler(portfolioService)

	// Router
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.ErrorHandler())

	v1 := router.Group("/api/v1")

	// Public auth routes
	auth := v1.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	// Protected routes
	protected := v1.Group("/")
	protected.Use(middleware.AuthMiddleware())

	protected.GET("/profile", authHandler.GetProfile)

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

	securities := protected.Group("/securities")
	securities.GET("", securityHandler.ListSecurities)
	securities.GET("/:id", securityHandler.GetSecurity)
	protected.GET("/quotes/:symbol", securityHandler.GetQuote)

	trades := protected.Group("/trades")
	trades.POST("", tradeHandler.ExecuteOrder)
	trades.POST("/validate", tradeHandler.ValidateOrder)

	sellOrders := protected.Group("/sell-orders")
	sellOrders.POST("", sellOrderHandler.Submit)
	sellOrders.GET("", sellOrderHandler.ListMine)
	sellOrders.GET("/:id", sellOrderHandler.GetOrder)
	sellOrders.POST("/:id/cancel", sellOrderHandler.Cancel)

	admin := v1.Group("/admin")
	admin.Use(middleware.AuthMiddleware(), middleware.AdminRequired())
	admin.POST("/securities", securityHandler.CreateSecurity)
	admin.GET("/sell-orders", sellOrderHandler.ListPending)
	admin.POST("/sell-orders/:id/review", sellOrderHandler.MarkUnderReview)
	admin.POST("/sell-orders/:id/approve", sellOrderHandler.Approve)
	admin.POST("/sell-orders/:id/reject", sellOrderHandler.Reject)

	pipeline := v1.Group("/pipeline")
	pipeline.Use(middleware.PipelineAuthMiddleware(pipelineKey))
	pipeline.POST("/prices", securityHandler.RecordPrices)
	pipeline.GET("/securities", securityHandler.ListSecurities)

	return &testApp{DB: db, Router: router}
}

// request makes an HTTP request to the test router and returns the recorder.
func (app *testApp) request(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// pipelineRequest makes a request authenticated with the pipeline API key.
func (app *testApp) pipelineRequest(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", pipelineKey)
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

// parseJSON parses the response body into a map.
func parseJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, rec.Body.String())
	}
	return result
}

// errorCode extracts the error code from an error response.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	result := parseJSON(t, rec)
	errObj, ok := result["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error object in response, got: %s", rec.Body.String())
	}
	code, _ := errObj["code"].(string)
	return code
}

// registerUser registers a new user and returns the access token, refresh token, and user ID.
func (app *testApp) registerUser(t *testing.T, email, password string) (accessToken, refreshToken string, userID float64) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q,"first_name":"Test","last_name":"User"}`, email, password)
	rec := app.request("POST", "/api/v1/auth/register", body, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	user := result["user"].(map[string]interface{})
	return result["access_token"].(string), result["refresh_token"].(string), user["id"].(float64)
}

// loginUser logs in and returns the access and refresh tokens.
func (app *testApp) loginUser(t *testing.T, email, password string) (accessToken, refreshToken string) {
	t.Helper()
	body := fmt.Sprintf(`{"email":%q,"password":%q}`, email, password)
	rec := app.request("POST", "/api/v1/auth/login", body, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	return result["access_token"].(string), result["refresh_token"].(string)
}

// registerAdmin registers a user, promotes them to admin, and logs in again so
// the returned token carries the admin role.
func (app *testApp) registerAdmin(t *testing.T, email, password string) string {
	t.Helper()
	_, _, userID := app.registerUser(t, email, password)
	if err := app.DB.Model(&models.User{}).Where("id = ?", uint(userID)).
		Update("role", models.RoleAdmin).Error; err != nil {
		t.Fatalf("failed to promote admin: %v", err)
	}
	token, _ := app.loginUser(t, email, password)
	return token
}

// createAccount creates a brokerage account with an initial deposit and
// returns its ID.
func (app *testApp) createAccount(t *testing.T, token, name, deposit string) float64 {
	t.Helper()
	body := fmt.Sprintf(`{"name":%q,"currency":"USD","initial_deposit":%q}`, name, deposit)
	rec := app.request("POST", "/api/v1/accounts", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create account failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	account := result["account"].(map[string]interface{})
	return account["id"].(float64)
}

// seedSecurity creates a security through the admin endpoint and records a
// price for it through the pipeline endpoint.
func (app *testApp) seedSecurity(t *testing.T, adminToken, symbol, price string) {
	t.Helper()
	body := fmt.Sprintf(`{"symbol":%q,"name":"%s Inc.","asset_type":"stock","currency":"USD","exchange":"NASDAQ"}`, symbol, symbol)
	rec := app.request("POST", "/api/v1/admin/securities", body, adminToken)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create security failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	security := result["security"].(map[string]interface{})
	securityID := security["id"].(float64)

	priceBody := fmt.Sprintf(`{"prices":[{"security_id":%d,"price":%q}]}`, int(securityID), price)
	rec = app.pipelineRequest("POST", "/api/v1/pipeline/prices", priceBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("record price failed: %d %s", rec.Code, rec.Body.String())
	}
}

// buyShares executes an instant market buy.
func (app *testApp) buyShares(t *testing.T, token string, accountID float64, symbol, quantity string) {
	t.Helper()
	body := fmt.Sprintf(`{"account_id":%d,"symbol":%q,"asset_type":"stock","side":"buy","order_type":"market","quantity":%q}`,
		int(accountID), symbol, quantity)
	rec := app.request("POST", "/api/v1/trades", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("buy failed: %d %s", rec.Code, rec.Body.String())
	}
}

// submitSellOrder submits a sell order for review and returns its ID.
func (app *testApp) submitSellOrder(t *testing.T, token string, accountID float64, symbol, quantity, estimatedPrice string) string {
	t.Helper()
	body := fmt.Sprintf(`{"account_id":%d,"symbol":%q,"asset_type":"stock","quantity":%q,"estimated_price":%q}`,
		int(accountID), symbol, quantity, estimatedPrice)
	rec := app.request("POST", "/api/v1/sell-orders", body, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit sell order failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	order := result["order"].(map[string]interface{})
	return order["id"].(string)
}

// accountBalance reads the account's current balance through the API.
func (app *testApp) accountBalance(t *testing.T, token string, accountID float64) string {
	t.Helper()
	rec := app.request("GET", fmt.Sprintf("/api/v1/accounts/%d", int(accountID)), "", token)
	if rec.Code != http.StatusOK {
		t.Fatalf("get account failed: %d %s", rec.Code, rec.Body.String())
	}
	result := parseJSON(t, rec)
	account := result["account"].(map[string]interface{})
	return account["balance"].(string)
}
