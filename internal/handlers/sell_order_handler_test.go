package handlers

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	apperrors "brokerage/internal/errors"
	"brokerage/internal/models"
	"brokerage/internal/pagination"
	"brokerage/internal/services"
)

const testOrderID = "0198c9a4-0000-7000-8000-0000000000aa"

type mockSellOrderService struct {
	submitFn              func(userID uint, req services.SellOrderRequest) (*models.SellOrder, error)
	cancelFn              func(userID uint, orderID string) (*models.SellOrder, error)
	markUnderReviewFn     func(adminID uint, orderID string) (*models.SellOrder, error)
	approveFn             func(adminID uint, orderID string, actualPrice decimal.Decimal, adminNotes string) (*services.SellOrderSettlement, error)
	rejectFn              func(adminID uint, orderID string, reason, adminNotes string) (*models.SellOrder, error)
	getOrderByIDFn        func(userID uint, orderID string) (*models.SellOrder, error)
	listForUserFn         func(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SellOrder], error)
	listPendingForAdminFn func(page pagination.PageRequest) (*pagination.PageResponse[services.AdminSellOrderView], error)
}

func (m *mockSellOrderService) Submit(userID uint, req services.SellOrderRequest) (*models.SellOrder, error) {
	if m.submitFn != nil {
		return m.submitFn(userID, req)
	}
	return &models.SellOrder{ID: testOrderID}, nil
}

func (m *mockSellOrderService) Cancel(userID uint, orderID string) (*models.SellOrder, error) {
	if m.cancelFn != nil {
		return m.cancelFn(userID, orderID)
	}
	return &models.SellOrder{ID: orderID, Status: models.SellOrderStatusCancelled}, nil
}

func (m *mockSellOrderService) MarkUnderReview(adminID uint, orderID string) (*models.SellOrder, error) {
	if m.markUnderReviewFn != nil {
		return m.markUnderReviewFn(adminID, orderID)
	}
	return &models.SellOrder{ID: orderID, ApprovalStatus: models.ApprovalUnderReview}, nil
}

func (m *mockSellOrderService) Approve(adminID uint, orderID string, actualPrice decimal.Decimal, adminNotes string) (*services.SellOrderSettlement, error) {
	if m.approveFn != nil {
		return m.approveFn(adminID, orderID, actualPrice, adminNotes)
	}
	return &services.SellOrderSettlement{
		Order: &models.SellOrder{ID: orderID, Status: models.SellOrderStatusApproved},
		Trade: &models.Trade{},
	}, nil
}

func (m *mockSellOrderService) Reject(adminID uint, orderID string, reason, adminNotes string) (*models.SellOrder, error) {
	if m.rejectFn != nil {
		return m.rejectFn(adminID, orderID, reason, adminNotes)
	}
	return &models.SellOrder{ID: orderID, Status: models.SellOrderStatusRejected}, nil
}

func (m *mockSellOrderService) ExpireDue(now time.Time) (int64, error) {
	return 0, nil
}

func (m *mockSellOrderService) GetOrderByID(userID uint, orderID string) (*models.SellOrder, error) {
	if m.getOrderByIDFn != nil {
		return m.getOrderByIDFn(userID, orderID)
	}
	return &models.SellOrder{ID: orderID}, nil
}

func (m *mockSellOrderService) ListForUser(userID uint, page pagination.PageRequest) (*pagination.PageResponse[models.SellOrder], error) {
	if m.listForUserFn != nil {
		return m.listForUserFn(userID, page)
	}
	resp := pagination.NewPageResponse([]models.SellOrder{}, 1, 20, 0)
	return &resp, nil
}

func (m *mockSellOrderService) ListPendingForAdmin(page pagination.PageRequest) (*pagination.PageResponse[services.AdminSellOrderView], error) {
	if m.listPendingForAdminFn != nil {
		return m.listPendingForAdminFn(page)
	}
	resp := pagination.NewPageResponse([]services.AdminSellOrderView{}, 1, 20, 0)
	return &resp, nil
}

var _ services.SellOrderServicer = (*mockSellOrderService)(nil)

func setupSellOrderRouter(handler *SellOrderHandler) *gin.Engine {
	r := gin.New()
	auth := r.Group("", injectUserID(1))
	auth.POST("/sell-orders", handler.Submit)
	auth.GET("/sell-orders", handler.ListMine)
	auth.GET("/sell-orders/:id", handler.GetOrder)
	auth.POST("/sell-orders/:id/cancel", handler.Cancel)
	admin := r.Group("/admin", injectUserID(2))
	admin.GET("/sell-orders", handler.ListPending)
	admin.POST("/sell-orders/:id/review", handler.MarkUnderReview)
	admin.POST("/sell-orders/:id/approve", handler.Approve)
	admin.POST("/sell-orders/:id/reject", handler.Reject)
	return r
}

func TestSellOrderHandler_Submit(t *testing.T) {
	t.Run("returns 201 on success", func(t *testing.T) {
		svc := &mockSellOrderService{
			submitFn: func(userID uint, req services.SellOrderRequest) (*models.SellOrder, error) {
				if userID != 1 {
					t.Errorf("expected user ID 1, got %d", userID)
				}
				return &models.SellOrder{
					ID:             testOrderID,
					Symbol:         req.Symbol,
					Quantity:       req.Quantity,
					Status:         models.SellOrderStatusPending,
					ApprovalStatus: models.ApprovalPendingReview,
				}, nil
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders",
			`{"account_id":1,"symbol":"AAPL","asset_type":"stock","quantity":"15","estimated_price":"75"}`)

		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		order := result["order"].(map[string]interface{})
		if order["status"] != "pending" {
			t.Errorf("expected status pending, got %v", order["status"])
		}
	})

	t.Run("returns 400 when shares are reserved", func(t *testing.T) {
		svc := &mockSellOrderService{
			submitFn: func(uint, services.SellOrderRequest) (*models.SellOrder, error) {
				return nil, apperrors.ErrInsufficientShares
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders",
			`{"account_id":1,"symbol":"AAPL","asset_type":"stock","quantity":"15"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INSUFFICIENT_SHARES")
	})

	t.Run("returns 400 on invalid asset type", func(t *testing.T) {
		handler := NewSellOrderHandler(&mockSellOrderService{}, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders",
			`{"account_id":1,"symbol":"AAPL","asset_type":"warrant","quantity":"15"}`)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestSellOrderHandler_Cancel(t *testing.T) {
	t.Run("returns 200 with cancelled order", func(t *testing.T) {
		handler := NewSellOrderHandler(&mockSellOrderService{}, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders/"+testOrderID+"/cancel", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		order := result["order"].(map[string]interface{})
		if order["status"] != "cancelled" {
			t.Errorf("expected status cancelled, got %v", order["status"])
		}
	})

	t.Run("returns 409 when under review", func(t *testing.T) {
		svc := &mockSellOrderService{
			cancelFn: func(uint, string) (*models.SellOrder, error) {
				return nil, apperrors.ErrOrderNotCancellable
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders/"+testOrderID+"/cancel", "")
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ORDER_NOT_CANCELLABLE")
	})

	t.Run("returns 400 for malformed order id", func(t *testing.T) {
		handler := NewSellOrderHandler(&mockSellOrderService{}, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/sell-orders/not-a-uuid/cancel", "")
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestSellOrderHandler_Approve(t *testing.T) {
	t.Run("returns order and trade", func(t *testing.T) {
		svc := &mockSellOrderService{
			approveFn: func(adminID uint, orderID string, actualPrice decimal.Decimal, adminNotes string) (*services.SellOrderSettlement, error) {
				if !actualPrice.Equal(decimal.NewFromInt(78)) {
					t.Errorf("expected actual price 78, got %s", actualPrice)
				}
				return &services.SellOrderSettlement{
					Order: &models.SellOrder{ID: orderID, Status: models.SellOrderStatusApproved},
					Trade: &models.Trade{FilledPrice: actualPrice},
				}, nil
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/admin/sell-orders/"+testOrderID+"/approve",
			`{"actual_price":"78"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		if _, ok := result["order"]; !ok {
			t.Error("expected order in response")
		}
		if _, ok := result["trade"]; !ok {
			t.Error("expected trade in response")
		}
	})

	t.Run("returns 409 when already reviewed", func(t *testing.T) {
		svc := &mockSellOrderService{
			approveFn: func(uint, string, decimal.Decimal, string) (*services.SellOrderSettlement, error) {
				return nil, apperrors.ErrOrderAlreadyReviewed
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/admin/sell-orders/"+testOrderID+"/approve",
			`{"actual_price":"78"}`)

		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ORDER_ALREADY_REVIEWED")
	})

	t.Run("requires actual price", func(t *testing.T) {
		handler := NewSellOrderHandler(&mockSellOrderService{}, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/admin/sell-orders/"+testOrderID+"/approve", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestSellOrderHandler_Reject(t *testing.T) {
	t.Run("returns rejected order", func(t *testing.T) {
		svc := &mockSellOrderService{
			rejectFn: func(adminID uint, orderID string, reason, adminNotes string) (*models.SellOrder, error) {
				if reason != "stale price estimate" {
					t.Errorf("unexpected reason %q", reason)
				}
				return &models.SellOrder{ID: orderID, Status: models.SellOrderStatusRejected, RejectionReason: reason}, nil
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/admin/sell-orders/"+testOrderID+"/reject",
			`{"reason":"stale price estimate"}`)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		order := result["order"].(map[string]interface{})
		if order["status"] != "rejected" {
			t.Errorf("expected status rejected, got %v", order["status"])
		}
	})

	t.Run("requires reason", func(t *testing.T) {
		handler := NewSellOrderHandler(&mockSellOrderService{}, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "POST", "/admin/sell-orders/"+testOrderID+"/reject", `{}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "INVALID_INPUT")
	})
}

func TestSellOrderHandler_ListPending(t *testing.T) {
	t.Run("returns queue with owner context", func(t *testing.T) {
		svc := &mockSellOrderService{
			listPendingForAdminFn: func(page pagination.PageRequest) (*pagination.PageResponse[services.AdminSellOrderView], error) {
				resp := pagination.NewPageResponse([]services.AdminSellOrderView{
					{
						SellOrder:   models.SellOrder{ID: testOrderID, Symbol: "AAPL"},
						OwnerEmail:  "owner@test.com",
						OwnerName:   "Ada Lovelace",
						AccountName: "Main",
						Currency:    "USD",
					},
				}, 1, 20, 1)
				return &resp, nil
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "GET", "/admin/sell-orders", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}
		result := parseJSON(t, rec)
		data := result["data"].([]interface{})
		if len(data) != 1 {
			t.Fatalf("expected 1 order, got %d", len(data))
		}
		entry := data[0].(map[string]interface{})
		if entry["owner_email"] != "owner@test.com" {
			t.Errorf("expected owner email in view, got %v", entry["owner_email"])
		}
	})
}

func TestSellOrderHandler_GetOrder(t *testing.T) {
	t.Run("returns 404 for another user's order", func(t *testing.T) {
		svc := &mockSellOrderService{
			getOrderByIDFn: func(uint, string) (*models.SellOrder, error) {
				return nil, apperrors.ErrOrderNotFound
			},
		}
		handler := NewSellOrderHandler(svc, &mockAuditService{})
		r := setupSellOrderRouter(handler)

		rec := doRequest(r, "GET", "/sell-orders/"+testOrderID, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
		assertErrorCode(t, parseJSON(t, rec), "ORDER_NOT_FOUND")
	})
}
