package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	"github.com/nimasrn/matatu-pay/internal/model"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) Initiate(ctx context.Context, req model.PaymentRequest) (*model.TransactionSummary, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionSummary), args.Error(1)
}

func (m *MockPaymentService) GetStatus(ctx context.Context, transactionID string) (*model.TransactionSummary, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TransactionSummary), args.Error(1)
}

func (m *MockPaymentService) History(ctx context.Context, vehicleCode string, limit int) ([]*model.TransactionSummary, error) {
	args := m.Called(ctx, vehicleCode, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.TransactionSummary), args.Error(1)
}

type MockCallbackService struct {
	mock.Mock
}

func (m *MockCallbackService) HandleCallback(ctx context.Context, payload []byte) (*model.CallbackAck, error) {
	args := m.Called(ctx, payload)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CallbackAck), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func decodeBody(t *testing.T, ctx *xhttp.RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func TestPaymentHandler_CreatePayment(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, new(MockCallbackService))

		body := []byte(`{"vehicle_code":"3025","phone":"0712345678","amount":100}`)
		summary := &model.TransactionSummary{
			TransactionID:     "MTX20250315120000ABC123",
			VehicleCode:       "3025",
			Phone:             "254712345678",
			FareAmount:        100,
			ServiceCharge:     2,
			TotalAmount:       102,
			OwnerShare:        2,
			Status:            model.TransactionStatusPending,
			CheckoutRequestID: "ws_CO_1",
		}
		svc.On("Initiate", mock.Anything, model.PaymentRequest{
			VehicleCode: "3025",
			Phone:       "0712345678",
			Amount:      100,
		}).Return(summary, nil)

		ctx := setupTestContext("POST", "/api/v1/payments", body)
		handler.CreatePayment(ctx)

		assert.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())
		out := decodeBody(t, ctx)
		assert.Equal(t, true, out["success"])
		data := out["data"].(map[string]any)
		assert.Equal(t, "MTX20250315120000ABC123", data["transaction_id"])
		assert.EqualValues(t, 102, data["total_amount"])
		assert.Equal(t, "PENDING", data["status"])
		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, new(MockCallbackService))

		ctx := setupTestContext("POST", "/api/v1/payments", []byte(`{"amount":`))
		handler.CreatePayment(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		out := decodeBody(t, ctx)
		assert.Equal(t, false, out["success"])
		assert.Contains(t, out["error"], "invalid JSON")
		svc.AssertNotCalled(t, "Initiate", mock.Anything, mock.Anything)
	})

	t.Run("empty body", func(t *testing.T) {
		handler := NewPaymentHandler(new(MockPaymentService), new(MockCallbackService))

		ctx := setupTestContext("POST", "/api/v1/payments", nil)
		handler.CreatePayment(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	})

	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", apperrors.Validationf("amount must be at least 10"), fasthttp.StatusBadRequest, "amount must be at least 10"},
		{"business rule", apperrors.BusinessRule("vehicle 3025 is not active"), fasthttp.StatusUnprocessableEntity, "vehicle 3025 is not active"},
		{"gateway", apperrors.Gateway("Invalid Access Token", errors.New("401")), fasthttp.StatusBadGateway, "Invalid Access Token"},
		{"persistence", apperrors.Persistence("failed to save transaction", errors.New("pq: deadlock")), fasthttp.StatusInternalServerError, "failed to save transaction"},
		{"unclassified", errors.New("boom"), fasthttp.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockPaymentService)
			handler := NewPaymentHandler(svc, new(MockCallbackService))
			svc.On("Initiate", mock.Anything, mock.Anything).Return(nil, tc.err)

			ctx := setupTestContext("POST", "/api/v1/payments", []byte(`{"vehicle_code":"3025","phone":"0712345678","amount":100}`))
			handler.CreatePayment(ctx)

			assert.Equal(t, tc.status, ctx.Response.StatusCode())
			out := decodeBody(t, ctx)
			assert.Equal(t, false, out["success"])
			assert.Equal(t, tc.msg, out["error"])
		})
	}
}

func TestPaymentHandler_GetPayment(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, new(MockCallbackService))
		svc.On("GetStatus", mock.Anything, "MTX1").Return(&model.TransactionSummary{
			TransactionID: "MTX1",
			Status:        model.TransactionStatusCompleted,
			ReceiptNumber: "QK12AB34CD",
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/payments/MTX1", nil)
		ctx.SetUserValue("transaction_id", "MTX1")
		handler.GetPayment(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		data := decodeBody(t, ctx)["data"].(map[string]any)
		assert.Equal(t, "COMPLETED", data["status"])
		assert.Equal(t, "QK12AB34CD", data["receipt_number"])
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockPaymentService)
		handler := NewPaymentHandler(svc, new(MockCallbackService))
		svc.On("GetStatus", mock.Anything, "MTX404").Return(nil, apperrors.NotFound("transaction not found"))

		ctx := setupTestContext("GET", "/api/v1/payments/MTX404", nil)
		ctx.SetUserValue("transaction_id", "MTX404")
		handler.GetPayment(ctx)

		assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
		assert.Equal(t, "transaction not found", decodeBody(t, ctx)["error"])
	})
}

func TestPaymentHandler_Callback(t *testing.T) {
	t.Run("acknowledged", func(t *testing.T) {
		cb := new(MockCallbackService)
		handler := NewPaymentHandler(new(MockPaymentService), cb)
		payload := []byte(`{"Body":{"stkCallback":{"CheckoutRequestID":"ws_CO_1","ResultCode":0}}}`)
		cb.On("HandleCallback", mock.Anything, payload).Return(&model.CallbackAck{ResultCode: 0, ResultDesc: "Accepted"}, nil)

		ctx := setupTestContext("POST", "/api/v1/payments/callback", payload)
		handler.Callback(ctx)

		assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
		out := decodeBody(t, ctx)
		assert.EqualValues(t, 0, out["ResultCode"])
		assert.Equal(t, "Accepted", out["ResultDesc"])
		assert.Equal(t, true, out["success"])
		cb.AssertExpectations(t)
	})

	t.Run("malformed payload", func(t *testing.T) {
		cb := new(MockCallbackService)
		handler := NewPaymentHandler(new(MockPaymentService), cb)
		cb.On("HandleCallback", mock.Anything, mock.Anything).Return(nil, apperrors.Validationf("malformed callback payload"))

		ctx := setupTestContext("POST", "/api/v1/payments/callback", []byte(`not json`))
		handler.Callback(ctx)

		assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
		assert.Equal(t, "malformed callback payload", decodeBody(t, ctx)["error"])
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, fasthttp.StatusNotFound, statusFor(apperrors.KindUnknownTransaction))
	assert.Equal(t, fasthttp.StatusInternalServerError, statusFor(apperrors.KindUnknown))
	assert.Equal(t, fasthttp.StatusInternalServerError, statusFor(apperrors.KindPersistence))
}
