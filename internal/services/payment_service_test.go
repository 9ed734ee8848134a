package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	gateway "github.com/nimasrn/matatu-pay/internal/gateways"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if fn, ok := args.Get(0).(func(context.Context, *model.Transaction) *model.Transaction); ok {
		return fn(ctx, txn), args.Error(1)
	}
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	args := m.Called(ctx, transactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) GetByCheckoutID(ctx context.Context, checkoutID string) (*model.Transaction, error) {
	args := m.Called(ctx, checkoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

func (m *MockTransactionRepository) AttachGatewayIDs(ctx context.Context, transactionID, requestID, checkoutID string) error {
	args := m.Called(ctx, transactionID, requestID, checkoutID)
	return args.Error(0)
}

func (m *MockTransactionRepository) MarkFailed(ctx context.Context, transactionID, reason string) (bool, error) {
	args := m.Called(ctx, transactionID, reason)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) ApplySettlement(ctx context.Context, s model.Settlement) (bool, error) {
	args := m.Called(ctx, s)
	return args.Bool(0), args.Error(1)
}

func (m *MockTransactionRepository) ListByVehicle(ctx context.Context, vehicleCode string, limit int) ([]*model.Transaction, error) {
	args := m.Called(ctx, vehicleCode, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Transaction), args.Error(1)
}

type MockVehicleRepository struct {
	mock.Mock
}

func (m *MockVehicleRepository) GetByCode(ctx context.Context, code string) (*model.Vehicle, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Vehicle), args.Error(1)
}

type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) GetActivePlatform(ctx context.Context) (*model.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) Initiate(ctx context.Context, req gateway.InitiateRequest) (*gateway.InitiateResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.InitiateResponse), args.Error(1)
}

func (m *MockPaymentGateway) Query(ctx context.Context, checkoutID string) (*gateway.QueryResponse, error) {
	args := m.Called(ctx, checkoutID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gateway.QueryResponse), args.Error(1)
}

type staticSettings struct {
	settings model.PaymentSettings
	err      error
}

func (s staticSettings) PaymentSettings(context.Context) (model.PaymentSettings, error) {
	return s.settings, s.err
}

type MockPoller struct {
	mock.Mock
}

func (m *MockPoller) Poll(ctx context.Context, txn *model.Transaction) (*model.Transaction, error) {
	args := m.Called(ctx, txn)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Transaction), args.Error(1)
}

type paymentMocks struct {
	txns     *MockTransactionRepository
	vehicles *MockVehicleRepository
	accounts *MockAccountRepository
	gw       *MockPaymentGateway
	poller   *MockPoller
}

func newPaymentService(settings staticSettings) (*PaymentService, *paymentMocks) {
	m := &paymentMocks{
		txns:     new(MockTransactionRepository),
		vehicles: new(MockVehicleRepository),
		accounts: new(MockAccountRepository),
		gw:       new(MockPaymentGateway),
		poller:   new(MockPoller),
	}
	svc := NewPaymentService(m.txns, m.vehicles, m.accounts, m.gw, settings, m.poller)
	svc.now = func() time.Time { return time.Date(2025, 3, 14, 6, 26, 53, 0, time.UTC) }
	return svc, m
}

func defaultSettings() staticSettings {
	return staticSettings{settings: model.PaymentSettings{PlatformPercent: decimal.NewFromInt(10), MinAmount: 10}}
}

var (
	activeVehicle = &model.Vehicle{ID: 1, Code: "3025", OwnerAccountID: 7, IsActive: true}
	activeOwner   = &model.Account{ID: 7, Type: model.AccountTypeOwner, IsActive: true}
	platform      = &model.Account{ID: 9, Type: model.AccountTypePlatform, IsActive: true}
)

func expectFleet(m *paymentMocks) {
	m.vehicles.On("GetByCode", mock.Anything, "3025").Return(activeVehicle, nil)
	m.accounts.On("GetByID", mock.Anything, int64(7)).Return(activeOwner, nil)
	m.accounts.On("GetActivePlatform", mock.Anything).Return(platform, nil)
}

func TestPaymentService_Initiate(t *testing.T) {
	ctx := context.Background()

	t.Run("records a pending transaction and attaches gateway ids", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		expectFleet(m)

		var stored *model.Transaction
		m.txns.On("Create", ctx, mock.AnythingOfType("*model.Transaction")).
			Run(func(args mock.Arguments) { stored = args.Get(1).(*model.Transaction) }).
			Return(func(_ context.Context, txn *model.Transaction) *model.Transaction { return txn }, nil)
		m.gw.On("Initiate", ctx, gateway.InitiateRequest{
			Phone:       "254712345678",
			Amount:      102,
			Reference:   "3025",
			Description: "Fare 3025",
		}).Return(&gateway.InitiateResponse{
			MerchantRequestID: "mr-1",
			CheckoutRequestID: "ws_CO_1",
			ResponseCode:      "0",
			CustomerMessage:   "Success. Request accepted for processing",
		}, nil)
		m.txns.On("AttachGatewayIDs", ctx, mock.Anything, "mr-1", "ws_CO_1").Return(nil)

		summary, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})

		require.NoError(t, err)
		assert.Equal(t, int64(2), summary.ServiceCharge)
		assert.Equal(t, int64(102), summary.TotalAmount)
		assert.Equal(t, int64(2), summary.OwnerShare)
		assert.Equal(t, int64(0), summary.PlatformShare)
		assert.Equal(t, model.TransactionStatusPending, summary.Status)
		assert.Equal(t, "ws_CO_1", summary.CheckoutRequestID)
		assert.Equal(t, "Success. Request accepted for processing", summary.CustomerMessage)

		require.NotNil(t, stored)
		assert.Equal(t, "254712345678", stored.PayerPhone)
		assert.Equal(t, "10", stored.PlatformPercent)
		assert.Equal(t, int64(7), stored.OwnerAccountID)
		assert.Equal(t, int64(9), stored.PlatformAccountID)
		assert.Regexp(t, `^MTX20250314062653[0-9A-F]{6}$`, stored.TransactionID)
		m.txns.AssertExpectations(t)
		m.gw.AssertExpectations(t)
	})

	t.Run("splits larger charges", func(t *testing.T) {
		svc, m := newPaymentService(staticSettings{settings: model.PaymentSettings{PlatformPercent: decimal.NewFromInt(40), MinAmount: 10}})
		expectFleet(m)

		m.txns.On("Create", ctx, mock.Anything).
			Return(func(_ context.Context, txn *model.Transaction) *model.Transaction { return txn }, nil)
		m.gw.On("Initiate", ctx, mock.Anything).Return(&gateway.InitiateResponse{MerchantRequestID: "mr", CheckoutRequestID: "co"}, nil)
		m.txns.On("AttachGatewayIDs", ctx, mock.Anything, "mr", "co").Return(nil)

		summary, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "254712345678", Amount: 1000})
		require.NoError(t, err)
		assert.Equal(t, int64(12), summary.ServiceCharge)
		assert.Equal(t, int64(7), summary.OwnerShare)
		assert.Equal(t, int64(5), summary.PlatformShare)
		assert.Equal(t, int64(1012), summary.TotalAmount)
	})

	t.Run("rejects invalid input before touching the ledger", func(t *testing.T) {
		cases := []model.PaymentRequest{
			{VehicleCode: "3025", Phone: "999", Amount: 100},
			{VehicleCode: "KBX 123", Phone: "0712345678", Amount: 100},
			{VehicleCode: "3025", Phone: "0712345678", Amount: 5},
			{VehicleCode: "3025", Phone: "0712345678", Amount: 150001},
			{VehicleCode: "3025", Phone: "0712345678"},
		}
		for _, req := range cases {
			svc, m := newPaymentService(defaultSettings())
			_, err := svc.Initiate(ctx, req)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation), "%+v: %v", req, err)
			m.txns.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		}
	})

	t.Run("honours the configured minimum amount", func(t *testing.T) {
		svc, _ := newPaymentService(staticSettings{settings: model.PaymentSettings{PlatformPercent: decimal.NewFromInt(10), MinAmount: 50}})
		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 40})
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})

	t.Run("unknown vehicle", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.vehicles.On("GetByCode", ctx, "3025").Return(nil, repository.ErrVehicleNotFound)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindBusinessRule))
	})

	t.Run("inactive vehicle", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.vehicles.On("GetByCode", ctx, "3025").Return(&model.Vehicle{Code: "3025", OwnerAccountID: 7}, nil)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindBusinessRule))
		assert.Contains(t, err.Error(), "not active")
	})

	t.Run("inactive owner", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.vehicles.On("GetByCode", ctx, "3025").Return(activeVehicle, nil)
		m.accounts.On("GetByID", ctx, int64(7)).Return(&model.Account{ID: 7, Type: model.AccountTypeOwner}, nil)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindBusinessRule))
	})

	t.Run("platform account misconfigured", func(t *testing.T) {
		for _, cause := range []error{repository.ErrPlatformAccountMissing, repository.ErrPlatformAccountTooMany} {
			svc, m := newPaymentService(defaultSettings())
			m.vehicles.On("GetByCode", ctx, "3025").Return(activeVehicle, nil)
			m.accounts.On("GetByID", ctx, int64(7)).Return(activeOwner, nil)
			m.accounts.On("GetActivePlatform", ctx).Return(nil, cause)

			_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
			assert.True(t, apperrors.IsKind(err, apperrors.KindBusinessRule), cause.Error())
		}
	})

	t.Run("settings unavailable", func(t *testing.T) {
		svc, _ := newPaymentService(staticSettings{err: errors.New("connection refused")})
		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindPersistence))
	})

	t.Run("gateway failure fails the transaction", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		expectFleet(m)

		var id string
		m.txns.On("Create", ctx, mock.Anything).
			Run(func(args mock.Arguments) { id = args.Get(1).(*model.Transaction).TransactionID }).
			Return(func(_ context.Context, txn *model.Transaction) *model.Transaction { return txn }, nil)
		m.gw.On("Initiate", ctx, mock.Anything).Return(nil, &gateway.GatewayError{
			Op:         gateway.OpInitiate,
			StatusCode: 400,
			Code:       "400.002.02",
			Message:    "Bad Request - Invalid PhoneNumber",
		})
		m.txns.On("MarkFailed", ctx, mock.Anything, "Bad Request - Invalid PhoneNumber").Return(true, nil)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})

		assert.True(t, apperrors.IsKind(err, apperrors.KindGateway))
		assert.Equal(t, "Bad Request - Invalid PhoneNumber", err.Error())
		m.txns.AssertCalled(t, "MarkFailed", ctx, id, "Bad Request - Invalid PhoneNumber")
		m.txns.AssertNotCalled(t, "AttachGatewayIDs", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unknown outcome is recorded in the reason", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		expectFleet(m)

		m.txns.On("Create", ctx, mock.Anything).
			Return(func(_ context.Context, txn *model.Transaction) *model.Transaction { return txn }, nil)
		m.gw.On("Initiate", ctx, mock.Anything).Return(nil, &gateway.GatewayError{
			Op:            gateway.OpInitiate,
			Message:       "payment provider is unreachable",
			Err:           fasthttp.ErrTimeout,
			Indeterminate: true,
		})
		m.txns.On("MarkFailed", ctx, mock.Anything,
			"payment provider is unreachable; provider outcome unknown, the prompt may have reached the payer").Return(true, nil)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindGateway))
		assert.Equal(t, "payment provider is unreachable", err.Error())
		m.txns.AssertExpectations(t)
	})

	t.Run("transport failure uses a generic reason", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		expectFleet(m)

		m.txns.On("Create", ctx, mock.Anything).
			Return(func(_ context.Context, txn *model.Transaction) *model.Transaction { return txn }, nil)
		m.gw.On("Initiate", ctx, mock.Anything).Return(nil, errors.New("dial tcp: i/o timeout"))
		m.txns.On("MarkFailed", ctx, mock.Anything, "payment provider request failed").Return(true, nil)

		_, err := svc.Initiate(ctx, model.PaymentRequest{VehicleCode: "3025", Phone: "0712345678", Amount: 100})
		assert.True(t, apperrors.IsKind(err, apperrors.KindGateway))
		m.txns.AssertExpectations(t)
	})
}

func TestPaymentService_GetStatus(t *testing.T) {
	ctx := context.Background()
	checkout := "ws_CO_1"

	t.Run("not found", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.txns.On("GetByTransactionID", ctx, "MTX1").Return(nil, repository.ErrTransactionNotFound)

		_, err := svc.GetStatus(ctx, "MTX1")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("pending transaction is polled", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		pending := &model.Transaction{TransactionID: "MTX1", Status: model.TransactionStatusPending, GatewayCheckoutID: &checkout}
		completed := &model.Transaction{TransactionID: "MTX1", Status: model.TransactionStatusCompleted, GatewayCheckoutID: &checkout}
		m.txns.On("GetByTransactionID", ctx, "MTX1").Return(pending, nil)
		m.poller.On("Poll", ctx, pending).Return(completed, nil)

		summary, err := svc.GetStatus(ctx, "MTX1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusCompleted, summary.Status)
	})

	t.Run("terminal transaction is not polled", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.txns.On("GetByTransactionID", ctx, "MTX1").
			Return(&model.Transaction{TransactionID: "MTX1", Status: model.TransactionStatusFailed, GatewayCheckoutID: &checkout}, nil)

		summary, err := svc.GetStatus(ctx, "MTX1")
		require.NoError(t, err)
		assert.Equal(t, model.TransactionStatusFailed, summary.Status)
		m.poller.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
	})

	t.Run("pending without checkout id is not polled", func(t *testing.T) {
		svc, m := newPaymentService(defaultSettings())
		m.txns.On("GetByTransactionID", ctx, "MTX1").
			Return(&model.Transaction{TransactionID: "MTX1", Status: model.TransactionStatusPending}, nil)

		_, err := svc.GetStatus(ctx, "MTX1")
		require.NoError(t, err)
		m.poller.AssertNotCalled(t, "Poll", mock.Anything, mock.Anything)
	})
}

func TestPaymentService_History(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"default", 0, DefaultHistoryLimit},
		{"negative", -5, DefaultHistoryLimit},
		{"explicit", 5, 5},
		{"capped", 1000, MaxHistoryLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, m := newPaymentService(defaultSettings())
			m.txns.On("ListByVehicle", ctx, "3025", tt.want).
				Return([]*model.Transaction{{TransactionID: "MTX2"}, {TransactionID: "MTX1"}}, nil)

			out, err := svc.History(ctx, " 3025 ", tt.limit)
			require.NoError(t, err)
			require.Len(t, out, 2)
			assert.Equal(t, "MTX2", out[0].TransactionID)
		})
	}

	t.Run("invalid vehicle code", func(t *testing.T) {
		svc, _ := newPaymentService(defaultSettings())
		_, err := svc.History(ctx, "ABCDE", 10)
		assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	})
}
