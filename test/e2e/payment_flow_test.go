package e2e

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nimasrn/matatu-pay/internal/handlers"
	"github.com/nimasrn/matatu-pay/internal/model"
	"github.com/nimasrn/matatu-pay/internal/processor"
	"github.com/nimasrn/matatu-pay/internal/queue"
	"github.com/nimasrn/matatu-pay/internal/repository"
	"github.com/nimasrn/matatu-pay/internal/services"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/nimasrn/matatu-pay/test/fixtures"
	"github.com/nimasrn/matatu-pay/test/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

const settledStream = "payments:settled"

type TestEnvironment struct {
	Router    *xhttp.Router
	Gateway   *helpers.FakeGateway
	Processor *processor.ProcessorService
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db := helpers.SetupTestDB(t)
	helpers.SeedFleet(t, db)
	_, adapter := helpers.SetupTestRedis(t)

	q, err := queue.NewQueue(adapter, queue.QueueConfig{Name: settledStream, ConsumerGroup: "stats"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Stop(time.Second) })

	gw := helpers.NewFakeGateway()
	transactions := repository.NewTransactionRepository(db)
	idempotency := processor.NewIdempotencyService(adapter, processor.DefaultIdempotencyConfig())

	reconciler := services.NewReconciliationService(transactions, repository.NewGatewayNotificationRepository(db), gw, idempotency, q)
	payments := services.NewPaymentService(
		transactions,
		repository.NewVehicleRepository(db),
		repository.NewAccountRepository(db),
		gw,
		services.NewSettingsService(repository.NewSettingRepository(db)),
		reconciler,
	)

	router := xhttp.CreateDefaultRouter()
	g := router.Group("/api/v1")
	handlers.RegisterPaymentRoutes(g, handlers.NewPaymentHandler(payments, reconciler))
	handlers.RegisterVehicleRoutes(g, handlers.NewVehicleHandler(payments, services.NewStatsService(adapter)))
	handlers.RegisterHealthRoutes(g, handlers.NewHealthHandler(services.NewHealthService(map[string]services.Pinger{"postgres": db, "redis": adapter})))

	proc, err := processor.NewProcessorService(adapter, processor.ServiceConfig{
		Queue: queue.QueueConfig{
			Name:              settledStream,
			ConsumerGroup:     "stats",
			ConsumerName:      "stats-e2e",
			MaxRetries:        3,
			VisibilityTimeout: 300 * time.Millisecond,
			PollInterval:      20 * time.Millisecond,
			BatchSize:         10,
		},
		Consumers: 1,
		Workers:   2,
	})
	require.NoError(t, err)
	proc.RegisterProcessor(processor.NewStatsProcessor(adapter, idempotency, time.Hour))
	require.NoError(t, proc.Start())
	t.Cleanup(proc.Stop)

	return &TestEnvironment{Router: router, Gateway: gw, Processor: proc}
}

func (e *TestEnvironment) do(t *testing.T, method, uri string, body []byte) (int, map[string]any) {
	t.Helper()
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != nil {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBody(body)
	}

	e.Router.Handler(ctx)

	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out), string(ctx.Response.Body()))
	return ctx.Response.StatusCode(), out
}

func (e *TestEnvironment) pay(t *testing.T, amount int64) map[string]any {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"vehicle_code": "3025", "phone": "0712345678", "amount": amount})
	status, out := e.do(t, "POST", "/api/v1/payments", body)
	require.Equal(t, fasthttp.StatusCreated, status, out)
	return out["data"].(map[string]any)
}

func (e *TestEnvironment) stats(t *testing.T) map[string]any {
	t.Helper()
	status, out := e.do(t, "GET", "/api/v1/vehicles/3025/stats?date="+model.StatsDate(time.Now()), nil)
	require.Equal(t, fasthttp.StatusOK, status)
	return out["data"].(map[string]any)
}

func TestPaymentFlow_CallbackCompletesPayment(t *testing.T) {
	env := setupE2EEnvironment(t)

	payment := env.pay(t, 100)
	assert.EqualValues(t, 100, payment["fare_amount"])
	assert.EqualValues(t, 2, payment["service_charge"])
	assert.EqualValues(t, 102, payment["total_amount"])
	assert.Equal(t, "PENDING", payment["status"])
	assert.Equal(t, "254712345678", payment["phone"])

	require.Len(t, env.Gateway.Initiated, 1)
	assert.Equal(t, int64(102), env.Gateway.Initiated[0].Amount)
	assert.Equal(t, "254712345678", env.Gateway.Initiated[0].Phone)

	checkoutID := payment["checkout_request_id"].(string)
	callback := fixtures.SuccessCallback(checkoutID, 102)

	status, ack := env.do(t, "POST", "/api/v1/payments/callback", callback)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 0, ack["ResultCode"])
	assert.Equal(t, "Accepted", ack["ResultDesc"])

	// the provider retries callbacks; a repeat is acknowledged and changes nothing
	status, _ = env.do(t, "POST", "/api/v1/payments/callback", callback)
	assert.Equal(t, fasthttp.StatusOK, status)

	status, out := env.do(t, "GET", "/api/v1/payments/"+payment["transaction_id"].(string), nil)
	require.Equal(t, fasthttp.StatusOK, status)
	settled := out["data"].(map[string]any)
	assert.Equal(t, "COMPLETED", settled["status"])
	assert.Equal(t, fixtures.Receipt, settled["receipt_number"])
	assert.NotEmpty(t, settled["completed_at"])

	require.Eventually(t, func() bool {
		s := env.stats(t)
		return s["completed"] == float64(1) && s["fare_total"] == float64(100)
	}, 3*time.Second, 20*time.Millisecond)

	s := env.stats(t)
	assert.EqualValues(t, 2, s["charge_total"])
	assert.EqualValues(t, 2, s["owner_total"])
	assert.EqualValues(t, 0, s["platform_total"])

	status, out = env.do(t, "GET", "/api/v1/vehicles/3025/transactions", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 1, out["data"].(map[string]any)["count"])
}

func TestPaymentFlow_CancelledPrompt(t *testing.T) {
	env := setupE2EEnvironment(t)

	payment := env.pay(t, 1000)
	assert.EqualValues(t, 12, payment["service_charge"])
	checkoutID := payment["checkout_request_id"].(string)

	status, _ := env.do(t, "POST", "/api/v1/payments/callback", fixtures.FailedCallback(checkoutID, 1032, "Request cancelled by user"))
	require.Equal(t, fasthttp.StatusOK, status)

	// a late success for the same prompt cannot overturn the first outcome
	status, _ = env.do(t, "POST", "/api/v1/payments/callback", fixtures.SuccessCallback(checkoutID, 1012))
	require.Equal(t, fasthttp.StatusOK, status)

	_, out := env.do(t, "GET", "/api/v1/payments/"+payment["transaction_id"].(string), nil)
	txn := out["data"].(map[string]any)
	assert.Equal(t, "FAILED", txn["status"])
	assert.Equal(t, "Request cancelled by user.", txn["result_desc"])
	assert.Nil(t, txn["receipt_number"])

	require.Eventually(t, func() bool {
		return env.stats(t)["failed"] == float64(1)
	}, 3*time.Second, 20*time.Millisecond)
	assert.EqualValues(t, 0, env.stats(t)["completed"])
}

func TestPaymentFlow_PollSettlesWithoutCallback(t *testing.T) {
	env := setupE2EEnvironment(t)

	payment := env.pay(t, 100)
	id := payment["transaction_id"].(string)
	checkoutID := payment["checkout_request_id"].(string)

	_, out := env.do(t, "GET", "/api/v1/payments/"+id, nil)
	assert.Equal(t, "PENDING", out["data"].(map[string]any)["status"])

	env.Gateway.SetResult(checkoutID, 0, "The service request is processed successfully.")

	_, out = env.do(t, "GET", "/api/v1/payments/"+id, nil)
	assert.Equal(t, "COMPLETED", out["data"].(map[string]any)["status"])

	// a callback arriving after the poll is a no-op
	status, _ := env.do(t, "POST", "/api/v1/payments/callback", fixtures.SuccessCallback(checkoutID, 102))
	assert.Equal(t, fasthttp.StatusOK, status)

	require.Eventually(t, func() bool {
		return env.stats(t)["completed"] == float64(1)
	}, 3*time.Second, 20*time.Millisecond)
}

func TestPaymentFlow_Rejections(t *testing.T) {
	env := setupE2EEnvironment(t)

	cases := []struct {
		name   string
		body   string
		status int
	}{
		{"bad phone", `{"vehicle_code":"3025","phone":"0812345678","amount":100}`, fasthttp.StatusBadRequest},
		{"below minimum", `{"vehicle_code":"3025","phone":"0712345678","amount":5}`, fasthttp.StatusBadRequest},
		{"unknown vehicle", `{"vehicle_code":"9999","phone":"0712345678","amount":100}`, fasthttp.StatusUnprocessableEntity},
		{"not json", `vehicle=3025`, fasthttp.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, out := env.do(t, "POST", "/api/v1/payments", []byte(tc.body))
			assert.Equal(t, tc.status, status)
			assert.Equal(t, false, out["success"])
			assert.NotEmpty(t, out["error"])
		})
	}
	for _, phone := range fixtures.InvalidPhones {
		req := fixtures.PaymentRequest(100)
		req.Phone = phone
		body, _ := json.Marshal(req)
		status, _ := env.do(t, "POST", "/api/v1/payments", body)
		assert.Equal(t, fasthttp.StatusBadRequest, status, phone)
	}
	assert.Empty(t, env.Gateway.Initiated)

	status, _ := env.do(t, "GET", "/api/v1/payments/MTX404", nil)
	assert.Equal(t, fasthttp.StatusNotFound, status)

	status, out := env.do(t, "POST", "/api/v1/payments/callback", []byte(`{"Body":{}}`))
	assert.Equal(t, fasthttp.StatusBadRequest, status)
	assert.Equal(t, false, out["success"])

	status, out = env.do(t, "GET", "/api/v1/health", nil)
	assert.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "up", out["status"].(map[string]any)["postgres"])
}

func TestPaymentFlow_LocalPhoneFormatsAreNormalized(t *testing.T) {
	env := setupE2EEnvironment(t)

	for input, want := range fixtures.ValidPhones {
		req := fixtures.PaymentRequest(50)
		req.Phone = input
		body, _ := json.Marshal(req)

		status, out := env.do(t, "POST", "/api/v1/payments", body)
		require.Equal(t, fasthttp.StatusCreated, status, out)
		assert.Equal(t, want, out["data"].(map[string]any)["phone"], input)
	}
	assert.Len(t, env.Gateway.Initiated, len(fixtures.ValidPhones))
}
