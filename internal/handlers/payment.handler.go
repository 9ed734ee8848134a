package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/matatu-pay/internal/model"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/valyala/fasthttp"
)

type PaymentService interface {
	Initiate(ctx context.Context, req model.PaymentRequest) (*model.TransactionSummary, error)
	GetStatus(ctx context.Context, transactionID string) (*model.TransactionSummary, error)
	History(ctx context.Context, vehicleCode string, limit int) ([]*model.TransactionSummary, error)
}

type CallbackHandlerService interface {
	HandleCallback(ctx context.Context, payload []byte) (*model.CallbackAck, error)
}

type PaymentHandler struct {
	payments  PaymentService
	callbacks CallbackHandlerService
}

func RegisterPaymentRoutes(e *router.Group, h *PaymentHandler) {
	e.POST("/payments", h.CreatePayment)
	e.POST("/payments/callback", h.Callback)
	e.GET("/payments/{transaction_id}", h.GetPayment)
}

func NewPaymentHandler(payments PaymentService, callbacks CallbackHandlerService) *PaymentHandler {
	return &PaymentHandler{
		payments:  payments,
		callbacks: callbacks,
	}
}

type callbackResponse struct {
	Success bool `json:"success"`
	model.CallbackAck
}

func (h *PaymentHandler) CreatePayment(ctx *xhttp.RequestCtx) {
	var req model.PaymentRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	summary, err := h.payments.Initiate(ctx, req)
	if err != nil {
		writeAppError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusCreated, summary)
}

func (h *PaymentHandler) GetPayment(ctx *xhttp.RequestCtx) {
	summary, err := h.payments.GetStatus(ctx, pathParam(ctx, "transaction_id"))
	if err != nil {
		writeAppError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusOK, summary)
}

// Callback answers the gateway with the body it expects; only malformed payloads fail.
func (h *PaymentHandler) Callback(ctx *xhttp.RequestCtx) {
	ack, err := h.callbacks.HandleCallback(ctx, ctx.PostBody())
	if err != nil {
		writeAppError(ctx, err)
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, callbackResponse{Success: true, CallbackAck: *ack})
}
