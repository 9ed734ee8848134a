package handlers

import (
	"context"

	"github.com/fasthttp/router"
	"github.com/nimasrn/matatu-pay/internal/model"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/valyala/fasthttp"
)

type VehicleStatsService interface {
	VehicleDaily(ctx context.Context, vehicleCode, date string) (*model.VehicleStats, error)
}

type VehicleHandler struct {
	payments PaymentService
	stats    VehicleStatsService
}

func RegisterVehicleRoutes(e *router.Group, h *VehicleHandler) {
	e.GET("/vehicles/{code}/transactions", h.ListTransactions)
	e.GET("/vehicles/{code}/stats", h.GetStats)
}

func NewVehicleHandler(payments PaymentService, stats VehicleStatsService) *VehicleHandler {
	return &VehicleHandler{
		payments: payments,
		stats:    stats,
	}
}

type historyResponse struct {
	Items []*model.TransactionSummary `json:"items"`
	Count int                         `json:"count"`
}

func (h *VehicleHandler) ListTransactions(ctx *xhttp.RequestCtx) {
	limit, err := queryInt(ctx, "limit", 0)
	if err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "limit must be an integer")
		return
	}

	items, err := h.payments.History(ctx, pathParam(ctx, "code"), limit)
	if err != nil {
		writeAppError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusOK, historyResponse{Items: items, Count: len(items)})
}

func (h *VehicleHandler) GetStats(ctx *xhttp.RequestCtx) {
	stats, err := h.stats.VehicleDaily(ctx, pathParam(ctx, "code"), query(ctx, "date"))
	if err != nil {
		writeAppError(ctx, err)
		return
	}
	writeData(ctx, fasthttp.StatusOK, stats)
}
