package handlers

import (
	"context"

	"github.com/fasthttp/router"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/valyala/fasthttp"
)

type HealthService interface {
	Check(ctx context.Context) (map[string]string, error)
}

type HealthHandler struct {
	healthService HealthService
}

func RegisterHealthRoutes(e *router.Group, h *HealthHandler) {
	e.GET("/health", h.GetHealth)
}

func NewHealthHandler(healthService HealthService) *HealthHandler {
	return &HealthHandler{
		healthService: healthService,
	}
}

type healthResponse struct {
	Success bool              `json:"success"`
	Status  map[string]string `json:"status"`
	Error   string            `json:"error,omitempty"`
}

func (h *HealthHandler) GetHealth(ctx *xhttp.RequestCtx) {
	status, err := h.healthService.Check(ctx)
	if err != nil {
		writeJSON(ctx, fasthttp.StatusServiceUnavailable, healthResponse{Success: false, Status: status, Error: err.Error()})
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, healthResponse{Success: true, Status: status})
}
