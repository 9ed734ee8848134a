package handlers

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nimasrn/matatu-pay/internal/apperrors"
	xhttp "github.com/nimasrn/matatu-pay/pkg/http"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/valyala/fasthttp"
)

type successResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return fmt.Errorf("request body is empty")
	}
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeData(ctx *xhttp.RequestCtx, status int, data any) {
	writeJSON(ctx, status, successResponse{Success: true, Data: data})
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	xhttp.JSONError(ctx, msg, status)
}

// writeAppError maps an error kind to its status. Causes of internal failures are logged
// and never returned to the client.
func writeAppError(ctx *xhttp.RequestCtx, err error) {
	status := statusFor(apperrors.KindOf(err))
	msg := err.Error()
	if status == fasthttp.StatusInternalServerError {
		logger.Error("Request failed", "path", string(ctx.Path()), "error", err)
		if apperrors.KindOf(err) == apperrors.KindUnknown {
			msg = "internal server error"
		}
	}
	writeError(ctx, status, msg)
}

func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return fasthttp.StatusBadRequest
	case apperrors.KindBusinessRule:
		return fasthttp.StatusUnprocessableEntity
	case apperrors.KindGateway:
		return fasthttp.StatusBadGateway
	case apperrors.KindNotFound, apperrors.KindUnknownTransaction:
		return fasthttp.StatusNotFound
	default:
		return fasthttp.StatusInternalServerError
	}
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt(ctx *xhttp.RequestCtx, key string, def int) (int, error) {
	v := query(ctx, key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func pathParam(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
