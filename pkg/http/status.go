package xhttp

import (
	"encoding/json"

	"github.com/valyala/fasthttp"
)

const (
	StatusNotFound            = fasthttp.StatusNotFound
	StatusMethodNotAllowed    = fasthttp.StatusMethodNotAllowed
	StatusRequestTimeout      = fasthttp.StatusRequestTimeout
	StatusInternalServerError = fasthttp.StatusInternalServerError
)

// StatusText returns the reason phrase of an HTTP status code.
func StatusText(code int) string {
	return fasthttp.StatusMessage(code)
}

// JSONError writes the failure envelope shared by every endpoint.
func JSONError(ctx *RequestCtx, msg string, status int) {
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	body, _ := json.Marshal(errorBody{Success: false, Error: msg})
	ctx.Response.SetBodyRaw(body)
}

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}
