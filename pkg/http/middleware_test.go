package xhttp

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func newCtx(method, uri string) *RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	return ctx
}

func decodeError(t *testing.T, ctx *RequestCtx) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &out))
	return out
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(func(ctx *RequestCtx) { seen = RequestID(ctx) })

	ctx := newCtx("GET", "/api/v1/payments/MTX1")
	ctx.Request.Header.Set(HeaderRequestID, "req-42")
	h(ctx)
	assert.Equal(t, "req-42", seen)
	assert.Equal(t, "req-42", string(ctx.Response.Header.Peek(HeaderRequestID)))

	ctx = newCtx("GET", "/api/v1/payments/MTX1")
	h(ctx)
	assert.Len(t, seen, 36)
	assert.Equal(t, seen, string(ctx.Response.Header.Peek(HeaderRequestID)))
}

func TestRecoverMiddleware(t *testing.T) {
	h := RecoverMiddleware(func(ctx *RequestCtx) { panic("boom") })

	ctx := newCtx("POST", "/api/v1/payments")
	assert.NotPanics(t, func() { h(ctx) })
	assert.Equal(t, StatusInternalServerError, ctx.Response.StatusCode())
	out := decodeError(t, ctx)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Internal Server Error", out["error"])
}

func TestDefaultRouter_JSONErrors(t *testing.T) {
	r := CreateDefaultRouter()
	r.GET("/api/v1/health", func(ctx *RequestCtx) { ctx.SetStatusCode(fasthttp.StatusOK) })

	ctx := newCtx("GET", "/api/v1/missing")
	r.Handler(ctx)
	assert.Equal(t, StatusNotFound, ctx.Response.StatusCode())
	assert.Equal(t, "Not Found", decodeError(t, ctx)["error"])

	ctx = newCtx("POST", "/api/v1/health")
	r.Handler(ctx)
	assert.Equal(t, StatusMethodNotAllowed, ctx.Response.StatusCode())
	assert.Equal(t, false, decodeError(t, ctx)["success"])
}

func TestEngine_MiddlewareOrder(t *testing.T) {
	e := NewServer(DefaultServerOption)
	var order []string
	mark := func(name string) MiddlewareFunc {
		return func(next RequestHandler) RequestHandler {
			return func(ctx *RequestCtx) {
				order = append(order, name)
				next(ctx)
			}
		}
	}
	e.Use(mark("first"))
	e.Use(mark("second"))
	e.Router.GET("/ping", func(ctx *RequestCtx) { order = append(order, "handler") })

	e.DoRouting()
	e.Server.Handler(newCtx("GET", "/ping"))

	assert.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestServerOption_WithOverrides(t *testing.T) {
	o := DefaultServerOption.WithOverrides(0, 0, 8192, 0)
	assert.Equal(t, DefaultServerOption.ReadTimeout, o.ReadTimeout)
	assert.Equal(t, 8192, o.ReadBufferSize)
	assert.Equal(t, DefaultServerOption.WriteBufferSize, o.WriteBufferSize)
}
