package xhttp

import (
	"github.com/fasthttp/router"
)

type Router = router.Router

func NewRouter() *Router {
	return router.New()
}

// CreateDefaultRouter returns a router that answers unknown routes and methods with the
// JSON error envelope.
func CreateDefaultRouter() *Router {
	r := NewRouter()
	r.RedirectFixedPath = true
	r.RedirectTrailingSlash = true
	r.SaveMatchedRoutePath = true
	r.NotFound = NotFoundHandler
	r.MethodNotAllowed = MethodNotAllowedHandler
	r.HandleOPTIONS = false
	r.HandleMethodNotAllowed = true
	return r
}

func NotFoundHandler(ctx *RequestCtx) {
	JSONError(ctx, StatusText(StatusNotFound), StatusNotFound)
}

func MethodNotAllowedHandler(ctx *RequestCtx) {
	JSONError(ctx, StatusText(StatusMethodNotAllowed), StatusMethodNotAllowed)
}
