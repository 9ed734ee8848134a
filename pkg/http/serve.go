package xhttp

import (
	"reflect"
	"runtime"
	"slices"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/valyala/fasthttp"
)

type Server = fasthttp.Server

type ServerOption struct {
	// idle keep-alive connections are closed after this long
	IdleTimeout time.Duration

	MaxRequestBodySize int

	// ReadBufferSize also caps the request header size.
	ReadBufferSize  int
	WriteBufferSize int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration

	Concurrency   int
	MaxConnsPerIP int

	Name   string
	Logger logger.Logger
}

// DefaultServerOption fits small JSON requests; STK callbacks are well under the body limit.
var DefaultServerOption = ServerOption{
	IdleTimeout:        10 * time.Second,
	MaxRequestBodySize: 1 * 1024 * 1024,
	ReadBufferSize:     4 * 1024,
	WriteBufferSize:    4 * 1024,
	ReadTimeout:        5 * time.Second,
	WriteTimeout:       35 * time.Second,
	Concurrency:        30_000,
	MaxConnsPerIP:      10_000,
	Name:               "matatu-pay",
}

// WithOverrides returns a copy of o where every positive argument replaces the default.
func (o ServerOption) WithOverrides(readTimeout, writeTimeout time.Duration, readBuffer, writeBuffer int) ServerOption {
	if readTimeout > 0 {
		o.ReadTimeout = readTimeout
	}
	if writeTimeout > 0 {
		o.WriteTimeout = writeTimeout
	}
	if readBuffer > 0 {
		o.ReadBufferSize = readBuffer
	}
	if writeBuffer > 0 {
		o.WriteBufferSize = writeBuffer
	}
	return o
}

type Engine struct {
	*Router
	*Server
	option ServerOption
	middle []MiddlewareFunc
}

func newServer(options ServerOption) *fasthttp.Server {
	lg := options.Logger
	if lg == nil {
		lg = logger.GetLogger()
	}
	return &fasthttp.Server{
		Handler:                      NotFoundHandler,
		ErrorHandler:                 func(ctx *RequestCtx, err error) { JSONError(ctx, err.Error(), fasthttp.StatusBadRequest) },
		Name:                         options.Name,
		Concurrency:                  options.Concurrency,
		ReadBufferSize:               options.ReadBufferSize,
		WriteBufferSize:              options.WriteBufferSize,
		ReadTimeout:                  options.ReadTimeout,
		WriteTimeout:                 options.WriteTimeout,
		IdleTimeout:                  options.IdleTimeout,
		MaxConnsPerIP:                options.MaxConnsPerIP,
		MaxRequestBodySize:           options.MaxRequestBodySize,
		TCPKeepalive:                 true,
		DisablePreParseMultipartForm: true,
		NoDefaultServerHeader:        true,
		NoDefaultContentType:         true,
		CloseOnShutdown:              true,
		Logger:                       lg,
	}
}

func NewServer(options ServerOption) *Engine {
	return &Engine{
		Server: newServer(options),
		Router: CreateDefaultRouter(),
		option: options,
	}
}

func (e *Engine) ListenAndServe(addr string) error {
	e.DoRouting()
	e.Server.Logger.Printf("[xhttp] server is listening on %s", addr)
	return e.Server.ListenAndServe(addr)
}

// DoRouting installs the router behind the middleware chain. Middlewares run in the
// order they were added.
func (e *Engine) DoRouting() {
	for method, routes := range e.Router.List() {
		for _, r := range routes {
			e.Server.Logger.Printf("[xhttp] method: %s, path: %s", method, r)
		}
	}

	handler := e.Router.Handler
	chain := slices.Clone(e.middle)
	slices.Reverse(chain)
	for _, m := range chain {
		handler = m(handler)
		e.Server.Logger.Printf("[xhttp] middleware registered - %s", runtime.FuncForPC(reflect.ValueOf(m).Pointer()).Name())
	}
	e.Server.Handler = handler
}

// Use appends middleware to the chain run for every request.
func (e *Engine) Use(middleware MiddlewareFunc) {
	e.middle = append(e.middle, middleware)
}

// Shutdown stops accepting connections and waits for active requests to finish.
func (e *Engine) Shutdown() {
	e.Server.Logger.Printf("[xhttp] server is shutting down")
	if err := e.Server.Shutdown(); err != nil {
		e.Server.Logger.Printf("[xhttp] error while shutting down: %v", err)
	}
}
