package gateway

import (
	"errors"
	"fmt"
	"net"

	"github.com/valyala/fasthttp"
)

var (
	ErrCircuitOpen   = errors.New("payment provider temporarily unavailable")
	ErrInvalidConfig = errors.New("invalid gateway config")
)

// GatewayError describes any failed exchange with the provider. Message is safe to show
// to payers; Err keeps the transport cause when there is one. Indeterminate is set when
// the request may have reached the provider, so a prompt may still be on the payer's phone.
type GatewayError struct {
	Op            string
	StatusCode    int
	Code          string
	Message       string
	Err           error
	Indeterminate bool
}

func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// responded reports whether the provider answered with a structured error body,
// as opposed to the exchange failing in transport.
func (e *GatewayError) responded() bool {
	return e.Code != ""
}

// notSent reports whether a transport error happened before the request left this host.
func notSent(err error) bool {
	if errors.Is(err, fasthttp.ErrDialTimeout) || errors.Is(err, fasthttp.ErrNoFreeConns) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
