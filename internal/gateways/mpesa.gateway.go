package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/nimasrn/matatu-pay/pkg/prom"
	"github.com/valyala/fasthttp"
)

const (
	pathOAuth    = "/oauth/v1/generate?grant_type=client_credentials"
	pathSTKPush  = "/mpesa/stkpush/v1/processrequest"
	pathSTKQuery = "/mpesa/stkpushquery/v1/query"

	OpToken    = "token"
	OpInitiate = "initiate"
	OpQuery    = "query"

	DefaultTransactionType = "CustomerPayBillOnline"

	maxReferenceLen   = 12
	maxDescriptionLen = 13
)

var nairobi = loadNairobi()

func loadNairobi() *time.Location {
	loc, err := time.LoadLocation("Africa/Nairobi")
	if err != nil {
		return time.FixedZone("EAT", 3*60*60)
	}
	return loc
}

type Config struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	CallbackURL     string
	TransactionType string

	Timeout     time.Duration
	TokenMargin time.Duration

	MaxRetries      int
	RetryDelay      time.Duration
	MaxConns        int
	ReadBufferSize  int
	WriteBufferSize int

	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

type InitiateRequest struct {
	Phone       string
	Amount      int64
	Reference   string
	Description string
}

type InitiateResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type QueryResponse struct {
	CheckoutRequestID string
	ResultCode        int
	ResultDesc        string
}

type stkPushPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryPayload struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResult struct {
	ResponseCode      string     `json:"ResponseCode"`
	CheckoutRequestID string     `json:"CheckoutRequestID"`
	ResultCode        resultCode `json:"ResultCode"`
	ResultDesc        string     `json:"ResultDesc"`
}

type tokenResult struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   flexInt `json:"expires_in"`
}

type providerError struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// flexInt accepts both 0 and "0"; the provider is not consistent between endpoints.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 {
		return errors.New("empty numeric value")
	}
	v, err := strconv.Atoi(string(b))
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

// resultCode keeps a missing or empty code apart from a real 0, which means paid.
type resultCode struct {
	value int
	set   bool
}

func (r *resultCode) UnmarshalJSON(b []byte) error {
	if string(b) == "null" || len(bytes.Trim(b, `"`)) == 0 {
		*r = resultCode{}
		return nil
	}
	var f flexInt
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*r = resultCode{value: int(f), set: true}
	return nil
}

type Client struct {
	config  *Config
	http    *fasthttp.Client
	tokens  *TokenCache
	metrics *ProviderMetrics

	state            atomic.Int32
	circuitOpenUntil atomic.Int64

	now func() time.Time
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("%w: config is required", ErrInvalidConfig)
	}
	if config.BaseURL == "" || config.ShortCode == "" || config.PassKey == "" {
		return nil, fmt.Errorf("%w: base url, shortcode and passkey are required", ErrInvalidConfig)
	}
	if config.TransactionType == "" {
		config.TransactionType = DefaultTransactionType
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.TokenMargin <= 0 {
		config.TokenMargin = 60 * time.Second
	}
	if config.CircuitBreakerThreshold <= 0 {
		config.CircuitBreakerThreshold = 5
	}
	if config.CircuitBreakerTimeout <= 0 {
		config.CircuitBreakerTimeout = 30 * time.Second
	}

	client := &Client{
		config: config,
		http: &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
			ReadBufferSize:      config.ReadBufferSize,
			WriteBufferSize:     config.WriteBufferSize,
		},
		metrics: NewProviderMetrics(),
		now:     time.Now,
	}
	client.tokens = NewTokenCache(config.TokenMargin, client.fetchToken)
	client.state.Store(int32(StateHealthy))

	logger.Info("Payment gateway client initialized", "base_url", config.BaseURL, "shortcode", config.ShortCode, "timeout", config.Timeout)

	return client, nil
}

// Timestamp formats t the way the provider expects, in East Africa time.
func Timestamp(t time.Time) string {
	return t.In(nairobi).Format("20060102150405")
}

func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// Initiate sends an STK push prompt to the payer's phone. It is never retried: a lost
// response may still have produced a prompt.
func (c *Client) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResponse, error) {
	ts := Timestamp(c.now())
	payload := stkPushPayload{
		BusinessShortCode: c.config.ShortCode,
		Password:          Password(c.config.ShortCode, c.config.PassKey, ts),
		Timestamp:         ts,
		TransactionType:   c.config.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.config.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.config.CallbackURL,
		AccountReference:  truncate(req.Reference, maxReferenceLen),
		TransactionDesc:   truncate(req.Description, maxDescriptionLen),
	}

	body, err := c.call(ctx, OpInitiate, pathSTKPush, payload)
	if err != nil {
		return nil, err
	}

	var resp InitiateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &GatewayError{Op: OpInitiate, Message: "malformed provider response", Err: err, Indeterminate: true}
	}
	if resp.ResponseCode != "0" {
		msg := resp.ResponseDescription
		if msg == "" {
			msg = "payment request was rejected"
		}
		return nil, &GatewayError{Op: OpInitiate, StatusCode: fasthttp.StatusOK, Code: resp.ResponseCode, Message: msg}
	}
	if resp.CheckoutRequestID == "" {
		return nil, &GatewayError{Op: OpInitiate, Message: "provider response has no checkout id", Indeterminate: true}
	}

	logger.Info("STK push accepted", "checkout_id", resp.CheckoutRequestID, "merchant_request_id", resp.MerchantRequestID, "reference", payload.AccountReference)

	return &resp, nil
}

// Query asks the provider for the outcome of a prompt. A prompt the payer has not
// answered yet comes back as a GatewayError.
func (c *Client) Query(ctx context.Context, checkoutID string) (*QueryResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, &GatewayError{Op: OpQuery, Message: "query cancelled", Err: ctx.Err()}
			case <-time.After(c.config.RetryDelay):
			}
		}

		resp, err := c.query(ctx, checkoutID)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// a structured provider answer will not change on retry
		if ge, ok := err.(*GatewayError); ok && ge.responded() {
			return nil, err
		}
		logger.Warn("Status query failed", "error", err, "checkout_id", checkoutID, "attempt", attempt+1)
	}
	return nil, lastErr
}

func (c *Client) query(ctx context.Context, checkoutID string) (*QueryResponse, error) {
	ts := Timestamp(c.now())
	payload := stkQueryPayload{
		BusinessShortCode: c.config.ShortCode,
		Password:          Password(c.config.ShortCode, c.config.PassKey, ts),
		Timestamp:         ts,
		CheckoutRequestID: checkoutID,
	}

	body, err := c.call(ctx, OpQuery, pathSTKQuery, payload)
	if err != nil {
		return nil, err
	}

	var res stkQueryResult
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &GatewayError{Op: OpQuery, Message: "malformed provider response", Err: err}
	}
	if res.ResponseCode != "" && res.ResponseCode != "0" {
		return nil, &GatewayError{Op: OpQuery, StatusCode: fasthttp.StatusOK, Code: res.ResponseCode, Message: "status query was rejected"}
	}

	if !res.ResultCode.set {
		return nil, &GatewayError{Op: OpQuery, StatusCode: fasthttp.StatusOK, Message: "status query returned no result"}
	}

	code := res.ResultCode.value
	return &QueryResponse{
		CheckoutRequestID: checkoutID,
		ResultCode:        code,
		ResultDesc:        DescribeResultCode(code),
	}, nil
}

func (c *Client) Stats() ProviderStats {
	return ProviderStats{
		State:            stateString(c.GetState()),
		TotalRequests:    c.metrics.TotalRequests.Load(),
		SuccessfulReqs:   c.metrics.SuccessfulReqs.Load(),
		FailedReqs:       c.metrics.FailedReqs.Load(),
		SuccessRate:      c.metrics.SuccessRate(),
		AvgLatencyMs:     c.metrics.AvgLatencyMs(),
		P95LatencyMs:     c.metrics.P95LatencyMs(),
		LastLatencyMs:    c.metrics.LastLatencyMs.Load(),
		ConsecutiveFails: c.metrics.ConsecutiveFails.Load(),
	}
}

func (c *Client) GetState() ProviderState {
	return ProviderState(c.state.Load())
}

func (c *Client) SetState(state ProviderState) {
	c.state.Store(int32(state))
	prom.SetGatewayState(stateString(state), stateString(StateHealthy), stateString(StateDegraded), stateString(StateCircuitOpen))
}

// IsAvailable reports whether requests may be sent. An open circuit half-opens into
// DEGRADED once its timeout has passed.
func (c *Client) IsAvailable() bool {
	if c.GetState() != StateCircuitOpen {
		return true
	}
	if c.now().Unix() > c.circuitOpenUntil.Load() {
		c.SetState(StateDegraded)
		return true
	}
	return false
}

// call marshals payload, sends it with a bearer token and retries once with a fresh
// token when the provider rejects the cached one.
func (c *Client) call(ctx context.Context, op, path string, payload any) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, &GatewayError{Op: op, Message: "failed to encode request", Err: err}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	body, err := c.doRequest(ctx, op, fasthttp.MethodPost, path, reqBody, "Bearer "+token)
	if ge, ok := err.(*GatewayError); ok && ge.StatusCode == fasthttp.StatusUnauthorized {
		c.tokens.Invalidate()
		if token, err = c.tokens.Token(ctx); err != nil {
			return nil, err
		}
		body, err = c.doRequest(ctx, op, fasthttp.MethodPost, path, reqBody, "Bearer "+token)
	}
	return body, err
}

func (c *Client) fetchToken(ctx context.Context) (string, time.Duration, error) {
	creds := base64.StdEncoding.EncodeToString([]byte(c.config.ConsumerKey + ":" + c.config.ConsumerSecret))
	body, err := c.doRequest(ctx, OpToken, fasthttp.MethodGet, pathOAuth, nil, "Basic "+creds)
	if err != nil {
		return "", 0, err
	}

	var res tokenResult
	if err := json.Unmarshal(body, &res); err != nil {
		return "", 0, &GatewayError{Op: OpToken, Message: "malformed token response", Err: err}
	}
	if res.AccessToken == "" {
		return "", 0, &GatewayError{Op: OpToken, Message: "provider returned an empty token"}
	}

	logger.Debug("Gateway token refreshed", "expires_in", int(res.ExpiresIn))

	return res.AccessToken, time.Duration(res.ExpiresIn) * time.Second, nil
}

// doRequest performs HTTP request with timeout
func (c *Client) doRequest(ctx context.Context, op, method, path string, body []byte, authorization string) ([]byte, error) {
	if !c.IsAvailable() {
		return nil, &GatewayError{Op: op, Message: ErrCircuitOpen.Error(), Err: ErrCircuitOpen}
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.config.BaseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set(fasthttp.HeaderAuthorization, authorization)
	if body != nil {
		req.Header.SetContentType("application/json")
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	start := time.Now()
	err := c.http.DoDeadline(req, resp, deadline)
	latency := time.Since(start)

	if err != nil {
		c.recordFailure(op, latency)
		return nil, &GatewayError{Op: op, Message: "payment provider is unreachable", Err: err, Indeterminate: op == OpInitiate && !notSent(err)}
	}

	statusCode := resp.StatusCode()
	if statusCode < 200 || statusCode > 299 {
		ge := &GatewayError{Op: op, StatusCode: statusCode, Message: fmt.Sprintf("unexpected status code %d", statusCode)}

		var pe providerError
		if json.Unmarshal(resp.Body(), &pe) == nil && pe.ErrorCode != "" {
			ge.Code = pe.ErrorCode
			ge.Message = pe.ErrorMessage
		}

		// the provider answered; only transport and 5xx without a body count against it
		if ge.responded() || statusCode < 500 {
			c.recordSuccess(op, latency, "rejected")
		} else {
			c.recordFailure(op, latency)
		}
		return nil, ge
	}

	c.recordSuccess(op, latency, "ok")

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func (c *Client) recordSuccess(op string, latency time.Duration, outcome string) {
	c.metrics.RecordSuccess(latency.Milliseconds())
	if c.GetState() != StateHealthy {
		c.SetState(StateHealthy)
		logger.Info("Payment provider recovered")
	}
	prom.AddGatewayRequestDuration(latency.Seconds(), op, outcome)
}

func (c *Client) recordFailure(op string, latency time.Duration) {
	c.metrics.RecordFailure()
	c.checkCircuitBreaker()
	prom.AddGatewayRequestDuration(latency.Seconds(), op, "error")
}

func (c *Client) checkCircuitBreaker() {
	consecutiveFails := c.metrics.ConsecutiveFails.Load()
	if consecutiveFails >= int32(c.config.CircuitBreakerThreshold) {
		c.SetState(StateCircuitOpen)
		openUntil := c.now().Add(c.config.CircuitBreakerTimeout).Unix()
		c.circuitOpenUntil.Store(openUntil)

		logger.Warn("Circuit breaker opened", "consecutive_fails", consecutiveFails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
