package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nimasrn/matatu-pay/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp"
)

const (
	errCodeInvalidToken = "404.001.03"
	errCodeProcessing   = "500.001.1001"
	errCodeBadRequest   = "400.002.02"

	tokenTTL = time.Hour
)

// failureCodes are the non zero result codes a prompt may end with.
var failureCodes = map[int]string{
	1:    "The balance is insufficient for the transaction.",
	1032: "Request cancelled by user",
	1037: "DS timeout user cannot be reached",
	2001: "The initiator information is invalid.",
}

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode" binding:"required"`
	Password          string `json:"Password" binding:"required"`
	Timestamp         string `json:"Timestamp" binding:"required"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount" binding:"required,gt=0"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber" binding:"required"`
	CallBackURL       string `json:"CallBackURL" binding:"required"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode" binding:"required"`
	Password          string `json:"Password" binding:"required"`
	Timestamp         string `json:"Timestamp" binding:"required"`
	CheckoutRequestID string `json:"CheckoutRequestID" binding:"required"`
}

// prompt is one STK push as the simulated payer sees it.
type prompt struct {
	MerchantRequestID string
	CheckoutRequestID string
	Amount            int64
	Phone             string
	CallbackURL       string
	Settled           bool
	ResultCode        int
	ResultDesc        string
	Receipt           string
}

// Sandbox simulates the mobile money provider: token issue, STK push with a delayed
// payer decision, callback delivery and status query.
type Sandbox struct {
	mu          sync.Mutex
	tokens      map[string]time.Time
	prompts     map[string]*prompt
	successRate float64
	minDelay    time.Duration
	maxDelay    time.Duration
	skipRate    float64
	rng         *rand.Rand
	client      *fasthttp.Client
}

func NewSandbox(successRate float64, minDelay, maxDelay time.Duration) *Sandbox {
	return &Sandbox{
		tokens:      make(map[string]time.Time),
		prompts:     make(map[string]*prompt),
		successRate: successRate,
		minDelay:    minDelay,
		maxDelay:    maxDelay,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
		client:      &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
	}
}

func providerError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"requestId":    uuid.NewString(),
		"errorCode":    code,
		"errorMessage": msg,
	})
}

// Token issues a bearer token for any non empty basic credentials.
func (s *Sandbox) Token(c *gin.Context) {
	auth := strings.TrimPrefix(c.GetHeader("Authorization"), "Basic ")
	raw, err := base64.StdEncoding.DecodeString(auth)
	if err != nil || !strings.Contains(string(raw), ":") {
		providerError(c, http.StatusBadRequest, errCodeBadRequest, "Invalid Authentication passed")
		return
	}

	token := strings.ReplaceAll(uuid.NewString(), "-", "")
	s.mu.Lock()
	s.tokens[token] = time.Now().Add(tokenTTL)
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"expires_in":   fmt.Sprintf("%d", int(tokenTTL.Seconds())-1),
	})
}

// RequireToken rejects requests whose bearer token was not issued or has expired.
func (s *Sandbox) RequireToken(c *gin.Context) {
	token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	s.mu.Lock()
	exp, ok := s.tokens[token]
	s.mu.Unlock()
	if !ok || time.Now().After(exp) {
		providerError(c, http.StatusUnauthorized, errCodeInvalidToken, "Invalid Access Token")
		c.Abort()
		return
	}
	c.Next()
}

func (s *Sandbox) STKPush(c *gin.Context) {
	var req stkPushRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		providerError(c, http.StatusBadRequest, errCodeBadRequest, "Bad Request - "+err.Error())
		return
	}

	p := &prompt{
		MerchantRequestID: fmt.Sprintf("%d-%d-1", s.intn(90000)+10000, s.intn(900000000)+100000000),
		CheckoutRequestID: "ws_CO_" + time.Now().Format("02012006150405") + fmt.Sprintf("%06d", s.intn(1000000)),
		Amount:            req.Amount,
		Phone:             req.PhoneNumber,
		CallbackURL:       req.CallBackURL,
	}
	s.mu.Lock()
	s.prompts[p.CheckoutRequestID] = p
	s.mu.Unlock()

	log.Info().
		Str("checkout_id", p.CheckoutRequestID).
		Str("phone", logger.MaskPhone(p.Phone)).
		Int64("amount", p.Amount).
		Str("reference", req.AccountReference).
		Msg("STK push accepted")

	go s.decide(p.CheckoutRequestID, s.randomDelay())

	c.JSON(http.StatusOK, gin.H{
		"MerchantRequestID":   p.MerchantRequestID,
		"CheckoutRequestID":   p.CheckoutRequestID,
		"ResponseCode":        "0",
		"ResponseDescription": "Success. Request accepted for processing",
		"CustomerMessage":     "Success. Request accepted for processing",
	})
}

func (s *Sandbox) STKQuery(c *gin.Context) {
	var req stkQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		providerError(c, http.StatusBadRequest, errCodeBadRequest, "Bad Request - "+err.Error())
		return
	}

	s.mu.Lock()
	p, ok := s.prompts[req.CheckoutRequestID]
	var snapshot prompt
	if ok {
		snapshot = *p
	}
	s.mu.Unlock()

	if !ok {
		providerError(c, http.StatusBadRequest, errCodeBadRequest, "Bad Request - Invalid CheckoutRequestID")
		return
	}
	if !snapshot.Settled {
		providerError(c, http.StatusInternalServerError, errCodeProcessing, "The transaction is being processed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ResponseCode":        "0",
		"ResponseDescription": "The service request has been accepted successsfully",
		"MerchantRequestID":   snapshot.MerchantRequestID,
		"CheckoutRequestID":   snapshot.CheckoutRequestID,
		"ResultCode":          fmt.Sprintf("%d", snapshot.ResultCode),
		"ResultDesc":          snapshot.ResultDesc,
	})
}

type sandboxConfig struct {
	SuccessRate *float64 `json:"success_rate"`
	SkipRate    *float64 `json:"callback_skip_rate"`
}

// UpdateConfig changes the payer behaviour at runtime.
func (s *Sandbox) UpdateConfig(c *gin.Context) {
	var cfg sandboxConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	s.mu.Lock()
	if cfg.SuccessRate != nil && *cfg.SuccessRate >= 0 && *cfg.SuccessRate <= 1 {
		s.successRate = *cfg.SuccessRate
	}
	if cfg.SkipRate != nil && *cfg.SkipRate >= 0 && *cfg.SkipRate <= 1 {
		s.skipRate = *cfg.SkipRate
	}
	rate, skip := s.successRate, s.skipRate
	s.mu.Unlock()

	log.Info().Float64("success_rate", rate).Float64("callback_skip_rate", skip).Msg("Sandbox configuration updated")
	c.JSON(http.StatusOK, gin.H{"success_rate": rate, "callback_skip_rate": skip})
}

func (s *Sandbox) Health(c *gin.Context) {
	s.mu.Lock()
	pending := 0
	for _, p := range s.prompts {
		if !p.Settled {
			pending++
		}
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "pending_prompts": pending, "timestamp": time.Now()})
}

// decide settles a prompt after the payer delay and delivers the callback unless it is
// dropped to exercise the polling path.
func (s *Sandbox) decide(checkoutID string, delay time.Duration) {
	time.Sleep(delay)

	s.mu.Lock()
	p, ok := s.prompts[checkoutID]
	if !ok || p.Settled {
		s.mu.Unlock()
		return
	}
	s.settleLocked(p)
	snapshot := *p
	skip := s.rng.Float64() < s.skipRate
	s.mu.Unlock()

	if skip {
		log.Warn().Str("checkout_id", checkoutID).Msg("Dropping callback")
		return
	}
	s.deliver(snapshot)
}

func (s *Sandbox) settleLocked(p *prompt) {
	p.Settled = true
	if s.rng.Float64() < s.successRate {
		p.ResultCode = 0
		p.ResultDesc = "The service request is processed successfully."
		p.Receipt = s.receiptLocked()
		return
	}
	codes := make([]int, 0, len(failureCodes))
	for code := range failureCodes {
		codes = append(codes, code)
	}
	code := codes[s.rng.Intn(len(codes))]
	p.ResultCode = code
	p.ResultDesc = failureCodes[code]
}

func (s *Sandbox) receiptLocked() string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, 10)
	for i := range b {
		b[i] = alphabet[s.rng.Intn(len(alphabet))]
	}
	return string(b)
}

// callbackBody renders the provider's callback document for a settled prompt.
func callbackBody(p prompt, now time.Time) ([]byte, error) {
	result := gin.H{
		"MerchantRequestID": p.MerchantRequestID,
		"CheckoutRequestID": p.CheckoutRequestID,
		"ResultCode":        p.ResultCode,
		"ResultDesc":        p.ResultDesc,
	}
	if p.ResultCode == 0 {
		result["CallbackMetadata"] = gin.H{
			"Item": []gin.H{
				{"Name": "Amount", "Value": p.Amount},
				{"Name": "MpesaReceiptNumber", "Value": p.Receipt},
				{"Name": "TransactionDate", "Value": now.Format("20060102150405")},
				{"Name": "PhoneNumber", "Value": p.Phone},
			},
		}
	}
	return json.Marshal(gin.H{"Body": gin.H{"stkCallback": result}})
}

func (s *Sandbox) deliver(p prompt) {
	body, err := callbackBody(p, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode callback")
		return
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(p.CallbackURL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := s.client.Do(req, resp); err != nil {
		log.Warn().Err(err).Str("checkout_id", p.CheckoutRequestID).Msg("Callback delivery failed")
		return
	}
	log.Info().
		Str("checkout_id", p.CheckoutRequestID).
		Int("result_code", p.ResultCode).
		Int("status", resp.StatusCode()).
		Msg("Callback delivered")
}

func (s *Sandbox) randomDelay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := s.maxDelay - s.minDelay
	if delta <= 0 {
		return s.minDelay
	}
	return s.minDelay + time.Duration(s.rng.Int63n(int64(delta)))
}

func (s *Sandbox) intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

func SetupRouter(s *Sandbox) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("Request processed")
	})

	router.GET("/oauth/v1/generate", s.Token)

	mpesa := router.Group("/mpesa", s.RequireToken)
	{
		mpesa.POST("/stkpush/v1/processrequest", s.STKPush)
		mpesa.POST("/stkpushquery/v1/query", s.STKQuery)
	}

	router.PUT("/sandbox/config", s.UpdateConfig)
	router.GET("/health", s.Health)

	return router
}
