package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ChapaConfig configures the hosted-checkout client.
type ChapaConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// ChapaClient talks to a Chapa-compatible REST API:
//
//	POST {base}/transaction/initialize
//	GET  {base}/transaction/verify/{tx_ref}
type ChapaClient struct {
	hc      *http.Client
	baseURL string
	secret  string
	logger  *zap.Logger
}

// NewChapaClient returns a client with a bounded request timeout.
func NewChapaClient(cfg ChapaConfig, logger *zap.Logger) *ChapaClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChapaClient{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		secret:  cfg.SecretKey,
		logger:  logger.Named("chapa"),
	}
}

type customization struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

type initializeRequest struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url,omitempty"`
	ReturnURL     string        `json:"return_url,omitempty"`
	Customization customization `json:"customization"`
}

type envelope struct {
	Status  string          `json:"status"`
	Message json.RawMessage `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// message flattens the provider's message field, which is sometimes a
// string and sometimes an object of validation errors.
func (e envelope) message() string {
	if len(e.Message) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	return string(e.Message)
}

// Initialize starts a hosted checkout and returns its URL verbatim.
func (c *ChapaClient) Initialize(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	body, err := json.Marshal(initializeRequest{
		Amount:      FormatAmount(req.AmountCents),
		Currency:    req.Currency,
		Email:       strings.TrimSpace(req.Email),
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		TxRef:       req.TxRef,
		CallbackURL: req.CallbackURL,
		ReturnURL:   req.ReturnURL,
		Customization: customization{
			Title:       req.Title,
			Description: req.Description,
		},
	})
	if err != nil {
		return nil, err
	}
	status, raw, err := c.do(ctx, http.MethodPost, c.baseURL+"/transaction/initialize", body)
	if err != nil {
		c.logger.Warn("initialize failed", zap.String("tx_ref", req.TxRef), zap.Error(err))
		return nil, err
	}
	var env envelope
	_ = json.Unmarshal(raw, &env)
	if status >= 300 || env.Status != "success" {
		c.logger.Info("initialize rejected", zap.String("tx_ref", req.TxRef), zap.Int("status", status))
		return nil, &RejectedError{StatusCode: status, Message: env.message(), Payload: raw}
	}
	var data struct {
		CheckoutURL string `json:"checkout_url"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.CheckoutURL == "" {
		return nil, &RejectedError{StatusCode: status, Message: "missing checkout_url", Payload: raw}
	}
	c.logger.Info("checkout initialized",
		zap.String("tx_ref", req.TxRef),
		zap.String("amount", FormatAmount(req.AmountCents)),
		zap.String("currency", req.Currency))
	return &Checkout{CheckoutURL: data.CheckoutURL, Raw: raw}, nil
}

// Verify asks the provider whether txRef was paid.  Anything other than a
// success envelope whose data status is success (or absent) is a rejection.
func (c *ChapaClient) Verify(ctx context.Context, txRef string) (*Verification, error) {
	status, raw, err := c.do(ctx, http.MethodGet, c.baseURL+"/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		c.logger.Warn("verify failed", zap.String("tx_ref", txRef), zap.Error(err))
		return nil, err
	}
	var env envelope
	_ = json.Unmarshal(raw, &env)
	var data struct {
		Amount   Amount `json:"amount"`
		Currency string `json:"currency"`
		Status   string `json:"status"`
	}
	if len(env.Data) > 0 && string(env.Data) != "null" {
		_ = json.Unmarshal(env.Data, &data)
	}
	if status >= 300 || env.Status != "success" || (data.Status != "" && data.Status != "success") {
		c.logger.Info("verify rejected", zap.String("tx_ref", txRef), zap.Int("status", status))
		return nil, &RejectedError{StatusCode: status, Message: env.message(), Payload: raw}
	}
	c.logger.Info("payment verified",
		zap.String("tx_ref", txRef),
		zap.String("amount", FormatAmount(int64(data.Amount))))
	return &Verification{
		AmountCents: int64(data.Amount),
		Currency:    data.Currency,
		Status:      data.Status,
		Raw:         raw,
	}, nil
}

func (c *ChapaClient) do(ctx context.Context, method, rawURL string, body []byte) (int, []byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, rd)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	res, err := c.hc.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return 0, nil, ctx.Err()
		}
		return 0, nil, fmt.Errorf("%w: %v", ErrGatewayUnreachable, err)
	}
	defer res.Body.Close()
	b, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, fmt.Errorf("%w: read body: %v", ErrGatewayUnreachable, err)
	}
	return res.StatusCode, b, nil
}
