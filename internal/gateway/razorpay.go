package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshua-takyi/staybook/internal/apperrors"
)

const DefaultBaseURL = "https://api.razorpay.com/v1"

// Order is the provider side record of an intended charge.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type Refund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
}

// PaymentGateway is what the payment and cancellation services need from the
// provider. Amounts are in minor currency units.
type PaymentGateway interface {
	KeyID() string
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error)
	FetchOrder(ctx context.Context, orderID string) (*Order, error)
	Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error)
	VerifySignature(orderID, paymentID, signature string) bool
}

type RazorpayClient struct {
	keyID      string
	keySecret  string
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

func NewRazorpayClient(cfg RazorpayConfig, logger *slog.Logger) *RazorpayClient {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayClient{
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		baseURL:    baseURL,
		timeout:    timeout,
		httpClient: &http.Client{},
		logger:     logger,
	}
}

func (rc *RazorpayClient) KeyID() string {
	return rc.keyID
}

func (rc *RazorpayClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*Order, error) {
	payload := map[string]interface{}{
		"amount":   amount,
		"currency": currency,
		"receipt":  receipt,
	}

	var order Order
	if err := rc.do(ctx, http.MethodPost, "/orders", payload, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("order response without id"))
	}
	return &order, nil
}

func (rc *RazorpayClient) FetchOrder(ctx context.Context, orderID string) (*Order, error) {
	var order Order
	if err := rc.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, &order); err != nil {
		return nil, err
	}
	if order.ID != orderID {
		return nil, apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("order response for %q has id %q", orderID, order.ID))
	}
	return &order, nil
}

func (rc *RazorpayClient) Refund(ctx context.Context, paymentID string, amount int64, notes map[string]string) (*Refund, error) {
	payload := map[string]interface{}{
		"amount": amount,
		"notes":  notes,
	}

	var refund Refund
	if err := rc.do(ctx, http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refund", payload, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

// VerifySignature checks hex(HMAC_SHA256(secret, orderID|paymentID)) against
// the signature the checkout returned, in constant time.
func (rc *RazorpayClient) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifySignature(rc.keySecret, orderID, paymentID, signature)
}

func Sign(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func VerifySignature(secret, orderID, paymentID, signature string) bool {
	if secret == "" || orderID == "" || paymentID == "" || signature == "" {
		return false
	}
	expected := Sign(secret, orderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// do sends a request with basic auth and a JSON body when payload is set.
// Any transport failure, timeout or non 2xx reply comes back as
// ErrGatewayUnavailable; the provider body is only logged.
func (rc *RazorpayClient) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("cannot encode request: %w", err))
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, rc.baseURL+path, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("cannot build request: %w", err))
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(rc.keyID, rc.keySecret)

	resp, err := rc.httpClient.Do(req)
	if err != nil {
		rc.logger.Error("Razorpay request failed", "path", path, "error", err)
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("cannot read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		rc.logger.Error("Razorpay returned an error",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("HTTP error %d", resp.StatusCode))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return apperrors.Wrap(apperrors.ErrGatewayUnavailable, fmt.Errorf("JSON parse error: %w", err))
	}
	return nil
}

var _ PaymentGateway = (*RazorpayClient)(nil)
