package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"booking-service/internal/config"
	"booking-service/internal/fault"
	"github.com/shopspring/decimal"
)

const defaultTimeoutMs = 30_000

var minorUnitFactor = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount to the gateway's minor currency
// unit at order-creation time; the stored amount is never recomputed after.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(minorUnitFactor).IntPart()
}

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

type gatewayError struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// Client talks to the payment gateway's REST API. Calls are time-bounded; a
// timed-out call maps to KindGatewayUnavailable and is safe to retry because
// no ledger write happens until the gateway call returns.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	client    *http.Client
	logger    *slog.Logger
}

func NewClient(cfg config.Gateway, keyID, keySecret string, logger *slog.Logger) *Client {
	timeoutMs := cfg.TimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultTimeoutMs
	}
	return &Client{
		baseURL:   cfg.BaseURL,
		keyID:     keyID,
		keySecret: keySecret,
		client:    &http.Client{Timeout: time.Duration(timeoutMs) * time.Millisecond},
		logger:    logger,
	}
}

func (c *Client) CreateOrder(ctx context.Context, amount decimal.Decimal, currency, receipt string) (*Order, error) {
	body := map[string]any{
		"amount":   MinorUnits(amount),
		"currency": currency,
		"receipt":  receipt,
	}

	var order Order
	if err := c.post(ctx, "/v1/orders", body, &order, fault.KindGatewayUnavailable); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Gateway order created", "orderId", order.ID, "amount", order.Amount)
	return &order, nil
}

func (c *Client) CreateRefund(ctx context.Context, gatewayPaymentID string, amount decimal.Decimal, reason string) (*Refund, error) {
	body := map[string]any{
		"amount": MinorUnits(amount),
		"notes":  map[string]string{"reason": reason},
	}

	var refund Refund
	if err := c.post(ctx, "/v1/payments/"+gatewayPaymentID+"/refund", body, &refund, fault.KindRefundRejected); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Gateway refund created", "refundId", refund.ID, "paymentId", gatewayPaymentID)
	return &refund, nil
}

// post sends a JSON request; non-2xx responses below 500 map to rejectKind
// (the gateway understood and refused), everything else to
// KindGatewayUnavailable (transport-class, safe to retry).
func (c *Client) post(ctx context.Context, path string, body any, out any, rejectKind fault.Kind) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fault.Wrap(err, fault.KindGatewayUnavailable, "marshalling gateway request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fault.Wrap(err, fault.KindGatewayUnavailable, "building gateway request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.keyID, c.keySecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return fault.Wrap(err, fault.KindGatewayUnavailable, "calling gateway %s", path)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fault.Wrap(err, fault.KindGatewayUnavailable, "reading gateway response")
	}

	if resp.StatusCode >= 400 {
		var gwErr gatewayError
		_ = json.Unmarshal(respBody, &gwErr)

		if resp.StatusCode < 500 {
			return fault.New(rejectKind, "gateway rejected request: %s %s",
				gwErr.Error.Code, gwErr.Error.Description)
		}
		return fault.New(fault.KindGatewayUnavailable, "gateway returned %s", resp.Status)
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fault.Wrap(err, fault.KindGatewayUnavailable, "decoding gateway response")
	}
	return nil
}
