package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const razorpayAPIBaseURL = "https://api.razorpay.com/v1"

var ErrRazorpayAPI = errors.New("razorpay API error")

type RazorpayGateway struct {
	keyID         string
	keySecret     string
	webhookSecret string
	baseURL       string
	httpClient    *http.Client
}

func NewRazorpayGateway(keyID, keySecret, webhookSecret string) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:         keyID,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		baseURL:       razorpayAPIBaseURL,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (g *RazorpayGateway) Name() string { return "razorpay" }

func (g *RazorpayGateway) Configured() bool { return g.keyID != "" && g.keySecret != "" }

func (g *RazorpayGateway) WebhookConfigured() bool { return g.webhookSecret != "" }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes"`
}

type razorpayOrder struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

func (g *RazorpayGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	paymentID := strconv.FormatUint(uint64(req.PaymentID), 10)
	body, err := json.Marshal(razorpayOrderRequest{
		Amount:   minorUnits(req.Amount),
		Currency: req.Currency,
		Receipt:  paymentID,
		Notes: map[string]string{
			"type":      req.Type,
			"paymentId": paymentID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.keyID, g.keySecret)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: status %d, body: %s", ErrRazorpayAPI, resp.StatusCode, string(respBody))
	}

	var order razorpayOrder
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal order: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("%w: order without id", ErrRazorpayAPI)
	}

	return &CheckoutResult{
		ExternalID: order.ID,
		Body: map[string]interface{}{
			"orderId":  order.ID,
			"keyId":    g.keyID,
			"amount":   order.Amount,
			"currency": order.Currency,
		},
	}, nil
}

type razorpayWebhook struct {
	Event   string `json:"event"`
	Payload struct {
		Payment *struct {
			Entity struct {
				ID      string            `json:"id"`
				OrderID string            `json:"order_id"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
		Order *struct {
			Entity struct {
				ID      string `json:"id"`
				Receipt string `json:"receipt"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

// Sign returns the hex HMAC-SHA256 Razorpay puts in X-Razorpay-Signature.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (g *RazorpayGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if !g.WebhookConfigured() {
		return nil, ErrNotConfigured
	}

	signature := header.Get("X-Razorpay-Signature")
	if signature == "" || !hmac.Equal([]byte(signature), []byte(Sign(payload, g.webhookSecret))) {
		return nil, ErrInvalidSignature
	}

	var hook razorpayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	out := &WebhookEvent{Type: hook.Event, Outcome: OutcomeIgnored}
	switch hook.Event {
	case "order.paid", "payment.captured":
		out.Outcome = OutcomeSucceeded
	case "payment.failed":
		out.Outcome = OutcomeFailed
	default:
		return out, nil
	}

	var ref string
	if hook.Payload.Order != nil {
		out.ExternalID = hook.Payload.Order.Entity.ID
		ref = hook.Payload.Order.Entity.Receipt
	}
	if hook.Payload.Payment != nil {
		if out.ExternalID == "" {
			out.ExternalID = hook.Payload.Payment.Entity.OrderID
		}
		if ref == "" {
			ref = hook.Payload.Payment.Entity.Notes["paymentId"]
		}
	}
	// receipt and notes carry our payment id, so the event resolves even
	// when the order id was never stored
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		out.PaymentID = uint(id)
	}
	if out.ExternalID == "" && out.PaymentID == 0 {
		return nil, fmt.Errorf("%w: no order id", ErrInvalidPayload)
	}
	return out, nil
}
