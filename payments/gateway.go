package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/shopspring/decimal"
)

var (
	ErrNotConfigured      = errors.New("payment gateway not configured")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrInvalidPayload     = errors.New("invalid webhook payload")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// Settlement outcomes a webhook can report.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeIgnored   = "ignored"
)

type CheckoutRequest struct {
	PaymentID uint
	Amount    decimal.Decimal
	Currency  string
	Type      string
	BloggerID uint
}

// CheckoutResult carries the gateway's reference for the payment and the
// fields the client needs to continue the checkout.
type CheckoutResult struct {
	ExternalID string
	Body       map[string]interface{}
}

// WebhookEvent is a verified gateway notification. PaymentID is set when the
// gateway echoes our id back, otherwise the payment is found by ExternalID.
type WebhookEvent struct {
	Type       string
	Outcome    string
	PaymentID  uint
	ExternalID string
}

type Gateway interface {
	Name() string
	Configured() bool
	WebhookConfigured() bool
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
	ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error)
}

// minorUnits converts an amount to the currency's smallest unit (paise, cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
