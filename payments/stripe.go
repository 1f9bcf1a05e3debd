package payments

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

type StripeGateway struct {
	secretKey     string
	webhookSecret string
	appURL        string
	api           *client.API
}

func NewStripeGateway(secretKey, webhookSecret, appURL string) *StripeGateway {
	g := &StripeGateway{
		secretKey:     secretKey,
		webhookSecret: webhookSecret,
		appURL:        strings.TrimRight(appURL, "/"),
	}
	if secretKey != "" {
		g.api = client.New(secretKey, nil)
	}
	return g
}

func (g *StripeGateway) Name() string { return "stripe" }

func (g *StripeGateway) Configured() bool { return g.secretKey != "" }

func (g *StripeGateway) WebhookConfigured() bool {
	return g.secretKey != "" && g.webhookSecret != ""
}

func (g *StripeGateway) CreateCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	paymentID := strconv.FormatUint(uint64(req.PaymentID), 10)
	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s with blogger", req.Type)),
					},
					UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(g.appURL + "/payments/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(g.appURL + "/payments/cancel"),
		ClientReferenceID: stripe.String(paymentID),
		Metadata: map[string]string{
			"paymentId": paymentID,
			"type":      req.Type,
		},
	}
	params.Context = ctx

	sess, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create stripe checkout session: %w", err)
	}

	return &CheckoutResult{
		ExternalID: sess.ID,
		Body: map[string]interface{}{
			"sessionId": sess.ID,
			"url":       sess.URL,
		},
	}, nil
}

func (g *StripeGateway) ParseWebhook(payload []byte, header http.Header) (*WebhookEvent, error) {
	if !g.WebhookConfigured() {
		return nil, ErrNotConfigured
	}

	signature := header.Get("Stripe-Signature")
	if signature == "" {
		return nil, ErrInvalidSignature
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &WebhookEvent{Type: string(event.Type), Outcome: OutcomeIgnored}
	switch event.Type {
	case "checkout.session.completed":
		out.Outcome = OutcomeSucceeded
	case "checkout.session.expired":
		out.Outcome = OutcomeFailed
	default:
		return out, nil
	}

	out.ExternalID = event.GetObjectValue("id")
	ref := event.GetObjectValue("metadata", "paymentId")
	if ref == "" {
		ref = event.GetObjectValue("client_reference_id")
	}
	if ref != "" {
		id, err := strconv.ParseUint(ref, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: paymentId %q", ErrInvalidPayload, ref)
		}
		out.PaymentID = uint(id)
	}
	return out, nil
}
