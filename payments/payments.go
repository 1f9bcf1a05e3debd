package payments

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"jyurniq/auth"
	"jyurniq/common"
	"jyurniq/models"
	"jyurniq/monitoring"
)

const maxWebhookBody = 64 << 10

var gatewayTitles = map[string]string{
	models.GatewayStripe:   "Stripe",
	models.GatewayRazorpay: "Razorpay",
}

type PaymentsModule struct {
	db       *gorm.DB
	gateways map[string]Gateway
	log      zerolog.Logger
}

func NewPaymentsModule(db *gorm.DB, gateways ...Gateway) *PaymentsModule {
	common.RegisterValidators()
	m := &PaymentsModule{
		db:       db,
		gateways: make(map[string]Gateway, len(gateways)),
		log:      common.NewLogger("payments"),
	}
	for _, g := range gateways {
		m.gateways[g.Name()] = g
	}
	return m
}

func (p *PaymentsModule) RegisterRoutes(router *gin.Engine) {
	group := router.Group("/api/payments")
	{
		group.POST("/checkout", auth.RequireAuth(), p.checkout)
		group.POST("/webhook", p.webhookHandler(models.GatewayStripe))
		group.POST("/webhook/razorpay", p.webhookHandler(models.GatewayRazorpay))
		group.GET("/mine", auth.RequireAuth(), p.mine)
	}
}

type checkoutRequest struct {
	BloggerID uint                   `json:"bloggerId" binding:"required"`
	Amount    decimal.Decimal        `json:"amount"`
	Currency  string                 `json:"currency" binding:"omitempty,len=3,alpha"`
	Type      string                 `json:"type" binding:"required,oneof=question conversation message"`
	Gateway   string                 `json:"gateway" binding:"omitempty,oneof=stripe razorpay"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (p *PaymentsModule) checkout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": common.ValidationMessage(err)})
		return
	}
	if req.Amount.LessThan(decimal.NewFromInt(1)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be at least 1"})
		return
	}
	if req.Gateway == "" {
		req.Gateway = models.GatewayRazorpay
	}
	currency := strings.ToUpper(req.Currency)
	if currency == "" {
		currency = "INR"
	}

	gateway, ok := p.gateways[req.Gateway]
	if !ok || !gateway.Configured() {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gatewayTitles[req.Gateway] + " not configured"})
		return
	}

	customer := auth.CurrentUser(c)
	var blogger models.User
	if err := p.db.First(&blogger, req.BloggerID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Blogger not found"})
		return
	}
	if blogger.ID == customer.ID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot pay yourself"})
		return
	}
	if !blogger.ContactEnabled {
		c.JSON(http.StatusBadRequest, gin.H{"error": "This blogger is not accepting paid contact"})
		return
	}

	payment := models.Payment{
		CustomerID: customer.ID,
		BloggerID:  blogger.ID,
		Amount:     req.Amount.Round(2),
		Currency:   currency,
		Status:     models.PaymentPending,
		Type:       req.Type,
		Gateway:    req.Gateway,
	}
	if req.Metadata != nil {
		payment.Metadata = datatypes.JSONMap(req.Metadata)
	}
	if err := p.db.Create(&payment).Error; err != nil {
		p.log.Error().Err(err).Msg("failed to create payment")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create payment"})
		return
	}
	monitoring.RecordPayment(req.Gateway, models.PaymentPending)

	result, err := gateway.CreateCheckout(c.Request.Context(), CheckoutRequest{
		PaymentID: payment.ID,
		Amount:    payment.Amount,
		Currency:  currency,
		Type:      req.Type,
		BloggerID: blogger.ID,
	})
	if err != nil {
		p.log.Error().Err(err).Uint("payment_id", payment.ID).Str("gateway", req.Gateway).Msg("checkout failed")
		p.fail(c.Request.Context(), payment.ID)
		monitoring.RecordPayment(req.Gateway, models.PaymentFailed)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to start " + gatewayTitles[req.Gateway] + " checkout"})
		return
	}

	// the checkout is live at the gateway by now; webhooks carry the payment
	// id as well, so a missing external id only costs the lookup shortcut
	if err := p.db.Model(&payment).Update("external_id", result.ExternalID).Error; err != nil {
		p.log.Error().Err(err).Uint("payment_id", payment.ID).Str("external_id", result.ExternalID).Msg("failed to store external id")
	}

	body := gin.H{"paymentId": payment.ID}
	for k, v := range result.Body {
		body[k] = v
	}
	c.JSON(http.StatusOK, body)
}

func (p *PaymentsModule) webhookHandler(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		gateway, ok := p.gateways[name]
		if !ok || !gateway.WebhookConfigured() {
			c.JSON(http.StatusInternalServerError, gin.H{"error": gatewayTitles[name] + " webhook not configured"})
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}

		event, err := gateway.ParseWebhook(payload, c.Request.Header)
		if err != nil {
			p.log.Warn().Err(err).Str("gateway", name).Msg("rejected webhook")
			if errors.Is(err, ErrInvalidSignature) {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid payload"})
			return
		}

		applied, err := p.settle(c.Request.Context(), name, event)
		switch {
		case errors.Is(err, ErrPaymentNotFound):
			p.log.Warn().Str("gateway", name).Str("event", event.Type).Str("external_id", event.ExternalID).Uint("payment_id", event.PaymentID).Msg("webhook for unknown payment")
		case err != nil:
			p.log.Error().Err(err).Str("gateway", name).Str("event", event.Type).Msg("failed to settle payment")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process webhook"})
			return
		case applied:
			monitoring.RecordPayment(name, event.Outcome)
			p.log.Info().Str("gateway", name).Str("event", event.Type).Str("outcome", event.Outcome).Msg("payment settled")
		}

		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (p *PaymentsModule) mine(c *gin.Context) {
	user := auth.CurrentUser(c)

	sent := []models.Payment{}
	received := []models.Payment{}
	if err := p.db.Where("customer_id = ?", user.ID).Order("created_at DESC, id DESC").Find(&sent).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}
	if err := p.db.Where("blogger_id = ?", user.ID).Order("created_at DESC, id DESC").Find(&received).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payments"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"sent": sent, "received": received})
}
