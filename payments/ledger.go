package payments

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"jyurniq/models"
)

var ErrPaymentNotFound = errors.New("payment not found")

// settle applies a webhook outcome to its payment. Payments only ever leave
// pending, so a replayed webhook changes nothing and reports applied=false.
func (p *PaymentsModule) settle(ctx context.Context, gateway string, ev *WebhookEvent) (applied bool, err error) {
	if ev.Outcome == OutcomeIgnored {
		return false, nil
	}

	var payment models.Payment
	q := p.db.WithContext(ctx).Where("gateway = ?", gateway)
	if ev.PaymentID != 0 {
		q = q.Where("id = ?", ev.PaymentID)
	} else {
		q = q.Where("external_id = ?", ev.ExternalID)
	}
	if err := q.First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrPaymentNotFound
		}
		return false, fmt.Errorf("failed to load payment: %w", err)
	}

	status := models.PaymentSucceeded
	if ev.Outcome == OutcomeFailed {
		status = models.PaymentFailed
	}

	err = p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{"status": status}
		if ev.ExternalID != "" {
			updates["external_id"] = ev.ExternalID
		}
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return nil
		}
		applied = true

		if status != models.PaymentSucceeded {
			return nil
		}
		return tx.Model(&models.User{}).
			Where("id = ?", payment.BloggerID).
			Update("earnings", gorm.Expr("earnings + ?", payment.Amount)).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to settle payment %d: %w", payment.ID, err)
	}
	return applied, nil
}

// fail marks a payment whose checkout could not be created.
func (p *PaymentsModule) fail(ctx context.Context, paymentID uint) {
	err := p.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentPending).
		Update("status", models.PaymentFailed).Error
	if err != nil {
		p.log.Error().Err(err).Uint("payment_id", paymentID).Msg("failed to mark payment failed")
	}
}
