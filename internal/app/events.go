package app

import (
	"context"

	"github.com/nannygold/billing-service/internal/domain"
)

func (s Service) publishInvoiceEvent(ctx context.Context, routingKey string, invoice domain.Invoice) {
	s.publish(ctx, routingKey, domain.BillingEvent{
		BookingID:     invoice.BookingID,
		ClientID:      invoice.ClientID,
		InvoiceID:     invoice.ID,
		InvoiceNumber: invoice.InvoiceNumber,
		Amount:        invoice.Amount.StringFixed(2),
		Currency:      invoice.Currency,
		Status:        invoice.Status,
		Timestamp:     s.now().UTC(),
	})
}

func (s Service) publishPaymentEvent(ctx context.Context, routingKey string, auth domain.PaymentAuthorization) {
	event := domain.BillingEvent{
		BookingID:     auth.BookingID,
		ClientID:      auth.UserID,
		ScheduleID:    auth.ScheduleID,
		Amount:        auth.Amount.StringFixed(2),
		Currency:      s.opts.Currency,
		Status:        auth.Status,
		Reference:     auth.PaystackReference,
		FailureReason: auth.FailureReason,
		Timestamp:     s.now().UTC(),
	}
	if auth.InvoiceID != nil {
		event.InvoiceID = *auth.InvoiceID
	}
	s.publish(ctx, routingKey, event)
}

func (s Service) publishReferralEvent(ctx context.Context, entry domain.ReferralLog) {
	s.publish(ctx, domain.EventReferralRewardAccrued, map[string]interface{}{
		"booking_id":    entry.BookingID,
		"referrer_id":   entry.ReferrerID,
		"referred_id":   entry.ReferredID,
		"reward_amount": entry.RewardAmount.StringFixed(2),
		"currency":      s.opts.Currency,
		"timestamp":     s.now().UTC(),
	})
}

func (s Service) publish(ctx context.Context, routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, EventsExchange, routingKey, body); err != nil {
		s.logger.Warn("failed to publish billing event", "routing_key", routingKey, "error", err)
	}
}
