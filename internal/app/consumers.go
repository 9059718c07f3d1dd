package app

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/nannygold/billing-service/internal/domain"
)

// BookingEventRoutingKeys are the booking lifecycle events billing reacts to.
var BookingEventRoutingKeys = []string{
	domain.EventBookingConfirmed,
	domain.EventBookingCancelled,
	domain.EventBookingCompleted,
}

// HandleBookingEvent reacts to booking lifecycle events. It returns false only
// for failures worth retrying; malformed or permanently invalid events are
// acknowledged and logged.
func (s Service) HandleBookingEvent(ctx context.Context, routingKey string, body []byte) bool {
	var event domain.BookingEvent
	if err := json.Unmarshal(body, &event); err != nil || event.BookingID == "" {
		s.logger.Error("dropping malformed booking event", "routing_key", routingKey, "error", err)
		return true
	}

	var err error
	switch routingKey {
	case domain.EventBookingConfirmed:
		_, _, err = s.GenerateInvoice(ctx, event.BookingID, s.Today())
	case domain.EventBookingCancelled:
		err = s.CancelBookingBilling(ctx, event.BookingID)
	case domain.EventBookingCompleted:
		err = s.setScheduleStatus(ctx, event.BookingID, domain.ScheduleStatusCancelled)
	default:
		s.logger.Debug("ignoring booking event", "routing_key", routingKey)
		return true
	}

	if err == nil {
		return true
	}
	if isPermanent(err) {
		s.logger.Warn("booking event rejected", "routing_key", routingKey, "booking_id", event.BookingID, "error", err)
		return true
	}
	s.logger.Error("booking event failed, requeueing", "routing_key", routingKey, "booking_id", event.BookingID, "error", err)
	return false
}

// CancelBookingBilling pauses the booking's schedule and cancels its unpaid
// invoices. The schedule stays resumable.
func (s Service) CancelBookingBilling(ctx context.Context, bookingID string) error {
	if err := s.setScheduleStatus(ctx, bookingID, domain.ScheduleStatusPaused); err != nil {
		return err
	}
	cancelled, err := s.repo.CancelOpenInvoices(ctx, bookingID)
	if err != nil {
		return err
	}
	s.logger.Info("booking billing cancelled", "booking_id", bookingID, "invoices_cancelled", cancelled)
	return nil
}

// setScheduleStatus moves a booking's schedule; bookings without one are fine.
func (s Service) setScheduleStatus(ctx context.Context, bookingID, status string) error {
	_, err := s.repo.SetScheduleStatus(ctx, bookingID, status)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

func isPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalidInput) ||
		errors.Is(err, domain.ErrNegativeEarnings) ||
		errors.Is(err, domain.ErrNotFound)
}
