package app

import (
	"context"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
)

// Per-booking statuses reported by reconciliation.
const (
	ReconcileGenerated = "generated"
	ReconcileSkipped   = "skipped"
	ReconcileError     = "error"
)

const sweepInvoices = "invoices"

// ReconciliationDetail is the outcome for one booking.
type ReconciliationDetail struct {
	BookingID string `json:"booking_id"`
	Status    string `json:"status"`
	InvoiceID string `json:"invoice_id,omitempty"`
	Message   string `json:"message,omitempty"`
}

// ReconciliationSummary aggregates a bulk invoice generation run.
type ReconciliationSummary struct {
	AsOf      time.Time              `json:"as_of"`
	Generated int                    `json:"generated"`
	Skipped   int                    `json:"skipped"`
	Errors    int                    `json:"errors"`
	Details   []ReconciliationDetail `json:"details"`
}

// GenerateAllMissingInvoices invoices every billable booking that has no
// invoice for the current period. Per-booking failures are recorded in the
// summary and never abort the run; only failing to list bookings does.
func (s Service) GenerateAllMissingInvoices(ctx context.Context, asOf time.Time) (*ReconciliationSummary, error) {
	asOf = s.businessDate(asOf)

	release, err := s.acquireSweep(ctx, sweepInvoices)
	if err != nil {
		return nil, err
	}
	defer release()
	defer observeSweep(sweepInvoices, time.Now())

	bookings, err := s.repo.ListBillableBookings(ctx, asOf)
	if err != nil {
		return nil, err
	}

	summary := &ReconciliationSummary{AsOf: asOf, Details: make([]ReconciliationDetail, 0, len(bookings))}
	for _, booking := range bookings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(s.reconcileBooking(ctx, booking, asOf))
	}

	s.logger.Info("invoice reconciliation finished",
		"as_of", asOf.Format(time.DateOnly), "generated", summary.Generated,
		"skipped", summary.Skipped, "errors", summary.Errors)
	return summary, nil
}

func (s Service) reconcileBooking(ctx context.Context, booking domain.Booking, asOf time.Time) ReconciliationDetail {
	detail := ReconciliationDetail{BookingID: booking.ID}

	invoice, created, err := s.GenerateInvoice(ctx, booking.ID, asOf)
	if err != nil {
		s.logger.Error("failed to generate invoice", "booking_id", booking.ID, "error", err)
		detail.Status = ReconcileError
		detail.Message = err.Error()
		return detail
	}

	detail.InvoiceID = invoice.ID
	if created {
		detail.Status = ReconcileGenerated
		return detail
	}
	detail.Status = ReconcileSkipped
	detail.Message = "invoice already exists for period"
	return detail
}

func (r *ReconciliationSummary) add(d ReconciliationDetail) {
	switch d.Status {
	case ReconcileGenerated:
		r.Generated++
	case ReconcileError:
		r.Errors++
	default:
		r.Skipped++
	}
	r.Details = append(r.Details, d)
}
