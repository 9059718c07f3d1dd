package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/internal/metrics"
	"github.com/nannygold/billing-service/internal/revenue"
)

// OverdueResult summarizes an overdue sweep.
type OverdueResult struct {
	AsOf          time.Time `json:"as_of"`
	MarkedOverdue int       `json:"marked_overdue"`
}

// GenerateInvoice creates the invoice for a booking's billing period containing
// asOf, together with its financials and, for long-term bookings, the payment
// schedule. Calling it again for the same period returns the existing invoice
// with created=false. Short-term bookings are invoiced once, in the month they
// start.
func (s Service) GenerateInvoice(ctx context.Context, bookingID string, asOf time.Time) (*domain.Invoice, bool, error) {
	asOf = s.businessDate(asOf)

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, false, fmt.Errorf("%w: load booking %s: %w", domain.ErrInvoiceGeneration, bookingID, err)
	}
	if !booking.IsBillable(asOf) {
		return nil, false, fmt.Errorf("%w: booking %s is %s from %s", domain.ErrInvalidInput, bookingID, booking.Status, booking.StartDate.Format(time.DateOnly))
	}

	period := asOf
	if !booking.IsRecurring() {
		period = booking.StartDate
	}

	existing, err := s.repo.FindInvoiceForMonth(ctx, booking.ID, period)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, fmt.Errorf("%w: look up invoice: %w", domain.ErrInvoiceGeneration, err)
	}

	split, err := revenue.Compute(revenue.ForBooking(*booking))
	if err != nil {
		return nil, false, fmt.Errorf("booking %s: %w", bookingID, err)
	}

	amount := split.ClientTotal
	if booking.IsRecurring() {
		count, err := s.repo.CountInvoices(ctx, booking.ID)
		if err != nil {
			return nil, false, fmt.Errorf("%w: count invoices: %w", domain.ErrInvoiceGeneration, err)
		}
		// The placement fee is billed once, on the first invoice.
		if count > 0 {
			amount = split.GrossAmount
		}
	}

	bundle := domain.InvoiceBundle{
		Financials: domain.BookingFinancials{
			BookingID:         booking.ID,
			FixedFee:          split.FixedFee,
			CommissionPercent: split.CommissionPercent,
			CommissionAmount:  split.CommissionAmount,
			AdminTotalRevenue: split.AdminTotalRevenue,
			NannyEarnings:     split.NannyEarnings,
			GrossAmount:       split.ClientTotal,
		},
		Invoice: domain.Invoice{
			BookingID:    booking.ID,
			ClientID:     booking.ClientID,
			Amount:       amount,
			Currency:     s.opts.Currency,
			BillingMonth: domain.BillingMonth(period),
			IssueDate:    asOf,
			DueDate:      asOf.AddDate(0, 0, s.opts.InvoiceDueDays),
			Status:       domain.InvoiceStatusPending,
		},
	}

	if booking.IsRecurring() {
		authDate, captureDate := domain.FirstCycleDates(asOf, s.opts.AuthorizationDay, s.opts.CaptureDay)
		bundle.Schedule = &domain.PaymentSchedule{
			BookingID:             booking.ID,
			ClientID:              booking.ClientID,
			Amount:                split.GrossAmount,
			Currency:              s.opts.Currency,
			AuthorizationDay:      s.opts.AuthorizationDay,
			CaptureDay:            s.opts.CaptureDay,
			NextAuthorizationDate: authDate,
			NextCaptureDate:       captureDate,
			Status:                domain.ScheduleStatusActive,
		}
	}

	invoice, created, err := s.repo.CreateInvoiceBundle(ctx, bundle)
	if err != nil {
		return nil, false, fmt.Errorf("%w: persist invoice: %w", domain.ErrInvoiceGeneration, err)
	}

	if created {
		metrics.InvoicesGenerated.WithLabelValues(booking.BookingType).Inc()
		s.logger.Info("invoice generated",
			"booking_id", booking.ID, "invoice_id", invoice.ID,
			"invoice_number", invoice.InvoiceNumber, "amount", invoice.Amount.StringFixed(2))
		s.publishInvoiceEvent(ctx, domain.EventInvoiceGenerated, *invoice)
	}
	return invoice, created, nil
}

// MarkOverdueInvoices flips pending invoices whose due date is before asOf.
func (s Service) MarkOverdueInvoices(ctx context.Context, asOf time.Time) (*OverdueResult, error) {
	asOf = s.businessDate(asOf)

	invoices, err := s.repo.MarkInvoicesOverdue(ctx, asOf)
	if err != nil {
		return nil, err
	}

	for _, invoice := range invoices {
		s.publishInvoiceEvent(ctx, domain.EventInvoiceOverdue, invoice)
	}

	return &OverdueResult{AsOf: asOf, MarkedOverdue: len(invoices)}, nil
}

// ListInvoices returns a client's recent invoices.
func (s Service) ListInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client ID cannot be empty", domain.ErrInvalidInput)
	}
	return s.repo.ListInvoicesByClient(ctx, clientID, 24)
}

// GetFinancials returns the persisted split for a booking.
func (s Service) GetFinancials(ctx context.Context, bookingID string) (*domain.BookingFinancials, error) {
	return s.repo.GetFinancials(ctx, bookingID)
}

// Quote computes a split without persisting anything.
func (s Service) Quote(in revenue.Input) (revenue.FeeSplit, error) {
	return revenue.Compute(in)
}
