package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
)

func TestGenerateInvoice_LongTermFirstInvoiceIsIdempotent(t *testing.T) {
	repo := newFakeRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, newFakeGateway(), publisher)
	repo.addBooking(longTermBooking("b-1", "c-1", "12000", "Grand Retreat", day(2026, time.October, 1)))

	asOf := day(2026, time.October, 15)
	first, created, err := svc.GenerateInvoice(context.Background(), "b-1", asOf)
	if err != nil {
		t.Fatalf("GenerateInvoice returned error: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create an invoice")
	}
	if !first.Amount.Equal(dec("18000")) {
		t.Fatalf("expected first invoice of monthly rate plus placement fee 18000, got %s", first.Amount)
	}
	if !first.DueDate.Equal(day(2026, time.October, 22)) {
		t.Fatalf("expected due date 2026-10-22, got %s", first.DueDate)
	}
	if first.Currency != "ZAR" || first.Status != domain.InvoiceStatusPending {
		t.Fatalf("unexpected invoice %+v", first)
	}

	second, created, err := svc.GenerateInvoice(context.Background(), "b-1", asOf.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("second GenerateInvoice returned error: %v", err)
	}
	if created {
		t.Fatal("expected second call in the same month to be a no-op")
	}
	if second.ID != first.ID {
		t.Fatalf("expected existing invoice %s, got %s", first.ID, second.ID)
	}
	if n := len(repo.invoicesFor("b-1")); n != 1 {
		t.Fatalf("expected exactly 1 invoice, got %d", n)
	}
	if n := publisher.count(domain.EventInvoiceGenerated); n != 1 {
		t.Fatalf("expected 1 invoice.generated event, got %d", n)
	}

	f, err := repo.GetFinancials(context.Background(), "b-1")
	if err != nil {
		t.Fatalf("expected financials to be stored: %v", err)
	}
	if !f.FixedFee.Equal(dec("6000")) || !f.AdminTotalRevenue.Equal(dec("9000")) || !f.NannyEarnings.Equal(dec("9000")) {
		t.Fatalf("unexpected financials %+v", f)
	}
	if !f.AdminTotalRevenue.Add(f.NannyEarnings).Equal(f.GrossAmount) {
		t.Fatalf("expected admin + nanny to equal gross, got %s + %s != %s", f.AdminTotalRevenue, f.NannyEarnings, f.GrossAmount)
	}

	schedule := repo.scheduleForBooking("b-1")
	if schedule == nil {
		t.Fatal("expected a payment schedule for the long-term booking")
	}
	if !schedule.NextAuthorizationDate.Equal(day(2026, time.November, 25)) || !schedule.NextCaptureDate.Equal(day(2026, time.December, 1)) {
		t.Fatalf("unexpected first cycle dates %s / %s", schedule.NextAuthorizationDate, schedule.NextCaptureDate)
	}
	if !schedule.Amount.Equal(dec("12000")) {
		t.Fatalf("expected schedule amount 12000, got %s", schedule.Amount)
	}
}

func TestGenerateInvoice_LaterMonthsBillMonthlyRate(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})
	repo.addBooking(longTermBooking("b-1", "c-1", "8000", "", day(2026, time.October, 1)))

	if _, _, err := svc.GenerateInvoice(context.Background(), "b-1", day(2026, time.October, 2)); err != nil {
		t.Fatalf("first invoice: %v", err)
	}
	next, created, err := svc.GenerateInvoice(context.Background(), "b-1", day(2026, time.November, 2))
	if err != nil {
		t.Fatalf("second invoice: %v", err)
	}
	if !created {
		t.Fatal("expected a new invoice for the next month")
	}
	if !next.Amount.Equal(dec("8000")) {
		t.Fatalf("expected monthly rate 8000 without placement fee, got %s", next.Amount)
	}
	if !next.BillingMonth.Equal(day(2026, time.November, 1)) {
		t.Fatalf("expected billing month 2026-11-01, got %s", next.BillingMonth)
	}
}

func TestGenerateInvoice_ShortTermInvoicedOnce(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})
	end := day(2026, time.October, 11)
	repo.addBooking(domain.Booking{
		ID:          "b-short",
		ClientID:    "c-1",
		BookingType: domain.BookingTypeDateNight,
		StartDate:   day(2026, time.October, 10),
		EndDate:     &end,
		TotalAmount: dec("500"),
		Status:      domain.BookingStatusConfirmed,
	})

	inv, created, err := svc.GenerateInvoice(context.Background(), "b-short", day(2026, time.October, 12))
	if err != nil {
		t.Fatalf("GenerateInvoice returned error: %v", err)
	}
	if !created || !inv.Amount.Equal(dec("500")) {
		t.Fatalf("expected new invoice of 500, got created=%v amount=%s", created, inv.Amount)
	}
	if repo.scheduleForBooking("b-short") != nil {
		t.Fatal("short-term bookings must not get a payment schedule")
	}

	f, _ := repo.GetFinancials(context.Background(), "b-short")
	if !f.FixedFee.Equal(dec("70")) || !f.CommissionAmount.Equal(dec("86")) || !f.NannyEarnings.Equal(dec("344")) {
		t.Fatalf("unexpected short-term financials %+v", f)
	}

	_, created, err = svc.GenerateInvoice(context.Background(), "b-short", day(2026, time.November, 3))
	if err != nil {
		t.Fatalf("GenerateInvoice in later month returned error: %v", err)
	}
	if created {
		t.Fatal("expected short-term booking to be invoiced only once")
	}
}

func TestGenerateInvoice_RejectsNegativeEarningsWithoutPersisting(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})
	end := day(2026, time.October, 2)
	repo.addBooking(domain.Booking{
		ID:          "b-neg",
		ClientID:    "c-1",
		BookingType: domain.BookingTypeEmergency,
		StartDate:   day(2026, time.October, 1),
		EndDate:     &end,
		TotalAmount: dec("60"),
		Status:      domain.BookingStatusConfirmed,
	})

	_, _, err := svc.GenerateInvoice(context.Background(), "b-neg", day(2026, time.October, 3))
	if !errors.Is(err, domain.ErrNegativeEarnings) {
		t.Fatalf("expected ErrNegativeEarnings, got %v", err)
	}
	if n := len(repo.invoicesFor("b-neg")); n != 0 {
		t.Fatalf("expected no invoice to be persisted, got %d", n)
	}
	if _, err := repo.GetFinancials(context.Background(), "b-neg"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected no financials to be persisted, got %v", err)
	}
}

func TestGenerateInvoice_ErrorClasses(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})

	pending := longTermBooking("b-pending", "c-1", "8000", "", day(2026, time.October, 1))
	pending.Status = domain.BookingStatusPending
	repo.addBooking(pending)
	repo.addBooking(longTermBooking("b-future", "c-1", "8000", "", day(2026, time.December, 1)))

	tests := []struct {
		name      string
		bookingID string
		want      error
	}{
		{name: "missing booking", bookingID: "nope", want: domain.ErrNotFound},
		{name: "missing booking is a generation failure", bookingID: "nope", want: domain.ErrInvoiceGeneration},
		{name: "pending booking", bookingID: "b-pending", want: domain.ErrInvalidInput},
		{name: "not started", bookingID: "b-future", want: domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.GenerateInvoice(context.Background(), tt.bookingID, day(2026, time.October, 15))
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestMarkOverdueInvoices(t *testing.T) {
	repo := newFakeRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, newFakeGateway(), publisher)
	end := day(2026, time.October, 2)
	repo.addBooking(domain.Booking{
		ID:          "b-short",
		ClientID:    "c-1",
		BookingType: domain.BookingTypeDateNight,
		StartDate:   day(2026, time.October, 1),
		EndDate:     &end,
		TotalAmount: dec("500"),
		Status:      domain.BookingStatusConfirmed,
	})

	if _, _, err := svc.GenerateInvoice(context.Background(), "b-short", day(2026, time.October, 1)); err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	res, err := svc.MarkOverdueInvoices(context.Background(), day(2026, time.October, 8))
	if err != nil {
		t.Fatalf("MarkOverdueInvoices: %v", err)
	}
	if res.MarkedOverdue != 0 {
		t.Fatalf("expected nothing overdue on the due date, got %d", res.MarkedOverdue)
	}

	res, err = svc.MarkOverdueInvoices(context.Background(), day(2026, time.October, 9))
	if err != nil {
		t.Fatalf("MarkOverdueInvoices: %v", err)
	}
	if res.MarkedOverdue != 1 || publisher.count(domain.EventInvoiceOverdue) != 1 {
		t.Fatalf("expected 1 overdue invoice and event, got %d / %d", res.MarkedOverdue, publisher.count(domain.EventInvoiceOverdue))
	}
}

func TestMarkOverdueInvoices_WaitsForScheduledCapture(t *testing.T) {
	repo := newFakeRepo()
	publisher := &fakePublisher{}
	svc := newTestService(repo, newFakeGateway(), publisher)
	repo.addBooking(longTermBooking("b-1", "c-1", "8000", "", day(2026, time.October, 1)))

	// Due Oct 22, first capture Dec 1.
	if _, _, err := svc.GenerateInvoice(context.Background(), "b-1", day(2026, time.October, 15)); err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}

	for _, asOf := range []time.Time{day(2026, time.October, 23), day(2026, time.November, 26), day(2026, time.December, 1)} {
		res, err := svc.MarkOverdueInvoices(context.Background(), asOf)
		if err != nil {
			t.Fatalf("MarkOverdueInvoices(%s): %v", asOf.Format(time.DateOnly), err)
		}
		if res.MarkedOverdue != 0 {
			t.Fatalf("expected invoice awaiting capture to stay pending on %s", asOf.Format(time.DateOnly))
		}
	}
	if publisher.count(domain.EventInvoiceOverdue) != 0 {
		t.Fatal("expected no overdue event before the capture date")
	}

	// The Dec 1 capture never happened.
	res, err := svc.MarkOverdueInvoices(context.Background(), day(2026, time.December, 2))
	if err != nil {
		t.Fatalf("MarkOverdueInvoices: %v", err)
	}
	if res.MarkedOverdue != 1 {
		t.Fatalf("expected the uncaptured invoice to go overdue after the capture date, got %d", res.MarkedOverdue)
	}

	if _, err := svc.PauseSchedule(context.Background(), "b-1"); err != nil {
		t.Fatalf("PauseSchedule: %v", err)
	}
	repo.addBooking(longTermBooking("b-2", "c-2", "8000", "", day(2026, time.October, 1)))
	if _, _, err := svc.GenerateInvoice(context.Background(), "b-2", day(2026, time.October, 15)); err != nil {
		t.Fatalf("GenerateInvoice: %v", err)
	}
	if _, err := svc.PauseSchedule(context.Background(), "b-2"); err != nil {
		t.Fatalf("PauseSchedule: %v", err)
	}
	res, err = svc.MarkOverdueInvoices(context.Background(), day(2026, time.October, 23))
	if err != nil {
		t.Fatalf("MarkOverdueInvoices: %v", err)
	}
	if res.MarkedOverdue != 1 {
		t.Fatalf("expected a paused schedule's invoice to go overdue on its due date, got %d", res.MarkedOverdue)
	}
}
