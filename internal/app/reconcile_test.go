package app

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
)

func TestGenerateAllMissingInvoices_ContinuesPastFailures(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})

	for i := 1; i <= 10; i++ {
		b := longTermBooking(fmt.Sprintf("b-%02d", i), fmt.Sprintf("c-%02d", i), "8000", "", day(2026, time.October, 1))
		if i == 4 {
			b.HomeSize = strPtr("castle??")
		}
		repo.addBooking(b)
	}

	asOf := day(2026, time.October, 15)
	summary, err := svc.GenerateAllMissingInvoices(context.Background(), asOf)
	if err != nil {
		t.Fatalf("GenerateAllMissingInvoices: %v", err)
	}
	if summary.Generated != 9 || summary.Errors != 1 || summary.Skipped != 0 {
		t.Fatalf("expected 9 generated and 1 error, got %+v", summary)
	}
	if len(summary.Details) != 10 {
		t.Fatalf("expected 10 details, got %d", len(summary.Details))
	}
	failed := summary.Details[3]
	if failed.BookingID != "b-04" || failed.Status != ReconcileError || failed.Message == "" {
		t.Fatalf("expected b-04 to be reported with its error, got %+v", failed)
	}
	if len(repo.invoicesFor("b-04")) != 0 {
		t.Fatal("malformed booking must not be invoiced")
	}

	rerun, err := svc.GenerateAllMissingInvoices(context.Background(), asOf)
	if err != nil {
		t.Fatalf("GenerateAllMissingInvoices rerun: %v", err)
	}
	if rerun.Generated != 0 || rerun.Skipped != 9 || rerun.Errors != 1 {
		t.Fatalf("expected rerun to skip the 9 invoiced bookings, got %+v", rerun)
	}
}

func TestGenerateAllMissingInvoices_IgnoresUnbillableBookings(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeGateway(), &fakePublisher{})

	cancelled := longTermBooking("b-cancelled", "c-1", "8000", "", day(2026, time.October, 1))
	cancelled.Status = domain.BookingStatusCancelled
	repo.addBooking(cancelled)
	repo.addBooking(longTermBooking("b-future", "c-2", "8000", "", day(2026, time.November, 1)))

	summary, err := svc.GenerateAllMissingInvoices(context.Background(), day(2026, time.October, 15))
	if err != nil {
		t.Fatalf("GenerateAllMissingInvoices: %v", err)
	}
	if summary.Generated+summary.Skipped+summary.Errors != 0 {
		t.Fatalf("expected no bookings to be considered, got %+v", summary)
	}
}
