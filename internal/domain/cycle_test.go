package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFirstCycleDates(t *testing.T) {
	tests := []struct {
		name        string
		asOf        time.Time
		authDay     int
		captureDay  int
		wantAuth    time.Time
		wantCapture time.Time
	}{
		{name: "mid month", asOf: date(2026, time.October, 15), authDay: 25, captureDay: 1, wantAuth: date(2026, time.November, 25), wantCapture: date(2026, time.December, 1)},
		{name: "year rollover", asOf: date(2026, time.November, 30), authDay: 25, captureDay: 1, wantAuth: date(2026, time.December, 25), wantCapture: date(2027, time.January, 1)},
		{name: "clamped to february", asOf: date(2027, time.January, 31), authDay: 31, captureDay: 1, wantAuth: date(2027, time.February, 28), wantCapture: date(2027, time.March, 1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, capture := FirstCycleDates(tt.asOf, tt.authDay, tt.captureDay)
			if !auth.Equal(tt.wantAuth) || !capture.Equal(tt.wantCapture) {
				t.Fatalf("expected %s / %s, got %s / %s", tt.wantAuth, tt.wantCapture, auth, capture)
			}
		})
	}
}

func TestNextCycleRecoversClampedDay(t *testing.T) {
	s := PaymentSchedule{
		AuthorizationDay:      31,
		CaptureDay:            1,
		NextAuthorizationDate: date(2027, time.February, 28),
		NextCaptureDate:       date(2027, time.March, 1),
	}

	next := NextCycle(s)
	if !next.NextAuthorizationDate.Equal(date(2027, time.March, 31)) {
		t.Fatalf("expected authorization on 2027-03-31, got %s", next.NextAuthorizationDate)
	}
	if !next.NextCaptureDate.Equal(date(2027, time.April, 1)) {
		t.Fatalf("expected capture on 2027-04-01, got %s", next.NextCaptureDate)
	}
	if !s.NextAuthorizationDate.Equal(date(2027, time.February, 28)) {
		t.Fatal("NextCycle must not mutate its input")
	}
}

func TestScheduleDue(t *testing.T) {
	s := PaymentSchedule{
		Status:                ScheduleStatusActive,
		NextAuthorizationDate: date(2026, time.November, 25),
		NextCaptureDate:       date(2026, time.December, 1),
	}

	if s.AuthorizationDue(date(2026, time.November, 24)) {
		t.Fatal("authorization must not be due before its date")
	}
	if !s.AuthorizationDue(time.Date(2026, time.November, 25, 23, 59, 0, 0, time.UTC)) {
		t.Fatal("authorization must be due on its date")
	}
	if !s.CaptureDue(date(2026, time.December, 3)) {
		t.Fatal("capture must stay due after its date")
	}

	s.Status = ScheduleStatusPaused
	if s.AuthorizationDue(date(2026, time.December, 1)) || s.CaptureDue(date(2026, time.December, 1)) {
		t.Fatal("paused schedules are never due")
	}
}

func TestBookingDurationAndBillable(t *testing.T) {
	end := date(2026, time.October, 12)
	b := Booking{StartDate: date(2026, time.October, 10), EndDate: &end, Status: BookingStatusConfirmed}
	if got := b.DurationDays(); got != 3 {
		t.Fatalf("expected 3 days, got %d", got)
	}
	if !b.IsBillable(date(2026, time.October, 10)) || b.IsBillable(date(2026, time.October, 9)) {
		t.Fatal("booking becomes billable on its start date")
	}

	inverted := date(2026, time.October, 1)
	b.EndDate = &inverted
	if got := b.DurationDays(); got != 1 {
		t.Fatalf("expected inverted range to count as 1 day, got %d", got)
	}

	b.Status = BookingStatusCompleted
	if b.IsBillable(date(2026, time.October, 20)) {
		t.Fatal("completed bookings are not billable")
	}
}
