package domain

import "time"

// Default days of month for recurring billing.
const (
	DefaultAuthorizationDay = 25
	DefaultCaptureDay       = 1
)

// Date truncates t to a calendar date. Dates are carried as UTC midnight of the
// local calendar day so they compare and persist as DATE values.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// BillingMonth returns the first day of the calendar month containing t.
func BillingMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// dayInMonth builds a date on the given day, clamped to the month's last day.
func dayInMonth(year int, month time.Month, day int) time.Time {
	if day < 1 {
		day = 1
	}
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// FirstCycleDates returns the first authorization and capture dates for a
// schedule created on asOf: the authorization day of the following month and
// the capture day of the month after that.
func FirstCycleDates(asOf time.Time, authorizationDay, captureDay int) (time.Time, time.Time) {
	month := BillingMonth(asOf)
	next := month.AddDate(0, 1, 0)
	after := month.AddDate(0, 2, 0)
	return dayInMonth(next.Year(), next.Month(), authorizationDay),
		dayInMonth(after.Year(), after.Month(), captureDay)
}

// NextCycle returns a copy of the schedule advanced by one month. Days are
// re-applied from the schedule so a clamped February date recovers in March.
func NextCycle(s PaymentSchedule) PaymentSchedule {
	authMonth := BillingMonth(s.NextAuthorizationDate).AddDate(0, 1, 0)
	captureMonth := BillingMonth(s.NextCaptureDate).AddDate(0, 1, 0)
	s.NextAuthorizationDate = dayInMonth(authMonth.Year(), authMonth.Month(), s.AuthorizationDay)
	s.NextCaptureDate = dayInMonth(captureMonth.Year(), captureMonth.Month(), s.CaptureDay)
	return s
}

// AuthorizationDue reports whether the schedule's current cycle can be authorized.
func (s PaymentSchedule) AuthorizationDue(asOf time.Time) bool {
	return s.Status == ScheduleStatusActive && !s.NextAuthorizationDate.After(Date(asOf))
}

// CaptureDue reports whether the schedule's current cycle can be captured.
func (s PaymentSchedule) CaptureDue(asOf time.Time) bool {
	return s.Status == ScheduleStatusActive && !s.NextCaptureDate.After(Date(asOf))
}
