/**
 * @description
 * Booking records as seen by the billing engine. Bookings are owned by the
 * booking subsystem; billing only reads them and reacts to their status.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Booking types. Every type other than long_term belongs to the short-term family.
const (
	BookingTypeLongTerm         = "long_term"
	BookingTypeShortTerm        = "short_term"
	BookingTypeDateNight        = "date_night"
	BookingTypeEmergency        = "emergency"
	BookingTypeTemporarySupport = "temporary_support"
	BookingTypeSchoolHoliday    = "school_holiday"
)

// Booking statuses.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusActive    = "active"
	BookingStatusCompleted = "completed"
	BookingStatusCancelled = "cancelled"
)

// Booking identifies a client–nanny engagement.
type Booking struct {
	ID               string           `json:"id"`
	ClientID         string           `json:"client_id"`
	NannyID          *string          `json:"nanny_id,omitempty"`
	BookingType      string           `json:"booking_type"`
	StartDate        time.Time        `json:"start_date"`
	EndDate          *time.Time       `json:"end_date,omitempty"`
	TotalMonthlyCost *decimal.Decimal `json:"total_monthly_cost,omitempty"`
	TotalAmount      decimal.Decimal  `json:"total_amount"`
	HomeSize         *string          `json:"home_size,omitempty"`
	Status           string           `json:"status"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// IsRecurring reports whether the booking is billed monthly.
func (b Booking) IsRecurring() bool {
	return b.BookingType == BookingTypeLongTerm
}

// IsBillable reports whether the booking can receive invoices on the given day.
func (b Booking) IsBillable(asOf time.Time) bool {
	if b.Status != BookingStatusConfirmed && b.Status != BookingStatusActive {
		return false
	}
	return !b.StartDate.After(asOf)
}

// DurationDays returns the inclusive number of calendar days the booking spans.
// Open-ended or inverted ranges count as a single day.
func (b Booking) DurationDays() int {
	if b.EndDate == nil {
		return 1
	}
	start := time.Date(b.StartDate.Year(), b.StartDate.Month(), b.StartDate.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(b.EndDate.Year(), b.EndDate.Month(), b.EndDate.Day(), 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours()/24) + 1
	if days < 1 {
		return 1
	}
	return days
}
