package domain

import "time"

// Routing keys published on the billing exchange.
const (
	EventInvoiceGenerated           = "invoice.generated"
	EventInvoiceOverdue             = "invoice.overdue"
	EventPaymentAuthorized          = "payment.authorized"
	EventPaymentAuthorizationFailed = "payment.authorization_failed"
	EventPaymentCaptured            = "payment.captured"
	EventPaymentCaptureFailed       = "payment.capture_failed"
	EventReferralRewardAccrued      = "referral.reward_accrued"
	EventBookingConfirmed           = "booking.confirmed"
	EventBookingCancelled           = "booking.cancelled"
	EventBookingCompleted           = "booking.completed"
)

// BookingEvent is the payload emitted by the booking subsystem on status changes.
type BookingEvent struct {
	BookingID string    `json:"booking_id"`
	ClientID  string    `json:"client_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// BillingEvent is the payload published for invoice and payment transitions.
type BillingEvent struct {
	BookingID     string    `json:"booking_id"`
	ClientID      string    `json:"client_id"`
	InvoiceID     string    `json:"invoice_id,omitempty"`
	InvoiceNumber string    `json:"invoice_number,omitempty"`
	ScheduleID    string    `json:"schedule_id,omitempty"`
	Amount        string    `json:"amount"`
	Currency      string    `json:"currency,omitempty"`
	Status        string    `json:"status"`
	Reference     string    `json:"reference,omitempty"`
	FailureReason *string   `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
