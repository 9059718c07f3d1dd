/**
 * @description
 * Domain models for booking billing: financial splits, invoices, recurring
 * payment schedules and the gateway authorization audit trail.
 */
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Invoice statuses.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusOverdue   = "overdue"
	InvoiceStatusCancelled = "cancelled"
)

// Payment schedule statuses.
const (
	ScheduleStatusActive    = "active"
	ScheduleStatusPaused    = "paused"
	ScheduleStatusCancelled = "cancelled"
)

// Payment authorization statuses.
const (
	AuthorizationStatusAuthorized = "authorized"
	AuthorizationStatusCaptured   = "captured"
	AuthorizationStatusFailed     = "failed"
)

// BookingFinancials is the persisted revenue split for a booking.
type BookingFinancials struct {
	BookingID         string          `json:"booking_id"`
	FixedFee          decimal.Decimal `json:"fixed_fee"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	CommissionAmount  decimal.Decimal `json:"commission_amount"`
	AdminTotalRevenue decimal.Decimal `json:"admin_total_revenue"`
	NannyEarnings     decimal.Decimal `json:"nanny_earnings"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// Invoice is one billing period's charge for a booking.
type Invoice struct {
	ID               string          `json:"id"`
	BookingID        string          `json:"booking_id"`
	ClientID         string          `json:"client_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	BillingMonth     time.Time       `json:"billing_month"`
	IssueDate        time.Time       `json:"issue_date"`
	DueDate          time.Time       `json:"due_date"`
	Status           string          `json:"status"`
	PaidDate         *time.Time      `json:"paid_date,omitempty"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PaymentSchedule controls the recurring monthly billing of a booking.
type PaymentSchedule struct {
	ID                    string          `json:"id"`
	BookingID             string          `json:"booking_id"`
	ClientID              string          `json:"client_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	AuthorizationDay      int             `json:"authorization_day"`
	CaptureDay            int             `json:"capture_day"`
	NextAuthorizationDate time.Time       `json:"next_authorization_date"`
	NextCaptureDate       time.Time       `json:"next_capture_date"`
	Status                string          `json:"status"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// CycleDate identifies the billing cycle the schedule is currently in.
func (s PaymentSchedule) CycleDate() time.Time {
	return s.NextAuthorizationDate
}

// PaymentAuthorization is one gateway authorization or capture attempt.
type PaymentAuthorization struct {
	ID                string          `json:"id"`
	UserID            string          `json:"user_id"`
	BookingID         string          `json:"booking_id"`
	ScheduleID        string          `json:"schedule_id"`
	InvoiceID         *string         `json:"invoice_id,omitempty"`
	CycleDate         time.Time       `json:"cycle_date"`
	Amount            decimal.Decimal `json:"amount"`
	AuthorizationCode string          `json:"authorization_code"`
	Status            string          `json:"status"`
	PaystackReference string          `json:"paystack_reference"`
	TransactionID     *string         `json:"transaction_id,omitempty"`
	FailureReason     *string         `json:"failure_reason,omitempty"`
	AuthorizedAt      *time.Time      `json:"authorized_at,omitempty"`
	CapturedAt        *time.Time      `json:"captured_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

// PaymentMethod is a client's reusable gateway authorization.
type PaymentMethod struct {
	ClientID          string    `json:"client_id"`
	Email             string    `json:"email"`
	AuthorizationCode string    `json:"-"`
	CardLast4         *string   `json:"card_last4,omitempty"`
	CardBrand         *string   `json:"card_brand,omitempty"`
	Reusable          bool      `json:"reusable"`
	UpdatedAt         time.Time `json:"updated_at"`
}
