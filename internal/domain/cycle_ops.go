package domain

import (
	"context"
	"time"
)

// InvoiceBundle is everything written when an invoice is generated. The
// financials, invoice and optional schedule are persisted atomically.
type InvoiceBundle struct {
	Financials BookingFinancials
	Invoice    Invoice
	Schedule   *PaymentSchedule
}

// AuthorizeFunc performs the gateway authorization for a locked schedule and
// returns the audit row to append. It runs inside the schedule's transaction.
// attempt counts from 1 within the cycle. A returned error aborts the
// transaction without writing anything.
type AuthorizeFunc func(ctx context.Context, schedule PaymentSchedule, invoice *Invoice, attempt int) (PaymentAuthorization, error)

// CaptureFunc settles a previously authorized charge for a locked schedule. It
// runs inside the schedule's transaction.
type CaptureFunc func(ctx context.Context, schedule PaymentSchedule, auth PaymentAuthorization) (CaptureResult, error)

// CaptureResult tells the store how to finish a capture attempt.
type CaptureResult struct {
	Captured      bool
	TransactionID string
	FailureReason string
	PaidDate      time.Time
	// Next is the schedule advanced to the following cycle; only applied on success.
	Next PaymentSchedule
}

// CaptureOutcome is what the store persisted for a capture attempt.
type CaptureOutcome struct {
	Authorization PaymentAuthorization
	Invoice       *Invoice
	Schedule      PaymentSchedule
	Captured      bool
}
