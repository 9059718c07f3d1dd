package domain

import "errors"

// Error classes surfaced by the billing engine. Callers match them with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNegativeEarnings  = errors.New("negative nanny earnings")
	ErrInvoiceGeneration = errors.New("invoice generation failed")
	ErrGateway           = errors.New("payment gateway error")
	ErrReferrerNotFound  = errors.New("referrer not found")
	ErrNotFound          = errors.New("not found")
	ErrNoAuthorization   = errors.New("no authorization for billing cycle")
	ErrNoPaymentMethod   = errors.New("no stored payment method")
	ErrScheduleNotActive = errors.New("payment schedule is not active")
	ErrSweepInProgress   = errors.New("sweep already in progress")
)
