package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nannygold/billing-service/internal/domain"
)

// ListSchedulesDueForAuthorization returns active schedules whose current cycle
// has reached its authorization date and has no successful authorization yet.
func (r *Repository) ListSchedulesDueForAuthorization(ctx context.Context, asOf time.Time) ([]domain.PaymentSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM payment_schedules s
		WHERE s.status = 'active'
		  AND s.next_authorization_date <= $1::DATE
		  AND NOT EXISTS (
			SELECT 1
			FROM payment_authorizations a
			WHERE a.schedule_id = s.id
			  AND a.cycle_date = s.next_authorization_date
			  AND a.status IN ('authorized', 'captured')
		  )
		ORDER BY s.next_authorization_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// ListSchedulesDueForCapture returns active schedules whose capture date has
// arrived. Schedules without an authorization are included so the driver can
// report them as skipped.
func (r *Repository) ListSchedulesDueForCapture(ctx context.Context, asOf time.Time) ([]domain.PaymentSchedule, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM payment_schedules
		WHERE status = 'active'
		  AND next_capture_date <= $1::DATE
		ORDER BY next_capture_date ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	return collectSchedules(rows)
}

// GetScheduleByBookingID retrieves the payment schedule of a booking.
func (r *Repository) GetScheduleByBookingID(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM payment_schedules WHERE booking_id = $1`
	s, err := scanSchedule(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// SetScheduleStatus changes a booking's schedule status. Cancelled schedules
// are terminal and are left untouched.
func (r *Repository) SetScheduleStatus(ctx context.Context, bookingID, status string) (*domain.PaymentSchedule, error) {
	query := `
		UPDATE payment_schedules
		SET status = $2,
		    updated_at = NOW()
		WHERE booking_id = $1
		  AND status <> 'cancelled'
		RETURNING ` + scheduleColumns
	s, err := scanSchedule(r.db.QueryRow(ctx, query, bookingID, status))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// AuthorizeCycle locks the schedule row, re-checks that the current cycle still
// needs an authorization and appends the row produced by authorize. It returns
// nil without calling authorize when the cycle is already authorized or not due.
// Writes after the gateway call ignore ctx cancellation so an attempt that
// reached the gateway is always recorded.
func (r *Repository) AuthorizeCycle(ctx context.Context, scheduleID string, asOf time.Time, authorize domain.AuthorizeFunc) (*domain.PaymentAuthorization, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	schedule, err := lockSchedule(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.AuthorizationDue(asOf) {
		return nil, nil
	}

	var settled, attempts int
	if err := tx.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('authorized', 'captured')),
			COUNT(*)
		FROM payment_authorizations
		WHERE schedule_id = $1
		  AND cycle_date = $2::DATE
	`, schedule.ID, schedule.CycleDate()).Scan(&settled, &attempts); err != nil {
		return nil, err
	}
	if settled > 0 {
		return nil, nil
	}

	invoice, err := scanInvoice(tx.QueryRow(ctx, `
		SELECT `+invoiceColumns+`
		FROM invoices
		WHERE booking_id = $1
		  AND status IN ('pending', 'overdue')
		ORDER BY issue_date ASC
		LIMIT 1
	`, schedule.BookingID))
	if errors.Is(err, pgx.ErrNoRows) {
		invoice, err = nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load open invoice: %w", err)
	}

	auth, err := authorize(ctx, *schedule, invoice, attempts+1)
	if err != nil {
		return nil, err
	}

	writeCtx := context.WithoutCancel(ctx)
	saved, err := insertAuthorization(writeCtx, tx, auth)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(writeCtx); err != nil {
		return nil, err
	}
	return saved, nil
}

// CaptureCycle locks the schedule and its authorized row for the current cycle,
// runs capture and persists the result: on success the authorization becomes
// captured, the linked invoice paid and the schedule advances; on failure a
// failed audit row is appended and the schedule stays due. Returns
// domain.ErrNoAuthorization when the cycle has no authorized row, and nil when
// the capture date has not arrived. As with AuthorizeCycle, the writes after the
// gateway call ignore ctx cancellation.
func (r *Repository) CaptureCycle(ctx context.Context, scheduleID string, asOf time.Time, capture domain.CaptureFunc) (*domain.CaptureOutcome, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	schedule, err := lockSchedule(ctx, tx, scheduleID)
	if err != nil {
		return nil, err
	}
	if !schedule.CaptureDue(asOf) {
		return nil, nil
	}

	auth, err := scanAuthorization(tx.QueryRow(ctx, `
		SELECT `+authorizationColumns+`
		FROM payment_authorizations
		WHERE schedule_id = $1
		  AND cycle_date = $2::DATE
		  AND status = 'authorized'
		ORDER BY created_at DESC
		LIMIT 1
		FOR UPDATE
	`, schedule.ID, schedule.CycleDate()))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNoAuthorization
	}
	if err != nil {
		return nil, err
	}

	result, err := capture(ctx, *schedule, *auth)
	if err != nil {
		return nil, err
	}
	ctx = context.WithoutCancel(ctx)

	outcome := &domain.CaptureOutcome{Schedule: *schedule, Captured: result.Captured}
	if !result.Captured {
		failed := *auth
		failed.ID = ""
		failed.Status = domain.AuthorizationStatusFailed
		failed.FailureReason = &result.FailureReason
		failed.CapturedAt = nil
		saved, err := insertAuthorization(ctx, tx, failed)
		if err != nil {
			return nil, err
		}
		outcome.Authorization = *saved
		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}
		return outcome, nil
	}

	var txID *string
	if result.TransactionID != "" {
		txID = &result.TransactionID
	}
	captured, err := scanAuthorization(tx.QueryRow(ctx, `
		UPDATE payment_authorizations
		SET status = 'captured',
		    captured_at = NOW(),
		    transaction_id = COALESCE($2, transaction_id)
		WHERE id = $1
		RETURNING `+authorizationColumns,
		auth.ID, txID))
	if err != nil {
		return nil, fmt.Errorf("mark authorization captured: %w", err)
	}
	outcome.Authorization = *captured

	if auth.InvoiceID != nil {
		inv, err := scanInvoice(tx.QueryRow(ctx, `
			UPDATE invoices
			SET status = 'paid',
			    paid_date = $2::DATE,
			    payment_reference = $3,
			    updated_at = NOW()
			WHERE id = $1
			  AND status IN ('pending', 'overdue')
			RETURNING `+invoiceColumns,
			*auth.InvoiceID, result.PaidDate, auth.PaystackReference))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("mark invoice paid: %w", err)
		}
		outcome.Invoice = inv
	}

	next, err := scanSchedule(tx.QueryRow(ctx, `
		UPDATE payment_schedules
		SET next_authorization_date = $2::DATE,
		    next_capture_date = $3::DATE,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+scheduleColumns,
		schedule.ID, result.Next.NextAuthorizationDate, result.Next.NextCaptureDate))
	if err != nil {
		return nil, fmt.Errorf("advance payment schedule: %w", err)
	}
	outcome.Schedule = *next

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return outcome, nil
}

// ListAuthorizationsByUser returns a client's payment history, newest first.
func (r *Repository) ListAuthorizationsByUser(ctx context.Context, userID string, limit int) ([]domain.PaymentAuthorization, error) {
	query := `
		SELECT ` + authorizationColumns + `
		FROM payment_authorizations
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var auths []domain.PaymentAuthorization
	for rows.Next() {
		a, err := scanAuthorization(rows)
		if err != nil {
			return nil, err
		}
		auths = append(auths, *a)
	}
	return auths, rows.Err()
}

func lockSchedule(ctx context.Context, tx pgx.Tx, scheduleID string) (*domain.PaymentSchedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM payment_schedules WHERE id = $1 FOR UPDATE`
	s, err := scanSchedule(tx.QueryRow(ctx, query, scheduleID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func insertAuthorization(ctx context.Context, tx pgx.Tx, a domain.PaymentAuthorization) (*domain.PaymentAuthorization, error) {
	saved, err := scanAuthorization(tx.QueryRow(ctx, `
		INSERT INTO payment_authorizations (
			user_id, booking_id, schedule_id, invoice_id, cycle_date, amount,
			authorization_code, status, paystack_reference, transaction_id,
			failure_reason, authorized_at, captured_at
		)
		VALUES ($1, $2, $3, $4, $5::DATE, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+authorizationColumns,
		a.UserID, a.BookingID, a.ScheduleID, a.InvoiceID, a.CycleDate, a.Amount,
		a.AuthorizationCode, a.Status, a.PaystackReference, a.TransactionID,
		a.FailureReason, a.AuthorizedAt, a.CapturedAt,
	))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("cycle %s already authorized: %w", a.CycleDate.Format(time.DateOnly), err)
		}
		return nil, fmt.Errorf("insert payment authorization: %w", err)
	}
	return saved, nil
}
