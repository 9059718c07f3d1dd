package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/nannygold/billing-service/internal/domain"
)

// FormatInvoiceNumber renders a human-readable invoice number from the issue
// month and a sequence value, e.g. INV-202610-000042.
func FormatInvoiceNumber(issueDate time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%06d", issueDate.Format("200601"), seq)
}

// FindInvoiceForMonth returns the booking's invoice for the billing month, if any.
func (r *Repository) FindInvoiceForMonth(ctx context.Context, bookingID string, month time.Time) (*domain.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE booking_id = $1 AND billing_month = $2::DATE`
	inv, err := scanInvoice(r.db.QueryRow(ctx, query, bookingID, domain.BillingMonth(month)))
	if err != nil {
		return nil, notFound(err)
	}
	return inv, nil
}

// CountInvoices returns how many invoices a booking has ever been issued.
func (r *Repository) CountInvoices(ctx context.Context, bookingID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM invoices WHERE booking_id = $1`, bookingID).Scan(&count)
	return count, err
}

// CreateInvoiceBundle upserts the booking financials, inserts the invoice with a
// freshly minted number and refreshes the payment schedule in one transaction.
// When another writer already invoiced the month the transaction is rolled back
// and the existing invoice is returned with created=false.
func (r *Repository) CreateInvoiceBundle(ctx context.Context, bundle domain.InvoiceBundle) (*domain.Invoice, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	f := bundle.Financials
	if _, err := tx.Exec(ctx, `
		INSERT INTO booking_financials (
			booking_id, fixed_fee, commission_percent, commission_amount,
			admin_total_revenue, nanny_earnings, gross_amount
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_id) DO UPDATE
		SET fixed_fee = EXCLUDED.fixed_fee,
		    commission_percent = EXCLUDED.commission_percent,
		    commission_amount = EXCLUDED.commission_amount,
		    admin_total_revenue = EXCLUDED.admin_total_revenue,
		    nanny_earnings = EXCLUDED.nanny_earnings,
		    gross_amount = EXCLUDED.gross_amount,
		    updated_at = NOW()
	`, f.BookingID, f.FixedFee, f.CommissionPercent, f.CommissionAmount,
		f.AdminTotalRevenue, f.NannyEarnings, f.GrossAmount); err != nil {
		return nil, false, fmt.Errorf("upsert booking financials: %w", err)
	}

	inv := bundle.Invoice
	var seq int64
	if err := tx.QueryRow(ctx, `SELECT nextval('invoice_number_seq')`).Scan(&seq); err != nil {
		return nil, false, fmt.Errorf("allocate invoice number: %w", err)
	}
	inv.InvoiceNumber = FormatInvoiceNumber(inv.IssueDate, seq)

	created, err := scanInvoice(tx.QueryRow(ctx, `
		INSERT INTO invoices (
			booking_id, client_id, invoice_number, amount, currency,
			billing_month, issue_date, due_date, status
		)
		VALUES ($1, $2, $3, $4, $5, $6::DATE, $7::DATE, $8::DATE, 'pending')
		ON CONFLICT (booking_id, billing_month) DO NOTHING
		RETURNING `+invoiceColumns,
		inv.BookingID, inv.ClientID, inv.InvoiceNumber, inv.Amount, inv.Currency,
		domain.BillingMonth(inv.BillingMonth), inv.IssueDate, inv.DueDate,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, findErr := r.FindInvoiceForMonth(ctx, inv.BookingID, inv.BillingMonth)
		if findErr != nil {
			return nil, false, fmt.Errorf("load concurrently created invoice: %w", findErr)
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert invoice: %w", err)
	}

	if s := bundle.Schedule; s != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO payment_schedules (
				booking_id, client_id, amount, currency, authorization_day, capture_day,
				next_authorization_date, next_capture_date, status
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7::DATE, $8::DATE, 'active')
			ON CONFLICT (booking_id) DO UPDATE
			SET amount = EXCLUDED.amount,
			    currency = EXCLUDED.currency,
			    updated_at = NOW()
		`, s.BookingID, s.ClientID, s.Amount, s.Currency, s.AuthorizationDay, s.CaptureDay,
			s.NextAuthorizationDate, s.NextCaptureDate); err != nil {
			return nil, false, fmt.Errorf("upsert payment schedule: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return created, true, nil
}

// ListInvoicesByClient retrieves a client's most recent invoices.
func (r *Repository) ListInvoicesByClient(ctx context.Context, clientID string, limit int) ([]domain.Invoice, error) {
	query := `
		SELECT ` + invoiceColumns + `
		FROM invoices
		WHERE client_id = $1
		ORDER BY issue_date DESC, created_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, clientID, limit)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

// MarkInvoicesOverdue flips pending invoices whose due date has passed. An
// invoice stays pending while its booking's active schedule has not yet reached
// its capture date, since the card has not been charged for it.
func (r *Repository) MarkInvoicesOverdue(ctx context.Context, asOf time.Time) ([]domain.Invoice, error) {
	rows, err := r.db.Query(ctx, markOverdueSQL, asOf)
	if err != nil {
		return nil, err
	}
	return collectInvoices(rows)
}

const markOverdueSQL = `
	UPDATE invoices i
	SET status = 'overdue',
	    updated_at = NOW()
	WHERE i.status = 'pending'
	  AND i.due_date < $1::DATE
	  AND NOT EXISTS (
		SELECT 1
		FROM payment_schedules s
		WHERE s.booking_id = i.booking_id
		  AND s.status = 'active'
		  AND s.next_capture_date >= $1::DATE
	  )
	RETURNING ` + invoiceColumns

// CancelOpenInvoices cancels a booking's unpaid invoices.
func (r *Repository) CancelOpenInvoices(ctx context.Context, bookingID string) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE invoices
		SET status = 'cancelled',
		    updated_at = NOW()
		WHERE booking_id = $1
		  AND status IN ('pending', 'overdue')
	`, bookingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
