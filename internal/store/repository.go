/**
 * @description
 * Data access layer for the billing service. All money columns are NUMERIC and
 * travel as shopspring decimals; dates are DATE columns carried as UTC midnight.
 */
package store

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nannygold/billing-service/internal/domain"
)

// Repository handles database operations for billing.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// rowScanner is satisfied by pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const bookingColumns = `
	id, client_id, nanny_id, booking_type, start_date, end_date,
	total_monthly_cost, total_amount, home_size, status, created_at, updated_at`

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	if err := row.Scan(
		&b.ID,
		&b.ClientID,
		&b.NannyID,
		&b.BookingType,
		&b.StartDate,
		&b.EndDate,
		&b.TotalMonthlyCost,
		&b.TotalAmount,
		&b.HomeSize,
		&b.Status,
		&b.CreatedAt,
		&b.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &b, nil
}

const financialsColumns = `
	booking_id, fixed_fee, commission_percent, commission_amount,
	admin_total_revenue, nanny_earnings, gross_amount, created_at, updated_at`

func scanFinancials(row rowScanner) (*domain.BookingFinancials, error) {
	var f domain.BookingFinancials
	if err := row.Scan(
		&f.BookingID,
		&f.FixedFee,
		&f.CommissionPercent,
		&f.CommissionAmount,
		&f.AdminTotalRevenue,
		&f.NannyEarnings,
		&f.GrossAmount,
		&f.CreatedAt,
		&f.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &f, nil
}

const invoiceColumns = `
	id, booking_id, client_id, invoice_number, amount, currency, billing_month,
	issue_date, due_date, status, paid_date, payment_reference, created_at, updated_at`

func scanInvoice(row rowScanner) (*domain.Invoice, error) {
	var inv domain.Invoice
	if err := row.Scan(
		&inv.ID,
		&inv.BookingID,
		&inv.ClientID,
		&inv.InvoiceNumber,
		&inv.Amount,
		&inv.Currency,
		&inv.BillingMonth,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.Status,
		&inv.PaidDate,
		&inv.PaymentReference,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &inv, nil
}

func collectInvoices(rows pgx.Rows) ([]domain.Invoice, error) {
	defer rows.Close()

	var invoices []domain.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

const scheduleColumns = `
	id, booking_id, client_id, amount, currency, authorization_day, capture_day,
	next_authorization_date, next_capture_date, status, created_at, updated_at`

func scanSchedule(row rowScanner) (*domain.PaymentSchedule, error) {
	var s domain.PaymentSchedule
	if err := row.Scan(
		&s.ID,
		&s.BookingID,
		&s.ClientID,
		&s.Amount,
		&s.Currency,
		&s.AuthorizationDay,
		&s.CaptureDay,
		&s.NextAuthorizationDate,
		&s.NextCaptureDate,
		&s.Status,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]domain.PaymentSchedule, error) {
	defer rows.Close()

	var schedules []domain.PaymentSchedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, *s)
	}
	return schedules, rows.Err()
}

const authorizationColumns = `
	id, user_id, booking_id, schedule_id, invoice_id, cycle_date, amount,
	authorization_code, status, paystack_reference, transaction_id, failure_reason,
	authorized_at, captured_at, created_at`

func scanAuthorization(row rowScanner) (*domain.PaymentAuthorization, error) {
	var a domain.PaymentAuthorization
	if err := row.Scan(
		&a.ID,
		&a.UserID,
		&a.BookingID,
		&a.ScheduleID,
		&a.InvoiceID,
		&a.CycleDate,
		&a.Amount,
		&a.AuthorizationCode,
		&a.Status,
		&a.PaystackReference,
		&a.TransactionID,
		&a.FailureReason,
		&a.AuthorizedAt,
		&a.CapturedAt,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &a, nil
}
