package store

import (
	"context"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
)

// GetBooking retrieves a booking by ID.
func (r *Repository) GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	b, err := scanBooking(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return b, nil
}

// ListBillableBookings returns confirmed or active bookings that have started by asOf.
func (r *Repository) ListBillableBookings(ctx context.Context, asOf time.Time) ([]domain.Booking, error) {
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE status IN ('confirmed', 'active')
		  AND start_date <= $1::DATE
		ORDER BY start_date ASC, id ASC
	`
	rows, err := r.db.Query(ctx, query, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// GetFinancials retrieves the persisted revenue split for a booking.
func (r *Repository) GetFinancials(ctx context.Context, bookingID string) (*domain.BookingFinancials, error) {
	query := `SELECT ` + financialsColumns + ` FROM booking_financials WHERE booking_id = $1`
	f, err := scanFinancials(r.db.QueryRow(ctx, query, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return f, nil
}

// UpdateBookingStatus moves a booking to a new lifecycle status.
func (r *Repository) UpdateBookingStatus(ctx context.Context, bookingID, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`, bookingID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
