package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/nannygold/billing-service/internal/domain"
)

// GetClientReferralCode returns the referral code a client signed up with, or
// an empty string when they used none.
func (r *Repository) GetClientReferralCode(ctx context.Context, clientID string) (string, error) {
	var code *string
	err := r.db.QueryRow(ctx, `SELECT referral_code_used FROM client_profiles WHERE id = $1`, clientID).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if code == nil {
		return "", nil
	}
	return strings.TrimSpace(*code), nil
}

// FindReferrerByCode resolves an active referral participant by code.
func (r *Repository) FindReferrerByCode(ctx context.Context, code string) (*domain.Referrer, error) {
	var ref domain.Referrer
	err := r.db.QueryRow(ctx, `
		SELECT user_id, referral_code, active
		FROM referral_participants
		WHERE UPPER(referral_code) = UPPER($1)
		  AND active = TRUE
	`, code).Scan(&ref.UserID, &ref.ReferralCode, &ref.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrReferrerNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// GetReferralLogByBooking returns the reward already logged for a booking.
func (r *Repository) GetReferralLogByBooking(ctx context.Context, bookingID string) (*domain.ReferralLog, error) {
	l, err := scanReferralLog(r.db.QueryRow(ctx, `SELECT `+referralLogColumns+` FROM referral_logs WHERE booking_id = $1`, bookingID))
	if err != nil {
		return nil, notFound(err)
	}
	return l, nil
}

// RecordReferralReward appends the referral log and increments the referrer's
// balance in one transaction. The increment is a single upsert so concurrent
// rewards for the same referrer never lose an update. When the booking already
// has a log nothing is written and created is false.
func (r *Repository) RecordReferralReward(ctx context.Context, entry domain.ReferralLog) (*domain.ReferralLog, bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback(ctx)

	saved, err := scanReferralLog(tx.QueryRow(ctx, `
		INSERT INTO referral_logs (
			referrer_id, referred_id, booking_id, referral_code,
			placement_fee, reward_amount, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING `+referralLogColumns,
		entry.ReferrerID, entry.ReferredID, entry.BookingID, entry.ReferralCode,
		entry.PlacementFee, entry.RewardAmount, entry.Status,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		_ = tx.Rollback(ctx)
		existing, findErr := r.GetReferralLogByBooking(ctx, entry.BookingID)
		if findErr != nil {
			return nil, false, findErr
		}
		return existing, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert referral log: %w", err)
	}

	if _, err := tx.Exec(ctx, incrementRewardBalanceSQL, entry.ReferrerID, entry.RewardAmount); err != nil {
		return nil, false, fmt.Errorf("increment reward balance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, false, err
	}
	return saved, true, nil
}

// incrementRewardBalanceSQL adds to the stored balance inside one statement,
// so concurrent rewards for the same referrer serialize on the row and none
// is lost.
const incrementRewardBalanceSQL = `
	INSERT INTO reward_balances (user_id, total_earned, available_balance)
	VALUES ($1, $2, $2)
	ON CONFLICT (user_id) DO UPDATE
	SET total_earned = reward_balances.total_earned + EXCLUDED.total_earned,
	    available_balance = reward_balances.available_balance + EXCLUDED.available_balance,
	    updated_at = NOW()
`

// GetRewardBalance returns a referrer's balance. Users with no rewards get a
// zero balance rather than ErrNotFound.
func (r *Repository) GetRewardBalance(ctx context.Context, userID string) (*domain.RewardBalance, error) {
	bal := domain.RewardBalance{UserID: userID}
	err := r.db.QueryRow(ctx, `
		SELECT total_earned, total_redeemed, available_balance, updated_at
		FROM reward_balances
		WHERE user_id = $1
	`, userID).Scan(&bal.TotalEarned, &bal.TotalRedeemed, &bal.AvailableBalance, &bal.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &bal, nil
	}
	if err != nil {
		return nil, err
	}
	return &bal, nil
}

const referralLogColumns = `
	id, referrer_id, referred_id, booking_id, referral_code,
	placement_fee, reward_amount, status, created_at`

func scanReferralLog(row rowScanner) (*domain.ReferralLog, error) {
	var l domain.ReferralLog
	if err := row.Scan(
		&l.ID,
		&l.ReferrerID,
		&l.ReferredID,
		&l.BookingID,
		&l.ReferralCode,
		&l.PlacementFee,
		&l.RewardAmount,
		&l.Status,
		&l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}
