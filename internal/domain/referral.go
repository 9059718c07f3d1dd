package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Referral log statuses.
const (
	ReferralStatusPending = "Pending"
	ReferralStatusPaid    = "Paid"
)

// Outcomes of a referral tracking request.
const (
	ReferralOutcomeAccrued        = "accrued"
	ReferralOutcomeNoReferral     = "no_referral"
	ReferralOutcomeAlreadyTracked = "already_tracked"
)

// Referrer is an active holder of a referral code.
type Referrer struct {
	UserID       string `json:"user_id"`
	ReferralCode string `json:"referral_code"`
	Active       bool   `json:"active"`
}

// ReferralLog is an append-only record of a reward earned for a booking.
type ReferralLog struct {
	ID           string          `json:"id"`
	ReferrerID   string          `json:"referrer_id"`
	ReferredID   string          `json:"referred_id"`
	BookingID    string          `json:"booking_id"`
	ReferralCode string          `json:"referral_code"`
	PlacementFee decimal.Decimal `json:"placement_fee"`
	RewardAmount decimal.Decimal `json:"reward_amount"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RewardBalance is the running reward total of a referrer.
type RewardBalance struct {
	UserID           string          `json:"user_id"`
	TotalEarned      decimal.Decimal `json:"total_earned"`
	TotalRedeemed    decimal.Decimal `json:"total_redeemed"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ReferralResult reports what a tracking request did.
type ReferralResult struct {
	Outcome      string           `json:"outcome"`
	BookingID    string           `json:"booking_id"`
	ReferrerID   string           `json:"referrer_id,omitempty"`
	RewardAmount *decimal.Decimal `json:"reward_amount,omitempty"`
	Log          *ReferralLog     `json:"log,omitempty"`
}
