package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/internal/metrics"
	"github.com/shopspring/decimal"
)

var referralRewardRate = decimal.RequireFromString("0.20")

// ReferralReward returns the reward earned on a placement fee.
func ReferralReward(placementFee decimal.Decimal) decimal.Decimal {
	return placementFee.Mul(referralRewardRate).Round(2)
}

// TrackReferralReward credits the referrer of a booking's client with a share
// of the placement fee. Each booking is rewarded at most once; repeated calls
// report already_tracked. An empty clientID is resolved from the booking.
func (s Service) TrackReferralReward(ctx context.Context, bookingID, clientID string) (*domain.ReferralResult, error) {
	if bookingID == "" {
		return nil, fmt.Errorf("%w: booking ID cannot be empty", domain.ErrInvalidInput)
	}
	if clientID == "" {
		booking, err := s.repo.GetBooking(ctx, bookingID)
		if err != nil {
			return nil, err
		}
		clientID = booking.ClientID
	}

	result := &domain.ReferralResult{BookingID: bookingID}

	code, err := s.repo.GetClientReferralCode(ctx, clientID)
	if err != nil {
		return nil, fmt.Errorf("load referral code: %w", err)
	}
	if code == "" {
		result.Outcome = domain.ReferralOutcomeNoReferral
		metrics.ReferralRewards.WithLabelValues(result.Outcome).Inc()
		return result, nil
	}

	referrer, err := s.repo.FindReferrerByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("referral code %q: %w", code, err)
	}
	if referrer.UserID == clientID {
		return nil, fmt.Errorf("%w: client %s cannot refer themselves", domain.ErrInvalidInput, clientID)
	}
	result.ReferrerID = referrer.UserID

	financials, err := s.repo.GetFinancials(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: booking %s has no financials yet", domain.ErrNotFound, bookingID)
	}
	if err != nil {
		return nil, err
	}

	reward := ReferralReward(financials.FixedFee)
	entry, created, err := s.repo.RecordReferralReward(ctx, domain.ReferralLog{
		ReferrerID:   referrer.UserID,
		ReferredID:   clientID,
		BookingID:    bookingID,
		ReferralCode: referrer.ReferralCode,
		PlacementFee: financials.FixedFee,
		RewardAmount: reward,
		Status:       domain.ReferralStatusPending,
	})
	if err != nil {
		return nil, fmt.Errorf("record referral reward: %w", err)
	}

	result.Log = entry
	result.RewardAmount = &entry.RewardAmount
	if !created {
		result.Outcome = domain.ReferralOutcomeAlreadyTracked
		metrics.ReferralRewards.WithLabelValues(result.Outcome).Inc()
		return result, nil
	}

	result.Outcome = domain.ReferralOutcomeAccrued
	metrics.ReferralRewards.WithLabelValues(result.Outcome).Inc()
	s.logger.Info("referral reward accrued", "booking_id", bookingID, "referrer_id", referrer.UserID, "reward", reward.StringFixed(2))
	s.publishReferralEvent(ctx, *entry)
	return result, nil
}

// GetRewardBalance returns a user's referral reward balance.
func (s Service) GetRewardBalance(ctx context.Context, userID string) (*domain.RewardBalance, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user ID cannot be empty", domain.ErrInvalidInput)
	}
	return s.repo.GetRewardBalance(ctx, userID)
}
