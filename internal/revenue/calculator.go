/**
 * @description
 * Revenue split rules for bookings. Compute is pure: the same input always
 * yields the same split, and nothing here touches storage or the clock.
 */
package revenue

import (
	"fmt"
	"strings"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	standardPlacementFee   = decimal.RequireFromString("2500.00")
	premiumPlacementRate   = decimal.RequireFromString("0.50")
	highTierThreshold      = decimal.NewFromInt(10000)
	lowTierThreshold       = decimal.NewFromInt(5000)
	highTierPercent        = decimal.NewFromInt(25)
	midTierPercent         = decimal.NewFromInt(15)
	lowTierPercent         = decimal.NewFromInt(10)
	shortTermDailyFee      = decimal.NewFromInt(35)
	shortTermCommissionPct = decimal.NewFromInt(20)
	hundred                = decimal.NewFromInt(100)
)

// Home size categories, smallest first. The last two are premium tiers.
var homeSizes = map[string]bool{
	"pocket_palace": false,
	"family_hub":    false,
	"grand_retreat": true,
	"epic_estates":  true,
}

var shortTermTypes = map[string]bool{
	domain.BookingTypeShortTerm:        true,
	domain.BookingTypeDateNight:        true,
	domain.BookingTypeEmergency:        true,
	domain.BookingTypeTemporarySupport: true,
	domain.BookingTypeSchoolHoliday:    true,
}

// Input carries the booking attributes the split depends on.
type Input struct {
	BookingType         string
	TotalAmount         decimal.Decimal
	MonthlyRateEstimate *decimal.Decimal
	HomeSize            string
	DurationDays        int
}

// FeeSplit divides a booking's money between the platform and the nanny.
//
// For long-term bookings the placement fee sits on top of the monthly rate, so
// ClientTotal is monthly rate plus fixed fee. For short-term bookings the fixed
// fee comes out of the total. In both cases AdminTotalRevenue + NannyEarnings
// equals ClientTotal.
type FeeSplit struct {
	BookingType       string          `json:"booking_type"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	ClientTotal       decimal.Decimal `json:"client_total"`
	FixedFee          decimal.Decimal `json:"fixed_fee"`
	CommissionPercent decimal.Decimal `json:"commission_percent"`
	CommissionAmount  decimal.Decimal `json:"commission_amount"`
	AdminTotalRevenue decimal.Decimal `json:"admin_total_revenue"`
	NannyEarnings     decimal.Decimal `json:"nanny_earnings"`
}

// Compute returns the fee split for the given booking input.
func Compute(in Input) (FeeSplit, error) {
	switch {
	case in.BookingType == domain.BookingTypeLongTerm:
		return computeLongTerm(in)
	case shortTermTypes[in.BookingType]:
		return computeShortTerm(in)
	default:
		return FeeSplit{}, fmt.Errorf("%w: unrecognized booking type %q", domain.ErrInvalidInput, in.BookingType)
	}
}

// ForBooking derives the calculator input from a booking record.
func ForBooking(b domain.Booking) Input {
	in := Input{
		BookingType:         b.BookingType,
		TotalAmount:         b.TotalAmount,
		MonthlyRateEstimate: b.TotalMonthlyCost,
		DurationDays:        b.DurationDays(),
	}
	if b.HomeSize != nil {
		in.HomeSize = *b.HomeSize
	}
	return in
}

// CommissionPercent returns the long-term commission tier for a monthly rate.
// Both thresholds are inclusive.
func CommissionPercent(monthlyRate decimal.Decimal) decimal.Decimal {
	switch {
	case monthlyRate.GreaterThanOrEqual(highTierThreshold):
		return highTierPercent
	case monthlyRate.LessThanOrEqual(lowTierThreshold):
		return lowTierPercent
	default:
		return midTierPercent
	}
}

// IsPremiumHome reports whether a home size falls in a premium tier. Empty
// sizes are standard; unknown sizes are rejected.
func IsPremiumHome(homeSize string) (bool, error) {
	key := normalizeHomeSize(homeSize)
	if key == "" {
		return false, nil
	}
	premium, ok := homeSizes[key]
	if !ok {
		return false, fmt.Errorf("%w: unknown home size %q", domain.ErrInvalidInput, homeSize)
	}
	return premium, nil
}

// ParseAmount parses a money string, rejecting non-numeric and negative values.
func ParseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: amount %q is not numeric", domain.ErrInvalidInput, raw)
	}
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: amount %s is negative", domain.ErrInvalidInput, amount)
	}
	return amount, nil
}

func computeLongTerm(in Input) (FeeSplit, error) {
	monthlyRate := in.TotalAmount
	if in.MonthlyRateEstimate != nil {
		monthlyRate = *in.MonthlyRateEstimate
	}
	if monthlyRate.IsNegative() {
		return FeeSplit{}, fmt.Errorf("%w: monthly rate %s is negative", domain.ErrInvalidInput, monthlyRate)
	}

	premium, err := IsPremiumHome(in.HomeSize)
	if err != nil {
		return FeeSplit{}, err
	}

	fixedFee := standardPlacementFee
	if premium {
		fixedFee = monthlyRate.Mul(premiumPlacementRate)
	}
	fixedFee = money(fixedFee)

	percent := CommissionPercent(monthlyRate)
	commission := money(monthlyRate.Mul(percent).Div(hundred))

	split := FeeSplit{
		BookingType:       in.BookingType,
		GrossAmount:       money(monthlyRate),
		ClientTotal:       money(monthlyRate).Add(fixedFee),
		FixedFee:          fixedFee,
		CommissionPercent: percent,
		CommissionAmount:  commission,
		AdminTotalRevenue: fixedFee.Add(commission),
		NannyEarnings:     money(monthlyRate).Sub(commission),
	}
	return split, checkEarnings(split)
}

func computeShortTerm(in Input) (FeeSplit, error) {
	if in.TotalAmount.IsNegative() {
		return FeeSplit{}, fmt.Errorf("%w: total amount %s is negative", domain.ErrInvalidInput, in.TotalAmount)
	}

	days := in.DurationDays
	if days < 1 {
		days = 1
	}

	total := money(in.TotalAmount)
	fixedFee := money(shortTermDailyFee.Mul(decimal.NewFromInt(int64(days))))
	commission := money(total.Sub(fixedFee).Mul(shortTermCommissionPct).Div(hundred))

	split := FeeSplit{
		BookingType:       in.BookingType,
		GrossAmount:       total,
		ClientTotal:       total,
		FixedFee:          fixedFee,
		CommissionPercent: shortTermCommissionPct,
		CommissionAmount:  commission,
		AdminTotalRevenue: fixedFee.Add(commission),
		NannyEarnings:     total.Sub(fixedFee).Sub(commission),
	}
	return split, checkEarnings(split)
}

// checkEarnings rejects splits that would persist a negative nanny share.
func checkEarnings(split FeeSplit) error {
	if split.NannyEarnings.IsNegative() {
		return fmt.Errorf("%w: %s booking of %s yields %s (fixed fee %s)",
			domain.ErrNegativeEarnings, split.BookingType, split.GrossAmount, split.NannyEarnings, split.FixedFee)
	}
	return nil
}

func normalizeHomeSize(homeSize string) string {
	key := strings.ToLower(strings.TrimSpace(homeSize))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(key)
}

func money(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
