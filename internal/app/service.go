/**
 * @description
 * Core business logic for booking billing: invoice generation, the monthly
 * authorize/capture cycle, referral rewards and bulk reconciliation.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/pkg/paystack"
)

// EventsExchange is the topic exchange billing events are published on.
const EventsExchange = "nannygold.events"

// Repository defines the database operations the service needs.
type Repository interface {
	GetBooking(ctx context.Context, bookingID string) (*domain.Booking, error)
	ListBillableBookings(ctx context.Context, asOf time.Time) ([]domain.Booking, error)
	UpdateBookingStatus(ctx context.Context, bookingID, status string) error
	GetFinancials(ctx context.Context, bookingID string) (*domain.BookingFinancials, error)

	FindInvoiceForMonth(ctx context.Context, bookingID string, month time.Time) (*domain.Invoice, error)
	CountInvoices(ctx context.Context, bookingID string) (int, error)
	CreateInvoiceBundle(ctx context.Context, bundle domain.InvoiceBundle) (*domain.Invoice, bool, error)
	ListInvoicesByClient(ctx context.Context, clientID string, limit int) ([]domain.Invoice, error)
	MarkInvoicesOverdue(ctx context.Context, asOf time.Time) ([]domain.Invoice, error)
	CancelOpenInvoices(ctx context.Context, bookingID string) (int64, error)

	ListSchedulesDueForAuthorization(ctx context.Context, asOf time.Time) ([]domain.PaymentSchedule, error)
	ListSchedulesDueForCapture(ctx context.Context, asOf time.Time) ([]domain.PaymentSchedule, error)
	GetScheduleByBookingID(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error)
	SetScheduleStatus(ctx context.Context, bookingID, status string) (*domain.PaymentSchedule, error)
	AuthorizeCycle(ctx context.Context, scheduleID string, asOf time.Time, authorize domain.AuthorizeFunc) (*domain.PaymentAuthorization, error)
	CaptureCycle(ctx context.Context, scheduleID string, asOf time.Time, capture domain.CaptureFunc) (*domain.CaptureOutcome, error)
	ListAuthorizationsByUser(ctx context.Context, userID string, limit int) ([]domain.PaymentAuthorization, error)

	GetPaymentMethod(ctx context.Context, clientID string) (*domain.PaymentMethod, error)
	UpsertPaymentMethod(ctx context.Context, pm domain.PaymentMethod) (*domain.PaymentMethod, error)
	GetClientEmail(ctx context.Context, clientID string) (string, error)

	GetClientReferralCode(ctx context.Context, clientID string) (string, error)
	FindReferrerByCode(ctx context.Context, code string) (*domain.Referrer, error)
	RecordReferralReward(ctx context.Context, entry domain.ReferralLog) (*domain.ReferralLog, bool, error)
	GetRewardBalance(ctx context.Context, userID string) (*domain.RewardBalance, error)
}

// Gateway is the subset of the Paystack API the billing engine drives.
type Gateway interface {
	Initialize(ctx context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error)
	ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (*paystack.Transaction, error)
	Verify(ctx context.Context, reference string) (*paystack.Transaction, error)
}

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
}

// Options carries the tunables of the billing service.
type Options struct {
	Timezone         string
	Currency         string
	InvoiceDueDays   int
	AuthorizationDay int
	CaptureDay       int
	SweepLockTTL     time.Duration
	Logger           *slog.Logger
}

// Service provides the business logic for booking billing.
type Service struct {
	repo      Repository
	gateway   Gateway
	publisher EventPublisher
	locker    SweepLocker
	logger    *slog.Logger
	loc       *time.Location
	opts      Options
	now       func() time.Time
}

// NewService creates a new billing service.
func NewService(repo Repository, gateway Gateway, publisher EventPublisher, locker SweepLocker, opts Options) Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := time.LoadLocation(opts.Timezone)
	if err != nil {
		logger.Warn("invalid timezone, defaulting to UTC", "timezone", opts.Timezone)
		loc = time.UTC
	}

	if opts.Currency == "" {
		opts.Currency = "ZAR"
	}
	if opts.InvoiceDueDays <= 0 {
		opts.InvoiceDueDays = 7
	}
	if opts.AuthorizationDay <= 0 {
		opts.AuthorizationDay = domain.DefaultAuthorizationDay
	}
	if opts.CaptureDay <= 0 {
		opts.CaptureDay = domain.DefaultCaptureDay
	}
	if opts.SweepLockTTL <= 0 {
		opts.SweepLockTTL = 10 * time.Minute
	}
	if locker == nil {
		locker = NoopSweepLocker{}
	}

	return Service{
		repo:      repo,
		gateway:   gateway,
		publisher: publisher,
		locker:    locker,
		logger:    logger,
		loc:       loc,
		opts:      opts,
		now:       time.Now,
	}
}

// Today returns the current business date.
func (s Service) Today() time.Time {
	return domain.Date(s.now().In(s.loc))
}

// businessDate normalizes a caller-supplied date, defaulting to today.
func (s Service) businessDate(asOf time.Time) time.Time {
	if asOf.IsZero() {
		return s.Today()
	}
	return domain.Date(asOf)
}
