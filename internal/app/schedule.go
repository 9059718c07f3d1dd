package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/internal/metrics"
	"github.com/nannygold/billing-service/pkg/paystack"
)

// Per-schedule outcomes reported by a run.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)

// Sweep names, used for locking and metrics.
const (
	stageAuthorization = "authorization"
	stageCapture       = "capture"
)

// ScheduleDetail is the outcome for one schedule in a run.
type ScheduleDetail struct {
	ScheduleID string `json:"schedule_id"`
	BookingID  string `json:"booking_id"`
	Outcome    string `json:"outcome"`
	Reference  string `json:"reference,omitempty"`
	Message    string `json:"message,omitempty"`
}

// ScheduleRunResult summarizes an authorization or capture sweep.
type ScheduleRunResult struct {
	Stage     string           `json:"stage"`
	AsOf      time.Time        `json:"as_of"`
	Evaluated int              `json:"evaluated"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Details   []ScheduleDetail `json:"details"`
}

func (r *ScheduleRunResult) record(d ScheduleDetail) {
	switch d.Outcome {
	case OutcomeSucceeded:
		r.Succeeded++
	case OutcomeFailed:
		r.Failed++
	default:
		r.Skipped++
	}
	r.Details = append(r.Details, d)
	metrics.ScheduleAttempts.WithLabelValues(r.Stage, d.Outcome).Inc()
}

// RunAuthorizations authorizes every active schedule whose authorization date
// has arrived. One schedule failing does not stop the sweep, and a caller
// going away does not cut it short: charges already sent must be recorded.
func (s Service) RunAuthorizations(ctx context.Context, asOf time.Time) (*ScheduleRunResult, error) {
	ctx = context.WithoutCancel(ctx)
	asOf = s.businessDate(asOf)

	release, err := s.acquireSweep(ctx, stageAuthorization)
	if err != nil {
		return nil, err
	}
	defer release()
	defer observeSweep(stageAuthorization, time.Now())

	schedules, err := s.repo.ListSchedulesDueForAuthorization(ctx, asOf)
	if err != nil {
		return nil, err
	}

	result := &ScheduleRunResult{Stage: stageAuthorization, AsOf: asOf, Evaluated: len(schedules), Details: []ScheduleDetail{}}
	for _, schedule := range schedules {
		detail, _ := s.authorizeOne(ctx, schedule, asOf)
		result.record(detail)
	}

	s.logger.Info("authorization sweep finished",
		"as_of", asOf.Format(time.DateOnly), "evaluated", result.Evaluated,
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// RunCaptures captures every active schedule whose capture date has arrived.
// Schedules without an authorization for the cycle are skipped. Like
// RunAuthorizations it runs to completion once started.
func (s Service) RunCaptures(ctx context.Context, asOf time.Time) (*ScheduleRunResult, error) {
	ctx = context.WithoutCancel(ctx)
	asOf = s.businessDate(asOf)

	release, err := s.acquireSweep(ctx, stageCapture)
	if err != nil {
		return nil, err
	}
	defer release()
	defer observeSweep(stageCapture, time.Now())

	schedules, err := s.repo.ListSchedulesDueForCapture(ctx, asOf)
	if err != nil {
		return nil, err
	}

	result := &ScheduleRunResult{Stage: stageCapture, AsOf: asOf, Evaluated: len(schedules), Details: []ScheduleDetail{}}
	for _, schedule := range schedules {
		detail, _ := s.captureOne(ctx, schedule, asOf)
		result.record(detail)
	}

	s.logger.Info("capture sweep finished",
		"as_of", asOf.Format(time.DateOnly), "evaluated", result.Evaluated,
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, nil
}

// AuthorizeSchedule runs the authorization step for a single booking.
func (s Service) AuthorizeSchedule(ctx context.Context, bookingID string, asOf time.Time) (*ScheduleDetail, error) {
	schedule, err := s.repo.GetScheduleByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	detail, err := s.authorizeOne(context.WithoutCancel(ctx), *schedule, s.businessDate(asOf))
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// CaptureSchedule runs the capture step for a single booking. It fails with
// domain.ErrNoAuthorization when the cycle was never authorized.
func (s Service) CaptureSchedule(ctx context.Context, bookingID string, asOf time.Time) (*ScheduleDetail, error) {
	schedule, err := s.repo.GetScheduleByBookingID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	detail, err := s.captureOne(context.WithoutCancel(ctx), *schedule, s.businessDate(asOf))
	if err != nil {
		return nil, err
	}
	return &detail, nil
}

// PauseSchedule stops recurring billing for a booking.
func (s Service) PauseSchedule(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error) {
	return s.repo.SetScheduleStatus(ctx, bookingID, domain.ScheduleStatusPaused)
}

// ResumeSchedule re-activates a paused schedule.
func (s Service) ResumeSchedule(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error) {
	return s.repo.SetScheduleStatus(ctx, bookingID, domain.ScheduleStatusActive)
}

// ListPayments returns a client's authorization and capture history.
func (s Service) ListPayments(ctx context.Context, clientID string) ([]domain.PaymentAuthorization, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client ID cannot be empty", domain.ErrInvalidInput)
	}
	return s.repo.ListAuthorizationsByUser(ctx, clientID, 50)
}

func (s Service) authorizeOne(ctx context.Context, schedule domain.PaymentSchedule, asOf time.Time) (ScheduleDetail, error) {
	detail := ScheduleDetail{ScheduleID: schedule.ID, BookingID: schedule.BookingID}

	auth, err := s.repo.AuthorizeCycle(ctx, schedule.ID, asOf, s.authorize)
	switch {
	case err != nil:
		s.logger.Error("authorization failed", "schedule_id", schedule.ID, "booking_id", schedule.BookingID, "error", err)
		detail.Outcome = OutcomeFailed
		detail.Message = err.Error()
		return detail, err
	case auth == nil:
		detail.Outcome = OutcomeSkipped
		detail.Message = "cycle already authorized or not due"
		return detail, nil
	}

	detail.Reference = auth.PaystackReference
	if auth.Status == domain.AuthorizationStatusFailed {
		detail.Outcome = OutcomeFailed
		if auth.FailureReason != nil {
			detail.Message = *auth.FailureReason
		}
		s.logger.Warn("authorization declined", "schedule_id", schedule.ID, "booking_id", schedule.BookingID, "reason", detail.Message)
		s.publishPaymentEvent(ctx, domain.EventPaymentAuthorizationFailed, *auth)
		return detail, nil
	}

	detail.Outcome = OutcomeSucceeded
	s.publishPaymentEvent(ctx, domain.EventPaymentAuthorized, *auth)
	return detail, nil
}

// ChargeReference is the gateway reference for one authorization attempt. It
// is derived from the schedule, cycle and attempt so that a retry after a lost
// commit reuses the reference and the gateway refuses the duplicate charge.
func ChargeReference(scheduleID string, cycle time.Time, attempt int) string {
	return fmt.Sprintf("NG-%s-%s-%d", scheduleID, cycle.Format("20060102"), attempt)
}

// authorize charges the client's stored card for the cycle. Gateway declines
// and transport errors become failed audit rows rather than errors, so the
// attempt is recorded and the next sweep retries.
func (s Service) authorize(ctx context.Context, schedule domain.PaymentSchedule, invoice *domain.Invoice, attempt int) (domain.PaymentAuthorization, error) {
	auth := domain.PaymentAuthorization{
		UserID:            schedule.ClientID,
		BookingID:         schedule.BookingID,
		ScheduleID:        schedule.ID,
		CycleDate:         schedule.CycleDate(),
		Amount:            schedule.Amount,
		PaystackReference: ChargeReference(schedule.ID, schedule.CycleDate(), attempt),
	}
	// The first invoice carries the placement fee, so charge what is actually owed.
	if invoice != nil {
		auth.InvoiceID = &invoice.ID
		auth.Amount = invoice.Amount
	}

	method, err := s.repo.GetPaymentMethod(ctx, schedule.ClientID)
	if errors.Is(err, domain.ErrNotFound) {
		return failedAuthorization(auth, domain.ErrNoPaymentMethod.Error()), nil
	}
	if err != nil {
		return domain.PaymentAuthorization{}, fmt.Errorf("load payment method: %w", err)
	}
	auth.AuthorizationCode = method.AuthorizationCode

	tx, err := s.gateway.ChargeAuthorization(ctx, paystack.ChargeRequest{
		Email:             method.Email,
		Amount:            paystack.ToSubunits(auth.Amount),
		AuthorizationCode: method.AuthorizationCode,
		Currency:          schedule.Currency,
		Reference:         auth.PaystackReference,
		Metadata: map[string]string{
			"booking_id":  schedule.BookingID,
			"schedule_id": schedule.ID,
			"cycle_date":  schedule.CycleDate().Format(time.DateOnly),
		},
	})
	if err != nil {
		return failedAuthorization(auth, fmt.Sprintf("%v: %v", domain.ErrGateway, err)), nil
	}
	if tx.Reference != "" {
		auth.PaystackReference = tx.Reference
	}
	txID := strconv.FormatInt(tx.ID, 10)
	auth.TransactionID = &txID

	if !tx.Succeeded() {
		return failedAuthorization(auth, gatewayReason(tx)), nil
	}

	now := s.now().UTC()
	auth.Status = domain.AuthorizationStatusAuthorized
	auth.AuthorizedAt = &now
	return auth, nil
}

func (s Service) captureOne(ctx context.Context, schedule domain.PaymentSchedule, asOf time.Time) (ScheduleDetail, error) {
	detail := ScheduleDetail{ScheduleID: schedule.ID, BookingID: schedule.BookingID}

	outcome, err := s.repo.CaptureCycle(ctx, schedule.ID, asOf, func(ctx context.Context, locked domain.PaymentSchedule, auth domain.PaymentAuthorization) (domain.CaptureResult, error) {
		return s.capture(ctx, locked, auth, asOf), nil
	})
	switch {
	case errors.Is(err, domain.ErrNoAuthorization):
		detail.Outcome = OutcomeSkipped
		detail.Message = "no authorization for billing cycle"
		return detail, err
	case err != nil:
		s.logger.Error("capture failed", "schedule_id", schedule.ID, "booking_id", schedule.BookingID, "error", err)
		detail.Outcome = OutcomeFailed
		detail.Message = err.Error()
		return detail, err
	case outcome == nil:
		detail.Outcome = OutcomeSkipped
		detail.Message = "capture not due"
		return detail, nil
	}

	detail.Reference = outcome.Authorization.PaystackReference
	if !outcome.Captured {
		detail.Outcome = OutcomeFailed
		if outcome.Authorization.FailureReason != nil {
			detail.Message = *outcome.Authorization.FailureReason
		}
		s.logger.Warn("capture declined", "schedule_id", schedule.ID, "booking_id", schedule.BookingID, "reason", detail.Message)
		s.publishPaymentEvent(ctx, domain.EventPaymentCaptureFailed, outcome.Authorization)
		return detail, nil
	}

	detail.Outcome = OutcomeSucceeded
	s.publishPaymentEvent(ctx, domain.EventPaymentCaptured, outcome.Authorization)
	s.afterCapture(ctx, outcome)
	return detail, nil
}

// capture settles an authorized charge by verifying its reference with the gateway.
func (s Service) capture(ctx context.Context, schedule domain.PaymentSchedule, auth domain.PaymentAuthorization, asOf time.Time) domain.CaptureResult {
	tx, err := s.gateway.Verify(ctx, auth.PaystackReference)
	if err != nil {
		return domain.CaptureResult{FailureReason: fmt.Sprintf("%v: %v", domain.ErrGateway, err)}
	}
	if !tx.Succeeded() {
		return domain.CaptureResult{FailureReason: gatewayReason(tx)}
	}
	if settled := paystack.FromSubunits(tx.Amount); settled.LessThan(auth.Amount) {
		return domain.CaptureResult{FailureReason: fmt.Sprintf("settled amount %s is below authorized %s", settled.StringFixed(2), auth.Amount.StringFixed(2))}
	}

	return domain.CaptureResult{
		Captured:      true,
		TransactionID: strconv.FormatInt(tx.ID, 10),
		PaidDate:      asOf,
		Next:          domain.NextCycle(schedule),
	}
}

// afterCapture runs the best-effort follow-ups of a successful capture.
func (s Service) afterCapture(ctx context.Context, outcome *domain.CaptureOutcome) {
	bookingID := outcome.Schedule.BookingID

	booking, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		s.logger.Warn("failed to load booking after capture", "booking_id", bookingID, "error", err)
		return
	}
	if booking.Status == domain.BookingStatusConfirmed {
		if err := s.repo.UpdateBookingStatus(ctx, bookingID, domain.BookingStatusActive); err != nil {
			s.logger.Warn("failed to activate booking after capture", "booking_id", bookingID, "error", err)
		}
	}

	if booking.IsRecurring() {
		if _, err := s.TrackReferralReward(ctx, bookingID, booking.ClientID); err != nil {
			s.logger.Warn("referral reward tracking failed", "booking_id", bookingID, "error", err)
		}
	}
}

func failedAuthorization(auth domain.PaymentAuthorization, reason string) domain.PaymentAuthorization {
	auth.Status = domain.AuthorizationStatusFailed
	auth.FailureReason = &reason
	return auth
}

func gatewayReason(tx *paystack.Transaction) string {
	if tx.GatewayResponse != "" {
		return fmt.Sprintf("transaction %s: %s", tx.Status, tx.GatewayResponse)
	}
	return fmt.Sprintf("transaction %s", tx.Status)
}

func observeSweep(name string, start time.Time) {
	metrics.SweepDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
