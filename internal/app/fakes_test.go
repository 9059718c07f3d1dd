package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/pkg/paystack"
	"github.com/shopspring/decimal"
)

// fakeRepo is an in-memory Repository. cycleMu stands in for the schedule row
// lock held across the authorize and capture callbacks. Like a pgx transaction,
// its writes fail once their context is cancelled.
type fakeRepo struct {
	mu      sync.Mutex
	cycleMu sync.Mutex

	bookings      map[string]*domain.Booking
	financials    map[string]domain.BookingFinancials
	invoices      []domain.Invoice
	schedules     map[string]*domain.PaymentSchedule
	auths         []domain.PaymentAuthorization
	methods       map[string]domain.PaymentMethod
	emails        map[string]string
	referralCodes map[string]string
	referrers     map[string]domain.Referrer
	referralLogs  map[string]domain.ReferralLog
	balances      map[string]domain.RewardBalance
	seq           int64
	nextID        int

	getBookingErr error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bookings:      map[string]*domain.Booking{},
		financials:    map[string]domain.BookingFinancials{},
		schedules:     map[string]*domain.PaymentSchedule{},
		methods:       map[string]domain.PaymentMethod{},
		emails:        map[string]string{},
		referralCodes: map[string]string{},
		referrers:     map[string]domain.Referrer{},
		referralLogs:  map[string]domain.ReferralLog{},
		balances:      map[string]domain.RewardBalance{},
	}
}

func (r *fakeRepo) id(prefix string) string {
	r.nextID++
	return fmt.Sprintf("%s-%d", prefix, r.nextID)
}

func (r *fakeRepo) addBooking(b domain.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bookings[b.ID] = &b
}

func (r *fakeRepo) GetBooking(_ context.Context, bookingID string) (*domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getBookingErr != nil {
		return nil, r.getBookingErr
	}
	b, ok := r.bookings[bookingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (r *fakeRepo) ListBillableBookings(_ context.Context, asOf time.Time) ([]domain.Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Booking
	for _, b := range r.bookings {
		if b.IsBillable(asOf) {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeRepo) UpdateBookingStatus(_ context.Context, bookingID, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[bookingID]
	if !ok {
		return domain.ErrNotFound
	}
	b.Status = status
	return nil
}

func (r *fakeRepo) GetFinancials(_ context.Context, bookingID string) (*domain.BookingFinancials, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.financials[bookingID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &f, nil
}

func (r *fakeRepo) FindInvoiceForMonth(_ context.Context, bookingID string, month time.Time) (*domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.findInvoiceLocked(bookingID, domain.BillingMonth(month))
}

func (r *fakeRepo) findInvoiceLocked(bookingID string, month time.Time) (*domain.Invoice, error) {
	for _, inv := range r.invoices {
		if inv.BookingID == bookingID && inv.BillingMonth.Equal(month) {
			copied := inv
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) CountInvoices(_ context.Context, bookingID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, inv := range r.invoices {
		if inv.BookingID == bookingID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRepo) CreateInvoiceBundle(_ context.Context, bundle domain.InvoiceBundle) (*domain.Invoice, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inv := bundle.Invoice
	inv.BillingMonth = domain.BillingMonth(inv.BillingMonth)
	if existing, err := r.findInvoiceLocked(inv.BookingID, inv.BillingMonth); err == nil {
		return existing, false, nil
	}

	r.financials[bundle.Financials.BookingID] = bundle.Financials
	r.seq++
	inv.ID = r.id("inv")
	inv.InvoiceNumber = fmt.Sprintf("INV-%s-%06d", inv.IssueDate.Format("200601"), r.seq)
	inv.Status = domain.InvoiceStatusPending
	r.invoices = append(r.invoices, inv)

	if s := bundle.Schedule; s != nil {
		var found bool
		for _, existing := range r.schedules {
			if existing.BookingID == s.BookingID {
				existing.Amount = s.Amount
				existing.Currency = s.Currency
				found = true
			}
		}
		if !found {
			schedule := *s
			schedule.ID = r.id("sch")
			r.schedules[schedule.ID] = &schedule
		}
	}
	return &inv, true, nil
}

func (r *fakeRepo) ListInvoicesByClient(_ context.Context, clientID string, limit int) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range r.invoices {
		if inv.ClientID == clientID && len(out) < limit {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (r *fakeRepo) MarkInvoicesOverdue(_ context.Context, asOf time.Time) ([]domain.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invoice
	awaitingCapture := map[string]bool{}
	for _, s := range r.schedules {
		if s.Status == domain.ScheduleStatusActive && !s.NextCaptureDate.Before(asOf) {
			awaitingCapture[s.BookingID] = true
		}
	}
	for i := range r.invoices {
		if r.invoices[i].Status == domain.InvoiceStatusPending && r.invoices[i].DueDate.Before(asOf) && !awaitingCapture[r.invoices[i].BookingID] {
			r.invoices[i].Status = domain.InvoiceStatusOverdue
			out = append(out, r.invoices[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) CancelOpenInvoices(_ context.Context, bookingID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for i := range r.invoices {
		inv := &r.invoices[i]
		if inv.BookingID == bookingID && (inv.Status == domain.InvoiceStatusPending || inv.Status == domain.InvoiceStatusOverdue) {
			inv.Status = domain.InvoiceStatusCancelled
			n++
		}
	}
	return n, nil
}

func (r *fakeRepo) hasSuccessfulAuthLocked(scheduleID string, cycle time.Time) bool {
	for _, a := range r.auths {
		if a.ScheduleID == scheduleID && a.CycleDate.Equal(cycle) &&
			(a.Status == domain.AuthorizationStatusAuthorized || a.Status == domain.AuthorizationStatusCaptured) {
			return true
		}
	}
	return false
}

func (r *fakeRepo) sortedSchedulesLocked() []domain.PaymentSchedule {
	var out []domain.PaymentSchedule
	for _, s := range r.schedules {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *fakeRepo) ListSchedulesDueForAuthorization(_ context.Context, asOf time.Time) ([]domain.PaymentSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentSchedule
	for _, s := range r.sortedSchedulesLocked() {
		if s.AuthorizationDue(asOf) && !r.hasSuccessfulAuthLocked(s.ID, s.CycleDate()) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListSchedulesDueForCapture(_ context.Context, asOf time.Time) ([]domain.PaymentSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentSchedule
	for _, s := range r.sortedSchedulesLocked() {
		if s.CaptureDue(asOf) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeRepo) scheduleForBooking(bookingID string) *domain.PaymentSchedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.BookingID == bookingID {
			copied := *s
			return &copied
		}
	}
	return nil
}

func (r *fakeRepo) GetScheduleByBookingID(_ context.Context, bookingID string) (*domain.PaymentSchedule, error) {
	if s := r.scheduleForBooking(bookingID); s != nil {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) SetScheduleStatus(_ context.Context, bookingID, status string) (*domain.PaymentSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.schedules {
		if s.BookingID == bookingID && s.Status != domain.ScheduleStatusCancelled {
			s.Status = status
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *fakeRepo) AuthorizeCycle(ctx context.Context, scheduleID string, asOf time.Time, authorize domain.AuthorizeFunc) (*domain.PaymentAuthorization, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	r.mu.Lock()
	s, ok := r.schedules[scheduleID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	schedule := *s
	if !schedule.AuthorizationDue(asOf) || r.hasSuccessfulAuthLocked(schedule.ID, schedule.CycleDate()) {
		r.mu.Unlock()
		return nil, nil
	}
	var open *domain.Invoice
	for _, inv := range r.invoices {
		if inv.BookingID == schedule.BookingID && (inv.Status == domain.InvoiceStatusPending || inv.Status == domain.InvoiceStatusOverdue) {
			if open == nil || inv.IssueDate.Before(open.IssueDate) {
				copied := inv
				open = &copied
			}
		}
	}
	attempt := 1
	for _, a := range r.auths {
		if a.ScheduleID == schedule.ID && a.CycleDate.Equal(schedule.CycleDate()) {
			attempt++
		}
	}
	r.mu.Unlock()

	auth, err := authorize(ctx, schedule, open, attempt)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("insert payment authorization: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	auth.ID = r.id("auth")
	r.auths = append(r.auths, auth)
	return &auth, nil
}

func (r *fakeRepo) CaptureCycle(ctx context.Context, scheduleID string, asOf time.Time, capture domain.CaptureFunc) (*domain.CaptureOutcome, error) {
	r.cycleMu.Lock()
	defer r.cycleMu.Unlock()

	r.mu.Lock()
	s, ok := r.schedules[scheduleID]
	if !ok {
		r.mu.Unlock()
		return nil, domain.ErrNotFound
	}
	schedule := *s
	if !schedule.CaptureDue(asOf) {
		r.mu.Unlock()
		return nil, nil
	}
	authIdx := -1
	for i, a := range r.auths {
		if a.ScheduleID == schedule.ID && a.CycleDate.Equal(schedule.CycleDate()) && a.Status == domain.AuthorizationStatusAuthorized {
			authIdx = i
		}
	}
	if authIdx < 0 {
		r.mu.Unlock()
		return nil, domain.ErrNoAuthorization
	}
	auth := r.auths[authIdx]
	r.mu.Unlock()

	result, err := capture(ctx, schedule, auth)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("record capture: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	outcome := &domain.CaptureOutcome{Schedule: schedule, Captured: result.Captured}
	if !result.Captured {
		failed := auth
		failed.ID = r.id("auth")
		failed.Status = domain.AuthorizationStatusFailed
		reason := result.FailureReason
		failed.FailureReason = &reason
		r.auths = append(r.auths, failed)
		outcome.Authorization = failed
		return outcome, nil
	}

	now := time.Now().UTC()
	r.auths[authIdx].Status = domain.AuthorizationStatusCaptured
	r.auths[authIdx].CapturedAt = &now
	outcome.Authorization = r.auths[authIdx]

	if auth.InvoiceID != nil {
		for i := range r.invoices {
			inv := &r.invoices[i]
			if inv.ID == *auth.InvoiceID && (inv.Status == domain.InvoiceStatusPending || inv.Status == domain.InvoiceStatusOverdue) {
				paid := result.PaidDate
				ref := auth.PaystackReference
				inv.Status = domain.InvoiceStatusPaid
				inv.PaidDate = &paid
				inv.PaymentReference = &ref
				copied := *inv
				outcome.Invoice = &copied
			}
		}
	}

	s.NextAuthorizationDate = result.Next.NextAuthorizationDate
	s.NextCaptureDate = result.Next.NextCaptureDate
	outcome.Schedule = *s
	return outcome, nil
}

func (r *fakeRepo) ListAuthorizationsByUser(_ context.Context, userID string, limit int) ([]domain.PaymentAuthorization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentAuthorization
	for i := len(r.auths) - 1; i >= 0 && len(out) < limit; i-- {
		if r.auths[i].UserID == userID {
			out = append(out, r.auths[i])
		}
	}
	return out, nil
}

func (r *fakeRepo) GetPaymentMethod(_ context.Context, clientID string) (*domain.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pm, ok := r.methods[clientID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &pm, nil
}

func (r *fakeRepo) UpsertPaymentMethod(_ context.Context, pm domain.PaymentMethod) (*domain.PaymentMethod, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pm.UpdatedAt = time.Now().UTC()
	r.methods[pm.ClientID] = pm
	return &pm, nil
}

func (r *fakeRepo) GetClientEmail(_ context.Context, clientID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	email, ok := r.emails[clientID]
	if !ok {
		return "", domain.ErrNotFound
	}
	return email, nil
}

func (r *fakeRepo) GetClientReferralCode(_ context.Context, clientID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.referralCodes[clientID], nil
}

func (r *fakeRepo) FindReferrerByCode(_ context.Context, code string) (*domain.Referrer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ref, ok := r.referrers[strings.ToUpper(code)]
	if !ok || !ref.Active {
		return nil, domain.ErrReferrerNotFound
	}
	return &ref, nil
}

func (r *fakeRepo) RecordReferralReward(_ context.Context, entry domain.ReferralLog) (*domain.ReferralLog, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.referralLogs[entry.BookingID]; ok {
		return &existing, false, nil
	}
	entry.ID = r.id("ref")
	r.referralLogs[entry.BookingID] = entry

	bal := r.balances[entry.ReferrerID]
	bal.UserID = entry.ReferrerID
	bal.TotalEarned = bal.TotalEarned.Add(entry.RewardAmount)
	bal.AvailableBalance = bal.AvailableBalance.Add(entry.RewardAmount)
	r.balances[entry.ReferrerID] = bal
	return &entry, true, nil
}

func (r *fakeRepo) GetRewardBalance(_ context.Context, userID string) (*domain.RewardBalance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[userID]
	if !ok {
		bal = domain.RewardBalance{UserID: userID}
	}
	return &bal, nil
}

func (r *fakeRepo) invoicesFor(bookingID string) []domain.Invoice {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Invoice
	for _, inv := range r.invoices {
		if inv.BookingID == bookingID {
			out = append(out, inv)
		}
	}
	return out
}

func (r *fakeRepo) authsFor(scheduleID string) []domain.PaymentAuthorization {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.PaymentAuthorization
	for _, a := range r.auths {
		if a.ScheduleID == scheduleID {
			out = append(out, a)
		}
	}
	return out
}

// fakeGateway settles charges in memory and remembers what it charged.
// onCharge runs while a charge is in flight; a charge whose context is
// cancelled by then fails the way an HTTP call would.
type fakeGateway struct {
	mu           sync.Mutex
	onCharge     func()
	chargeErr    error
	chargeStatus string
	verifyStatus string
	charges      []paystack.ChargeRequest
	verified     []string
	amounts      map[string]int64
	metadata     map[string]paystack.Metadata
	nextID       int64
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{chargeStatus: paystack.StatusSuccess, verifyStatus: paystack.StatusSuccess, amounts: map[string]int64{}, metadata: map[string]paystack.Metadata{}}
}

func (g *fakeGateway) Initialize(_ context.Context, req paystack.InitializeRequest) (*paystack.InitializeResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metadata[req.Reference] = paystack.Metadata(req.Metadata)
	return &paystack.InitializeResponse{AuthorizationURL: "https://checkout.paystack.com/abc", AccessCode: "abc", Reference: req.Reference}, nil
}

func (g *fakeGateway) ChargeAuthorization(ctx context.Context, req paystack.ChargeRequest) (*paystack.Transaction, error) {
	if g.onCharge != nil {
		g.onCharge()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.charges = append(g.charges, req)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.nextID++
	g.amounts[req.Reference] = req.Amount
	return &paystack.Transaction{ID: g.nextID, Status: g.chargeStatus, Reference: req.Reference, Amount: req.Amount, GatewayResponse: "Approved"}, nil
}

func (g *fakeGateway) Verify(_ context.Context, reference string) (*paystack.Transaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.verified = append(g.verified, reference)
	amount, ok := g.amounts[reference]
	if !ok {
		amount = 100
	}
	g.nextID++
	tx := &paystack.Transaction{ID: g.nextID, Status: g.verifyStatus, Reference: reference, Amount: amount, Metadata: g.metadata[reference]}
	tx.Authorization = paystack.Authorization{AuthorizationCode: "AUTH_card", Last4: "4081", Brand: "visa", Reusable: true}
	tx.Customer.Email = "client@example.com"
	return tx, nil
}

func (g *fakeGateway) verifyCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.verified)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *fakePublisher) Publish(_ context.Context, _, routingKey string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, routingKey)
	return nil
}

func (p *fakePublisher) count(routingKey string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == routingKey {
			n++
		}
	}
	return n
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, nil
}

type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), bool, error) {
	return nil, false, errors.New("redis: connection refused")
}

func newTestService(repo *fakeRepo, gateway *fakeGateway, publisher *fakePublisher) Service {
	return NewService(repo, gateway, publisher, nil, Options{
		Timezone: "UTC",
		Currency: "ZAR",
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func day(year int, month time.Month, d int) time.Time {
	return time.Date(year, month, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func strPtr(s string) *string {
	return &s
}

func longTermBooking(id, clientID, monthly, homeSize string, start time.Time) domain.Booking {
	b := domain.Booking{
		ID:               id,
		ClientID:         clientID,
		BookingType:      domain.BookingTypeLongTerm,
		StartDate:        start,
		TotalMonthlyCost: decPtr(monthly),
		TotalAmount:      dec(monthly),
		Status:           domain.BookingStatusConfirmed,
	}
	if homeSize != "" {
		b.HomeSize = strPtr(homeSize)
	}
	return b
}
