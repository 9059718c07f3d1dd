/**
 * @description
 * HTTP handlers for the billing service.
 */
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nannygold/billing-service/internal/app"
	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/internal/revenue"
	"github.com/nannygold/billing-service/pkg/paystack"
)

// BillingService is the application surface exposed over HTTP.
type BillingService interface {
	GenerateAllMissingInvoices(ctx context.Context, asOf time.Time) (*app.ReconciliationSummary, error)
	GenerateInvoice(ctx context.Context, bookingID string, asOf time.Time) (*domain.Invoice, bool, error)
	MarkOverdueInvoices(ctx context.Context, asOf time.Time) (*app.OverdueResult, error)
	RunAuthorizations(ctx context.Context, asOf time.Time) (*app.ScheduleRunResult, error)
	RunCaptures(ctx context.Context, asOf time.Time) (*app.ScheduleRunResult, error)
	AuthorizeSchedule(ctx context.Context, bookingID string, asOf time.Time) (*app.ScheduleDetail, error)
	CaptureSchedule(ctx context.Context, bookingID string, asOf time.Time) (*app.ScheduleDetail, error)
	PauseSchedule(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error)
	ResumeSchedule(ctx context.Context, bookingID string) (*domain.PaymentSchedule, error)
	CancelBookingBilling(ctx context.Context, bookingID string) error
	TrackReferralReward(ctx context.Context, bookingID, clientID string) (*domain.ReferralResult, error)
	GetFinancials(ctx context.Context, bookingID string) (*domain.BookingFinancials, error)
	Quote(in revenue.Input) (revenue.FeeSplit, error)
	ListInvoices(ctx context.Context, clientID string) ([]domain.Invoice, error)
	ListPayments(ctx context.Context, clientID string) ([]domain.PaymentAuthorization, error)
	GetRewardBalance(ctx context.Context, userID string) (*domain.RewardBalance, error)
	InitializePaymentMethod(ctx context.Context, clientID, email, callbackURL string) (*paystack.InitializeResponse, error)
	VerifyPaymentMethod(ctx context.Context, clientID, reference string) (*domain.PaymentMethod, error)
}

// Handler holds the application service that handlers will interact with.
type Handler struct {
	service     BillingService
	callbackURL string
	logger      *slog.Logger
}

// NewHandler creates a new Handler with the given service. callbackURL is the
// default Paystack redirect for card setup.
func NewHandler(service BillingService, callbackURL string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, callbackURL: callbackURL, logger: logger}
}

func (h *Handler) handleGenerateInvoices(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	summary, err := h.service.GenerateAllMissingInvoices(r.Context(), asOf)
	if err != nil {
		h.respondWithError(w, "generate missing invoices", err)
		return
	}

	respondWithJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleGenerateInvoice(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	invoice, created, err := h.service.GenerateInvoice(r.Context(), bookingID, asOf)
	if err != nil {
		h.respondWithError(w, "generate invoice", err, "booking_id", bookingID)
		return
	}

	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	respondWithJSON(w, code, map[string]interface{}{
		"invoice": invoice,
		"created": created,
	})
}

func (h *Handler) handleMarkOverdue(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	result, err := h.service.MarkOverdueInvoices(r.Context(), asOf)
	if err != nil {
		h.respondWithError(w, "mark overdue invoices", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRunAuthorizations(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	result, err := h.service.RunAuthorizations(r.Context(), asOf)
	if err != nil {
		h.respondWithError(w, "run authorizations", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleRunCaptures(w http.ResponseWriter, r *http.Request) {
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	result, err := h.service.RunCaptures(r.Context(), asOf)
	if err != nil {
		h.respondWithError(w, "run captures", err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleAuthorizeSchedule(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	detail, err := h.service.AuthorizeSchedule(r.Context(), bookingID, asOf)
	if err != nil {
		h.respondWithError(w, "authorize schedule", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) handleCaptureSchedule(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	asOf, ok := parseAsOf(w, r)
	if !ok {
		return
	}

	detail, err := h.service.CaptureSchedule(r.Context(), bookingID, asOf)
	if err != nil {
		h.respondWithError(w, "capture schedule", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, detail)
}

func (h *Handler) handlePauseSchedule(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	schedule, err := h.service.PauseSchedule(r.Context(), bookingID)
	if err != nil {
		h.respondWithError(w, "pause schedule", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, schedule)
}

func (h *Handler) handleResumeSchedule(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	schedule, err := h.service.ResumeSchedule(r.Context(), bookingID)
	if err != nil {
		h.respondWithError(w, "resume schedule", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, schedule)
}

func (h *Handler) handleCancelBilling(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	if err := h.service.CancelBookingBilling(r.Context(), bookingID); err != nil {
		h.respondWithError(w, "cancel booking billing", err, "booking_id", bookingID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleTrackReferral(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")

	var req struct {
		ClientID string `json:"client_id"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	result, err := h.service.TrackReferralReward(r.Context(), bookingID, strings.TrimSpace(req.ClientID))
	if err != nil {
		h.respondWithError(w, "track referral reward", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetFinancials(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "id")
	financials, err := h.service.GetFinancials(r.Context(), bookingID)
	if err != nil {
		h.respondWithError(w, "get booking financials", err, "booking_id", bookingID)
		return
	}

	respondWithJSON(w, http.StatusOK, financials)
}

type quoteRequest struct {
	BookingType         string  `json:"booking_type"`
	TotalAmount         string  `json:"total_amount"`
	MonthlyRateEstimate *string `json:"monthly_rate_estimate"`
	HomeSize            string  `json:"home_size"`
	DurationDays        int     `json:"duration_days"`
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	in, err := req.toInput()
	if err != nil {
		h.respondWithError(w, "quote", err)
		return
	}

	split, err := h.service.Quote(in)
	if err != nil {
		h.respondWithError(w, "quote", err)
		return
	}

	respondWithJSON(w, http.StatusOK, split)
}

func (q quoteRequest) toInput() (revenue.Input, error) {
	in := revenue.Input{
		BookingType:  strings.TrimSpace(q.BookingType),
		HomeSize:     q.HomeSize,
		DurationDays: q.DurationDays,
	}
	if strings.TrimSpace(q.TotalAmount) != "" {
		total, err := revenue.ParseAmount(q.TotalAmount)
		if err != nil {
			return in, err
		}
		in.TotalAmount = total
	}
	if q.MonthlyRateEstimate != nil && strings.TrimSpace(*q.MonthlyRateEstimate) != "" {
		rate, err := revenue.ParseAmount(*q.MonthlyRateEstimate)
		if err != nil {
			return in, err
		}
		in.MonthlyRateEstimate = &rate
	}
	return in, nil
}

func (h *Handler) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	invoices, err := h.service.ListInvoices(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, "list invoices", err, "user_id", userID)
		return
	}
	if invoices == nil {
		invoices = []domain.Invoice{}
	}

	respondWithJSON(w, http.StatusOK, invoices)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	payments, err := h.service.ListPayments(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, "list payments", err, "user_id", userID)
		return
	}
	if payments == nil {
		payments = []domain.PaymentAuthorization{}
	}

	respondWithJSON(w, http.StatusOK, payments)
}

func (h *Handler) handleGetRewards(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	balance, err := h.service.GetRewardBalance(r.Context(), userID)
	if err != nil {
		h.respondWithError(w, "get reward balance", err, "user_id", userID)
		return
	}

	respondWithJSON(w, http.StatusOK, balance)
}

func (h *Handler) handleInitializePaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Email       string `json:"email"`
		CallbackURL string `json:"callback_url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	callbackURL := strings.TrimSpace(req.CallbackURL)
	if callbackURL == "" {
		callbackURL = h.callbackURL
	}

	session, err := h.service.InitializePaymentMethod(r.Context(), userID, strings.TrimSpace(req.Email), callbackURL)
	if err != nil {
		h.respondWithError(w, "initialize payment method", err, "user_id", userID)
		return
	}

	respondWithJSON(w, http.StatusOK, session)
}

func (h *Handler) handleVerifyPaymentMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Reference string `json:"reference"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	method, err := h.service.VerifyPaymentMethod(r.Context(), userID, strings.TrimSpace(req.Reference))
	if err != nil {
		h.respondWithError(w, "verify payment method", err, "user_id", userID)
		return
	}

	respondWithJSON(w, http.StatusOK, method)
}

// parseAsOf reads the optional as_of=YYYY-MM-DD query parameter. A missing
// value yields the zero time, which the service treats as today.
func parseAsOf(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("as_of"))
	if raw == "" {
		return time.Time{}, true
	}
	asOf, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		http.Error(w, fmt.Sprintf("as_of must be YYYY-MM-DD, got %q", raw), http.StatusBadRequest)
		return time.Time{}, false
	}
	return asOf, true
}

// statusForError maps billing error classes onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrReferrerNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNegativeEarnings),
		errors.Is(err, domain.ErrNoAuthorization),
		errors.Is(err, domain.ErrNoPaymentMethod),
		errors.Is(err, domain.ErrScheduleNotActive):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrGateway):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondWithError(w http.ResponseWriter, op string, err error, attrs ...any) {
	code := statusForError(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("billing request failed", append([]any{"op", op, "error", err}, attrs...)...)
		msg = "Internal Server Error"
	} else {
		h.logger.Warn("billing request rejected", append([]any{"op", op, "status", code, "error", err}, attrs...)...)
	}
	respondWithJSON(w, code, map[string]string{"error": msg})
}

// respondWithJSON writes JSON responses.
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
