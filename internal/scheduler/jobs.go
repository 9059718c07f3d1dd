/**
 * @description
 * Scheduled billing jobs. Each job asks the billing service to run one sweep
 * for the current business date.
 */
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nannygold/billing-service/pkg/billingclient"
)

// BillingClient triggers sweeps on the billing service.
type BillingClient interface {
	GenerateInvoices(ctx context.Context, asOf time.Time) (*billingclient.RunSummary, error)
	MarkOverdue(ctx context.Context, asOf time.Time) (*billingclient.RunSummary, error)
	RunAuthorizations(ctx context.Context, asOf time.Time) (*billingclient.RunSummary, error)
	RunCaptures(ctx context.Context, asOf time.Time) (*billingclient.RunSummary, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	client BillingClient
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
}

// NewJobs creates a new Jobs runner. Dates are computed in loc.
func NewJobs(client BillingClient, logger *slog.Logger, loc *time.Location) *Jobs {
	if loc == nil {
		loc = time.UTC
	}
	return &Jobs{client: client, logger: logger, loc: loc, now: time.Now}
}

func (j *Jobs) today() time.Time {
	t := j.now().In(j.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GenerateInvoices runs the missing-invoice reconciliation.
func (j *Jobs) GenerateInvoices() {
	j.run("invoice generation", j.client.GenerateInvoices)
}

// MarkOverdue flips invoices past their due date.
func (j *Jobs) MarkOverdue() {
	j.run("overdue invoices", j.client.MarkOverdue)
}

// RunAuthorizations authorizes due payment schedules.
func (j *Jobs) RunAuthorizations() {
	j.run("payment authorization", j.client.RunAuthorizations)
}

// RunCaptures captures authorized payment schedules.
func (j *Jobs) RunCaptures() {
	j.run("payment capture", j.client.RunCaptures)
}

func (j *Jobs) run(name string, sweep func(context.Context, time.Time) (*billingclient.RunSummary, error)) {
	asOf := j.today()
	j.logger.Info("starting billing job", "job", name, "as_of", asOf.Format(time.DateOnly))

	summary, err := sweep(context.Background(), asOf)
	if errors.Is(err, billingclient.ErrSweepInProgress) {
		j.logger.Info("billing job already running elsewhere, skipping", "job", name)
		return
	}
	if err != nil {
		j.logger.Error("billing job failed", "job", name, "error", err)
		return
	}

	j.logger.Info("billing job finished",
		"job", name,
		"evaluated", summary.Evaluated,
		"generated", summary.Generated,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"marked_overdue", summary.MarkedOverdue,
	)
}
