/**
 * @description
 * Client the scheduler uses to trigger billing sweeps on the billing service.
 */
package billingclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrSweepInProgress is returned when another replica is already running the sweep.
var ErrSweepInProgress = errors.New("billing sweep already in progress")

// RunSummary is the subset of sweep results the scheduler logs. Fields a
// given sweep does not report stay zero.
type RunSummary struct {
	Evaluated     int `json:"evaluated"`
	Generated     int `json:"generated"`
	Succeeded     int `json:"succeeded"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	Errors        int `json:"errors"`
	MarkedOverdue int `json:"marked_overdue"`
}

// Client provides methods to interact with the billing service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new billing service client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// GenerateInvoices triggers the missing-invoice reconciliation sweep.
func (c *Client) GenerateInvoices(ctx context.Context, asOf time.Time) (*RunSummary, error) {
	return c.post(ctx, "/internal/billing/invoices/generate", asOf)
}

// MarkOverdue flips unpaid invoices past their due date.
func (c *Client) MarkOverdue(ctx context.Context, asOf time.Time) (*RunSummary, error) {
	return c.post(ctx, "/internal/billing/invoices/overdue/run", asOf)
}

// RunAuthorizations triggers the authorization stage for due schedules.
func (c *Client) RunAuthorizations(ctx context.Context, asOf time.Time) (*RunSummary, error) {
	return c.post(ctx, "/internal/billing/authorizations/run", asOf)
}

// RunCaptures triggers the capture stage for due schedules.
func (c *Client) RunCaptures(ctx context.Context, asOf time.Time) (*RunSummary, error) {
	return c.post(ctx, "/internal/billing/captures/run", asOf)
}

func (c *Client) post(ctx context.Context, path string, asOf time.Time) (*RunSummary, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("billing service base URL is not configured")
	}

	target := c.baseURL + path
	if !asOf.IsZero() {
		target += "?" + url.Values{"as_of": {asOf.Format(time.DateOnly)}}.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewBuffer([]byte("{}")))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, ErrSweepInProgress
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("billing service returned status %d", resp.StatusCode)
	}

	var summary RunSummary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		return nil, fmt.Errorf("failed to parse billing response: %w", err)
	}
	return &summary, nil
}
