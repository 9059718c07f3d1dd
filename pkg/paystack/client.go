/**
 * @description
 * Client for the Paystack transaction API. It covers card setup
 * (initialize + verify), recurring charges against a stored authorization code
 * and verification of a charge reference, which the billing engine uses as its
 * capture step.
 */
package paystack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultBaseURL is Paystack's production API.
const DefaultBaseURL = "https://api.paystack.co"

// Transaction statuses reported by Paystack.
const (
	StatusSuccess   = "success"
	StatusFailed    = "failed"
	StatusAbandoned = "abandoned"
	StatusPending   = "pending"
)

// Client is a client for the Paystack API.
type Client struct {
	baseURL    string
	secretKey  string
	httpClient *http.Client
}

// NewClient creates a new Paystack API client.
func NewClient(baseURL, secretKey string) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ToSubunits converts a major-unit amount to the integer subunits Paystack expects.
func ToSubunits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromSubunits converts Paystack subunits back to a major-unit amount.
func FromSubunits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// InitializeRequest starts a card payment the client completes on Paystack's page.
type InitializeRequest struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	Reference   string            `json:"reference,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// InitializeResponse carries the checkout URL for an initialized transaction.
type InitializeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// ChargeRequest debits a stored authorization.
type ChargeRequest struct {
	Email             string            `json:"email"`
	Amount            int64             `json:"amount"`
	AuthorizationCode string            `json:"authorization_code"`
	Currency          string            `json:"currency,omitempty"`
	Reference         string            `json:"reference,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// Authorization describes a reusable card authorization.
type Authorization struct {
	AuthorizationCode string `json:"authorization_code"`
	Last4             string `json:"last4"`
	Brand             string `json:"brand"`
	Reusable          bool   `json:"reusable"`
}

// Transaction is the transaction object returned by charge and verify calls.
type Transaction struct {
	ID              int64         `json:"id"`
	Status          string        `json:"status"`
	Reference       string        `json:"reference"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency"`
	GatewayResponse string        `json:"gateway_response"`
	PaidAt          *time.Time    `json:"paid_at"`
	Authorization   Authorization `json:"authorization"`
	Metadata        Metadata      `json:"metadata"`
	Customer        struct {
		Email string `json:"email"`
	} `json:"customer"`
}

// Metadata holds the string fields attached to a transaction at initialize or
// charge time. Paystack echoes metadata back as an object, as a JSON-encoded
// string, or as an empty string or 0 when none was set; non-string values are
// dropped.
type Metadata map[string]string

func (m *Metadata) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return err
		}
		raw = []byte(strings.TrimSpace(encoded))
	}
	if len(raw) == 0 || raw[0] != '{' {
		*m = Metadata{}
		return nil
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("decode transaction metadata: %w", err)
	}
	out := make(Metadata, len(fields))
	for k, v := range fields {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	*m = out
	return nil
}

// Succeeded reports whether Paystack settled the transaction.
func (t Transaction) Succeeded() bool {
	return t.Status == StatusSuccess
}

// APIError is a non-2xx or status=false response from Paystack.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("paystack api error (status %d): %s", e.StatusCode, e.Message)
}

type envelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize creates a checkout session used to capture the client's card.
func (c *Client) Initialize(ctx context.Context, reqPayload InitializeRequest) (*InitializeResponse, error) {
	var out InitializeResponse
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", reqPayload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChargeAuthorization debits a stored authorization. A declined charge is
// returned as a Transaction with a non-success status, not as an error.
func (c *Client) ChargeAuthorization(ctx context.Context, reqPayload ChargeRequest) (*Transaction, error) {
	var out Transaction
	if err := c.do(ctx, http.MethodPost, "/transaction/charge_authorization", reqPayload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify fetches the final state of a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*Transaction, error) {
	if strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("reference is required")
	}
	var out Transaction
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal paystack request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create paystack request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute paystack request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read paystack response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &APIError{StatusCode: resp.StatusCode, Message: "unparsable response body"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || !env.Status {
		return &APIError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode paystack data: %w", err)
		}
	}
	return nil
}
