package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/nannygold/billing-service/internal/domain"
	"github.com/nannygold/billing-service/pkg/paystack"
	"github.com/shopspring/decimal"
)

// cardSetupAmount is the nominal charge used to tokenize a card.
var cardSetupAmount = decimal.RequireFromString("1.00")

const cardSetupPurpose = "payment_method_setup"

// InitializePaymentMethod starts a gateway checkout the client completes to
// register a reusable card. The client's profile email is used when email is empty.
func (s Service) InitializePaymentMethod(ctx context.Context, clientID, email, callbackURL string) (*paystack.InitializeResponse, error) {
	if clientID == "" {
		return nil, fmt.Errorf("%w: client ID cannot be empty", domain.ErrInvalidInput)
	}

	email = strings.TrimSpace(email)
	if email == "" {
		profileEmail, err := s.repo.GetClientEmail(ctx, clientID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		email = profileEmail
	}
	if email == "" {
		return nil, fmt.Errorf("%w: an email address is required", domain.ErrInvalidInput)
	}

	resp, err := s.gateway.Initialize(ctx, paystack.InitializeRequest{
		Email:       email,
		Amount:      paystack.ToSubunits(cardSetupAmount),
		Currency:    s.opts.Currency,
		Reference:   "NG-PM-" + uuid.NewString(),
		CallbackURL: callbackURL,
		Metadata: map[string]string{
			"client_id": clientID,
			"purpose":   cardSetupPurpose,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: initialize transaction: %w", domain.ErrGateway, err)
	}
	return resp, nil
}

// VerifyPaymentMethod confirms a completed checkout and stores the reusable
// card authorization used by the monthly charges. The checkout must be a card
// setup started by the same client.
func (s Service) VerifyPaymentMethod(ctx context.Context, clientID, reference string) (*domain.PaymentMethod, error) {
	if clientID == "" || strings.TrimSpace(reference) == "" {
		return nil, fmt.Errorf("%w: client ID and reference are required", domain.ErrInvalidInput)
	}

	tx, err := s.gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("%w: verify transaction: %w", domain.ErrGateway, err)
	}
	if !tx.Succeeded() {
		return nil, fmt.Errorf("%w: %s", domain.ErrGateway, gatewayReason(tx))
	}
	if tx.Metadata["purpose"] != cardSetupPurpose {
		return nil, fmt.Errorf("%w: reference %s is not a card setup checkout", domain.ErrInvalidInput, reference)
	}
	if owner := tx.Metadata["client_id"]; owner != clientID {
		s.logger.Warn("card setup reference belongs to another client", "client_id", clientID, "reference", reference)
		return nil, fmt.Errorf("%w: reference %s was not issued to this client", domain.ErrInvalidInput, reference)
	}
	if tx.Authorization.AuthorizationCode == "" || !tx.Authorization.Reusable {
		return nil, fmt.Errorf("%w: card authorization is not reusable", domain.ErrInvalidInput)
	}

	method := domain.PaymentMethod{
		ClientID:          clientID,
		Email:             tx.Customer.Email,
		AuthorizationCode: tx.Authorization.AuthorizationCode,
		Reusable:          true,
	}
	if last4 := tx.Authorization.Last4; last4 != "" {
		method.CardLast4 = &last4
	}
	if brand := tx.Authorization.Brand; brand != "" {
		method.CardBrand = &brand
	}

	saved, err := s.repo.UpsertPaymentMethod(ctx, method)
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment method stored", "client_id", clientID, "reference", reference)
	return saved, nil
}
