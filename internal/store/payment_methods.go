package store

import (
	"context"

	"github.com/nannygold/billing-service/internal/domain"
)

// GetPaymentMethod returns the client's stored reusable card authorization.
func (r *Repository) GetPaymentMethod(ctx context.Context, clientID string) (*domain.PaymentMethod, error) {
	var pm domain.PaymentMethod
	err := r.db.QueryRow(ctx, `
		SELECT client_id, email, authorization_code, card_last4, card_brand, reusable, updated_at
		FROM client_payment_methods
		WHERE client_id = $1
	`, clientID).Scan(&pm.ClientID, &pm.Email, &pm.AuthorizationCode, &pm.CardLast4, &pm.CardBrand, &pm.Reusable, &pm.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &pm, nil
}

// UpsertPaymentMethod stores or replaces the client's card authorization.
func (r *Repository) UpsertPaymentMethod(ctx context.Context, pm domain.PaymentMethod) (*domain.PaymentMethod, error) {
	var saved domain.PaymentMethod
	err := r.db.QueryRow(ctx, `
		INSERT INTO client_payment_methods (client_id, email, authorization_code, card_last4, card_brand, reusable)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id) DO UPDATE
		SET email = EXCLUDED.email,
		    authorization_code = EXCLUDED.authorization_code,
		    card_last4 = EXCLUDED.card_last4,
		    card_brand = EXCLUDED.card_brand,
		    reusable = EXCLUDED.reusable,
		    updated_at = NOW()
		RETURNING client_id, email, authorization_code, card_last4, card_brand, reusable, updated_at
	`, pm.ClientID, pm.Email, pm.AuthorizationCode, pm.CardLast4, pm.CardBrand, pm.Reusable).Scan(
		&saved.ClientID, &saved.Email, &saved.AuthorizationCode, &saved.CardLast4, &saved.CardBrand, &saved.Reusable, &saved.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetClientEmail returns the email on the client's profile.
func (r *Repository) GetClientEmail(ctx context.Context, clientID string) (string, error) {
	var email *string
	if err := r.db.QueryRow(ctx, `SELECT email FROM client_profiles WHERE id = $1`, clientID).Scan(&email); err != nil {
		return "", notFound(err)
	}
	if email == nil {
		return "", nil
	}
	return *email, nil
}
