// Package bootstrap handles one-time initialization tasks for the application.
package bootstrap

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kjellgren/kasse/internal/domain"
	"github.com/kjellgren/kasse/internal/postgres"
)

// defaultPaymentMethods is the registry seeded on first startup. The order
// core treats the registry as read-only; changing it is an operational task.
var defaultPaymentMethods = []domain.PaymentMethod{
	{
		Provider:  domain.PaymentProviderStripe,
		Name:      "Card payment",
		Type:      domain.PaymentMethodTypeCharge,
		Active:    true,
		IsDefault: true,
	},
	{
		Provider: domain.PaymentProviderEmailInvoice,
		Name:     "Invoice by email",
		Type:     domain.PaymentMethodTypeInvoice,
		Active:   true,
	},
	{
		Provider: domain.PaymentProviderEHF,
		Name:     "EHF e-invoice",
		Type:     domain.PaymentMethodTypeInvoice,
		Active:   true,
	},
}

// EnsurePaymentMethods seeds the payment-method registry if it is empty.
// This function is idempotent - safe to call on every startup.
func EnsurePaymentMethods(ctx context.Context, store *postgres.OrderStore, logger *slog.Logger) error {
	for _, pm := range defaultPaymentMethods {
		pm.ID = uuid.New()
		if err := store.SeedPaymentMethod(ctx, pm); err != nil {
			return err
		}
	}

	methods, err := store.ListPaymentMethods(ctx)
	if err != nil {
		return err
	}

	logger.Info("bootstrap: payment methods ready",
		slog.Int("count", len(methods)),
	)
	return nil
}
