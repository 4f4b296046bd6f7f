package billing_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjellgren/kasse/internal/billing"
	"github.com/kjellgren/kasse/internal/domain"
)

func Test_StripeConfig_Validate(t *testing.T) {
	cfg := billing.StripeConfig{}
	assert.Error(t, cfg.Validate())

	cfg.APIKey = "sk_test_123"
	assert.NoError(t, cfg.Validate())
}

func Test_StripeConfig_IsTestMode(t *testing.T) {
	assert.True(t, (&billing.StripeConfig{APIKey: "sk_test_123"}).IsTestMode())
	assert.False(t, (&billing.StripeConfig{APIKey: "sk_live_123"}).IsTestMode())
}

func Test_StripeProvider_AcceptPaymentProvider(t *testing.T) {
	provider, err := billing.NewStripeProvider(billing.StripeConfig{APIKey: "sk_test_123"})
	require.NoError(t, err)

	assert.Equal(t, "stripe", provider.Name())
	assert.True(t, provider.AcceptPaymentProvider(domain.PaymentProviderStripe))
	assert.False(t, provider.AcceptPaymentProvider(domain.PaymentProviderEmailInvoice))
	assert.False(t, provider.AcceptPaymentProvider(domain.PaymentProviderEHF))
}

// Test_StripeProvider_CreateInvoice_InvalidAmount: the amount guard runs
// before any Stripe call, so these cases fail locally without touching the
// network.
func Test_StripeProvider_CreateInvoice_InvalidAmount(t *testing.T) {
	provider, err := billing.NewStripeProvider(billing.StripeConfig{APIKey: "sk_test_123"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		total string
	}{
		{name: "zero total", total: "0"},
		{name: "negative total", total: "-20"},
		{name: "sub-cent total", total: "10.005"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := validInfo(t)
			info.Lines = []billing.InvoiceLine{
				{Type: billing.LineTypeProduct, Description: "Item", Quantity: 1, Total: amount(t, tt.total)},
			}

			_, err := provider.CreateInvoice(context.Background(), info)

			assert.ErrorIs(t, err, billing.ErrInvalidAmount)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func Test_StripeProvider_CreateInvoice_RejectsInvalidSnapshot(t *testing.T) {
	provider, err := billing.NewStripeProvider(billing.StripeConfig{APIKey: "sk_test_123"})
	require.NoError(t, err)

	info := validInfo(t)
	info.CustomerEmail = ""

	_, err = provider.CreateInvoice(context.Background(), info)

	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
