package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjellgren/kasse/internal/billing"
	"github.com/kjellgren/kasse/internal/domain"
)

func acceptOnly(name string, accepted domain.PaymentProvider) *billing.MockProvider {
	return &billing.MockProvider{
		ProviderName: name,
		AcceptFunc: func(p domain.PaymentProvider) bool {
			return p == accepted
		},
	}
}

func Test_Registry_Resolve(t *testing.T) {
	stripeMock := acceptOnly("stripe", domain.PaymentProviderStripe)
	einvoiceMock := &billing.MockProvider{
		ProviderName: "einvoice",
		AcceptFunc: func(p domain.PaymentProvider) bool {
			return p == domain.PaymentProviderEmailInvoice || p == domain.PaymentProviderEHF
		},
	}
	registry := billing.NewRegistry(stripeMock, einvoiceMock)

	tests := []struct {
		provider domain.PaymentProvider
		want     string
	}{
		{provider: domain.PaymentProviderStripe, want: "stripe"},
		{provider: domain.PaymentProviderEmailInvoice, want: "einvoice"},
		{provider: domain.PaymentProviderEHF, want: "einvoice"},
	}

	for _, tt := range tests {
		t.Run(string(tt.provider), func(t *testing.T) {
			adapter, err := registry.Resolve(tt.provider)
			require.NoError(t, err)
			assert.Equal(t, tt.want, adapter.Name())
		})
	}
}

func Test_Registry_Resolve_NoMatch(t *testing.T) {
	registry := billing.NewRegistry(acceptOnly("stripe", domain.PaymentProviderStripe))

	_, err := registry.Resolve(domain.PaymentProviderEHF)

	assert.ErrorIs(t, err, billing.ErrNoProvider)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

// Test_Registry_Resolve_MultipleMatches: two adapters claiming the same
// payment provider is a misconfiguration and must fail loudly, never pick one.
func Test_Registry_Resolve_MultipleMatches(t *testing.T) {
	registry := billing.NewRegistry(
		acceptOnly("stripe", domain.PaymentProviderStripe),
		acceptOnly("stripe-shadow", domain.PaymentProviderStripe),
	)

	_, err := registry.Resolve(domain.PaymentProviderStripe)

	assert.ErrorIs(t, err, billing.ErrMultipleProviders)
	assert.Contains(t, err.Error(), "stripe")
	assert.Contains(t, err.Error(), "stripe-shadow")
}

func Test_Registry_Register(t *testing.T) {
	registry := billing.NewRegistry()

	_, err := registry.Resolve(domain.PaymentProviderStripe)
	require.ErrorIs(t, err, billing.ErrNoProvider)

	registry.Register(acceptOnly("stripe", domain.PaymentProviderStripe))

	adapter, err := registry.Resolve(domain.PaymentProviderStripe)
	require.NoError(t, err)
	assert.Equal(t, "stripe", adapter.Name())
}
