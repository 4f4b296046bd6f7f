package billing

import (
	"context"

	"github.com/google/uuid"

	"github.com/kjellgren/kasse/internal/domain"
)

// MockProvider is a billing provider for tests and local development.
// It accepts every payment provider unless AcceptFunc is set.
type MockProvider struct {
	// ProviderName overrides the reported name. Defaults to "mock".
	ProviderName string

	// AcceptFunc customizes routing. When nil, the mock accepts everything.
	AcceptFunc func(provider domain.PaymentProvider) bool

	// CreateInvoiceFunc customizes invoice creation behavior.
	CreateInvoiceFunc func(ctx context.Context, info InvoiceInfo) (*InvoiceResult, error)

	// Invoices stores successful calls keyed by the generated invoice id.
	Invoices map[string]InvoiceInfo

	// Calls tracks every CreateInvoice invocation for test assertions.
	Calls []InvoiceInfo
}

var _ Provider = (*MockProvider)(nil)

// NewMockProvider creates a new mock billing provider.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		Invoices: make(map[string]InvoiceInfo),
	}
}

// Name identifies the adapter in logs and errors.
func (m *MockProvider) Name() string {
	if m.ProviderName != "" {
		return m.ProviderName
	}
	return "mock"
}

// AcceptPaymentProvider reports whether the mock handles the provider.
func (m *MockProvider) AcceptPaymentProvider(provider domain.PaymentProvider) bool {
	if m.AcceptFunc != nil {
		return m.AcceptFunc(provider)
	}
	return true
}

// CreateInvoice records the call and returns a generated invoice id.
func (m *MockProvider) CreateInvoice(ctx context.Context, info InvoiceInfo) (*InvoiceResult, error) {
	m.Calls = append(m.Calls, info)

	if m.CreateInvoiceFunc != nil {
		return m.CreateInvoiceFunc(ctx, info)
	}

	if err := info.Validate(); err != nil {
		return nil, err
	}

	id := "inv_" + uuid.New().String()
	m.Invoices[id] = info
	return &InvoiceResult{ProviderInvoiceID: id}, nil
}
