package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentProvider identifies a billing backend.
type PaymentProvider string

const (
	// PaymentProviderStripe charges the customer's card immediately.
	PaymentProviderStripe PaymentProvider = "stripe"

	// PaymentProviderEmailInvoice sends an invoice by email for deferred settlement.
	PaymentProviderEmailInvoice PaymentProvider = "email_invoice"

	// PaymentProviderEHF delivers an e-invoice over the EHF network.
	// Requires the customer's organization number.
	PaymentProviderEHF PaymentProvider = "ehf"
)

// PaymentMethodType distinguishes immediate charges from deferred invoices.
type PaymentMethodType string

const (
	PaymentMethodTypeCharge  PaymentMethodType = "charge"
	PaymentMethodTypeInvoice PaymentMethodType = "invoice"
)

// PaymentMethod is one entry in the payment-method registry. The registry is
// seeded once at bootstrap and read-only to this core.
type PaymentMethod struct {
	ID        uuid.UUID
	Provider  PaymentProvider
	Name      string
	Type      PaymentMethodType
	Active    bool
	IsDefault bool
	CreatedAt time.Time
}
