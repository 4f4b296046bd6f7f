package billing

import (
	"context"
	"errors"
	"strings"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"

	"github.com/kjellgren/kasse/internal/domain"
)

// StripeConfig contains configuration for the Stripe charge adapter.
type StripeConfig struct {
	// APIKey is the Stripe secret key (sk_test_... or sk_live_...).
	APIKey string
}

// Validate checks that required configuration is present.
func (c *StripeConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("stripe: API key is required")
	}
	return nil
}

// IsTestMode returns true if using test mode API keys.
func (c *StripeConfig) IsTestMode() bool {
	return strings.HasPrefix(c.APIKey, "sk_test_")
}

// StripeProvider is the immediate-capture adapter: it charges the customer's
// card for the full order amount at invoicing time.
type StripeProvider struct {
	config StripeConfig
	sc     *client.API
}

var _ Provider = (*StripeProvider)(nil)

// NewStripeProvider creates the Stripe charge adapter.
func NewStripeProvider(config StripeConfig) (*StripeProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	sc := &client.API{}
	sc.Init(config.APIKey, nil)

	return &StripeProvider{
		config: config,
		sc:     sc,
	}, nil
}

// Name identifies the adapter in logs and errors.
func (s *StripeProvider) Name() string {
	return "stripe"
}

// AcceptPaymentProvider reports whether this adapter handles the provider.
func (s *StripeProvider) AcceptPaymentProvider(provider domain.PaymentProvider) bool {
	return provider == domain.PaymentProviderStripe
}

// CreateInvoice charges the snapshot's monetary total against the customer's
// card. The customer record is looked up by email (bounded to one result) or
// created on miss; the charge itself is a confirmed off-session payment
// intent keyed by order id, so a duplicate call surfaces as a detectable
// idempotency replay on the Stripe side rather than a second charge.
func (s *StripeProvider) CreateInvoice(ctx context.Context, info InvoiceInfo) (*InvoiceResult, error) {
	const op = "billing.stripe.create_invoice"

	if err := info.Validate(); err != nil {
		return nil, err
	}

	amount, err := positiveMinorUnits(info.MonetaryTotal())
	if err != nil {
		return nil, err
	}

	customerID, err := s.findOrCreateCustomer(ctx, info)
	if err != nil {
		return nil, err
	}

	piParams := &stripe.PaymentIntentParams{
		Params: stripe.Params{
			Context:        ctx,
			IdempotencyKey: stripe.String("order-charge-" + info.OrderID.String()),
		},
		Amount:     stripe.Int64(amount),
		Currency:   stripe.String(strings.ToLower(info.Currency)),
		Customer:   stripe.String(customerID),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
	}
	if desc := info.Description(); desc != "" {
		piParams.Description = stripe.String(desc)
	}
	piParams.AddMetadata("order_id", info.OrderID.String())

	pi, err := s.sc.PaymentIntents.New(piParams)
	if err != nil {
		return nil, s.translateError(op, err)
	}

	return &InvoiceResult{ProviderInvoiceID: pi.ID}, nil
}

// findOrCreateCustomer resolves the Stripe customer for the snapshot's
// email. Lookup is a single bounded query; on a miss the customer is
// created. A create that loses a race against a concurrent request comes
// back as a retryable conflict, not a crash.
func (s *StripeProvider) findOrCreateCustomer(ctx context.Context, info InvoiceInfo) (string, error) {
	const op = "billing.stripe.customer"

	listParams := &stripe.CustomerListParams{
		Email: stripe.String(info.CustomerEmail),
	}
	listParams.Context = ctx
	listParams.Limit = stripe.Int64(1)

	iter := s.sc.Customers.List(listParams)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", s.translateError(op, err)
	}

	createParams := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(info.CustomerEmail),
	}
	if info.CustomerName != "" {
		createParams.Name = stripe.String(info.CustomerName)
	}
	if info.VATNumber != "" {
		createParams.AddMetadata("vat_number", info.VATNumber)
	}

	cust, err := s.sc.Customers.New(createParams)
	if err != nil {
		return "", s.translateError(op, err)
	}
	return cust.ID, nil
}

// translateError maps Stripe SDK failures onto the error taxonomy. Raw
// *stripe.Error values never cross the billing boundary.
func (s *StripeProvider) translateError(op string, err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		// Transport-level failure: the request may or may not have reached
		// Stripe, so the outcome is ambiguous.
		return unavailable(op, &ProviderError{
			Provider:  "stripe",
			Message:   "request failed before a Stripe response was received",
			Ambiguous: true,
			Err:       err,
		})
	}

	pe := &ProviderError{
		Provider:   "stripe",
		StatusCode: stripeErr.HTTPStatusCode,
		Message:    stripeErr.Msg,
		Err:        err,
	}

	switch {
	case stripeErr.Code == stripe.ErrorCodeRateLimit,
		stripeErr.Type == stripe.ErrorTypeAPI,
		stripeErr.HTTPStatusCode >= 500:
		return unavailable(op, pe)

	case stripeErr.Code == stripe.ErrorCodeResourceAlreadyExists,
		stripeErr.Type == stripe.ErrorTypeIdempotency:
		return conflictRetryable(op, pe)

	default:
		// Card declines and invalid-request errors are definitive
		// rejections; the operator needs Stripe's message to act.
		return rejected(op, pe)
	}
}
