package billing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/kjellgren/kasse/internal/domain"
)

// Registry configuration errors.
var (
	// ErrNoProvider is returned when no registered adapter accepts a payment
	// provider. This is a configuration error, not a runtime condition.
	ErrNoProvider = &domain.Error{Code: domain.EINTERNAL, Message: "No billing provider accepts the payment method"}

	// ErrMultipleProviders is returned when more than one adapter accepts
	// the same payment provider.
	ErrMultipleProviders = &domain.Error{Code: domain.EINTERNAL, Message: "Multiple billing providers accept the payment method"}

	// ErrInvalidAmount is returned when a computed monetary amount is
	// non-positive or non-integral after minor-unit conversion.
	ErrInvalidAmount = &domain.Error{Code: domain.EINVALID, Message: "Invoice amount is not a positive whole minor-unit value"}
)

// ProviderError carries the normalized detail of an external billing
// failure. Raw transport or SDK errors never cross the billing boundary;
// every failure is wrapped in a domain.Error whose Err chain contains one of
// these.
type ProviderError struct {
	// Provider is the adapter name ("stripe", "einvoice").
	Provider string

	// StatusCode is the HTTP status from the provider, when known.
	StatusCode int

	// Message is the provider's own message, kept intact so a definitive
	// rejection can be surfaced to the operator.
	Message string

	// Retryable marks conflicts where the caller should re-fetch and retry
	// the dependent step (e.g. the customer record appeared concurrently).
	Retryable bool

	// Ambiguous marks failures where the adapter cannot tell whether a
	// prior attempt reached the provider. The caller must reconcile before
	// retrying; the adapter never re-issues on its own.
	Ambiguous bool

	// Err is the underlying transport/SDK error, for logging only.
	Err error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// unavailable wraps a transient provider failure (network error, 5xx, rate
// limit). Safe for the caller to retry with backoff, provided no success was
// observed.
func unavailable(op string, pe *ProviderError) error {
	return &domain.Error{
		Code:    domain.EUNAVAILABLE,
		Op:      op,
		Message: "billing provider temporarily unavailable",
		Err:     pe,
	}
}

// rejected wraps a definitive business-rule rejection. Not retryable without
// caller intervention; the provider message stays intact.
func rejected(op string, pe *ProviderError) error {
	return &domain.Error{
		Code:    domain.EREJECTED,
		Op:      op,
		Message: pe.Message,
		Err:     pe,
	}
}

// conflictRetryable wraps a lost race against a concurrent request (customer
// or invoice already exists). The caller re-fetches and retries the
// dependent step, not the whole operation.
func conflictRetryable(op string, pe *ProviderError) error {
	pe.Retryable = true
	return &domain.Error{
		Code:    domain.ECONFLICT,
		Op:      op,
		Message: pe.Message,
		Err:     pe,
	}
}

func invalidAmount(amount decimal.Decimal) error {
	return &domain.Error{
		Code:    domain.EINVALID,
		Op:      "billing.amount",
		Message: fmt.Sprintf("amount %s does not convert to a positive whole minor-unit value", amount),
		Err:     ErrInvalidAmount,
	}
}
