package billing

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kjellgren/kasse/internal/domain"
)

// DefaultDueDays is applied when an invoice snapshot carries no due date:
// the invoice falls due this many days after "now" at call time.
const DefaultDueDays = 30

// Clock returns the current time. Adapters never read the ambient wall
// clock directly so tests can fix "now".
type Clock func() time.Time

// Provider is the capability interface implemented once per billing backend.
type Provider interface {
	// Name identifies the adapter in logs and errors.
	Name() string

	// AcceptPaymentProvider reports whether this adapter handles orders
	// configured with the given payment provider. Pure predicate, no side
	// effects. Exactly one registered adapter must accept a given value.
	AcceptPaymentProvider(provider domain.PaymentProvider) bool

	// CreateInvoice performs the external invoice/charge call. It must be
	// safe for the caller to retry, but must not retry silently itself: if
	// the adapter cannot determine whether a prior attempt succeeded it
	// surfaces the ambiguity (ProviderError.Ambiguous) instead of
	// re-issuing. Cancellation and timeout come from ctx.
	CreateInvoice(ctx context.Context, info InvoiceInfo) (*InvoiceResult, error)
}

// InvoiceLineType classifies invoice lines.
type InvoiceLineType string

const (
	// LineTypeProduct lines contribute amount and quantity to the monetary
	// total of the invoice or charge.
	LineTypeProduct InvoiceLineType = "product"

	// LineTypeText lines contribute descriptive text only, never an amount.
	// Some providers only support a single aggregated description field
	// alongside itemized monetary lines.
	LineTypeText InvoiceLineType = "text"
)

// InvoiceLine is one entry of an invoice snapshot.
type InvoiceLine struct {
	Type        InvoiceLineType
	Description string

	// Quantity is informational for display; Total is already
	// quantity-inclusive and adapters must not re-multiply.
	Quantity int64

	// Total is the line amount in major currency units. Zero for text lines.
	Total decimal.Decimal
}

// InvoiceInfo is an immutable, single-use snapshot of order data shaped for
// one provider call. Never mutated after construction.
type InvoiceInfo struct {
	OrderID        uuid.UUID
	OrderReference string
	CustomerName   string
	CustomerEmail  string `validate:"required,email"`
	VATNumber      string
	Currency       string `validate:"required,iso4217"`

	// DueDate is optional; adapters default it to DefaultDueDays from
	// clock-now when absent.
	DueDate *time.Time

	Lines []InvoiceLine `validate:"min=1"`
}

// InvoiceResult carries the provider's external invoice/charge identifier.
// The caller persists it as a durable cross-reference.
type InvoiceResult struct {
	ProviderInvoiceID string
}

var validate = validator.New()

// Validate checks the snapshot before any provider call so malformed data
// never reaches the transport.
func (i InvoiceInfo) Validate() error {
	if err := validate.Struct(i); err != nil {
		return domain.WrapError(err, domain.EINVALID, "billing.validate", "invalid invoice snapshot")
	}
	return nil
}

// MonetaryTotal sums the product lines. Text lines contribute nothing.
func (i InvoiceInfo) MonetaryTotal() decimal.Decimal {
	total := decimal.Zero
	for _, line := range i.Lines {
		if line.Type == LineTypeProduct {
			total = total.Add(line.Total)
		}
	}
	return total
}

// Description concatenates the text lines, joined with " / ". Used by
// providers that only support a single free-text field.
func (i InvoiceInfo) Description() string {
	var parts []string
	for _, line := range i.Lines {
		if line.Type == LineTypeText && line.Description != "" {
			parts = append(parts, line.Description)
		}
	}
	return strings.Join(parts, " / ")
}

// BuildInvoiceInfo shapes an order into a provider-neutral snapshot:
// one product line per order line, plus a text line for the customer's
// invoice reference when present.
func BuildInvoiceInfo(order *domain.Order, currency string) InvoiceInfo {
	info := InvoiceInfo{
		OrderID:        order.ID,
		OrderReference: order.ID.String(),
		CustomerName:   order.CustomerName,
		CustomerEmail:  order.CustomerEmail,
		VATNumber:      order.VATNumber,
		Currency:       currency,
	}

	for _, line := range order.Lines {
		info.Lines = append(info.Lines, InvoiceLine{
			Type:        LineTypeProduct,
			Description: line.Description,
			Quantity:    line.Quantity,
			Total:       line.LineTotal(),
		})
	}

	if order.InvoiceReference != "" {
		info.Lines = append(info.Lines, InvoiceLine{
			Type:        LineTypeText,
			Description: "Ref: " + order.InvoiceReference,
		})
	}

	return info
}

// minorUnits converts a major-unit amount to minor units (cents, øre).
// Fails with ErrInvalidAmount when the converted amount is not integral:
// that indicates a data problem upstream, not something to round away.
func minorUnits(amount decimal.Decimal) (int64, error) {
	shifted := amount.Shift(2)
	if !shifted.IsInteger() {
		return 0, invalidAmount(amount)
	}
	return shifted.IntPart(), nil
}

// positiveMinorUnits is minorUnits plus the charge-side requirement that the
// amount be strictly positive.
func positiveMinorUnits(amount decimal.Decimal) (int64, error) {
	cents, err := minorUnits(amount)
	if err != nil {
		return 0, err
	}
	if cents <= 0 {
		return 0, invalidAmount(amount)
	}
	return cents, nil
}

// daysUntilDue computes the provider-facing "days until due" figure from the
// snapshot's due date and the injected clock. Without a due date the default
// horizon applies.
func daysUntilDue(due *time.Time, now time.Time) int {
	if due == nil {
		return DefaultDueDays
	}
	return int(due.Sub(now) / (24 * time.Hour))
}
