package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/kjellgren/kasse/internal/domain"
)

// EInvoiceConfig contains configuration for the invoice gateway adapter.
type EInvoiceConfig struct {
	// BaseURL is the gateway endpoint, e.g. "https://api.invoicegateway.no".
	BaseURL string

	// APIKey authenticates against the gateway.
	APIKey string

	// Timeout bounds each HTTP call. Defaults to 30s.
	Timeout time.Duration
}

// Validate checks that required configuration is present.
func (c *EInvoiceConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("einvoice: base URL is required")
	}
	if c.APIKey == "" {
		return errors.New("einvoice: API key is required")
	}
	return nil
}

// EInvoiceProvider is the deferred-settlement adapter. It issues an invoice
// through an external invoicing gateway which delivers it either by email or
// over the EHF e-invoice network. EHF delivery requires the customer's
// organization number; without one the gateway falls back to email.
type EInvoiceProvider struct {
	config     EInvoiceConfig
	httpClient *http.Client
	clock      Clock
}

var _ Provider = (*EInvoiceProvider)(nil)

// NewEInvoiceProvider creates the invoice gateway adapter. A nil clock
// defaults to time.Now.
func NewEInvoiceProvider(config EInvoiceConfig, clock Clock) (*EInvoiceProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &EInvoiceProvider{
		config:     config,
		httpClient: &http.Client{Timeout: timeout},
		clock:      clock,
	}, nil
}

// Name identifies the adapter in logs and errors.
func (p *EInvoiceProvider) Name() string {
	return "einvoice"
}

// AcceptPaymentProvider reports whether this adapter handles the provider.
// One adapter serves both invoice rails; delivery is decided by the gateway
// from the recipient's organization number.
func (p *EInvoiceProvider) AcceptPaymentProvider(provider domain.PaymentProvider) bool {
	return provider == domain.PaymentProviderEmailInvoice || provider == domain.PaymentProviderEHF
}

// Gateway wire types.

type gatewayRecipient struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	OrgNumber string `json:"org_number,omitempty"`
}

type gatewayRecipientList struct {
	Recipients []gatewayRecipient `json:"recipients"`
}

type gatewayInvoiceLine struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`

	// AmountCents is the line total in minor units, tax inclusive and
	// already multiplied by quantity. The gateway must not re-apply
	// quantity to it.
	AmountCents int64 `json:"amount_cents"`
}

type gatewayInvoiceRequest struct {
	RecipientID    string               `json:"recipient_id"`
	OrderReference string               `json:"order_reference"`
	Currency       string               `json:"currency"`
	DueInDays      int                  `json:"due_in_days"`
	Description    string               `json:"description,omitempty"`
	Lines          []gatewayInvoiceLine `json:"lines"`
}

type gatewayInvoiceResponse struct {
	ID string `json:"id"`
}

type gatewayError struct {
	Message string `json:"message"`
}

// CreateInvoice issues an invoice through the gateway: resolve the
// recipient (bounded lookup, create on miss), then post one monetary line
// per product line and the text lines folded into the description.
func (p *EInvoiceProvider) CreateInvoice(ctx context.Context, info InvoiceInfo) (*InvoiceResult, error) {
	const op = "billing.einvoice.create_invoice"

	if err := info.Validate(); err != nil {
		return nil, err
	}

	recipientID, err := p.findOrCreateRecipient(ctx, info)
	if err != nil {
		return nil, err
	}

	reqBody := gatewayInvoiceRequest{
		RecipientID:    recipientID,
		OrderReference: info.OrderReference,
		Currency:       info.Currency,
		DueInDays:      daysUntilDue(info.DueDate, p.clock()),
		Description:    info.Description(),
	}

	for _, line := range info.Lines {
		if line.Type != LineTypeProduct {
			continue
		}
		cents, err := minorUnits(line.Total)
		if err != nil {
			return nil, err
		}
		reqBody.Lines = append(reqBody.Lines, gatewayInvoiceLine{
			Description: line.Description,
			Quantity:    line.Quantity,
			AmountCents: cents,
		})
	}

	var result gatewayInvoiceResponse
	if err := p.do(ctx, http.MethodPost, "/v1/invoices", reqBody, &result); err != nil {
		return nil, err
	}

	return &InvoiceResult{ProviderInvoiceID: result.ID}, nil
}

// findOrCreateRecipient resolves the gateway recipient for the customer
// email. Lookup is bounded to a single result. The organization number is
// propagated on create when present; the gateway needs it for EHF network
// delivery.
func (p *EInvoiceProvider) findOrCreateRecipient(ctx context.Context, info InvoiceInfo) (string, error) {
	query := url.Values{}
	query.Set("email", info.CustomerEmail)
	query.Set("limit", "1")

	var list gatewayRecipientList
	if err := p.do(ctx, http.MethodGet, "/v1/recipients?"+query.Encode(), nil, &list); err != nil {
		return "", err
	}
	if len(list.Recipients) > 0 {
		return list.Recipients[0].ID, nil
	}

	create := gatewayRecipient{
		Email:     info.CustomerEmail,
		Name:      info.CustomerName,
		OrgNumber: info.VATNumber,
	}

	var created gatewayRecipient
	if err := p.do(ctx, http.MethodPost, "/v1/recipients", create, &created); err != nil {
		return "", err
	}
	return created.ID, nil
}

// do executes one gateway call and normalizes every non-success outcome into
// the error taxonomy. Raw transport errors never escape.
func (p *EInvoiceProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	const op = "billing.einvoice.request"

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return domain.Internal(err, op, "failed to marshal gateway request")
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.BaseURL+path, reqBody)
	if err != nil {
		return domain.Internal(err, op, "failed to build gateway request")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// A mutating call may have reached the gateway before failing.
		return unavailable(op, &ProviderError{
			Provider:  "einvoice",
			Message:   "request failed before a gateway response was received",
			Ambiguous: method != http.MethodGet,
			Err:       err,
		})
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return unavailable(op, &ProviderError{
			Provider:  "einvoice",
			Message:   "failed to read gateway response",
			Ambiguous: method != http.MethodGet,
			Err:       err,
		})
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			if err := json.Unmarshal(respBody, out); err != nil {
				return domain.Internal(err, op, "failed to parse gateway response")
			}
		}
		return nil
	}

	pe := &ProviderError{
		Provider:   "einvoice",
		StatusCode: resp.StatusCode,
		Message:    gatewayMessage(respBody, resp.StatusCode),
	}

	switch {
	case resp.StatusCode >= 500:
		return unavailable(op, pe)
	case resp.StatusCode == http.StatusConflict:
		return conflictRetryable(op, pe)
	default:
		return rejected(op, pe)
	}
}

// gatewayMessage extracts the gateway's error message, falling back to the
// status code when the body is not the documented error shape.
func gatewayMessage(body []byte, statusCode int) string {
	var ge gatewayError
	if err := json.Unmarshal(body, &ge); err == nil && ge.Message != "" {
		return ge.Message
	}
	return fmt.Sprintf("gateway returned status %d", statusCode)
}
