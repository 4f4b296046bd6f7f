package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is one priced, quantified entry within an order: a
// product/variant charge or its refund mirror. Quantity is signed; refund
// lines carry the exact negation of the source line's quantity.
type OrderLine struct {
	ID               uuid.UUID
	OrderID          uuid.UUID
	ProductID        uuid.UUID
	ProductVariantID *uuid.UUID
	Description      string

	// Price is the unit price in major currency units.
	Price decimal.Decimal

	// Quantity is positive for charges and negative for refunds.
	Quantity int64

	// IsRefund marks a line produced by CreateRefundOrderLine. A refund line
	// can never itself be refunded.
	IsRefund       bool
	RefundOfLineID *uuid.UUID

	CreatedAt time.Time
}

// LineTotal is always Price * Quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(l.Quantity))
}

// CreateRefundOrderLine produces the exact negation of a charge line:
// same product, variant and unit price, negated quantity. Fails with
// ErrAlreadyRefunded when called on a line that is itself a refund line,
// which is what prevents double-refunding.
func CreateRefundOrderLine(line OrderLine) (OrderLine, error) {
	if line.IsRefund {
		return OrderLine{}, &Error{
			Code:    ECONFLICT,
			Op:      "order.refund_line",
			Message: "line is already a refund line",
			Err:     ErrAlreadyRefunded,
		}
	}

	sourceID := line.ID
	return OrderLine{
		ID:               uuid.New(),
		ProductID:        line.ProductID,
		ProductVariantID: line.ProductVariantID,
		Description:      line.Description,
		Price:            line.Price,
		Quantity:         -line.Quantity,
		IsRefund:         true,
		RefundOfLineID:   &sourceID,
	}, nil
}

// Order is the aggregate representing a purchase. It owns its lines and its
// status; the status only changes through SetStatus, and lines only change
// while CanEdit reports true.
type Order struct {
	ID     uuid.UUID
	Status OrderStatus

	// Customer snapshot, captured at order creation and immutable once set.
	CustomerName     string
	CustomerEmail    string
	VATNumber        string
	InvoiceReference string

	// PaymentProvider selects the billing backend used to invoice this order.
	PaymentProvider PaymentProvider

	// ExternalInvoiceID is the provider's invoice/charge identifier, recorded
	// after a successful provider call.
	ExternalInvoiceID string

	// RefundOfOrderID links a refund order back to the order it negates.
	RefundOfOrderID *uuid.UUID

	Lines []OrderLine

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrderParams carries the customer snapshot for a new order.
type NewOrderParams struct {
	CustomerName     string
	CustomerEmail    string
	VATNumber        string
	InvoiceReference string
	PaymentProvider  PaymentProvider
}

// NewOrder creates an empty order in Draft.
func NewOrder(params NewOrderParams) *Order {
	now := time.Now()
	return &Order{
		ID:               uuid.New(),
		Status:           OrderStatusDraft,
		CustomerName:     params.CustomerName,
		CustomerEmail:    params.CustomerEmail,
		VATNumber:        params.VATNumber,
		InvoiceReference: params.InvoiceReference,
		PaymentProvider:  params.PaymentProvider,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// RestoreOrder rehydrates an order in an arbitrary status, bypassing the
// transition graph. It exists for the persistence layer and for tests that
// need to establish a starting state; production transitions still go
// through SetStatus.
func RestoreOrder(id uuid.UUID, status OrderStatus, params NewOrderParams, lines []OrderLine) (*Order, error) {
	if !status.Valid() {
		return nil, Errorf(EINVALID, "order.restore", "unknown order status %q", status)
	}
	return &Order{
		ID:               id,
		Status:           status,
		CustomerName:     params.CustomerName,
		CustomerEmail:    params.CustomerEmail,
		VATNumber:        params.VATNumber,
		InvoiceReference: params.InvoiceReference,
		PaymentProvider:  params.PaymentProvider,
		Lines:            lines,
	}, nil
}

// SetStatus is the single mutation entry point for Status. Setting the
// current status again is a legal no-op. Every other edge is checked against
// the transition table; illegal edges fail with ErrInvalidTransition and
// leave the order unchanged.
func (o *Order) SetStatus(to OrderStatus) error {
	if !to.Valid() {
		return Errorf(EINVALID, "order.set_status", "unknown order status %q", to)
	}
	if o.Status == to {
		return nil
	}
	if !CanTransition(o.Status, to) {
		return invalidTransition("order.set_status", o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// CanEdit reports whether order lines may still be mutated: true only for
// Draft and Verified.
func (o *Order) CanEdit() bool {
	return o.Status == OrderStatusDraft || o.Status == OrderStatusVerified
}

// AddLineParams describes a charge line to append to an editable order.
type AddLineParams struct {
	ProductID        uuid.UUID
	ProductVariantID *uuid.UUID
	Description      string
	Price            decimal.Decimal
	Quantity         int64
}

// AddLine appends a charge line. Rejected once the order is no longer
// editable; the guard lives here, not in callers.
func (o *Order) AddLine(params AddLineParams) (*OrderLine, error) {
	if !o.CanEdit() {
		return nil, &Error{
			Code:    EINVALID,
			Op:      "order.add_line",
			Message: "order in status " + o.Status.String() + " cannot be edited",
			Err:     ErrOrderLocked,
		}
	}
	if params.Quantity == 0 {
		return nil, Invalid("order.add_line", "quantity must be non-zero")
	}

	line := OrderLine{
		ID:               uuid.New(),
		OrderID:          o.ID,
		ProductID:        params.ProductID,
		ProductVariantID: params.ProductVariantID,
		Description:      params.Description,
		Price:            params.Price,
		Quantity:         params.Quantity,
		CreatedAt:        time.Now(),
	}
	o.Lines = append(o.Lines, line)
	o.UpdatedAt = time.Now()
	return &o.Lines[len(o.Lines)-1], nil
}

// RemoveLine deletes a line from an editable order.
func (o *Order) RemoveLine(lineID uuid.UUID) error {
	if !o.CanEdit() {
		return &Error{
			Code:    EINVALID,
			Op:      "order.remove_line",
			Message: "order in status " + o.Status.String() + " cannot be edited",
			Err:     ErrOrderLocked,
		}
	}
	for i, line := range o.Lines {
		if line.ID == lineID {
			o.Lines = append(o.Lines[:i], o.Lines[i+1:]...)
			o.UpdatedAt = time.Now()
			return nil
		}
	}
	return NotFound("order.remove_line", "order line", lineID.String())
}

// TotalAmount is always the sum of the current lines' totals.
func (o *Order) TotalAmount() decimal.Decimal {
	total := decimal.Zero
	for _, line := range o.Lines {
		total = total.Add(line.LineTotal())
	}
	return total
}

// IsRefundOrder reports whether this order was created as the refund of
// another order. Refund orders are immutable once created.
func (o *Order) IsRefundOrder() bool {
	return o.RefundOfOrderID != nil
}

// CreateRefundOrder produces a new order whose lines negate this order's
// lines exactly, so refund.TotalAmount() == -source.TotalAmount(). Only
// legal on an Invoiced order. The refund order is returned already in its
// terminal Refunded state; the caller transitions the source order to
// Refunded through SetStatus and persists both atomically.
func (o *Order) CreateRefundOrder() (*Order, error) {
	if o.Status != OrderStatusInvoiced {
		return nil, &Error{
			Code:    EINVALID,
			Op:      "order.refund",
			Message: "cannot refund order in status " + o.Status.String(),
			Err:     ErrNotInvoiced,
		}
	}

	now := time.Now()
	sourceID := o.ID
	refund := &Order{
		ID:               uuid.New(),
		Status:           OrderStatusRefunded,
		CustomerName:     o.CustomerName,
		CustomerEmail:    o.CustomerEmail,
		VATNumber:        o.VATNumber,
		InvoiceReference: o.InvoiceReference,
		PaymentProvider:  o.PaymentProvider,
		RefundOfOrderID:  &sourceID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	for _, line := range o.Lines {
		refundLine, err := CreateRefundOrderLine(line)
		if err != nil {
			return nil, err
		}
		refundLine.OrderID = refund.ID
		refundLine.CreatedAt = now
		refund.Lines = append(refund.Lines, refundLine)
	}

	return refund, nil
}
