package domain

import "fmt"

// OrderStatus is the closed set of order lifecycle states.
type OrderStatus string

const (
	OrderStatusDraft     OrderStatus = "draft"
	OrderStatusVerified  OrderStatus = "verified"
	OrderStatusInvoiced  OrderStatus = "invoiced"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRefunded  OrderStatus = "refunded"
)

// OrderStatuses lists every valid status. Useful for exhaustive checks.
var OrderStatuses = []OrderStatus{
	OrderStatusDraft,
	OrderStatusVerified,
	OrderStatusInvoiced,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// Status-transition errors.
var (
	ErrInvalidTransition = &Error{Code: EINVALID, Message: "Illegal order status transition"}
	ErrNotInvoiced       = &Error{Code: EINVALID, Message: "Order must be invoiced before it can be refunded"}
	ErrAlreadyRefunded   = &Error{Code: ECONFLICT, Message: "Order line has already been refunded"}
	ErrOrderLocked       = &Error{Code: EINVALID, Message: "Order can no longer be edited"}
)

// orderTransitions is the legal transition graph. Setting a status to its
// current value is always a no-op and is handled before this table is
// consulted. Cancelled and Refunded are terminal.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusDraft:     {OrderStatusVerified, OrderStatusCancelled},
	OrderStatusVerified:  {OrderStatusInvoiced, OrderStatusCancelled},
	OrderStatusInvoiced:  {OrderStatusRefunded, OrderStatusCancelled},
	OrderStatusCancelled: {},
	OrderStatusRefunded:  {},
}

// String returns the wire representation of the status.
func (s OrderStatus) String() string {
	return string(s)
}

// Valid reports whether s is a member of the closed status set.
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// ParseOrderStatus converts a stored string back into an OrderStatus.
// Used by the persistence layer when rehydrating orders.
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", Errorf(EINVALID, "order.parse_status", "unknown order status %q", s)
	}
	return status, nil
}

// CanTransition reports whether from -> to is a legal edge of the status
// graph. A self-transition is always legal (idempotent no-op).
func CanTransition(from, to OrderStatus) bool {
	if from == to {
		return from.Valid()
	}
	for _, allowed := range orderTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// invalidTransition builds an ErrInvalidTransition-wrapping error carrying
// the offending pair, so callers can both match the sentinel and present the
// rejected edge.
func invalidTransition(op string, from, to OrderStatus) error {
	return &Error{
		Code:    EINVALID,
		Op:      op,
		Message: fmt.Sprintf("cannot transition order from %s to %s", from, to),
		Err:     ErrInvalidTransition,
	}
}
