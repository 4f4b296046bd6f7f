package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kjellgren/kasse/internal/billing"
	"github.com/kjellgren/kasse/internal/domain"
	"github.com/kjellgren/kasse/internal/telemetry"
)

// Store is the persistence boundary consumed by the order service. A status
// transition must commit conditionally against the currently persisted
// status, so a concurrent transition by another actor is detected as a stale
// write instead of silently overwritten.
type Store interface {
	// GetOrder loads an order with its lines.
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	// CreateOrder persists a new order and its lines.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// UpdateStatus commits from -> to only if the persisted status still
	// equals from. externalInvoiceID is stored alongside when non-empty.
	// A stale status fails with ErrInvalidTransition.
	UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, externalInvoiceID string) error

	// CreateRefund persists the refund order and transitions the source
	// order from -> Refunded in a single transaction. Partial persistence
	// would corrupt the books, so both commit or neither does.
	CreateRefund(ctx context.Context, refund *domain.Order, sourceID uuid.UUID, from domain.OrderStatus) error

	// ListPaymentMethods returns the seeded payment-method registry.
	ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error)
}

// OrderService orchestrates the order lifecycle: guarded status transitions,
// invoicing through the provider registry, and refund-order creation.
type OrderService interface {
	// GetOrder loads an order with its lines.
	GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)

	// CreateOrder persists a new draft order.
	CreateOrder(ctx context.Context, order *domain.Order) error

	// SetStatus applies a guarded status transition and commits it
	// conditionally against the persisted status.
	SetStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error

	// InvoiceOrder produces an invoice/charge for a Verified order with the
	// billing provider configured on the order, then advances it to
	// Invoiced. The status is only advanced after the provider call
	// succeeds, never speculatively.
	InvoiceOrder(ctx context.Context, orderID uuid.UUID) (*billing.InvoiceResult, error)

	// RefundOrder creates the refund order mirroring an Invoiced order and
	// transitions the source to Refunded, atomically.
	RefundOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
}

// Config carries the service's fixed settings.
type Config struct {
	// Currency is the ISO 4217 code used for all invoices, e.g. "NOK".
	Currency string
}

type orderService struct {
	store    Store
	registry *billing.Registry
	config   Config
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	clock    billing.Clock
}

var _ OrderService = (*orderService)(nil)

// NewOrderService creates a new OrderService instance. A nil logger falls
// back to slog.Default, a nil clock to time.Now, and nil metrics disables
// instrumentation.
func NewOrderService(store Store, registry *billing.Registry, config Config, logger *slog.Logger, metrics *telemetry.Metrics, clock billing.Clock) OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = time.Now
	}
	if config.Currency == "" {
		config.Currency = "NOK"
	}

	return &orderService{
		store:    store,
		registry: registry,
		config:   config,
		logger:   logger,
		metrics:  metrics,
		clock:    clock,
	}
}

func (s *orderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	return s.store.GetOrder(ctx, orderID)
}

func (s *orderService) CreateOrder(ctx context.Context, order *domain.Order) error {
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return err
	}

	s.logger.Info("order created",
		slog.String("order_id", order.ID.String()),
		slog.String("payment_provider", string(order.PaymentProvider)),
	)
	return nil
}

// SetStatus validates the transition in memory through the aggregate's
// guarded setter, then commits it conditionally on the persisted status
// still being what was read. A concurrent transition surfaces as
// ErrInvalidTransition.
func (s *orderService) SetStatus(ctx context.Context, orderID uuid.UUID, status domain.OrderStatus) error {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	from := order.Status
	if err := order.SetStatus(status); err != nil {
		if s.metrics != nil {
			s.metrics.TransitionsDenied.WithLabelValues(string(from), string(status)).Inc()
		}
		return err
	}
	if from == status {
		// Idempotent no-op; nothing to persist.
		return nil
	}

	if err := s.store.UpdateStatus(ctx, orderID, from, status, ""); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.TransitionsApplied.WithLabelValues(string(from), string(status)).Inc()
	}
	s.logger.Info("order status changed",
		slog.String("order_id", orderID.String()),
		slog.String("from", string(from)),
		slog.String("to", string(status)),
	)
	return nil
}

// InvoiceOrder routes a Verified order to the adapter accepting its payment
// provider, performs the external call bounded by ctx, and only then commits
// Verified -> Invoiced together with the provider's invoice id.
func (s *orderService) InvoiceOrder(ctx context.Context, orderID uuid.UUID) (*billing.InvoiceResult, error) {
	const op = "order.invoice"

	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if order.Status != domain.OrderStatusVerified {
		return nil, domain.Errorf(domain.EINVALID, op,
			"order must be verified before invoicing, status is %s", order.Status)
	}

	adapter, err := s.registry.Resolve(order.PaymentProvider)
	if err != nil {
		return nil, err
	}

	info := billing.BuildInvoiceInfo(order, s.config.Currency)
	if err := info.Validate(); err != nil {
		return nil, err
	}

	start := s.clock()
	result, err := adapter.CreateInvoice(ctx, info)
	if s.metrics != nil {
		s.metrics.ProviderCallDuration.WithLabelValues(adapter.Name()).Observe(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.InvoiceFailures.WithLabelValues(adapter.Name(), domain.ErrorCode(err)).Inc()
		}
		s.logger.Error("invoicing failed",
			slog.String("order_id", orderID.String()),
			slog.String("provider", adapter.Name()),
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	// Commit conditionally: if another actor moved the order away from
	// Verified while the provider call was in flight, the write is stale
	// and fails without touching the new status.
	if err := s.store.UpdateStatus(ctx, orderID, domain.OrderStatusVerified, domain.OrderStatusInvoiced, result.ProviderInvoiceID); err != nil {
		s.logger.Error("invoice created but status commit failed",
			slog.String("order_id", orderID.String()),
			slog.String("provider", adapter.Name()),
			slog.String("provider_invoice_id", result.ProviderInvoiceID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.InvoicesIssued.WithLabelValues(adapter.Name()).Inc()
		s.metrics.TransitionsApplied.WithLabelValues(string(domain.OrderStatusVerified), string(domain.OrderStatusInvoiced)).Inc()
	}
	s.logger.Info("order invoiced",
		slog.String("order_id", orderID.String()),
		slog.String("provider", adapter.Name()),
		slog.String("provider_invoice_id", result.ProviderInvoiceID),
	)
	return result, nil
}

// RefundOrder builds the refund order through the aggregate and persists it
// together with the source's Invoiced -> Refunded transition in one
// transaction.
func (s *orderService) RefundOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	refund, err := order.CreateRefundOrder()
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateRefund(ctx, refund, order.ID, domain.OrderStatusInvoiced); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RefundsIssued.Inc()
		amount, _ := refund.TotalAmount().Abs().Float64()
		s.metrics.RefundAmount.Add(amount)
		s.metrics.TransitionsApplied.WithLabelValues(string(domain.OrderStatusInvoiced), string(domain.OrderStatusRefunded)).Inc()
	}
	s.logger.Info("refund order created",
		slog.String("order_id", orderID.String()),
		slog.String("refund_order_id", refund.ID.String()),
		slog.String("refund_total", refund.TotalAmount().String()),
	)
	return refund, nil
}
