package service_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjellgren/kasse/internal/billing"
	"github.com/kjellgren/kasse/internal/domain"
	"github.com/kjellgren/kasse/internal/service"
)

// mockStore is a mock implementation of service.Store for testing.
type mockStore struct {
	getOrderFunc     func(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	createOrderFunc  func(ctx context.Context, order *domain.Order) error
	updateStatusFunc func(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, externalInvoiceID string) error
	createRefundFunc func(ctx context.Context, refund *domain.Order, sourceID uuid.UUID, from domain.OrderStatus) error

	statusUpdates []statusUpdate
	refunds       []*domain.Order
}

type statusUpdate struct {
	orderID           uuid.UUID
	from, to          domain.OrderStatus
	externalInvoiceID string
}

func (m *mockStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	if m.getOrderFunc != nil {
		return m.getOrderFunc(ctx, orderID)
	}
	return nil, domain.NotFound("order.get", "order", orderID.String())
}

func (m *mockStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	if m.createOrderFunc != nil {
		return m.createOrderFunc(ctx, order)
	}
	return nil
}

func (m *mockStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, externalInvoiceID string) error {
	if m.updateStatusFunc != nil {
		if err := m.updateStatusFunc(ctx, orderID, from, to, externalInvoiceID); err != nil {
			return err
		}
	}
	m.statusUpdates = append(m.statusUpdates, statusUpdate{orderID, from, to, externalInvoiceID})
	return nil
}

func (m *mockStore) CreateRefund(ctx context.Context, refund *domain.Order, sourceID uuid.UUID, from domain.OrderStatus) error {
	if m.createRefundFunc != nil {
		if err := m.createRefundFunc(ctx, refund, sourceID, from); err != nil {
			return err
		}
	}
	m.refunds = append(m.refunds, refund)
	return nil
}

func (m *mockStore) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	return nil, nil
}

func amount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func storedOrder(t *testing.T, status domain.OrderStatus, provider domain.PaymentProvider) *domain.Order {
	t.Helper()

	order, err := domain.RestoreOrder(uuid.New(), status, domain.NewOrderParams{
		CustomerName:    "Kari Nordmann",
		CustomerEmail:   "kari@example.no",
		PaymentProvider: provider,
	}, []domain.OrderLine{
		{ID: uuid.New(), Description: "Espresso beans 1kg", Price: amount(t, "189.00"), Quantity: 2},
	})
	require.NoError(t, err)
	return order
}

func storeReturning(order *domain.Order) *mockStore {
	return &mockStore{
		getOrderFunc: func(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
			if orderID == order.ID {
				return order, nil
			}
			return nil, domain.NotFound("order.get", "order", orderID.String())
		},
	}
}

func newService(store service.Store, providers ...billing.Provider) service.OrderService {
	return service.NewOrderService(store, billing.NewRegistry(providers...), service.Config{}, nil, nil, nil)
}

func Test_SetStatus_CommitsConditionally(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusDraft, domain.PaymentProviderStripe)
	store := storeReturning(order)
	svc := newService(store)

	err := svc.SetStatus(context.Background(), order.ID, domain.OrderStatusVerified)

	require.NoError(t, err)
	require.Len(t, store.statusUpdates, 1)
	update := store.statusUpdates[0]
	assert.Equal(t, domain.OrderStatusDraft, update.from)
	assert.Equal(t, domain.OrderStatusVerified, update.to)
	assert.Empty(t, update.externalInvoiceID)
}

func Test_SetStatus_SelfTransitionSkipsPersistence(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderStripe)
	store := storeReturning(order)
	svc := newService(store)

	err := svc.SetStatus(context.Background(), order.ID, domain.OrderStatusVerified)

	require.NoError(t, err)
	assert.Empty(t, store.statusUpdates, "idempotent self-set writes nothing")
}

func Test_SetStatus_IllegalTransition(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusCancelled, domain.PaymentProviderStripe)
	store := storeReturning(order)
	svc := newService(store)

	err := svc.SetStatus(context.Background(), order.ID, domain.OrderStatusInvoiced)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Empty(t, store.statusUpdates)
}

func Test_SetStatus_OrderNotFound(t *testing.T) {
	svc := newService(&mockStore{})

	err := svc.SetStatus(context.Background(), uuid.New(), domain.OrderStatusVerified)

	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func Test_InvoiceOrder_HappyPath(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderStripe)
	store := storeReturning(order)
	mock := billing.NewMockProvider()
	svc := newService(store, mock)

	result, err := svc.InvoiceOrder(context.Background(), order.ID)

	require.NoError(t, err)
	assert.NotEmpty(t, result.ProviderInvoiceID)

	// The provider saw the order's snapshot.
	require.Len(t, mock.Calls, 1)
	assert.Equal(t, order.ID, mock.Calls[0].OrderID)
	assert.Equal(t, "kari@example.no", mock.Calls[0].CustomerEmail)
	assert.Equal(t, "NOK", mock.Calls[0].Currency, "default currency applies")
	assert.True(t, mock.Calls[0].MonetaryTotal().Equal(amount(t, "378.00")))

	// Verified -> Invoiced committed conditionally with the provider's id.
	require.Len(t, store.statusUpdates, 1)
	update := store.statusUpdates[0]
	assert.Equal(t, domain.OrderStatusVerified, update.from)
	assert.Equal(t, domain.OrderStatusInvoiced, update.to)
	assert.Equal(t, result.ProviderInvoiceID, update.externalInvoiceID)
}

func Test_InvoiceOrder_RequiresVerified(t *testing.T) {
	for _, status := range []domain.OrderStatus{
		domain.OrderStatusDraft,
		domain.OrderStatusInvoiced,
		domain.OrderStatusCancelled,
		domain.OrderStatusRefunded,
	} {
		order := storedOrder(t, status, domain.PaymentProviderStripe)
		store := storeReturning(order)
		mock := billing.NewMockProvider()
		svc := newService(store, mock)

		_, err := svc.InvoiceOrder(context.Background(), order.ID)

		assert.Equal(t, domain.EINVALID, domain.ErrorCode(err), "status %s", status)
		assert.Empty(t, mock.Calls, "no provider call for status %s", status)
		assert.Empty(t, store.statusUpdates)
	}
}

// Test_InvoiceOrder_ProviderFailureLeavesStatus: a failed provider call must
// not advance the order; the caller retries against the same Verified order.
func Test_InvoiceOrder_ProviderFailureLeavesStatus(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderStripe)
	store := storeReturning(order)
	mock := billing.NewMockProvider()
	mock.CreateInvoiceFunc = func(ctx context.Context, info billing.InvoiceInfo) (*billing.InvoiceResult, error) {
		return nil, &domain.Error{Code: domain.EUNAVAILABLE, Message: "provider down"}
	}
	svc := newService(store, mock)

	_, err := svc.InvoiceOrder(context.Background(), order.ID)

	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Empty(t, store.statusUpdates, "status must not advance on provider failure")
}

// Test_InvoiceOrder_StaleStatusSurfaces: the conditional commit loses against
// a concurrent transition; the provider call happened but the status write is
// rejected rather than overwriting.
func Test_InvoiceOrder_StaleStatusSurfaces(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderStripe)
	store := storeReturning(order)
	store.updateStatusFunc = func(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, externalInvoiceID string) error {
		return &domain.Error{
			Code: domain.EINVALID,
			Op:   "order.update_status",
			Err:  domain.ErrInvalidTransition,
		}
	}
	mock := billing.NewMockProvider()
	svc := newService(store, mock)

	_, err := svc.InvoiceOrder(context.Background(), order.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.Len(t, mock.Calls, 1, "the provider call already happened")
}

func Test_InvoiceOrder_NoProviderConfigured(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderEHF)
	store := storeReturning(order)
	svc := newService(store, &billing.MockProvider{
		AcceptFunc: func(p domain.PaymentProvider) bool { return p == domain.PaymentProviderStripe },
	})

	_, err := svc.InvoiceOrder(context.Background(), order.ID)

	assert.ErrorIs(t, err, billing.ErrNoProvider)
	assert.Empty(t, store.statusUpdates)
}

func Test_RefundOrder_HappyPath(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusInvoiced, domain.PaymentProviderStripe)
	store := storeReturning(order)
	svc := newService(store)

	refund, err := svc.RefundOrder(context.Background(), order.ID)

	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusRefunded, refund.Status)
	assert.True(t, refund.TotalAmount().Equal(amount(t, "-378.00")),
		"refund total %s must equal -378.00", refund.TotalAmount())
	require.NotNil(t, refund.RefundOfOrderID)
	assert.Equal(t, order.ID, *refund.RefundOfOrderID)

	require.Len(t, store.refunds, 1)
	assert.Same(t, refund, store.refunds[0])
}

func Test_RefundOrder_RequiresInvoiced(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusVerified, domain.PaymentProviderStripe)
	store := storeReturning(order)
	svc := newService(store)

	_, err := svc.RefundOrder(context.Background(), order.ID)

	assert.ErrorIs(t, err, domain.ErrNotInvoiced)
	assert.Empty(t, store.refunds)
}

func Test_RefundOrder_StaleStatusSurfaces(t *testing.T) {
	order := storedOrder(t, domain.OrderStatusInvoiced, domain.PaymentProviderStripe)
	store := storeReturning(order)
	store.createRefundFunc = func(ctx context.Context, refund *domain.Order, sourceID uuid.UUID, from domain.OrderStatus) error {
		return &domain.Error{
			Code: domain.EINVALID,
			Op:   "order.create_refund",
			Err:  domain.ErrInvalidTransition,
		}
	}
	svc := newService(store)

	_, err := svc.RefundOrder(context.Background(), order.ID)

	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func Test_CreateOrder(t *testing.T) {
	created := false
	store := &mockStore{
		createOrderFunc: func(ctx context.Context, order *domain.Order) error {
			created = true
			return nil
		},
	}
	svc := newService(store)

	order := domain.NewOrder(domain.NewOrderParams{
		CustomerEmail:   "kari@example.no",
		PaymentProvider: domain.PaymentProviderStripe,
	})

	require.NoError(t, svc.CreateOrder(context.Background(), order))
	assert.True(t, created)
}
