package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/kjellgren/kasse/internal/domain"
	"github.com/kjellgren/kasse/internal/service"
)

// OrderStore implements service.Store using PostgreSQL.
type OrderStore struct {
	pool *pgxpool.Pool
}

// Compile-time check that OrderStore implements service.Store.
var _ service.Store = (*OrderStore)(nil)

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

// GetOrder loads an order with its lines.
func (s *OrderStore) GetOrder(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	const op = "order.get"

	row := s.pool.QueryRow(ctx, `
		SELECT id, status, customer_name, customer_email, vat_number,
		       invoice_reference, payment_provider, external_invoice_id,
		       refund_of_order_id, created_at, updated_at
		FROM orders
		WHERE id = $1`,
		orderID,
	)

	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound(op, "order", orderID.String())
		}
		return nil, domain.Internal(err, op, "failed to load order")
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, order_id, product_id, product_variant_id, description,
		       price::text, quantity, is_refund, refund_of_line_id, created_at
		FROM order_lines
		WHERE order_id = $1
		ORDER BY created_at, id`,
		orderID,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load order lines")
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanOrderLine(rows)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to scan order line")
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read order lines")
	}

	return order, nil
}

// CreateOrder persists a new order and its lines in one transaction.
func (s *OrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	const op = "order.create"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	if err := insertOrder(ctx, tx, order); err != nil {
		return domain.Internal(err, op, "failed to insert order")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit order")
	}
	return nil
}

// UpdateStatus commits a transition conditionally: the UPDATE is guarded by
// the expected current status, so a concurrent transition by another actor
// leaves zero rows affected and is reported as an illegal transition rather
// than silently overwritten.
func (s *OrderStore) UpdateStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus, externalInvoiceID string) error {
	const op = "order.update_status"

	if !domain.CanTransition(from, to) {
		return &domain.Error{
			Code:    domain.EINVALID,
			Op:      op,
			Message: fmt.Sprintf("cannot transition order from %s to %s", from, to),
			Err:     domain.ErrInvalidTransition,
		}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    external_invoice_id = CASE WHEN $2 <> '' THEN $2 ELSE external_invoice_id END,
		    updated_at = now()
		WHERE id = $3 AND status = $4`,
		string(to), externalInvoiceID, orderID, string(from),
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update order status")
	}
	if tag.RowsAffected() == 0 {
		return s.staleStatus(ctx, op, orderID, from, to)
	}
	return nil
}

// CreateRefund persists the refund order and the source order's transition
// to Refunded in a single transaction. Either both commit or neither does.
func (s *OrderStore) CreateRefund(ctx context.Context, refund *domain.Order, sourceID uuid.UUID, from domain.OrderStatus) error {
	const op = "order.create_refund"

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Internal(err, op, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3`,
		string(domain.OrderStatusRefunded), sourceID, string(from),
	)
	if err != nil {
		return domain.Internal(err, op, "failed to update source order status")
	}
	if tag.RowsAffected() == 0 {
		return s.staleStatus(ctx, op, sourceID, from, domain.OrderStatusRefunded)
	}

	if err := insertOrder(ctx, tx, refund); err != nil {
		return domain.Internal(err, op, "failed to insert refund order")
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Internal(err, op, "failed to commit refund")
	}
	return nil
}

// ListPaymentMethods returns the seeded payment-method registry.
func (s *OrderStore) ListPaymentMethods(ctx context.Context) ([]domain.PaymentMethod, error) {
	const op = "payment_method.list"

	rows, err := s.pool.Query(ctx, `
		SELECT id, provider, name, type, active, is_default, created_at
		FROM payment_methods
		WHERE active
		ORDER BY is_default DESC, name`,
	)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list payment methods")
	}
	defer rows.Close()

	var methods []domain.PaymentMethod
	for rows.Next() {
		var (
			pm       domain.PaymentMethod
			provider string
			pmType   string
		)
		if err := rows.Scan(&pm.ID, &provider, &pm.Name, &pmType, &pm.Active, &pm.IsDefault, &pm.CreatedAt); err != nil {
			return nil, domain.Internal(err, op, "failed to scan payment method")
		}
		pm.Provider = domain.PaymentProvider(provider)
		pm.Type = domain.PaymentMethodType(pmType)
		methods = append(methods, pm)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Internal(err, op, "failed to read payment methods")
	}
	return methods, nil
}

// SeedPaymentMethod inserts a payment method if its provider is not already
// registered. Used by bootstrap; idempotent.
func (s *OrderStore) SeedPaymentMethod(ctx context.Context, pm domain.PaymentMethod) error {
	const op = "payment_method.seed"

	_, err := s.pool.Exec(ctx, `
		INSERT INTO payment_methods (id, provider, name, type, active, is_default)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider) DO NOTHING`,
		pm.ID, string(pm.Provider), pm.Name, string(pm.Type), pm.Active, pm.IsDefault,
	)
	if err != nil {
		return domain.Internal(err, op, "failed to seed payment method")
	}
	return nil
}

// staleStatus distinguishes "order is gone" from "status moved underneath
// us" after a conditional write affected zero rows.
func (s *OrderStore) staleStatus(ctx context.Context, op string, orderID uuid.UUID, from, to domain.OrderStatus) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, orderID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotFound(op, "order", orderID.String())
	}
	if err != nil {
		return domain.Internal(err, op, "failed to re-read order status")
	}
	return &domain.Error{
		Code:    domain.EINVALID,
		Op:      op,
		Message: fmt.Sprintf("order status is %s, expected %s; refusing transition to %s", current, from, to),
		Err:     domain.ErrInvalidTransition,
	}
}

// insertOrder writes an order and its lines inside the given transaction.
func insertOrder(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders (id, status, customer_name, customer_email, vat_number,
		                    invoice_reference, payment_provider, external_invoice_id,
		                    refund_of_order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		order.ID, string(order.Status), order.CustomerName, order.CustomerEmail,
		order.VATNumber, order.InvoiceReference, string(order.PaymentProvider),
		order.ExternalInvoiceID, order.RefundOfOrderID,
	)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_lines (id, order_id, product_id, product_variant_id,
			                         description, price, quantity, is_refund, refund_of_line_id)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9)`,
			line.ID, order.ID, line.ProductID, line.ProductVariantID,
			line.Description, line.Price.String(), line.Quantity,
			line.IsRefund, line.RefundOfLineID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// scanOrder reads one order row (without lines).
func scanOrder(row pgx.Row) (*domain.Order, error) {
	var (
		o      domain.Order
		status string
		prov   string
	)
	err := row.Scan(
		&o.ID, &status, &o.CustomerName, &o.CustomerEmail, &o.VATNumber,
		&o.InvoiceReference, &prov, &o.ExternalInvoiceID,
		&o.RefundOfOrderID, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}
	o.Status = parsed
	o.PaymentProvider = domain.PaymentProvider(prov)
	return &o, nil
}

// scanOrderLine reads one order line row. price comes back as text so the
// numeric value survives exactly.
func scanOrderLine(rows pgx.Rows) (domain.OrderLine, error) {
	var (
		line  domain.OrderLine
		price string
	)
	err := rows.Scan(
		&line.ID, &line.OrderID, &line.ProductID, &line.ProductVariantID,
		&line.Description, &price, &line.Quantity, &line.IsRefund,
		&line.RefundOfLineID, &line.CreatedAt,
	)
	if err != nil {
		return domain.OrderLine{}, err
	}

	parsed, err := decimal.NewFromString(price)
	if err != nil {
		return domain.OrderLine{}, fmt.Errorf("invalid price %q: %w", price, err)
	}
	line.Price = parsed
	return line, nil
}
