package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/weftline/orderdesk/internal/domain/order"
)

const (
	decrementStockSQL = `UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2`

	productStockSQL = `SELECT stock FROM products WHERE id = $1`

	insertOrderSQL = `INSERT INTO orders (
		id, tracking_code, items, subtotal, shipping_fee, tax, total,
		payment_method, awaiting_confirmation, status,
		billing_name, billing_address, billing_city, billing_phone, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertHistorySQL = `INSERT INTO order_status_history (order_id, status, changed_at)
		VALUES ($1, $2, $3)`

	selectOrderSQL = `SELECT id, tracking_code, items, subtotal, shipping_fee, tax, total,
		payment_method, awaiting_confirmation, status,
		billing_name, billing_address, billing_city, billing_phone, created_at
		FROM orders`

	selectHistorySQL = `SELECT order_id, status, changed_at FROM order_status_history
		WHERE order_id = ANY($1) ORDER BY id`

	casStatusSQL = `UPDATE orders SET status = $3
		WHERE id = $1 AND status = $2 AND NOT awaiting_confirmation`

	confirmPaymentSQL = `UPDATE orders SET awaiting_confirmation = FALSE
		WHERE tracking_code = $1 AND awaiting_confirmation`

	orderExistsByCodeSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE tracking_code = $1)`

	orderExistsByIDSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

	deleteOrderSQL = `DELETE FROM orders WHERE id = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Line
// items are serialized to a JSONB column; the status history lives in its own
// append-only table.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order in a single transaction: stock decrements for
// every line, the order row, and the initial history entries commit together.
// A tracking-code collision with a concurrent checkout surfaces as
// order.ErrDuplicateTrackingCode.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return errors.Wrap(err, "marshal order items")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, li := range o.Items {
		tag, err := tx.Exec(ctx, decrementStockSQL, li.ProductID, li.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement stock for %s", li.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return stockFailure(ctx, tx, li)
		}
	}

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.TrackingCode, itemsJSON,
		centsToDecimal(o.Subtotal), centsToDecimal(o.ShippingFee),
		centsToDecimal(o.Tax), centsToDecimal(o.Total),
		string(o.PaymentMethod), o.AwaitingConfirmation, string(o.Status),
		o.Billing.Name, o.Billing.Address, o.Billing.City, o.Billing.Phone,
		o.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "tracking_code") {
			return order.ErrDuplicateTrackingCode
		}
		return errors.Wrapf(err, "insert order %s", o.ID)
	}

	for _, h := range o.History {
		if _, err := tx.Exec(ctx, insertHistorySQL, o.ID, string(h.Status), h.At); err != nil {
			return errors.Wrap(err, "insert status history")
		}
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// stockFailure determines whether a failed decrement means the product is
// gone or just short on stock, and returns the matching typed error.
func stockFailure(ctx context.Context, tx pgx.Tx, li order.LineItem) error {
	var available int
	err := tx.QueryRow(ctx, productStockSQL, li.ProductID).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return &order.ProductNotFoundError{ProductID: li.ProductID}
	}
	if err != nil {
		return errors.Wrapf(err, "check stock for %s", li.ProductID)
	}
	return &order.InsufficientStockError{
		ProductID: li.ProductID,
		Requested: li.Quantity,
		Available: available,
	}
}

// GetByID returns the order with the given internal ID, including history.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE id = $1`, id)
}

// GetByTrackingCode returns the order with the given tracking code.
func (r *OrderRepository) GetByTrackingCode(ctx context.Context, code string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE tracking_code = $1`, code)
}

func (r *OrderRepository) getOne(ctx context.Context, sql string, arg any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, sql, arg)
	if err != nil {
		return nil, errors.Wrap(err, "query order")
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "scan order")
	}

	if err := r.attachHistory(ctx, []*order.Order{&o}); err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns orders matching the filter, newest first, with history
// attached in a single follow-up query.
func (r *OrderRepository) List(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if !filter.IncludeAwaiting {
		conds = append(conds, "NOT awaiting_confirmation")
	}

	sql := selectOrderSQL
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	list, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, errors.Wrap(err, "scan orders")
	}

	refs := make([]*order.Order, len(list))
	for i := range list {
		refs[i] = &list[i]
	}
	if err := r.attachHistory(ctx, refs); err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateStatus compare-and-swaps the order status and appends the matching
// history row in one transaction. Zero rows updated means either the order
// is gone or another writer changed the status (or the order still awaits
// payment confirmation); the caller distinguishes via the returned error.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, casStatusSQL, id, string(from), string(to))
	if err != nil {
		return errors.Wrapf(err, "update status of %s", id)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, orderExistsByIDSQL, id).Scan(&exists); err != nil {
			return errors.Wrap(err, "check order exists")
		}
		if !exists {
			return order.ErrNotFound
		}
		return order.ErrStatusConflict
	}

	if _, err := tx.Exec(ctx, insertHistorySQL, id, string(to), at); err != nil {
		return errors.Wrap(err, "insert status history")
	}

	return errors.Wrap(tx.Commit(ctx), "commit")
}

// ConfirmPayment clears the awaiting-confirmation flag. Confirming an
// already-confirmed order is a no-op; a missing order is ErrNotFound.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, trackingCode string) error {
	tag, err := r.pool.Exec(ctx, confirmPaymentSQL, trackingCode)
	if err != nil {
		return errors.Wrapf(err, "confirm payment for %s", trackingCode)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsByCodeSQL, trackingCode).Scan(&exists); err != nil {
		return errors.Wrap(err, "check order exists")
	}
	if !exists {
		return order.ErrNotFound
	}
	return nil
}

// Delete permanently removes the order; history rows cascade.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return errors.Wrapf(err, "delete order %s", id)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// TrackingCodeExists reports whether any order already carries the code.
func (r *OrderRepository) TrackingCodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, orderExistsByCodeSQL, code).Scan(&exists); err != nil {
		return false, errors.Wrap(err, "check tracking code")
	}
	return exists, nil
}

func (r *OrderRepository) attachHistory(ctx context.Context, orders []*order.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	byID := make(map[string]*order.Order, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
		byID[o.ID] = o
	}

	rows, err := r.pool.Query(ctx, selectHistorySQL, ids)
	if err != nil {
		return errors.Wrap(err, "query status history")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			orderID string
			status  string
			at      time.Time
		)
		if err := rows.Scan(&orderID, &status, &at); err != nil {
			return errors.Wrap(err, "scan status history")
		}
		if o, ok := byID[orderID]; ok {
			o.History = append(o.History, order.StatusChange{Status: order.Status(status), At: at})
		}
	}
	return errors.Wrap(rows.Err(), "iterate status history")
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o         order.Order
		itemsJSON []byte
		subtotal  decimal.Decimal
		shipping  decimal.Decimal
		tax       decimal.Decimal
		total     decimal.Decimal
		method    string
		status    string
	)
	err := row.Scan(
		&o.ID, &o.TrackingCode, &itemsJSON, &subtotal, &shipping, &tax, &total,
		&method, &o.AwaitingConfirmation, &status,
		&o.Billing.Name, &o.Billing.Address, &o.Billing.City, &o.Billing.Phone,
		&o.CreatedAt,
	)
	if err != nil {
		return o, err
	}

	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return o, errors.Wrap(err, "unmarshal order items")
	}

	o.Subtotal = decimalToCents(subtotal)
	o.ShippingFee = decimalToCents(shipping)
	o.Tax = decimalToCents(tax)
	o.Total = decimalToCents(total)
	o.PaymentMethod = order.PaymentMethod(method)
	o.Status = order.Status(status)
	return o, nil
}

func isUniqueViolation(err error, constraintPart string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == "23505" &&
		strings.Contains(pgErr.ConstraintName, constraintPart)
}
