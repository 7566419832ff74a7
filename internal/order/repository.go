package order

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// FirstOrderNumber is handed out when no order exists yet.
const FirstOrderNumber int64 = 100000000

// orderNumberLockKey serializes order-number allocation across transactions.
const orderNumberLockKey int64 = 0x6f726465726e6f // "orderno"

var ErrNotFound = errors.New("order not found")

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	GetByID(ctx context.Context, orderID string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	UpdateStatus(ctx context.Context, orderID string, status Status, at time.Time) error
	CompareAndSetStatus(ctx context.Context, orderID string, from []Status, to Status, at time.Time) (bool, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// NextOrderNumberWithTx returns max(order_number)+1. The advisory lock is
// held until tx ends, so two checkouts cannot read the same maximum.
func (r *PostgresRepository) NextOrderNumberWithTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, orderNumberLockKey); err != nil {
		return 0, errors.Wrap(err, "lock order numbers")
	}

	var next int64
	err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(order_number), $1) + 1 FROM orders`, FirstOrderNumber-1).Scan(&next)
	if err != nil {
		return 0, errors.Wrap(err, "select max order number")
	}
	return next, nil
}

func (r *PostgresRepository) CreateWithTx(ctx context.Context, tx pgx.Tx, o *Order) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.UpdatedAt.IsZero() {
		o.UpdatedAt = o.CreatedAt
	}

	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "marshal shipping address")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (id, order_number, user_id, status, total_amount, customer_email,
			customer_name, address_id, shipping_address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.OrderNumber, o.UserID, o.Status.String(), o.TotalAmount.String(), o.CustomerEmail,
		o.CustomerName, o.AddressID, string(addr), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}

	for i := range o.Items {
		it := &o.Items[i]
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items (id, order_id, position, product_id, product_name, quantity, price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, it.ID, o.ID, i, it.ProductID, it.ProductName, it.Quantity, it.Price.String())
		if err != nil {
			return errors.Wrap(err, "insert order_item")
		}
	}
	return nil
}

const orderColumns = `id, order_number, user_id, status, total_amount::text, customer_email,
	customer_name, address_id, shipping_address::text, created_at, updated_at, paid_date, shipped_date, delivered_date`

func (r *PostgresRepository) GetByID(ctx context.Context, orderID string) (*Order, error) {
	if !validID(orderID) {
		return nil, ErrNotFound
	}
	o, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	items, err := r.loadItems(ctx, []string{o.ID})
	if err != nil {
		return nil, err
	}
	o.Items = items[o.ID]
	return o, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, order_number DESC
	`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select orders")
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate orders")
	}
	if len(orders) == 0 {
		return orders, nil
	}

	ids := make([]string, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	items, err := r.loadItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

// setStatus writes $2 as the status at $3. The first entry into paid, shipped
// or delivered stamps the matching date; later writes keep the first stamp.
const setStatus = `status = $2,
			updated_at = $3,
			paid_date = CASE WHEN $2::text = 'paid' THEN COALESCE(paid_date, $3) ELSE paid_date END,
			shipped_date = CASE WHEN $2::text = 'shipped' THEN COALESCE(shipped_date, $3) ELSE shipped_date END,
			delivered_date = CASE WHEN $2::text = 'delivered' THEN COALESCE(delivered_date, $3) ELSE delivered_date END`

// orders.id is a UUID column; anything else cannot name a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// UpdateStatus writes status unconditionally.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, orderID string, status Status, at time.Time) error {
	if !validID(orderID) {
		return ErrNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET `+setStatus+`
		WHERE id = $1
	`, orderID, status.String(), at)
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetStatus moves the order to `to` only while its current status
// is one of from. It reports whether the row changed. Dates are stamped the
// same way as in UpdateStatus.
func (r *PostgresRepository) CompareAndSetStatus(ctx context.Context, orderID string, from []Status, to Status, at time.Time) (bool, error) {
	if !validID(orderID) {
		return false, ErrNotFound
	}
	names := make([]string, len(from))
	for i, s := range from {
		names[i] = s.String()
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE orders
		SET `+setStatus+`
		WHERE id = $1 AND status = ANY($4)
	`, orderID, to.String(), at, names)
	if err != nil {
		return false, errors.Wrap(err, "compare and set order status")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *PostgresRepository) loadItems(ctx context.Context, orderIDs []string) (map[string][]Item, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT order_id, id, product_id, product_name, quantity, price::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`, orderIDs)
	if err != nil {
		return nil, errors.Wrap(err, "select order_items")
	}
	defer rows.Close()

	out := make(map[string][]Item, len(orderIDs))
	for rows.Next() {
		var (
			orderID string
			it      Item
			price   string
		)
		if err := rows.Scan(&orderID, &it.ID, &it.ProductID, &it.ProductName, &it.Quantity, &price); err != nil {
			return nil, errors.Wrap(err, "scan order_item")
		}
		if it.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrap(err, "parse item price")
		}
		out[orderID] = append(out[orderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate order_items")
	}
	return out, nil
}

func scanOrder(row pgx.Row) (*Order, error) {
	var (
		o       Order
		status  string
		total   string
		address string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &status, &total, &o.CustomerEmail,
		&o.CustomerName, &o.AddressID, &address, &o.CreatedAt, &o.UpdatedAt, &o.PaidDate, &o.ShippedDate, &o.DeliveredDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "scan order")
	}

	if o.Status, err = ParseStatus(status); err != nil {
		return nil, err
	}
	if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, errors.Wrap(err, "parse total amount")
	}
	if err := json.Unmarshal([]byte(address), &o.ShippingAddress); err != nil {
		return nil, errors.Wrap(err, "unmarshal shipping address")
	}
	return &o, nil
}
