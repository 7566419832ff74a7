package cart

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var ErrLineNotFound = errors.New("cart line not found")

// querier is satisfied by both the pool and a pgx.Tx.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	querier
}

type Repository interface {
	GetOrCreate(ctx context.Context, userID string) (*Cart, error)
	AddLine(ctx context.Context, cartID string, line Line) error
	SetQuantity(ctx context.Context, cartID, productID string, quantity int) error
	RemoveLine(ctx context.Context, cartID, productID string) error
	Clear(ctx context.Context, cartID string) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, userID string) (*Cart, error) {
	c := Cart{UserID: userID}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO carts (id, user_id, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id, updated_at
	`, uuid.NewString(), userID).Scan(&c.ID, &c.UpdatedAt)
	if err != nil {
		return nil, errors.Wrap(err, "upsert cart")
	}

	c.Lines, err = loadLines(ctx, r.pool, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// AddLine inserts the line or, when the product is already in the cart,
// increases its quantity and keeps the price captured earlier.
func (r *PostgresRepository) AddLine(ctx context.Context, cartID string, line Line) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO cart_items (cart_id, product_id, product_name, quantity, unit_price)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
	`, cartID, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice.String())
	if err != nil {
		return errors.Wrap(err, "upsert cart line")
	}
	return touch(ctx, r.pool, cartID)
}

func (r *PostgresRepository) SetQuantity(ctx context.Context, cartID, productID string, quantity int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE cart_items SET quantity = $3
		WHERE cart_id = $1 AND product_id = $2
	`, cartID, productID, quantity)
	if err != nil {
		return errors.Wrap(err, "update cart line")
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return touch(ctx, r.pool, cartID)
}

func (r *PostgresRepository) RemoveLine(ctx context.Context, cartID, productID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1 AND product_id = $2`, cartID, productID)
	if err != nil {
		return errors.Wrap(err, "delete cart line")
	}
	if tag.RowsAffected() == 0 {
		return ErrLineNotFound
	}
	return touch(ctx, r.pool, cartID)
}

func (r *PostgresRepository) Clear(ctx context.Context, cartID string) error {
	return clearLines(ctx, r.pool, cartID)
}

// LockForCheckoutWithTx locks the user's cart row and returns it with its
// lines. A user without a cart gets an empty cart with no ID.
func (r *PostgresRepository) LockForCheckoutWithTx(ctx context.Context, tx pgx.Tx, userID string) (*Cart, error) {
	c := Cart{UserID: userID}
	err := tx.QueryRow(ctx, `
		SELECT id, updated_at FROM carts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&c.ID, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &c, nil
		}
		return nil, errors.Wrap(err, "lock cart")
	}

	c.Lines, err = loadLines(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresRepository) ClearWithTx(ctx context.Context, tx pgx.Tx, cartID string) error {
	return clearLines(ctx, tx, cartID)
}

func touch(ctx context.Context, q querier, cartID string) error {
	if _, err := q.Exec(ctx, `UPDATE carts SET updated_at = now() WHERE id = $1`, cartID); err != nil {
		return errors.Wrap(err, "touch cart")
	}
	return nil
}

func clearLines(ctx context.Context, q querier, cartID string) error {
	if _, err := q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID); err != nil {
		return errors.Wrap(err, "clear cart")
	}
	return nil
}

func loadLines(ctx context.Context, q querier, cartID string) ([]Line, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, product_name, quantity, unit_price::text
		FROM cart_items
		WHERE cart_id = $1
		ORDER BY added_at, product_id
	`, cartID)
	if err != nil {
		return nil, errors.Wrap(err, "select cart lines")
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var (
			l     Line
			price string
		)
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &price); err != nil {
			return nil, errors.Wrap(err, "scan cart line")
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "parse unit price of %s", l.ProductID)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate cart lines")
	}
	return lines, nil
}
