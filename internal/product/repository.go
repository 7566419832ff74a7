package product

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrInvalidPrice = errors.New("price must not be negative")
	ErrInvalidStock = errors.New("stock must not be negative")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Create(ctx context.Context, p *Product) error
	Get(ctx context.Context, productID string) (Product, error)
	UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Create(ctx context.Context, p *Product) error {
	if p.Price.IsNegative() {
		return ErrInvalidPrice
	}
	if p.Stock < 0 {
		return ErrInvalidStock
	}

	err := r.pool.QueryRow(ctx, `
		INSERT INTO products (id, store_id, name, price, stock)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at
	`, p.ID, p.StoreID, p.Name, p.Price.String(), p.Stock).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert product")
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (Product, error) {
	var (
		p     Product
		price string
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, store_id, name, price::text, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.StoreID, &p.Name, &price, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, ErrNotFound
		}
		return Product{}, errors.Wrap(err, "select product")
	}

	p.Price, err = decimal.NewFromString(price)
	if err != nil {
		return Product{}, errors.Wrapf(err, "parse price of product %s", productID)
	}
	return p, nil
}

// UpdatePrice changes the catalog price. Lines already in carts keep the
// price captured when they were added.
func (r *PostgresRepository) UpdatePrice(ctx context.Context, productID string, price decimal.Decimal) error {
	if price.IsNegative() {
		return ErrInvalidPrice
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET price = $2, updated_at = now()
		WHERE id = $1
	`, productID, price.String())
	if err != nil {
		return errors.Wrap(err, "update price")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
