package inventory

import (
	"context"
	"sort"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrNegativeStock = errors.New("available must not be negative")
	// ErrStockChanged means a conditional decrement matched no row even though
	// the row was validated under lock in the same transaction.
	ErrStockChanged = errors.New("stock changed during reservation")
)

// DBPool matches the methods from *pgxpool.Pool that we use.
// This allows us to mock the database in tests.
type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

type Repository interface {
	Get(ctx context.Context, productID string) (StockItem, error)
	SetAvailable(ctx context.Context, productID string, available int) error
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, productID string) (StockItem, error) {
	var item StockItem
	row := r.pool.QueryRow(ctx, `SELECT id, name, stock FROM products WHERE id=$1`, productID)
	if err := row.Scan(&item.ProductID, &item.Name, &item.Available); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockItem{}, ErrNotFound
		}
		return StockItem{}, errors.Wrap(err, "select stock")
	}
	return item, nil
}

// SetAvailable overwrites the stock of an existing product.
func (r *PostgresRepository) SetAvailable(ctx context.Context, productID string, available int) error {
	if available < 0 {
		return ErrNegativeStock
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE products
		SET stock = $2, updated_at = now()
		WHERE id = $1
	`, productID, available)
	if err != nil {
		return errors.Wrap(err, "update stock")
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckWithTx locks every referenced product row and reports the lines that
// cannot be served. Nothing is mutated. Depleted lines come back in the order
// of lines; unknown products count as zero available.
func (r *PostgresRepository) CheckWithTx(ctx context.Context, tx pgx.Tx, lines []Line) ([]DepletedLine, error) {
	requested := aggregate(lines)

	ids := make([]string, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	// Lock in a stable order so concurrent checkouts cannot deadlock.
	sort.Strings(ids)

	available := make(map[string]int, len(ids))
	for _, id := range ids {
		var stock int
		err := tx.QueryRow(ctx, `
			SELECT stock
			FROM products
			WHERE id=$1
			FOR UPDATE
		`, id).Scan(&stock)
		if err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return nil, errors.Wrapf(err, "lock product %s", id)
			}
			stock = 0
		}
		available[id] = stock
	}

	var depleted []DepletedLine
	seen := make(map[string]bool, len(lines))
	for _, line := range lines {
		if seen[line.ProductID] {
			continue
		}
		seen[line.ProductID] = true
		if want := requested[line.ProductID]; want > available[line.ProductID] {
			depleted = append(depleted, DepletedLine{
				ProductID:   line.ProductID,
				ProductName: line.ProductName,
				Requested:   want,
				Available:   available[line.ProductID],
			})
		}
	}
	return depleted, nil
}

// DecrementWithTx subtracts each line's quantity. The update only matches
// while enough stock remains, so stock never goes negative.
func (r *PostgresRepository) DecrementWithTx(ctx context.Context, tx pgx.Tx, lines []Line) error {
	for _, line := range lines {
		tag, err := tx.Exec(ctx, `
			UPDATE products
			SET stock = stock - $2, updated_at = now()
			WHERE id = $1 AND stock >= $2
		`, line.ProductID, line.Quantity)
		if err != nil {
			return errors.Wrapf(err, "decrement product %s", line.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(ErrStockChanged, "product %s", line.ProductID)
		}
	}
	return nil
}

func aggregate(lines []Line) map[string]int {
	out := make(map[string]int, len(lines))
	for _, l := range lines {
		out[l.ProductID] += l.Quantity
	}
	return out
}
