package checkout

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
)

type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// RequestRepository binds idempotency keys to the order they produced.
type RequestRepository interface {
	Find(ctx context.Context, userID, key string) (orderID string, found bool, err error)
	BindWithTx(ctx context.Context, tx pgx.Tx, userID, key, orderID string) error
}

type PostgresRequestRepository struct {
	pool DBPool
}

func NewPostgresRequestRepository(pool DBPool) *PostgresRequestRepository {
	return &PostgresRequestRepository{pool: pool}
}

func (r *PostgresRequestRepository) Find(ctx context.Context, userID, key string) (string, bool, error) {
	var orderID string
	err := r.pool.QueryRow(ctx, `
		SELECT order_id::text FROM checkout_requests WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key).Scan(&orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, "find checkout request")
	}
	return orderID, true, nil
}

// BindWithTx records the key inside the checkout transaction. A concurrent
// checkout holding the same key makes this wait for it; if that one commits
// the insert is skipped and ErrDuplicateRequest is returned.
func (r *PostgresRequestRepository) BindWithTx(ctx context.Context, tx pgx.Tx, userID, key, orderID string) error {
	tag, err := tx.Exec(ctx, `
		INSERT INTO checkout_requests (user_id, idempotency_key, order_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, idempotency_key) DO NOTHING
	`, userID, key, orderID)
	if err != nil {
		return errors.Wrap(err, "bind checkout request")
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateRequest
	}
	return nil
}
