package sequence

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type DBPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository manages producer-side sequences for events.
type Repository interface {
	NextSequence(ctx context.Context, partitionKey string) (int64, error)
}

type PostgresRepository struct {
	pool DBPool
}

func NewPostgresRepository(pool DBPool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) NextSequence(ctx context.Context, partitionKey string) (int64, error) {
	var seq int64
	if err := r.pool.QueryRow(ctx, `
		INSERT INTO event_sequence (partition_key, last_sequence, updated_at)
		VALUES ($1, 1, now())
		ON CONFLICT (partition_key)
		DO UPDATE SET last_sequence = event_sequence.last_sequence + 1, updated_at = now()
		RETURNING last_sequence
	`, partitionKey).Scan(&seq); err != nil {
		return 0, errors.Wrap(err, "next sequence")
	}
	return seq, nil
}
