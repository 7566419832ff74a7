package address

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

var (
	ErrNotFound = errors.New("address not found")
	ErrInvalid  = errors.New("invalid address")
)

func invalid(field string) error {
	return errors.Wrapf(ErrInvalid, "%s is required", field)
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type Repository interface {
	Create(ctx context.Context, a *Address) error
	ListByUser(ctx context.Context, userID string) ([]Address, error)
	GetForUserWithTx(ctx context.Context, tx pgx.Tx, userID, addressID string) (Address, error)
}

type PostgresRepository struct {
	pool querier
}

func NewPostgresRepository(pool querier) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `id, user_id, full_name, line1, line2, city, state, postal_code, country`

func (r *PostgresRepository) Create(ctx context.Context, a *Address) error {
	if err := a.Validate(); err != nil {
		return err
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO addresses (id, user_id, full_name, line1, line2, city, state, postal_code, country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`, a.ID, a.UserID, a.FullName, a.Line1, a.Line2, a.City, a.State, a.PostalCode, a.Country).Scan(&id)
	if err != nil {
		return errors.Wrap(err, "insert address")
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]Address, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+selectColumns+` FROM addresses WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "select addresses")
	}
	defer rows.Close()

	out := []Address{}
	for rows.Next() {
		var a Address
		if err := scan(rows, &a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, errors.Wrap(rows.Err(), "iterate addresses")
}

// GetForUserWithTx returns the address only when it belongs to userID.
func (r *PostgresRepository) GetForUserWithTx(ctx context.Context, tx pgx.Tx, userID, addressID string) (Address, error) {
	if _, err := uuid.Parse(addressID); err != nil {
		return Address{}, ErrNotFound
	}
	var a Address
	row := tx.QueryRow(ctx, `SELECT `+selectColumns+` FROM addresses WHERE id = $1 AND user_id = $2`, addressID, userID)
	if err := scan(row, &a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Address{}, ErrNotFound
		}
		return Address{}, err
	}
	return a, nil
}

func scan(row pgx.Row, a *Address) error {
	err := row.Scan(&a.ID, &a.UserID, &a.FullName, &a.Line1, &a.Line2, &a.City, &a.State, &a.PostalCode, &a.Country)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(err, "scan address")
	}
	return err
}
