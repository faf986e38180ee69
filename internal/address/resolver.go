// Package address resolves destination addresses into the geographic
// hierarchy shipping works with.
package address

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAddressNotFound is returned when an address id resolves to nothing.
var ErrAddressNotFound = errors.New("address not found")

// Address is the resolved destination of a shipment.
type Address struct {
	ID       uuid.UUID
	Province string
	City     string
	District string
}

// Resolver resolves an address id.
type Resolver interface {
	Resolve(ctx context.Context, id uuid.UUID) (Address, error)
}

// PgResolver implements Resolver on Postgres.
type PgResolver struct {
	Pool *pgxpool.Pool
}

// Resolve loads the geographic hierarchy of one address.
func (r PgResolver) Resolve(ctx context.Context, id uuid.UUID) (Address, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT id, province, city, district FROM addresses WHERE id = $1`, id)
	var a Address
	err := row.Scan(&a.ID, &a.Province, &a.City, &a.District)
	if errors.Is(err, pgx.ErrNoRows) {
		return Address{}, ErrAddressNotFound
	}
	if err != nil {
		return Address{}, err
	}
	return a, nil
}
