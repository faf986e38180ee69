package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrSkuNotFound is returned when a SKU id resolves to nothing.
var ErrSkuNotFound = errors.New("stock: sku not found")

// PgStore implements Service and Operator on Postgres.
type PgStore struct {
	Pool *pgxpool.Pool
}

// GetSku resolves a SKU together with its parent product's active flag.
func (s PgStore) GetSku(ctx context.Context, id uuid.UUID) (SkuInfo, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT s.id, s.code, s.name, s.available, s.active, p.active
		FROM skus s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = $1`, id)
	var info SkuInfo
	err := row.Scan(&info.ID, &info.Code, &info.Name, &info.Available, &info.Active, &info.ProductActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return SkuInfo{}, ErrSkuNotFound
	}
	if err != nil {
		return SkuInfo{}, err
	}
	return info, nil
}

// LockStock moves available quantity into the locked pool. The guarded
// UPDATE keeps availability from going negative under concurrent commits.
func (s PgStore) LockStock(ctx context.Context, skuID uuid.UUID, quantity int) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE skus
		SET available = available - $2, locked = locked + $2
		WHERE id = $1 AND available >= $2`, skuID, quantity)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lock stock for sku %s: %w", skuID, ErrInsufficientStock)
	}
	return nil
}

// ErrInsufficientStock is returned when a reservation cannot be satisfied.
var ErrInsufficientStock = errors.New("stock: insufficient quantity")
