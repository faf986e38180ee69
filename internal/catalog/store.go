// Package catalog resolves SKUs into the product references the pricing
// pipeline works with.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// ErrSkuNotFound is returned when a SKU id resolves to nothing.
var ErrSkuNotFound = errors.New("catalog: sku not found")

// Resolver resolves a SKU into a product reference.
type Resolver interface {
	ResolveSku(ctx context.Context, id uuid.UUID) (pricing.ProductRef, error)
}

// PgResolver implements Resolver on Postgres.
type PgResolver struct {
	Pool *pgxpool.Pool
}

// ResolveSku loads the pricing view of one SKU.
func (r PgResolver) ResolveSku(ctx context.Context, id uuid.UUID) (pricing.ProductRef, error) {
	row := r.Pool.QueryRow(ctx, `
		SELECT s.id, s.code, s.name, s.unit_price::text, s.weight_kg::text, s.volume_m3::text,
		       p.shipping_template_id, p.category_id
		FROM skus s
		JOIN products p ON p.id = s.product_id
		WHERE s.id = $1`, id)
	var ref pricing.ProductRef
	err := row.Scan(&ref.SkuID, &ref.SkuCode, &ref.Name, &ref.UnitPrice, &ref.Weight, &ref.Volume,
		&ref.ShippingTemplateID, &ref.CategoryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.ProductRef{}, ErrSkuNotFound
	}
	if err != nil {
		return pricing.ProductRef{}, err
	}
	return ref, nil
}
