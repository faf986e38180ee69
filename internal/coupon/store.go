package coupon

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// PgProvider sources a user's claimed, unspent coupons from Postgres.
type PgProvider struct {
	Pool *pgxpool.Pool
}

func (PgProvider) Name() string { return "user-coupons" }

// Candidates loads the user's claimed coupons together with their scope rows.
func (p PgProvider) Candidates(ctx context.Context, calc pricing.Context) ([]Coupon, error) {
	rows, err := p.Pool.Query(ctx, `
		SELECT c.code, c.name, c.kind, c.value, COALESCE(c.min_spend, ''),
		       c.valid_from, c.valid_to, c.gift_sku_id, COALESCE(c.gift_quantity, 0)
		FROM user_coupons uc
		JOIN coupons c ON c.code = uc.coupon_code
		WHERE uc.user_id = $1 AND uc.spent_at IS NULL`, calc.UserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Coupon
	for rows.Next() {
		var c Coupon
		if err := rows.Scan(&c.Code, &c.Name, &c.Kind, &c.Value, &c.MinSpend,
			&c.ValidFrom, &c.ValidTo, &c.GiftSkuID, &c.GiftQuantity); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := p.loadScope(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p PgProvider) loadScope(ctx context.Context, c *Coupon) error {
	rows, err := p.Pool.Query(ctx, `
		SELECT sku_id, category_id FROM coupon_scopes WHERE coupon_code = $1`, c.Code)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var skuID, categoryID *uuid.UUID
		if err := rows.Scan(&skuID, &categoryID); err != nil {
			return err
		}
		if skuID != nil {
			c.SkuIDs = append(c.SkuIDs, *skuID)
		}
		if categoryID != nil {
			c.CategoryIDs = append(c.CategoryIDs, *categoryID)
		}
	}
	return rows.Err()
}
