package coupon

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arkan-dev/backend-mall/internal/money"
)

// allocationScale is the scale of persisted allocation amounts.
const allocationScale = 2

// distributionGuardDigits is the extra precision carried while splitting a
// discount across lines, before the final per-line rounding.
const distributionGuardDigits = 4

// AllocationDetail ties a coupon's discount to one order line, or to a
// synthesized SKU key when no line id is known.
type AllocationDetail struct {
	OrderID     uuid.UUID
	CouponCode  string
	OrderLineID *uuid.UUID
	SkuKey      string
	Amount      string
}

// DistributeDiscount splits a coupon's total discount across lines in
// proportion to their values. Intermediate shares keep four guard digits;
// each share is rounded once, and the rounding remainder lands on the last
// line so the shares always sum to the total exactly.
func DistributeDiscount(total string, lineValues []string) ([]string, error) {
	if len(lineValues) == 0 {
		return nil, errors.New("coupon: no lines to allocate against")
	}
	base, err := money.Sum(lineValues, allocationScale)
	if err != nil {
		return nil, err
	}
	positive, err := money.GreaterThan(base, money.Zero(allocationScale))
	if err != nil {
		return nil, err
	}
	shares := make([]string, len(lineValues))
	if !positive {
		for i := range shares {
			shares[i] = money.Zero(allocationScale)
		}
		shares[len(shares)-1] = total
		return shares, nil
	}

	allocated := money.Zero(allocationScale)
	for i, value := range lineValues[:len(lineValues)-1] {
		ratio, rerr := money.Div(value, base, allocationScale+distributionGuardDigits)
		if rerr != nil {
			return nil, rerr
		}
		share, rerr := money.Mul(total, ratio, allocationScale)
		if rerr != nil {
			return nil, rerr
		}
		shares[i] = share
		allocated, rerr = money.Add(allocated, share, allocationScale)
		if rerr != nil {
			return nil, rerr
		}
	}
	last, err := money.Sub(total, allocated, allocationScale)
	if err != nil {
		return nil, err
	}
	shares[len(shares)-1] = last
	return shares, nil
}

// AllocationStore persists and queries per-order coupon discount
// allocations in Postgres.
type AllocationStore struct {
	Pool *pgxpool.Pool
}

// Record writes one allocation row.
func (s AllocationStore) Record(ctx context.Context, d AllocationDetail) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO coupon_allocations (order_id, coupon_code, order_line_id, sku_key, amount)
		VALUES ($1, $2, $3, $4, $5)`,
		d.OrderID, d.CouponCode, d.OrderLineID, nullableText(d.SkuKey), d.Amount,
	)
	return err
}

// AllocatedToLine reports the summed discount attributed to an order line.
// An exact line-id match wins; without one the SKU-key aggregate is used.
func (s AllocationStore) AllocatedToLine(ctx context.Context, orderID uuid.UUID, lineID *uuid.UUID, skuKey string) (string, error) {
	var lineAmounts []string
	if lineID != nil {
		var err error
		lineAmounts, err = s.amounts(ctx, `
			SELECT amount FROM coupon_allocations
			WHERE order_id = $1 AND order_line_id = $2`, orderID, *lineID)
		if err != nil {
			return "", err
		}
		if len(lineAmounts) > 0 {
			return sumAllocations(lineAmounts, nil)
		}
	}
	skuAmounts, err := s.amounts(ctx, `
		SELECT amount FROM coupon_allocations
		WHERE order_id = $1 AND sku_key = $2`, orderID, skuKey)
	if err != nil {
		return "", err
	}
	return sumAllocations(lineAmounts, skuAmounts)
}

// sumAllocations totals the rows attributed to a line. Rows matched by line
// id take precedence; the SKU-key aggregate only stands in when no line row
// exists, so re-keyed allocations are never double counted.
func sumAllocations(lineAmounts, skuAmounts []string) (string, error) {
	if len(lineAmounts) > 0 {
		return money.Sum(lineAmounts, allocationScale)
	}
	if len(skuAmounts) == 0 {
		return money.Zero(allocationScale), nil
	}
	return money.Sum(skuAmounts, allocationScale)
}

func (s AllocationStore) amounts(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return nil, err
		}
		out = append(out, amount)
	}
	return out, rows.Err()
}

func nullableText(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
