package pricing

import (
	"context"
	"errors"
	"strconv"

	"github.com/arkan-dev/backend-mall/internal/money"
)

// ErrUnresolvedProduct is returned when a selected item has no resolved
// product reference, which makes its price unknowable.
var ErrUnresolvedProduct = errors.New("pricing: item has no resolved product")

// GoodsCalculator prices the raw cart lines: unit price times quantity for
// every selected item. It contributes no discount.
type GoodsCalculator struct {
	Scale int32
}

func (GoodsCalculator) Priority() int { return 100 }

func (GoodsCalculator) Type() string { return "goods" }

func (GoodsCalculator) Supports(_ context.Context, calc Context) bool {
	return len(calc.Items) > 0
}

func (g GoodsCalculator) Calculate(_ context.Context, calc Context) (Result, error) {
	result := ZeroResult(g.Scale)
	lines := make([]string, 0, len(calc.Items))
	for _, it := range calc.Items {
		if !it.Selected {
			continue
		}
		if it.Product == nil {
			return Result{}, ErrUnresolvedProduct
		}
		line, err := money.Mul(it.Product.UnitPrice, strconv.Itoa(it.Quantity), g.Scale)
		if err != nil {
			return Result{}, err
		}
		lines = append(lines, line)
		result.Breakdown = append(result.Breakdown, ProductPrice{
			SkuID:         it.SkuID,
			SkuCode:       it.Product.SkuCode,
			Quantity:      it.Quantity,
			OriginalPrice: line,
			FinalPrice:    line,
			Discount:      money.Zero(g.Scale),
			Source:        "goods",
		})
	}
	total, err := money.Sum(lines, g.Scale)
	if err != nil {
		return Result{}, err
	}
	result.OriginalPrice = total
	result.FinalPrice = total
	return result, nil
}
