package coupon

import (
	"context"

	"github.com/arkan-dev/backend-mall/internal/money"
	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// Calculator plugs coupon evaluation into the price calculation engine. It
// applies the coupon codes the caller requested and publishes the applied
// codes and any granted items through the result details.
type Calculator struct {
	Engine *Engine
	Scale  int32
}

func (Calculator) Priority() int { return 50 }

func (Calculator) Type() string { return "coupon" }

func (c Calculator) Supports(_ context.Context, calc pricing.Context) bool {
	return len(calc.CouponCodes) > 0
}

func (c Calculator) Calculate(ctx context.Context, calc pricing.Context) (pricing.Result, error) {
	recs, err := c.Engine.EvaluateCodes(ctx, calc, calc.CouponCodes)
	if err != nil {
		return pricing.Result{}, err
	}
	result := pricing.ZeroResult(c.Scale)
	if len(recs) == 0 {
		return result, nil
	}

	discounts := make([]string, 0, len(recs))
	applied := make([]string, 0, len(recs))
	var extras []pricing.ExtraItem
	for _, rec := range recs {
		discounts = append(discounts, rec.Discount)
		applied = append(applied, rec.Coupon.Code)
		extras = append(extras, rec.Extras...)
		result.Breakdown = append(result.Breakdown, pricing.ProductPrice{
			SkuCode:       rec.Coupon.Code,
			OriginalPrice: money.Zero(c.Scale),
			FinalPrice:    money.Zero(c.Scale),
			Discount:      rec.Discount,
			Source:        "coupon",
		})
	}
	total, err := money.Sum(discounts, c.Scale)
	if err != nil {
		return pricing.Result{}, err
	}
	negated, err := money.Sub(money.Zero(c.Scale), total, c.Scale)
	if err != nil {
		return pricing.Result{}, err
	}
	result.Discount = total
	result.FinalPrice = negated
	result.Details[pricing.DetailAppliedCoupons] = applied
	if len(extras) > 0 {
		result.Details[pricing.DetailExtraItems] = extras
	}
	return result, nil
}
