package coupon

import (
	"context"
	"fmt"

	"github.com/arkan-dev/backend-mall/internal/money"
	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// RuleEvaluator computes coupon benefits from the coupon's own rule fields:
// flat amounts, percentages of the eligible subtotal and gift/redeem grants.
type RuleEvaluator struct {
	Scale int32
}

// Evaluate implements Evaluator.
func (r RuleEvaluator) Evaluate(_ context.Context, c Coupon, calc pricing.Context) (Evaluation, error) {
	eligible, err := EligibleSubtotal(calc.Items, c, r.Scale)
	if err != nil {
		return Evaluation{}, err
	}
	zero := money.Zero(r.Scale)

	switch c.Kind {
	case KindAmount:
		discount := c.Value
		if over, cmpErr := money.GreaterThan(discount, eligible); cmpErr != nil {
			return Evaluation{}, cmpErr
		} else if over {
			discount = eligible
		}
		discount, err = money.Round(discount, r.Scale)
		if err != nil {
			return Evaluation{}, err
		}
		return Evaluation{Discount: discount}, nil

	case KindPercent:
		discount, perr := money.Percent(eligible, c.Value, r.Scale)
		if perr != nil {
			return Evaluation{}, perr
		}
		return Evaluation{Discount: discount}, nil

	case KindGift, KindRedeem:
		extra, gerr := r.grantedItem(c, calc)
		if gerr != nil {
			return Evaluation{}, gerr
		}
		eval := Evaluation{Discount: zero}
		if extra != nil {
			if c.Kind == KindGift {
				eval.GiftItems = []pricing.ExtraItem{*extra}
			} else {
				eval.RedeemItems = []pricing.ExtraItem{*extra}
			}
		}
		return eval, nil
	}
	return Evaluation{}, fmt.Errorf("unknown coupon kind %q", c.Kind)
}

// grantedItem builds the extra item a gift/redeem coupon grants. Gifts cost
// nothing; redeem items are charged the coupon's value. The back-reference
// points at the first in-scope item that triggered the grant.
func (r RuleEvaluator) grantedItem(c Coupon, calc pricing.Context) (*pricing.ExtraItem, error) {
	if c.GiftSkuID == nil || c.GiftQuantity <= 0 {
		return nil, nil
	}
	var source *pricing.Item
	for i := range calc.Items {
		if calc.Items[i].Selected && matchesScope(c, calc.Items[i]) {
			source = &calc.Items[i]
			break
		}
	}
	if source == nil {
		return nil, nil
	}
	unit := money.Zero(r.Scale)
	if c.Kind == KindRedeem {
		rounded, err := money.Round(c.Value, r.Scale)
		if err != nil {
			return nil, err
		}
		unit = rounded
	}
	total, err := money.Mul(unit, fmt.Sprintf("%d", c.GiftQuantity), r.Scale)
	if err != nil {
		return nil, err
	}
	kind := pricing.ExtraGift
	if c.Kind == KindRedeem {
		kind = pricing.ExtraRedeem
	}
	return &pricing.ExtraItem{
		SkuID:       *c.GiftSkuID,
		Quantity:    c.GiftQuantity,
		UnitPrice:   unit,
		TotalPrice:  total,
		Kind:        kind,
		SourceSkuID: source.SkuID,
		CouponCode:  c.Code,
	}, nil
}
