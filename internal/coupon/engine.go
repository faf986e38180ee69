package coupon

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/arkan-dev/backend-mall/internal/money"
	"github.com/arkan-dev/backend-mall/internal/pricing"
)

// Provider enumerates a user's candidate coupons from one source. Providers
// are independent; one failing provider never blocks the others.
type Provider interface {
	Name() string
	Candidates(ctx context.Context, calc pricing.Context) ([]Coupon, error)
}

// Evaluation is the benefit an evaluator computed for one coupon.
type Evaluation struct {
	Discount    string
	GiftItems   []pricing.ExtraItem
	RedeemItems []pricing.ExtraItem
}

// Extras returns every granted item of the evaluation.
func (e Evaluation) Extras() []pricing.ExtraItem {
	out := make([]pricing.ExtraItem, 0, len(e.GiftItems)+len(e.RedeemItems))
	out = append(out, e.GiftItems...)
	out = append(out, e.RedeemItems...)
	return out
}

// Evaluator computes the concrete benefit of a coupon against a cart.
type Evaluator interface {
	Evaluate(ctx context.Context, c Coupon, calc pricing.Context) (Evaluation, error)
}

// Recommendation ties a coupon to its evaluated benefit.
type Recommendation struct {
	Coupon   Coupon
	Discount string
	Extras   []pricing.ExtraItem
}

// Engine filters and scores a user's candidate coupons against a cart.
type Engine struct {
	Providers          []Provider
	Evaluator          Evaluator
	MaxEvaluations     int
	MaxRecommendations int
	Scale              int32
	Logger             zerolog.Logger
	Now                func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Recommend gathers candidates from every provider, quick-filters them,
// fully evaluates the survivors within the configured caps and returns the
// recommendations ranked by discount descending (stable on ties).
func (e *Engine) Recommend(ctx context.Context, calc pricing.Context) ([]Recommendation, error) {
	cartTotal, err := calc.SelectedTotal(e.Scale)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var candidates []Coupon
	for _, p := range e.Providers {
		found, perr := p.Candidates(ctx, calc)
		if perr != nil {
			e.Logger.Warn().
				Err(perr).
				Str("provider", p.Name()).
				Msg("coupon provider failed, skipping its candidates")
			continue
		}
		candidates = append(candidates, found...)
	}

	quick := candidates[:0]
	for _, c := range candidates {
		if err := c.Validate(now, cartTotal); err != nil {
			continue
		}
		quick = append(quick, c)
	}

	recommendations := make([]Recommendation, 0, len(quick))
	evaluated := 0
	for _, c := range quick {
		if e.MaxEvaluations > 0 && evaluated >= e.MaxEvaluations {
			break
		}
		if e.MaxRecommendations > 0 && len(recommendations) >= e.MaxRecommendations {
			break
		}
		evaluated++
		rec, ok := e.evaluateOne(ctx, c, calc, now, cartTotal)
		if ok {
			recommendations = append(recommendations, rec)
		}
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		gt, cmpErr := money.GreaterThan(recommendations[i].Discount, recommendations[j].Discount)
		if cmpErr != nil {
			return false
		}
		return gt
	})
	return recommendations, nil
}

// EvaluateCodes evaluates only the explicitly requested coupon codes,
// sourcing candidates from the provider chain. Codes that do not resolve to
// an applicable coupon are silently omitted; the price calculator reports
// only the codes it actually applied.
func (e *Engine) EvaluateCodes(ctx context.Context, calc pricing.Context, codes []string) ([]Recommendation, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	wanted := make(map[string]bool, len(codes))
	for _, code := range codes {
		wanted[code] = true
	}
	cartTotal, err := calc.SelectedTotal(e.Scale)
	if err != nil {
		return nil, err
	}
	now := e.now()

	var out []Recommendation
	seen := make(map[string]bool, len(codes))
	for _, p := range e.Providers {
		found, perr := p.Candidates(ctx, calc)
		if perr != nil {
			e.Logger.Warn().
				Err(perr).
				Str("provider", p.Name()).
				Msg("coupon provider failed, skipping its candidates")
			continue
		}
		for _, c := range found {
			if !wanted[c.Code] || seen[c.Code] {
				continue
			}
			if rec, ok := e.evaluateOne(ctx, c, calc, now, cartTotal); ok {
				out = append(out, rec)
				seen[c.Code] = true
			}
		}
	}
	return out, nil
}

// evaluateOne runs the full (expensive) evaluation pass for one coupon. A
// coupon contributes only when it yields a positive discount or actually
// grants items; evaluation errors skip the coupon without failing the batch.
func (e *Engine) evaluateOne(ctx context.Context, c Coupon, calc pricing.Context, now time.Time, cartTotal string) (Recommendation, bool) {
	if err := c.Validate(now, cartTotal); err != nil {
		return Recommendation{}, false
	}
	eligible, err := EligibleSubtotal(calc.Items, c, e.Scale)
	if err != nil {
		e.Logger.Warn().Err(err).Str("coupon", c.Code).Msg("coupon eligibility computation failed, skipping")
		return Recommendation{}, false
	}
	positive, err := money.GreaterThan(eligible, money.Zero(e.Scale))
	if err != nil || !positive {
		return Recommendation{}, false
	}
	eval, err := e.Evaluator.Evaluate(ctx, c, calc)
	if err != nil {
		e.Logger.Warn().Err(err).Str("coupon", c.Code).Msg("coupon evaluation failed, skipping")
		return Recommendation{}, false
	}
	extras := eval.Extras()
	discount := eval.Discount
	if discount == "" {
		discount = money.Zero(e.Scale)
	}
	hasDiscount, err := money.GreaterThan(discount, money.Zero(e.Scale))
	if err != nil {
		e.Logger.Warn().Err(err).Str("coupon", c.Code).Msg("coupon discount unreadable, skipping")
		return Recommendation{}, false
	}
	if !hasDiscount && !(c.GrantsItems() && len(extras) > 0) {
		return Recommendation{}, false
	}
	return Recommendation{Coupon: c, Discount: discount, Extras: extras}, true
}
