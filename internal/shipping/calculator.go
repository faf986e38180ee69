package shipping

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/arkan-dev/backend-mall/internal/address"
	"github.com/arkan-dev/backend-mall/internal/money"
)

// defaultGroupKey collects lines whose SKU carries no template assignment.
const defaultGroupKey = "default"

// Calculator computes shipping fees per template group and applies the
// minimum free-shipping threshold across groups.
type Calculator struct {
	Templates TemplateStore
	Areas     AreaStore
	Addresses address.Resolver
	Scale     int32
}

type lineGroup struct {
	key        string
	templateID *uuid.UUID
	lines      []Line
}

// Calculate resolves the destination, groups lines by template, prices each
// group and accumulates the total. An empty input or unresolvable address
// yields a deliverability-false result; a missing template or undeliverable
// group aborts the whole calculation with an error.
func (c Calculator) Calculate(ctx context.Context, in Input) (Result, error) {
	zero := money.Zero(c.Scale)
	if len(in.Lines) == 0 {
		return Result{Fee: zero, Deliverable: false, Error: "no items to ship"}, nil
	}

	dest, err := c.Addresses.Resolve(ctx, in.AddressID)
	if err != nil {
		if errors.Is(err, address.ErrAddressNotFound) {
			return Result{Fee: zero, Deliverable: false, Error: "address not found"}, nil
		}
		return Result{}, err
	}

	groups := groupByTemplate(in.Lines)
	details := make([]Detail, 0, len(groups))
	fees := make([]string, 0, len(groups))
	var minThreshold *string

	for _, group := range groups {
		tpl, err := c.resolveTemplate(ctx, group)
		if err != nil {
			return Result{}, err
		}
		deliverable, err := c.Areas.IsDeliverable(ctx, tpl.ID, dest.Province, dest.City, dest.District)
		if err != nil {
			return Result{}, err
		}
		if !deliverable {
			return Result{}, fmt.Errorf("template %s to %s/%s/%s: %w",
				tpl.Name, dest.Province, dest.City, dest.District, ErrNotDeliverable)
		}

		chargeValue, err := chargeUnitValue(tpl.Basis, group.lines)
		if err != nil {
			return Result{}, err
		}
		rate := tpl.Rate
		threshold := tpl.FreeThreshold
		best, err := c.Areas.FindBestMatch(ctx, tpl.ID, dest.Province, dest.City, dest.District)
		if err != nil {
			return Result{}, err
		}
		if best != nil && best.HasCustomRate {
			rate = best.Rate
			if best.FreeThreshold != nil {
				threshold = best.FreeThreshold
			}
		}
		fee, err := c.rateFee(rate, chargeValue)
		if err != nil {
			return Result{}, err
		}

		fees = append(fees, fee)
		details = append(details, Detail{
			TemplateID:    tpl.ID,
			TemplateName:  tpl.Name,
			Basis:         tpl.Basis,
			ChargeValue:   chargeValue,
			Unit:          tpl.Basis.Unit(),
			Fee:           fee,
			FreeThreshold: threshold,
		})
		minThreshold = lowerThreshold(minThreshold, threshold)
	}

	total, err := money.Sum(fees, c.Scale)
	if err != nil {
		return Result{}, err
	}
	result := Result{
		Fee:           total,
		FreeThreshold: minThreshold,
		Deliverable:   true,
		Details:       details,
	}

	if minThreshold != nil {
		reached, err := money.LessThan(in.OrderTotal, *minThreshold)
		if err != nil {
			return Result{}, err
		}
		if !reached {
			result.Fee = zero
			result.Free = true
			for i := range result.Details {
				result.Details[i].Fee = zero
				result.Details[i].Free = true
			}
		}
	}
	return result, nil
}

func (c Calculator) resolveTemplate(ctx context.Context, group lineGroup) (Template, error) {
	if group.key == defaultGroupKey {
		tpl, err := c.Templates.FindDefault(ctx)
		if err != nil {
			return Template{}, fmt.Errorf("default template: %w", err)
		}
		return tpl, nil
	}
	tpl, err := c.Templates.Find(ctx, *group.templateID)
	if err != nil {
		return Template{}, fmt.Errorf("template %s: %w", group.templateID, err)
	}
	return tpl, nil
}

// rateFee prices a charge value: the first-unit fee flat, plus the addition
// fee per started addition unit beyond the first.
func (c Calculator) rateFee(rate Rate, chargeValue string) (string, error) {
	value, err := decimal.NewFromString(chargeValue)
	if err != nil {
		return "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, chargeValue)
	}
	firstUnit, err := decimal.NewFromString(rate.FirstUnit)
	if err != nil {
		return "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, rate.FirstUnit)
	}
	if value.LessThanOrEqual(firstUnit) {
		return money.Round(rate.FirstFee, c.Scale)
	}
	addUnit, err := decimal.NewFromString(rate.AdditionUnit)
	if err != nil {
		return "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, rate.AdditionUnit)
	}
	if addUnit.IsZero() {
		return "", money.ErrDivisionByZero
	}
	steps := value.Sub(firstUnit).Div(addUnit).Ceil()
	surcharge, err := money.Mul(rate.AdditionFee, steps.String(), c.Scale)
	if err != nil {
		return "", err
	}
	return money.Add(rate.FirstFee, surcharge, c.Scale)
}

// chargeUnitValue sums the group's weight, quantity or volume according to
// the template's charge basis. Unit values are decimal but not monetary.
func chargeUnitValue(basis Basis, lines []Line) (string, error) {
	total := decimal.Zero
	for _, line := range lines {
		qty := decimal.NewFromInt(int64(line.Quantity))
		switch basis {
		case BasisCount:
			total = total.Add(qty)
		case BasisVolume:
			vol, err := decimal.NewFromString(defaultIfEmpty(line.UnitVolume, "0"))
			if err != nil {
				return "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, line.UnitVolume)
			}
			total = total.Add(vol.Mul(qty))
		default:
			weight, err := decimal.NewFromString(defaultIfEmpty(line.UnitWeight, "0"))
			if err != nil {
				return "", fmt.Errorf("%w: %q", money.ErrInvalidAmount, line.UnitWeight)
			}
			total = total.Add(weight.Mul(qty))
		}
	}
	return total.String(), nil
}

// lowerThreshold keeps the running minimum; a nil candidate never lowers it.
func lowerThreshold(current, candidate *string) *string {
	if candidate == nil {
		return current
	}
	if current == nil {
		return candidate
	}
	lower, err := money.LessThan(*candidate, *current)
	if err != nil || !lower {
		return current
	}
	return candidate
}

func groupByTemplate(lines []Line) []lineGroup {
	index := map[string]int{}
	var groups []lineGroup
	for _, line := range lines {
		key := defaultGroupKey
		if line.TemplateID != nil {
			key = line.TemplateID.String()
		}
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, lineGroup{key: key, templateID: line.TemplateID})
		}
		groups[i].lines = append(groups[i].lines, line)
	}
	return groups
}

func defaultIfEmpty(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
