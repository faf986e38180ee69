package pricing

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/arkan-dev/backend-mall/internal/money"
)

// Metadata keys every calculation context carries.
const (
	MetaCalculatedAt = "calculatedAt"
	MetaRegion       = "region"
)

// Detail keys calculators publish through Result.Details.
const (
	DetailAppliedCoupons = "appliedCoupons"
	DetailExtraItems     = "extraItems"
)

// ProductRef is the resolved product backing a checkout item.
type ProductRef struct {
	SkuID              uuid.UUID
	SkuCode            string
	Name               string
	UnitPrice          string
	Weight             string
	Volume             string
	ShippingTemplateID *uuid.UUID
	CategoryID         *uuid.UUID
}

// Item is a normalized checkout line: a SKU, a requested quantity and a
// selected flag, optionally carrying the resolved product and the cart line
// it originated from.
type Item struct {
	SkuID      uuid.UUID
	Quantity   int
	Selected   bool
	Product    *ProductRef
	CartLineID *uuid.UUID
}

// ExtraKind distinguishes coupon-granted items.
type ExtraKind string

const (
	ExtraGift   ExtraKind = "gift"
	ExtraRedeem ExtraKind = "redeem"
)

// ExtraItem is a gift or redeemed item granted by a coupon. It flows
// alongside regular items into stock and shipping checks and into persisted
// order lines.
type ExtraItem struct {
	SkuID       uuid.UUID
	Quantity    int
	UnitPrice   string
	TotalPrice  string
	Kind        ExtraKind
	SourceSkuID uuid.UUID
	CouponCode  string
}

// Context is the immutable input to a price calculation: the user, the
// ordered items, the coupon codes the caller wants applied and an open
// metadata map.
type Context struct {
	UserID      uuid.UUID
	Items       []Item
	CouponCodes []string
	Metadata    map[string]any
}

// NewContext builds a calculation context, defaulting the calculation
// timestamp to now when the metadata does not carry one.
func NewContext(userID uuid.UUID, items []Item, couponCodes []string, metadata map[string]any) Context {
	meta := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta[MetaCalculatedAt]; !ok {
		meta[MetaCalculatedAt] = time.Now()
	}
	return Context{
		UserID:      userID,
		Items:       items,
		CouponCodes: append([]string(nil), couponCodes...),
		Metadata:    meta,
	}
}

// CalculatedAt returns the calculation timestamp from the metadata.
func (c Context) CalculatedAt() time.Time {
	if v, ok := c.Metadata[MetaCalculatedAt].(time.Time); ok {
		return v
	}
	return time.Now()
}

// WithMetadata returns a copy of the context with one metadata entry replaced.
func (c Context) WithMetadata(key string, value any) Context {
	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta[key] = value
	out := c
	out.Metadata = meta
	return out
}

// WithCoupons returns a copy of the context with the coupon codes replaced.
func (c Context) WithCoupons(codes []string) Context {
	out := c
	out.CouponCodes = append([]string(nil), codes...)
	return out
}

// SelectedTotal sums unit price times quantity over selected, resolved items.
func (c Context) SelectedTotal(scale int32) (string, error) {
	lines := make([]string, 0, len(c.Items))
	for _, it := range c.Items {
		if !it.Selected || it.Product == nil {
			continue
		}
		line, err := money.Mul(it.Product.UnitPrice, strconv.Itoa(it.Quantity), scale)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return money.Zero(scale), nil
	}
	return money.Sum(lines, scale)
}

// ProductPrice is one per-product entry of a price breakdown.
type ProductPrice struct {
	SkuID         uuid.UUID
	SkuCode       string
	Quantity      int
	OriginalPrice string
	FinalPrice    string
	Discount      string
	Source        string
}

// Result aggregates a price computation. Monetary fields are fixed-point
// decimal strings at the engine's scale.
type Result struct {
	OriginalPrice string
	FinalPrice    string
	Discount      string
	Details       map[string]any
	Breakdown     []ProductPrice
}

// ZeroResult returns an empty result at the given scale.
func ZeroResult(scale int32) Result {
	zero := money.Zero(scale)
	return Result{
		OriginalPrice: zero,
		FinalPrice:    zero,
		Discount:      zero,
		Details:       map[string]any{},
	}
}

// Merge sums the monetary totals pairwise and concatenates details and
// breakdown entries. Detail keys from the other result overwrite this
// result's keys on collision.
func (r Result) Merge(other Result, scale int32) (Result, error) {
	original, err := money.Add(r.OriginalPrice, other.OriginalPrice, scale)
	if err != nil {
		return Result{}, err
	}
	final, err := money.Add(r.FinalPrice, other.FinalPrice, scale)
	if err != nil {
		return Result{}, err
	}
	discount, err := money.Add(r.Discount, other.Discount, scale)
	if err != nil {
		return Result{}, err
	}
	details := make(map[string]any, len(r.Details)+len(other.Details))
	for k, v := range r.Details {
		details[k] = v
	}
	for k, v := range other.Details {
		details[k] = v
	}
	breakdown := make([]ProductPrice, 0, len(r.Breakdown)+len(other.Breakdown))
	breakdown = append(breakdown, r.Breakdown...)
	breakdown = append(breakdown, other.Breakdown...)
	return Result{
		OriginalPrice: original,
		FinalPrice:    final,
		Discount:      discount,
		Details:       details,
		Breakdown:     breakdown,
	}, nil
}

// AppliedCoupons extracts the coupon codes calculators reported as applied.
func (r Result) AppliedCoupons() []string {
	codes, _ := r.Details[DetailAppliedCoupons].([]string)
	return codes
}

// ExtraItems extracts the coupon-granted items calculators contributed.
func (r Result) ExtraItems() []ExtraItem {
	extras, _ := r.Details[DetailExtraItems].([]ExtraItem)
	return extras
}
