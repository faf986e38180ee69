// Package coupon implements coupon candidate evaluation, the reservation
// ledger used by the commit saga and the per-line discount allocation store.
package coupon

import (
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/arkan-dev/backend-mall/internal/money"
	"github.com/arkan-dev/backend-mall/internal/pricing"
)

var (
	// ErrNotEligible is returned when the coupon cannot be applied to the cart.
	ErrNotEligible = errors.New("coupon not eligible")
	// ErrCouponInactive is returned before the coupon's validity window opens.
	ErrCouponInactive = errors.New("coupon not active")
	// ErrCouponExpired is returned after the coupon's validity window closed.
	ErrCouponExpired = errors.New("coupon expired")
	// ErrMinimumSpendUnmet indicates the eligible cart value is below the coupon threshold.
	ErrMinimumSpendUnmet = errors.New("coupon minimum spend not met")
	// ErrCouponUnavailable indicates the ledger could not reserve the coupon.
	ErrCouponUnavailable = errors.New("coupon expired or unavailable")
)

// Kind classifies the benefit a coupon grants.
type Kind string

const (
	KindAmount  Kind = "amount"
	KindPercent Kind = "percent"
	KindGift    Kind = "gift"
	KindRedeem  Kind = "redeem"
)

// Coupon captures the runtime constraints and benefit of one coupon.
type Coupon struct {
	Code         string
	Name         string
	Kind         Kind
	Value        string
	MinSpend     string
	ValidFrom    *time.Time
	ValidTo      *time.Time
	SkuIDs       []uuid.UUID
	CategoryIDs  []uuid.UUID
	GiftSkuID    *uuid.UUID
	GiftQuantity int
}

// GrantsItems reports whether the coupon's benefit is an extra item rather
// than a price cut.
func (c Coupon) GrantsItems() bool {
	return c.Kind == KindGift || c.Kind == KindRedeem
}

// Validate checks the validity window and, when the coupon carries a
// minimum-spend condition, that condition against the eligible cart value.
func (c Coupon) Validate(now time.Time, eligibleTotal string) error {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return ErrCouponInactive
	}
	if c.ValidTo != nil && now.After(*c.ValidTo) {
		return ErrCouponExpired
	}
	if c.MinSpend != "" {
		unmet, err := money.GreaterThan(c.MinSpend, eligibleTotal)
		if err != nil {
			return err
		}
		if unmet {
			return ErrMinimumSpendUnmet
		}
	}
	return nil
}

// EligibleSubtotal sums the selected item values the coupon's scope covers.
// An unscoped coupon covers every selected item.
func EligibleSubtotal(items []pricing.Item, c Coupon, scale int32) (string, error) {
	lines := make([]string, 0, len(items))
	for _, it := range items {
		if !it.Selected || it.Product == nil {
			continue
		}
		if !matchesScope(c, it) {
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

func matchesScope(c Coupon, it pricing.Item) bool {
	scoped := len(c.SkuIDs) > 0 || len(c.CategoryIDs) > 0
	if !scoped {
		return true
	}
	for _, id := range c.SkuIDs {
		if id == it.SkuID {
			return true
		}
	}
	if it.Product != nil && it.Product.CategoryID != nil {
		for _, id := range c.CategoryIDs {
			if id == *it.Product.CategoryID {
				return true
			}
		}
	}
	return false
}
