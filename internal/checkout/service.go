// Package checkout composes pricing, coupons, stock and shipping into quote
// results and runs the order-commit saga.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/arkan-dev/backend-mall/internal/address"
	"github.com/arkan-dev/backend-mall/internal/catalog"
	"github.com/arkan-dev/backend-mall/internal/common"
	"github.com/arkan-dev/backend-mall/internal/coupon"
	"github.com/arkan-dev/backend-mall/internal/integral"
	"github.com/arkan-dev/backend-mall/internal/money"
	"github.com/arkan-dev/backend-mall/internal/obs"
	"github.com/arkan-dev/backend-mall/internal/order"
	"github.com/arkan-dev/backend-mall/internal/pricing"
	"github.com/arkan-dev/backend-mall/internal/saga"
	"github.com/arkan-dev/backend-mall/internal/shipping"
	"github.com/arkan-dev/backend-mall/internal/stock"
	"github.com/arkan-dev/backend-mall/internal/tasks"
)

// ErrEmptyCart is returned when a checkout is requested for no items.
var ErrEmptyCart = errors.New("cart is empty")

// StockValidator abstracts stock validation for testing.
type StockValidator interface {
	Validate(ctx context.Context, requests []stock.Request) (stock.Result, error)
}

// ShippingCalculator abstracts the fee calculation for testing.
type ShippingCalculator interface {
	Calculate(ctx context.Context, in shipping.Input) (shipping.Result, error)
}

// OrderStore abstracts order persistence for testing.
type OrderStore interface {
	Create(ctx context.Context, d order.Draft) (order.Contract, error)
}

// AllocationRecorder persists coupon discount allocations.
type AllocationRecorder interface {
	Record(ctx context.Context, d coupon.AllocationDetail) error
}

// CartManager removes purchased lines after commit.
type CartManager interface {
	RemoveItem(ctx context.Context, userID, lineID uuid.UUID) error
}

// Input is one checkout request.
type Input struct {
	UserID         uuid.UUID
	RawItems       json.RawMessage
	CouponCodes    []string
	AddressID      uuid.UUID
	Region         string
	Remark         string
	IntegralPoints int64
}

// Result is the composed checkout outcome.
type Result struct {
	Price    pricing.Result
	Extras   []pricing.ExtraItem
	Stock    *stock.Result
	Shipping *shipping.Result
	Total    string
	Order    *order.Contract
}

// Service orchestrates checkout quotes and the commit saga.
type Service struct {
	Pricing       *pricing.Engine
	Catalog       catalog.Resolver
	Stock         StockValidator
	StockOperator stock.Operator
	Shipping      ShippingCalculator
	Addresses     address.Resolver
	Ledger        coupon.Ledger
	Allocations   AllocationRecorder
	Orders        OrderStore
	Integral      integral.Service
	Cart          CartManager
	Tasks         tasks.Enqueuer
	Scale         int32
	AutoCancelTTL time.Duration
	Logger        zerolog.Logger
}

// CalculateCheckout prices the cart, validates stock and computes shipping
// without touching the coupon ledger or creating an order. An empty cart is
// a validation error.
func (s *Service) CalculateCheckout(ctx context.Context, in Input) (Result, error) {
	items, err := s.resolveItems(ctx, in.RawItems)
	if err != nil {
		s.countCheckout("calculate", "invalid")
		return Result{}, err
	}
	if len(items) == 0 {
		s.countCheckout("calculate", "invalid")
		return Result{}, common.ValidationError("cart is empty", ErrEmptyCart)
	}
	result, err := s.quote(ctx, in, items, true)
	if err != nil {
		s.countCheckout("calculate", "failed")
		return Result{}, err
	}
	s.countCheckout("calculate", "ok")
	return result, nil
}

// QuickCalculate prices the cart and computes shipping, skipping stock
// validation. An empty cart yields an explicit empty result.
func (s *Service) QuickCalculate(ctx context.Context, in Input) (Result, error) {
	items, err := s.resolveItems(ctx, in.RawItems)
	if err != nil {
		s.countCheckout("quick", "invalid")
		return Result{}, err
	}
	if len(items) == 0 {
		s.countCheckout("quick", "ok")
		zero := money.Zero(s.Scale)
		return Result{Price: pricing.ZeroResult(s.Scale), Total: zero}, nil
	}
	result, err := s.quote(ctx, in, items, false)
	if err != nil {
		s.countCheckout("quick", "failed")
		return Result{}, err
	}
	s.countCheckout("quick", "ok")
	return result, nil
}

func (s *Service) quote(ctx context.Context, in Input, items []pricing.Item, withStock bool) (Result, error) {
	calc := s.newContext(in, items)
	price, err := s.Pricing.Calculate(ctx, calc)
	if err != nil {
		return Result{}, wrapPricingError(err)
	}
	extras := price.ExtraItems()

	result := Result{Price: price, Extras: extras}

	if withStock {
		stockRes, err := s.Stock.Validate(ctx, stockRequests(items, extras))
		if err != nil {
			return Result{}, wrapStockError(err)
		}
		result.Stock = &stockRes
	}

	shipRes, err := s.Shipping.Calculate(ctx, shipping.Input{
		AddressID:  in.AddressID,
		Lines:      shippingLines(items, extras),
		OrderTotal: price.FinalPrice,
	})
	if err != nil {
		return Result{}, wrapShippingError(err)
	}
	result.Shipping = &shipRes

	total, err := s.combinedTotal(price, shipRes, extras)
	if err != nil {
		return Result{}, err
	}
	result.Total = total
	return result, nil
}

// Process commits the checkout: locks implicated coupons, re-validates
// stock against the merged item set, persists the order atomically, redeems
// the coupons and runs post-commit side effects. Locked coupons are
// unlocked on every exit path where redemption did not complete.
func (s *Service) Process(ctx context.Context, in Input) (Result, error) {
	items, err := s.resolveItems(ctx, in.RawItems)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, common.ValidationError("cart is empty", ErrEmptyCart)
	}
	calc := s.newContext(in, items)

	price, err := s.Pricing.Calculate(ctx, calc)
	if err != nil {
		s.countCommit("failed")
		return Result{}, wrapPricingError(err)
	}
	codes := price.AppliedCoupons()
	extras := price.ExtraItems()

	shipRes, err := s.Shipping.Calculate(ctx, shipping.Input{
		AddressID:  in.AddressID,
		Lines:      shippingLines(items, extras),
		OrderTotal: price.FinalPrice,
	})
	if err != nil {
		s.countCommit("failed")
		return Result{}, wrapShippingError(err)
	}
	if !shipRes.Deliverable {
		if obs.ShippingUndeliverableTotal != nil {
			obs.ShippingUndeliverableTotal.Inc()
		}
		s.countCommit("failed")
		return Result{}, common.DomainRuleError(shipRes.Error, shipping.ErrNotDeliverable)
	}

	total, err := s.combinedTotal(price, shipRes, extras)
	if err != nil {
		s.countCommit("failed")
		return Result{}, err
	}

	serial := order.NewSerialNumber(time.Now())
	var (
		lockedCodes []string
		redeemed    bool
		contract    order.Contract
		stockRes    stock.Result
	)

	runner := saga.Runner{
		Logger: s.Logger,
		OnRewind: func(step string) {
			if obs.SagaCompensationTotal != nil {
				obs.SagaCompensationTotal.WithLabelValues(step).Inc()
			}
		},
	}

	steps := []saga.Step{
		{
			Name: "lock_coupons",
			Do: func(ctx context.Context) error {
				if len(codes) == 0 {
					return nil
				}
				locked, lockErr := s.Ledger.Lock(ctx, in.UserID, codes)
				lockedCodes = locked
				if lockErr != nil {
					s.countCouponLock("error")
					// A failing Lock may still have reserved some codes.
					if len(locked) > 0 {
						if unlockErr := s.Ledger.Unlock(ctx, locked, in.UserID); unlockErr != nil {
							s.Logger.Error().Err(unlockErr).Msg("release partial coupon reservation")
						}
						lockedCodes = nil
					}
					return common.ExternalServiceError("coupon ledger lock failed", lockErr)
				}
				if len(locked) < len(codes) {
					s.countCouponLock("unavailable")
					// Release the partial reservation before failing the commit.
					if unlockErr := s.Ledger.Unlock(ctx, locked, in.UserID); unlockErr != nil {
						s.Logger.Error().Err(unlockErr).Msg("release partial coupon reservation")
					}
					lockedCodes = nil
					return common.DomainRuleError("one or more coupons are expired or unavailable", coupon.ErrCouponUnavailable)
				}
				s.countCouponLock("ok")
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if redeemed || len(lockedCodes) == 0 {
					return nil
				}
				return s.Ledger.Unlock(ctx, lockedCodes, in.UserID)
			},
		},
		{
			Name: "validate_stock",
			Do: func(ctx context.Context) error {
				res, stockErr := s.Stock.Validate(ctx, stockRequests(items, extras))
				if stockErr != nil {
					return wrapStockError(stockErr)
				}
				stockRes = res
				if !res.Valid {
					return common.DomainRuleError("insufficient stock", fmt.Errorf("%d items unavailable", len(res.Errors)))
				}
				return nil
			},
		},
		{
			Name: "deduct_integral",
			Do: func(ctx context.Context) error {
				if in.IntegralPoints <= 0 {
					return nil
				}
				account, accErr := s.Integral.GetAccount(ctx, in.UserID)
				if accErr != nil {
					return common.ExternalServiceError("integral account lookup failed", accErr)
				}
				if account.Available < in.IntegralPoints {
					return common.DomainRuleError("not enough integral points", integral.ErrInsufficientPoints)
				}
				decErr := s.Integral.Decrease(ctx, integral.ChangeRequest{
					UserID:   in.UserID,
					Amount:   in.IntegralPoints,
					SourceID: integral.DeductSourceID(serial),
				})
				if decErr != nil {
					return common.ExternalServiceError("integral deduction failed", decErr)
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				if in.IntegralPoints <= 0 {
					return nil
				}
				return s.Integral.Increase(ctx, integral.ChangeRequest{
					UserID:   in.UserID,
					Amount:   in.IntegralPoints,
					SourceID: integral.RefundSourceID(serial),
				})
			},
		},
		{
			Name: "persist_order",
			Do: func(ctx context.Context) error {
				draft, draftErr := s.buildDraft(ctx, in, serial, items, extras, price, shipRes, total)
				if draftErr != nil {
					return draftErr
				}
				created, createErr := s.Orders.Create(ctx, draft)
				if createErr != nil {
					return common.ExternalServiceError("order persistence failed", createErr)
				}
				contract = created
				return nil
			},
		},
		{
			Name: "redeem_coupons",
			Do: func(ctx context.Context) error {
				if len(lockedCodes) == 0 {
					return nil
				}
				if redeemErr := s.Ledger.Redeem(ctx, in.UserID, lockedCodes, contract.ID); redeemErr != nil {
					return common.ExternalServiceError("coupon redemption failed", redeemErr)
				}
				redeemed = true
				s.recordAllocations(ctx, contract, price)
				return nil
			},
		},
	}

	if err := runner.Run(ctx, steps); err != nil {
		s.countCommit("failed")
		s.Logger.Error().
			Err(err).
			Str("serial_number", serial).
			Str("user_id", in.UserID.String()).
			Str("total", total).
			Msg("checkout commit failed")
		return Result{}, err
	}

	s.postCommit(ctx, in, contract, items, extras)
	s.countCommit("ok")

	return Result{
		Price:    price,
		Extras:   extras,
		Stock:    &stockRes,
		Shipping: &shipRes,
		Total:    total,
		Order:    &contract,
	}, nil
}

// postCommit runs the side effects that must never roll back a committed
// order: stock reservation, cart cleanup and queued notifications. Failures
// are logged and swallowed.
func (s *Service) postCommit(ctx context.Context, in Input, contract order.Contract, items []pricing.Item, extras []pricing.ExtraItem) {
	for _, req := range stockRequests(items, extras) {
		if !req.Selected {
			continue
		}
		if err := s.StockOperator.LockStock(ctx, req.SkuID, req.Quantity); err != nil {
			s.Logger.Error().
				Err(err).
				Str("sku_id", req.SkuID.String()).
				Str("serial_number", contract.SerialNumber).
				Msg("post-commit stock lock failed")
		}
	}
	for _, it := range items {
		if it.CartLineID == nil || !it.Selected {
			continue
		}
		if err := s.Cart.RemoveItem(ctx, in.UserID, *it.CartLineID); err != nil {
			s.Logger.Error().
				Err(err).
				Str("cart_line_id", it.CartLineID.String()).
				Msg("post-commit cart cleanup failed")
		}
	}
	if in.Remark != "" {
		s.Tasks.ModerateRemark(ctx, tasks.RemarkModeratePayload{OrderID: contract.ID, Remark: in.Remark})
	}
	s.Tasks.OrderCreated(ctx, tasks.OrderCreatedPayload{
		OrderID:      contract.ID,
		SerialNumber: contract.SerialNumber,
		UserID:       in.UserID,
		TotalAmount:  contract.TotalAmount,
	})
}

// recordAllocations distributes each redeemed coupon's discount across the
// order lines it covered and writes the allocation rows. These are audit
// records; failures are logged, never fatal to the commit.
func (s *Service) recordAllocations(ctx context.Context, contract order.Contract, price pricing.Result) {
	lineValues, lineKeys := couponLineShares(price)
	if len(lineValues) == 0 {
		return
	}
	for _, row := range price.Breakdown {
		if row.Source != "coupon" {
			continue
		}
		code := row.SkuCode
		shares, err := coupon.DistributeDiscount(row.Discount, lineValues)
		if err != nil {
			s.Logger.Error().Err(err).Str("coupon", code).Msg("distribute coupon discount")
			continue
		}
		for i, share := range shares {
			detail := coupon.AllocationDetail{
				OrderID:    contract.ID,
				CouponCode: code,
				SkuKey:     lineKeys[i],
				Amount:     share,
			}
			if err := s.Allocations.Record(ctx, detail); err != nil {
				s.Logger.Error().Err(err).Str("coupon", code).Msg("record coupon allocation")
			}
		}
	}
}

func (s *Service) buildDraft(ctx context.Context, in Input, serial string, items []pricing.Item, extras []pricing.ExtraItem, price pricing.Result, shipRes shipping.Result, total string) (order.Draft, error) {
	dest, err := s.Addresses.Resolve(ctx, in.AddressID)
	if err != nil {
		return order.Draft{}, common.ValidationError("delivery address not found", err)
	}

	lines := make([]order.Line, 0, len(items)+len(extras))
	for _, it := range items {
		if !it.Selected || it.Product == nil {
			continue
		}
		lineTotal, merr := money.Mul(it.Product.UnitPrice, strconv.Itoa(it.Quantity), s.Scale)
		if merr != nil {
			return order.Draft{}, merr
		}
		lines = append(lines, order.Line{
			SkuID:      it.SkuID,
			SkuCode:    it.Product.SkuCode,
			Name:       it.Product.Name,
			Quantity:   it.Quantity,
			UnitPrice:  it.Product.UnitPrice,
			TotalPrice: lineTotal,
			CartLineID: it.CartLineID,
		})
	}
	for _, ex := range extras {
		lines = append(lines, order.Line{
			SkuID:      ex.SkuID,
			SkuCode:    ex.SkuID.String(),
			Name:       string(ex.Kind),
			Quantity:   ex.Quantity,
			UnitPrice:  ex.UnitPrice,
			TotalPrice: ex.TotalPrice,
			Extra:      true,
			CouponCode: ex.CouponCode,
		})
	}

	breakdown := make([]order.BreakdownRow, 0, len(price.Breakdown)+1)
	for _, row := range price.Breakdown {
		breakdown = append(breakdown, order.BreakdownRow{
			Source: row.Source,
			Label:  row.SkuCode,
			Amount: row.FinalPrice,
		})
	}
	breakdown = append(breakdown, order.BreakdownRow{
		Source: "shipping",
		Label:  "shipping fee",
		Amount: shipRes.Fee,
	})

	var integralCost *int64
	if in.IntegralPoints > 0 {
		points := in.IntegralPoints
		integralCost = &points
	}
	return order.Draft{
		UserID:        in.UserID,
		SerialNumber:  serial,
		TotalAmount:   total,
		TotalIntegral: integralCost,
		AutoCancelAt:  time.Now().Add(s.AutoCancelTTL),
		Remark:        in.Remark,
		Lines:         lines,
		Breakdown:     breakdown,
		Contact: order.Contact{
			AddressID: dest.ID,
			Province:  dest.Province,
			City:      dest.City,
			District:  dest.District,
		},
	}, nil
}

func (s *Service) resolveItems(ctx context.Context, raw json.RawMessage) ([]pricing.Item, error) {
	items, err := NormalizeItems(raw)
	if err != nil {
		return nil, err
	}
	for i := range items {
		ref, rerr := s.Catalog.ResolveSku(ctx, items[i].SkuID)
		if rerr != nil {
			if errors.Is(rerr, catalog.ErrSkuNotFound) {
				return nil, common.ValidationError(fmt.Sprintf("unknown sku %s", items[i].SkuID), rerr)
			}
			return nil, rerr
		}
		items[i].Product = &ref
	}
	return items, nil
}

func (s *Service) newContext(in Input, items []pricing.Item) pricing.Context {
	meta := map[string]any{}
	if in.Region != "" {
		meta[pricing.MetaRegion] = in.Region
	}
	return pricing.NewContext(in.UserID, items, in.CouponCodes, meta)
}

// combinedTotal is the payable amount: final price plus shipping fee plus
// the charge carried by redeem items.
func (s *Service) combinedTotal(price pricing.Result, shipRes shipping.Result, extras []pricing.ExtraItem) (string, error) {
	parts := []string{price.FinalPrice, shipRes.Fee}
	for _, ex := range extras {
		if ex.Kind == pricing.ExtraRedeem {
			parts = append(parts, ex.TotalPrice)
		}
	}
	return money.Sum(parts, s.Scale)
}

func (s *Service) countCheckout(entry, result string) {
	if obs.CheckoutTotal != nil {
		obs.CheckoutTotal.WithLabelValues(entry, result).Inc()
	}
}

func (s *Service) countCommit(result string) {
	if obs.OrderCommitTotal != nil {
		obs.OrderCommitTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) countCouponLock(result string) {
	if obs.CouponLockTotal != nil {
		obs.CouponLockTotal.WithLabelValues(result).Inc()
	}
}

func wrapPricingError(err error) error {
	var calcErr *pricing.CalculatorError
	if errors.As(err, &calcErr) {
		return common.NewAppError(common.CodeCalculator,
			fmt.Sprintf("price calculator %s failed", calcErr.CalculatorType), 500, err)
	}
	return err
}

func wrapStockError(err error) error {
	var inactive *stock.InactiveProductError
	if errors.As(err, &inactive) {
		return common.DomainRuleError(inactive.Error(), err)
	}
	return common.ExternalServiceError("stock lookup failed", err)
}

func wrapShippingError(err error) error {
	if errors.Is(err, shipping.ErrTemplateNotFound) || errors.Is(err, shipping.ErrNotDeliverable) {
		return common.DomainRuleError(err.Error(), err)
	}
	return common.ExternalServiceError("shipping calculation failed", err)
}

// stockRequests merges the real items with coupon-granted extras for
// validation and reservation.
func stockRequests(items []pricing.Item, extras []pricing.ExtraItem) []stock.Request {
	out := make([]stock.Request, 0, len(items)+len(extras))
	for _, it := range items {
		out = append(out, stock.Request{SkuID: it.SkuID, Quantity: it.Quantity, Selected: it.Selected})
	}
	for _, ex := range extras {
		out = append(out, stock.Request{SkuID: ex.SkuID, Quantity: ex.Quantity, Selected: true})
	}
	return out
}

func shippingLines(items []pricing.Item, extras []pricing.ExtraItem) []shipping.Line {
	out := make([]shipping.Line, 0, len(items)+len(extras))
	for _, it := range items {
		if !it.Selected || it.Product == nil {
			continue
		}
		out = append(out, shipping.Line{
			SkuID:      it.SkuID,
			Quantity:   it.Quantity,
			UnitWeight: it.Product.Weight,
			UnitVolume: it.Product.Volume,
			TemplateID: it.Product.ShippingTemplateID,
		})
	}
	for _, ex := range extras {
		out = append(out, shipping.Line{SkuID: ex.SkuID, Quantity: ex.Quantity})
	}
	return out
}

// couponLineShares lists the goods lines a discount is split across: the
// line totals and the SKU keys the allocation rows are attributed to when
// no order-line id is known at allocation time.
func couponLineShares(price pricing.Result) ([]string, []string) {
	var values, keys []string
	for _, row := range price.Breakdown {
		if row.Source != "goods" {
			continue
		}
		values = append(values, row.OriginalPrice)
		keys = append(keys, "sku:"+row.SkuCode)
	}
	return values, keys
}
