package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/arkan-dev/backend-mall/internal/address"
	"github.com/arkan-dev/backend-mall/internal/catalog"
	"github.com/arkan-dev/backend-mall/internal/common"
	"github.com/arkan-dev/backend-mall/internal/coupon"
	"github.com/arkan-dev/backend-mall/internal/integral"
	"github.com/arkan-dev/backend-mall/internal/order"
	"github.com/arkan-dev/backend-mall/internal/pricing"
	"github.com/arkan-dev/backend-mall/internal/shipping"
	"github.com/arkan-dev/backend-mall/internal/stock"
	"github.com/arkan-dev/backend-mall/internal/tasks"
)

type stubCatalog struct {
	refs map[uuid.UUID]pricing.ProductRef
}

func (s stubCatalog) ResolveSku(_ context.Context, id uuid.UUID) (pricing.ProductRef, error) {
	ref, ok := s.refs[id]
	if !ok {
		return pricing.ProductRef{}, catalog.ErrSkuNotFound
	}
	return ref, nil
}

type stubStock struct {
	result stock.Result
	err    error
	calls  int
}

func (s *stubStock) Validate(context.Context, []stock.Request) (stock.Result, error) {
	s.calls++
	if s.err != nil {
		return stock.Result{}, s.err
	}
	return s.result, nil
}

type stubOperator struct {
	locked []uuid.UUID
}

func (s *stubOperator) LockStock(_ context.Context, skuID uuid.UUID, _ int) error {
	s.locked = append(s.locked, skuID)
	return nil
}

type stubShipping struct {
	result shipping.Result
	err    error
}

func (s stubShipping) Calculate(context.Context, shipping.Input) (shipping.Result, error) {
	return s.result, s.err
}

type stubLedger struct {
	unavailable map[string]bool
	locked      map[string]uuid.UUID
	redeemed    map[string]uuid.UUID
	unlocked    []string
	lockErr     error
	redeemErr   error
}

func newStubLedger() *stubLedger {
	return &stubLedger{
		unavailable: map[string]bool{},
		locked:      map[string]uuid.UUID{},
		redeemed:    map[string]uuid.UUID{},
	}
}

func (l *stubLedger) Lock(_ context.Context, userID uuid.UUID, codes []string) ([]string, error) {
	var out []string
	for _, code := range codes {
		if l.unavailable[code] {
			continue
		}
		l.locked[code] = userID
		out = append(out, code)
		if l.lockErr != nil {
			// Fail after the first reservation to mimic a mid-loop outage.
			return out, l.lockErr
		}
	}
	return out, l.lockErr
}

func (l *stubLedger) Redeem(_ context.Context, userID uuid.UUID, codes []string, orderID uuid.UUID) error {
	if l.redeemErr != nil {
		return l.redeemErr
	}
	for _, code := range codes {
		if l.locked[code] != userID {
			return coupon.ErrLockNotHeld
		}
		delete(l.locked, code)
		l.redeemed[code] = orderID
	}
	return nil
}

func (l *stubLedger) Unlock(_ context.Context, codes []string, _ uuid.UUID) error {
	for _, code := range codes {
		delete(l.locked, code)
		l.unlocked = append(l.unlocked, code)
	}
	return nil
}

type stubAllocations struct {
	recorded []coupon.AllocationDetail
}

func (s *stubAllocations) Record(_ context.Context, d coupon.AllocationDetail) error {
	s.recorded = append(s.recorded, d)
	return nil
}

type stubOrders struct {
	created *order.Draft
	err     error
}

func (s *stubOrders) Create(_ context.Context, d order.Draft) (order.Contract, error) {
	if s.err != nil {
		return order.Contract{}, s.err
	}
	s.created = &d
	return order.Contract{
		ID:           uuid.New(),
		SerialNumber: d.SerialNumber,
		Status:       order.StatusPendingPayment,
		TotalAmount:  d.TotalAmount,
		AutoCancelAt: d.AutoCancelAt,
		CreatedAt:    time.Now(),
	}, nil
}

type stubIntegral struct {
	available int64
	decreases []integral.ChangeRequest
	increases []integral.ChangeRequest
}

func (s *stubIntegral) GetAccount(context.Context, uuid.UUID) (integral.Account, error) {
	return integral.Account{Available: s.available}, nil
}

func (s *stubIntegral) Decrease(_ context.Context, req integral.ChangeRequest) error {
	s.decreases = append(s.decreases, req)
	return nil
}

func (s *stubIntegral) Increase(_ context.Context, req integral.ChangeRequest) error {
	s.increases = append(s.increases, req)
	return nil
}

type stubCart struct {
	removed []uuid.UUID
}

func (s *stubCart) RemoveItem(_ context.Context, _, lineID uuid.UUID) error {
	s.removed = append(s.removed, lineID)
	return nil
}

type fixture struct {
	svc       *Service
	skuID     uuid.UUID
	lineID    uuid.UUID
	ledger    *stubLedger
	orders    *stubOrders
	integral  *stubIntegral
	stock     *stubStock
	operator  *stubOperator
	cart      *stubCart
	allocated *stubAllocations
}

func newFixture(t *testing.T, coupons ...coupon.Coupon) *fixture {
	t.Helper()
	skuID := uuid.New()
	lineID := uuid.New()

	couponEngine := &coupon.Engine{
		Providers:          []coupon.Provider{staticCoupons(coupons)},
		Evaluator:          coupon.RuleEvaluator{Scale: 2},
		MaxEvaluations:     50,
		MaxRecommendations: 10,
		Scale:              2,
		Logger:             zerolog.Nop(),
	}
	engine := pricing.NewEngine(2, zerolog.Nop(),
		pricing.GoodsCalculator{Scale: 2},
		coupon.Calculator{Engine: couponEngine, Scale: 2},
	)

	f := &fixture{
		skuID:     skuID,
		lineID:    lineID,
		ledger:    newStubLedger(),
		orders:    &stubOrders{},
		integral:  &stubIntegral{available: 1000},
		stock:     &stubStock{result: stock.Result{Valid: true}},
		operator:  &stubOperator{},
		cart:      &stubCart{},
		allocated: &stubAllocations{},
	}
	f.svc = &Service{
		Pricing: engine,
		Catalog: stubCatalog{refs: map[uuid.UUID]pricing.ProductRef{
			skuID: {SkuID: skuID, SkuCode: "SKU-1", Name: "widget", UnitPrice: "54.00", Weight: "0.5"},
		}},
		Stock:         f.stock,
		StockOperator: f.operator,
		Shipping:      stubShipping{result: shipping.Result{Fee: "8.00", Deliverable: true}},
		Addresses: stubAddressResolver{addr: address.Address{
			ID: uuid.New(), Province: "P", City: "C", District: "D",
		}},
		Ledger:        f.ledger,
		Allocations:   f.allocated,
		Orders:        f.orders,
		Integral:      f.integral,
		Cart:          f.cart,
		Tasks:         tasks.Enqueuer{Logger: zerolog.Nop()},
		Scale:         2,
		AutoCancelTTL: 30 * time.Minute,
		Logger:        zerolog.Nop(),
	}
	return f
}

type stubAddressResolver struct {
	addr address.Address
}

func (s stubAddressResolver) Resolve(context.Context, uuid.UUID) (address.Address, error) {
	return s.addr, nil
}

type staticCoupons []coupon.Coupon

func (staticCoupons) Name() string { return "static" }

func (s staticCoupons) Candidates(context.Context, pricing.Context) ([]coupon.Coupon, error) {
	return s, nil
}

func (f *fixture) input(codes ...string) Input {
	raw, _ := json.Marshal([]map[string]any{{
		"skuId":      f.skuID.String(),
		"quantity":   2,
		"cartLineId": f.lineID.String(),
	}})
	return Input{
		UserID:      uuid.New(),
		RawItems:    raw,
		CouponCodes: codes,
		AddressID:   uuid.New(),
	}
}

func TestCalculateCheckout(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.CalculateCheckout(context.Background(), f.input())
	require.NoError(t, err)
	require.Equal(t, "108.00", result.Price.OriginalPrice)
	require.Equal(t, "108.00", result.Price.FinalPrice)
	require.Equal(t, "116.00", result.Total)
	require.NotNil(t, result.Stock)
	require.True(t, result.Stock.Valid)
	require.NotNil(t, result.Shipping)
	require.Equal(t, 1, f.stock.calls)
	require.Nil(t, result.Order)
}

func TestCalculateCheckoutWithCoupon(t *testing.T) {
	f := newFixture(t, coupon.Coupon{Code: "SAVE15", Kind: coupon.KindAmount, Value: "15.00"})

	result, err := f.svc.CalculateCheckout(context.Background(), f.input("SAVE15"))
	require.NoError(t, err)
	require.Equal(t, "108.00", result.Price.OriginalPrice)
	require.Equal(t, "93.00", result.Price.FinalPrice)
	require.Equal(t, "15.00", result.Price.Discount)
	require.Equal(t, "101.00", result.Total)
	require.Equal(t, []string{"SAVE15"}, result.Price.AppliedCoupons())
	// Quoting never touches the reservation ledger.
	require.Empty(t, f.ledger.locked)
}

func TestCalculateCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.RawItems = []byte(`[]`)

	_, err := f.svc.CalculateCheckout(context.Background(), in)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrEmptyCart)
	require.Equal(t, common.CodeValidation, common.AsAppError(err).Code)
}

func TestCalculateCheckoutUnknownSku(t *testing.T) {
	f := newFixture(t)
	raw, _ := json.Marshal([]map[string]any{{"skuId": uuid.New().String(), "quantity": 1}})
	in := f.input()
	in.RawItems = raw

	_, err := f.svc.CalculateCheckout(context.Background(), in)
	require.Error(t, err)
	require.ErrorIs(t, err, catalog.ErrSkuNotFound)
}

func TestQuickCalculateSkipsStock(t *testing.T) {
	f := newFixture(t)

	result, err := f.svc.QuickCalculate(context.Background(), f.input())
	require.NoError(t, err)
	require.Equal(t, "116.00", result.Total)
	require.Nil(t, result.Stock)
	require.Zero(t, f.stock.calls)
}

func TestQuickCalculateEmptyCart(t *testing.T) {
	f := newFixture(t)
	in := f.input()
	in.RawItems = nil

	result, err := f.svc.QuickCalculate(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, "0.00", result.Total)
	require.Equal(t, "0.00", result.Price.FinalPrice)
	require.Nil(t, result.Stock)
	require.Nil(t, result.Shipping)
}

func TestProcessCommitsOrder(t *testing.T) {
	f := newFixture(t, coupon.Coupon{Code: "SAVE15", Kind: coupon.KindAmount, Value: "15.00"})

	result, err := f.svc.Process(context.Background(), f.input("SAVE15"))
	require.NoError(t, err)
	require.NotNil(t, result.Order)
	require.Equal(t, "101.00", result.Total)
	require.Equal(t, order.StatusPendingPayment, result.Order.Status)
	require.NotEmpty(t, result.Order.SerialNumber)

	// Coupon lifecycle: locked then redeemed against the new order.
	require.Empty(t, f.ledger.locked)
	require.Equal(t, result.Order.ID, f.ledger.redeemed["SAVE15"])
	require.Empty(t, f.ledger.unlocked)

	// Discount allocations were recorded for the audit trail.
	require.NotEmpty(t, f.allocated.recorded)
	require.Equal(t, "SAVE15", f.allocated.recorded[0].CouponCode)

	// Post-commit side effects ran.
	require.Equal(t, []uuid.UUID{f.skuID}, f.operator.locked)
	require.Equal(t, []uuid.UUID{f.lineID}, f.cart.removed)

	// The persisted draft carries lines, breakdown and contact.
	require.NotNil(t, f.orders.created)
	require.Len(t, f.orders.created.Lines, 1)
	require.Equal(t, "108.00", f.orders.created.Lines[0].TotalPrice)
	require.Equal(t, "101.00", f.orders.created.TotalAmount)
}

func TestProcessShortLockFailsWithoutOrder(t *testing.T) {
	f := newFixture(t,
		coupon.Coupon{Code: "GOOD", Kind: coupon.KindAmount, Value: "5.00"},
		coupon.Coupon{Code: "TAKEN", Kind: coupon.KindAmount, Value: "5.00"},
	)
	f.ledger.unavailable["TAKEN"] = true

	_, err := f.svc.Process(context.Background(), f.input("GOOD", "TAKEN"))
	require.Error(t, err)
	require.ErrorIs(t, err, coupon.ErrCouponUnavailable)
	require.Equal(t, common.CodeDomainRule, common.AsAppError(err).Code)

	// The partially locked code was released and nothing was persisted.
	require.Empty(t, f.ledger.locked)
	require.Contains(t, f.ledger.unlocked, "GOOD")
	require.Nil(t, f.orders.created)
	require.Empty(t, f.operator.locked)
}

func TestProcessStockFailureUnlocksCoupons(t *testing.T) {
	f := newFixture(t, coupon.Coupon{Code: "SAVE5", Kind: coupon.KindAmount, Value: "5.00"})
	f.stock.result = stock.Result{Valid: false, Errors: map[uuid.UUID]string{f.skuID: "out of stock"}}

	_, err := f.svc.Process(context.Background(), f.input("SAVE5"))
	require.Error(t, err)
	require.Equal(t, common.CodeDomainRule, common.AsAppError(err).Code)

	require.Empty(t, f.ledger.locked)
	require.Contains(t, f.ledger.unlocked, "SAVE5")
	require.Empty(t, f.ledger.redeemed)
	require.Nil(t, f.orders.created)
}

func TestProcessPersistFailureCompensates(t *testing.T) {
	f := newFixture(t, coupon.Coupon{Code: "SAVE5", Kind: coupon.KindAmount, Value: "5.00"})
	f.orders.err = errors.New("db down")

	in := f.input("SAVE5")
	in.IntegralPoints = 50

	_, err := f.svc.Process(context.Background(), in)
	require.Error(t, err)

	// Integral deduction was refunded and the coupon released.
	require.Len(t, f.integral.decreases, 1)
	require.Len(t, f.integral.increases, 1)
	require.Equal(t, int64(50), f.integral.increases[0].Amount)
	require.Contains(t, f.ledger.unlocked, "SAVE5")
	require.Empty(t, f.ledger.redeemed)
	require.Empty(t, f.operator.locked)
	require.Empty(t, f.cart.removed)
}

func TestProcessInsufficientIntegral(t *testing.T) {
	f := newFixture(t)
	f.integral.available = 10

	in := f.input()
	in.IntegralPoints = 50

	_, err := f.svc.Process(context.Background(), in)
	require.Error(t, err)
	require.ErrorIs(t, err, integral.ErrInsufficientPoints)
	require.Empty(t, f.integral.decreases)
	require.Nil(t, f.orders.created)
}

func TestProcessIntegralSourceIDsDerivedFromSerial(t *testing.T) {
	f := newFixture(t)

	in := f.input()
	in.IntegralPoints = 25

	result, err := f.svc.Process(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, f.integral.decreases, 1)
	require.Equal(t, integral.DeductSourceID(result.Order.SerialNumber), f.integral.decreases[0].SourceID)
	require.NotNil(t, f.orders.created.TotalIntegral)
	require.Equal(t, int64(25), *f.orders.created.TotalIntegral)
}

func TestProcessUndeliverableDestination(t *testing.T) {
	f := newFixture(t)
	f.svc.Shipping = stubShipping{result: shipping.Result{
		Fee:         "0.00",
		Deliverable: false,
		Error:       "address not found",
	}}

	_, err := f.svc.Process(context.Background(), f.input())
	require.Error(t, err)
	require.ErrorIs(t, err, shipping.ErrNotDeliverable)
	require.Nil(t, f.orders.created)
}

func TestProcessLedgerErrorIsExternalServiceFailure(t *testing.T) {
	f := newFixture(t, coupon.Coupon{Code: "SAVE5", Kind: coupon.KindAmount, Value: "5.00"})
	f.ledger.lockErr = errors.New("redis down")

	_, err := f.svc.Process(context.Background(), f.input("SAVE5"))
	require.Error(t, err)
	require.Equal(t, common.CodeExternalService, common.AsAppError(err).Code)
	require.Nil(t, f.orders.created)
}

func TestProcessLedgerErrorReleasesPartialReservation(t *testing.T) {
	f := newFixture(t,
		coupon.Coupon{Code: "FIRST", Kind: coupon.KindAmount, Value: "5.00"},
		coupon.Coupon{Code: "SECOND", Kind: coupon.KindAmount, Value: "5.00"},
	)
	f.ledger.lockErr = errors.New("redis down")

	_, err := f.svc.Process(context.Background(), f.input("FIRST", "SECOND"))
	require.Error(t, err)
	require.Equal(t, common.CodeExternalService, common.AsAppError(err).Code)

	// Codes reserved before the failure must not stay locked until expiry.
	require.Empty(t, f.ledger.locked)
	require.Contains(t, f.ledger.unlocked, "FIRST")
	require.Nil(t, f.orders.created)
}

func TestProcessGiftCouponAddsExtraLine(t *testing.T) {
	giftSku := uuid.New()
	f := newFixture(t, coupon.Coupon{
		Code: "GIFT", Kind: coupon.KindGift, GiftSkuID: &giftSku, GiftQuantity: 1,
	})

	result, err := f.svc.Process(context.Background(), f.input("GIFT"))
	require.NoError(t, err)
	require.Len(t, result.Extras, 1)
	require.Equal(t, giftSku, result.Extras[0].SkuID)

	require.Len(t, f.orders.created.Lines, 2)
	require.True(t, f.orders.created.Lines[1].Extra)
	require.Equal(t, "GIFT", f.orders.created.Lines[1].CouponCode)
	// The granted item is reserved alongside the purchased one.
	require.ElementsMatch(t, []uuid.UUID{f.skuID, giftSku}, f.operator.locked)
}
