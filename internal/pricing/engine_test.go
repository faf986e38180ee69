package pricing

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakeCalculator struct {
	priority int
	kind     string
	supports bool
	result   Result
	err      error
	calls    *[]string
}

func (c fakeCalculator) Priority() int { return c.priority }

func (c fakeCalculator) Type() string { return c.kind }

func (c fakeCalculator) Supports(context.Context, Context) bool { return c.supports }

func (c fakeCalculator) Calculate(context.Context, Context) (Result, error) {
	if c.calls != nil {
		*c.calls = append(*c.calls, c.kind)
	}
	if c.err != nil {
		return Result{}, c.err
	}
	return c.result, nil
}

func testItems() []Item {
	return []Item{{
		SkuID:    uuid.New(),
		Quantity: 1,
		Selected: true,
		Product:  &ProductRef{SkuCode: "SKU-1", UnitPrice: "10.00"},
	}}
}

func partial(original, final, discount string, details map[string]any) Result {
	return Result{OriginalPrice: original, FinalPrice: final, Discount: discount, Details: details}
}

func TestEngineRunsByDescendingPriority(t *testing.T) {
	var calls []string
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 10, kind: "low", supports: true, result: ZeroResult(2), calls: &calls},
		fakeCalculator{priority: 100, kind: "high", supports: true, result: ZeroResult(2), calls: &calls},
		fakeCalculator{priority: 50, kind: "mid", supports: true, result: ZeroResult(2), calls: &calls},
	)
	_, err := engine.Calculate(context.Background(), NewContext(uuid.New(), testItems(), nil, nil))
	require.NoError(t, err)
	require.Equal(t, []string{"high", "mid", "low"}, calls)
}

func TestEngineSkipsUnsupportedCalculators(t *testing.T) {
	var calls []string
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 100, kind: "on", supports: true, result: ZeroResult(2), calls: &calls},
		fakeCalculator{priority: 50, kind: "off", supports: false, result: ZeroResult(2), calls: &calls},
	)
	_, err := engine.Calculate(context.Background(), NewContext(uuid.New(), testItems(), nil, nil))
	require.NoError(t, err)
	require.Equal(t, []string{"on"}, calls)
}

func TestEngineMergesMonetaryTotals(t *testing.T) {
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 100, kind: "goods", supports: true,
			result: partial("100.00", "100.00", "0.00", map[string]any{})},
		fakeCalculator{priority: 50, kind: "coupon", supports: true,
			result: partial("0.00", "-15.00", "15.00", map[string]any{})},
	)
	result, err := engine.Calculate(context.Background(), NewContext(uuid.New(), testItems(), nil, nil))
	require.NoError(t, err)
	require.Equal(t, "100.00", result.OriginalPrice)
	require.Equal(t, "85.00", result.FinalPrice)
	require.Equal(t, "15.00", result.Discount)
}

func TestEngineDetailKeysLaterWins(t *testing.T) {
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 100, kind: "first", supports: true,
			result: partial("0.00", "0.00", "0.00", map[string]any{"shared": "first", "only-first": 1})},
		fakeCalculator{priority: 50, kind: "second", supports: true,
			result: partial("0.00", "0.00", "0.00", map[string]any{"shared": "second"})},
	)
	result, err := engine.Calculate(context.Background(), NewContext(uuid.New(), testItems(), nil, nil))
	require.NoError(t, err)
	require.Equal(t, "second", result.Details["shared"])
	require.Equal(t, 1, result.Details["only-first"])
}

func TestEngineAbortsOnCalculatorFailure(t *testing.T) {
	boom := errors.New("boom")
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 100, kind: "goods", supports: true,
			result: partial("100.00", "100.00", "0.00", map[string]any{})},
		fakeCalculator{priority: 50, kind: "broken", supports: true, err: boom},
	)
	_, err := engine.Calculate(context.Background(), NewContext(uuid.New(), testItems(), nil, nil))
	require.Error(t, err)

	var calcErr *CalculatorError
	require.ErrorAs(t, err, &calcErr)
	require.Equal(t, "broken", calcErr.CalculatorType)
	require.ErrorIs(t, err, boom)
}

func TestEngineEmptyItemsYieldsZeroResult(t *testing.T) {
	var calls []string
	engine := NewEngine(2, zerolog.Nop(),
		fakeCalculator{priority: 100, kind: "goods", supports: true, calls: &calls})
	result, err := engine.Calculate(context.Background(), NewContext(uuid.New(), nil, nil, nil))
	require.NoError(t, err)
	require.Empty(t, calls)
	require.Equal(t, "0.00", result.OriginalPrice)
	require.Equal(t, "0.00", result.FinalPrice)
	require.Equal(t, "0.00", result.Discount)
}

func TestGoodsCalculator(t *testing.T) {
	skuA := uuid.New()
	items := []Item{
		{SkuID: skuA, Quantity: 3, Selected: true, Product: &ProductRef{SkuCode: "A", UnitPrice: "19.99"}},
		{SkuID: uuid.New(), Quantity: 2, Selected: true, Product: &ProductRef{SkuCode: "B", UnitPrice: "24.015"}},
		{SkuID: uuid.New(), Quantity: 5, Selected: false, Product: &ProductRef{SkuCode: "C", UnitPrice: "100.00"}},
	}
	calc := GoodsCalculator{Scale: 2}
	result, err := calc.Calculate(context.Background(), NewContext(uuid.New(), items, nil, nil))
	require.NoError(t, err)
	require.Equal(t, "108.00", result.OriginalPrice)
	require.Equal(t, "108.00", result.FinalPrice)
	require.Equal(t, "0.00", result.Discount)
	require.Len(t, result.Breakdown, 2)
	require.Equal(t, "59.97", result.Breakdown[0].OriginalPrice)
	require.Equal(t, skuA, result.Breakdown[0].SkuID)
}

func TestGoodsCalculatorUnresolvedProduct(t *testing.T) {
	items := []Item{{SkuID: uuid.New(), Quantity: 1, Selected: true}}
	_, err := GoodsCalculator{Scale: 2}.Calculate(context.Background(), NewContext(uuid.New(), items, nil, nil))
	require.ErrorIs(t, err, ErrUnresolvedProduct)
}
