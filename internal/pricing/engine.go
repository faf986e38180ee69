package pricing

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Calculator contributes one slice of the total price. Implementations must
// be side-effect free: the engine may call Supports and Calculate on every
// quote as well as on commit.
type Calculator interface {
	// Priority orders calculators; higher runs first.
	Priority() int
	// Type identifies the calculator in error reports.
	Type() string
	Supports(ctx context.Context, calc Context) bool
	Calculate(ctx context.Context, calc Context) (Result, error)
}

// CalculatorError wraps a calculator failure with its type identifier. Any
// single failure aborts the whole computation; no partial price is returned.
type CalculatorError struct {
	CalculatorType string
	Err            error
}

func (e *CalculatorError) Error() string {
	return fmt.Sprintf("price calculator %s: %v", e.CalculatorType, e.Err)
}

func (e *CalculatorError) Unwrap() error { return e.Err }

// Engine runs an ordered collection of calculators and merges their results.
type Engine struct {
	calculators []Calculator
	scale       int32
	logger      zerolog.Logger
}

// NewEngine builds an engine over the given calculators, ordered by
// descending priority. Ordering is stable for equal priorities, so the
// configured sequence decides detail-overwrite semantics on ties.
func NewEngine(scale int32, logger zerolog.Logger, calculators ...Calculator) *Engine {
	ordered := append([]Calculator(nil), calculators...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority() > ordered[j].Priority()
	})
	return &Engine{calculators: ordered, scale: scale, logger: logger}
}

// Scale returns the monetary scale the engine computes at.
func (e *Engine) Scale() int32 { return e.scale }

// Calculate runs every supporting calculator in order and merges the
// results. Later calculators' detail keys overwrite earlier ones.
func (e *Engine) Calculate(ctx context.Context, calc Context) (Result, error) {
	if len(calc.Items) == 0 {
		return ZeroResult(e.scale), nil
	}
	total := ZeroResult(e.scale)
	for _, c := range e.calculators {
		if !c.Supports(ctx, calc) {
			continue
		}
		partial, err := c.Calculate(ctx, calc)
		if err != nil {
			return Result{}, &CalculatorError{CalculatorType: c.Type(), Err: err}
		}
		total, err = total.Merge(partial, e.scale)
		if err != nil {
			return Result{}, &CalculatorError{CalculatorType: c.Type(), Err: err}
		}
		e.logger.Debug().
			Str("calculator", c.Type()).
			Str("original", partial.OriginalPrice).
			Str("discount", partial.Discount).
			Msg("price calculator applied")
	}
	return total, nil
}
