// Package saga runs ordered (do, compensate) step lists with guaranteed
// compensation of completed steps on any failure.
package saga

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Step pairs a forward action with its compensating undo. Compensate may be
// nil for steps that need no undo (e.g. pure validations). Compensate must
// be safe to call even when the work it undoes partially happened.
type Step struct {
	Name       string
	Do         func(ctx context.Context) error
	Compensate func(ctx context.Context) error
}

// Runner executes steps in order. When a step fails, compensations for every
// previously completed step run in reverse order before the original error
// is returned. Compensations also run when a step panics, then the panic is
// re-raised. Compensation failures are logged, never returned: the original
// failure stays the caller-visible outcome.
type Runner struct {
	Logger   zerolog.Logger
	OnRewind func(step string)
}

// Run executes the steps.
func (r Runner) Run(ctx context.Context, steps []Step) (err error) {
	completed := make([]Step, 0, len(steps))

	defer func() {
		rec := recover()
		if err == nil && rec == nil {
			return
		}
		r.rewind(ctx, completed)
		if rec != nil {
			panic(rec)
		}
	}()

	for _, step := range steps {
		if step.Do == nil {
			continue
		}
		if doErr := step.Do(ctx); doErr != nil {
			err = fmt.Errorf("saga step %s: %w", step.Name, doErr)
			return err
		}
		completed = append(completed, step)
	}
	return nil
}

func (r Runner) rewind(ctx context.Context, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		if r.OnRewind != nil {
			r.OnRewind(step.Name)
		}
		if compErr := step.Compensate(ctx); compErr != nil {
			r.Logger.Error().
				Err(compErr).
				Str("step", step.Name).
				Msg("saga compensation failed")
		}
	}
}
