// File: internal/triage/runner.go
package triage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xkilldash9x/marketpilot/api/schemas"
	"go.uber.org/zap"
)

// Passer runs a single pass. *Triage is the production implementation.
type Passer interface {
	RunPass(ctx context.Context) (Result, error)
}

// Runner repeats passes on a fixed interval. There is no backoff: a failed
// pass is logged and the next one starts after the same interval.
type Runner struct {
	passer    Passer
	logger    *zap.Logger
	interval  time.Duration
	maxPasses int
	// onPass, if set, observes every finished pass.
	onPass func(Result, error)
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithMaxPasses stops the loop after n passes. Zero means no limit.
func WithMaxPasses(n int) RunnerOption {
	return func(r *Runner) { r.maxPasses = n }
}

// WithPassObserver registers a callback invoked after every pass.
func WithPassObserver(fn func(Result, error)) RunnerOption {
	return func(r *Runner) { r.onPass = fn }
}

// NewRunner creates a Runner that calls passer every interval.
func NewRunner(passer Passer, interval time.Duration, logger *zap.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		passer:   passer,
		logger:   logger.Named("runner"),
		interval: interval,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run blocks until ctx is cancelled, the pass limit is reached, or a pass
// reports schemas.ErrSessionLost. Cancellation returns nil.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Starting triage loop.", zap.Duration("interval", r.interval), zap.Int("max_passes", r.maxPasses))
	timer := time.NewTimer(0)
	defer timer.Stop()

	for passes := 0; ; {
		select {
		case <-ctx.Done():
			r.logger.Info("Triage loop stopped.", zap.Int("passes", passes))
			return nil
		case <-timer.C:
		}

		res, err := r.safePass(ctx)
		passes++
		if r.onPass != nil {
			r.onPass(res, err)
		}

		switch {
		case err == nil:
			r.logger.Info("Pass finished.", zap.String("pass_id", res.PassID), zap.String("outcome", string(res.Outcome)))
		case errors.Is(err, schemas.ErrSessionLost):
			r.logger.Error("Browser session lost, stopping.", zap.String("pass_id", res.PassID), zap.Error(err))
			return err
		case ctx.Err() != nil:
			r.logger.Info("Triage loop stopped.", zap.Int("passes", passes))
			return nil
		default:
			r.logger.Error("Pass failed; retrying after the interval.", zap.String("pass_id", res.PassID), zap.Error(err))
		}

		if r.maxPasses > 0 && passes >= r.maxPasses {
			r.logger.Info("Pass limit reached.", zap.Int("passes", passes))
			return nil
		}
		timer.Reset(r.interval)
	}
}

// safePass converts a panic inside a pass into an error.
func (r *Runner) safePass(ctx context.Context) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("Panic recovered during triage pass.", zap.Any("panic_value", p), zap.Stack("stack"))
			err = fmt.Errorf("triage pass panicked: %v", p)
		}
	}()
	return r.passer.RunPass(ctx)
}
