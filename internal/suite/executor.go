package suite

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/registry"
)

// Executor runs every selected pair for a number of passes, strictly one
// after another, and validates the results.
type Executor struct {
	reg       *registry.Registry
	driver    *Driver
	npasses   int
	tolerance float64
	logger    *zap.Logger
}

func NewExecutor(reg *registry.Registry, rc config.RunConfig, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	tol := rc.ChecksumTolerance
	if tol <= 0 {
		tol = config.DefaultChecksumTolerance
	}
	return &Executor{
		reg:       reg,
		driver:    NewDriver(reg, logger),
		npasses:   max(1, rc.NPasses),
		tolerance: tol,
		logger:    logger.Named("executor"),
	}
}

// Driver returns the driver the executor runs pairs with.
func (e *Executor) Driver() *Driver { return e.driver }

// Run clears every selected kernel's results and executes all pairs
// npasses times. Failed pairs are recorded and the run continues. The
// context is checked between pairs; a cancelled run returns the summary so
// far along with the context's error.
func (e *Executor) Run(ctx context.Context) (*Summary, error) {
	for _, k := range e.reg.Kernels() {
		k.Base().Results().Reset()
	}
	pairs := e.reg.Pairs()
	sum := &Summary{Started: time.Now(), NPasses: e.npasses}
	e.logger.Info("starting run",
		zap.Int("kernels", len(e.reg.Kernels())),
		zap.Int("pairs", len(pairs)),
		zap.Int("npasses", e.npasses))

	var runErr error
passes:
	for pass := 0; pass < e.npasses; pass++ {
		for _, p := range pairs {
			if err := ctx.Err(); err != nil {
				runErr = err
				break passes
			}
			if _, err := e.driver.Execute(p.Kernel, p.Variant, p.Tuning); err != nil {
				sum.Failures++
			}
		}
		e.logger.Debug("pass finished", zap.Int("pass", pass))
	}

	for _, k := range e.reg.Kernels() {
		v := Validate(k, e.tolerance)
		if !v.Passed {
			e.logger.Warn("checksum validation failed", zap.String("kernel", k.Base().Name()))
		}
		sum.Kernels = append(sum.Kernels, Summarize(k, v))
	}
	sum.Duration = time.Since(sum.Started)
	e.logger.Info("run finished",
		zap.Duration("duration", sum.Duration),
		zap.Int("failures", sum.Failures))
	return sum, runErr
}
