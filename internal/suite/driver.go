// Package suite executes (kernel, variant, tuning) pairs, validates their
// checksums against a reference variant and summarises a run.
package suite

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/metrics"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// ErrNotTimed is reported when a tuning returns without entering its timed
// region.
var ErrNotTimed = errors.New("tuning returned without running its timed region")

// Driver runs one pair at a time against a registry.
type Driver struct {
	reg    *registry.Registry
	logger *zap.Logger
}

func NewDriver(reg *registry.Registry, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{reg: reg, logger: logger.Named("driver")}
}

// Execute runs tuning idx of vid for k once: set up, the timed
// repetitions, the checksum, then tear down, which is attempted whatever
// happened before it. The pair's results row records the pass either way.
func (d *Driver) Execute(k kernel.Kernel, vid variant.ID, idx int) (kernel.Outcome, error) {
	b := k.Base()
	out := kernel.Outcome{Kernel: b.Name(), Variant: vid, Tuning: idx}

	tuning, err := d.reg.Lookup(k, vid, idx)
	if err != nil {
		return out, &kernel.RunError{Kernel: b.Name(), Variant: vid, Tuning: fmt.Sprint(idx), Phase: kernel.PhaseLookup, Err: err}
	}
	out.TuningName = tuning.Name
	fail := func(phase kernel.Phase, err error) error {
		return &kernel.RunError{Kernel: b.Name(), Variant: vid, Tuning: tuning.Name, Phase: phase, Err: err}
	}

	row := b.Results().Entry(vid, idx, tuning.Name)
	if row.TuningName == "" {
		row.TuningName = tuning.Name
	}
	before := row.Checksum

	var errs []error
	if err := k.SetUp(vid, idx); err != nil {
		errs = append(errs, fail(kernel.PhaseSetUp, err))
	} else {
		r := kernel.NewRun(b.Name(), vid, idx, b.RunReps(), b.ActualProblemSize())
		err := tuning.Run(r)
		if err == nil && !r.Timed() {
			err = ErrNotTimed
		}
		if err != nil {
			errs = append(errs, fail(kernel.PhaseRun, err))
		} else {
			out.Elapsed = r.Elapsed()
			if err := k.UpdateChecksum(vid, idx); err != nil {
				errs = append(errs, fail(kernel.PhaseChecksum, err))
			}
		}
	}
	if err := k.TearDown(vid, idx); err != nil {
		errs = append(errs, fail(kernel.PhaseTearDown, err))
	}
	err = errors.Join(errs...)

	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusFailed
		row.Status = kernel.StatusFailed
		row.Err = err.Error()
		d.logger.Warn("pair failed",
			zap.String("kernel", b.Name()),
			zap.Stringer("variant", vid),
			zap.String("tuning", tuning.Name),
			zap.Error(err))
	} else {
		out.Checksum = row.Checksum - before
		row.Times = append(row.Times, out.Elapsed)
		if row.Status != kernel.StatusFailed {
			row.Status = kernel.StatusOK
		}
		metrics.KernelRunDuration.WithLabelValues(b.Name(), vid.String(), tuning.Name).
			Observe(float64(out.Elapsed.Microseconds()) / 1000)
		d.logger.Debug("pair finished",
			zap.String("kernel", b.Name()),
			zap.Stringer("variant", vid),
			zap.String("tuning", tuning.Name),
			zap.Duration("elapsed", out.Elapsed),
			zap.Float64("checksum", out.Checksum))
	}
	metrics.KernelRuns.WithLabelValues(b.Name(), vid.String(), status).Inc()
	return out, err
}
