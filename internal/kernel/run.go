package kernel

import (
	"errors"
	"time"

	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Run is the handle a tuning receives for one timed execution.
type Run struct {
	Kernel  string
	Variant variant.ID
	Tuning  int
	reps    int
	size    int

	started bool
	elapsed time.Duration
}

// NewRun prepares a run of reps repetitions over a problem of size.
func NewRun(kernel string, vid variant.ID, tune, reps, size int) *Run {
	return &Run{Kernel: kernel, Variant: vid, Tuning: tune, reps: reps, size: size}
}

// Reps returns the number of repetitions.
func (r *Run) Reps() int { return r.reps }

// ProblemSize returns the kernel's actual problem size.
func (r *Run) ProblemSize() int { return r.size }

// Elapsed returns the duration of the timed region.
func (r *Run) Elapsed() time.Duration { return r.elapsed }

// Timed reports whether Repeat has been called.
func (r *Run) Timed() bool { return r.started }

// Repeat calls body for each repetition inside the timed region. The clock
// starts right before the first repetition and stops right after the last,
// or at the first error, which ends the loop.
func (r *Run) Repeat(body func(irep int) error) error {
	if r.started {
		return errors.New("timed region already run")
	}
	r.started = true
	start := time.Now()
	var err error
	for irep := 0; irep < r.reps; irep++ {
		if err = body(irep); err != nil {
			break
		}
	}
	r.elapsed = time.Since(start)
	return err
}
