// Package kernel defines what a benchmark kernel is to the harness: its
// workload description, its results table, and the tunings it can run
// under each variant.
package kernel

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/perfsuite/internal/variant"
)

// ErrUnknownTuning is returned when a (variant, tuning) pair is not one the
// kernel enumerates.
var ErrUnknownTuning = errors.New("unknown tuning")

// ErrVariantNotDefined is returned when a kernel is asked to run a variant
// it does not define.
var ErrVariantNotDefined = errors.New("variant not defined")

// Kernel is one benchmark. The harness calls SetUp, runs one tuning, then
// UpdateChecksum and TearDown, for one (variant, tuning) pair at a time.
type Kernel interface {
	Base() *KernelBase
	// Tunings lists the tunings of vid in a fixed order. It is only called
	// for variants the kernel defines and the environment supports.
	Tunings(vid variant.ID) []Tuning
	SetUp(vid variant.ID, tune int) error
	UpdateChecksum(vid variant.ID, tune int) error
	TearDown(vid variant.ID, tune int) error
}

// Tuning is one independently timed code path of a variant.
type Tuning struct {
	Name string
	// BlockSize is the threads per block of GPU tunings, zero otherwise.
	BlockSize int
	Run       func(r *Run) error
}

// Phase names the step of a pair's execution that failed.
type Phase string

const (
	PhaseLookup   Phase = "lookup"
	PhaseSetUp    Phase = "setup"
	PhaseRun      Phase = "run"
	PhaseChecksum Phase = "checksum"
	PhaseTearDown Phase = "teardown"
)

// RunError records which pair failed and where.
type RunError struct {
	Kernel  string
	Variant variant.ID
	Tuning  string
	Phase   Phase
	Err     error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s %s %s: %s: %v", e.Kernel, e.Variant, e.Tuning, e.Phase, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// Default wraps a single code path as the only tuning of a variant.
func Default(run func(r *Run) error) []Tuning {
	return []Tuning{{Name: "default", Run: run}}
}
