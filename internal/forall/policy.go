// Package forall is the portable loop abstraction kernels use for their
// abstraction-layer variants: a loop body written once runs under any
// execution policy.
package forall

import (
	"fmt"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Range is the half-open index range [Begin, End).
type Range struct {
	Begin, End int
}

// N returns the range [0, n).
func N(n int) Range { return Range{End: n} }

// Len returns the number of indices in r.
func (r Range) Len() int {
	if r.End <= r.Begin {
		return 0
	}
	return r.End - r.Begin
}

// Policy selects how a loop executes.
type Policy interface {
	policy()
}

// SeqExec runs the loop in order on the calling goroutine.
type SeqExec struct{}

// ParallelExec runs the loop fork-join on a pool.
type ParallelExec struct {
	Pool *Pool
}

// Strategy is how per-block partial results of a device reduction are
// combined.
type Strategy int

const (
	// Atomic combines each block's partial into the result as the block
	// finishes.
	Atomic Strategy = iota
	// Device writes per-block partials to device memory and combines them
	// once the grid has finished.
	Device
)

func (s Strategy) String() string {
	switch s {
	case Atomic:
		return "atomic"
	case Device:
		return "device"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// GPUExec launches the loop as a kernel of BlockSize threads per block.
type GPUExec struct {
	Runtime   gpu.Runtime
	Stream    *gpu.Stream // nil means the default stream
	BlockSize int
	// OccCalc caps the grid at the number of blocks the device can hold and
	// makes threads stride over the range.
	OccCalc bool
	// Async skips the synchronize after a Forall. Reductions always
	// synchronize.
	Async    bool
	Strategy Strategy
	// Partials, when set, holds the per-block results of Device strategy
	// reductions in place of a buffer allocated per call.
	Partials *Partials
}

// TargetExec offloads the loop with Teams threads per team. Offloaded
// loops always synchronize.
type TargetExec struct {
	Runtime gpu.Runtime
	Stream  *gpu.Stream // nil means the default stream
	Teams   int
}

func (SeqExec) policy()      {}
func (ParallelExec) policy() {}
func (GPUExec) policy()      {}
func (TargetExec) policy()   {}

// DefaultTeams is the team size used when TargetExec.Teams is unset.
const DefaultTeams = 256

func (t TargetExec) gpuExec() GPUExec {
	teams := t.Teams
	if teams <= 0 {
		teams = DefaultTeams
	}
	return GPUExec{Runtime: t.Runtime, Stream: t.Stream, BlockSize: teams}
}

// launchShape returns the grid size for n indices.
func (g GPUExec) launchShape(n, sharedMem int) (grid int, err error) {
	if g.Runtime == nil {
		return 0, fmt.Errorf("gpu policy without runtime: %w", gpu.ErrNotAvailable)
	}
	if g.BlockSize <= 0 {
		return 0, fmt.Errorf("block size %d: %w", g.BlockSize, gpu.ErrInvalidValue)
	}
	grid = gpu.DivideCeil(n, g.BlockSize)
	if g.OccCalc {
		maxGrid, err := gpu.MaxGridSize(g.Runtime, g.BlockSize, sharedMem)
		if err != nil {
			return 0, err
		}
		grid = min(grid, max(maxGrid, 1))
	}
	return grid, nil
}

// Forall runs body for every index of r under pol.
func Forall(pol Policy, r Range, body func(i int)) error {
	switch p := pol.(type) {
	case SeqExec:
		for i := r.Begin; i < r.End; i++ {
			body(i)
		}
		return nil
	case ParallelExec:
		return p.Pool.Run(r, func(_ int, c Range) {
			for i := c.Begin; i < c.End; i++ {
				body(i)
			}
		})
	case GPUExec:
		return gpuForall(p, r, body)
	case TargetExec:
		return gpuForall(p.gpuExec(), r, body)
	default:
		return fmt.Errorf("forall: unsupported policy %T", pol)
	}
}

func gpuForall(g GPUExec, r Range, body func(i int)) error {
	n := r.Len()
	if n == 0 {
		return nil
	}
	grid, err := g.launchShape(n, 0)
	if err != nil {
		return err
	}
	stride := grid * g.BlockSize
	cfg := gpu.LaunchConfig{Grid: gpu.D1(grid), Block: gpu.D1(g.BlockSize)}
	err = g.Runtime.Launch(cfg, g.Stream, func(b *gpu.Block) {
		b.Threads1D(func(tx int) {
			for i := b.Idx.X*b.Dim.X + tx; i < n; i += stride {
				body(r.Begin + i)
			}
		})
	})
	if err != nil {
		return err
	}
	if g.Async {
		return nil
	}
	return g.Runtime.StreamSynchronize(g.Stream)
}
