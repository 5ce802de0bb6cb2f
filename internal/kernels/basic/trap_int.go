package basic

import (
	"math"
	"sync"

	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// TrapInt integrates 1/|p - p'| along a line with the trapezoid rule and
// accumulates the integral over repetitions.
type TrapInt struct {
	kernel.KernelBase

	x0, xp float64
	y, yp  float64
	h      float64

	sumxInit float64
	sumx     float64
}

// NewTrapInt creates the Basic_TRAP_INT kernel.
func NewTrapInt(env *kernel.Env) *TrapInt {
	k := &TrapInt{KernelBase: kernel.NewBase(env, "Basic", "TRAP_INT", 1000000, 50)}
	n := int64(k.ActualProblemSize())
	k.SetItsPerRep(n)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(2 * 8)
	k.SetFLOPsPerRep(10 * n)

	k.SetUsesFeature(variant.Forall)
	k.SetUsesFeature(variant.Reduction)

	k.SetVariantsDefined(
		variant.BaseSeq, variant.LambdaSeq, variant.RAJASeq,
		variant.BaseOpenMP, variant.LambdaOpenMP, variant.RAJAOpenMP,
		variant.BaseOpenMPTarget, variant.RAJAOpenMPTarget,
		variant.BaseCUDA, variant.RAJACUDA,
		variant.BaseHIP, variant.RAJAHIP,
	)
	return k
}

func trapIntFunc(x, y, xp, yp float64) float64 {
	denom := (x-xp)*(x-xp) + (y-yp)*(y-yp)
	return 1.0 / math.Sqrt(denom)
}

// Integral returns the integral accumulated over the repetitions of the
// last run.
func (k *TrapInt) Integral() float64 { return k.sumx }

func (k *TrapInt) SetUp(variant.ID, int) error {
	const xn = 1.0
	k.x0, k.xp = 0.0, 0.5
	k.y, k.yp = 0.0, 0.5
	k.h = (xn - k.x0) / float64(k.ActualProblemSize())
	k.sumxInit = 0.5 * (trapIntFunc(k.x0, k.y, k.xp, k.yp) + trapIntFunc(xn, k.y, k.xp, k.yp))
	k.sumx = 0
	return nil
}

func (k *TrapInt) UpdateChecksum(vid variant.ID, tune int) error {
	k.AddChecksum(vid, tune, kernel.Checksum([]float64{k.sumx}))
	return nil
}

func (k *TrapInt) TearDown(variant.ID, int) error { return nil }

func (k *TrapInt) body(i int) float64 {
	x := k.x0 + float64(i)*k.h
	return trapIntFunc(x, k.y, k.xp, k.yp)
}

func (k *TrapInt) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.Seq, variant.OpenMP:
		return kernel.Default(func(r *kernel.Run) error { return k.runHost(r, vid) })
	case variant.OpenMPTarget:
		return kernel.Default(func(r *kernel.Run) error { return k.runDevice(r, vid, forall.DefaultTeams) })
	case variant.CUDA, variant.HIP:
		return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
			return []kernel.Tuning{{Name: kernel.BlockName(bs), BlockSize: bs,
				Run: func(r *kernel.Run) error { return k.runDevice(r, vid, bs) }}}
		})
	}
	return nil
}

func (k *TrapInt) runHost(r *kernel.Run, vid variant.ID) error {
	n := r.ProblemSize()

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			sumx := k.sumxInit
			for i := 0; i < n; i++ {
				x := k.x0 + float64(i)*k.h
				sumx += trapIntFunc(x, k.y, k.xp, k.yp)
			}
			k.sumx += sumx * k.h
			return nil
		})

	case variant.LambdaSeq:
		return r.Repeat(func(int) error {
			sumx := k.sumxInit
			for i := 0; i < n; i++ {
				sumx += k.body(i)
			}
			k.sumx += sumx * k.h
			return nil
		})

	case variant.BaseOpenMP, variant.LambdaOpenMP:
		pool := k.Env().Pool
		return r.Repeat(func(int) error {
			var mu sync.Mutex
			sumx := k.sumxInit
			err := pool.Run(forall.N(n), func(_ int, c forall.Range) {
				local := 0.0
				for i := c.Begin; i < c.End; i++ {
					local += k.body(i)
				}
				mu.Lock()
				sumx += local
				mu.Unlock()
			})
			k.sumx += sumx * k.h
			return err
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		pol := k.Env().Policy(vid)
		return r.Repeat(func(int) error {
			sumx, err := forall.Reduce(pol, forall.N(n), forall.Sum[float64]().WithInit(k.sumxInit),
				func(i int, acc *float64) { *acc += k.body(i) })
			k.sumx += sumx * k.h
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}

// runDevice covers the GPU and offload variants; bs is the block or team
// size.
func (k *TrapInt) runDevice(r *kernel.Run, vid variant.ID, bs int) error {
	env := k.Env()
	rt, s, err := env.Device(vid)
	if err != nil {
		return err
	}
	n := r.ProblemSize()

	if vid.Style() == variant.RAJA {
		var pol forall.Policy = forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, Async: true}
		if vid.Backend() == variant.OpenMPTarget {
			pol = forall.TargetExec{Runtime: rt, Teams: bs}
		}
		return r.Repeat(func(int) error {
			sumx, err := forall.Reduce(pol, forall.N(n), forall.Sum[float64]().WithInit(k.sumxInit),
				func(i int, acc *float64) { *acc += k.body(i) })
			k.sumx += sumx * k.h
			return err
		})
	}

	sumx, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
	if err != nil {
		return err
	}
	defer sumx.Free()
	dsum := sumx.Data()
	x0, h, y, xp, yp := k.x0, k.h, k.y, k.xp, k.yp
	cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, bs)), Block: gpu.D1(bs), SharedMem: 8 * bs}
	trapint := gpu.BlockSum(func(i int) float64 {
		x := x0 + float64(i)*h
		return trapIntFunc(x, y, xp, yp)
	}, n, func(_ *gpu.Block, v float64) { gpu.AtomicAdd(&dsum[0], v) })

	return r.Repeat(func(int) error {
		if err := sumx.Initialize(s, k.sumxInit); err != nil {
			return err
		}
		if n > 0 {
			if err := rt.Launch(cfg, s, trapint); err != nil {
				return err
			}
		}
		lsumx, err := sumx.CopyBack(s)
		if err != nil {
			return err
		}
		k.sumx += lsumx[0] * k.h
		return nil
	})
}
