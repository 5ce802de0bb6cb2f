// Package basic holds small kernels that each exercise one programming
// model feature: atomics, reductions, shared memory tiles.
package basic

import (
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// PIAtomic integrates 4/(1+x²) over [0, 1) with one atomic add per index.
type PIAtomic struct {
	kernel.KernelBase

	dx     float64
	piInit float64
	pi     float64
}

// NewPIAtomic creates the Basic_PI_ATOMIC kernel.
func NewPIAtomic(env *kernel.Env) *PIAtomic {
	k := &PIAtomic{KernelBase: kernel.NewBase(env, "Basic", "PI_ATOMIC", 1000000, 50)}
	n := int64(k.ActualProblemSize())
	k.SetItsPerRep(n)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(2 * 8)
	k.SetFLOPsPerRep(6 * n)

	k.SetUsesFeature(variant.Forall)
	k.SetUsesFeature(variant.Atomic)

	k.SetVariantsDefined(
		variant.BaseSeq, variant.LambdaSeq, variant.RAJASeq,
		variant.BaseOpenMP, variant.LambdaOpenMP, variant.RAJAOpenMP,
		variant.BaseOpenMPTarget, variant.RAJAOpenMPTarget,
		variant.BaseCUDA, variant.LambdaCUDA, variant.RAJACUDA,
		variant.BaseHIP, variant.LambdaHIP, variant.RAJAHIP,
	)
	return k
}

// PI returns the estimate of the last repetition.
func (k *PIAtomic) PI() float64 { return k.pi }

func (k *PIAtomic) SetUp(variant.ID, int) error {
	k.dx = 1.0 / float64(k.ActualProblemSize())
	k.pi = 0
	return nil
}

func (k *PIAtomic) UpdateChecksum(vid variant.ID, tune int) error {
	k.AddChecksum(vid, tune, kernel.Checksum([]float64{k.pi}))
	return nil
}

func (k *PIAtomic) TearDown(variant.ID, int) error { return nil }

func (k *PIAtomic) term(i int) float64 {
	x := (float64(i) + 0.5) * k.dx
	return k.dx / (1.0 + x*x)
}

func (k *PIAtomic) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.Seq, variant.OpenMP:
		return kernel.Default(func(r *kernel.Run) error { return k.runHost(r, vid) })
	case variant.OpenMPTarget:
		return kernel.Default(func(r *kernel.Run) error { return k.runTarget(r, vid) })
	case variant.CUDA, variant.HIP:
		return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
			return []kernel.Tuning{{Name: kernel.BlockName(bs), BlockSize: bs,
				Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs) }}}
		})
	}
	return nil
}

func (k *PIAtomic) runHost(r *kernel.Run, vid variant.ID) error {
	n := r.ProblemSize()
	pool := k.Env().Pool

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			pi := k.piInit
			for i := 0; i < n; i++ {
				x := (float64(i) + 0.5) * k.dx
				pi += k.dx / (1.0 + x*x)
			}
			k.pi = 4 * pi
			return nil
		})

	case variant.LambdaSeq:
		return r.Repeat(func(int) error {
			pi := k.piInit
			body := func(i int) { pi += k.term(i) }
			for i := 0; i < n; i++ {
				body(i)
			}
			k.pi = 4 * pi
			return nil
		})

	case variant.BaseOpenMP, variant.LambdaOpenMP:
		return r.Repeat(func(int) error {
			pi := k.piInit
			err := pool.Run(forall.N(n), func(_ int, c forall.Range) {
				for i := c.Begin; i < c.End; i++ {
					gpu.AtomicAdd(&pi, k.term(i))
				}
			})
			k.pi = 4 * pi
			return err
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		pol := k.Env().Policy(vid)
		return r.Repeat(func(int) error {
			pi := k.piInit
			err := forall.Forall(pol, forall.N(n), func(i int) { gpu.AtomicAdd(&pi, k.term(i)) })
			k.pi = 4 * pi
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}

func piAtomicKernel(pi []float64, dx float64, n int) gpu.KernelFunc {
	return func(b *gpu.Block) {
		b.Threads1D(func(tx int) {
			if i := b.Idx.X*b.Dim.X + tx; i < n {
				x := (float64(i) + 0.5) * dx
				gpu.AtomicAdd(&pi[0], dx/(1.0+x*x))
			}
		})
	}
}

func (k *PIAtomic) runGPU(r *kernel.Run, vid variant.ID, bs int) error {
	env := k.Env()
	rt, s, err := env.Device(vid)
	if err != nil {
		return err
	}
	n := r.ProblemSize()
	pi, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
	if err != nil {
		return err
	}
	defer pi.Free()
	dpi := pi.Data()

	var launch func() error
	switch vid.Style() {
	case variant.Base:
		cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, bs)), Block: gpu.D1(bs)}
		launch = func() error { return rt.Launch(cfg, s, piAtomicKernel(dpi, k.dx, n)) }
	case variant.Lambda:
		launch = func() error {
			return kernel.LaunchForall(rt, s, bs, n, func(i int) { gpu.AtomicAdd(&dpi[0], k.term(i)) })
		}
	case variant.RAJA:
		pol := forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, Async: true}
		launch = func() error {
			return forall.Forall(pol, forall.N(n), func(i int) { gpu.AtomicAdd(&dpi[0], k.term(i)) })
		}
	default:
		return kernel.ErrVariantNotDefined
	}

	return k.repeatDevice(r, s, pi, launch)
}

func (k *PIAtomic) runTarget(r *kernel.Run, vid variant.ID) error {
	env := k.Env()
	rt, s, err := env.Device(vid)
	if err != nil {
		return err
	}
	n := r.ProblemSize()
	pi, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
	if err != nil {
		return err
	}
	defer pi.Free()
	dpi := pi.Data()

	var launch func() error
	switch vid {
	case variant.BaseOpenMPTarget:
		const teamSize = forall.DefaultTeams
		cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, teamSize)), Block: gpu.D1(teamSize)}
		launch = func() error { return rt.Launch(cfg, s, piAtomicKernel(dpi, k.dx, n)) }
	case variant.RAJAOpenMPTarget:
		pol := forall.TargetExec{Runtime: rt}
		launch = func() error {
			return forall.Forall(pol, forall.N(n), func(i int) { gpu.AtomicAdd(&dpi[0], k.term(i)) })
		}
	default:
		return kernel.ErrVariantNotDefined
	}

	return k.repeatDevice(r, s, pi, launch)
}

// repeatDevice runs launch once per repetition between resetting the
// reduction target and copying it back.
func (k *PIAtomic) repeatDevice(r *kernel.Run, s *gpu.Stream, pi *dataspace.Reducer[float64], launch func() error) error {
	return r.Repeat(func(int) error {
		if err := pi.Initialize(s, k.piInit); err != nil {
			return err
		}
		if err := launch(); err != nil {
			return err
		}
		rpi, err := pi.CopyBack(s)
		if err != nil {
			return err
		}
		k.pi = 4 * rpi[0]
		return nil
	})
}
