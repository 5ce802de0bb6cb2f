package algorithm

import (
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func (k *ReduceSum) gpuTunings(vid variant.ID) []kernel.Tuning {
	var tunings []kernel.Tuning
	if vid.Style() == variant.Base {
		tunings = append(tunings, kernel.Tuning{Name: "lib", Run: func(r *kernel.Run) error { return k.runGPULib(r, vid) }})
	}
	return append(tunings, kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
		return []kernel.Tuning{
			{Name: kernel.BlockName(bs), BlockSize: bs, Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, false) }},
			{Name: kernel.OccGSName(bs), BlockSize: bs, Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, true) }},
		}
	})...)
}

// reduceSumKernel sums x with one shared memory tree per block and one
// atomic add per block into dsum.
func reduceSumKernel(x, dsum []float64, n, bs int) gpu.KernelFunc {
	return func(b *gpu.Block) {
		psum := gpu.Shared[float64](b, 0, bs)
		stride := b.GridDim.X * bs
		b.Threads1D(func(tx int) {
			psum[tx] = 0
			for i := b.Idx.X*bs + tx; i < n; i += stride {
				psum[tx] += x[i]
			}
		})
		for i := bs / 2; i > 0; i /= 2 {
			b.Threads1D(func(tx int) {
				if tx < i {
					psum[tx] += psum[tx+i]
				}
			})
		}
		gpu.AtomicAdd(&dsum[0], psum[0])
	}
}

func (k *ReduceSum) runGPU(r *kernel.Run, vid variant.ID, bs int, occGS bool) error {
	env := k.Env()
	rt, err := env.Runtime(vid)
	if err != nil {
		return err
	}
	s := rt.DefaultStream()
	x := k.x.Data()
	n := r.ProblemSize()

	switch vid.Style() {
	case variant.Base:
		dsum, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
		if err != nil {
			return err
		}
		defer dsum.Free()

		shmem := 8 * bs
		grid, err := kernel.GridSize(rt, n, bs, shmem, occGS)
		if err != nil {
			return err
		}
		cfg := gpu.LaunchConfig{Grid: gpu.D1(grid), Block: gpu.D1(bs), SharedMem: shmem}
		return r.Repeat(func(int) error {
			if err := dsum.Initialize(s, k.sumInit); err != nil {
				return err
			}
			if err := rt.Launch(cfg, s, reduceSumKernel(x, dsum.Data(), n, bs)); err != nil {
				return err
			}
			hsum, err := dsum.CopyBack(s)
			if err != nil {
				return err
			}
			k.sum += hsum[0]
			return nil
		})

	case variant.RAJA:
		pol := forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, OccCalc: occGS, Async: true}
		return r.Repeat(func(int) error {
			sum, err := forall.Reduce(pol, forall.N(n), forall.Sum[float64]().WithInit(k.sumInit),
				func(i int, acc *float64) { *acc += x[i] })
			k.sum += sum
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}

// runGPULib uses the device-wide library reduction.
func (k *ReduceSum) runGPULib(r *kernel.Run, vid variant.ID) error {
	if vid.Style() != variant.Base {
		return kernel.ErrVariantNotDefined
	}
	env := k.Env()
	rt, err := env.Runtime(vid)
	if err != nil {
		return err
	}
	s := rt.DefaultStream()
	n := r.ProblemSize()

	dsum, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
	if err != nil {
		return err
	}
	defer dsum.Free()

	tempBytes, err := gpu.ReduceSumTempBytes(rt, n)
	if err != nil {
		return err
	}
	temp, err := dataspace.Alloc[float64](env.Alloc, env.Space(vid), tempBytes/8)
	if err != nil {
		return err
	}
	defer dataspace.Free(env.Alloc, temp)

	// the library writes the result, so no per-repetition initialization
	return r.Repeat(func(int) error {
		if err := gpu.DeviceReduceSum(rt, s, temp.Ptr(), k.x.Ptr(), dsum.Ptr(), n, k.sumInit); err != nil {
			return err
		}
		hsum, err := dsum.CopyBack(s)
		if err != nil {
			return err
		}
		k.sum += hsum[0]
		return nil
	})
}

func (k *ReduceSum) runTarget(r *kernel.Run, vid variant.ID) error {
	env := k.Env()
	rt, err := env.Runtime(vid)
	if err != nil {
		return err
	}
	x := k.x.Data()
	n := r.ProblemSize()

	switch vid {
	case variant.BaseOpenMPTarget:
		// teams distribute parallel for reduction(+:sum) map(tofrom:sum)
		const teamSize = forall.DefaultTeams
		dsum, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 1)
		if err != nil {
			return err
		}
		defer dsum.Free()
		s := rt.DefaultStream()
		cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, teamSize)), Block: gpu.D1(teamSize), SharedMem: 8 * teamSize}
		return r.Repeat(func(int) error {
			if err := dsum.Initialize(s, k.sumInit); err != nil {
				return err
			}
			if n > 0 {
				if err := rt.Launch(cfg, s, reduceSumKernel(x, dsum.Data(), n, teamSize)); err != nil {
					return err
				}
			}
			hsum, err := dsum.CopyBack(s)
			if err != nil {
				return err
			}
			k.sum += hsum[0]
			return nil
		})

	case variant.RAJAOpenMPTarget:
		pol := forall.TargetExec{Runtime: rt}
		return r.Repeat(func(int) error {
			sum, err := forall.Reduce(pol, forall.N(n), forall.Sum[float64]().WithInit(k.sumInit),
				func(i int, acc *float64) { *acc += x[i] })
			k.sum += sum
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}
