package basic

import (
	"fmt"
	"math"
	"sync"

	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Points is the summary REDUCE_STRUCT computes for a point cloud.
type Points struct {
	N                int
	XCenter, YCenter float64
	XMin, XMax       float64
	YMin, YMax       float64
}

// set fills p from the six reduced values in x sum, min, max then y sum,
// min, max order.
func (p *Points) set(n int, m []float64) {
	p.N = n
	p.XCenter, p.XMin, p.XMax = m[0]/float64(n), m[1], m[2]
	p.YCenter, p.YMin, p.YMax = m[3]/float64(n), m[4], m[5]
}

// ReduceStruct computes the center and bounding box of a set of points
// with six simultaneous reductions.
type ReduceStruct struct {
	kernel.KernelBase

	initSum, initMin, initMax float64

	x, y   *dataspace.Buffer[float64]
	points Points
}

// NewReduceStruct creates the Basic_REDUCE_STRUCT kernel.
func NewReduceStruct(env *kernel.Env) *ReduceStruct {
	k := &ReduceStruct{
		KernelBase: kernel.NewBase(env, "Basic", "REDUCE_STRUCT", 1000000, 50),
		initSum:    0,
		initMin:    math.MaxFloat64,
		initMax:    -math.MaxFloat64,
	}
	n := int64(k.ActualProblemSize())
	k.SetItsPerRep(n)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(6*8 + 2*8*n)
	k.SetFLOPsPerRep(2 * n)

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

// Points returns the summary of the last repetition.
func (k *ReduceStruct) Points() Points { return k.points }

func (k *ReduceStruct) SetUp(vid variant.ID, _ int) error {
	env := k.Env()
	n := k.ActualProblemSize()
	dx := 1.0 / float64(n)
	dy := 2.0 / float64(n)
	var err error
	if k.x, err = dataspace.AllocAndInit(env.Alloc, env.Space(vid), n, func(i int) float64 { return float64(i) * dx }); err != nil {
		return err
	}
	k.y, err = dataspace.AllocAndInit(env.Alloc, env.Space(vid), n, func(i int) float64 { return float64(i) * dy })
	k.points = Points{}
	return err
}

func (k *ReduceStruct) UpdateChecksum(vid variant.ID, tune int) error {
	p := k.points
	k.AddChecksum(vid, tune, kernel.Checksum([]float64{p.XCenter, p.XMin, p.XMax, p.YCenter, p.YMin, p.YMax}))
	return nil
}

func (k *ReduceStruct) TearDown(variant.ID, int) error {
	env := k.Env()
	err := dataspace.Free(env.Alloc, k.x)
	if yerr := dataspace.Free(env.Alloc, k.y); err == nil {
		err = yerr
	}
	k.x, k.y = nil, nil
	return err
}

func (k *ReduceStruct) reductions() []forall.Reduction[float64] {
	return []forall.Reduction[float64]{
		forall.Sum[float64]().WithInit(k.initSum),
		forall.Min[float64]().WithInit(k.initMin),
		forall.Max[float64]().WithInit(k.initMax),
		forall.Sum[float64]().WithInit(k.initSum),
		forall.Min[float64]().WithInit(k.initMin),
		forall.Max[float64]().WithInit(k.initMax),
	}
}

func (k *ReduceStruct) initial() []float64 {
	return []float64{k.initSum, k.initMin, k.initMax, k.initSum, k.initMin, k.initMax}
}

func reduceStructBody(x, y []float64) func(i int, m []float64) {
	return func(i int, m []float64) {
		m[0] += x[i]
		m[1] = min(m[1], x[i])
		m[2] = max(m[2], x[i])
		m[3] += y[i]
		m[4] = min(m[4], y[i])
		m[5] = max(m[5], y[i])
	}
}

func combineStruct(dst, src []float64) {
	dst[0] += src[0]
	dst[1] = min(dst[1], src[1])
	dst[2] = max(dst[2], src[2])
	dst[3] += src[3]
	dst[4] = min(dst[4], src[4])
	dst[5] = max(dst[5], src[5])
}

func (k *ReduceStruct) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.Seq, variant.OpenMP:
		return kernel.Default(func(r *kernel.Run) error { return k.runHost(r, vid) })
	case variant.OpenMPTarget:
		return kernel.Default(func(r *kernel.Run) error { return k.runTarget(r, vid) })
	case variant.CUDA, variant.HIP:
		return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
			tunings := []kernel.Tuning{
				{Name: fmt.Sprintf("blkatm_%d", bs), BlockSize: bs,
					Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, false, forall.Atomic) }},
				{Name: fmt.Sprintf("blkatm_occgs_%d", bs), BlockSize: bs,
					Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, true, forall.Atomic) }},
			}
			if vid.Style() == variant.RAJA {
				tunings = append(tunings,
					kernel.Tuning{Name: fmt.Sprintf("blkdev_%d", bs), BlockSize: bs,
						Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, false, forall.Device) }},
					kernel.Tuning{Name: fmt.Sprintf("blkdev_occgs_%d", bs), BlockSize: bs,
						Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs, true, forall.Device) }},
				)
			}
			return tunings
		})
	}
	return nil
}

func (k *ReduceStruct) runHost(r *kernel.Run, vid variant.ID) error {
	x, y := k.x.Data(), k.y.Data()
	n := r.ProblemSize()

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			xsum, xmin, xmax := k.initSum, k.initMin, k.initMax
			ysum, ymin, ymax := k.initSum, k.initMin, k.initMax
			for i := 0; i < n; i++ {
				xsum += x[i]
				xmin = min(xmin, x[i])
				xmax = max(xmax, x[i])
				ysum += y[i]
				ymin = min(ymin, y[i])
				ymax = max(ymax, y[i])
			}
			k.points.set(n, []float64{xsum, xmin, xmax, ysum, ymin, ymax})
			return nil
		})

	case variant.LambdaSeq:
		body := reduceStructBody(x, y)
		return r.Repeat(func(int) error {
			m := k.initial()
			for i := 0; i < n; i++ {
				body(i, m)
			}
			k.points.set(n, m)
			return nil
		})

	case variant.BaseOpenMP, variant.LambdaOpenMP:
		pool := k.Env().Pool
		body := reduceStructBody(x, y)
		identity := []float64{0, math.Inf(1), math.Inf(-1), 0, math.Inf(1), math.Inf(-1)}
		return r.Repeat(func(int) error {
			var mu sync.Mutex
			m := k.initial()
			err := pool.Run(forall.N(n), func(_ int, c forall.Range) {
				local := append([]float64(nil), identity...)
				for i := c.Begin; i < c.End; i++ {
					body(i, local)
				}
				mu.Lock()
				combineStruct(m, local)
				mu.Unlock()
			})
			k.points.set(n, m)
			return err
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		pol := k.Env().Policy(vid)
		reds := k.reductions()
		body := reduceStructBody(x, y)
		return r.Repeat(func(int) error {
			m, err := forall.ReduceN(pol, forall.N(n), reds, body)
			if err != nil {
				return err
			}
			k.points.set(n, m)
			return nil
		})
	}
	return kernel.ErrVariantNotDefined
}

// reduceStructKernel reduces x and y with six shared memory trees per
// block and six atomics per block into mem.
func reduceStructKernel(x, y, mem []float64, initSum, initMin, initMax float64, n int) gpu.KernelFunc {
	return func(b *gpu.Block) {
		bs := b.Dim.X
		sh := gpu.Shared[float64](b, 0, 6*bs)
		pxsum, pxmin, pxmax := sh[0*bs:1*bs], sh[1*bs:2*bs], sh[2*bs:3*bs]
		pysum, pymin, pymax := sh[3*bs:4*bs], sh[4*bs:5*bs], sh[5*bs:6*bs]
		stride := b.GridDim.X * bs

		b.Threads1D(func(tx int) {
			pxsum[tx], pxmin[tx], pxmax[tx] = initSum, initMin, initMax
			pysum[tx], pymin[tx], pymax[tx] = initSum, initMin, initMax
			for i := b.Idx.X*bs + tx; i < n; i += stride {
				pxsum[tx] += x[i]
				pxmin[tx] = min(pxmin[tx], x[i])
				pxmax[tx] = max(pxmax[tx], x[i])
				pysum[tx] += y[i]
				pymin[tx] = min(pymin[tx], y[i])
				pymax[tx] = max(pymax[tx], y[i])
			}
		})
		for i := bs / 2; i > 0; i /= 2 {
			b.Threads1D(func(tx int) {
				if tx < i {
					pxsum[tx] += pxsum[tx+i]
					pxmin[tx] = min(pxmin[tx], pxmin[tx+i])
					pxmax[tx] = max(pxmax[tx], pxmax[tx+i])
					pysum[tx] += pysum[tx+i]
					pymin[tx] = min(pymin[tx], pymin[tx+i])
					pymax[tx] = max(pymax[tx], pymax[tx+i])
				}
			})
		}
		gpu.AtomicAdd(&mem[0], pxsum[0])
		gpu.AtomicMin(&mem[1], pxmin[0])
		gpu.AtomicMax(&mem[2], pxmax[0])
		gpu.AtomicAdd(&mem[3], pysum[0])
		gpu.AtomicMin(&mem[4], pymin[0])
		gpu.AtomicMax(&mem[5], pymax[0])
	}
}

func (k *ReduceStruct) runGPU(r *kernel.Run, vid variant.ID, bs int, occGS bool, strategy forall.Strategy) error {
	env := k.Env()
	rt, s, err := env.Device(vid)
	if err != nil {
		return err
	}
	x, y := k.x.Data(), k.y.Data()
	n := r.ProblemSize()

	switch vid.Style() {
	case variant.Base:
		shmem := 6 * 8 * bs
		grid, err := kernel.GridSize(rt, n, bs, shmem, occGS)
		if err != nil {
			return err
		}
		cfg := gpu.LaunchConfig{Grid: gpu.D1(grid), Block: gpu.D1(bs), SharedMem: shmem}
		return k.repeatBlockAtomic(r, rt, s, vid, cfg, n)

	case variant.RAJA:
		pol := forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, OccCalc: occGS, Async: true, Strategy: strategy}
		reds := k.reductions()
		if strategy == forall.Device {
			pol.Partials = &forall.Partials{}
			defer pol.Partials.Free()
			if err := forall.ReservePartials[float64](pol, n, len(reds)); err != nil {
				return err
			}
		}
		body := reduceStructBody(x, y)
		return r.Repeat(func(int) error {
			m, err := forall.ReduceN(pol, forall.N(n), reds, body)
			if err != nil {
				return err
			}
			k.points.set(n, m)
			return nil
		})
	}
	return kernel.ErrVariantNotDefined
}

// repeatBlockAtomic runs the hand-written kernel once per repetition with
// the six results staged through a reducer.
func (k *ReduceStruct) repeatBlockAtomic(r *kernel.Run, rt gpu.Runtime, s *gpu.Stream, vid variant.ID, cfg gpu.LaunchConfig, n int) error {
	env := k.Env()
	mem, err := dataspace.NewReducer[float64](env.Alloc, env.ReductionSpace(vid), 6)
	if err != nil {
		return err
	}
	defer mem.Free()
	fn := reduceStructKernel(k.x.Data(), k.y.Data(), mem.Data(), k.initSum, k.initMin, k.initMax, n)

	return r.Repeat(func(int) error {
		if err := mem.Initialize(s, k.initial()...); err != nil {
			return err
		}
		if n > 0 {
			if err := rt.Launch(cfg, s, fn); err != nil {
				return err
			}
		}
		rmem, err := mem.CopyBack(s)
		if err != nil {
			return err
		}
		k.points.set(n, rmem)
		return nil
	})
}

func (k *ReduceStruct) runTarget(r *kernel.Run, vid variant.ID) error {
	rt, s, err := k.Env().Device(vid)
	if err != nil {
		return err
	}
	n := r.ProblemSize()

	switch vid {
	case variant.BaseOpenMPTarget:
		const teamSize = forall.DefaultTeams
		cfg := gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(n, teamSize)), Block: gpu.D1(teamSize), SharedMem: 6 * 8 * teamSize}
		return k.repeatBlockAtomic(r, rt, s, vid, cfg, n)

	case variant.RAJAOpenMPTarget:
		pol := forall.TargetExec{Runtime: rt}
		reds := k.reductions()
		body := reduceStructBody(k.x.Data(), k.y.Data())
		return r.Repeat(func(int) error {
			m, err := forall.ReduceN(pol, forall.N(n), reds, body)
			if err != nil {
				return err
			}
			k.points.set(n, m)
			return nil
		})
	}
	return kernel.ErrVariantNotDefined
}
