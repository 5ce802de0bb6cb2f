// Package algorithm holds kernels for library-style algorithms.
package algorithm

import (
	"sync"

	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// ReduceSum sums an array once per repetition and accumulates the sums.
type ReduceSum struct {
	kernel.KernelBase

	fill    func(i int) float64
	sumInit float64

	x   *dataspace.Buffer[float64]
	sum float64
}

// Option configures ReduceSum.
type Option func(*ReduceSum)

// WithFill sets the generator for the input array.
func WithFill(fill func(i int) float64) Option {
	return func(k *ReduceSum) { k.fill = fill }
}

// WithInit sets the value each repetition's sum starts from.
func WithInit(v float64) Option {
	return func(k *ReduceSum) { k.sumInit = v }
}

// NewReduceSum creates the Algorithm_REDUCE_SUM kernel.
func NewReduceSum(env *kernel.Env, opts ...Option) *ReduceSum {
	k := &ReduceSum{
		KernelBase: kernel.NewBase(env, "Algorithm", "REDUCE_SUM", 1000000, 50),
		fill:       kernel.InitReal,
	}
	for _, opt := range opts {
		opt(k)
	}
	n := int64(k.ActualProblemSize())
	k.SetItsPerRep(n)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(8 + 8*n)
	k.SetFLOPsPerRep(n)

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

// Sum returns the sum accumulated over the repetitions of the last run.
func (k *ReduceSum) Sum() float64 { return k.sum }

func (k *ReduceSum) SetUp(vid variant.ID, _ int) error {
	var err error
	k.x, err = dataspace.AllocAndInit(k.Env().Alloc, k.Env().Space(vid), k.ActualProblemSize(), k.fill)
	k.sum = 0
	return err
}

func (k *ReduceSum) UpdateChecksum(vid variant.ID, tune int) error {
	k.AddChecksum(vid, tune, kernel.Checksum([]float64{k.sum}))
	return nil
}

func (k *ReduceSum) TearDown(variant.ID, int) error {
	err := dataspace.Free(k.Env().Alloc, k.x)
	k.x = nil
	return err
}

func (k *ReduceSum) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.Seq:
		return kernel.Default(func(r *kernel.Run) error { return k.runSeq(r, vid) })
	case variant.OpenMP:
		return kernel.Default(func(r *kernel.Run) error { return k.runOpenMP(r, vid) })
	case variant.OpenMPTarget:
		return kernel.Default(func(r *kernel.Run) error { return k.runTarget(r, vid) })
	case variant.CUDA, variant.HIP:
		return k.gpuTunings(vid)
	}
	return nil
}

func (k *ReduceSum) runSeq(r *kernel.Run, vid variant.ID) error {
	x := k.x.Data()
	n := r.ProblemSize()

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			sum := k.sumInit
			for i := 0; i < n; i++ {
				sum += x[i]
			}
			k.sum += sum
			return nil
		})

	case variant.LambdaSeq:
		body := func(i int) float64 { return x[i] }
		return r.Repeat(func(int) error {
			sum := k.sumInit
			for i := 0; i < n; i++ {
				sum += body(i)
			}
			k.sum += sum
			return nil
		})

	case variant.RAJASeq:
		return r.Repeat(func(int) error {
			sum, err := forall.Reduce(forall.SeqExec{}, forall.N(n), forall.Sum[float64]().WithInit(k.sumInit),
				func(i int, acc *float64) { *acc += x[i] })
			k.sum += sum
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}

func (k *ReduceSum) runOpenMP(r *kernel.Run, vid variant.ID) error {
	x := k.x.Data()
	n := r.ProblemSize()
	pool := k.Env().Pool

	// hand-written parallel loop with a reduction into a shared sum
	parallelSum := func(load func(i int) float64) (float64, error) {
		var mu sync.Mutex
		sum := k.sumInit
		err := pool.Run(forall.N(n), func(_ int, c forall.Range) {
			local := 0.0
			for i := c.Begin; i < c.End; i++ {
				local += load(i)
			}
			mu.Lock()
			sum += local
			mu.Unlock()
		})
		return sum, err
	}

	switch vid {
	case variant.BaseOpenMP:
		return r.Repeat(func(int) error {
			var mu sync.Mutex
			sum := k.sumInit
			err := pool.Run(forall.N(n), func(_ int, c forall.Range) {
				local := 0.0
				for i := c.Begin; i < c.End; i++ {
					local += x[i]
				}
				mu.Lock()
				sum += local
				mu.Unlock()
			})
			k.sum += sum
			return err
		})

	case variant.LambdaOpenMP:
		body := func(i int) float64 { return x[i] }
		return r.Repeat(func(int) error {
			sum, err := parallelSum(body)
			k.sum += sum
			return err
		})

	case variant.RAJAOpenMP:
		pol := forall.ParallelExec{Pool: pool}
		return r.Repeat(func(int) error {
			sum, err := forall.Reduce(pol, forall.N(n), forall.Sum[float64]().WithInit(k.sumInit),
				func(i int, acc *float64) { *acc += x[i] })
			k.sum += sum
			return err
		})
	}
	return kernel.ErrVariantNotDefined
}
