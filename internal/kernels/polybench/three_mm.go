// Package polybench holds kernels from the Polybench suite.
package polybench

import (
	"math"

	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// matmul is one product dst[i][j] = Σ_k a[i][k]·b[k][j] of a rows×inner
// and an inner×cols matrix.
type matmul struct {
	dst, a, b         []float64
	rows, cols, inner int
}

func (m matmul) size() int { return m.rows * m.cols }

// at computes element idx of dst, row major.
func (m matmul) at(idx int) {
	i, j := idx/m.cols, idx%m.cols
	dot := 0.0
	for k := 0; k < m.inner; k++ {
		dot += m.a[i*m.inner+k] * m.b[k*m.cols+j]
	}
	m.dst[idx] = dot
}

// ThreeMM computes G = (A·B)·(C·D) as three matrix products.
type ThreeMM struct {
	kernel.KernelBase

	ni, nj, nk, nl, nm int

	a, b, c, d, e, f, g *dataspace.Buffer[float64]
}

// NewThreeMM creates the Polybench_3MM kernel. The problem size is the
// number of elements of G, and the other extents follow from it.
func NewThreeMM(env *kernel.Env) *ThreeMM {
	k := &ThreeMM{KernelBase: kernel.NewBase(env, "Polybench", "3MM", 250000, 4)}
	n := max(1, int(math.Sqrt(float64(k.ActualProblemSize()))))
	k.ni, k.nj, k.nk, k.nl, k.nm = n, n+1, n+2, n+3, n+4
	k.SetActualProblemSize(k.ni * k.nl)

	ni, nj, nk, nl, nm := int64(k.ni), int64(k.nj), int64(k.nk), int64(k.nl), int64(k.nm)
	k.SetItsPerRep(ni*nj + nj*nl + ni*nl)
	k.SetKernelsPerRep(3)
	k.SetBytesPerRep(8 * (ni*nk + nk*nj + nj*nm + nm*nl + 2*ni*nj + 2*nj*nl + ni*nl))
	k.SetFLOPsPerRep(2 * (ni*nj*nk + nj*nl*nm + ni*nl*nj))

	k.SetUsesFeature(variant.Kernel)

	k.SetVariantsDefined(
		variant.BaseSeq, variant.LambdaSeq, variant.RAJASeq,
		variant.BaseOpenMP, variant.LambdaOpenMP, variant.RAJAOpenMP,
		variant.BaseOpenMPTarget, variant.RAJAOpenMPTarget,
		variant.BaseCUDA, variant.LambdaCUDA, variant.RAJACUDA,
		variant.BaseHIP, variant.LambdaHIP, variant.RAJAHIP,
	)
	return k
}

// Extents returns ni, nj, nk, nl and nm.
func (k *ThreeMM) Extents() (ni, nj, nk, nl, nm int) {
	return k.ni, k.nj, k.nk, k.nl, k.nm
}

// polybenchInit is the classic generator v[i][j] = ((i·(j+shift)+add) mod
// mod) / (5·mod) over a row-major matrix of cols columns.
func polybenchInit(cols, shift, add, mod int) func(idx int) float64 {
	return func(idx int) float64 {
		i, j := idx/cols, idx%cols
		return float64((i*(j+shift)+add)%mod) / float64(5*mod)
	}
}

func (k *ThreeMM) SetUp(vid variant.ID, _ int) error {
	env := k.Env()
	ds := env.Space(vid)
	alloc := func(dst **dataspace.Buffer[float64], n int, gen func(int) float64) error {
		var err error
		if gen == nil {
			*dst, err = dataspace.Alloc[float64](env.Alloc, ds, n)
		} else {
			*dst, err = dataspace.AllocAndInit(env.Alloc, ds, n, gen)
		}
		return err
	}
	steps := []struct {
		dst **dataspace.Buffer[float64]
		n   int
		gen func(int) float64
	}{
		{&k.a, k.ni * k.nk, polybenchInit(k.nk, 0, 1, k.ni)},
		{&k.b, k.nk * k.nj, polybenchInit(k.nj, 1, 2, k.nj)},
		{&k.c, k.nj * k.nm, polybenchInit(k.nm, 3, 0, k.nl)},
		{&k.d, k.nm * k.nl, polybenchInit(k.nl, 2, 2, k.nk)},
		{&k.e, k.ni * k.nj, nil},
		{&k.f, k.nj * k.nl, nil},
		{&k.g, k.ni * k.nl, nil},
	}
	for _, s := range steps {
		if err := alloc(s.dst, s.n, s.gen); err != nil {
			return err
		}
	}
	return nil
}

// G returns a host copy of the result.
func (k *ThreeMM) G() ([]float64, error) {
	return dataspace.ToHost(k.Env().Alloc, k.g)
}

func (k *ThreeMM) UpdateChecksum(vid variant.ID, tune int) error {
	sum, err := kernel.BufferChecksum(k.Env().Alloc, k.g)
	if err != nil {
		return err
	}
	k.AddChecksum(vid, tune, sum)
	return nil
}

func (k *ThreeMM) TearDown(variant.ID, int) error {
	a := k.Env().Alloc
	var first error
	for _, b := range []**dataspace.Buffer[float64]{&k.a, &k.b, &k.c, &k.d, &k.e, &k.f, &k.g} {
		if err := dataspace.Free(a, *b); err != nil && first == nil {
			first = err
		}
		*b = nil
	}
	return first
}

// products returns E = A·B, F = C·D and G = E·F in execution order.
func (k *ThreeMM) products() [3]matmul {
	e, f := k.e.Data(), k.f.Data()
	return [3]matmul{
		{dst: e, a: k.a.Data(), b: k.b.Data(), rows: k.ni, cols: k.nj, inner: k.nk},
		{dst: f, a: k.c.Data(), b: k.d.Data(), rows: k.nj, cols: k.nl, inner: k.nm},
		{dst: k.g.Data(), a: e, b: f, rows: k.ni, cols: k.nl, inner: k.nj},
	}
}

func (k *ThreeMM) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.CUDA, variant.HIP:
		return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
			return []kernel.Tuning{{Name: kernel.BlockName(bs), BlockSize: bs,
				Run: func(r *kernel.Run) error { return k.runGPU(r, vid, bs) }}}
		})
	default:
		return kernel.Default(func(r *kernel.Run) error { return k.runHost(r, vid) })
	}
}

func (k *ThreeMM) runHost(r *kernel.Run, vid variant.ID) error {
	env := k.Env()
	mm := k.products()

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			for _, m := range mm {
				for i := 0; i < m.rows; i++ {
					for j := 0; j < m.cols; j++ {
						dot := 0.0
						for kk := 0; kk < m.inner; kk++ {
							dot += m.a[i*m.inner+kk] * m.b[kk*m.cols+j]
						}
						m.dst[i*m.cols+j] = dot
					}
				}
			}
			return nil
		})

	case variant.LambdaSeq:
		return r.Repeat(func(int) error {
			for _, m := range mm {
				for idx := 0; idx < m.size(); idx++ {
					m.at(idx)
				}
			}
			return nil
		})

	case variant.BaseOpenMP, variant.LambdaOpenMP:
		return r.Repeat(func(int) error {
			for _, m := range mm {
				err := env.Pool.Run(forall.N(m.rows), func(_ int, c forall.Range) {
					for i := c.Begin; i < c.End; i++ {
						for j := 0; j < m.cols; j++ {
							m.at(i*m.cols + j)
						}
					}
				})
				if err != nil {
					return err
				}
			}
			return nil
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		return k.repeatForall(r, env.Policy(vid), mm)

	case variant.BaseOpenMPTarget:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		return k.repeatLaunch(r, rt, s, forall.DefaultTeams, mm)

	case variant.RAJAOpenMPTarget:
		rt, _, err := env.Device(vid)
		if err != nil {
			return err
		}
		return k.repeatForall(r, forall.TargetExec{Runtime: rt}, mm)
	}
	return kernel.ErrVariantNotDefined
}

// repeatForall runs the three products as abstraction-layer loops; a
// synchronous policy orders them.
func (k *ThreeMM) repeatForall(r *kernel.Run, pol forall.Policy, mm [3]matmul) error {
	return r.Repeat(func(int) error {
		for _, m := range mm {
			if err := forall.Forall(pol, forall.N(m.size()), m.at); err != nil {
				return err
			}
		}
		return nil
	})
}

func matmulKernel(m matmul) gpu.KernelFunc {
	n := m.size()
	return func(b *gpu.Block) {
		b.Threads1D(func(tx int) {
			if idx := b.Idx.X*b.Dim.X + tx; idx < n {
				i, j := idx/m.cols, idx%m.cols
				dot := 0.0
				for k := 0; k < m.inner; k++ {
					dot += m.a[i*m.inner+k] * m.b[k*m.cols+j]
				}
				m.dst[idx] = dot
			}
		})
	}
}

// repeatLaunch queues the three hand-written kernels on s; stream order
// keeps G's kernel behind E's and F's.
func (k *ThreeMM) repeatLaunch(r *kernel.Run, rt gpu.Runtime, s *gpu.Stream, bs int, mm [3]matmul) error {
	var fns [3]gpu.KernelFunc
	var cfgs [3]gpu.LaunchConfig
	for i, m := range mm {
		fns[i] = matmulKernel(m)
		cfgs[i] = gpu.LaunchConfig{Grid: gpu.D1(gpu.DivideCeil(m.size(), bs)), Block: gpu.D1(bs)}
	}
	return r.Repeat(func(int) error {
		for i := range fns {
			if err := rt.Launch(cfgs[i], s, fns[i]); err != nil {
				return err
			}
		}
		return rt.StreamSynchronize(s)
	})
}

func (k *ThreeMM) runGPU(r *kernel.Run, vid variant.ID, bs int) error {
	rt, s, err := k.Env().Device(vid)
	if err != nil {
		return err
	}
	mm := k.products()

	switch vid.Style() {
	case variant.Base:
		return k.repeatLaunch(r, rt, s, bs, mm)

	case variant.Lambda:
		return r.Repeat(func(int) error {
			for _, m := range mm {
				if err := kernel.LaunchForall(rt, s, bs, m.size(), m.at); err != nil {
					return err
				}
			}
			return rt.StreamSynchronize(s)
		})

	case variant.RAJA:
		pol := forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, Async: true}
		return r.Repeat(func(int) error {
			for _, m := range mm {
				if err := forall.Forall(pol, forall.N(m.size()), m.at); err != nil {
					return err
				}
			}
			return rt.StreamSynchronize(s)
		})
	}
	return kernel.ErrVariantNotDefined
}
