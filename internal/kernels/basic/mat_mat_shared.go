package basic

import (
	"math"

	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// tileSize is the edge of the square tiles MAT_MAT_SHARED stages through
// shared memory; one thread per tile element.
const tileSize = 16

const tileElems = tileSize * tileSize

// MatMatShared multiplies two N×N matrices tile by tile through shared
// memory.
type MatMatShared struct {
	kernel.KernelBase

	n       int
	a, b, c *dataspace.Buffer[float64]
}

// NewMatMatShared creates the Basic_MAT_MAT_SHARED kernel. The problem size
// is the number of matrix elements and is rounded to a square.
func NewMatMatShared(env *kernel.Env) *MatMatShared {
	k := &MatMatShared{KernelBase: kernel.NewBase(env, "Basic", "MAT_MAT_SHARED", 1000*1000, 5)}
	k.n = max(1, int(math.Sqrt(float64(k.ActualProblemSize()))))
	k.SetActualProblemSize(k.n * k.n)

	n := int64(k.n)
	k.SetItsPerRep(n * n)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(3 * 8 * n * n)
	k.SetFLOPsPerRep(2 * n * n * n)

	k.SetUsesFeature(variant.Launch)

	k.SetVariantsDefined(
		variant.BaseSeq, variant.LambdaSeq, variant.RAJASeq,
		variant.BaseOpenMP, variant.LambdaOpenMP, variant.RAJAOpenMP,
		variant.BaseOpenMPTarget, variant.RAJAOpenMPTarget,
		variant.BaseCUDA, variant.LambdaCUDA, variant.RAJACUDA,
		variant.BaseHIP, variant.LambdaHIP, variant.RAJAHIP,
	)
	return k
}

// N returns the matrix order.
func (k *MatMatShared) N() int { return k.n }

func (k *MatMatShared) SetUp(vid variant.ID, _ int) error {
	env := k.Env()
	nn := k.n * k.n
	ds := env.Space(vid)
	var err error
	if k.a, err = dataspace.AllocAndInit(env.Alloc, ds, nn, kernel.InitReal); err != nil {
		return err
	}
	if k.b, err = dataspace.AllocAndInit(env.Alloc, ds, nn, kernel.InitRealScaled(2)); err != nil {
		return err
	}
	k.c, err = dataspace.AllocAndFill(env.Alloc, ds, nn, 0.0)
	return err
}

// C returns a host copy of the product.
func (k *MatMatShared) C() ([]float64, error) {
	return dataspace.ToHost(k.Env().Alloc, k.c)
}

func (k *MatMatShared) UpdateChecksum(vid variant.ID, tune int) error {
	sum, err := kernel.BufferChecksum(k.Env().Alloc, k.c)
	if err != nil {
		return err
	}
	k.AddChecksum(vid, tune, sum)
	return nil
}

func (k *MatMatShared) TearDown(variant.ID, int) error {
	a := k.Env().Alloc
	err := dataspace.Free(a, k.a)
	if berr := dataspace.Free(a, k.b); err == nil {
		err = berr
	}
	if cerr := dataspace.Free(a, k.c); err == nil {
		err = cerr
	}
	k.a, k.b, k.c = nil, nil, nil
	return err
}

func (k *MatMatShared) Tunings(vid variant.ID) []kernel.Tuning {
	return kernel.Default(func(r *kernel.Run) error { return k.run(r, vid) })
}

// launchConfig is one thread per tile element and one block per tile of C.
func (k *MatMatShared) launchConfig() gpu.LaunchConfig {
	nt := gpu.DivideCeil(k.n, tileSize)
	return gpu.LaunchConfig{
		Grid:      gpu.D2(nt, nt),
		Block:     gpu.D2(tileSize, tileSize),
		SharedMem: 3 * tileElems * 8,
	}
}

// matMatSharedKernel computes one tile of C per block: clear the
// accumulator tile, then for every tile step load a tile of A and B and
// accumulate their product, then store.
func matMatSharedKernel(n int, a, b, c []float64) gpu.KernelFunc {
	nsteps := (tileSize + n - 1) / tileSize
	return func(blk *gpu.Block) {
		sh := gpu.Shared[float64](blk, 0, 3*tileElems)
		as, bs, cs := sh[:tileElems], sh[tileElems:2*tileElems], sh[2*tileElems:]
		bx, by := blk.Idx.X, blk.Idx.Y

		blk.Threads(func(t gpu.Dim3) { cs[t.Y*tileSize+t.X] = 0 })
		for step := 0; step < nsteps; step++ {
			blk.Threads(func(t gpu.Dim3) {
				row, col := by*tileSize+t.Y, bx*tileSize+t.X
				as[t.Y*tileSize+t.X], bs[t.Y*tileSize+t.X] = 0, 0
				if kk := step*tileSize + t.X; kk < n && row < n {
					as[t.Y*tileSize+t.X] = a[row*n+kk]
				}
				if kk := step*tileSize + t.Y; kk < n && col < n {
					bs[t.Y*tileSize+t.X] = b[kk*n+col]
				}
			})
			blk.Threads(func(t gpu.Dim3) {
				sum := cs[t.Y*tileSize+t.X]
				for m := 0; m < tileSize; m++ {
					sum += as[t.Y*tileSize+m] * bs[m*tileSize+t.X]
				}
				cs[t.Y*tileSize+t.X] = sum
			})
		}
		blk.Threads(func(t gpu.Dim3) {
			if row, col := by*tileSize+t.Y, bx*tileSize+t.X; row < n && col < n {
				c[row*n+col] = cs[t.Y*tileSize+t.X]
			}
		})
	}
}

// hostTile is the hand-written host form of one block of the kernel.
func hostTile(n, bx, by int, a, b, c []float64) {
	var as, bs, cs [tileSize][tileSize]float64
	for step := 0; step < (tileSize+n-1)/tileSize; step++ {
		for ty := 0; ty < tileSize; ty++ {
			for tx := 0; tx < tileSize; tx++ {
				row, col := by*tileSize+ty, bx*tileSize+tx
				as[ty][tx], bs[ty][tx] = 0, 0
				if kk := step*tileSize + tx; kk < n && row < n {
					as[ty][tx] = a[row*n+kk]
				}
				if kk := step*tileSize + ty; kk < n && col < n {
					bs[ty][tx] = b[kk*n+col]
				}
			}
		}
		for ty := 0; ty < tileSize; ty++ {
			for tx := 0; tx < tileSize; tx++ {
				for m := 0; m < tileSize; m++ {
					cs[ty][tx] += as[ty][m] * bs[m][tx]
				}
			}
		}
	}
	for ty := 0; ty < tileSize; ty++ {
		for tx := 0; tx < tileSize; tx++ {
			if row, col := by*tileSize+ty, bx*tileSize+tx; row < n && col < n {
				c[row*n+col] = cs[ty][tx]
			}
		}
	}
}

func (k *MatMatShared) run(r *kernel.Run, vid variant.ID) error {
	env := k.Env()
	n := k.n
	a, b, c := k.a.Data(), k.b.Data(), k.c.Data()
	cfg := k.launchConfig()
	nt := cfg.Grid.X

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			for by := 0; by < nt; by++ {
				for bx := 0; bx < nt; bx++ {
					hostTile(n, bx, by, a, b, c)
				}
			}
			return nil
		})

	case variant.BaseOpenMP:
		return r.Repeat(func(int) error {
			return env.Pool.Run(forall.N(nt*nt), func(_ int, chunk forall.Range) {
				for t := chunk.Begin; t < chunk.End; t++ {
					hostTile(n, t%nt, t/nt, a, b, c)
				}
			})
		})

	case variant.LambdaSeq, variant.LambdaOpenMP:
		tile := func(t int) { hostTile(n, t%nt, t/nt, a, b, c) }
		return r.Repeat(func(int) error {
			return forall.Forall(env.Policy(vid), forall.N(nt*nt), tile)
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		fn := matMatSharedKernel(n, a, b, c)
		return r.Repeat(func(int) error {
			return forall.Launch(env.Policy(vid), cfg, fn)
		})

	case variant.BaseOpenMPTarget, variant.BaseCUDA, variant.BaseHIP,
		variant.LambdaCUDA, variant.LambdaHIP:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		fn := matMatSharedKernel(n, a, b, c)
		if vid.Style() == variant.Lambda {
			body := fn
			fn = func(blk *gpu.Block) {
				if blk.Idx.X < nt && blk.Idx.Y < nt {
					body(blk)
				}
			}
		}
		return r.Repeat(func(int) error {
			if err := rt.Launch(cfg, s, fn); err != nil {
				return err
			}
			return rt.StreamSynchronize(s)
		})

	case variant.RAJAOpenMPTarget, variant.RAJACUDA, variant.RAJAHIP:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		var pol forall.Policy = forall.GPUExec{Runtime: rt, Stream: s, BlockSize: tileElems}
		if vid.Backend() == variant.OpenMPTarget {
			pol = forall.TargetExec{Runtime: rt, Teams: tileElems}
		}
		fn := matMatSharedKernel(n, a, b, c)
		return r.Repeat(func(int) error {
			return forall.Launch(pol, cfg, fn)
		})
	}
	return kernel.ErrVariantNotDefined
}
