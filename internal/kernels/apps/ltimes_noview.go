// Package apps holds kernels lifted from application codes.
package apps

import (
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Dimensions of the discrete ordinates sweep. Zones make up the rest of the
// problem size.
const (
	numD = 64
	numG = 32
	numM = 25
)

// LTimesNoView applies the moment-to-discrete operator,
// phi[z][g][m] += ell[m][d] · psi[z][g][d], with raw index arithmetic.
type LTimesNoView struct {
	kernel.KernelBase

	numZ int

	phi, ell, psi *dataspace.Buffer[float64]
}

// NewLTimesNoView creates the Apps_LTIMES_NOVIEW kernel. The problem size
// is the length of phi and is rounded to whole zones.
func NewLTimesNoView(env *kernel.Env) *LTimesNoView {
	k := &LTimesNoView{KernelBase: kernel.NewBase(env, "Apps", "LTIMES_NOVIEW", 1000000, 50)}
	k.numZ = max(1, k.ActualProblemSize()/(numM*numG))
	k.SetActualProblemSize(numM * numG * k.numZ)

	z := int64(k.numZ)
	k.SetItsPerRep(numM * numG * z)
	k.SetKernelsPerRep(1)
	k.SetBytesPerRep(8*(2*numM*numG*z) + 8*(numD*numG*z) + 8*numD*numM)
	k.SetFLOPsPerRep(2 * numD * numM * numG * z)

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

// NumZ returns the number of zones.
func (k *LTimesNoView) NumZ() int { return k.numZ }

func (k *LTimesNoView) SetUp(vid variant.ID, _ int) error {
	env := k.Env()
	ds := env.Space(vid)
	var err error
	if k.phi, err = dataspace.AllocAndFill(env.Alloc, ds, numM*numG*k.numZ, 0.0); err != nil {
		return err
	}
	if k.ell, err = dataspace.AllocAndInit(env.Alloc, ds, numD*numM, kernel.InitReal); err != nil {
		return err
	}
	k.psi, err = dataspace.AllocAndInit(env.Alloc, ds, numD*numG*k.numZ, kernel.InitRealScaled(0.5))
	return err
}

func (k *LTimesNoView) UpdateChecksum(vid variant.ID, tune int) error {
	sum, err := kernel.BufferChecksum(k.Env().Alloc, k.phi)
	if err != nil {
		return err
	}
	k.AddChecksum(vid, tune, sum)
	return nil
}

func (k *LTimesNoView) TearDown(variant.ID, int) error {
	a := k.Env().Alloc
	err := dataspace.Free(a, k.phi)
	if e := dataspace.Free(a, k.ell); err == nil {
		err = e
	}
	if e := dataspace.Free(a, k.psi); err == nil {
		err = e
	}
	k.phi, k.ell, k.psi = nil, nil, nil
	return err
}

func (k *LTimesNoView) Tunings(vid variant.ID) []kernel.Tuning {
	return kernel.Default(func(r *kernel.Run) error { return k.run(r, vid) })
}

// body is one (z, g, m) point summed over d.
func ltimesBody(phi, ell, psi []float64) func(z, g, m int) {
	return func(z, g, m int) {
		out := m + g*numM + z*numM*numG
		for d := 0; d < numD; d++ {
			phi[out] += ell[d+m*numD] * psi[d+g*numD+z*numD*numG]
		}
	}
}

// ltimesKernel puts m on x threads, g on y threads and z on z blocks.
func ltimesKernel(phi, ell, psi []float64) gpu.KernelFunc {
	body := ltimesBody(phi, ell, psi)
	return func(b *gpu.Block) {
		z := b.Idx.Z
		b.Threads(func(t gpu.Dim3) { body(z, t.Y, t.X) })
	}
}

func (k *LTimesNoView) run(r *kernel.Run, vid variant.ID) error {
	env := k.Env()
	phi, ell, psi := k.phi.Data(), k.ell.Data(), k.psi.Data()
	numZ := k.numZ
	body := ltimesBody(phi, ell, psi)
	cfg := gpu.LaunchConfig{Grid: gpu.Dim3{X: 1, Y: 1, Z: numZ}, Block: gpu.D2(numM, numG)}

	switch vid {
	case variant.BaseSeq:
		return r.Repeat(func(int) error {
			for z := 0; z < numZ; z++ {
				for g := 0; g < numG; g++ {
					for m := 0; m < numM; m++ {
						for d := 0; d < numD; d++ {
							phi[m+g*numM+z*numM*numG] += ell[d+m*numD] * psi[d+g*numD+z*numD*numG]
						}
					}
				}
			}
			return nil
		})

	case variant.LambdaSeq:
		return r.Repeat(func(int) error {
			for z := 0; z < numZ; z++ {
				for g := 0; g < numG; g++ {
					for m := 0; m < numM; m++ {
						body(z, g, m)
					}
				}
			}
			return nil
		})

	case variant.BaseOpenMP, variant.LambdaOpenMP:
		return r.Repeat(func(int) error {
			return env.Pool.Run(forall.N(numZ), func(_ int, c forall.Range) {
				for z := c.Begin; z < c.End; z++ {
					for g := 0; g < numG; g++ {
						for m := 0; m < numM; m++ {
							body(z, g, m)
						}
					}
				}
			})
		})

	case variant.RAJASeq, variant.RAJAOpenMP:
		pol := env.Policy(vid)
		fn := ltimesKernel(phi, ell, psi)
		return r.Repeat(func(int) error {
			return forall.Launch(pol, cfg, fn)
		})

	case variant.BaseOpenMPTarget, variant.BaseCUDA, variant.BaseHIP:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		fn := ltimesKernel(phi, ell, psi)
		return r.Repeat(func(int) error {
			if err := rt.Launch(cfg, s, fn); err != nil {
				return err
			}
			return rt.StreamSynchronize(s)
		})

	case variant.LambdaCUDA, variant.LambdaHIP:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		lam := func(b *gpu.Block) {
			z := b.Idx.Z
			b.Threads(func(t gpu.Dim3) {
				if t.X < numM && t.Y < numG {
					body(z, t.Y, t.X)
				}
			})
		}
		return r.Repeat(func(int) error {
			if err := rt.Launch(cfg, s, lam); err != nil {
				return err
			}
			return rt.StreamSynchronize(s)
		})

	case variant.RAJAOpenMPTarget, variant.RAJACUDA, variant.RAJAHIP:
		rt, s, err := env.Device(vid)
		if err != nil {
			return err
		}
		var pol forall.Policy = forall.GPUExec{Runtime: rt, Stream: s, BlockSize: numM * numG}
		if vid.Backend() == variant.OpenMPTarget {
			pol = forall.TargetExec{Runtime: rt}
		}
		fn := ltimesKernel(phi, ell, psi)
		return r.Repeat(func(int) error {
			return forall.Launch(pol, cfg, fn)
		})
	}
	return kernel.ErrVariantNotDefined
}
