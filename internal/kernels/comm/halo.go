// Package comm holds the distributed halo exchange kernels. Ranks are
// goroutines of an in-process world; each owns a cube of the global grid
// surrounded by ghost layers.
package comm

import (
	"context"
	"fmt"
	"math"

	mpi "github.com/fxnlabs/perfsuite/internal/comm"
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// HaloExchange packs the faces, edges and corners of every rank's cube,
// sends them to the 26 neighbours and unpacks what arrives into the ghost
// layers. The fused form packs and unpacks all neighbours in one launch
// each.
type HaloExchange struct {
	kernel.KernelBase

	fused   bool
	div     mpi.Division
	dim     int
	halo    int
	numVars int

	world *mpi.World
	ranks []*rankData
}

// rankData is what one rank owns for a run.
type rankData struct {
	rank      int
	neighbors []mpi.Neighbor
	vars      []*dataspace.Buffer[float64]

	packList, unpackList [mpi.NumNeighbors]*dataspace.Buffer[int]
	packBuf, unpackBuf   [mpi.NumNeighbors]*dataspace.Buffer[float64]
	// sendBuf and recvBuf stage messages through host memory; nil unless the
	// message space is CopyStaging.
	sendBuf, recvBuf [mpi.NumNeighbors]*dataspace.Buffer[float64]

	// stream is the rank's own device stream; nil on host variants.
	stream *gpu.Stream
}

// NewHaloExchange creates the Comm_HALOEXCHANGE kernel.
func NewHaloExchange(env *kernel.Env) *HaloExchange {
	return newHaloExchange(env, "HALOEXCHANGE", false)
}

// NewHaloExchangeFused creates the Comm_HALOEXCHANGE_FUSED kernel.
func NewHaloExchangeFused(env *kernel.Env) *HaloExchange {
	return newHaloExchange(env, "HALOEXCHANGE_FUSED", true)
}

func newHaloExchange(env *kernel.Env, name string, fused bool) *HaloExchange {
	k := &HaloExchange{
		KernelBase: kernel.NewBase(env, "Comm", name, 125000, 200),
		fused:      fused,
		div:        env.Comm.Division,
		halo:       max(1, env.Comm.HaloWidth),
		numVars:    max(1, env.Comm.NumVars),
	}
	k.dim = max(1, int(math.Round(math.Cbrt(float64(k.ActualProblemSize())))))
	k.halo = min(k.halo, k.dim)
	k.SetActualProblemSize(k.dim * k.dim * k.dim)

	var elems int64
	for _, nb := range mpi.Directions() {
		elems += int64(len(haloIndices(k.dim, k.halo, nb, true)))
	}
	elems *= int64(k.numVars)
	k.SetItsPerRep(elems)
	if fused {
		k.SetKernelsPerRep(2)
	} else {
		k.SetKernelsPerRep(2 * mpi.NumNeighbors * int64(k.numVars))
	}
	// Read and write on pack, then again on unpack.
	k.SetBytesPerRep(2 * 2 * 8 * elems)
	k.SetFLOPsPerRep(0)

	k.SetUsesFeature(variant.Forall)
	k.SetUsesFeature(variant.MPI)
	if fused {
		k.SetUsesFeature(variant.Workgroup)
	}

	if env.Comm.Valid {
		k.SetVariantsDefined(
			variant.BaseSeq, variant.LambdaSeq, variant.RAJASeq,
			variant.BaseOpenMP, variant.LambdaOpenMP, variant.RAJAOpenMP,
			variant.BaseOpenMPTarget, variant.RAJAOpenMPTarget,
			variant.BaseCUDA, variant.LambdaCUDA, variant.RAJACUDA,
			variant.BaseHIP, variant.LambdaHIP, variant.RAJAHIP,
		)
	}
	return k
}

// Dim returns the interior edge length of each rank's cube.
func (k *HaloExchange) Dim() int { return k.dim }

// Ranks returns the number of ranks exchanged between.
func (k *HaloExchange) Ranks() int { return k.div.Size() }

// extent is the edge length including both ghost layers.
func (k *HaloExchange) extent() int { return k.dim + 2*k.halo }

// haloIndices lists, x fastest, the cells of a cube of interior edge dim
// and ghost width h that are sent toward offset (pack) or received from it
// (unpack).
func haloIndices(dim, h int, offset [3]int, pack bool) []int {
	var lo, hi [3]int
	for a, o := range offset {
		switch {
		case o < 0 && pack:
			lo[a], hi[a] = h, 2*h
		case o < 0:
			lo[a], hi[a] = 0, h
		case o > 0 && pack:
			lo[a], hi[a] = dim, dim+h
		case o > 0:
			lo[a], hi[a] = dim+h, dim+2*h
		default:
			lo[a], hi[a] = h, dim+h
		}
	}
	ext := dim + 2*h
	out := make([]int, 0, (hi[0]-lo[0])*(hi[1]-lo[1])*(hi[2]-lo[2]))
	for z := lo[2]; z < hi[2]; z++ {
		for y := lo[1]; y < hi[1]; y++ {
			for x := lo[0]; x < hi[0]; x++ {
				out = append(out, x+y*ext+z*ext*ext)
			}
		}
	}
	return out
}

// varInit fills variable v of rank r, ghost cells included.
func varInit(r, v, numVars int) func(i int) float64 {
	off := float64(r*numVars + v)
	return func(i int) float64 { return off + kernel.InitReal(i) }
}

// staged reports whether messages go through separate host buffers.
func (k *HaloExchange) staged(vid variant.ID) bool {
	return k.Env().CommSpace(vid) == dataspace.CopyStaging
}

func (k *HaloExchange) SetUp(vid variant.ID, _ int) error {
	env := k.Env()
	world, err := mpi.NewWorld(k.div.Size())
	if err != nil {
		return err
	}
	k.world = world

	ds := env.Space(vid)
	msgSpace := env.CommSpace(vid)
	var hostSpace dataspace.DataSpace
	if k.staged(vid) {
		msgSpace = ds
		hostSpace = dataspace.HostAccessibleDataSpace(ds)
	}
	var rt gpu.Runtime
	if _, onDevice := kernel.RuntimeKind(vid); onDevice {
		if rt, err = env.Runtime(vid); err != nil {
			return err
		}
	}

	cells := k.extent() * k.extent() * k.extent()
	k.ranks = make([]*rankData, k.div.Size())
	for r := range k.ranks {
		rd := &rankData{rank: r, neighbors: k.div.Neighbors(r)}
		k.ranks[r] = rd
		for v := 0; v < k.numVars; v++ {
			buf, err := dataspace.AllocAndInit(env.Alloc, ds, cells, varInit(r, v, k.numVars))
			if err != nil {
				return err
			}
			rd.vars = append(rd.vars, buf)
		}
		for _, nb := range rd.neighbors {
			l := nb.Index
			pack := haloIndices(k.dim, k.halo, nb.Offset, true)
			unpack := haloIndices(k.dim, k.halo, nb.Offset, false)
			if rd.packList[l], err = dataspace.AllocAndInit(env.Alloc, ds, len(pack), func(i int) int { return pack[i] }); err != nil {
				return err
			}
			if rd.unpackList[l], err = dataspace.AllocAndInit(env.Alloc, ds, len(unpack), func(i int) int { return unpack[i] }); err != nil {
				return err
			}
			if rd.packBuf[l], err = dataspace.Alloc[float64](env.Alloc, msgSpace, len(pack)*k.numVars); err != nil {
				return err
			}
			if rd.unpackBuf[l], err = dataspace.Alloc[float64](env.Alloc, msgSpace, len(unpack)*k.numVars); err != nil {
				return err
			}
			if !k.staged(vid) {
				continue
			}
			if rd.sendBuf[l], err = dataspace.Alloc[float64](env.Alloc, hostSpace, len(pack)*k.numVars); err != nil {
				return err
			}
			if rd.recvBuf[l], err = dataspace.Alloc[float64](env.Alloc, hostSpace, len(unpack)*k.numVars); err != nil {
				return err
			}
		}
		if rt != nil {
			if rd.stream, err = rt.NewStream(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (k *HaloExchange) UpdateChecksum(vid variant.ID, tune int) error {
	a := k.Env().Alloc
	sum := 0.0
	for _, rd := range k.ranks {
		for _, v := range rd.vars {
			s, err := kernel.BufferChecksum(a, v)
			if err != nil {
				return err
			}
			sum += s
		}
	}
	k.AddChecksum(vid, tune, sum)
	return nil
}

// Vars returns host copies of every rank's variables, indexed [rank][var].
func (k *HaloExchange) Vars() ([][][]float64, error) {
	a := k.Env().Alloc
	out := make([][][]float64, len(k.ranks))
	for r, rd := range k.ranks {
		for _, v := range rd.vars {
			h, err := dataspace.ToHost(a, v)
			if err != nil {
				return nil, err
			}
			out[r] = append(out[r], h)
		}
	}
	return out, nil
}

func (k *HaloExchange) TearDown(vid variant.ID, _ int) error {
	env := k.Env()
	a := env.Alloc
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for _, rd := range k.ranks {
		if rd == nil {
			continue
		}
		for _, v := range rd.vars {
			keep(dataspace.Free(a, v))
		}
		for l := 0; l < mpi.NumNeighbors; l++ {
			keep(dataspace.Free(a, rd.packList[l]))
			keep(dataspace.Free(a, rd.unpackList[l]))
			keep(dataspace.Free(a, rd.packBuf[l]))
			keep(dataspace.Free(a, rd.unpackBuf[l]))
			keep(dataspace.Free(a, rd.sendBuf[l]))
			keep(dataspace.Free(a, rd.recvBuf[l]))
		}
		if rd.stream != nil {
			rt, err := env.Runtime(vid)
			keep(err)
			if err == nil {
				keep(rt.StreamDestroy(rd.stream))
			}
		}
	}
	k.ranks, k.world = nil, nil
	return first
}

func (k *HaloExchange) Tunings(vid variant.ID) []kernel.Tuning {
	switch vid.Backend() {
	case variant.CUDA, variant.HIP:
		return kernel.BlockTunings(k.Env(), func(bs int) []kernel.Tuning {
			return []kernel.Tuning{{Name: kernel.BlockName(bs), BlockSize: bs,
				Run: func(r *kernel.Run) error { return k.run(r, vid, bs) }}}
		})
	case variant.OpenMPTarget:
		return kernel.Default(func(r *kernel.Run) error { return k.run(r, vid, forall.DefaultTeams) })
	default:
		return kernel.Default(func(r *kernel.Run) error { return k.run(r, vid, 0) })
	}
}

// run is one timed region; every repetition is a full exchange across the
// world.
func (k *HaloExchange) run(r *kernel.Run, vid variant.ID, bs int) error {
	env := k.Env()
	var rt gpu.Runtime
	if _, onDevice := kernel.RuntimeKind(vid); onDevice {
		var err error
		if rt, err = env.Runtime(vid); err != nil {
			return err
		}
	}
	execs := make([]loops, len(k.ranks))
	for i, rd := range k.ranks {
		lp, err := newLoops(env, vid, bs, rt, rd.stream)
		if err != nil {
			return err
		}
		execs[i] = lp
	}
	exchange := k.exchange
	if k.fused {
		exchange = k.exchangeFused
	}
	return r.Repeat(func(int) error {
		return k.world.Run(context.Background(), func(c *mpi.Comm) error {
			rd := k.ranks[c.Rank()]
			if err := exchange(c, rd, execs[c.Rank()]); err != nil {
				return fmt.Errorf("rank %d: %w", c.Rank(), err)
			}
			return nil
		})
	})
}
