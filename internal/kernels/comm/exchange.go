package comm

import (
	mpi "github.com/fxnlabs/perfsuite/internal/comm"
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// loops is how one variant runs a rank's pack and unpack loops.
type loops struct {
	// each runs body for every i in [0, n).
	each func(n int, body func(i int)) error
	// group runs body(item, i) for every i in [0, lens[item]) of every item
	// as a single launch.
	group func(lens []int, body func(item, i int)) error
	// sync waits for work queued on the rank's stream; nil on the host.
	sync func() error
}

func (lp loops) synchronize() error {
	if lp.sync == nil {
		return nil
	}
	return lp.sync()
}

func seqLoops() loops {
	return loops{
		each: func(n int, body func(int)) error {
			for i := 0; i < n; i++ {
				body(i)
			}
			return nil
		},
		group: func(lens []int, body func(int, int)) error {
			for item, n := range lens {
				for i := 0; i < n; i++ {
					body(item, i)
				}
			}
			return nil
		},
	}
}

func poolLoops(pool *forall.Pool) loops {
	return loops{
		each: func(n int, body func(int)) error {
			return pool.Run(forall.N(n), func(_ int, c forall.Range) {
				for i := c.Begin; i < c.End; i++ {
					body(i)
				}
			})
		},
		group: func(lens []int, body func(int, int)) error {
			return pool.Run(forall.N(len(lens)), func(_ int, c forall.Range) {
				for item := c.Begin; item < c.End; item++ {
					for i := 0; i < lens[item]; i++ {
						body(item, i)
					}
				}
			})
		},
	}
}

// workgroup lays a group out as one grid: x blocks stride over the longest
// item and y picks the item.
func workgroup(lens []int, bs int, body func(item, i int)) (gpu.LaunchConfig, gpu.KernelFunc) {
	longest := 0
	for _, n := range lens {
		longest = max(longest, n)
	}
	cfg := gpu.LaunchConfig{
		Grid:  gpu.D2(max(1, gpu.DivideCeil(longest, bs)), len(lens)),
		Block: gpu.D1(bs),
	}
	return cfg, func(b *gpu.Block) {
		item := b.Idx.Y
		b.Threads1D(func(tx int) {
			if i := b.Idx.X*bs + tx; i < lens[item] {
				body(item, i)
			}
		})
	}
}

func deviceLoops(rt gpu.Runtime, s *gpu.Stream, bs int) loops {
	return loops{
		each: func(n int, body func(int)) error {
			return kernel.LaunchForall(rt, s, bs, n, body)
		},
		group: func(lens []int, body func(int, int)) error {
			cfg, fn := workgroup(lens, bs, body)
			return rt.Launch(cfg, s, fn)
		},
		sync: func() error { return rt.StreamSynchronize(s) },
	}
}

// policyLoops runs through the abstraction layer. bs zero keeps groups on
// the host as a loop over items.
func policyLoops(pol forall.Policy, bs int, sync func() error) loops {
	return loops{
		each: func(n int, body func(int)) error {
			return forall.Forall(pol, forall.N(n), body)
		},
		group: func(lens []int, body func(int, int)) error {
			if bs == 0 {
				return forall.Forall(pol, forall.N(len(lens)), func(item int) {
					for i := 0; i < lens[item]; i++ {
						body(item, i)
					}
				})
			}
			cfg, fn := workgroup(lens, bs, body)
			return forall.Launch(pol, cfg, fn)
		},
		sync: sync,
	}
}

func newLoops(env *kernel.Env, vid variant.ID, bs int, rt gpu.Runtime, s *gpu.Stream) (loops, error) {
	switch vid {
	case variant.BaseSeq, variant.LambdaSeq:
		return seqLoops(), nil
	case variant.BaseOpenMP, variant.LambdaOpenMP:
		return poolLoops(env.Pool), nil
	case variant.RAJASeq, variant.RAJAOpenMP:
		return policyLoops(env.Policy(vid), 0, nil), nil
	case variant.BaseOpenMPTarget, variant.BaseCUDA, variant.BaseHIP,
		variant.LambdaCUDA, variant.LambdaHIP:
		return deviceLoops(rt, s, bs), nil
	case variant.RAJACUDA, variant.RAJAHIP:
		pol := forall.GPUExec{Runtime: rt, Stream: s, BlockSize: bs, Async: true}
		return policyLoops(pol, bs, func() error { return rt.StreamSynchronize(s) }), nil
	case variant.RAJAOpenMPTarget:
		pol := forall.TargetExec{Runtime: rt, Stream: s, Teams: bs}
		return policyLoops(pol, bs, func() error { return rt.StreamSynchronize(s) }), nil
	}
	return loops{}, kernel.ErrVariantNotDefined
}

// pack gathers every variable's cells for direction l into its message.
func (k *HaloExchange) pack(rd *rankData, l int, lp loops) error {
	list := rd.packList[l].Data()
	buf := rd.packBuf[l].Data()
	n := len(list)
	for v, vb := range rd.vars {
		vals, out := vb.Data(), buf[v*n:(v+1)*n]
		if err := lp.each(n, func(i int) { out[i] = vals[list[i]] }); err != nil {
			return err
		}
	}
	return nil
}

// unpack scatters the message from direction l into the ghost cells.
func (k *HaloExchange) unpack(rd *rankData, l int, lp loops) error {
	list := rd.unpackList[l].Data()
	buf := rd.unpackBuf[l].Data()
	n := len(list)
	for v, vb := range rd.vars {
		vals, in := vb.Data(), buf[v*n:(v+1)*n]
		if err := lp.each(n, func(i int) { vals[list[i]] = in[i] }); err != nil {
			return err
		}
	}
	return nil
}

// group is every (direction, variable) pair of a rank as one work list.
func (k *HaloExchange) group(rd *rankData, pack bool) ([]int, func(item, i int)) {
	nv := k.numVars
	var lists [mpi.NumNeighbors][]int
	var bufs [mpi.NumNeighbors][]float64
	for l := range lists {
		if pack {
			lists[l], bufs[l] = rd.packList[l].Data(), rd.packBuf[l].Data()
		} else {
			lists[l], bufs[l] = rd.unpackList[l].Data(), rd.unpackBuf[l].Data()
		}
	}
	vars := make([][]float64, nv)
	for v, vb := range rd.vars {
		vars[v] = vb.Data()
	}
	lens := make([]int, mpi.NumNeighbors*nv)
	for item := range lens {
		lens[item] = len(lists[item/nv])
	}
	if pack {
		return lens, func(item, i int) {
			l, v := item/nv, item%nv
			bufs[l][v*lens[item]+i] = vars[v][lists[l][i]]
		}
	}
	return lens, func(item, i int) {
		l, v := item/nv, item%nv
		vars[v][lists[l][i]] = bufs[l][v*lens[item]+i]
	}
}

// stageOut queues the copy of direction l's packed message to its host
// buffer, if messages are staged.
func (rd *rankData) stageOut(a *dataspace.Allocator, l int) error {
	if rd.sendBuf[l] == nil {
		return nil
	}
	return dataspace.CopyAsync(a, rd.sendBuf[l], rd.packBuf[l], rd.stream)
}

// stageIn queues the copy of direction l's received message to the buffer
// unpack reads, if messages are staged.
func (rd *rankData) stageIn(a *dataspace.Allocator, l int) error {
	if rd.recvBuf[l] == nil {
		return nil
	}
	return dataspace.CopyAsync(a, rd.unpackBuf[l], rd.recvBuf[l], rd.stream)
}

func (rd *rankData) outgoing(l int) []float64 {
	if rd.sendBuf[l] != nil {
		return rd.sendBuf[l].Data()
	}
	return rd.packBuf[l].Data()
}

func (rd *rankData) incoming(l int) []float64 {
	if rd.recvBuf[l] != nil {
		return rd.recvBuf[l].Data()
	}
	return rd.unpackBuf[l].Data()
}

// exchange posts every receive, then packs and sends one direction at a
// time, and unpacks messages in the order they arrive.
func (k *HaloExchange) exchange(c *mpi.Comm, rd *rankData, lp loops) error {
	a := k.Env().Alloc
	recvs := make([]*mpi.Request, len(rd.neighbors))
	sends := make([]*mpi.Request, len(rd.neighbors))
	for l, nb := range rd.neighbors {
		recvs[l] = c.Irecv(rd.incoming(l), nb.Rank, nb.Opposite)
	}

	for l, nb := range rd.neighbors {
		if err := k.pack(rd, l, lp); err != nil {
			return err
		}
		if err := rd.stageOut(a, l); err != nil {
			return err
		}
		if err := lp.synchronize(); err != nil {
			return err
		}
		sends[l] = c.Isend(rd.outgoing(l), nb.Rank, l)
	}

	for range rd.neighbors {
		l, err := mpi.WaitAny(recvs)
		if err != nil {
			return err
		}
		if err := rd.stageIn(a, l); err != nil {
			return err
		}
		if err := k.unpack(rd, l, lp); err != nil {
			return err
		}
	}
	if err := lp.synchronize(); err != nil {
		return err
	}
	return mpi.WaitAll(sends)
}

// exchangeFused packs all directions in one launch, sends everything,
// waits for every message and unpacks them in one launch.
func (k *HaloExchange) exchangeFused(c *mpi.Comm, rd *rankData, lp loops) error {
	a := k.Env().Alloc
	recvs := make([]*mpi.Request, len(rd.neighbors))
	sends := make([]*mpi.Request, len(rd.neighbors))
	for l, nb := range rd.neighbors {
		recvs[l] = c.Irecv(rd.incoming(l), nb.Rank, nb.Opposite)
	}

	if err := lp.group(k.group(rd, true)); err != nil {
		return err
	}
	for l := range rd.neighbors {
		if err := rd.stageOut(a, l); err != nil {
			return err
		}
	}
	if err := lp.synchronize(); err != nil {
		return err
	}
	for l, nb := range rd.neighbors {
		sends[l] = c.Isend(rd.outgoing(l), nb.Rank, l)
	}

	if err := mpi.WaitAll(recvs); err != nil {
		return err
	}
	for l := range rd.neighbors {
		if err := rd.stageIn(a, l); err != nil {
			return err
		}
	}
	if err := lp.group(k.group(rd, false)); err != nil {
		return err
	}
	if err := lp.synchronize(); err != nil {
		return err
	}
	return mpi.WaitAll(sends)
}
