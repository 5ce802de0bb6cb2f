package forall

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

func newRuntime(t *testing.T) gpu.Runtime {
	t.Helper()
	rt := gpu.NewSimRuntime(gpu.CUDA, gpu.DefaultSimProps(), nil)
	require.NoError(t, rt.Initialize())
	t.Cleanup(func() { _ = rt.Cleanup() })
	return rt
}

// policies returns every policy shape worth covering, named for subtests.
func policies(t *testing.T) map[string]Policy {
	rt := newRuntime(t)
	pols := map[string]Policy{
		"seq":       SeqExec{},
		"parallel":  ParallelExec{Pool: NewPool(4)},
		"parallel1": ParallelExec{Pool: NewPool(1)},
		"target":    TargetExec{Runtime: rt},
	}
	for _, bs := range []int{64, 128, 256, 512, 1024} {
		pols[fmt.Sprintf("block_%d", bs)] = GPUExec{Runtime: rt, BlockSize: bs}
		pols[fmt.Sprintf("occgs_%d", bs)] = GPUExec{Runtime: rt, BlockSize: bs, OccCalc: true}
		pols[fmt.Sprintf("device_%d", bs)] = GPUExec{Runtime: rt, BlockSize: bs, Strategy: Device}
	}
	return pols
}

func TestForall_CoversRange(t *testing.T) {
	r := Range{Begin: 3, End: 1003}
	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			out := make([]int32, r.End)
			require.NoError(t, Forall(pol, r, func(i int) { out[i]++ }))
			for i, v := range out {
				if i < r.Begin {
					require.Zero(t, v, "index %d", i)
				} else {
					require.Equal(t, int32(1), v, "index %d", i)
				}
			}
		})
	}
}

func TestReduce_SumOfOnes(t *testing.T) {
	ones := make([]float64, 1024)
	for i := range ones {
		ones[i] = 1
	}
	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			got, err := Reduce(pol, N(len(ones)), Sum[float64](), func(i int, acc *float64) { *acc += ones[i] })
			require.NoError(t, err)
			assert.Equal(t, 1024.0, got)
		})
	}
}

func TestReduce_InvariantToBlockSize(t *testing.T) {
	// 1000 is not a multiple of any block size
	const n = 1000
	x := make([]int64, n)
	for i := range x {
		x[i] = int64((i*7919)%1013) - 500
	}
	want, err := Reduce(SeqExec{}, N(n), Sum[int64](), func(i int, acc *int64) { *acc += x[i] })
	require.NoError(t, err)

	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			got, err := Reduce(pol, N(n), Sum[int64](), func(i int, acc *int64) { *acc += x[i] })
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestReduce_MinMax(t *testing.T) {
	x := []float64{5, 3, 9, 1}
	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			got, err := ReduceN(pol, N(len(x)), []Reduction[float64]{Min[float64](), Max[float64]()},
				func(i int, acc []float64) {
					acc[0] = min(acc[0], x[i])
					acc[1] = max(acc[1], x[i])
				})
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 9}, got)
		})
	}
}

func TestReduce_DevicePartialsReused(t *testing.T) {
	sim := newRuntime(t).(*gpu.SimRuntime)
	p := &Partials{}
	pol := GPUExec{Runtime: sim, BlockSize: 128, Strategy: Device, Partials: p}
	reds := []Reduction[float64]{Sum[float64](), Max[float64]()}
	body := func(i int, acc []float64) {
		acc[0] += 1
		acc[1] = max(acc[1], float64(i))
	}

	require.NoError(t, ReservePartials[float64](pol, 1000, len(reds)))
	addr, inUse := p.ptr.Addr(), sim.MemoryInUse()
	assert.Positive(t, inUse)
	for rep := 0; rep < 5; rep++ {
		got, err := ReduceN(pol, N(1000), reds, body)
		require.NoError(t, err)
		assert.Equal(t, []float64{1000, 999}, got)
		assert.Equal(t, addr, p.ptr.Addr(), "rep %d reallocated", rep)
		assert.Equal(t, inUse, sim.MemoryInUse(), "rep %d", rep)
	}

	// a wider grid grows the buffer
	got, err := ReduceN(pol, N(5000), reds, body)
	require.NoError(t, err)
	assert.Equal(t, []float64{5000, 4999}, got)
	assert.Greater(t, sim.MemoryInUse(), inUse)

	require.NoError(t, p.Free())
	assert.Zero(t, sim.MemoryInUse())
	require.NoError(t, ReservePartials[float64](GPUExec{Runtime: sim, BlockSize: 128}, 1000, 2), "no partials to reserve")
}

func TestReduce_WithInit(t *testing.T) {
	got, err := Reduce(SeqExec{}, N(4), Sum[float64]().WithInit(10), func(i int, acc *float64) { *acc += float64(i) })
	require.NoError(t, err)
	assert.Equal(t, 16.0, got)

	got, err = Reduce(SeqExec{}, N(4), Min[float64]().WithInit(-1), func(i int, acc *float64) { *acc = min(*acc, float64(i)) })
	require.NoError(t, err)
	assert.Equal(t, -1.0, got)
}

func TestReduce_EmptyRange(t *testing.T) {
	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			got, err := Reduce(pol, Range{Begin: 5, End: 5}, Max[float64](), func(i int, acc *float64) { *acc = 1 })
			require.NoError(t, err)
			assert.True(t, math.IsInf(got, -1))
		})
	}
}

func TestIdentities(t *testing.T) {
	assert.Equal(t, int32(math.MaxInt32), Min[int32]().Identity())
	assert.Equal(t, int32(math.MinInt32), Max[int32]().Identity())
	assert.Equal(t, uint8(0), Max[uint8]().Identity())
	assert.True(t, math.IsInf(float64(Min[float32]().Identity()), 1))
	assert.Equal(t, 0.0, Sum[float64]().Identity())
}

func TestGPUExec_Errors(t *testing.T) {
	err := Forall(GPUExec{BlockSize: 64}, N(10), func(int) {})
	assert.ErrorIs(t, err, gpu.ErrNotAvailable)

	rt := newRuntime(t)
	err = Forall(GPUExec{Runtime: rt, BlockSize: 4096}, N(10), func(int) {})
	assert.ErrorIs(t, err, gpu.ErrLaunchFailure)

	_, err = Reduce(GPUExec{Runtime: rt, BlockSize: 64}, N(10), Sum[float64](), func(i int, acc *float64) {
		panic("bad index")
	})
	assert.ErrorIs(t, err, gpu.ErrLaunchFailure)
}

func TestPool_Panic(t *testing.T) {
	err := NewPool(3).Run(N(9), func(w int, c Range) {
		if w == 1 {
			panic("boom")
		}
	})
	assert.ErrorContains(t, err, "boom")
}

func TestLaunch_BlockSumsAcrossPolicies(t *testing.T) {
	const blocks, threads = 7, 32
	for name, pol := range policies(t) {
		t.Run(name, func(t *testing.T) {
			out := make([]float64, blocks)
			cfg := gpu.LaunchConfig{Grid: gpu.D1(blocks), Block: gpu.D1(threads), SharedMem: threads * 8}
			err := Launch(pol, cfg, func(b *gpu.Block) {
				sh := gpu.Shared[float64](b, 0, threads)
				b.Threads1D(func(tx int) { sh[tx] = float64(b.Idx.X*threads + tx) })
				b.Threads1D(func(tx int) {
					if tx == 0 {
						for _, v := range sh {
							out[b.Idx.X] += v
						}
					}
				})
			})
			require.NoError(t, err)
			if g, ok := pol.(GPUExec); ok && g.Async {
				require.NoError(t, g.Runtime.StreamSynchronize(g.Stream))
			}
			for blk, got := range out {
				first := float64(blk * threads)
				assert.Equal(t, threads*first+float64(threads*(threads-1)/2), got, "block %d", blk)
			}
		})
	}
}

func TestLaunch_SeqPanicIsError(t *testing.T) {
	cfg := gpu.LaunchConfig{Grid: gpu.D1(1), Block: gpu.D1(1)}
	err := Launch(SeqExec{}, cfg, func(b *gpu.Block) {
		_ = gpu.Shared[float64](b, 0, 1)
	})
	assert.Error(t, err)
}
