package gpu

import (
	"fmt"
)

// libBlockSize is the block size the device-wide library routines use.
const libBlockSize = 256

// ReduceSumTempBytes returns the temporary storage DeviceReduceSum needs
// for n elements.
func ReduceSumTempBytes(rt Runtime, n int) (int, error) {
	grid, err := libGrid(rt, n)
	if err != nil {
		return 0, err
	}
	return grid * 8, nil
}

func libGrid(rt Runtime, n int) (int, error) {
	maxGrid, err := MaxGridSize(rt, libBlockSize, libBlockSize*8)
	if err != nil {
		return 0, err
	}
	return max(1, min(DivideCeil(n, libBlockSize), maxGrid)), nil
}

// DeviceReduceSum writes init plus the sum of the first n float64 values of
// in to out[0], in two launches on s: one partial per block into temp, then
// a single block over the partials. temp must hold ReduceSumTempBytes.
func DeviceReduceSum(rt Runtime, s *Stream, temp, in, out DevicePtr, n int, init float64) error {
	grid, err := libGrid(rt, n)
	if err != nil {
		return err
	}
	if temp.Size() < grid*8 {
		return newError(rt.Kind().String(), "DeviceReduceSum", ErrInvalidValue,
			"temporary storage of %d bytes, need %d", temp.Size(), grid*8)
	}
	if in.Size() < n*8 || out.Size() < 8 {
		return newError(rt.Kind().String(), "DeviceReduceSum", ErrInvalidValue, "buffers too small for %d elements", n)
	}

	x := Slice[float64](in)
	partial := Slice[float64](temp)
	cfg := LaunchConfig{Grid: D1(grid), Block: D1(libBlockSize), SharedMem: libBlockSize * 8}
	if err := rt.Launch(cfg, s, BlockSum(func(i int) float64 { return x[i] }, n, func(b *Block, v float64) {
		partial[b.Idx.X] = v
	})); err != nil {
		return fmt.Errorf("reduce pass 1: %w", err)
	}

	res := Slice[float64](out)
	cfg.Grid = D1(1)
	return rt.Launch(cfg, s, BlockSum(func(i int) float64 { return partial[i] }, grid, func(_ *Block, v float64) {
		res[0] = init + v
	}))
}

// BlockSum is a grid-stride, shared memory tree sum over [0, n) handing
// each block's total to store. It needs 8 bytes of shared memory per thread
// and a power of two block size.
func BlockSum(load func(i int) float64, n int, store func(b *Block, v float64)) KernelFunc {
	return func(b *Block) {
		bs := b.Dim.X
		sh := Shared[float64](b, 0, bs)
		stride := b.GridDim.X * bs
		b.Threads1D(func(tx int) {
			sum := 0.0
			for i := b.Idx.X*bs + tx; i < n; i += stride {
				sum += load(i)
			}
			sh[tx] = sum
		})
		for half := bs / 2; half > 0; half /= 2 {
			b.Threads1D(func(tx int) {
				if tx < half {
					sh[tx] += sh[tx+half]
				}
			})
		}
		store(b, sh[0])
	}
}
