package gpu

import "unsafe"

// Block is the execution context of one thread block. Threads of a block
// run phase by phase: every call to Threads runs the phase for all threads
// before returning, which is the barrier between phases.
type Block struct {
	Idx     Dim3 // blockIdx
	Dim     Dim3 // blockDim
	GridDim Dim3 // gridDim

	shared []byte
}

// Linear returns the linear block index (x fastest).
func (b *Block) Linear() int {
	return b.Idx.X + b.GridDim.X*(b.Idx.Y+b.GridDim.Y*b.Idx.Z)
}

// Threads runs fn for every thread of the block, x fastest.
func (b *Block) Threads(fn func(t Dim3)) {
	for z := 0; z < b.Dim.Z; z++ {
		for y := 0; y < b.Dim.Y; y++ {
			for x := 0; x < b.Dim.X; x++ {
				fn(Dim3{X: x, Y: y, Z: z})
			}
		}
	}
}

// Threads1D runs fn for every thread of a one dimensional block.
func (b *Block) Threads1D(fn func(tx int)) {
	n := b.Dim.Size()
	for tx := 0; tx < n; tx++ {
		fn(tx)
	}
}

// SharedBytes returns the size of the block's dynamic shared memory.
func (b *Block) SharedBytes() int { return len(b.shared) }

// Shared views n elements of the block's shared memory starting at byte
// offset off. It panics when the view exceeds the launch's SharedMem, which
// surfaces as a launch failure on the stream.
func Shared[T any](b *Block, off, n int) []T {
	var zero T
	size := int(unsafe.Sizeof(zero))
	if off < 0 || n < 0 || off+n*size > len(b.shared) {
		panic("shared memory access out of bounds")
	}
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b.shared[off])), n)
}

// RunBlocks runs blocks [start, end) of cfg's grid, in linear order, on the
// calling goroutine. Each block starts with zeroed shared memory.
func RunBlocks(cfg LaunchConfig, start, end int, k KernelFunc) {
	b := &Block{Dim: cfg.Block, GridDim: cfg.Grid, shared: newSharedMem(cfg.SharedMem)}
	for id := start; id < end; id++ {
		b.Idx = linearTo3D(id, cfg.Grid)
		clear(b.shared)
		k(b)
	}
}

func linearTo3D(i int, d Dim3) Dim3 {
	x := i % d.X
	i /= d.X
	y := i % d.Y
	z := i / d.Y
	return Dim3{X: x, Y: y, Z: z}
}

// newSharedMem allocates 8-byte aligned shared memory.
func newSharedMem(n int) []byte {
	if n <= 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}
