package forall

import (
	"fmt"
	"math"
	"sync"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Number is the set of types reductions operate on.
type Number interface {
	constraints.Integer | constraints.Float
}

// Reduction is an associative, commutative operator with its identity and
// the initial value the result is folded into.
type Reduction[T Number] struct {
	identity T
	init     T
	combine  func(a, b T) T
}

// Sum reduces with +; identity and init are zero.
func Sum[T Number]() Reduction[T] {
	return Reduction[T]{combine: func(a, b T) T { return a + b }}
}

// Min reduces with min; identity and init are the largest value of T.
func Min[T Number]() Reduction[T] {
	hi := highest[T]()
	return Reduction[T]{identity: hi, init: hi, combine: func(a, b T) T { return min(a, b) }}
}

// Max reduces with max; identity and init are the lowest value of T.
func Max[T Number]() Reduction[T] {
	lo := lowest[T]()
	return Reduction[T]{identity: lo, init: lo, combine: func(a, b T) T { return max(a, b) }}
}

// WithInit returns the reduction with a different initial value.
func (r Reduction[T]) WithInit(v T) Reduction[T] {
	r.init = v
	return r
}

// Identity returns the operator's identity.
func (r Reduction[T]) Identity() T { return r.identity }

// Init returns the value results are folded into.
func (r Reduction[T]) Init() T { return r.init }

// Combine applies the operator.
func (r Reduction[T]) Combine(a, b T) T { return r.combine(a, b) }

// Reduce runs body for every index of r under pol and returns the
// reduction of all values body accumulated, folded into red's init value.
// body receives a partial initialized to the identity.
func Reduce[T Number](pol Policy, r Range, red Reduction[T], body func(i int, acc *T)) (T, error) {
	out, err := ReduceN(pol, r, []Reduction[T]{red}, func(i int, acc []T) { body(i, &acc[0]) })
	if err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// ReduceN is Reduce over several reductions of the same type in one loop.
func ReduceN[T Number](pol Policy, r Range, reds []Reduction[T], body func(i int, acc []T)) ([]T, error) {
	if len(reds) == 0 {
		return nil, fmt.Errorf("forall: reduce without reductions")
	}
	var partial []T
	var err error
	switch p := pol.(type) {
	case SeqExec:
		partial = identities(reds)
		for i := r.Begin; i < r.End; i++ {
			body(i, partial)
		}
	case ParallelExec:
		partial, err = parallelReduce(p, r, reds, body)
	case GPUExec:
		partial, err = gpuReduce(p, r, reds, body)
	case TargetExec:
		partial, err = gpuReduce(p.gpuExec(), r, reds, body)
	default:
		err = fmt.Errorf("forall: unsupported policy %T", pol)
	}
	if err != nil {
		return nil, err
	}
	out := make([]T, len(reds))
	for k, red := range reds {
		out[k] = red.combine(red.init, partial[k])
	}
	return out, nil
}

func identities[T Number](reds []Reduction[T]) []T {
	acc := make([]T, len(reds))
	for k, red := range reds {
		acc[k] = red.identity
	}
	return acc
}

func combineInto[T Number](reds []Reduction[T], dst, src []T) {
	for k, red := range reds {
		dst[k] = red.combine(dst[k], src[k])
	}
}

func parallelReduce[T Number](p ParallelExec, r Range, reds []Reduction[T], body func(i int, acc []T)) ([]T, error) {
	partials := make([][]T, p.Pool.Workers())
	err := p.Pool.Run(r, func(w int, c Range) {
		acc := identities(reds)
		for i := c.Begin; i < c.End; i++ {
			body(i, acc)
		}
		partials[w] = acc
	})
	if err != nil {
		return nil, err
	}
	total := identities(reds)
	for _, part := range partials {
		if part != nil {
			combineInto(reds, total, part)
		}
	}
	return total, nil
}

// gpuReduce does a tree reduction in shared memory per block, then either
// one locked combine per block or a pass over per-block partials.
func gpuReduce[T Number](g GPUExec, r Range, reds []Reduction[T], body func(i int, acc []T)) ([]T, error) {
	nred := len(reds)
	n := r.Len()
	total := identities(reds)
	if n == 0 {
		return total, nil
	}

	var zero T
	elem := int(unsafe.Sizeof(zero))
	bs := g.BlockSize
	shmem := bs * nred * elem
	grid, err := g.launchShape(n, shmem)
	if err != nil {
		return nil, err
	}
	stride := grid * bs
	ident := identities(reds)

	var mu sync.Mutex
	var partials gpu.DevicePtr
	switch {
	case g.Strategy == Device && g.Partials != nil:
		if partials, err = g.Partials.buffer(g.Runtime, grid*nred*elem); err != nil {
			return nil, err
		}
	case g.Strategy == Device:
		if partials, err = g.Runtime.Malloc(grid * nred * elem); err != nil {
			return nil, err
		}
		defer g.Runtime.Free(partials)
	}

	cfg := gpu.LaunchConfig{Grid: gpu.D1(grid), Block: gpu.D1(bs), SharedMem: shmem}
	err = g.Runtime.Launch(cfg, g.Stream, func(b *gpu.Block) {
		sh := gpu.Shared[T](b, 0, bs*nred)
		b.Threads1D(func(tx int) {
			acc := sh[tx*nred : (tx+1)*nred]
			copy(acc, ident)
			for i := b.Idx.X*bs + tx; i < n; i += stride {
				body(r.Begin+i, acc)
			}
		})
		for s := ceilPow2(bs) / 2; s > 0; s /= 2 {
			b.Threads1D(func(tx int) {
				if tx < s && tx+s < bs {
					combineInto(reds, sh[tx*nred:(tx+1)*nred], sh[(tx+s)*nred:(tx+s+1)*nred])
				}
			})
		}
		b.Threads1D(func(tx int) {
			if tx != 0 {
				return
			}
			switch g.Strategy {
			case Device:
				copy(gpu.Slice[T](partials)[b.Idx.X*nred:], sh[:nred])
			default:
				mu.Lock()
				combineInto(reds, total, sh[:nred])
				mu.Unlock()
			}
		})
	})
	if err != nil {
		return nil, err
	}
	if err := g.Runtime.StreamSynchronize(g.Stream); err != nil {
		return nil, err
	}
	if g.Strategy == Device {
		host := make([]T, grid*nred)
		if err := gpu.Memcpy(g.Runtime, gpu.HostPtr(host), partials, len(host)*elem, gpu.MemcpyDeviceToHost); err != nil {
			return nil, err
		}
		for blk := 0; blk < grid; blk++ {
			combineInto(reds, total, host[blk*nred:(blk+1)*nred])
		}
	}
	return total, nil
}

func ceilPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func highest[T Number]() T {
	var v any
	switch any(*new(T)).(type) {
	case float32:
		v = float32(math.Inf(1))
	case float64:
		v = math.Inf(1)
	case int:
		v = int(math.MaxInt)
	case int8:
		v = int8(math.MaxInt8)
	case int16:
		v = int16(math.MaxInt16)
	case int32:
		v = int32(math.MaxInt32)
	case int64:
		v = int64(math.MaxInt64)
	case uint:
		v = uint(math.MaxUint)
	case uint8:
		v = uint8(math.MaxUint8)
	case uint16:
		v = uint16(math.MaxUint16)
	case uint32:
		v = uint32(math.MaxUint32)
	case uint64:
		v = uint64(math.MaxUint64)
	case uintptr:
		v = uintptr(math.MaxUint)
	}
	return v.(T)
}

func lowest[T Number]() T {
	var v any
	switch any(*new(T)).(type) {
	case float32:
		v = float32(math.Inf(-1))
	case float64:
		v = math.Inf(-1)
	case int:
		v = int(math.MinInt)
	case int8:
		v = int8(math.MinInt8)
	case int16:
		v = int16(math.MinInt16)
	case int32:
		v = int32(math.MinInt32)
	case int64:
		v = int64(math.MinInt64)
	default:
		return 0
	}
	return v.(T)
}
