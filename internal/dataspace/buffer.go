package dataspace

import (
	"fmt"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Element is the set of types buffers may hold.
type Element interface {
	constraints.Integer | constraints.Float
}

// Buffer is n elements of T in one data space.
type Buffer[T Element] struct {
	id    uint64
	space DataSpace
	n     int
	ptr   gpu.DevicePtr
	rt    gpu.Runtime
	host  []T // backing for Host and Omp buffers
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() int { return b.n }

// Space returns the data space the buffer lives in.
func (b *Buffer[T]) Space() DataSpace { return b.space }

// Ptr returns the buffer's memory for runtime copies.
func (b *Buffer[T]) Ptr() gpu.DevicePtr { return b.ptr }

// Host returns the elements for direct host access, or nil when the space
// is not host accessible.
func (b *Buffer[T]) Host() []T {
	if !b.space.HostAccessible() {
		return nil
	}
	return b.Data()
}

// Data returns the elements as seen from code executing in the buffer's
// space: host loops for host spaces, kernels for device spaces.
func (b *Buffer[T]) Data() []T {
	if b.host != nil {
		return b.host
	}
	return gpu.Slice[T](b.ptr)[:b.n]
}

func sizeOf[T Element]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// Alloc allocates n zeroed elements in ds.
func Alloc[T Element](a *Allocator, ds DataSpace, n int) (*Buffer[T], error) {
	if !ds.valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownDataSpace, int(ds))
	}
	if ds == CopyStaging {
		return nil, fmt.Errorf("%w: %s", ErrNotAllocatable, ds)
	}
	if n < 0 {
		return nil, fmt.Errorf("allocate %d elements: %w", n, gpu.ErrInvalidValue)
	}
	bytes := n * sizeOf[T]()
	b := &Buffer[T]{space: ds, n: n}
	if _, onRuntime := ds.Runtime(); onRuntime {
		p, rt, err := a.rawAlloc(ds, bytes)
		if err != nil {
			return nil, err
		}
		b.ptr, b.rt = p, rt
	} else {
		b.host = make([]T, n)
		b.ptr = gpu.HostPtr(b.host)
	}
	b.id = a.track(ds, int64(bytes))
	return b, nil
}

// AllocAndInit allocates n elements in ds and fills element i with gen(i).
func AllocAndInit[T Element](a *Allocator, ds DataSpace, n int, gen func(i int) T) (*Buffer[T], error) {
	b, err := Alloc[T](a, ds, n)
	if err != nil {
		return nil, err
	}
	if err := Initialize(a, b, gen); err != nil {
		_ = Free(a, b)
		return nil, err
	}
	return b, nil
}

// AllocAndFill allocates n elements in ds all set to v.
func AllocAndFill[T Element](a *Allocator, ds DataSpace, n int, v T) (*Buffer[T], error) {
	return AllocAndInit(a, ds, n, func(int) T { return v })
}

// Initialize overwrites every element of b with gen(i), staging through the
// host when b is not host accessible.
func Initialize[T Element](a *Allocator, b *Buffer[T], gen func(i int) T) error {
	if h := b.Host(); h != nil {
		for i := range h {
			h[i] = gen(i)
		}
		return nil
	}
	staging := make([]T, b.n)
	for i := range staging {
		staging[i] = gen(i)
	}
	return copyBytes(b.rt, b.ptr, gpu.HostPtr(staging), b.n*sizeOf[T]())
}

// Copy copies src into dst. Both must have the same length; the spaces may
// differ.
func Copy[T Element](a *Allocator, dst, src *Buffer[T]) error {
	if dst.n != src.n {
		return fmt.Errorf("copy %s[%d] to %s[%d]: %w", src.space, src.n, dst.space, dst.n, ErrLengthMismatch)
	}
	if dst.n == 0 {
		return nil
	}
	rt := dst.rt
	if rt == nil {
		rt = src.rt
	}
	if dst.rt != nil && src.rt != nil && dst.rt != src.rt {
		// Stage between two runtimes through the host.
		tmp := make([]T, src.n)
		if err := copyBytes(src.rt, gpu.HostPtr(tmp), src.ptr, src.n*sizeOf[T]()); err != nil {
			return err
		}
		return copyBytes(dst.rt, dst.ptr, gpu.HostPtr(tmp), dst.n*sizeOf[T]())
	}
	return copyBytes(rt, dst.ptr, src.ptr, dst.n*sizeOf[T]())
}

// CopyAsync queues the copy of src into dst on s when a device runtime is
// involved; host to host copies complete before it returns. Buffers of two
// different runtimes are copied synchronously through the host.
func CopyAsync[T Element](a *Allocator, dst, src *Buffer[T], s *gpu.Stream) error {
	if dst.n != src.n {
		return fmt.Errorf("copy %s[%d] to %s[%d]: %w", src.space, src.n, dst.space, dst.n, ErrLengthMismatch)
	}
	if dst.n == 0 {
		return nil
	}
	if dst.rt != nil && src.rt != nil && dst.rt != src.rt {
		return Copy(a, dst, src)
	}
	rt := dst.rt
	if rt == nil {
		rt = src.rt
	}
	if rt == nil {
		copy(dst.host, src.host)
		return nil
	}
	return rt.MemcpyAsync(dst.ptr, src.ptr, dst.n*sizeOf[T](), memcpyKind(dst.ptr, src.ptr), s)
}

// ToHost returns a host copy of the buffer's contents.
func ToHost[T Element](a *Allocator, b *Buffer[T]) ([]T, error) {
	out := make([]T, b.n)
	if h := b.Host(); h != nil {
		if b.rt != nil {
			// Pending device work may still write pinned or managed memory.
			if err := b.rt.DeviceSynchronize(); err != nil {
				return nil, err
			}
		}
		copy(out, h)
		return out, nil
	}
	if err := copyBytes(b.rt, gpu.HostPtr(out), b.ptr, b.n*sizeOf[T]()); err != nil {
		return nil, err
	}
	return out, nil
}

// Free releases b. Freeing a buffer twice, or one from another allocator,
// is an error; freeing nil is a no-op.
func Free[T Element](a *Allocator, b *Buffer[T]) error {
	if b == nil {
		return nil
	}
	if err := a.untrack(b.id); err != nil {
		return fmt.Errorf("free %s buffer: %w", b.space, err)
	}
	if b.rt != nil {
		if err := b.rt.Free(b.ptr); err != nil {
			return fmt.Errorf("free %s buffer: %w", b.space, err)
		}
	}
	b.host = nil
	return nil
}

// copyBytes copies synchronously, through rt when either side belongs to a
// device runtime.
func copyBytes(rt gpu.Runtime, dst, src gpu.DevicePtr, bytes int) error {
	if rt == nil {
		copy(dst.Bytes()[:bytes], src.Bytes()[:bytes])
		return nil
	}
	return gpu.Memcpy(rt, dst, src, bytes, memcpyKind(dst, src))
}

func onDevice(p gpu.DevicePtr) bool {
	return p.Kind() == gpu.MemDevice || p.Kind() == gpu.MemManaged
}

func memcpyKind(dst, src gpu.DevicePtr) gpu.MemcpyKind {
	switch {
	case onDevice(src) && onDevice(dst):
		return gpu.MemcpyDeviceToDevice
	case onDevice(src):
		return gpu.MemcpyDeviceToHost
	case onDevice(dst):
		return gpu.MemcpyHostToDevice
	default:
		return gpu.MemcpyHostToHost
	}
}
