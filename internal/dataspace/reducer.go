package dataspace

import (
	"errors"
	"fmt"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Reducer holds the target of a device reduction: n values in the
// reduction data space plus, when that space is not host accessible, a
// host-visible shadow the results are staged through.
type Reducer[T Element] struct {
	a      *Allocator
	dev    *Buffer[T]
	shadow *Buffer[T]
}

// NewReducer allocates a reduction target of n values in ds.
func NewReducer[T Element](a *Allocator, ds DataSpace, n int) (*Reducer[T], error) {
	dev, err := Alloc[T](a, ds, n)
	if err != nil {
		return nil, err
	}
	r := &Reducer[T]{a: a, dev: dev}
	if SeparateBuffers(ds) {
		r.shadow, err = Alloc[T](a, HostAccessibleDataSpace(ds), n)
		if err != nil {
			_ = Free(a, dev)
			return nil, err
		}
	}
	return r, nil
}

// Separate reports whether results are staged through a shadow buffer.
func (r *Reducer[T]) Separate() bool { return r.shadow != nil }

// Space returns the data space of the reduction target.
func (r *Reducer[T]) Space() DataSpace { return r.dev.space }

// Ptr returns the reduction target's memory.
func (r *Reducer[T]) Ptr() gpu.DevicePtr { return r.dev.ptr }

// Data returns the reduction target as seen by kernels.
func (r *Reducer[T]) Data() []T { return r.dev.Data() }

// Initialize sets the targets to vals before a repetition. With separate
// buffers the values are copied to the device on s.
func (r *Reducer[T]) Initialize(s *gpu.Stream, vals ...T) error {
	if len(vals) != r.dev.n {
		return fmt.Errorf("initialize %d reduction values with %d: %w", r.dev.n, len(vals), ErrLengthMismatch)
	}
	if r.shadow == nil {
		if r.dev.rt != nil {
			// Prior launches may still be writing the target.
			if err := r.dev.rt.StreamSynchronize(s); err != nil {
				return err
			}
		}
		copy(r.dev.Data(), vals)
		return nil
	}
	copy(r.shadow.Data(), vals)
	return r.dev.rt.MemcpyAsync(r.dev.ptr, r.shadow.ptr, r.dev.n*sizeOf[T](), gpu.MemcpyHostToDevice, s)
}

// CopyBack waits for the reduction on s and returns the host-visible
// results. The slice is only valid until the next Initialize.
func (r *Reducer[T]) CopyBack(s *gpu.Stream) ([]T, error) {
	if r.shadow != nil {
		if err := r.dev.rt.MemcpyAsync(r.shadow.ptr, r.dev.ptr, r.dev.n*sizeOf[T](), gpu.MemcpyDeviceToHost, s); err != nil {
			return nil, err
		}
	}
	if r.dev.rt != nil {
		if err := r.dev.rt.StreamSynchronize(s); err != nil {
			return nil, err
		}
	}
	if r.shadow != nil {
		return r.shadow.Data(), nil
	}
	return r.dev.Data(), nil
}

// Free releases the target and its shadow.
func (r *Reducer[T]) Free() error {
	if r == nil {
		return nil
	}
	return errors.Join(Free(r.a, r.dev), Free(r.a, r.shadow))
}
