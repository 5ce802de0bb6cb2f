package forall

import (
	"unsafe"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Partials is a device buffer holding per-block results of Device strategy
// reductions. A GPUExec carrying one reuses it across calls instead of
// allocating per reduction; it only grows.
type Partials struct {
	rt  gpu.Runtime
	ptr gpu.DevicePtr
}

// buffer returns at least bytes of device memory on rt.
func (p *Partials) buffer(rt gpu.Runtime, bytes int) (gpu.DevicePtr, error) {
	if !p.ptr.IsNil() && p.rt == rt && p.ptr.Size() >= bytes {
		return p.ptr, nil
	}
	if err := p.Free(); err != nil {
		return gpu.DevicePtr{}, err
	}
	ptr, err := rt.Malloc(bytes)
	if err != nil {
		return gpu.DevicePtr{}, err
	}
	p.rt, p.ptr = rt, ptr
	return ptr, nil
}

// Free releases the buffer. The Partials may be used again afterwards.
func (p *Partials) Free() error {
	if p.ptr.IsNil() {
		return nil
	}
	err := p.rt.Free(p.ptr)
	p.rt, p.ptr = nil, gpu.DevicePtr{}
	return err
}

// ReservePartials sizes g.Partials for a ReduceN of nred reductions over n
// indices, so the reductions themselves do not allocate.
func ReservePartials[T Number](g GPUExec, n, nred int) error {
	if g.Partials == nil || g.Strategy != Device || n <= 0 {
		return nil
	}
	var zero T
	elem := int(unsafe.Sizeof(zero))
	grid, err := g.launchShape(n, g.BlockSize*nred*elem)
	if err != nil {
		return err
	}
	_, err = g.Partials.buffer(g.Runtime, grid*nred*elem)
	return err
}
