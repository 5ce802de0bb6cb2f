package dataspace

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/metrics"
)

// Usage is the live allocation count and size of one data space.
type Usage struct {
	Allocations int   `json:"allocations"`
	Bytes       int64 `json:"bytes"`
}

type record struct {
	space DataSpace
	bytes int64
}

// Allocator hands out buffers and keeps allocations and frees paired per
// data space. It is safe for concurrent use.
type Allocator struct {
	gpus   *gpu.Manager
	logger *zap.Logger

	mu     sync.Mutex
	nextID uint64
	live   map[uint64]record
	usage  map[DataSpace]Usage
}

// NewAllocator creates an allocator backed by the runtimes of gpus, which
// may be nil for a host-only allocator.
func NewAllocator(gpus *gpu.Manager, logger *zap.Logger) *Allocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Allocator{
		gpus:   gpus,
		logger: logger.Named("dataspace"),
		live:   make(map[uint64]record),
		usage:  make(map[DataSpace]Usage),
	}
}

// Runtime returns the device runtime that owns memory in ds. It fails with
// gpu.ErrNotAvailable when that runtime is not active.
func (a *Allocator) Runtime(ds DataSpace) (gpu.Runtime, error) {
	kind, ok := ds.Runtime()
	if !ok {
		return nil, nil
	}
	return a.gpus.MustRuntime(kind)
}

// Available reports whether buffers can be allocated in ds.
func (a *Allocator) Available(ds DataSpace) bool {
	if !ds.valid() || ds == CopyStaging {
		return false
	}
	if kind, ok := ds.Runtime(); ok {
		_, active := a.gpus.Runtime(kind)
		return active
	}
	return true
}

// Live returns a snapshot of the spaces holding memory.
func (a *Allocator) Live() map[DataSpace]Usage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[DataSpace]Usage, len(a.usage))
	for ds, u := range a.usage {
		if u.Allocations > 0 {
			out[ds] = u
		}
	}
	return out
}

// LiveCount returns the number of buffers not yet freed.
func (a *Allocator) LiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.live)
}

func (a *Allocator) track(ds DataSpace, bytes int64) uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextID++
	id := a.nextID
	a.live[id] = record{space: ds, bytes: bytes}
	u := a.usage[ds]
	u.Allocations++
	u.Bytes += bytes
	a.usage[ds] = u
	metrics.DataSpaceBytes.WithLabelValues(ds.String()).Set(float64(u.Bytes))
	return id
}

func (a *Allocator) untrack(id uint64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if id == 0 || id > a.nextID {
		return ErrForeignBuffer
	}
	rec, ok := a.live[id]
	if !ok {
		return ErrDoubleFree
	}
	delete(a.live, id)
	u := a.usage[rec.space]
	u.Allocations--
	u.Bytes -= rec.bytes
	a.usage[rec.space] = u
	metrics.DataSpaceBytes.WithLabelValues(rec.space.String()).Set(float64(u.Bytes))
	return nil
}

// rawAlloc returns bytes of memory in ds. Host spaces get Go memory from
// the caller, so only runtime spaces reach the device here.
func (a *Allocator) rawAlloc(ds DataSpace, bytes int) (gpu.DevicePtr, gpu.Runtime, error) {
	rt, err := a.Runtime(ds)
	if err != nil {
		return gpu.DevicePtr{}, nil, fmt.Errorf("allocate in %s: %w", ds, err)
	}
	var p gpu.DevicePtr
	switch classes[ds].memory {
	case gpu.MemPinned:
		p, err = rt.MallocHost(bytes)
	case gpu.MemManaged:
		p, err = rt.MallocManaged(bytes)
	default:
		p, err = rt.Malloc(bytes)
	}
	if err != nil {
		return gpu.DevicePtr{}, nil, fmt.Errorf("allocate %d bytes in %s: %w", bytes, ds, err)
	}
	return p, rt, nil
}
