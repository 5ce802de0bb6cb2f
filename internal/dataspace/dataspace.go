// Package dataspace decides where kernel buffers live and moves data
// between those places.
package dataspace

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// DataSpace names a memory space.
type DataSpace int

const (
	Host DataSpace = iota
	Omp
	OmpTarget
	CudaPinned
	CudaManaged
	CudaDevice
	HipPinned
	HipManaged
	HipDevice
	// CopyStaging, named "Copy" in configuration, is a staging protocol
	// rather than a place: data is packed on the device and moved through
	// separate host buffers.
	CopyStaging

	numSpaces
)

var (
	ErrUnknownDataSpace = errors.New("unknown data space")
	ErrNotAllocatable   = errors.New("data space cannot be allocated directly")
	ErrDoubleFree       = errors.New("buffer already freed")
	ErrForeignBuffer    = errors.New("buffer not owned by this allocator")
	ErrLengthMismatch   = errors.New("buffer length mismatch")
)

type class struct {
	name             string
	hostAccessible   bool
	deviceAccessible bool
	onRuntime        bool
	runtime          gpu.Kind
	memory           gpu.MemoryKind
}

// classes is the explicit classification of every space.
var classes = [numSpaces]class{
	Host:        {name: "Host", hostAccessible: true, memory: gpu.MemPageable},
	Omp:         {name: "Omp", hostAccessible: true, memory: gpu.MemPageable},
	OmpTarget:   {name: "OmpTarget", deviceAccessible: true, onRuntime: true, runtime: gpu.OpenMPTarget, memory: gpu.MemDevice},
	CudaPinned:  {name: "CudaPinned", hostAccessible: true, deviceAccessible: true, onRuntime: true, runtime: gpu.CUDA, memory: gpu.MemPinned},
	CudaManaged: {name: "CudaManaged", hostAccessible: true, deviceAccessible: true, onRuntime: true, runtime: gpu.CUDA, memory: gpu.MemManaged},
	CudaDevice:  {name: "CudaDevice", deviceAccessible: true, onRuntime: true, runtime: gpu.CUDA, memory: gpu.MemDevice},
	HipPinned:   {name: "HipPinned", hostAccessible: true, deviceAccessible: true, onRuntime: true, runtime: gpu.HIP, memory: gpu.MemPinned},
	HipManaged:  {name: "HipManaged", hostAccessible: true, deviceAccessible: true, onRuntime: true, runtime: gpu.HIP, memory: gpu.MemManaged},
	HipDevice:   {name: "HipDevice", deviceAccessible: true, onRuntime: true, runtime: gpu.HIP, memory: gpu.MemDevice},
	CopyStaging: {name: "Copy"},
}

func (ds DataSpace) valid() bool { return ds >= 0 && ds < numSpaces }

func (ds DataSpace) String() string {
	if !ds.valid() {
		return fmt.Sprintf("DataSpace(%d)", int(ds))
	}
	return classes[ds].name
}

// All returns every data space in declaration order.
func All() []DataSpace {
	out := make([]DataSpace, numSpaces)
	for i := range out {
		out[i] = DataSpace(i)
	}
	return out
}

// Parse maps a data space name, case-insensitively, to its value.
func Parse(name string) (DataSpace, error) {
	for i, c := range classes {
		if strings.EqualFold(c.name, name) {
			return DataSpace(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDataSpace, name)
}

// HostAccessible reports whether host code may dereference buffers in ds.
func (ds DataSpace) HostAccessible() bool { return ds.valid() && classes[ds].hostAccessible }

// DeviceAccessible reports whether device kernels may dereference buffers
// in ds.
func (ds DataSpace) DeviceAccessible() bool { return ds.valid() && classes[ds].deviceAccessible }

// Runtime returns the device runtime that owns memory in ds, if any.
func (ds DataSpace) Runtime() (gpu.Kind, bool) {
	if !ds.valid() {
		return 0, false
	}
	c := classes[ds]
	return c.runtime, c.onRuntime
}

// HostAccessibleDataSpace returns ds when host code can read it directly.
// Otherwise it returns the pinned space of the owning runtime, or Host when
// the runtime has none.
func HostAccessibleDataSpace(ds DataSpace) DataSpace {
	if ds.HostAccessible() {
		return ds
	}
	if kind, ok := ds.Runtime(); ok {
		switch kind {
		case gpu.CUDA:
			return CudaPinned
		case gpu.HIP:
			return HipPinned
		}
	}
	return Host
}

// SeparateBuffers reports whether results in ds must be staged through a
// host-visible shadow buffer.
func SeparateBuffers(ds DataSpace) bool {
	return HostAccessibleDataSpace(ds) != ds
}

// Spaces is the resolved data space selection for one run.
type Spaces struct {
	Seq, OpenMP, OpenMPTarget, CUDA, HIP DataSpace
	CUDAReduction, HIPReduction         DataSpace
	SeqComm, OpenMPComm, TargetComm     DataSpace
	CUDAComm, HIPComm                   DataSpace
}

// DefaultSpaces resolves the default configuration.
func DefaultSpaces() Spaces {
	s, err := SpacesFromConfig(config.Default().DataSpaces)
	if err != nil {
		panic(err)
	}
	return s
}

// SpacesFromConfig parses the dataSpaces section of the configuration.
func SpacesFromConfig(cfg config.DataSpaceConfig) (Spaces, error) {
	var s Spaces
	var errs []error
	parse := func(dst *DataSpace, key, name string) {
		ds, err := Parse(name)
		if err != nil {
			errs = append(errs, fmt.Errorf("dataSpaces.%s: %w", key, err))
			return
		}
		*dst = ds
	}
	parse(&s.Seq, "seq", cfg.Seq)
	parse(&s.OpenMP, "openmp", cfg.OpenMP)
	parse(&s.OpenMPTarget, "openmpTarget", cfg.OpenMPTarget)
	parse(&s.CUDA, "cuda", cfg.CUDA)
	parse(&s.HIP, "hip", cfg.HIP)
	parse(&s.CUDAReduction, "cudaReduction", cfg.CUDAReduction)
	parse(&s.HIPReduction, "hipReduction", cfg.HIPReduction)
	parse(&s.SeqComm, "seqComm", cfg.SeqComm)
	parse(&s.OpenMPComm, "openmpComm", cfg.OpenMPComm)
	parse(&s.TargetComm, "openmpTargetComm", cfg.TargetComm)
	parse(&s.CUDAComm, "cudaComm", cfg.CUDAComm)
	parse(&s.HIPComm, "hipComm", cfg.HIPComm)
	return s, errors.Join(errs...)
}

// For returns the data space used for a variant's arrays.
func (s Spaces) For(vid variant.ID) DataSpace {
	switch vid.Backend() {
	case variant.Seq:
		return s.Seq
	case variant.OpenMP:
		return s.OpenMP
	case variant.OpenMPTarget:
		return s.OpenMPTarget
	case variant.CUDA:
		return s.CUDA
	case variant.HIP:
		return s.HIP
	}
	panic(fmt.Sprintf("dataspace: no space for %v", vid))
}

// Reduction returns the data space used for a variant's reduction targets.
func (s Spaces) Reduction(vid variant.ID) DataSpace {
	switch vid.Backend() {
	case variant.CUDA:
		return s.CUDAReduction
	case variant.HIP:
		return s.HIPReduction
	default:
		return s.For(vid)
	}
}

// Comm returns the data space used for a variant's message buffers.
func (s Spaces) Comm(vid variant.ID) DataSpace {
	switch vid.Backend() {
	case variant.Seq:
		return s.SeqComm
	case variant.OpenMP:
		return s.OpenMPComm
	case variant.OpenMPTarget:
		return s.TargetComm
	case variant.CUDA:
		return s.CUDAComm
	case variant.HIP:
		return s.HIPComm
	}
	panic(fmt.Sprintf("dataspace: no comm space for %v", vid))
}
