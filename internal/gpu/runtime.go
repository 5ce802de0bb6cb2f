package gpu

import (
	"fmt"
	"unsafe"
)

// Kind identifies a device runtime family.
type Kind int

const (
	CUDA Kind = iota
	HIP
	OpenMPTarget
)

func (k Kind) String() string {
	switch k {
	case CUDA:
		return "cuda"
	case HIP:
		return "hip"
	case OpenMPTarget:
		return "omptarget"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Kinds lists every runtime family in a fixed order.
func Kinds() []Kind {
	return []Kind{CUDA, HIP, OpenMPTarget}
}

// DeviceInfo contains information about the device behind a runtime
type DeviceInfo struct {
	Name                 string `json:"name"`
	Kind                 string `json:"kind"`
	TotalMemory          int64  `json:"totalMemory"`     // in bytes
	AvailableMemory      int64  `json:"availableMemory"` // in bytes
	MultiProcessors      int    `json:"multiProcessors"`
	MaxThreadsPerBlock   int    `json:"maxThreadsPerBlock"`
	SharedMemoryPerBlock int    `json:"sharedMemoryPerBlock"`
	ComputeCapability    string `json:"computeCapability"`
	DriverVersion        string `json:"driverVersion"`
	Emulated             bool   `json:"emulated"`
}

// MemoryKind says how memory handed out by a runtime may be touched.
type MemoryKind int

const (
	// MemPageable is ordinary Go heap memory wrapped with HostPtr.
	MemPageable MemoryKind = iota
	// MemPinned is page-locked host memory usable for async copies.
	MemPinned
	// MemManaged migrates between host and device on demand.
	MemManaged
	// MemDevice is resident on the device only.
	MemDevice
)

func (m MemoryKind) String() string {
	switch m {
	case MemPageable:
		return "pageable"
	case MemPinned:
		return "pinned"
	case MemManaged:
		return "managed"
	case MemDevice:
		return "device"
	default:
		return fmt.Sprintf("MemoryKind(%d)", int(m))
	}
}

// MemcpyKind specifies the direction of a transfer.
type MemcpyKind int

const (
	MemcpyHostToHost MemcpyKind = iota
	MemcpyHostToDevice
	MemcpyDeviceToHost
	MemcpyDeviceToDevice
	MemcpyDefault
)

func (k MemcpyKind) String() string {
	switch k {
	case MemcpyHostToHost:
		return "HostToHost"
	case MemcpyHostToDevice:
		return "HostToDevice"
	case MemcpyDeviceToHost:
		return "DeviceToHost"
	case MemcpyDeviceToDevice:
		return "DeviceToDevice"
	case MemcpyDefault:
		return "Default"
	default:
		return fmt.Sprintf("MemcpyKind(%d)", int(k))
	}
}

// DevicePtr is an untyped pointer into memory owned by a runtime, or into
// host memory wrapped with HostPtr. The zero value is the nil pointer.
type DevicePtr struct {
	ptr  unsafe.Pointer
	size int
	kind MemoryKind
}

// IsNil reports whether the pointer is nil.
func (p DevicePtr) IsNil() bool { return p.ptr == nil }

// Size returns the size of the allocation in bytes.
func (p DevicePtr) Size() int { return p.size }

// Kind returns how the memory may be accessed.
func (p DevicePtr) Kind() MemoryKind { return p.kind }

// Addr returns the address for identity checks.
func (p DevicePtr) Addr() uintptr { return uintptr(p.ptr) }

// Bytes views the allocation as raw bytes.
func (p DevicePtr) Bytes() []byte {
	if p.ptr == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p.ptr), p.size)
}

// Slice views the allocation as a slice of T. Kernels use it to read and
// write device memory inside a launch; host code must only use it for
// pinned or managed memory.
func Slice[T any](p DevicePtr) []T {
	if p.ptr == nil {
		return nil
	}
	var zero T
	n := p.size / int(unsafe.Sizeof(zero))
	return unsafe.Slice((*T)(p.ptr), n)
}

// HostPtr wraps a Go slice so it can be the source or destination of a
// memcpy.
func HostPtr[T any](s []T) DevicePtr {
	if len(s) == 0 {
		return DevicePtr{kind: MemPageable}
	}
	var zero T
	return DevicePtr{
		ptr:  unsafe.Pointer(unsafe.SliceData(s)),
		size: len(s) * int(unsafe.Sizeof(zero)),
		kind: MemPageable,
	}
}

// Dim3 represents 3D dimensions for grid and block configurations.
type Dim3 struct {
	X, Y, Z int
}

// D1 builds a one dimensional Dim3.
func D1(x int) Dim3 { return Dim3{X: x, Y: 1, Z: 1} }

// D2 builds a two dimensional Dim3.
func D2(x, y int) Dim3 { return Dim3{X: x, Y: y, Z: 1} }

// Size returns the number of elements covered by d.
func (d Dim3) Size() int {
	return d.X * d.Y * d.Z
}

// LaunchConfig describes a kernel launch.
type LaunchConfig struct {
	Grid      Dim3
	Block     Dim3
	SharedMem int // dynamic shared memory in bytes
}

// KernelFunc is the body of a kernel. It is called once per block and
// expresses per-thread work through Block.Threads phases.
type KernelFunc func(b *Block)

// Runtime defines the interface for device runtimes (CUDA, HIP, offload).
//
// Implementation notes:
//   - Launch and MemcpyAsync are asynchronous with respect to the host; only
//     StreamSynchronize or DeviceSynchronize make prior work visible.
//   - Errors raised while a kernel runs are sticky on the stream and are
//     reported by the next synchronize.
//   - Allocations must be released with Free; Cleanup releases the rest.
type Runtime interface {
	Kind() Kind
	GetDeviceInfo() DeviceInfo

	// IsAvailable performs a quick check without heavy initialization.
	IsAvailable() bool
	Initialize() error
	Cleanup() error

	Malloc(bytes int) (DevicePtr, error)
	MallocHost(bytes int) (DevicePtr, error)
	MallocManaged(bytes int) (DevicePtr, error)
	Free(p DevicePtr) error
	MemoryInUse() int64

	MemcpyAsync(dst, src DevicePtr, bytes int, kind MemcpyKind, s *Stream) error

	Launch(cfg LaunchConfig, s *Stream, k KernelFunc) error
	DefaultStream() *Stream
	NewStream() (*Stream, error)
	StreamDestroy(s *Stream) error
	StreamSynchronize(s *Stream) error
	DeviceSynchronize() error

	// OccupancyMaxActiveBlocksPerMultiprocessor returns how many blocks of
	// the given size and shared memory fit on one multiprocessor.
	OccupancyMaxActiveBlocksPerMultiprocessor(blockSize, sharedMem int) (int, error)
	MultiProcessorCount() int
}

// Memcpy is the synchronous form of MemcpyAsync on the default stream.
func Memcpy(rt Runtime, dst, src DevicePtr, bytes int, kind MemcpyKind) error {
	s := rt.DefaultStream()
	if err := rt.MemcpyAsync(dst, src, bytes, kind, s); err != nil {
		return err
	}
	return rt.StreamSynchronize(s)
}

// MaxGridSize returns the occupancy-calculated grid size for a kernel: the
// number of blocks that can be resident on the whole device at once.
func MaxGridSize(rt Runtime, blockSize, sharedMem int) (int, error) {
	perMP, err := rt.OccupancyMaxActiveBlocksPerMultiprocessor(blockSize, sharedMem)
	if err != nil {
		return 0, err
	}
	return perMP * rt.MultiProcessorCount(), nil
}

// DivideCeil returns ceil(n / d) for positive d.
func DivideCeil(n, d int) int {
	return (n + d - 1) / d
}
