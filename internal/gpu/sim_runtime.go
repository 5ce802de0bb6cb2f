package gpu

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
)

// SimProps are the device limits an emulated runtime enforces.
type SimProps struct {
	TotalMemory                   int64
	MultiProcessors               int
	MaxThreadsPerBlock            int
	MaxThreadsPerMultiProcessor   int
	MaxBlocksPerMultiProcessor    int
	SharedMemoryPerBlock          int
	SharedMemoryPerMultiProcessor int
	// Workers is the number of host goroutines executing blocks. Zero means
	// runtime.NumCPU().
	Workers int
}

// PropsFromConfig converts the gpu section of the configuration.
func PropsFromConfig(cfg config.GPUConfig) SimProps {
	return SimProps{
		TotalMemory:                   cfg.TotalMemory,
		MultiProcessors:               cfg.MultiProcessors,
		MaxThreadsPerBlock:            cfg.MaxThreadsPerBlock,
		MaxThreadsPerMultiProcessor:   cfg.MaxThreadsPerMultiProcessor,
		MaxBlocksPerMultiProcessor:    cfg.MaxBlocksPerMultiProcessor,
		SharedMemoryPerBlock:          cfg.SharedMemoryPerBlock,
		SharedMemoryPerMultiProcessor: cfg.SharedMemoryPerMultiProcessor,
	}
}

// DefaultSimProps mirrors config.Default().GPU.
func DefaultSimProps() SimProps {
	return PropsFromConfig(config.Default().GPU)
}

type allocation struct {
	backing []uint64
	size    int
	kind    MemoryKind
}

// SimRuntime implements Runtime by emulating a device on the host: blocks
// of a grid are spread over worker goroutines, threads of a block run phase
// by phase, and all work is queued on streams.
type SimRuntime struct {
	kind   Kind
	props  SimProps
	logger *zap.Logger

	mu          sync.Mutex
	initialized bool
	allocs      map[uintptr]*allocation
	inUse       int64
	streams     []*Stream
	nextStream  int
	transfers   map[MemcpyKind]int64
}

// NewSimRuntime creates an emulated runtime of the given kind.
func NewSimRuntime(kind Kind, props SimProps, logger *zap.Logger) *SimRuntime {
	if logger == nil {
		logger = zap.NewNop()
	}
	if props.Workers <= 0 {
		props.Workers = runtime.NumCPU()
	}
	return &SimRuntime{
		kind:      kind,
		props:     props,
		logger:    logger.Named(kind.String()),
		allocs:    make(map[uintptr]*allocation),
		transfers: make(map[MemcpyKind]int64),
	}
}

func (r *SimRuntime) Kind() Kind { return r.kind }

// IsAvailable checks if the backend is available (always true for the emulator)
func (r *SimRuntime) IsAvailable() bool { return true }

// Initialize prepares the runtime for use and creates the default stream.
func (r *SimRuntime) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if r.props.MultiProcessors <= 0 || r.props.MaxThreadsPerBlock <= 0 {
		return newError(r.kind.String(), "Initialize", ErrInvalidValue, "device limits must be positive")
	}
	r.streams = []*Stream{newStream(0)}
	r.initialized = true
	r.logger.Info("emulated runtime initialized",
		zap.Int("multiProcessors", r.props.MultiProcessors),
		zap.Int64("totalMemory", r.props.TotalMemory),
		zap.Int("workers", r.props.Workers))
	return nil
}

// Cleanup drains and closes every stream and releases outstanding memory.
func (r *SimRuntime) Cleanup() error {
	r.mu.Lock()
	streams := r.streams
	leaked := len(r.allocs)
	r.streams = nil
	r.allocs = make(map[uintptr]*allocation)
	r.inUse = 0
	r.initialized = false
	r.mu.Unlock()

	for _, s := range streams {
		s.close()
	}
	if leaked > 0 {
		r.logger.Warn("releasing leaked allocations", zap.Int("count", leaked))
	}
	return nil
}

// GetDeviceInfo returns information about the emulated device.
func (r *SimRuntime) GetDeviceInfo() DeviceInfo {
	r.mu.Lock()
	inUse := r.inUse
	r.mu.Unlock()
	return DeviceInfo{
		Name:                 fmt.Sprintf("Emulated %s device", r.kind),
		Kind:                 r.kind.String(),
		TotalMemory:          r.props.TotalMemory,
		AvailableMemory:      r.props.TotalMemory - inUse,
		MultiProcessors:      r.props.MultiProcessors,
		MaxThreadsPerBlock:   r.props.MaxThreadsPerBlock,
		SharedMemoryPerBlock: r.props.SharedMemoryPerBlock,
		ComputeCapability:    "N/A",
		DriverVersion:        runtime.Version(),
		Emulated:             true,
	}
}

func (r *SimRuntime) MultiProcessorCount() int { return r.props.MultiProcessors }

func (r *SimRuntime) Malloc(bytes int) (DevicePtr, error) {
	return r.alloc("Malloc", bytes, MemDevice)
}

func (r *SimRuntime) MallocHost(bytes int) (DevicePtr, error) {
	return r.alloc("MallocHost", bytes, MemPinned)
}

func (r *SimRuntime) MallocManaged(bytes int) (DevicePtr, error) {
	return r.alloc("MallocManaged", bytes, MemManaged)
}

func (r *SimRuntime) alloc(op string, bytes int, kind MemoryKind) (DevicePtr, error) {
	if bytes < 0 {
		return DevicePtr{}, newError(r.kind.String(), op, ErrInvalidValue, "negative size %d", bytes)
	}
	if bytes == 0 {
		return DevicePtr{kind: kind}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return DevicePtr{}, newError(r.kind.String(), op, ErrNotInitialized, "")
	}
	// Pinned host memory does not count against device capacity.
	if kind != MemPinned && r.props.TotalMemory > 0 && r.inUse+int64(bytes) > r.props.TotalMemory {
		return DevicePtr{}, newError(r.kind.String(), op, ErrMemoryAllocation,
			"requested %d bytes with %d of %d in use", bytes, r.inUse, r.props.TotalMemory)
	}

	backing := make([]uint64, (bytes+7)/8)
	p := DevicePtr{ptr: unsafe.Pointer(&backing[0]), size: bytes, kind: kind}
	r.allocs[p.Addr()] = &allocation{backing: backing, size: bytes, kind: kind}
	if kind != MemPinned {
		r.inUse += int64(bytes)
	}
	return p, nil
}

// Free releases memory allocated by this runtime. Freeing nil is a no-op.
func (r *SimRuntime) Free(p DevicePtr) error {
	if p.IsNil() {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.allocs[p.Addr()]
	if !ok {
		return newError(r.kind.String(), "Free", ErrInvalidDevicePointer, "%#x", p.Addr())
	}
	delete(r.allocs, p.Addr())
	if a.kind != MemPinned {
		r.inUse -= int64(a.size)
	}
	return nil
}

// MemoryInUse returns the device bytes currently allocated.
func (r *SimRuntime) MemoryInUse() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inUse
}

// TransferredBytes returns the bytes copied so far in the given direction.
func (r *SimRuntime) TransferredBytes(kind MemcpyKind) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.transfers[kind]
}

func (r *SimRuntime) DefaultStream() *Stream {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.streams) == 0 {
		return nil
	}
	return r.streams[0]
}

// NewStream creates an additional stream.
func (r *SimRuntime) NewStream() (*Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil, newError(r.kind.String(), "NewStream", ErrNotInitialized, "")
	}
	r.nextStream++
	s := newStream(r.nextStream)
	r.streams = append(r.streams, s)
	return s, nil
}

// StreamDestroy waits for s and releases it. The default stream cannot be
// destroyed.
func (r *SimRuntime) StreamDestroy(s *Stream) error {
	r.mu.Lock()
	idx := -1
	for i, st := range r.streams {
		if st == s {
			idx = i
		}
	}
	if idx <= 0 {
		r.mu.Unlock()
		return newError(r.kind.String(), "StreamDestroy", ErrInvalidValue, "unknown or default stream")
	}
	r.streams = append(r.streams[:idx], r.streams[idx+1:]...)
	r.mu.Unlock()

	err := s.Synchronize()
	s.close()
	return err
}

func (r *SimRuntime) stream(s *Stream) (*Stream, error) {
	if s != nil {
		return s, nil
	}
	if d := r.DefaultStream(); d != nil {
		return d, nil
	}
	return nil, newError(r.kind.String(), "stream", ErrNotInitialized, "")
}

// MemcpyAsync queues a copy of bytes from src to dst on s.
func (r *SimRuntime) MemcpyAsync(dst, src DevicePtr, bytes int, kind MemcpyKind, s *Stream) error {
	if bytes < 0 || bytes > dst.Size() || bytes > src.Size() {
		return newError(r.kind.String(), "MemcpyAsync", ErrInvalidValue,
			"copy of %d bytes from %d byte source to %d byte destination", bytes, src.Size(), dst.Size())
	}
	if err := r.checkDirection(dst, src, kind); err != nil {
		return err
	}
	s, err := r.stream(s)
	if err != nil {
		return err
	}
	if bytes == 0 {
		return s.Submit(func() error { return nil })
	}

	r.mu.Lock()
	r.transfers[kind] += int64(bytes)
	r.mu.Unlock()

	return s.Submit(func() error {
		copy(dst.Bytes()[:bytes], src.Bytes()[:bytes])
		return nil
	})
}

func (r *SimRuntime) checkDirection(dst, src DevicePtr, kind MemcpyKind) error {
	onDevice := func(p DevicePtr) bool { return p.kind == MemDevice || p.kind == MemManaged }
	ok := true
	switch kind {
	case MemcpyHostToDevice:
		ok = onDevice(dst) && !onDevice(src)
	case MemcpyDeviceToHost:
		ok = onDevice(src) && !onDevice(dst)
	case MemcpyDeviceToDevice:
		ok = onDevice(src) && onDevice(dst)
	case MemcpyHostToHost:
		ok = !onDevice(src) && !onDevice(dst)
	case MemcpyDefault:
	default:
		ok = false
	}
	if !ok {
		return newError(r.kind.String(), "MemcpyAsync", ErrInvalidValue,
			"%s copy from %s to %s memory", kind, src.kind, dst.kind)
	}
	return nil
}

// Launch queues a kernel on s. The launch configuration is validated
// synchronously; faults inside the kernel are reported by the next
// synchronize.
func (r *SimRuntime) Launch(cfg LaunchConfig, s *Stream, k KernelFunc) error {
	if err := r.validateLaunch(cfg); err != nil {
		return err
	}
	s, err := r.stream(s)
	if err != nil {
		return err
	}

	gridSize := cfg.Grid.Size()
	if gridSize == 0 {
		// Submit an empty task to maintain stream ordering
		return s.Submit(func() error { return nil })
	}

	numWorkers := r.props.Workers
	if gridSize < numWorkers {
		numWorkers = gridSize
	}
	blocksPerWorker := DivideCeil(gridSize, numWorkers)

	return s.Submit(func() error {
		var wg sync.WaitGroup
		var once sync.Once
		var fault error
		wg.Add(numWorkers)
		for w := 0; w < numWorkers; w++ {
			start := w * blocksPerWorker
			end := min(start+blocksPerWorker, gridSize)
			go func() {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						once.Do(func() {
							fault = newError(r.kind.String(), "Launch", ErrLaunchFailure, "kernel fault: %v", rec)
						})
					}
				}()
				RunBlocks(cfg, start, end, k)
			}()
		}
		wg.Wait()
		return fault
	})
}

func (r *SimRuntime) validateLaunch(cfg LaunchConfig) error {
	r.mu.Lock()
	initialized := r.initialized
	r.mu.Unlock()
	if !initialized {
		return newError(r.kind.String(), "Launch", ErrNotInitialized, "")
	}
	if cfg.Grid.X < 0 || cfg.Grid.Y < 0 || cfg.Grid.Z < 0 {
		return newError(r.kind.String(), "Launch", ErrLaunchFailure, "negative grid %+v", cfg.Grid)
	}
	if cfg.Grid.Size() > 0 && (cfg.Grid.X == 0 || cfg.Grid.Y == 0 || cfg.Grid.Z == 0) {
		return newError(r.kind.String(), "Launch", ErrLaunchFailure, "degenerate grid %+v", cfg.Grid)
	}
	bs := cfg.Block.Size()
	if cfg.Block.X <= 0 || cfg.Block.Y <= 0 || cfg.Block.Z <= 0 || bs > r.props.MaxThreadsPerBlock {
		return newError(r.kind.String(), "Launch", ErrLaunchFailure,
			"block %+v outside 1..%d threads", cfg.Block, r.props.MaxThreadsPerBlock)
	}
	if cfg.SharedMem < 0 || (r.props.SharedMemoryPerBlock > 0 && cfg.SharedMem > r.props.SharedMemoryPerBlock) {
		return newError(r.kind.String(), "Launch", ErrLaunchFailure,
			"shared memory %d exceeds %d", cfg.SharedMem, r.props.SharedMemoryPerBlock)
	}
	return nil
}

func (r *SimRuntime) StreamSynchronize(s *Stream) error {
	s, err := r.stream(s)
	if err != nil {
		return err
	}
	return s.Synchronize()
}

func (r *SimRuntime) DeviceSynchronize() error {
	r.mu.Lock()
	streams := append([]*Stream(nil), r.streams...)
	r.mu.Unlock()
	var first error
	for _, s := range streams {
		if err := s.Synchronize(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// OccupancyMaxActiveBlocksPerMultiprocessor is limited by threads, blocks
// and shared memory per multiprocessor, whichever binds first.
func (r *SimRuntime) OccupancyMaxActiveBlocksPerMultiprocessor(blockSize, sharedMem int) (int, error) {
	if blockSize <= 0 || blockSize > r.props.MaxThreadsPerBlock {
		return 0, newError(r.kind.String(), "Occupancy", ErrInvalidValue, "block size %d", blockSize)
	}
	blocks := r.props.MaxThreadsPerMultiProcessor / blockSize
	if r.props.MaxBlocksPerMultiProcessor > 0 {
		blocks = min(blocks, r.props.MaxBlocksPerMultiProcessor)
	}
	if sharedMem > 0 && r.props.SharedMemoryPerMultiProcessor > 0 {
		blocks = min(blocks, r.props.SharedMemoryPerMultiProcessor/sharedMem)
	}
	return max(blocks, 0), nil
}
