package gpu

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
)

// Manager owns the device runtimes compiled into the binary and their
// lifecycle.
type Manager struct {
	runtimes map[Kind]Runtime
	host     HostInfo
	mu       sync.RWMutex
	logger   *zap.Logger
}

// Option configures a Manager.
type Option func(*managerOptions)

type managerOptions struct {
	runtimes []Runtime
	explicit bool
}

// WithRuntimes replaces the compiled-in runtimes. Passing no runtimes gives a
// manager with no device support.
func WithRuntimes(rts ...Runtime) Option {
	return func(o *managerOptions) {
		o.runtimes = rts
		o.explicit = true
	}
}

// NewManager creates a new GPU manager and initializes every available
// runtime. Runtimes that fail to initialize are skipped, so their variants
// are not defined.
func NewManager(cfg config.GPUConfig, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o managerOptions
	for _, opt := range opts {
		opt(&o)
	}
	if !o.explicit {
		o.runtimes = compiledRuntimes(PropsFromConfig(cfg), logger)
	}

	m := &Manager{
		runtimes: make(map[Kind]Runtime),
		host:     DetectHost(),
		logger:   logger,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range o.runtimes {
		if _, dup := m.runtimes[rt.Kind()]; dup {
			return nil, fmt.Errorf("duplicate %s runtime", rt.Kind())
		}
		if !rt.IsAvailable() {
			continue
		}
		if err := rt.Initialize(); err != nil {
			logger.Warn("runtime failed to initialize", zap.Stringer("kind", rt.Kind()), zap.Error(err))
			// If initialization failed, try cleanup
			_ = rt.Cleanup()
			continue
		}
		m.runtimes[rt.Kind()] = rt
		logger.Info("device runtime ready", zap.Stringer("kind", rt.Kind()), zap.String("device", rt.GetDeviceInfo().Name))
	}
	if len(m.runtimes) == 0 {
		logger.Info("no device runtime available, device variants are disabled")
	}
	return m, nil
}

// Runtime returns the runtime of the given kind.
func (m *Manager) Runtime(kind Kind) (Runtime, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[kind]
	return rt, ok
}

// MustRuntime returns the runtime of the given kind or an ErrNotAvailable
// error.
func (m *Manager) MustRuntime(kind Kind) (Runtime, error) {
	rt, ok := m.Runtime(kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAvailable, kind)
	}
	return rt, nil
}

// IsGPUAvailable returns true if any device runtime is active
func (m *Manager) IsGPUAvailable() bool {
	if m == nil {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.runtimes) > 0
}

// AvailableKinds lists the active runtime kinds in a fixed order.
func (m *Manager) AvailableKinds() []Kind {
	var kinds []Kind
	for _, k := range Kinds() {
		if _, ok := m.Runtime(k); ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

// DeviceInfos returns device information for every active runtime.
func (m *Manager) DeviceInfos() []DeviceInfo {
	var infos []DeviceInfo
	for _, k := range m.AvailableKinds() {
		rt, _ := m.Runtime(k)
		infos = append(infos, rt.GetDeviceInfo())
	}
	return infos
}

// Host returns the host description captured at construction.
func (m *Manager) Host() HostInfo {
	if m == nil {
		return DetectHost()
	}
	return m.host
}

// Cleanup releases resources held by every runtime
func (m *Manager) Cleanup() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var first error
	for k, rt := range m.runtimes {
		if err := rt.Cleanup(); err != nil && first == nil {
			first = err
		}
		delete(m.runtimes, k)
	}
	return first
}
