package gpu

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/config"
)

func TestNewManager_NoRuntimes(t *testing.T) {
	m, err := NewManager(config.Default().GPU, zaptest.NewLogger(t), WithRuntimes())
	require.NoError(t, err)
	defer m.Cleanup()

	assert.False(t, m.IsGPUAvailable())
	assert.Empty(t, m.AvailableKinds())
	_, ok := m.Runtime(CUDA)
	assert.False(t, ok)
	_, err = m.MustRuntime(HIP)
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestNewManager_Emulated(t *testing.T) {
	props := DefaultSimProps()
	m, err := NewManager(config.Default().GPU, zaptest.NewLogger(t),
		WithRuntimes(NewSimRuntime(HIP, props, nil), NewSimRuntime(CUDA, props, nil)))
	require.NoError(t, err)

	assert.True(t, m.IsGPUAvailable())
	assert.Equal(t, []Kind{CUDA, HIP}, m.AvailableKinds())
	assert.Len(t, m.DeviceInfos(), 2)

	rt, ok := m.Runtime(HIP)
	require.True(t, ok)
	assert.Equal(t, HIP, rt.Kind())

	require.NoError(t, m.Cleanup())
	assert.False(t, m.IsGPUAvailable())
}

func TestNewManager_SkipsFailedRuntime(t *testing.T) {
	bad := DefaultSimProps()
	bad.MultiProcessors = 0
	m, err := NewManager(config.Default().GPU, zaptest.NewLogger(t),
		WithRuntimes(NewSimRuntime(CUDA, bad, nil)))
	require.NoError(t, err)
	assert.False(t, m.IsGPUAvailable())
}

func TestNewManager_DuplicateKind(t *testing.T) {
	props := DefaultSimProps()
	_, err := NewManager(config.Default().GPU, zaptest.NewLogger(t),
		WithRuntimes(NewSimRuntime(CUDA, props, nil), NewSimRuntime(CUDA, props, nil)))
	assert.Error(t, err)
}

func TestNilManager(t *testing.T) {
	var m *Manager
	assert.False(t, m.IsGPUAvailable())
	_, ok := m.Runtime(CUDA)
	assert.False(t, ok)
	assert.NoError(t, m.Cleanup())
}

func TestDetectHost(t *testing.T) {
	h := DetectHost()
	assert.NotEmpty(t, h.Name)
	assert.Positive(t, h.NumCPU)
	assert.NotEmpty(t, h.GoVersion)
}
