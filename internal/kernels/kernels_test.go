package kernels_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
	"github.com/fxnlabs/perfsuite/internal/kernels"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/suite"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func TestNames(t *testing.T) {
	env := kerneltest.NewHostEnv(t)
	all := kernels.All(env)
	names := kernels.Names()
	require.Len(t, all, len(names))
	for i, k := range all {
		assert.Equal(t, names[i], k.Base().Name())
	}
}

func TestNew(t *testing.T) {
	env := kerneltest.NewHostEnv(t)

	k, err := kernels.New("basic_pi_atomic", env)
	require.NoError(t, err)
	assert.Equal(t, "Basic_PI_ATOMIC", k.Base().Name())
	assert.Equal(t, "Basic", k.Base().Group())

	_, err = kernels.New("Basic_NOPE", env)
	assert.ErrorContains(t, err, "unknown kernel")
}

// Every pair of every kernel computes the same answer as Base_Seq.
func TestAll_PairsAgreeWithBaseSeq(t *testing.T) {
	env := kerneltest.NewEnv(t)
	for _, k := range kernels.All(env) {
		t.Run(k.Base().Name(), func(t *testing.T) {
			pairs := kerneltest.Pairs(env, k)
			require.NotEmpty(t, pairs)
			require.Equal(t, variant.BaseSeq, pairs[0].Variant)

			covered := make(map[variant.ID]bool)
			want := kerneltest.RunPair(t, k, pairs[0])
			for _, p := range pairs[1:] {
				covered[p.Variant] = true
				got := kerneltest.RunPair(t, k, p)
				assert.True(t, suite.ChecksumsMatch(got, want, config.DefaultChecksumTolerance),
					"%s: checksum %v, Base_Seq %v", p, got, want)
			}
			for _, vid := range k.Base().DefinedVariants() {
				if vid != variant.BaseSeq {
					assert.True(t, covered[vid], "%s never ran", vid)
				}
			}
			assert.Zero(t, env.Alloc.LiveCount(), "buffers left allocated")
		})
	}
}

func TestAll_WithoutDevicesOnlyHostPairs(t *testing.T) {
	env := kerneltest.NewHostEnv(t)
	for _, k := range kernels.All(env) {
		for _, p := range kerneltest.Pairs(env, k) {
			assert.False(t, p.Variant.IsDevice(), "%s %s", k.Base().Name(), p)
		}
	}
}

func TestAll_InvalidDivisionDisablesComm(t *testing.T) {
	env := kerneltest.NewHostEnv(t, func(cfg *config.Config) {
		cfg.Comm.Ranks = 6
		cfg.Comm.Division = []int{2, 2, 2}
	})
	require.False(t, env.Comm.Valid)
	for _, k := range kernels.All(env) {
		if k.Base().Group() == "Comm" {
			assert.Empty(t, k.Base().DefinedVariants(), k.Base().Name())
		} else {
			assert.NotEmpty(t, k.Base().DefinedVariants(), k.Base().Name())
		}
	}
}

// A device too small for most buffers fails those pairs only: host pairs
// still complete and nothing stays allocated.
func TestAll_OutOfDeviceMemoryFailsOnlyDevicePairs(t *testing.T) {
	env := kerneltest.NewEnv(t, func(cfg *config.Config) {
		cfg.GPU.TotalMemory = 12 << 10
	})
	reg := registry.New(env, kernels.All(env), registry.Filter{}, zaptest.NewLogger(t))
	sum, err := suite.NewExecutor(reg, env.Run, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.Positive(t, sum.Failures)

	failed := 0
	for _, k := range sum.Kernels {
		for _, row := range k.Rows {
			vid, err := variant.Parse(row.Variant)
			require.NoError(t, err)
			if !vid.IsDevice() {
				assert.Equal(t, kernel.StatusOK, row.Status, "%s %s %s: %s", k.Name, row.Variant, row.Tuning, row.Error)
				continue
			}
			if row.Status == kernel.StatusFailed {
				failed++
				assert.Contains(t, row.Error, gpu.ErrMemoryAllocation.Error(), "%s %s %s", k.Name, row.Variant, row.Tuning)
			}
		}
	}
	assert.Equal(t, sum.Failures, failed)

	assert.Zero(t, env.Alloc.LiveCount(), "buffers left allocated")
	for _, kind := range env.GPUs.AvailableKinds() {
		rt, ok := env.GPUs.Runtime(kind)
		require.True(t, ok)
		sim, ok := rt.(*gpu.SimRuntime)
		require.True(t, ok)
		assert.Zero(t, sim.MemoryInUse(), kind.String())
	}
}
