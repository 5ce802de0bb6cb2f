// Package kerneltest builds kernel environments for tests: small problem
// sizes, one repetition and emulated CUDA, HIP and offload runtimes.
package kerneltest

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Config returns the configuration NewEnv starts from.
func Config() *config.Config {
	cfg := config.Default()
	cfg.Run.Size = 1000
	cfg.Run.Reps = 1
	cfg.Run.NumThreads = 4
	cfg.Run.GPUBlockSizes = []int{64, 256}
	cfg.GPU.TotalMemory = 256 << 20
	return cfg
}

// NewEnv returns an environment with every emulated runtime active. Each
// mutate function edits the configuration first.
func NewEnv(t testing.TB, mutate ...func(cfg *config.Config)) *kernel.Env {
	t.Helper()
	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}
	props := gpu.PropsFromConfig(cfg.GPU)
	logger := zaptest.NewLogger(t)
	m, err := gpu.NewManager(cfg.GPU, logger, gpu.WithRuntimes(
		gpu.NewSimRuntime(gpu.CUDA, props, nil),
		gpu.NewSimRuntime(gpu.HIP, props, nil),
		gpu.NewSimRuntime(gpu.OpenMPTarget, props, nil),
	))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Cleanup() })

	env, err := kernel.NewEnv(cfg, m, logger)
	require.NoError(t, err)
	return env
}

// NewHostEnv returns an environment without device runtimes.
func NewHostEnv(t testing.TB, mutate ...func(cfg *config.Config)) *kernel.Env {
	t.Helper()
	cfg := Config()
	for _, m := range mutate {
		m(cfg)
	}
	logger := zaptest.NewLogger(t)
	m, err := gpu.NewManager(cfg.GPU, logger, gpu.WithRuntimes())
	require.NoError(t, err)

	env, err := kernel.NewEnv(cfg, m, logger)
	require.NoError(t, err)
	return env
}

// Pair is one (variant, tuning) of a kernel.
type Pair struct {
	Variant variant.ID
	Index   int
	Tuning  kernel.Tuning
}

func (p Pair) String() string { return p.Variant.String() + "/" + p.Tuning.Name }

// Pairs lists every pair of k that env can run, in enumeration order.
func Pairs(env *kernel.Env, k kernel.Kernel) []Pair {
	var out []Pair
	for _, vid := range k.Base().DefinedVariants() {
		if !env.VariantAvailable(vid) {
			continue
		}
		for idx, tuning := range k.Tunings(vid) {
			out = append(out, Pair{Variant: vid, Index: idx, Tuning: tuning})
		}
	}
	return out
}

// RunPair sets up, runs and checksums p for k, calls each inspect function
// while the kernel's data is still live, then tears down. It returns the
// checksum the pass added.
func RunPair(t testing.TB, k kernel.Kernel, p Pair, inspect ...func()) float64 {
	t.Helper()
	b := k.Base()
	require.NoError(t, k.SetUp(p.Variant, p.Index), "set up %s", p)

	r := kernel.NewRun(b.Name(), p.Variant, p.Index, b.RunReps(), b.ActualProblemSize())
	require.NoError(t, p.Tuning.Run(r), "run %s", p)
	require.True(t, r.Timed(), "%s did not run its timed region", p)

	row := b.Results().Entry(p.Variant, p.Index, p.Tuning.Name)
	before := row.Checksum
	require.NoError(t, k.UpdateChecksum(p.Variant, p.Index), "checksum %s", p)
	for _, fn := range inspect {
		fn()
	}
	require.NoError(t, k.TearDown(p.Variant, p.Index), "tear down %s", p)
	return row.Checksum - before
}
