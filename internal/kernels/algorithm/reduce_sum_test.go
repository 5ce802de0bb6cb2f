package algorithm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func TestReduceSum(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		want float64
	}{
		{"ones", []Option{WithFill(kernel.Const(1))}, 3 * 1024},
		{"initial value", []Option{WithFill(kernel.Const(1)), WithInit(5)}, 3 * (1024 + 5)},
		{"ramp", []Option{WithFill(func(i int) float64 { return float64(i) })}, 3 * 1023 * 1024 / 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := kerneltest.NewEnv(t, func(cfg *config.Config) {
				cfg.Run.Size = 1024
				cfg.Run.Reps = 3
			})
			k := NewReduceSum(env, tt.opts...)
			pairs := kerneltest.Pairs(env, k)
			require.Len(t, k.DefinedVariants(), 12)
			for _, p := range pairs {
				got := kerneltest.RunPair(t, k, p)
				assert.Equal(t, tt.want, k.Sum(), p.String())
				assert.Equal(t, tt.want, got, p.String())
			}
		})
	}
}

func TestReduceSum_Workload(t *testing.T) {
	env := kerneltest.NewHostEnv(t, func(cfg *config.Config) { cfg.Run.Size = 500 })
	k := NewReduceSum(env)
	assert.Equal(t, "Algorithm_REDUCE_SUM", k.Name())
	assert.Equal(t, int64(500), k.ItsPerRep())
	assert.Equal(t, int64(8+8*500), k.BytesPerRep())
	assert.True(t, k.Features().Has(variant.Reduction))
	assert.False(t, k.HasVariantDefined(variant.LambdaCUDA))
}
