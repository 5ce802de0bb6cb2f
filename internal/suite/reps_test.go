package suite_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
	"github.com/fxnlabs/perfsuite/internal/kernels/algorithm"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

type repsOutcome struct {
	name     string
	checksum float64
	fastest  time.Duration
}

// runReduceSum executes every REDUCE_SUM pair a few times at the given
// repetition count and keeps each pair's checksum and fastest time.
func runReduceSum(t *testing.T, reps int) []repsOutcome {
	t.Helper()
	env := kerneltest.NewEnv(t, func(cfg *config.Config) {
		cfg.Run.Size = 1 << 16
		cfg.Run.Reps = reps
	})
	k := algorithm.NewReduceSum(env, algorithm.WithFill(kernel.Const(1)))
	reg := registry.New(env, []kernel.Kernel{k}, registry.Filter{}, zaptest.NewLogger(t))
	d := suite.NewDriver(reg, zaptest.NewLogger(t))

	var outs []repsOutcome
	for _, p := range reg.Pairs() {
		o := repsOutcome{name: p.String()}
		for trial := 0; trial < 3; trial++ {
			out, err := d.Execute(k, p.Variant, p.Tuning)
			require.NoError(t, err, p.String())
			assert.Positive(t, out.Elapsed, p.String())
			if trial == 0 {
				o.checksum = out.Checksum
				o.fastest = out.Elapsed
			}
			assert.Equal(t, o.checksum, out.Checksum, "%s trial %d", p, trial)
			o.fastest = min(o.fastest, out.Elapsed)
		}
		outs = append(outs, o)
	}
	return outs
}

func TestExecute_RepsScaleTimeAndChecksum(t *testing.T) {
	const n = 8
	once := runReduceSum(t, 1)
	many := runReduceSum(t, n)
	require.NotEmpty(t, once)
	require.Len(t, many, len(once))

	for i, o := range once {
		m := many[i]
		require.Equal(t, o.name, m.name)
		assert.Equal(t, float64(1<<16), o.checksum, o.name)
		assert.Equal(t, n*o.checksum, m.checksum, o.name)
		assert.GreaterOrEqual(t, m.fastest, o.fastest, o.name)
	}
}
