package kernel

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/variant"
)

func TestRun_Repeat(t *testing.T) {
	r := NewRun("Basic_X", variant.BaseSeq, 0, 4, 100)
	assert.False(t, r.Timed())

	var seen []int
	require.NoError(t, r.Repeat(func(irep int) error {
		seen = append(seen, irep)
		return nil
	}))
	assert.Equal(t, []int{0, 1, 2, 3}, seen)
	assert.True(t, r.Timed())
	assert.Equal(t, 100, r.ProblemSize())

	err := r.Repeat(func(int) error { return nil })
	assert.ErrorContains(t, err, "already run")
}

func TestRun_RepeatStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	r := NewRun("Basic_X", variant.BaseSeq, 0, 10, 1)
	calls := 0
	err := r.Repeat(func(irep int) error {
		calls++
		if irep == 2 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.True(t, r.Timed())
}

func TestResult_Times(t *testing.T) {
	var empty Result
	assert.Zero(t, empty.MinTime())
	assert.Zero(t, empty.AvgTime())
	assert.Zero(t, empty.MaxTime())

	r := Result{Checksum: 9, Times: []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}}
	assert.Equal(t, 3, r.Passes())
	assert.Equal(t, time.Millisecond, r.MinTime())
	assert.Equal(t, 2*time.Millisecond, r.AvgTime())
	assert.Equal(t, 3*time.Millisecond, r.MaxTime())
	assert.Equal(t, 3.0, r.MeanChecksum())
}

func TestResults(t *testing.T) {
	res := NewResults()
	a := res.Entry(variant.RAJASeq, 1, "b")
	res.Entry(variant.BaseSeq, 0, "default")
	res.Entry(variant.RAJASeq, 0, "a")
	assert.Equal(t, StatusNotRun, a.Status)
	assert.Same(t, a, res.Entry(variant.RAJASeq, 1, "ignored"))
	assert.Equal(t, "b", a.TuningName)

	a.AddChecksum(1.5)
	a.AddChecksum(2)
	got, ok := res.Get(variant.RAJASeq, 1)
	require.True(t, ok)
	assert.Equal(t, 3.5, got.Checksum)
	_, ok = res.Get(variant.BaseCUDA, 0)
	assert.False(t, ok)

	var keys []Key
	for _, row := range res.Rows() {
		keys = append(keys, Key{row.Variant, row.Tuning})
	}
	assert.Equal(t, []Key{{variant.BaseSeq, 0}, {variant.RAJASeq, 0}, {variant.RAJASeq, 1}}, keys)

	res.Reset()
	assert.Empty(t, res.Rows())
}

func TestChecksum(t *testing.T) {
	assert.Zero(t, Checksum([]float64{}))
	assert.Equal(t, 1.0+2*2+3*3, Checksum([]float64{1, 2, 3}))
	assert.Equal(t, 1.0*7+2*(-1), Checksum([]int{7, -1}))

	// compensation keeps small terms that plain summation would drop
	vals := make([]float64, 1001)
	vals[0] = 1e16
	for i := 1; i < len(vals); i++ {
		vals[i] = 1 / float64(i+1)
	}
	assert.InDelta(t, 1e16+1000, Checksum(vals), 2)
}

func TestRunError(t *testing.T) {
	inner := errors.New("out of memory")
	err := error(&RunError{Kernel: "Basic_X", Variant: variant.BaseCUDA, Tuning: "block_256", Phase: PhaseSetUp, Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "Basic_X Base_CUDA block_256: setup: out of memory", err.Error())

	var re *RunError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, PhaseSetUp, re.Phase)
}

func TestNames(t *testing.T) {
	assert.Equal(t, "block_128", BlockName(128))
	assert.Equal(t, "occgs_128", OccGSName(128))
	tunings := Default(func(*Run) error { return nil })
	require.Len(t, tunings, 1)
	assert.Equal(t, "default", tunings[0].Name)
	assert.Zero(t, tunings[0].BlockSize)
}
