package suite_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/suite"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func newDriver(t *testing.T, vids ...variant.ID) (*kerneltest.Fake, *suite.Driver) {
	t.Helper()
	env := kerneltest.NewEnv(t)
	k := kerneltest.NewFake(env, "Basic", "FAKE", vids...)
	reg := registry.New(env, []kernel.Kernel{k}, registry.Filter{}, zaptest.NewLogger(t))
	return k, suite.NewDriver(reg, zaptest.NewLogger(t))
}

func TestExecute(t *testing.T) {
	k, d := newDriver(t, variant.BaseSeq, variant.BaseCUDA)
	k.Checksums[variant.BaseCUDA] = 2.5

	out, err := d.Execute(k, variant.BaseCUDA, 1)
	require.NoError(t, err)
	assert.Equal(t, "Basic_FAKE", out.Kernel)
	assert.Equal(t, "block_256", out.TuningName)
	assert.Equal(t, 2.5, out.Checksum)

	_, err = d.Execute(k, variant.BaseCUDA, 1)
	require.NoError(t, err)

	row, ok := k.Results().Get(variant.BaseCUDA, 1)
	require.True(t, ok)
	assert.Equal(t, kernel.StatusOK, row.Status)
	assert.Equal(t, "block_256", row.TuningName)
	assert.Len(t, row.Times, 2)
	assert.Equal(t, 5.0, row.Checksum)
	assert.Equal(t, 2.5, row.MeanChecksum())
	assert.Equal(t, 2, k.SetUps())
	assert.Equal(t, 2, k.TearDowns())
}

func TestExecute_Failures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		phase    kernel.Phase
		setUps   int
		checksum float64
	}{
		{kernel.PhaseSetUp, 0, 0},
		{kernel.PhaseRun, 1, 0},
		{kernel.PhaseChecksum, 1, 0},
		{kernel.PhaseTearDown, 1, 1},
	}
	for _, tt := range tests {
		t.Run(string(tt.phase), func(t *testing.T) {
			k, d := newDriver(t, variant.BaseSeq)
			k.Fail[tt.phase] = boom

			_, err := d.Execute(k, variant.BaseSeq, 0)
			require.ErrorIs(t, err, boom)
			var re *kernel.RunError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.phase, re.Phase)
			assert.Equal(t, "default", re.Tuning)

			assert.Equal(t, tt.setUps, k.SetUps())
			assert.Equal(t, 1, k.TearDowns(), "tear down always runs")

			row, ok := k.Results().Get(variant.BaseSeq, 0)
			require.True(t, ok)
			assert.Equal(t, kernel.StatusFailed, row.Status)
			assert.Contains(t, row.Err, "boom")
			assert.Empty(t, row.Times)
			assert.Equal(t, tt.checksum, row.Checksum)
		})
	}
}

func TestExecute_RunAndTearDownBothReported(t *testing.T) {
	k, d := newDriver(t, variant.BaseSeq)
	runErr, tdErr := errors.New("run"), errors.New("teardown")
	k.Fail[kernel.PhaseRun] = runErr
	k.Fail[kernel.PhaseTearDown] = tdErr

	_, err := d.Execute(k, variant.BaseSeq, 0)
	assert.ErrorIs(t, err, runErr)
	assert.ErrorIs(t, err, tdErr)
}

func TestExecute_FailureIsSticky(t *testing.T) {
	k, d := newDriver(t, variant.BaseSeq)
	k.Fail[kernel.PhaseRun] = errors.New("flaky")
	_, err := d.Execute(k, variant.BaseSeq, 0)
	require.Error(t, err)

	delete(k.Fail, kernel.PhaseRun)
	_, err = d.Execute(k, variant.BaseSeq, 0)
	require.NoError(t, err)

	row, _ := k.Results().Get(variant.BaseSeq, 0)
	assert.Equal(t, kernel.StatusFailed, row.Status)
	assert.Len(t, row.Times, 1)
}

func TestExecute_Untimed(t *testing.T) {
	k, d := newDriver(t, variant.BaseSeq)
	k.Untimed = true
	_, err := d.Execute(k, variant.BaseSeq, 0)
	assert.ErrorIs(t, err, suite.ErrNotTimed)
	assert.Equal(t, 1, k.TearDowns())
}

func TestExecute_Lookup(t *testing.T) {
	k, d := newDriver(t, variant.BaseSeq, variant.BaseCUDA)
	tests := []struct {
		name string
		vid  variant.ID
		idx  int
		want error
	}{
		{"index out of range", variant.BaseCUDA, 2, kernel.ErrUnknownTuning},
		{"undefined variant", variant.RAJASeq, 0, kernel.ErrUnknownTuning},
		{"invalid variant", variant.ID(-1), 0, variant.ErrUnknownVariant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Execute(k, tt.vid, tt.idx)
			require.ErrorIs(t, err, tt.want)
			var re *kernel.RunError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, kernel.PhaseLookup, re.Phase)
		})
	}
	assert.Zero(t, k.SetUps())
	assert.Zero(t, k.TearDowns())
	assert.Empty(t, k.Results().Rows())
}
