package suite_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/suite"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func TestRelativeDiff(t *testing.T) {
	assert.Equal(t, 0.5, suite.RelativeDiff(3, 2))
	assert.Equal(t, 0.5, suite.RelativeDiff(-3, -2))
	assert.Equal(t, 0.25, suite.RelativeDiff(0.25, 0))

	assert.True(t, suite.ChecksumsMatch(1e6+1e-5, 1e6, 1e-10))
	assert.False(t, suite.ChecksumsMatch(1e6+1, 1e6, 1e-10))
	assert.True(t, suite.ChecksumsMatch(1e-12, 0, 1e-10))
}

func TestReference(t *testing.T) {
	ok := func(vid variant.ID, tune int) *kernel.Result {
		return &kernel.Result{Variant: vid, Tuning: tune, Status: kernel.StatusOK}
	}
	failed := &kernel.Result{Variant: variant.BaseSeq, Status: kernel.StatusFailed}

	ref, found := suite.Reference([]*kernel.Result{ok(variant.BaseSeq, 0), ok(variant.RAJASeq, 0)})
	require.True(t, found)
	assert.Equal(t, variant.BaseSeq, ref.Variant)

	ref, found = suite.Reference([]*kernel.Result{failed, ok(variant.RAJASeq, 1), ok(variant.BaseCUDA, 0)})
	require.True(t, found)
	assert.Equal(t, variant.RAJASeq, ref.Variant)
	assert.Equal(t, 1, ref.Tuning)

	_, found = suite.Reference([]*kernel.Result{failed})
	assert.False(t, found)
}

func TestValidate(t *testing.T) {
	tol := config.DefaultChecksumTolerance

	t.Run("agreeing", func(t *testing.T) {
		k, d := newDriver(t, variant.BaseSeq, variant.RAJASeq, variant.BaseCUDA)
		pairs := []kernel.Key{
			{Variant: variant.BaseSeq},
			{Variant: variant.RAJASeq},
			{Variant: variant.BaseCUDA},
			{Variant: variant.BaseCUDA, Tuning: 1},
		}
		for _, key := range pairs {
			_, err := d.Execute(k, key.Variant, key.Tuning)
			require.NoError(t, err)
		}
		v := suite.Validate(k, tol)
		assert.True(t, v.Passed)
		assert.True(t, v.HasReference)
		assert.Equal(t, kernel.Key{Variant: variant.BaseSeq}, v.Reference)
		assert.Len(t, v.Checks, 4)
	})

	t.Run("disagreeing", func(t *testing.T) {
		k, d := newDriver(t, variant.BaseSeq, variant.RAJASeq)
		k.Checksums[variant.RAJASeq] = 1.5
		_, err := d.Execute(k, variant.BaseSeq, 0)
		require.NoError(t, err)
		_, err = d.Execute(k, variant.RAJASeq, 0)
		require.NoError(t, err)

		v := suite.Validate(k, tol)
		assert.False(t, v.Passed)
		c := v.Checks[kernel.Key{Variant: variant.RAJASeq}]
		assert.False(t, c.Passed)
		assert.Equal(t, 0.5, c.RelativeDiff)
		assert.True(t, v.Checks[kernel.Key{Variant: variant.BaseSeq}].Passed)
	})

	t.Run("failed row", func(t *testing.T) {
		k, d := newDriver(t, variant.BaseSeq, variant.RAJASeq)
		_, err := d.Execute(k, variant.RAJASeq, 0)
		require.NoError(t, err)
		k.Fail[kernel.PhaseRun] = errors.New("boom")
		_, err = d.Execute(k, variant.BaseSeq, 0)
		require.Error(t, err)

		v := suite.Validate(k, tol)
		assert.False(t, v.Passed)
		assert.Equal(t, kernel.Key{Variant: variant.RAJASeq}, v.Reference)
		assert.True(t, v.Checks[kernel.Key{Variant: variant.RAJASeq}].Passed)
		assert.False(t, v.Checks[kernel.Key{Variant: variant.BaseSeq}].Passed)
	})

	t.Run("nothing ran", func(t *testing.T) {
		k, _ := newDriver(t, variant.BaseSeq)
		v := suite.Validate(k, tol)
		assert.False(t, v.Passed)
		assert.False(t, v.HasReference)
	})
}
