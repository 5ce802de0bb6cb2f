package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

func summary(started time.Time, valid bool) *suite.Summary {
	return &suite.Summary{
		Started:  started,
		Duration: 2 * time.Second,
		NPasses:  1,
		Kernels: []suite.KernelSummary{{
			Name:  "Basic_PI_ATOMIC",
			Group: "Basic",
			Valid: valid,
			Rows: []suite.Row{{
				Variant:  "Base_Seq",
				Tuning:   "default",
				Status:   kernel.StatusOK,
				Checksum: 3.14,
				Times:    []time.Duration{time.Millisecond},
			}},
		}},
	}
}

func TestStore(t *testing.T) {
	s, err := Open("", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Latest()
	assert.ErrorIs(t, err, ErrNotFound)

	t0 := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)
	second, err := s.Save(summary(t0.Add(time.Hour), false))
	require.NoError(t, err)
	first, err := s.Save(summary(t0, true))
	require.NoError(t, err)
	assert.Equal(t, "20261019T090000.000000000Z", first)

	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, first, entries[0].ID)
	assert.True(t, entries[0].Valid)
	assert.Equal(t, second, entries[1].ID)
	assert.False(t, entries[1].Valid)
	assert.Equal(t, 1, entries[1].Kernels)

	got, err := s.Get(first)
	require.NoError(t, err)
	assert.True(t, got.Started.Equal(t0))
	require.Len(t, got.Kernels, 1)
	assert.Equal(t, 3.14, got.Kernels[0].Rows[0].Checksum)
	assert.Equal(t, []time.Duration{time.Millisecond}, got.Kernels[0].Rows[0].Times)

	latest, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, second, ID(latest.Started))

	_, err = s.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_Baseline(t *testing.T) {
	s, err := Open("", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Baseline()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetBaseline("nope"), ErrNotFound)

	id, err := s.Save(summary(time.Now(), true))
	require.NoError(t, err)
	require.NoError(t, s.SetBaseline(id))
	base, err := s.Baseline()
	require.NoError(t, err)
	assert.Equal(t, id, ID(base.Started))

	require.NoError(t, s.Delete(id))
	_, err = s.Baseline()
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.Delete(id), ErrNotFound)
}

func TestStore_Persists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	id, err := s.Save(summary(time.Now(), true))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(dir, nil)
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "Basic_PI_ATOMIC", got.Kernels[0].Name)
}
