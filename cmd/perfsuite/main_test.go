package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/report"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

func runApp(t *testing.T, args ...string) (*cliState, error) {
	t.Helper()
	st := &cliState{}
	err := newApp(st).Run(append([]string{"perfsuite", "--verbosity", "warn"}, args...))
	return st, err
}

func TestInit(t *testing.T) {
	home := t.TempDir()
	_, err := runApp(t, "--home", home, "init")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(home, "config.yaml"))
	require.NoError(t, err)

	_, err = runApp(t, "--home", home, "init")
	assert.ErrorContains(t, err, "already exists")
	_, err = runApp(t, "--home", home, "init", "--force")
	assert.NoError(t, err)

	// the written template loads as the configuration
	st, err := runApp(t, "--home", home, "list", "--kernels", "Basic")
	require.NoError(t, err)
	assert.Equal(t, []string{"Basic"}, st.cfg.Run.Kernels)
}

func TestRunStoresAndCompares(t *testing.T) {
	home := t.TempDir()
	storeDir := filepath.Join(home, "history")
	out := filepath.Join(home, "out")
	args := []string{"--home", home, "run",
		"--kernels", "Basic_PI_ATOMIC,Algorithm_REDUCE_SUM",
		"--variants", "Base_Seq,RAJA_Seq,Base_OpenMP",
		"--size", "2000", "--reps", "2", "--npasses", "2",
		"--no-banner", "--store", storeDir, "--json", "--chart", "-o", out,
	}
	for i := 0; i < 2; i++ {
		st, err := runApp(t, args...)
		require.NoError(t, err)
		assert.Equal(t, 2, st.cfg.Run.NPasses)
	}
	for _, name := range []string{report.JSONFileName, report.ChartFileName} {
		_, err := os.Stat(filepath.Join(out, name))
		assert.NoError(t, err, name)
	}

	s, err := store.Open(storeDir, nil)
	require.NoError(t, err)
	entries, err := s.List()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	latest, err := s.Latest()
	require.NoError(t, err)
	require.Len(t, latest.Kernels, 2)
	for _, k := range latest.Kernels {
		assert.True(t, k.Valid, k.Name)
		assert.Len(t, k.Rows, 3, k.Name)
	}
	require.NoError(t, s.Close())

	_, err = runApp(t, "--home", home, "compare", "--store", storeDir)
	assert.ErrorContains(t, err, "baseline")

	_, err = runApp(t, "--home", home, "history", "--store", storeDir, "--set-baseline", entries[0].ID)
	require.NoError(t, err)
	_, err = runApp(t, "--home", home, "compare", "--store", storeDir, "--regress", "1000")
	assert.NoError(t, err)
}

func TestRunRejectsBadSelection(t *testing.T) {
	home := t.TempDir()
	_, err := runApp(t, "--home", home, "run", "--no-banner", "--variants", "Base_Cobol")
	assert.ErrorContains(t, err, "run.variants")
	_, err = runApp(t, "--home", home, "run", "--no-banner", "--npasses", "0")
	assert.ErrorContains(t, err, "npasses")
	_, err = runApp(t, "--home", home, "run", "--no-banner", "--kernels", "Basic_NOPE")
	assert.ErrorContains(t, err, "unknown kernels or groups: Basic_NOPE")
	_, err = runApp(t, "--home", home, "history")
	assert.ErrorContains(t, err, "no run store")
}

func TestCheckRun(t *testing.T) {
	assert.NoError(t, checkRun(&suite.Summary{Kernels: []suite.KernelSummary{{Valid: true}}}))
	assert.Error(t, checkRun(&suite.Summary{Failures: 1, Kernels: []suite.KernelSummary{{Valid: true}}}))
	assert.Error(t, checkRun(&suite.Summary{Kernels: []suite.KernelSummary{{Valid: false}}}))
}
