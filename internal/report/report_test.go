package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernel/kerneltest"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/suite"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

func row(vid, tuning string, avg time.Duration, checksum float64) suite.Row {
	return suite.Row{
		Variant:  vid,
		Tuning:   tuning,
		Status:   kernel.StatusOK,
		Checksum: checksum,
		Passed:   true,
		Times:    []time.Duration{avg},
		MinTime:  avg,
		AvgTime:  avg,
		MaxTime:  avg,
	}
}

func testSummary() *suite.Summary {
	failed := row("RAJA_CUDA", "block_256", 0, 0)
	failed.Status = kernel.StatusFailed
	failed.Error = "out of device memory"
	failed.Passed = false
	return &suite.Summary{
		Started:  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
		Duration: 1500 * time.Millisecond,
		NPasses:  1,
		Failures: 1,
		Kernels: []suite.KernelSummary{{
			Name:        "Stream_TRIAD",
			Group:       "Stream",
			ProblemSize: 1000,
			Reps:        10,
			BytesPerRep: 24000,
			FLOPsPerRep: 2000,
			Features:    []string{"Forall"},
			Reference:   "Base_Seq default",
			Rows: []suite.Row{
				row("Base_Seq", "default", 2*time.Millisecond, 10),
				row("RAJA_CUDA", "block_64", time.Millisecond, 10),
				failed,
			},
		}},
	}
}

func TestText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Text(&buf, testSummary()))
	out := buf.String()
	assert.Contains(t, out, "Run 20261019T120000.000000000Z")
	assert.Contains(t, out, "Stream_TRIAD  size 1000  reps 10  features Forall  checksums FAILED")
	assert.Contains(t, out, "reference Base_Seq default")
	assert.Contains(t, out, "block_64")
	assert.Contains(t, out, "error: out of device memory")
	// 24000 bytes x 10 reps in 1ms
	assert.Contains(t, out, "0.24")
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, testSummary()))
	var got suite.Summary
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got.Kernels, 1)
	assert.Len(t, got.Kernels[0].Rows, 3)
	assert.Equal(t, kernel.StatusFailed, got.Kernels[0].Rows[2].Status)
}

func TestChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderChart(&buf, testSummary()))
	out := buf.String()
	assert.Contains(t, out, "Stream_TRIAD")
	assert.Contains(t, out, "Base_Seq default")
	assert.NotContains(t, out, "block_256")
}

func TestWriteFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteFiles(dir, testSummary(), false, false)
	require.NoError(t, err)
	assert.Empty(t, paths)

	paths, err = WriteFiles(dir, testSummary(), true, true)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, JSONFileName), filepath.Join(dir, ChartFileName)}, paths)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
}

func TestCompare(t *testing.T) {
	base := testSummary()
	cur := testSummary()
	rows := cur.Kernels[0].Rows
	rows[0] = row("Base_Seq", "default", time.Millisecond, 10)   // 2x faster
	rows[1] = row("RAJA_CUDA", "block_64", time.Millisecond, 11) // checksum moved
	cur.Kernels[0].Rows = append(rows, row("RAJA_HIP", "block_64", time.Millisecond, 10))
	base.Kernels[0].Rows = append(base.Kernels[0].Rows, row("Lambda_Seq", "default", time.Millisecond, 10))

	comps := Compare(base, cur, 1e-10, 1.1)
	got := make(map[string]ComparisonStatus)
	for _, c := range comps {
		got[c.Variant+" "+c.Tuning] = c.Status
	}
	assert.Equal(t, map[string]ComparisonStatus{
		"Base_Seq default":    StatusFaster,
		"RAJA_CUDA block_64":  StatusFail,
		"RAJA_CUDA block_256": StatusFail,
		"RAJA_HIP block_64":   StatusNew,
		"Lambda_Seq default":  StatusMissing,
	}, got)
	assert.InDelta(t, 2.0, comps[0].Speedup, 1e-12)
	assert.True(t, Failed(comps))

	same := Compare(base, base, 1e-10, 1.1)
	for _, c := range same[:2] {
		assert.Equal(t, StatusPass, c.Status, c.Name())
	}

	var buf bytes.Buffer
	require.NoError(t, PrintComparison(&buf, comps))
	assert.Contains(t, buf.String(), "FAILURES:")
	assert.Contains(t, buf.String(), "2.00x faster")
}

func TestTree(t *testing.T) {
	env := kerneltest.NewEnv(t)
	a := kerneltest.NewFake(env, "Basic", "A", variant.BaseSeq, variant.BaseCUDA)
	b := kerneltest.NewFake(env, "Basic", "B")
	reg := registry.New(env, []kernel.Kernel{a, b}, registry.Filter{}, nil)

	out := Tree(reg).String()
	assert.Contains(t, out, "perfsuite")
	assert.Contains(t, out, "Basic")
	assert.Contains(t, out, "Basic_A")
	assert.Contains(t, out, "Base_CUDA: block_64 block_256")
	assert.Contains(t, out, "features")
	assert.Contains(t, out, "no runnable variants")
}
