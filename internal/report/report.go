// Package report renders run summaries: a text table for the terminal, a
// JSON document, an HTML timing chart and comparisons between runs.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

const (
	JSONFileName  = "perfsuite.json"
	ChartFileName = "perfsuite.html"
)

func ms(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

func verdict(ok bool) string {
	if ok {
		return "PASSED"
	}
	return "FAILED"
}

// Text writes one table per kernel.
func Text(w io.Writer, sum *suite.Summary) error {
	tw := &errWriter{w: w}
	tw.printf("Run %s  passes %d  duration %v  failures %d\n\n",
		store.ID(sum.Started), sum.NPasses, sum.Duration.Round(time.Millisecond), sum.Failures)

	for _, k := range sum.Kernels {
		tw.printf("%s  size %d  reps %d  features %s  checksums %s\n",
			k.Name, k.ProblemSize, k.Reps, strings.Join(k.Features, ","), verdict(k.Valid))
		if k.Reference != "" {
			tw.printf("  reference %s\n", k.Reference)
		}
		tw.printf("  %-18s %-18s %-8s %10s %10s %10s %9s %22s %10s %9s %10s\n",
			"Variant", "Tuning", "Status", "Avg ms", "Min ms", "Max ms", "StdDev", "Checksum", "RelDiff", "GB/s", "GFLOP/s")
		tw.printf("  %s\n", strings.Repeat("-", 148))
		for _, r := range k.Rows {
			tw.printf("  %-18s %-18s %-8s %10.3f %10.3f %10.3f %9.2e %22.15e %10.2e %9.2f %10.2f\n",
				r.Variant, r.Tuning, r.Status,
				ms(r.AvgTime), ms(r.MinTime), ms(r.MaxTime), r.StdDev,
				r.Checksum, r.RelativeDiff,
				k.Bandwidth(r)/1e9, k.FLOPRate(r)/1e9)
			if r.Error != "" {
				tw.printf("    error: %s\n", r.Error)
			}
		}
		tw.printf("\n")
	}
	return tw.err
}

// JSON writes sum as an indented JSON document.
func JSON(w io.Writer, sum *suite.Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

// WriteFiles writes the JSON document and the chart into dir, as asked,
// and returns the paths written.
func WriteFiles(dir string, sum *suite.Summary, writeJSON, writeChart bool) ([]string, error) {
	if !writeJSON && !writeChart {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	var paths []string
	write := func(name string, render func(io.Writer, *suite.Summary) error) error {
		path := filepath.Join(dir, name)
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := render(f, sum); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}
	if writeJSON {
		if err := write(JSONFileName, JSON); err != nil {
			return paths, err
		}
	}
	if writeChart {
		if err := write(ChartFileName, RenderChart); err != nil {
			return paths, err
		}
	}
	return paths, nil
}

// errWriter keeps the first write error so table code can print freely.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
