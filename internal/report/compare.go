package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

// ComparisonStatus classifies one row of a comparison.
type ComparisonStatus string

const (
	StatusPass    ComparisonStatus = "PASS"
	StatusFail    ComparisonStatus = "FAIL"
	StatusSlower  ComparisonStatus = "SLOWER"
	StatusFaster  ComparisonStatus = "FASTER"
	StatusNew     ComparisonStatus = "NEW"
	StatusMissing ComparisonStatus = "MISSING"
)

// Comparison is one (kernel, variant, tuning) in a baseline and a current
// run.
type Comparison struct {
	Kernel  string
	Variant string
	Tuning  string
	Status  ComparisonStatus

	Baseline time.Duration
	Current  time.Duration
	// Speedup is baseline over current mean time.
	Speedup      float64
	RelativeDiff float64
	Message      string
}

func (c Comparison) Name() string { return c.Kernel + " " + c.Variant + " " + c.Tuning }

type rowKey struct{ kernel, variant, tuning string }

func index(sum *suite.Summary) map[rowKey]suite.Row {
	out := make(map[rowKey]suite.Row)
	for _, k := range sum.Kernels {
		for _, r := range k.Rows {
			out[rowKey{k.Name, r.Variant, r.Tuning}] = r
		}
	}
	return out
}

// Compare matches the rows of cur with those of base. A row fails when its
// checksum moved by more than tol or it stopped completing; otherwise it
// is slower or faster when its mean time moved by more than the regress
// factor.
func Compare(base, cur *suite.Summary, tol, regress float64) []Comparison {
	if regress < 1 {
		regress = 1
	}
	baseRows := index(base)
	seen := make(map[rowKey]bool)
	var out []Comparison

	for _, k := range cur.Kernels {
		for _, r := range k.Rows {
			key := rowKey{k.Name, r.Variant, r.Tuning}
			seen[key] = true
			c := Comparison{Kernel: k.Name, Variant: r.Variant, Tuning: r.Tuning, Current: r.AvgTime}
			b, ok := baseRows[key]
			switch {
			case !ok:
				c.Status, c.Message = StatusNew, "not in baseline"
			case r.Status != kernel.StatusOK:
				c.Status, c.Message = StatusFail, "did not complete: "+r.Error
			case b.Status != kernel.StatusOK:
				c.Status, c.Message = StatusNew, "baseline did not complete"
			default:
				c.Baseline = b.AvgTime
				c.RelativeDiff = suite.RelativeDiff(r.Checksum, b.Checksum)
				if r.AvgTime > 0 {
					c.Speedup = float64(b.AvgTime) / float64(r.AvgTime)
				}
				switch {
				case !suite.ChecksumsMatch(r.Checksum, b.Checksum, tol):
					c.Status = StatusFail
					c.Message = fmt.Sprintf("checksum %.15e, baseline %.15e", r.Checksum, b.Checksum)
				case c.Speedup > 0 && c.Speedup*regress < 1:
					c.Status, c.Message = StatusSlower, fmt.Sprintf("%.2fx slower", 1/c.Speedup)
				case c.Speedup > regress:
					c.Status, c.Message = StatusFaster, fmt.Sprintf("%.2fx faster", c.Speedup)
				default:
					c.Status = StatusPass
				}
			}
			out = append(out, c)
		}
	}
	for _, k := range base.Kernels {
		for _, r := range k.Rows {
			if key := (rowKey{k.Name, r.Variant, r.Tuning}); !seen[key] {
				out = append(out, Comparison{
					Kernel: k.Name, Variant: r.Variant, Tuning: r.Tuning,
					Status: StatusMissing, Baseline: r.AvgTime, Message: "not in current run",
				})
			}
		}
	}
	return out
}

// Failed reports whether any comparison failed.
func Failed(comps []Comparison) bool {
	for _, c := range comps {
		if c.Status == StatusFail {
			return true
		}
	}
	return false
}

// PrintComparison writes counts, then failures and performance changes,
// then every row.
func PrintComparison(w io.Writer, comps []Comparison) error {
	ew := &errWriter{w: w}
	counts := make(map[ComparisonStatus]int)
	for _, c := range comps {
		counts[c.Status]++
	}
	ew.printf("Summary:\n")
	for _, s := range []ComparisonStatus{StatusPass, StatusFail, StatusSlower, StatusFaster, StatusNew, StatusMissing} {
		ew.printf("  %-8s %d\n", s+":", counts[s])
	}
	ew.printf("\n")

	if counts[StatusFail] > 0 {
		ew.printf("FAILURES:\n")
		for _, c := range comps {
			if c.Status == StatusFail {
				ew.printf("  %s: %s\n", c.Name(), c.Message)
			}
		}
		ew.printf("\n")
	}
	if counts[StatusSlower] > 0 || counts[StatusFaster] > 0 {
		ew.printf("PERFORMANCE CHANGES:\n")
		for _, c := range comps {
			if c.Status == StatusSlower || c.Status == StatusFaster {
				ew.printf("  %s: %s (%.3fms -> %.3fms)\n", c.Name(), c.Message, ms(c.Baseline), ms(c.Current))
			}
		}
		ew.printf("\n")
	}

	ew.printf("%-56s %-8s %10s %10s %8s %10s\n", "Pair", "Status", "Baseline", "Current", "Speedup", "RelDiff")
	ew.printf("%s\n", strings.Repeat("-", 107))
	for _, c := range comps {
		ew.printf("%-56s %-8s %10.3f %10.3f %8.2f %10.2e\n",
			c.Name(), c.Status, ms(c.Baseline), ms(c.Current), c.Speedup, c.RelativeDiff)
	}
	return ew.err
}
