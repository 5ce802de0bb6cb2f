package kernel

import (
	"sort"
	"sync"
	"time"

	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Status is the outcome of a (variant, tuning) pair.
type Status string

const (
	StatusNotRun Status = "not-run"
	StatusOK     Status = "ok"
	StatusFailed Status = "failed"
)

// Key identifies one row of the results table.
type Key struct {
	Variant variant.ID
	Tuning  int
}

// Result is one row of the results table.
type Result struct {
	Variant    variant.ID      `json:"-"`
	Tuning     int             `json:"tuning"`
	TuningName string          `json:"tuningName"`
	Checksum   float64         `json:"checksum"` // accumulated over passes
	Times      []time.Duration `json:"times"`    // one per pass
	Status     Status          `json:"status"`
	Err        string          `json:"error,omitempty"`
}

// Passes returns the number of completed passes.
func (r *Result) Passes() int { return len(r.Times) }

// MeanChecksum returns the checksum of a single pass.
func (r *Result) MeanChecksum() float64 {
	if len(r.Times) == 0 {
		return r.Checksum
	}
	return r.Checksum / float64(len(r.Times))
}

// MinTime returns the fastest pass.
func (r *Result) MinTime() time.Duration {
	var out time.Duration
	for i, t := range r.Times {
		if i == 0 || t < out {
			out = t
		}
	}
	return out
}

// MaxTime returns the slowest pass.
func (r *Result) MaxTime() time.Duration {
	var out time.Duration
	for _, t := range r.Times {
		out = max(out, t)
	}
	return out
}

// AvgTime returns the mean pass time.
func (r *Result) AvgTime() time.Duration {
	if len(r.Times) == 0 {
		return 0
	}
	var sum time.Duration
	for _, t := range r.Times {
		sum += t
	}
	return sum / time.Duration(len(r.Times))
}

// Results is a kernel's results table keyed by (variant, tuning). It is
// owned by the kernel and updated by the driver.
type Results struct {
	mu   sync.Mutex
	rows map[Key]*Result
}

func NewResults() *Results {
	return &Results{rows: make(map[Key]*Result)}
}

// Entry returns the row for (vid, tune), creating it when absent.
func (r *Results) Entry(vid variant.ID, tune int, name string) *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := Key{Variant: vid, Tuning: tune}
	row, ok := r.rows[k]
	if !ok {
		row = &Result{Variant: vid, Tuning: tune, TuningName: name, Status: StatusNotRun}
		r.rows[k] = row
	}
	return row
}

// AddChecksum folds one pass's checksum into the row.
func (r *Result) AddChecksum(v float64) { r.Checksum += v }

// Get returns the row for (vid, tune).
func (r *Results) Get(vid variant.ID, tune int) (*Result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[Key{Variant: vid, Tuning: tune}]
	return row, ok
}

// Rows returns every row ordered by variant, then tuning.
func (r *Results) Rows() []*Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Result, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Variant != out[j].Variant {
			return out[i].Variant < out[j].Variant
		}
		return out[i].Tuning < out[j].Tuning
	})
	return out
}

// Reset clears the table.
func (r *Results) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = make(map[Key]*Result)
}

// Outcome is what one execution of a pair produced.
type Outcome struct {
	Kernel     string
	Variant    variant.ID
	Tuning     int
	TuningName string
	Elapsed    time.Duration
	// Checksum is the value this execution added to its row.
	Checksum float64
}
