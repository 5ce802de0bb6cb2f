package suite

import (
	"math"

	"gonum.org/v1/gonum/floats/scalar"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/metrics"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Check is one row's comparison against the reference row.
type Check struct {
	Key          kernel.Key
	RelativeDiff float64
	Passed       bool
}

// Validation is the outcome of comparing a kernel's checksums.
type Validation struct {
	// Reference is the row every other row is compared with. HasReference is
	// false when no row completed.
	Reference    kernel.Key
	HasReference bool
	Checks       map[kernel.Key]Check
	Passed       bool
}

// Reference picks the row to validate against: Base_Seq's first tuning if
// it completed, otherwise the first completed row in table order.
func Reference(rows []*kernel.Result) (*kernel.Result, bool) {
	for _, row := range rows {
		if row.Variant == variant.BaseSeq && row.Tuning == 0 && row.Status == kernel.StatusOK {
			return row, true
		}
	}
	for _, row := range rows {
		if row.Status == kernel.StatusOK {
			return row, true
		}
	}
	return nil, false
}

// RelativeDiff is |got-want| relative to |want|, or absolute when want is
// zero.
func RelativeDiff(got, want float64) float64 {
	diff := math.Abs(got - want)
	if want == 0 {
		return diff
	}
	return diff / math.Abs(want)
}

// ChecksumsMatch reports whether two per-pass checksums agree within tol,
// absolutely or relatively.
func ChecksumsMatch(got, want, tol float64) bool {
	return scalar.EqualWithinAbsOrRel(got, want, tol, tol)
}

// Validate compares every completed row of k with the reference row. Rows
// that did not complete fail validation.
func Validate(k kernel.Kernel, tol float64) Validation {
	b := k.Base()
	rows := b.Results().Rows()
	v := Validation{Checks: make(map[kernel.Key]Check, len(rows)), Passed: true}

	ref, ok := Reference(rows)
	if ok {
		v.Reference = kernel.Key{Variant: ref.Variant, Tuning: ref.Tuning}
		v.HasReference = true
	}
	for _, row := range rows {
		key := kernel.Key{Variant: row.Variant, Tuning: row.Tuning}
		c := Check{Key: key}
		if ok && row.Status == kernel.StatusOK {
			got, want := row.MeanChecksum(), ref.MeanChecksum()
			c.RelativeDiff = RelativeDiff(got, want)
			c.Passed = ChecksumsMatch(got, want, tol)
			metrics.ChecksumRelativeDiff.WithLabelValues(b.Name(), row.Variant.String(), row.TuningName).Set(c.RelativeDiff)
		}
		if !c.Passed {
			v.Passed = false
		}
		v.Checks[key] = c
	}
	if len(rows) == 0 {
		v.Passed = false
	}

	result := metrics.ResultPassed
	if !v.Passed {
		result = metrics.ResultFailed
	}
	metrics.ValidationResults.WithLabelValues(b.Name(), result).Inc()
	return v
}
