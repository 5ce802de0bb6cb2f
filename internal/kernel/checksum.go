package kernel

import (
	"github.com/fxnlabs/perfsuite/internal/dataspace"
)

// Checksum folds values into a position-weighted sum, Σ (i+1)·v[i], with
// compensated summation so that long arrays keep their low bits.
func Checksum[T dataspace.Element](values []T) float64 {
	var sum, c float64
	for i, v := range values {
		x := float64(i+1)*float64(v) - c
		t := sum + x
		c = (t - sum) - x
		sum = t
	}
	return sum
}

// BufferChecksum copies b to the host and checksums it.
func BufferChecksum[T dataspace.Element](a *dataspace.Allocator, b *dataspace.Buffer[T]) (float64, error) {
	values, err := dataspace.ToHost(a, b)
	if err != nil {
		return 0, err
	}
	return Checksum(values), nil
}
