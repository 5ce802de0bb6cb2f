package variant

import (
	"fmt"
	"strings"
)

// Feature names a programming-model feature a kernel exercises.
type Feature int

const (
	Forall Feature = iota
	Kernel
	Launch
	Sort
	Scan
	Workgroup
	Reduction
	Atomic
	View
	MPI

	numFeatures
)

var featureNames = [numFeatures]string{
	Forall:    "Forall",
	Kernel:    "Kernel",
	Launch:    "Launch",
	Sort:      "Sort",
	Scan:      "Scan",
	Workgroup: "Workgroup",
	Reduction: "Reduction",
	Atomic:    "Atomic",
	View:      "View",
	MPI:       "MPI",
}

func (f Feature) String() string {
	if f < 0 || f >= numFeatures {
		return fmt.Sprintf("Feature(%d)", int(f))
	}
	return featureNames[f]
}

// ParseFeature maps a feature name to its value.
func ParseFeature(name string) (Feature, error) {
	for i, n := range featureNames {
		if strings.EqualFold(n, name) {
			return Feature(i), nil
		}
	}
	return 0, fmt.Errorf("unknown feature: %q", name)
}

// FeatureSet is a small bit set of features.
type FeatureSet uint32

// Add returns the set with f included.
func (s FeatureSet) Add(f Feature) FeatureSet { return s | 1<<uint(f) }

// Has reports whether f is in the set.
func (s FeatureSet) Has(f Feature) bool { return s&(1<<uint(f)) != 0 }

// List returns the features in the set in enumeration order.
func (s FeatureSet) List() []Feature {
	var out []Feature
	for f := Feature(0); f < numFeatures; f++ {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}
