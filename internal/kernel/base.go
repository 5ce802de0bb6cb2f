package kernel

import (
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// KernelBase is the workload description and results table every kernel
// embeds.
type KernelBase struct {
	name      string
	shortName string
	group     string
	env       *Env

	defaultSize int
	defaultReps int
	actualSize  int
	runReps     int

	itsPerRep     int64
	kernelsPerRep int64
	bytesPerRep   int64
	flopsPerRep   int64

	features variant.FeatureSet
	defined  [variant.Count]bool

	results *Results
}

// NewBase describes a kernel named <group>_<name>. The actual size and reps
// are the defaults scaled by the run configuration.
func NewBase(env *Env, group, name string, defaultSize, defaultReps int) KernelBase {
	return KernelBase{
		name:        group + "_" + name,
		shortName:   name,
		group:       group,
		env:         env,
		defaultSize: defaultSize,
		defaultReps: defaultReps,
		actualSize:  env.ProblemSize(defaultSize),
		runReps:     env.Reps(defaultReps),
		results:     NewResults(),
	}
}

// Base returns b itself so kernels embedding KernelBase satisfy Kernel.
func (b *KernelBase) Base() *KernelBase { return b }

// Name returns the full name, <group>_<name>.
func (b *KernelBase) Name() string { return b.name }

// ShortName returns the name without its group.
func (b *KernelBase) ShortName() string { return b.shortName }
func (b *KernelBase) Group() string { return b.group }
func (b *KernelBase) Env() *Env { return b.env }
func (b *KernelBase) Results() *Results { return b.results }

func (b *KernelBase) DefaultProblemSize() int { return b.defaultSize }
func (b *KernelBase) DefaultReps() int { return b.defaultReps }

// ActualProblemSize is the problem size this run uses.
func (b *KernelBase) ActualProblemSize() int { return b.actualSize }

// RunReps is the number of repetitions per timed region.
func (b *KernelBase) RunReps() int { return b.runReps }

// SetActualProblemSize overrides the scaled size for kernels whose shape
// rounds the requested size, such as square matrices.
func (b *KernelBase) SetActualProblemSize(n int) { b.actualSize = n }

func (b *KernelBase) SetItsPerRep(n int64) { b.itsPerRep = n }
func (b *KernelBase) SetKernelsPerRep(n int64) { b.kernelsPerRep = n }
func (b *KernelBase) SetBytesPerRep(n int64) { b.bytesPerRep = n }
func (b *KernelBase) SetFLOPsPerRep(n int64) { b.flopsPerRep = n }

func (b *KernelBase) ItsPerRep() int64 { return b.itsPerRep }
func (b *KernelBase) KernelsPerRep() int64 { return b.kernelsPerRep }
func (b *KernelBase) BytesPerRep() int64 { return b.bytesPerRep }
func (b *KernelBase) FLOPsPerRep() int64 { return b.flopsPerRep }

// SetUsesFeature records a feature the kernel exercises.
func (b *KernelBase) SetUsesFeature(f variant.Feature) { b.features = b.features.Add(f) }

// Features returns the features the kernel exercises.
func (b *KernelBase) Features() variant.FeatureSet { return b.features }

// SetVariantDefined declares that the kernel implements vid.
func (b *KernelBase) SetVariantDefined(vid variant.ID) {
	if vid.Valid() {
		b.defined[vid] = true
	}
}

// SetVariantsDefined declares several variants at once.
func (b *KernelBase) SetVariantsDefined(vids ...variant.ID) {
	for _, vid := range vids {
		b.SetVariantDefined(vid)
	}
}

// HasVariantDefined reports whether the kernel implements vid.
func (b *KernelBase) HasVariantDefined(vid variant.ID) bool {
	return vid.Valid() && b.defined[vid]
}

// DefinedVariants lists the implemented variants in enumeration order.
func (b *KernelBase) DefinedVariants() []variant.ID {
	var out []variant.ID
	for _, vid := range variant.All() {
		if b.defined[vid] {
			out = append(out, vid)
		}
	}
	return out
}

// AddChecksum folds v into the checksum of (vid, tune).
func (b *KernelBase) AddChecksum(vid variant.ID, tune int, v float64) {
	b.results.Entry(vid, tune, "").AddChecksum(v)
}
