// Package registry enumerates the (variant, tuning) pairs a run will
// execute and maps a pair back to its runnable tuning.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/metrics"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// Filter narrows a run. Empty lists select everything.
type Filter struct {
	// Kernels and ExcludeKernels match full names, short names or groups.
	Kernels         []string
	ExcludeKernels  []string
	Variants        []variant.ID
	ExcludeVariants []variant.ID
	Tunings         []string
	// Features selects kernels using any of the features.
	Features []variant.Feature
}

// FilterFromConfig parses the selection part of the run configuration.
func FilterFromConfig(rc config.RunConfig) (Filter, error) {
	f := Filter{
		Kernels:        rc.Kernels,
		ExcludeKernels: rc.ExcludeKernels,
		Tunings:        rc.Tunings,
	}
	var err error
	if f.Variants, err = variant.ParseList(rc.Variants); err != nil {
		return Filter{}, fmt.Errorf("run.variants: %w", err)
	}
	if f.ExcludeVariants, err = variant.ParseList(rc.ExcludeVariants); err != nil {
		return Filter{}, fmt.Errorf("run.excludeVariants: %w", err)
	}
	for _, name := range rc.Features {
		feat, err := variant.ParseFeature(name)
		if err != nil {
			return Filter{}, fmt.Errorf("run.features: %w", err)
		}
		f.Features = append(f.Features, feat)
	}
	return f, nil
}

// Pair is one runnable (kernel, variant, tuning) combination.
type Pair struct {
	Kernel     kernel.Kernel
	Variant    variant.ID
	Tuning     int
	TuningName string
}

func (p Pair) String() string {
	return fmt.Sprintf("%s %s %s", p.Kernel.Base().Name(), p.Variant, p.TuningName)
}

type cacheKey struct {
	kernel  string
	variant variant.ID
}

// Registry is the catalogue of a run. Tunings are enumerated once per
// (kernel, variant) and cached, so indices are stable for the life of the
// registry.
type Registry struct {
	env     *kernel.Env
	filter  Filter
	kernels []kernel.Kernel
	byName  map[string]kernel.Kernel
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[cacheKey][]kernel.Tuning
}

// New builds a registry over all, keeping the kernels the filter selects.
func New(env *kernel.Env, all []kernel.Kernel, filter Filter, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		env:    env,
		filter: filter,
		byName: make(map[string]kernel.Kernel),
		logger: logger.Named("registry"),
		cache:  make(map[cacheKey][]kernel.Tuning),
	}
	for _, k := range all {
		if r.selectKernel(k) {
			r.kernels = append(r.kernels, k)
			r.byName[strings.ToLower(k.Base().Name())] = k
		}
	}
	for _, name := range r.Unmatched() {
		r.logger.Warn("kernel selection matches nothing", zap.String("name", name))
	}
	return r
}

func matchesKernel(b *kernel.KernelBase, name string) bool {
	return strings.EqualFold(name, b.Name()) ||
		strings.EqualFold(name, b.ShortName()) ||
		strings.EqualFold(name, b.Group())
}

func (r *Registry) selectKernel(k kernel.Kernel) bool {
	b := k.Base()
	if len(r.filter.Kernels) > 0 {
		found := false
		for _, name := range r.filter.Kernels {
			if matchesKernel(b, name) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, name := range r.filter.ExcludeKernels {
		if matchesKernel(b, name) {
			return false
		}
	}
	if len(r.filter.Features) > 0 {
		uses := false
		for _, f := range r.filter.Features {
			if b.Features().Has(f) {
				uses = true
				break
			}
		}
		if !uses {
			return false
		}
	}
	return true
}

// Unmatched returns the kernel selection names that match no selected
// kernel.
func (r *Registry) Unmatched() []string {
	var out []string
	for _, name := range r.filter.Kernels {
		found := false
		for _, k := range r.kernels {
			if matchesKernel(k.Base(), name) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, name)
		}
	}
	return out
}

// Kernels returns the selected kernels in catalogue order.
func (r *Registry) Kernels() []kernel.Kernel {
	return r.kernels
}

// Kernel returns a selected kernel by full name.
func (r *Registry) Kernel(name string) (kernel.Kernel, bool) {
	k, ok := r.byName[strings.ToLower(name)]
	return k, ok
}

// Available reports whether vid of k can run: the kernel defines it and the
// environment supports it. The variant filter is not applied.
func (r *Registry) Available(k kernel.Kernel, vid variant.ID) bool {
	return k.Base().HasVariantDefined(vid) && r.env.VariantAvailable(vid)
}

func (r *Registry) variantSelected(vid variant.ID) bool {
	if len(r.filter.Variants) > 0 && !contains(r.filter.Variants, vid) {
		return false
	}
	return !contains(r.filter.ExcludeVariants, vid)
}

func contains[T comparable](s []T, v T) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// Variants returns the variants of k that will run, in enumeration order.
func (r *Registry) Variants(k kernel.Kernel) []variant.ID {
	var out []variant.ID
	for _, vid := range variant.All() {
		if r.Available(k, vid) && r.variantSelected(vid) {
			out = append(out, vid)
		}
	}
	return out
}

// Tunings returns every tuning of vid for k, in the kernel's order. It is
// empty when the variant is not available.
func (r *Registry) Tunings(k kernel.Kernel, vid variant.ID) []kernel.Tuning {
	if !r.Available(k, vid) {
		return nil
	}
	key := cacheKey{kernel: k.Base().Name(), variant: vid}

	r.mu.RLock()
	tunings, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return tunings
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if tunings, ok := r.cache[key]; ok {
		return tunings
	}
	tunings = k.Tunings(vid)
	r.cache[key] = tunings
	return tunings
}

func (r *Registry) tuningSelected(name string) bool {
	if len(r.filter.Tunings) == 0 {
		return true
	}
	for _, t := range r.filter.Tunings {
		if strings.EqualFold(t, name) {
			return true
		}
	}
	return false
}

// Pairs returns every selected pair in run order: kernels in catalogue
// order, then variants in enumeration order, then tunings by index.
// Filtered tunings keep their indices.
func (r *Registry) Pairs() []Pair {
	var pairs []Pair
	for _, k := range r.kernels {
		for _, vid := range r.Variants(k) {
			for idx, t := range r.Tunings(k, vid) {
				if !r.tuningSelected(t.Name) {
					continue
				}
				pairs = append(pairs, Pair{Kernel: k, Variant: vid, Tuning: idx, TuningName: t.Name})
			}
		}
	}
	metrics.PairsRegistered.Set(float64(len(pairs)))
	return pairs
}

// Lookup returns tuning idx of vid for k.
func (r *Registry) Lookup(k kernel.Kernel, vid variant.ID, idx int) (kernel.Tuning, error) {
	if !vid.Valid() {
		return kernel.Tuning{}, fmt.Errorf("%w: %d", variant.ErrUnknownVariant, int(vid))
	}
	tunings := r.Tunings(k, vid)
	if idx < 0 || idx >= len(tunings) {
		return kernel.Tuning{}, fmt.Errorf("%w: %s %s index %d", kernel.ErrUnknownTuning, k.Base().Name(), vid, idx)
	}
	return tunings[idx], nil
}

// TuningName returns the name of tuning idx of vid for k.
func (r *Registry) TuningName(k kernel.Kernel, vid variant.ID, idx int) (string, error) {
	t, err := r.Lookup(k, vid, idx)
	if err != nil {
		return "", err
	}
	return t.Name, nil
}

// TuningIndex returns the index of the tuning of vid for k named name.
func (r *Registry) TuningIndex(k kernel.Kernel, vid variant.ID, name string) (int, error) {
	for idx, t := range r.Tunings(k, vid) {
		if t.Name == name {
			return idx, nil
		}
	}
	return -1, fmt.Errorf("%w: %s %s %q", kernel.ErrUnknownTuning, k.Base().Name(), vid, name)
}
