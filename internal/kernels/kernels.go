// Package kernels is the catalogue of every kernel the suite ships.
package kernels

import (
	"fmt"
	"strings"

	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernels/algorithm"
	"github.com/fxnlabs/perfsuite/internal/kernels/apps"
	"github.com/fxnlabs/perfsuite/internal/kernels/basic"
	"github.com/fxnlabs/perfsuite/internal/kernels/comm"
	"github.com/fxnlabs/perfsuite/internal/kernels/polybench"
)

// constructors is in suite order; the registry enumerates kernels in this
// order.
var constructors = []struct {
	name string
	new  func(env *kernel.Env) kernel.Kernel
}{
	{"Algorithm_REDUCE_SUM", func(env *kernel.Env) kernel.Kernel { return algorithm.NewReduceSum(env) }},
	{"Basic_PI_ATOMIC", func(env *kernel.Env) kernel.Kernel { return basic.NewPIAtomic(env) }},
	{"Basic_REDUCE_STRUCT", func(env *kernel.Env) kernel.Kernel { return basic.NewReduceStruct(env) }},
	{"Basic_TRAP_INT", func(env *kernel.Env) kernel.Kernel { return basic.NewTrapInt(env) }},
	{"Basic_MAT_MAT_SHARED", func(env *kernel.Env) kernel.Kernel { return basic.NewMatMatShared(env) }},
	{"Apps_LTIMES_NOVIEW", func(env *kernel.Env) kernel.Kernel { return apps.NewLTimesNoView(env) }},
	{"Polybench_3MM", func(env *kernel.Env) kernel.Kernel { return polybench.NewThreeMM(env) }},
	{"Comm_HALOEXCHANGE", func(env *kernel.Env) kernel.Kernel { return comm.NewHaloExchange(env) }},
	{"Comm_HALOEXCHANGE_FUSED", func(env *kernel.Env) kernel.Kernel { return comm.NewHaloExchangeFused(env) }},
}

// Names lists every kernel's full name in suite order.
func Names() []string {
	out := make([]string, len(constructors))
	for i, c := range constructors {
		out[i] = c.name
	}
	return out
}

// All creates every kernel against env.
func All(env *kernel.Env) []kernel.Kernel {
	out := make([]kernel.Kernel, len(constructors))
	for i, c := range constructors {
		out[i] = c.new(env)
	}
	return out
}

// New creates one kernel by full name, ignoring case.
func New(name string, env *kernel.Env) (kernel.Kernel, error) {
	for _, c := range constructors {
		if strings.EqualFold(c.name, name) {
			return c.new(env), nil
		}
	}
	return nil, fmt.Errorf("unknown kernel %q", name)
}
