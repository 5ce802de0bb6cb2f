package kernel

import (
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/comm"
	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/dataspace"
	"github.com/fxnlabs/perfsuite/internal/forall"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/variant"
)

// GPUBlockSizes are the block sizes every GPU kernel is built for. The
// configured list can only narrow it.
var GPUBlockSizes = []int{64, 128, 256, 512, 1024}

// CommEnv is the resolved rank layout for distributed kernels.
type CommEnv struct {
	Ranks     int
	Division  comm.Division
	Valid     bool
	HaloWidth int
	NumVars   int
}

// Env is everything a kernel needs from the run configuration and the
// machine.
type Env struct {
	Run    config.RunConfig
	GPUs   *gpu.Manager
	Alloc  *dataspace.Allocator
	Spaces dataspace.Spaces
	Pool   *forall.Pool
	Comm   CommEnv
	Logger *zap.Logger
}

// NewEnv resolves the configuration against the available runtimes. An
// invalid rank division is not an error: it disables distributed variants.
func NewEnv(cfg *config.Config, gpus *gpu.Manager, logger *zap.Logger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	spaces, err := dataspace.SpacesFromConfig(cfg.DataSpaces)
	if err != nil {
		return nil, err
	}
	e := &Env{
		Run:    cfg.Run,
		GPUs:   gpus,
		Alloc:  dataspace.NewAllocator(gpus, logger),
		Spaces: spaces,
		Pool:   forall.NewPool(cfg.Run.NumThreads),
		Comm: CommEnv{
			Ranks:     cfg.Comm.Ranks,
			HaloWidth: cfg.Comm.HaloWidth,
			NumVars:   cfg.Comm.NumVars,
		},
		Logger: logger,
	}
	div, err := comm.NewDivision(cfg.Comm.Ranks, cfg.Comm.Division)
	if err != nil {
		logger.Warn("invalid rank division, distributed kernels are disabled", zap.Error(err))
	} else {
		e.Comm.Division = div
		e.Comm.Valid = true
	}
	return e, nil
}

// BlockSizes returns the GPU block sizes tunings are generated for.
func (e *Env) BlockSizes() []int {
	if len(e.Run.GPUBlockSizes) == 0 {
		return GPUBlockSizes
	}
	var out []int
	for _, bs := range GPUBlockSizes {
		for _, want := range e.Run.GPUBlockSizes {
			if bs == want {
				out = append(out, bs)
				break
			}
		}
	}
	return out
}

// RuntimeKind returns the device runtime a variant needs, if any.
func RuntimeKind(vid variant.ID) (gpu.Kind, bool) {
	switch vid.Backend() {
	case variant.CUDA:
		return gpu.CUDA, true
	case variant.HIP:
		return gpu.HIP, true
	case variant.OpenMPTarget:
		return gpu.OpenMPTarget, true
	default:
		return 0, false
	}
}

// Runtime returns the device runtime of a device variant.
func (e *Env) Runtime(vid variant.ID) (gpu.Runtime, error) {
	kind, ok := RuntimeKind(vid)
	if !ok {
		return nil, fmt.Errorf("%s does not run on a device", vid)
	}
	return e.GPUs.MustRuntime(kind)
}

// VariantAvailable reports whether vid can run here: its runtime is active
// and its data spaces can be allocated.
func (e *Env) VariantAvailable(vid variant.ID) bool {
	if kind, ok := RuntimeKind(vid); ok {
		if _, active := e.GPUs.Runtime(kind); !active {
			return false
		}
	}
	return e.Alloc.Available(e.Spaces.For(vid)) && e.Alloc.Available(e.Spaces.Reduction(vid))
}

// Space returns the data space of a variant's arrays.
func (e *Env) Space(vid variant.ID) dataspace.DataSpace { return e.Spaces.For(vid) }

// ReductionSpace returns the data space of a variant's reduction targets.
func (e *Env) ReductionSpace(vid variant.ID) dataspace.DataSpace { return e.Spaces.Reduction(vid) }

// CommSpace returns the data space of a variant's message buffers.
func (e *Env) CommSpace(vid variant.ID) dataspace.DataSpace { return e.Spaces.Comm(vid) }

// ProblemSize scales a kernel's default size by the configuration.
func (e *Env) ProblemSize(def int) int {
	if e.Run.Size > 0 {
		return e.Run.Size
	}
	return max(1, int(math.Round(float64(def)*factor(e.Run.SizeFactor))))
}

// Reps scales a kernel's default repetition count by the configuration.
func (e *Env) Reps(def int) int {
	if e.Run.Reps > 0 {
		return e.Run.Reps
	}
	return max(1, int(math.Round(float64(def)*factor(e.Run.RepFactor))))
}

func factor(f float64) float64 {
	if f <= 0 {
		return 1
	}
	return f
}

// Policy returns the abstraction-layer policy for a RAJA or Lambda variant
// on a host backend.
func (e *Env) Policy(vid variant.ID) forall.Policy {
	if vid.Backend() == variant.OpenMP {
		return forall.ParallelExec{Pool: e.Pool}
	}
	return forall.SeqExec{}
}

// Device returns the runtime of a device variant and the stream its
// launches are queued on.
func (e *Env) Device(vid variant.ID) (gpu.Runtime, *gpu.Stream, error) {
	rt, err := e.Runtime(vid)
	if err != nil {
		return nil, nil, err
	}
	return rt, rt.DefaultStream(), nil
}
