package forall

import (
	"fmt"

	"github.com/fxnlabs/perfsuite/internal/gpu"
)

// Launch runs a kernel written against blocks and threads under pol. Host
// policies execute the blocks themselves, in order for SeqExec and spread
// over the pool for ParallelExec; device policies launch on their runtime.
func Launch(pol Policy, cfg gpu.LaunchConfig, k gpu.KernelFunc) (err error) {
	switch p := pol.(type) {
	case SeqExec:
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("forall: launch panicked: %v", rec)
			}
		}()
		gpu.RunBlocks(cfg, 0, cfg.Grid.Size(), k)
		return nil
	case ParallelExec:
		return p.Pool.Run(N(cfg.Grid.Size()), func(_ int, c Range) {
			gpu.RunBlocks(cfg, c.Begin, c.End, k)
		})
	case GPUExec:
		if p.Runtime == nil {
			return fmt.Errorf("gpu policy without runtime: %w", gpu.ErrNotAvailable)
		}
		if err := p.Runtime.Launch(cfg, p.Stream, k); err != nil {
			return err
		}
		if p.Async {
			return nil
		}
		return p.Runtime.StreamSynchronize(p.Stream)
	case TargetExec:
		return Launch(p.gpuExec(), cfg, k)
	default:
		return fmt.Errorf("forall: unsupported policy %T", pol)
	}
}
