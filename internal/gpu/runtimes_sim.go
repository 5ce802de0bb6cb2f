//go:build gpusim
// +build gpusim

package gpu

import "go.uber.org/zap"

// compiledRuntimes returns emulated CUDA, HIP and offload runtimes.
func compiledRuntimes(props SimProps, logger *zap.Logger) []Runtime {
	logger.Debug("using emulated device runtimes")
	rts := make([]Runtime, 0, len(Kinds()))
	for _, k := range Kinds() {
		rts = append(rts, NewSimRuntime(k, props, logger))
	}
	return rts
}
