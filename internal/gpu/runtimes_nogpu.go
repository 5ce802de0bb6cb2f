//go:build !gpusim
// +build !gpusim

package gpu

import "go.uber.org/zap"

// compiledRuntimes returns no runtimes when built without device support.
func compiledRuntimes(_ SimProps, logger *zap.Logger) []Runtime {
	logger.Debug("built without device runtimes")
	return nil
}
