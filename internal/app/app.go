// Package app assembles the suite's components with fx for the long
// running report server.
package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernels"
	"github.com/fxnlabs/perfsuite/internal/logger"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/server"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

// Module provides everything from a *config.Config, which the caller
// supplies, to a started *server.Server.
var Module = fx.Options(
	fx.Provide(
		NewLogger,
		NewGPUManager,
		NewEnv,
		NewRegistry,
		NewExecutor,
		NewStore,
		NewServer,
		func(e *suite.Executor) server.Runner { return e },
	),
	fx.Invoke(func(*server.Server) {}),
)

func NewLogger(cfg *config.Config) (*zap.Logger, error) {
	return logger.Build(cfg.Logger.Verbosity, cfg.Logger.Format)
}

func NewGPUManager(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*gpu.Manager, error) {
	m, err := gpu.NewManager(cfg.GPU, log.Named("gpu"))
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return m.Cleanup() },
	})
	return m, nil
}

func NewEnv(cfg *config.Config, m *gpu.Manager, log *zap.Logger) (*kernel.Env, error) {
	return kernel.NewEnv(cfg, m, log)
}

func NewRegistry(cfg *config.Config, env *kernel.Env, log *zap.Logger) (*registry.Registry, error) {
	filter, err := registry.FilterFromConfig(cfg.Run)
	if err != nil {
		return nil, err
	}
	return registry.New(env, kernels.All(env), filter, log), nil
}

func NewExecutor(cfg *config.Config, reg *registry.Registry, log *zap.Logger) *suite.Executor {
	return suite.NewExecutor(reg, cfg.Run, log)
}

// NewStore opens the configured run store, in memory when no path is set.
func NewStore(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) (*store.Store, error) {
	st, err := store.Open(cfg.Results.StorePath, log)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error { return st.Close() },
	})
	return st, nil
}

func NewServer(lc fx.Lifecycle, cfg *config.Config, runner server.Runner, st *store.Store, log *zap.Logger) *server.Server {
	s := server.New(cfg.Metrics.ListenAddress, runner, st, log)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return s.Start() },
		OnStop:  s.Stop,
	})
	return s
}
