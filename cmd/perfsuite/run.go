package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/fixtures"
	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/gpu"
	"github.com/fxnlabs/perfsuite/internal/kernel"
	"github.com/fxnlabs/perfsuite/internal/kernels"
	"github.com/fxnlabs/perfsuite/internal/registry"
	"github.com/fxnlabs/perfsuite/internal/report"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

// selectionFlags narrow the kernels, variants and tunings of run and list.
func selectionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{Name: "kernels", Aliases: []string{"k"}, Usage: "Kernels, short names or groups to run"},
		&cli.StringSliceFlag{Name: "exclude-kernels", Usage: "Kernels, short names or groups to skip"},
		&cli.StringSliceFlag{Name: "variants", Aliases: []string{"v"}, Usage: "Variants to run, e.g. Base_Seq,RAJA_CUDA"},
		&cli.StringSliceFlag{Name: "exclude-variants", Usage: "Variants to skip"},
		&cli.StringSliceFlag{Name: "tunings", Aliases: []string{"t"}, Usage: "Tuning names to run, e.g. default,block_256"},
		&cli.StringSliceFlag{Name: "features", Usage: "Only kernels using any of these features"},
		&cli.IntFlag{Name: "size", Usage: "Problem size for every kernel, overriding its default"},
		&cli.Float64Flag{Name: "size-factor", Usage: "Scale every kernel's default problem size"},
		&cli.IntFlag{Name: "reps", Usage: "Repetitions for every kernel, overriding its default"},
		&cli.Float64Flag{Name: "rep-factor", Usage: "Scale every kernel's default repetitions"},
		&cli.IntSliceFlag{Name: "block-sizes", Usage: "GPU block sizes to generate tunings for"},
		&cli.IntFlag{Name: "threads", Usage: "Worker threads for OpenMP variants (default: GOMAXPROCS)"},
	}
}

// applySelection copies the flags that were set over the run configuration.
func applySelection(c *cli.Context, cfg *config.Config) error {
	rc := &cfg.Run
	if c.IsSet("kernels") {
		rc.Kernels = c.StringSlice("kernels")
	}
	if c.IsSet("exclude-kernels") {
		rc.ExcludeKernels = c.StringSlice("exclude-kernels")
	}
	if c.IsSet("variants") {
		rc.Variants = c.StringSlice("variants")
	}
	if c.IsSet("exclude-variants") {
		rc.ExcludeVariants = c.StringSlice("exclude-variants")
	}
	if c.IsSet("tunings") {
		rc.Tunings = c.StringSlice("tunings")
	}
	if c.IsSet("features") {
		rc.Features = c.StringSlice("features")
	}
	if c.IsSet("size") {
		rc.Size = c.Int("size")
	}
	if c.IsSet("size-factor") {
		rc.SizeFactor = c.Float64("size-factor")
	}
	if c.IsSet("reps") {
		rc.Reps = c.Int("reps")
	}
	if c.IsSet("rep-factor") {
		rc.RepFactor = c.Float64("rep-factor")
	}
	if c.IsSet("block-sizes") {
		rc.GPUBlockSizes = c.IntSlice("block-sizes")
	}
	if c.IsSet("threads") {
		rc.NumThreads = c.Int("threads")
	}
	if c.IsSet("npasses") {
		rc.NPasses = c.Int("npasses")
	}
	if c.IsSet("tolerance") {
		rc.ChecksumTolerance = c.Float64("tolerance")
	}
	return cfg.Validate()
}

// suiteParts is what run and list build from the configuration.
type suiteParts struct {
	gpus *gpu.Manager
	env  *kernel.Env
	reg  *registry.Registry
}

func buildSuite(cfg *config.Config, log *zap.Logger) (*suiteParts, error) {
	m, err := gpu.NewManager(cfg.GPU, log.Named("gpu"))
	if err != nil {
		return nil, err
	}
	env, err := kernel.NewEnv(cfg, m, log)
	if err != nil {
		_ = m.Cleanup()
		return nil, err
	}
	filter, err := registry.FilterFromConfig(cfg.Run)
	if err != nil {
		_ = m.Cleanup()
		return nil, err
	}
	reg := registry.New(env, kernels.All(env), filter, log)
	if unknown := reg.Unmatched(); len(unknown) > 0 {
		_ = m.Cleanup()
		return nil, fmt.Errorf("unknown kernels or groups: %s", strings.Join(unknown, ", "))
	}
	return &suiteParts{gpus: m, env: env, reg: reg}, nil
}

func printBanner(m *gpu.Manager) {
	figure.NewFigure("perfsuite", "", true).Print()
	fmt.Println()
	host := m.Host()
	fmt.Printf("Host: %s, %d CPUs, %s/%s, %s\n", host.Name, host.NumCPU, host.OS, host.Arch, host.GoVersion)
	infos := m.DeviceInfos()
	if len(infos) == 0 {
		fmt.Println("Devices: none, device variants are disabled")
	}
	for _, d := range infos {
		emulated := ""
		if d.Emulated {
			emulated = " (emulated)"
		}
		fmt.Printf("Device: %s %s%s, %d SMs, %d MiB\n", d.Kind, d.Name, emulated, d.MultiProcessors, d.TotalMemory>>20)
	}
	fmt.Println("-----------------------------------------------")
}

func runCommand(st *cliState) *cli.Command {
	flags := append(selectionFlags(),
		&cli.IntFlag{Name: "npasses", Usage: "Number of passes over every pair"},
		&cli.Float64Flag{Name: "tolerance", Usage: "Relative checksum tolerance against the reference variant"},
		&cli.BoolFlag{Name: "json", Usage: "Write the results as JSON"},
		&cli.BoolFlag{Name: "chart", Usage: "Write an HTML timing chart"},
		&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Usage: "Directory for the JSON and chart files"},
		&cli.StringFlag{Name: "store", Usage: "Run history `DIR` to save the run in"},
		&cli.BoolFlag{Name: "no-banner", Usage: "Do not print the banner"},
	)
	return &cli.Command{
		Name:  "run",
		Usage: "Run the selected kernels and report timings and checksums",
		Flags: flags,
		Action: func(c *cli.Context) error {
			cfg := st.cfg
			if err := applySelection(c, cfg); err != nil {
				return err
			}
			if c.IsSet("json") {
				cfg.Results.JSON = c.Bool("json")
			}
			if c.IsSet("chart") {
				cfg.Results.Chart = c.Bool("chart")
			}
			if c.IsSet("output-dir") {
				cfg.Results.OutputDir = c.String("output-dir")
			}
			if c.IsSet("store") {
				cfg.Results.StorePath = c.String("store")
			}

			parts, err := buildSuite(cfg, st.log)
			if err != nil {
				return err
			}
			defer parts.gpus.Cleanup()
			if !c.Bool("no-banner") {
				printBanner(parts.gpus)
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			sum, runErr := suite.NewExecutor(parts.reg, cfg.Run, st.log).Run(ctx)
			if sum == nil {
				return runErr
			}
			if err := report.Text(os.Stdout, sum); err != nil {
				return err
			}
			paths, err := report.WriteFiles(cfg.Results.OutputDir, sum, cfg.Results.JSON, cfg.Results.Chart)
			for _, p := range paths {
				st.log.Info("report written", zap.String("path", p))
			}
			if err != nil {
				return err
			}
			if cfg.Results.StorePath != "" {
				s, err := store.Open(cfg.Results.StorePath, st.log)
				if err != nil {
					return err
				}
				defer s.Close()
				id, err := s.Save(sum)
				if err != nil {
					return err
				}
				st.log.Info("run saved", zap.String("id", id), zap.String("store", cfg.Results.StorePath))
			}
			if runErr != nil {
				return runErr
			}
			return checkRun(sum)
		},
	}
}

// checkRun turns failed pairs and failed validation into an exit status.
func checkRun(sum *suite.Summary) error {
	invalid := 0
	for _, k := range sum.Kernels {
		if !k.Valid {
			invalid++
		}
	}
	if sum.Failures > 0 || invalid > 0 {
		return fmt.Errorf("%d failed pairs, %d kernels failed checksum validation", sum.Failures, invalid)
	}
	return nil
}

func listCommand(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List the selected kernels with the variants and tunings they would run",
		Flags: selectionFlags(),
		Action: func(c *cli.Context) error {
			if err := applySelection(c, st.cfg); err != nil {
				return err
			}
			parts, err := buildSuite(st.cfg, st.log)
			if err != nil {
				return err
			}
			defer parts.gpus.Cleanup()
			fmt.Print(report.Tree(parts.reg).String())
			fmt.Printf("%d pairs\n", len(parts.reg.Pairs()))
			return nil
		},
	}
}

func initCommand(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a configuration template to the home directory",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing configuration"},
		},
		Action: func(c *cli.Context) error {
			path := config.ConfigPath(st.home)
			if _, err := os.Stat(path); err == nil && !c.Bool("force") {
				return fmt.Errorf("%s already exists, use --force to overwrite it", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(path, fixtures.ConfigTemplate, 0o644); err != nil {
				return err
			}
			st.log.Info("configuration written", zap.String("path", path))
			return nil
		},
	}
}
