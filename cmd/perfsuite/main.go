package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/logger"
)

// cliState is filled in by the Before hook for the commands to share.
type cliState struct {
	home string
	cfg  *config.Config
	log  *zap.Logger
}

func main() {
	// .env may set PERFSUITE_* variables, so load it before flags are parsed.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Error: .env: %v\n", err)
		os.Exit(1)
	}

	st := &cliState{}
	app := newApp(st)
	if err := app.Run(os.Args); err != nil {
		if st.log != nil {
			st.log.Error("perfsuite failed", zap.Error(err))
			_ = st.log.Sync()
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newApp(st *cliState) *cli.App {
	return &cli.App{
		Name:  "perfsuite",
		Usage: "Run performance kernels across execution variants and tunings",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "home",
				Value:       config.GetDefaultConfigHome(),
				Usage:       "Path to the perfsuite home directory",
				EnvVars:     []string{"PERFSUITE_HOME"},
				Destination: &st.home,
			},
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Load configuration from `FILE` (default: <home>/config.yaml)",
				EnvVars: []string{"PERFSUITE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "verbosity",
				Usage:   "Log level: debug, info, warn or error",
				EnvVars: []string{"PERFSUITE_VERBOSITY"},
			},
		},
		Before: func(c *cli.Context) error {
			path := c.String("config")
			var err error
			if path != "" {
				st.cfg, err = config.LoadConfig(path)
			} else {
				st.cfg, err = config.LoadConfigOrDefault(config.ConfigPath(st.home))
			}
			if err != nil {
				return err
			}
			if v := c.String("verbosity"); v != "" {
				st.cfg.Logger.Verbosity = v
			}
			zapLogger, err := logger.Build(st.cfg.Logger.Verbosity, st.cfg.Logger.Format)
			if err != nil {
				return err
			}
			st.log = zapLogger.Named("cli")
			return nil
		},
		After: func(c *cli.Context) error {
			if st.log != nil {
				_ = st.log.Sync()
			}
			return nil
		},
		Commands: []*cli.Command{
			initCommand(st),
			runCommand(st),
			listCommand(st),
			serveCommand(st),
			compareCommand(st),
			historyCommand(st),
		},
	}
}
