package main

import (
	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/fxnlabs/perfsuite/internal/app"
)

func serveCommand(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve metrics and stored results over HTTP and run the suite on request",
		Flags: append(selectionFlags(),
			&cli.StringFlag{Name: "listen", Usage: "Address to listen on"},
			&cli.StringFlag{Name: "store", Usage: "Run history `DIR` (default: in memory)"},
		),
		Action: func(c *cli.Context) error {
			cfg := st.cfg
			if err := applySelection(c, cfg); err != nil {
				return err
			}
			if c.IsSet("listen") {
				cfg.Metrics.ListenAddress = c.String("listen")
			}
			if c.IsSet("store") {
				cfg.Results.StorePath = c.String("store")
			}
			fx.New(
				fx.Supply(cfg),
				app.Module,
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log.Named("fx")}
				}),
			).Run()
			return nil
		},
	}
}
