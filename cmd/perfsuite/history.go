package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/fxnlabs/perfsuite/internal/config"
	"github.com/fxnlabs/perfsuite/internal/report"
	"github.com/fxnlabs/perfsuite/internal/store"
	"github.com/fxnlabs/perfsuite/internal/suite"
)

func storeFlag() cli.Flag {
	return &cli.StringFlag{Name: "store", Usage: "Run history `DIR` (default: results.storePath)"}
}

func openStore(c *cli.Context, st *cliState) (*store.Store, error) {
	path := st.cfg.Results.StorePath
	if c.IsSet("store") {
		path = c.String("store")
	}
	if path == "" {
		return nil, errors.New("no run store configured, set results.storePath or --store")
	}
	return store.Open(path, st.log)
}

func compareCommand(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "compare",
		Usage: "Compare a stored run with a baseline run",
		Flags: []cli.Flag{
			storeFlag(),
			&cli.StringFlag{Name: "baseline", Usage: "Baseline run `ID` (default: the marked baseline)"},
			&cli.StringFlag{Name: "current", Usage: "Run `ID` to compare (default: the latest run)"},
			&cli.Float64Flag{Name: "tolerance", Value: config.DefaultChecksumTolerance, Usage: "Relative checksum tolerance"},
			&cli.Float64Flag{Name: "regress", Value: 1.1, Usage: "Time ratio beyond which a pair is slower or faster"},
		},
		Action: func(c *cli.Context) error {
			s, err := openStore(c, st)
			if err != nil {
				return err
			}
			defer s.Close()

			var base, cur *suite.Summary
			if id := c.String("baseline"); id != "" {
				base, err = s.Get(id)
			} else {
				base, err = s.Baseline()
			}
			if err != nil {
				return fmt.Errorf("baseline: %w", err)
			}
			if id := c.String("current"); id != "" {
				cur, err = s.Get(id)
			} else {
				cur, err = s.Latest()
			}
			if err != nil {
				return fmt.Errorf("current run: %w", err)
			}

			fmt.Printf("Comparing %s against baseline %s\n\n", store.ID(cur.Started), store.ID(base.Started))
			comps := report.Compare(base, cur, c.Float64("tolerance"), c.Float64("regress"))
			if err := report.PrintComparison(os.Stdout, comps); err != nil {
				return err
			}
			if report.Failed(comps) {
				return errors.New("comparison failed")
			}
			return nil
		},
	}
}

func historyCommand(st *cliState) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List stored runs, mark a baseline or delete a run",
		Flags: []cli.Flag{
			storeFlag(),
			&cli.StringFlag{Name: "set-baseline", Usage: "Mark run `ID` as the baseline"},
			&cli.StringFlag{Name: "delete", Usage: "Delete run `ID`"},
		},
		Action: func(c *cli.Context) error {
			s, err := openStore(c, st)
			if err != nil {
				return err
			}
			defer s.Close()

			if id := c.String("set-baseline"); id != "" {
				if err := s.SetBaseline(id); err != nil {
					return err
				}
			}
			if id := c.String("delete"); id != "" {
				if err := s.Delete(id); err != nil {
					return err
				}
			}

			entries, err := s.List()
			if err != nil {
				return err
			}
			baseID := ""
			if base, err := s.Baseline(); err == nil {
				baseID = store.ID(base.Started)
			}
			fmt.Printf("%-28s %-20s %8s %9s %-8s\n", "ID", "Started", "Kernels", "Failures", "Checks")
			for _, e := range entries {
				mark := ""
				if e.ID == baseID {
					mark = " (baseline)"
				}
				checks := "PASSED"
				if !e.Valid {
					checks = "FAILED"
				}
				fmt.Printf("%-28s %-20s %8d %9d %-8s%s\n",
					e.ID, e.Started.Local().Format("2006-01-02 15:04:05"), e.Kernels, e.Failures, checks, mark)
			}
			return nil
		},
	}
}
