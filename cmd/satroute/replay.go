package main

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/constellation-router/internal/emit"
	"github.com/signalsfoundry/constellation-router/model"
)

func newReplayCmd(a *app) *cobra.Command {
	var (
		dir        string
		sqlitePath string
		runID      string
		at         int64
		satellites int
		tagged     bool
		bandwidth  bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild the full forwarding table at a step from emitted deltas",
		Long: "Rebuild the full forwarding table at a step by applying every emitted delta\n" +
			"up to it, from a directory of fstate files or from a SQLite archive.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (dir == "") == (sqlitePath == "") {
				return errors.New("exactly one of --dir or --sqlite is required")
			}
			if satellites <= 0 {
				return errors.New("--satellites must be positive")
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			var (
				table *model.Table
				bw    []model.BandwidthRecord
				err   error
			)
			if dir != "" {
				table, err = emit.ReplayDir(dir, at, satellites)
				if err != nil {
					return err
				}
				if bandwidth {
					ns, err := lastStepAtOrBefore(dir, at)
					if err != nil {
						return err
					}
					if bw, err = emit.ReadBandwidthFile(dir, ns); err != nil {
						return err
					}
				}
			} else {
				if _, err := os.Stat(sqlitePath); err != nil {
					return err
				}
				archive, err := emit.NewSQLiteArchive(ctx, sqlitePath, "", "", a.log)
				if err != nil {
					return err
				}
				defer archive.Close()

				if runID == "" {
					runs, err := archive.Runs(ctx)
					if err != nil {
						return err
					}
					if len(runs) != 1 {
						return fmt.Errorf("archive holds %d runs, pick one with --run", len(runs))
					}
					runID = runs[0]
				}
				if table, err = archive.TableAt(ctx, runID, at, satellites); err != nil {
					return err
				}
				if bandwidth {
					steps, err := archive.Steps(ctx, runID)
					if err != nil {
						return err
					}
					ns := int64(-1)
					for _, s := range steps {
						if s.TimeNs <= at {
							ns = s.TimeNs
						}
					}
					if ns < 0 {
						return fmt.Errorf("run %s has no step at or before %d", runID, at)
					}
					if bw, err = archive.BandwidthAt(ctx, runID, ns); err != nil {
						return err
					}
				}
			}

			if bandwidth {
				return emit.WriteBandwidth(out, bw)
			}
			return emit.WriteRecords(out, table.Records(), tagged)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&dir, "dir", "", "directory of fstate_<ns>.txt files")
	fl.StringVar(&sqlitePath, "sqlite", "", "SQLite archive")
	fl.StringVar(&runID, "run", "", "archived run id (required when the archive holds several runs)")
	fl.Int64Var(&at, "at", math.MaxInt64, "step id in nanoseconds (default latest)")
	fl.IntVar(&satellites, "satellites", 0, "number of satellites in the constellation")
	fl.BoolVar(&tagged, "tagged", false, "print six column records with path ids")
	fl.BoolVar(&bandwidth, "bandwidth", false, "print the bandwidth assignment of the step instead")
	return cmd
}

func lastStepAtOrBefore(dir string, at int64) (int64, error) {
	steps, err := emit.StepFiles(dir)
	if err != nil {
		return 0, err
	}
	ns := int64(-1)
	for _, s := range steps {
		if s <= at {
			ns = s
		}
	}
	if ns < 0 {
		return 0, fmt.Errorf("%s has no step at or before %d", dir, at)
	}
	return ns, nil
}
