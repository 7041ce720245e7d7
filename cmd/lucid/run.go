package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/lucid"
)

var runCmd = &cobra.Command{
	Use:   "run [root]",
	Short: "Locate the entry point of a Noir project",
	Long:  "Runs the whole pipeline once and prints the located entry point. The run is saved only when a database is configured.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args, "run", false)
	},
}

var indexCmd = &cobra.Command{
	Use:   "index [root]",
	Short: "Run the pipeline and save the module graph",
	Long:  "Like run, but always saves the snapshot, using .lucid/runs.db at the repo root unless --db says otherwise.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, args, "index", true)
	},
}

var flagKeep int

var watchCmd = &cobra.Command{
	Use:   "watch [root]",
	Short: "Re-run the pipeline whenever a source file changes",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runWatch,
}

func init() {
	indexCmd.Flags().IntVar(&flagKeep, "keep", 0, "after saving, delete all but the newest N runs (0 keeps everything)")
}

func runOnce(cmd *cobra.Command, args []string, command string, persist bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, persist)
	if err != nil {
		return outputError(command, err)
	}
	defer a.close()

	p, err := a.project(args)
	if err != nil {
		return outputError(command, err)
	}
	res, err := a.engine.Run(ctx, p)
	a.flushMetrics()
	if err != nil {
		return outputError(command, err)
	}

	saved := a.engine.Store() != nil
	if saved && flagKeep > 0 {
		n, err := a.engine.Store().PruneRuns(flagKeep)
		if err != nil {
			return outputError(command, fmt.Errorf("pruning runs: %w", err))
		}
		a.logger.Info("pruned runs", "deleted", n, "kept", flagKeep)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: command, Results: resultToCLI(res, saved)})
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return outputError("watch", err)
	}
	defer a.close()

	p, err := a.project(args)
	if err != nil {
		return outputError("watch", err)
	}

	out := cmd.OutOrStdout()
	if flagFormat == "text" {
		fmt.Fprintln(out, titleStyle.Render("watching "+p.Root))
	}
	opts := lucid.WatchOptions{Debounce: a.cfg.Watch.Debounce}
	err = a.engine.Watch(ctx, p, opts, func(res *lucid.Result, err error) {
		a.flushMetrics()
		if err != nil {
			if flagFormat == "text" {
				fmt.Fprintf(out, "%s %s\n", errorStyle.Render("Error:"), err)
				return
			}
			_ = outputResult(out, CLIResult{Command: "watch", Error: err.Error()})
			return
		}
		_ = outputResult(out, CLIResult{Command: "watch", Results: resultToCLI(res, a.engine.Store() != nil)})
	})
	if err != nil {
		return outputError("watch", err)
	}
	return nil
}
