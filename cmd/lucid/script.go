package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/lucid"
	"github.com/jward/lucid/scripts"
)

var flagNoRun bool

var scriptCmd = &cobra.Command{
	Use:   "script <file.risor> [root]",
	Short: "Run a Risor script against a fresh module graph",
	Long: `Runs the pipeline on root, then executes the script with the module graph
exposed as globals. A path that does not exist on disk is looked up among the
bundled scripts (for example report/summary.risor).`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runScript,
}

func init() {
	scriptCmd.Flags().BoolVar(&flagNoRun, "no-run", false, "skip the pipeline and only expose the database")
}

func runScript(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cmd, false)
	if err != nil {
		return outputError("script", err)
	}
	defer a.close()

	var res *lucid.Result
	if !flagNoRun {
		p, err := a.project(args[1:])
		if err != nil {
			return outputError("script", err)
		}
		res, err = a.engine.Run(ctx, p)
		a.flushMetrics()
		if err != nil {
			return outputError("script", err)
		}
	}

	out := cmd.OutOrStdout()
	path, opts := scriptSource(args[0])
	opts.Emit = emitter(out)
	if err := a.engine.RunScript(ctx, res, path, opts); err != nil {
		return outputError("script", err)
	}
	return nil
}

// scriptSource picks between a script on disk and a bundled one.
func scriptSource(path string) (string, lucid.ScriptOptions) {
	if _, err := os.Stat(path); err == nil {
		abs, err := filepath.Abs(path)
		if err == nil {
			path = abs
		}
		return filepath.Base(path), lucid.ScriptOptions{Dir: filepath.Dir(path)}
	}
	return path, lucid.ScriptOptions{FS: scripts.FS}
}

// emitter prints each emitted value as a JSON line, or with %v in text mode.
func emitter(w io.Writer) func(any) {
	enc := json.NewEncoder(w)
	return func(v any) {
		if flagFormat == "text" {
			fmt.Fprintf(w, "%v\n", v)
			return
		}
		if err := enc.Encode(v); err != nil {
			fmt.Fprintf(w, "%v\n", v)
		}
	}
}
