package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/lucid"
)

var (
	flagRun    string
	flagLimit  int
	flagName   string
	flagKind   string
	flagModule int64
	flagNoStd  bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query saved runs",
	Long:  "Reads runs saved by 'lucid index'. Line and column numbers are 1-based. Without --run the latest run is used.",
}

func init() {
	queryCmd.PersistentFlags().StringVar(&flagRun, "run", "", "run ID (default: latest)")

	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum runs to list (0 for all)")

	definitionsCmd.Flags().StringVar(&flagName, "name", "", "only definitions with this name")
	definitionsCmd.Flags().StringVar(&flagKind, "kind", "", "only definitions of this kind: function|global|module")
	definitionsCmd.Flags().Int64Var(&flagModule, "module", -1, "only definitions in this module ID")
	definitionsCmd.Flags().BoolVar(&flagNoStd, "no-stdlib", false, "leave out names the std prelude supplied")

	queryCmd.AddCommand(runsCmd)
	queryCmd.AddCommand(modulesCmd)
	queryCmd.AddCommand(definitionsCmd)
	queryCmd.AddCommand(entryCmd)
}

// openQuery opens the configured database read-side. It fails when the
// database does not exist yet.
func openQuery(cmd *cobra.Command) (*lucid.Engine, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	dbPath, err := resolveDBPath(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'lucid index' first)", dbPath)
	}
	return lucid.New(lucid.WithStore(dbPath))
}

// fileNames maps file IDs of a run to their paths.
func fileNames(q *lucid.QueryBuilder, runID string) (map[int64]string, error) {
	files, err := q.Files(runID)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(files))
	for _, f := range files {
		out[f.FileID] = f.Path
	}
	return out, nil
}

// withQuery runs fn against an opened QueryBuilder and prints its result.
func withQuery(cmd *cobra.Command, command string, fn func(q *lucid.QueryBuilder) (any, error)) error {
	e, err := openQuery(cmd)
	if err != nil {
		return outputError(command, err)
	}
	defer e.Close()

	results, err := fn(e.Query())
	if err != nil {
		return outputError(command, err)
	}
	return outputResult(cmd.OutOrStdout(), CLIResult{Command: command, Results: results})
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List saved runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "runs", func(q *lucid.QueryBuilder) (any, error) {
			runs, err := q.Runs(flagLimit)
			if err != nil {
				return nil, err
			}
			out := make([]CLIRun, 0, len(runs))
			for _, r := range runs {
				out = append(out, runToCLI(r))
			}
			return out, nil
		})
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "modules", func(q *lucid.QueryBuilder) (any, error) {
			runID, err := pickRun(q)
			if err != nil {
				return nil, err
			}
			mods, err := q.Modules(runID)
			if err != nil {
				return nil, err
			}
			files, err := fileNames(q, runID)
			if err != nil {
				return nil, err
			}
			out := make([]CLIModule, 0, len(mods))
			for _, m := range mods {
				out = append(out, CLIModule{
					Crate:    m.Crate,
					LocalID:  m.LocalID,
					Parent:   m.ParentID,
					File:     files[m.FileID],
					Children: m.Children,
				})
			}
			return out, nil
		})
	},
}

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "List the definitions of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "definitions", func(q *lucid.QueryBuilder) (any, error) {
			runID, err := pickRun(q)
			if err != nil {
				return nil, err
			}
			filter := lucid.DefinitionFilter{Name: flagName, Kind: flagKind, ExcludeStdlib: flagNoStd}
			if flagModule >= 0 {
				filter.ModuleID = &flagModule
			}
			defs, err := q.Definitions(runID, filter)
			if err != nil {
				return nil, err
			}
			files, err := fileNames(q, runID)
			if err != nil {
				return nil, err
			}
			out := make([]CLIDefinition, 0, len(defs))
			for _, d := range defs {
				out = append(out, CLIDefinition{
					Name:       d.Name,
					Kind:       d.Kind,
					DefID:      fmt.Sprintf("%s(%d)", d.DefKind, d.DefIndex),
					Visibility: d.Visibility,
					Stdlib:     d.IsStdlib,
					Module:     d.ModuleID,
					File:       files[d.FileID],
					Line:       d.Line,
					Col:        d.Col,
				})
			}
			return out, nil
		})
	},
}

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Show the entry point a run located",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery(cmd, "entry", func(q *lucid.QueryBuilder) (any, error) {
			runID, err := pickRun(q)
			if err != nil {
				return nil, err
			}
			ep, err := q.EntryPoint(runID)
			if err != nil || ep == nil {
				return (*CLIEntryPoint)(nil), err
			}
			files, err := fileNames(q, runID)
			if err != nil {
				return nil, err
			}
			params := ep.Params
			if params == nil {
				params = []string{}
			}
			return &CLIEntryPoint{
				Name:          ep.Name,
				File:          files[ep.FileID],
				Line:          ep.Line,
				Col:           ep.Col,
				Visibility:    ep.Visibility,
				Unconstrained: ep.Unconstrained,
				Params:        params,
				ReturnType:    ep.ReturnType,
			}, nil
		})
	},
}

// pickRun returns the --run flag, or the latest run's ID.
func pickRun(q *lucid.QueryBuilder) (string, error) {
	if flagRun != "" {
		r, err := q.Run(flagRun)
		if err != nil {
			return "", err
		}
		if r == nil {
			return "", fmt.Errorf("run %s not found", flagRun)
		}
		return r.ID, nil
	}
	r, err := q.LatestRun()
	if err != nil {
		return "", err
	}
	if r == nil {
		return "", fmt.Errorf("no runs saved yet (run 'lucid index' first)")
	}
	return r.ID, nil
}
