package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jward/lucid"
	"github.com/jward/lucid/internal/config"
	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/observability"
	"github.com/jward/lucid/internal/report"
)

var (
	flagConfig          string
	flagDB              string
	flagFormat          string
	flagEntryFile       string
	flagEntry           string
	flagUnrepresentable string
	flagLogFile         string
	flagLogLevel        string
	flagMetricsFile     string
	flagOTLPEndpoint    string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "lucid",
	Short:         "Module-graph extraction for Noir projects",
	Long:          "Lucid compiles a Noir project's item structure, snapshots its resolved module graph, and locates the entry point in both the graph and the syntax tree.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", config.DefaultFile, "config file; missing is fine")
	pf.StringVar(&flagDB, "db", "", "database path (default: .lucid/runs.db relative to repo root)")
	pf.StringVar(&flagFormat, "format", "text", "output format: json|text")
	pf.StringVar(&flagEntryFile, "entry-file", "", "entry file relative to the project root (default main.nr)")
	pf.StringVar(&flagEntry, "entry", "", "entry-point function name (default main)")
	pf.StringVar(&flagUnrepresentable, "unrepresentable", "", "what to do with scope entries that are not functions, globals or modules: abort|skip")
	pf.StringVar(&flagLogFile, "log-file", "", "log destination, - for stderr (default lucid_noir.log)")
	pf.StringVar(&flagLogLevel, "log-level", "", "trace|debug|info|warn|error")
	pf.StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics here after each run")
	pf.StringVar(&flagOTLPEndpoint, "otlp-endpoint", "", "export phase spans to this OTLP gRPC endpoint")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(scriptCmd)
}

// loadConfig reads the config file and lays explicitly set flags over it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path := flagConfig
	var (
		cfg *config.Config
		err error
	)
	if cmd.Flags().Changed("config") {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadOrDefault(path)
	}
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	flags := cmd.Flags()
	if flags.Changed("entry-file") {
		cfg.Project.EntryFile = flagEntryFile
	}
	if flags.Changed("entry") {
		cfg.Project.EntryPoint = flagEntry
	}
	if flags.Changed("unrepresentable") {
		cfg.Resolve.Unrepresentable = flagUnrepresentable
	}
	if flags.Changed("log-file") {
		cfg.Log.File = flagLogFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = flagLogLevel
	}
	if flags.Changed("db") {
		cfg.Store.Path = flagDB
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = flagMetricsFile
	}
	if flags.Changed("otlp-endpoint") {
		cfg.Telemetry.OTLPEndpoint = flagOTLPEndpoint
	}
	return cfg, nil
}

// app is everything a command needs once flags and config are applied.
type app struct {
	cfg     *config.Config
	engine  *lucid.Engine
	logger  *slog.Logger
	metrics *observability.Metrics
	closers []func() error
}

// setup builds the logger, telemetry, and Engine. With persist the Engine
// saves runs to the configured database, or the default one when none is
// configured.
func setup(ctx context.Context, cmd *cobra.Command, persist bool) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg}

	level, err := report.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	w, closeLog, err := report.OpenLog(cfg.Log.File)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeLog)
	a.logger = report.NewLogger(w, level)

	shutdown, err := observability.SetupTracing(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })
	a.metrics = observability.NewMetrics()

	policy, err := modgraph.ParsePolicy(cfg.Resolve.Unrepresentable)
	if err != nil {
		a.close()
		return nil, err
	}
	opts := []lucid.Option{
		lucid.WithLogger(report.Component(a.logger, "engine")),
		lucid.WithPolicy(policy),
		lucid.WithMetrics(a.metrics),
		lucid.WithDiscover(lucid.DiscoverOptions{
			Include: cfg.Project.Include,
			Exclude: cfg.Project.Exclude,
		}),
	}
	if dbPath := cfg.Store.Path; persist || dbPath != "" {
		dbPath, err = resolveDBPath(dbPath)
		if err != nil {
			a.close()
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			a.close()
			return nil, fmt.Errorf("creating %s: %w", filepath.Dir(dbPath), err)
		}
		opts = append(opts, lucid.WithStore(dbPath))
	}

	a.engine, err = lucid.New(opts...)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	a.closers = append(a.closers, a.engine.Close)
	return a, nil
}

// project resolves the positional root argument against the config.
func (a *app) project(args []string) (lucid.Project, error) {
	root := a.cfg.Project.Root
	if len(args) > 0 {
		root = args[0]
	}
	abs, err := resolveTargetDir(root)
	if err != nil {
		return lucid.Project{}, err
	}
	return lucid.Project{
		Root:       abs,
		EntryFile:  a.cfg.Project.EntryFile,
		EntryPoint: a.cfg.Project.EntryPoint,
	}, nil
}

// flushMetrics writes the metrics textfile when one is configured.
func (a *app) flushMetrics() {
	if err := a.metrics.WriteTextfile(a.cfg.Telemetry.MetricsFile); err != nil {
		a.logger.Warn("write metrics", "path", a.cfg.Telemetry.MetricsFile, "error", err)
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// resolveTargetDir returns the absolute path of the project directory.
func resolveTargetDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findRepoRoot walks up from startDir looking for a .git directory.
// Returns the directory containing .git, or startDir if not found.
func findRepoRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, ".git")); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// resolveDBPath returns path made absolute against the repo root of the
// working directory, or the default database when path is empty.
func resolveDBPath(path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	repoRoot := findRepoRoot(cwd)
	if path == "" {
		return filepath.Join(repoRoot, ".lucid", "runs.db"), nil
	}
	return filepath.Join(repoRoot, path), nil
}
