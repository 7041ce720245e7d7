// Package runtime embeds a Risor VM so scripts can query a module graph
// and the run history saved in the store.
package runtime

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/importer"
	"github.com/risor-io/risor/object"

	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/store"
	"github.com/jward/lucid/internal/syntax"
)

// Graph is the result of one pipeline run as scripts see it. Any field may
// be nil; the globals that need it are then left out.
type Graph struct {
	RunID    string
	Files    *source.FileManager
	Trees    map[source.FileID]*syntax.ParsedModule
	Snapshot *modgraph.Snapshot
	Entry    *modgraph.DefinitionInfo
}

// Runtime embeds a Risor VM and provides module-graph host functions and
// Store access to user scripts.
type Runtime struct {
	store      *store.Store
	scriptsDir string
	fsys       fs.FS
	graph      *Graph
	logger     *slog.Logger
	emit       func(any)
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithRuntimeFS configures the Runtime to load scripts from an fs.FS
// instead of from disk. Also configures the Risor importer to use
// FSImporter for import statement resolution.
func WithRuntimeFS(fsys fs.FS) RuntimeOption {
	return func(r *Runtime) {
		r.fsys = fsys
	}
}

// WithGraph exposes a run's module graph to scripts.
func WithGraph(g *Graph) RuntimeOption {
	return func(r *Runtime) {
		r.graph = g
	}
}

// WithLogger sets the logger behind the script `log` global.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(r *Runtime) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEmit sets the sink behind the script `emit` global. Values arrive
// converted to plain Go types. Without it emitted values are logged.
func WithEmit(fn func(any)) RuntimeOption {
	return func(r *Runtime) {
		r.emit = fn
	}
}

// NewRuntime creates a Runtime wired to the given Store (which may be nil)
// and scripts directory.
func NewRuntime(s *store.Store, scriptsDir string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		store:      s,
		scriptsDir: scriptsDir,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunScript loads and executes a Risor script with all standard globals
// plus any extra globals provided by the caller.
func (r *Runtime) RunScript(ctx context.Context, scriptPath string, extraGlobals map[string]any) error {
	src, err := r.LoadScript(scriptPath)
	if err != nil {
		return err
	}
	return r.eval(ctx, src, scriptPath, extraGlobals)
}

// RunSource executes Risor source code directly with all standard globals
// plus any extra globals. Useful for testing without script files.
func (r *Runtime) RunSource(ctx context.Context, source string, extraGlobals map[string]any) error {
	return r.eval(ctx, source, "<inline>", extraGlobals)
}

func (r *Runtime) eval(ctx context.Context, source, label string, extraGlobals map[string]any) error {
	globals := r.buildGlobals(extraGlobals)

	var opts []risor.Option
	for name, val := range globals {
		opts = append(opts, risor.WithGlobal(name, val))
	}

	// Wire importer so Risor import statements resolve correctly.
	if imp := r.buildImporter(globals); imp != nil {
		opts = append(opts, risor.WithImporter(imp))
	}

	_, err := risor.Eval(ctx, source, opts...)
	if err != nil {
		return fmt.Errorf("runtime: script %s: %w", label, err)
	}
	return nil
}

// buildImporter returns a Risor importer configured for the Runtime's script source.
// Returns nil if neither fs.FS nor scriptsDir is configured.
func (r *Runtime) buildImporter(globals map[string]any) importer.Importer {
	globalNames := make([]string, 0, len(globals))
	for name := range globals {
		globalNames = append(globalNames, name)
	}

	if r.fsys != nil {
		return importer.NewFSImporter(importer.FSImporterOptions{
			GlobalNames: globalNames,
			SourceFS:    r.fsys,
			Extensions:  []string{".risor"},
		})
	}
	if r.scriptsDir != "" {
		return importer.NewLocalImporter(importer.LocalImporterOptions{
			GlobalNames: globalNames,
			SourceDir:   r.scriptsDir,
			Extensions:  []string{".risor"},
		})
	}
	return nil
}

// LoadScript reads a .risor file and returns its source code.
// When an fs.FS is configured, uses fs.ReadFile on the embedded filesystem.
// Otherwise, uses os.ReadFile with scriptsDir as the base directory.
func (r *Runtime) LoadScript(path string) (string, error) {
	if r.fsys != nil {
		fsPath := strings.TrimPrefix(filepath.ToSlash(path), "/")
		data, err := fs.ReadFile(r.fsys, fsPath)
		if err != nil {
			return "", fmt.Errorf("runtime: loading script %s from fs: %w", fsPath, err)
		}
		return string(data), nil
	}

	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(r.scriptsDir, path)
	}

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return "", fmt.Errorf("runtime: loading script %s: %w", fullPath, err)
	}
	return string(data), nil
}

// buildGlobals constructs the full set of globals exposed to Risor scripts.
func (r *Runtime) buildGlobals(extra map[string]any) map[string]any {
	globals := map[string]any{
		"parse_src": makeParseSrcFn(),
		"log":       mustProxy(&logObject{logger: r.logger}),
		"emit":      makeEmitFn(r.emitSink()),
	}

	if g := r.graph; g != nil {
		if g.RunID != "" {
			globals["run_id"] = g.RunID
		}
		if g.Snapshot != nil {
			globals["modules"] = makeModulesFn(g)
			globals["definitions"] = makeDefinitionsFn(g)
			globals["find_entry_point"] = makeFindEntryPointFn(g)
		}
		if g.Files != nil {
			globals["file_path"] = makeFilePathFn(g.Files)
			globals["items"] = makeItemsFn(g)
		}
		if g.Entry != nil {
			globals["entry"] = definitionToMap(*g.Entry, g.Files)
		}
	}

	// Expose the Store if available (nil during some tests).
	if r.store != nil {
		globals["runs"] = makeRunsFn(r.store)
		globals["db_query"] = makeDBQueryFn(r.store)
	}

	for k, v := range extra {
		globals[k] = v
	}
	return globals
}

func (r *Runtime) emitSink() func(any) {
	if r.emit != nil {
		return r.emit
	}
	return func(v any) {
		r.logger.Info("emit", "component", "script", "value", v)
	}
}

func mustProxy(v any) object.Object {
	p, err := object.NewProxy(v)
	if err != nil {
		panic(fmt.Sprintf("runtime: proxy error: %v", err))
	}
	return p
}
