package lucid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/locate"
	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/observability"
	"github.com/jward/lucid/internal/report"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/store"
	"github.com/jward/lucid/internal/syntax"
)

// Pipeline phases, in the order Run executes them.
const (
	PhaseLoad    = "load"
	PhaseParse   = "parse"
	PhaseCheck   = "check"
	PhaseCompile = "compile"
	PhaseResolve = "resolve"
	PhaseLocate  = "locate"
	PhaseMatch   = "match"
	PhaseSave    = "save"
)

var (
	// ErrEntryFileNotFound means the project has no file at the entry path.
	ErrEntryFileNotFound = errors.New("entry file not found")
	// ErrSyntaxMismatch means the located definition has no syntax item with
	// the same name and location.
	ErrSyntaxMismatch = errors.New("definition has no matching syntax item")
	// ErrNoStore is returned by queries on an Engine without a store.
	ErrNoStore = errors.New("no store configured")
)

// Engine orchestrates the lucid pipeline: file discovery, parsing,
// compilation, module-graph snapshot, entry-point location, and persistence.
type Engine struct {
	store    *store.Store
	storeDir string
	reporter report.Reporter
	logger   *slog.Logger
	policy   modgraph.Policy
	discover source.DiscoverOptions
	metrics  *observability.Metrics
	tracer   trace.Tracer
	observer *observability.Observer
	noStdlib bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithReporter sets where pipeline events go. Defaults to the logger.
func WithReporter(r report.Reporter) Option {
	return func(e *Engine) {
		e.reporter = r
	}
}

// WithLogger sets the Engine's logger. Unless WithReporter is also given,
// events are reported through it.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithPolicy sets how scope entries that are neither functions, globals nor
// modules are handled.
func WithPolicy(p modgraph.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithStore saves every successful run to a SQLite database at path.
func WithStore(path string) Option {
	return func(e *Engine) {
		e.storeDir = path
	}
}

// WithDiscover filters which project files are loaded.
func WithDiscover(opts source.DiscoverOptions) Option {
	return func(e *Engine) {
		e.discover = opts
	}
}

// WithMetrics records phase timings and snapshot sizes into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTracer emits a span per phase through t. Defaults to the global
// provider's tracer.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithoutStdlib compiles projects without the bundled standard library.
// Prelude names are then unavailable.
func WithoutStdlib() Option {
	return func(e *Engine) {
		e.noStdlib = true
	}
}

// New creates an Engine. With WithStore the database is opened and migrated
// here.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{policy: modgraph.PolicyAbort}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}
	if e.reporter == nil {
		e.reporter = report.NewSlog(e.logger)
	}
	e.observer = &observability.Observer{Metrics: e.metrics, Tracer: e.tracer}

	if e.storeDir != "" {
		s, err := store.NewStore(e.storeDir)
		if err != nil {
			return nil, fmt.Errorf("lucid: create store: %w", err)
		}
		if err := s.Migrate(); err != nil {
			s.Close()
			return nil, fmt.Errorf("lucid: migrate: %w", err)
		}
		e.store = s
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	if e.store == nil {
		return nil
	}
	return e.store.Close()
}

// Store returns the underlying Store, or nil when none is configured.
func (e *Engine) Store() *Store {
	return e.store
}

// Query returns a new QueryBuilder wrapping the Store.
func (e *Engine) Query() *QueryBuilder {
	return &QueryBuilder{store: e.store}
}

// Project names what to analyze: a source root, the entry file relative to
// it, and the entry-point function name.
type Project struct {
	Root       string
	EntryFile  string
	EntryPoint string
}

func (p Project) withDefaults() Project {
	if p.EntryFile == "" {
		p.EntryFile = "main.nr"
	}
	if p.EntryPoint == "" {
		p.EntryPoint = "main"
	}
	p.EntryFile = filepath.ToSlash(filepath.Clean(p.EntryFile))
	return p
}

// PhaseTiming is how long one phase took.
type PhaseTiming struct {
	Phase    string
	Duration time.Duration
}

// Result is everything one run produced.
type Result struct {
	RunID   string
	Project Project
	Files   *source.FileManager
	Trees   map[source.FileID]*syntax.ParsedModule
	Context *frontend.Context
	// Snapshot is the module graph of the non-stdlib crates.
	Snapshot *modgraph.Snapshot
	// Entry is the located entry-point definition, and EntrySyntax the
	// function item it was declared by.
	Entry       *modgraph.DefinitionInfo
	EntrySyntax *syntax.Function
	// EntryFile is the file the entry point was looked up in.
	EntryFile   source.FileID
	Diagnostics []source.Diagnostic
	StartedAt   time.Time
	Duration    time.Duration
	Timings     []PhaseTiming
}

// Timing returns the duration of phase, or zero if it did not run.
func (r *Result) Timing(phase string) time.Duration {
	for _, t := range r.Timings {
		if t.Phase == phase {
			return t.Duration
		}
	}
	return 0
}

// Run executes the whole pipeline on p. Every failure ends the run and is
// returned with the offending name or file in its message; the partial
// Result is returned alongside so callers can inspect diagnostics.
func (e *Engine) Run(ctx context.Context, p Project) (*Result, error) {
	p = p.withDefaults()
	res := &Result{
		RunID:     uuid.NewString(),
		Project:   p,
		StartedAt: time.Now(),
	}
	err := e.run(ctx, res)
	res.Duration = time.Since(res.StartedAt)

	if err != nil {
		e.metrics.RecordRun("error")
		e.reporter.Report(ctx, report.Event{
			Kind:    report.KindPhase,
			Level:   slog.LevelError,
			Message: "run failed",
			Attrs:   []slog.Attr{slog.String("run_id", res.RunID), slog.String("error", err.Error())},
		})
		return res, err
	}
	e.metrics.RecordRun("ok")
	e.reporter.Report(ctx, report.Event{
		Kind:    report.KindPhase,
		Level:   slog.LevelInfo,
		Message: "run complete",
		Attrs: []slog.Attr{
			slog.String("run_id", res.RunID),
			slog.Int("modules", len(res.Snapshot.Modules)),
			slog.Int("definitions", res.Snapshot.DefinitionCount()),
			slog.Duration("duration", res.Duration),
		},
	})
	return res, nil
}

func (e *Engine) run(ctx context.Context, res *Result) error {
	p := res.Project

	// Load.
	err := e.phase(ctx, res, PhaseLoad, func(ctx context.Context) ([]attribute.KeyValue, error) {
		root, err := filepath.Abs(p.Root)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", p.Root, err)
		}
		fm := source.NewFileManager(root)
		if !e.noStdlib {
			fm = frontend.FileManagerWithStdlib(root)
		}
		if _, err := source.AddProjectFiles(fm, e.discover); err != nil {
			return nil, fmt.Errorf("load %s: %w", root, err)
		}
		id, ok := fm.NameToID(p.EntryFile)
		if !ok {
			return nil, fmt.Errorf("%w: %s under %s", ErrEntryFileNotFound, p.EntryFile, root)
		}
		res.Files, res.EntryFile = fm, id
		return []attribute.KeyValue{attribute.Int("files", len(fm.FileIDs()))}, nil
	})
	if err != nil {
		return err
	}

	// Parse.
	err = e.phase(ctx, res, PhaseParse, func(ctx context.Context) ([]attribute.KeyValue, error) {
		trees, diags, err := syntax.ParseAll(ctx, res.Files, res.Files.FileIDs())
		if err != nil {
			return nil, err
		}
		res.Trees = trees
		for _, id := range res.Files.FileIDs() {
			e.reporter.Report(ctx, report.Event{
				Kind:    report.KindFile,
				Level:   report.LevelTrace,
				Message: "parsed file",
				Attrs: []slog.Attr{
					slog.Int("file_id", int(id)),
					slog.String("path", res.Files.Path(id)),
					slog.Int("items", len(trees[id].Items)),
				},
			})
		}
		e.addDiagnostics(ctx, res, diags)
		return []attribute.KeyValue{attribute.Int("diagnostics", len(diags))}, nil
	})
	if err != nil {
		return err
	}

	// The entry point must exist syntactically before anything is compiled.
	err = e.phase(ctx, res, PhaseCheck, func(ctx context.Context) ([]attribute.KeyValue, error) {
		if locate.FindEntryPointSyntax(res.Trees[res.EntryFile], p.EntryPoint) == nil {
			return nil, fmt.Errorf("%w: no function `%s` in %s", locate.ErrEntryPointNotFound, p.EntryPoint, p.EntryFile)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	// Compile.
	err = e.phase(ctx, res, PhaseCompile, func(ctx context.Context) ([]attribute.KeyValue, error) {
		fc, diags, err := frontend.Compile(ctx, res.Files, res.Trees, res.EntryFile)
		e.addDiagnostics(ctx, res, diags)
		if err != nil {
			return nil, source.RenderError(res.Files, err)
		}
		res.Context = fc
		return []attribute.KeyValue{attribute.Int("crates", len(fc.Crates()))}, nil
	})
	if err != nil {
		return err
	}

	// Resolve.
	err = e.phase(ctx, res, PhaseResolve, func(ctx context.Context) ([]attribute.KeyValue, error) {
		snap, err := modgraph.Resolve(ctx, res.Context,
			modgraph.WithPolicy(e.policy),
			modgraph.WithReporter(e.reporter),
		)
		if err != nil {
			var ue *modgraph.UnrepresentableError
			if errors.As(err, &ue) {
				e.metrics.AddUnrepresentable(ue.Reason.String(), 1)
			}
			return nil, source.RenderError(res.Files, err)
		}
		res.Snapshot = snap
		for _, m := range snap.Modules {
			e.reporter.Report(ctx, report.Event{
				Kind:    report.KindModule,
				Level:   report.LevelTrace,
				Message: m.String(),
				Attrs: []slog.Attr{
					slog.String("crate", m.Crate.String()),
					slog.Int("local_id", int(m.LocalID)),
					slog.String("file", res.Files.Path(m.File)),
				},
			})
		}
		for _, ue := range snap.Unrepresentable {
			e.metrics.AddUnrepresentable(ue.Reason.String(), 1)
		}
		e.metrics.SetSnapshot(len(snap.Modules), snap.DefinitionCount())
		return []attribute.KeyValue{
			attribute.Int("modules", len(snap.Modules)),
			attribute.Int("definitions", snap.DefinitionCount()),
			attribute.Int("unrepresentable", len(snap.Unrepresentable)),
		}, nil
	})
	if err != nil {
		return err
	}

	// Locate.
	err = e.phase(ctx, res, PhaseLocate, func(ctx context.Context) ([]attribute.KeyValue, error) {
		def, err := locate.FindEntryPoint(res.Snapshot.Modules, res.EntryFile, p.EntryPoint)
		if errors.Is(err, locate.ErrEntryPointNotFound) {
			return nil, fmt.Errorf("%w: no function `%s` in %s", locate.ErrEntryPointNotFound, p.EntryPoint, p.EntryFile)
		}
		if err != nil {
			return nil, source.RenderError(res.Files, err)
		}
		res.Entry = def
		return nil, nil
	})
	if err != nil {
		return err
	}

	// Match.
	err = e.phase(ctx, res, PhaseMatch, func(ctx context.Context) ([]attribute.KeyValue, error) {
		fn := locate.MatchSyntax(res.Trees[res.EntryFile], res.Entry)
		if fn == nil {
			return nil, fmt.Errorf("%w: `%s` at %s", ErrSyntaxMismatch, res.Entry.Name, res.Files.Describe(res.Entry.Location))
		}
		res.EntrySyntax = fn
		line, col := res.Files.Position(fn.Name.Location)
		e.reporter.Report(ctx, report.Event{
			Kind:    report.KindEntryPoint,
			Level:   slog.LevelInfo,
			Message: "entry point located",
			Attrs: []slog.Attr{
				slog.String("name", fn.Name.Name),
				slog.String("file", res.Files.Path(res.EntryFile)),
				slog.Int("line", line),
				slog.Int("col", col),
				slog.String("signature", fn.Signature()),
			},
		})
		return nil, nil
	})
	if err != nil {
		return err
	}

	if e.store == nil {
		return nil
	}
	return e.phase(ctx, res, PhaseSave, func(ctx context.Context) ([]attribute.KeyValue, error) {
		// Duration is the time up to saving; Run sets the final value.
		res.Duration = time.Since(res.StartedAt)
		if err := e.store.SaveSnapshot(snapshotRecord(res, e.policy)); err != nil {
			return nil, err
		}
		return nil, nil
	})
}

// phase runs fn as one named pipeline phase: traced, timed, and reported.
func (e *Engine) phase(ctx context.Context, res *Result, name string, fn func(context.Context) ([]attribute.KeyValue, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, end := e.observer.StartPhase(ctx, name)
	attrs, err := fn(ctx)
	d := end(err, attrs...)
	res.Timings = append(res.Timings, PhaseTiming{Phase: name, Duration: d})

	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	e.reporter.Report(ctx, report.Event{
		Kind:    report.KindPhase,
		Level:   level,
		Message: name,
		Attrs:   []slog.Attr{slog.String("run_id", res.RunID), slog.Duration("duration", d)},
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (e *Engine) addDiagnostics(ctx context.Context, res *Result, diags []source.Diagnostic) {
	res.Diagnostics = append(res.Diagnostics, diags...)
	for _, d := range diags {
		level := slog.LevelInfo
		switch d.Severity {
		case source.SeverityError:
			level = slog.LevelError
		case source.SeverityWarning:
			level = slog.LevelWarn
		}
		e.reporter.Report(ctx, report.Event{
			Kind:    report.KindDiagnostic,
			Level:   level,
			Message: d.Render(res.Files),
			Attrs:   []slog.Attr{slog.String("code", d.Code)},
		})
	}
}

// snapshotRecord flattens a successful Result into its store rows.
func snapshotRecord(res *Result, policy modgraph.Policy) *store.Snapshot {
	fm := res.Files
	rec := &store.Snapshot{
		Run: store.Run{
			ID:         res.RunID,
			Root:       fm.Root(),
			EntryFile:  res.Project.EntryFile,
			EntryPoint: res.Project.EntryPoint,
			Policy:     policy.String(),
			StartedAt:  res.StartedAt,
			Duration:   res.Duration,
		},
	}
	hashes := make(map[string]string)
	for _, id := range fm.FileIDs() {
		src, _ := fm.Source(id)
		f := store.File{
			FileID:   int64(id),
			Path:     fm.Path(id),
			IsStdlib: fm.IsStdlib(id),
			Hash:     store.ContentHash(src),
		}
		if !f.IsStdlib {
			hashes[f.Path] = f.Hash
		}
		rec.Files = append(rec.Files, f)
	}
	rec.Run.TreeHash = store.TreeHash(hashes)
	for _, m := range res.Snapshot.Modules {
		mod := store.Module{
			Crate:    int64(m.Crate.Index),
			LocalID:  int64(m.LocalID),
			FileID:   int64(m.File),
			Children: make(map[string]int64, len(m.Children)),
		}
		if m.Parent != nil {
			p := int64(*m.Parent)
			mod.ParentID = &p
		}
		for name, child := range m.Children {
			mod.Children[name] = int64(child)
		}
		rec.Modules = append(rec.Modules, mod)

		for i, d := range m.Definitions {
			line, col := fm.Position(d.Location)
			rec.Definitions = append(rec.Definitions, store.Definition{
				Crate:      int64(m.Crate.Index),
				ModuleID:   int64(m.LocalID),
				Ordinal:    i,
				Name:       d.Name,
				Kind:       d.Kind.String(),
				DefKind:    d.DefID.Kind.String(),
				DefIndex:   int64(d.DefID.Index),
				Visibility: d.Visibility.String(),
				IsStdlib:   d.IsStdlib,
				FileID:     int64(d.Location.File),
				SpanStart:  int64(d.Location.Span.Start),
				SpanEnd:    int64(d.Location.Span.End),
				Line:       line,
				Col:        col,
			})
		}
	}
	for _, ue := range res.Snapshot.Unrepresentable {
		u := store.Unrepresentable{
			Name:      ue.Name,
			Reason:    ue.Reason.String(),
			FileID:    int64(ue.Location.File),
			SpanStart: int64(ue.Location.Span.Start),
			SpanEnd:   int64(ue.Location.Span.End),
		}
		if ue.Reason == modgraph.ReasonUnsupportedKind {
			u.DefKind = ue.DefKind.String()
		}
		rec.Unrepresentable = append(rec.Unrepresentable, u)
	}
	if fn := res.EntrySyntax; fn != nil {
		line, col := fm.Position(fn.Name.Location)
		ep := &store.EntryPoint{
			Name:          fn.Name.Name,
			FileID:        int64(fn.Name.Location.File),
			SpanStart:     int64(fn.Name.Location.Span.Start),
			SpanEnd:       int64(fn.Name.Location.Span.End),
			Line:          line,
			Col:           col,
			Visibility:    res.Entry.Visibility.String(),
			Unconstrained: fn.Unconstrained,
			ReturnType:    fn.ReturnType,
		}
		for _, prm := range fn.Params {
			if prm.Type == "" {
				ep.Params = append(ep.Params, prm.Name)
				continue
			}
			ep.Params = append(ep.Params, prm.Name+": "+prm.Type)
		}
		rec.EntryPoint = ep
	}
	return rec
}
