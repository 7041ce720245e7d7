package lucid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/locate"
	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/observability"
	"github.com/jward/lucid/internal/report"
	"github.com/jward/lucid/internal/store"
)

// writeProject writes files (relative path → contents) into a fresh
// directory and returns it.
func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, src := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	return root
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func newStoreEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	opts = append(opts, WithStore(filepath.Join(t.TempDir(), "lucid.db")))
	return newTestEngine(t, opts...)
}

const mainHelper = "fn main(x: Field) {\n    helper(x);\n}\n\nfn helper(x: Field) {}\n"

// userNames returns the names of m's definitions that did not come from the
// prelude.
func userNames(m ModuleInfo) []string {
	var names []string
	for _, d := range m.Definitions {
		if !d.IsStdlib {
			names = append(names, d.Name)
		}
	}
	return names
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Defaults(t *testing.T) {
	e := newTestEngine(t)
	assert.Nil(t, e.Store())
	assert.Equal(t, modgraph.PolicyAbort, e.policy)
	assert.NotNil(t, e.logger)
	assert.NotNil(t, e.reporter)
	require.NoError(t, e.Close())
}

func TestNew_WithStoreMigrates(t *testing.T) {
	e := newStoreEngine(t)
	require.NotNil(t, e.Store())

	var n int
	require.NoError(t, e.Store().DB().QueryRow("SELECT COUNT(*) FROM runs").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestNew_InvalidStorePath(t *testing.T) {
	_, err := New(WithStore("/nonexistent/dir/lucid.db"))
	require.Error(t, err)
}

// =============================================================================
// Run
// =============================================================================

func TestRun_MainAndHelper(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	require.NotNil(t, res.Entry)
	assert.Equal(t, "main", res.Entry.Name)
	assert.Equal(t, modgraph.KindFunction, res.Entry.Kind)
	require.NotNil(t, res.EntrySyntax)
	assert.Equal(t, "main", res.EntrySyntax.Name.Name)
	assert.Equal(t, res.Entry.Location, res.EntrySyntax.Name.Location)
	assert.Equal(t, "fn main(x: Field)", res.EntrySyntax.Signature())

	require.Len(t, res.Snapshot.Modules, 1)
	assert.Equal(t, []string{"main", "helper"}, userNames(res.Snapshot.Modules[0]))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, "main.nr", res.Project.EntryFile)
	assert.Equal(t, "main", res.Project.EntryPoint)
	assert.Empty(t, res.Diagnostics)
}

func TestRun_RecordsPhaseTimings(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	var phases []string
	for _, pt := range res.Timings {
		phases = append(phases, pt.Phase)
	}
	assert.Equal(t, []string{PhaseLoad, PhaseParse, PhaseCheck, PhaseCompile, PhaseResolve, PhaseLocate, PhaseMatch}, phases)
	assert.Zero(t, res.Timing(PhaseSave), "no store, no save phase")
	assert.Positive(t, res.Duration)
}

func TestRun_CustomEntry(t *testing.T) {
	root := writeProject(t, map[string]string{
		"src/lib.nr":    "mod shapes;\npub fn prove(a: Field) -> pub Field { shapes::area(a) }\n",
		"src/shapes.nr": "pub fn area(a: Field) -> Field { a * a }\n",
	})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root, EntryFile: "src/lib.nr", EntryPoint: "prove"})
	require.NoError(t, err)
	assert.Equal(t, "prove", res.Entry.Name)
	assert.Equal(t, "pub", res.EntrySyntax.Visibility.String())
	assert.Equal(t, "Field", res.EntrySyntax.ReturnType)
	assert.Len(t, res.Snapshot.Modules, 2)
}

func TestRun_MissingEntryFile(t *testing.T) {
	root := writeProject(t, map[string]string{"lib.nr": mainHelper})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEntryFileNotFound)
	assert.Contains(t, err.Error(), "main.nr")
	require.NotNil(t, res)
	assert.Nil(t, res.Snapshot)
}

func TestRun_MissingEntryPointFailsBeforeCompile(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": "fn helper() {}\n"})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, locate.ErrEntryPointNotFound)
	assert.Contains(t, err.Error(), "`main`")
	assert.Contains(t, err.Error(), PhaseCheck+":")
	assert.Nil(t, res.Context)
	assert.Zero(t, res.Timing(PhaseCompile))
}

func TestRun_EntryPointOnlyInSubmodule(t *testing.T) {
	// The check phase looks at top-level items only, so a `main` declared in
	// an inline module does not count.
	root := writeProject(t, map[string]string{
		"main.nr": "mod inner {\n    fn main() {}\n}\n",
	})
	e := newTestEngine(t)

	_, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, locate.ErrEntryPointNotFound)
}

func TestRun_AmbiguousEntryPoint(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "mod inner {\n    pub fn main() {}\n}\n\nfn main() {}\n",
	})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, locate.ErrAmbiguousEntryPoint)
	assert.False(t, errors.Is(err, locate.ErrEntryPointNotFound))

	var amb *locate.AmbiguousEntryPointError
	require.ErrorAs(t, err, &amb)
	assert.Len(t, amb.Matches, 2)
	assert.NotNil(t, res.Snapshot, "snapshot is kept for inspection")

	msg := err.Error()
	assert.Contains(t, msg, "in main.nr")
	assert.Contains(t, msg, "main.nr:2:12")
	assert.Contains(t, msg, "main.nr:5:4")
	assert.NotContains(t, msg, "file ")
}

func TestRun_CompileError(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": "mod missing;\nfn main() {}\n"})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)

	var ce *frontend.CompileError
	require.ErrorAs(t, err, &ce)
	require.NotEmpty(t, ce.Errors())
	assert.Contains(t, err.Error(), "missing")
	assert.Contains(t, err.Error(), "main.nr:1:5")
	assert.True(t, hasErrorDiagnostic(res), "diagnostics are kept on the result")
}

func hasErrorDiagnostic(res *Result) bool {
	for _, d := range res.Diagnostics {
		if d.Severity.String() == "error" {
			return true
		}
	}
	return false
}

func TestRun_UnrepresentableAbortsByDefault(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "struct Point { x: Field }\nfn main() {}\n",
	})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)
	assert.ErrorIs(t, err, modgraph.ErrUnsupportedDefinitionKind)
	assert.Contains(t, err.Error(), "Point")
	assert.Nil(t, res.Snapshot, "no partial snapshot")
}

func TestRun_ErrorsNamePathAndPosition(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "fn main() {}\n\nstruct Point { x: Field }\n",
	})
	e := newTestEngine(t)

	_, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)

	var ue *modgraph.UnrepresentableError
	require.ErrorAs(t, err, &ue)
	msg := err.Error()
	assert.Contains(t, msg, "`Point` at main.nr:3:8")
	assert.True(t, strings.HasPrefix(msg, PhaseResolve+": "), msg)
	assert.NotContains(t, msg, "file ")
}

func TestRun_SkipPolicyRecordsUnrepresentable(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "struct Point { x: Field }\nfn main() {}\n",
	})
	rec := &report.Recorder{}
	e := newTestEngine(t, WithPolicy(PolicySkip), WithReporter(rec))

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	require.Len(t, res.Snapshot.Unrepresentable, 1)
	assert.Equal(t, "Point", res.Snapshot.Unrepresentable[0].Name)
	assert.Equal(t, []string{"main"}, userNames(res.Snapshot.Modules[0]))
	assert.NotEmpty(t, rec.OfKind(report.KindUnrepresentable))
}

func TestRun_ParseErrorsAreWarnings(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr":  mainHelper,
		"stray.nr": "fn broken( {\n",
	})
	e := newTestEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Diagnostics)
	assert.False(t, hasErrorDiagnostic(res))
}

func TestRun_Discover(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr":         mainHelper,
		"scratch/skip.nr": "fn broken( {\n",
	})
	e := newTestEngine(t, WithDiscover(DiscoverOptions{Exclude: []string{"scratch/**"}}))

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	_, ok := res.Files.NameToID("scratch/skip.nr")
	assert.False(t, ok)
	assert.Empty(t, res.Diagnostics)
}

func TestRun_WithoutStdlib(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	e := newTestEngine(t, WithoutStdlib())

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	for _, d := range res.Snapshot.Modules[0].Definitions {
		assert.False(t, d.IsStdlib, d.Name)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	e := newTestEngine(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Run(ctx, Project{Root: root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_DeterministicSnapshots(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "mod a;\nmod b;\nfn main() {}\n",
		"a.nr":    "pub fn x() {}\npub global G: Field = 1;\n",
		"b.nr":    "use super::a::x;\npub fn y() {}\n",
	})
	e := newTestEngine(t)

	first, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	second, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	assert.Equal(t, first.Snapshot.Modules, second.Snapshot.Modules)
	assert.NotEqual(t, first.RunID, second.RunID)
}

// =============================================================================
// Reporting and observability
// =============================================================================

func TestRun_ReportsEntryPoint(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	rec := &report.Recorder{}
	e := newTestEngine(t, WithReporter(rec))

	_, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	eps := rec.OfKind(report.KindEntryPoint)
	require.Len(t, eps, 1)
	attrs := map[string]string{}
	for _, a := range eps[0].Attrs {
		attrs[a.Key] = a.Value.String()
	}
	assert.Equal(t, "main", attrs["name"])
	assert.Equal(t, "main.nr", attrs["file"])
	assert.Equal(t, "1", attrs["line"])
	assert.Equal(t, "4", attrs["col"])
	assert.Equal(t, "fn main(x: Field)", attrs["signature"])

	// One event per phase plus the final summary.
	assert.Len(t, rec.OfKind(report.KindPhase), 8)
}

func TestRun_TraceDumpsFilesAndModules(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "mod util;\n\nfn main() {}\n",
		"util.nr": "pub fn check() {}\n",
	})
	rec := &report.Recorder{}
	e := newTestEngine(t, WithReporter(rec))

	_, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	var parsed []string
	for _, ev := range rec.OfKind(report.KindFile) {
		assert.Equal(t, report.LevelTrace, ev.Level)
		for _, a := range ev.Attrs {
			if a.Key == "path" {
				parsed = append(parsed, a.Value.String())
			}
		}
	}
	assert.Contains(t, parsed, "main.nr")
	assert.Contains(t, parsed, "util.nr")

	mods := rec.OfKind(report.KindModule)
	require.Len(t, mods, 2)
	for _, ev := range mods {
		assert.Equal(t, report.LevelTrace, ev.Level)
	}
	assert.Contains(t, mods[0].Message, "- Local ID: 0")
	assert.Contains(t, mods[0].Message, "- Children: {util: 1}")
	assert.Contains(t, mods[0].Message, "main (")
	assert.Contains(t, mods[1].Message, "- Parent: 0")
	assert.Contains(t, mods[1].Message, "check (")
}

func TestRun_ReportsFailure(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": "fn helper() {}\n"})
	rec := &report.Recorder{}
	e := newTestEngine(t, WithReporter(rec))

	_, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)

	phases := rec.OfKind(report.KindPhase)
	require.NotEmpty(t, phases)
	last := phases[len(phases)-1]
	assert.Equal(t, "run failed", last.Message)
}

func TestRun_Metrics(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": mainHelper})
	m := observability.NewMetrics()
	e := newTestEngine(t, WithMetrics(m))

	_, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["lucid_phase_seconds"])
	assert.True(t, names["lucid_modules"])
	assert.True(t, names["lucid_definitions"])
}

// =============================================================================
// Persistence
// =============================================================================

func TestRun_SavesSnapshot(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "mod util;\n\nfn main(x: Field, y: pub Field) {\n    util::check(x);\n}\n",
		"util.nr": "pub fn check(x: Field) {}\n",
	})
	e := newStoreEngine(t)

	res, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)
	assert.Positive(t, res.Timing(PhaseSave))

	q := e.Query()
	latest, err := q.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, res.RunID, latest.ID)
	assert.Equal(t, "main.nr", latest.EntryFile)
	assert.Equal(t, "main", latest.EntryPoint)
	assert.Equal(t, "abort", latest.Policy)
	assert.Equal(t, 2, latest.ModuleCount)
	assert.Equal(t, store.TreeHash(map[string]string{
		"main.nr": store.ContentHash([]byte("mod util;\n\nfn main(x: Field, y: pub Field) {\n    util::check(x);\n}\n")),
		"util.nr": store.ContentHash([]byte("pub fn check(x: Field) {}\n")),
	}), latest.TreeHash)

	mods, err := q.Modules("")
	require.NoError(t, err)
	require.Len(t, mods, 2)
	assert.Nil(t, mods[0].ParentID)
	assert.Equal(t, map[string]int64{"util": 1}, mods[0].Children)

	defs, err := q.Definitions("", DefinitionFilter{Name: "check"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "function", defs[0].Kind)
	assert.Equal(t, "Public", defs[0].Visibility)
	assert.Equal(t, int64(1), defs[0].ModuleID)

	ep, err := q.EntryPoint(res.RunID)
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, "main", ep.Name)
	assert.Equal(t, []string{"x: Field", "y: Field"}, ep.Params)
	assert.Equal(t, 3, ep.Line)
	assert.Equal(t, 4, ep.Col)

	files, err := q.Files("")
	require.NoError(t, err)
	var user []string
	for _, f := range files {
		if !f.IsStdlib {
			user = append(user, f.Path)
		}
	}
	assert.ElementsMatch(t, []string{"main.nr", "util.nr"}, user)
}

func TestRun_FailedRunIsNotSaved(t *testing.T) {
	root := writeProject(t, map[string]string{"main.nr": "fn helper() {}\n"})
	e := newStoreEngine(t)

	_, err := e.Run(context.Background(), Project{Root: root})
	require.Error(t, err)

	runs, err := e.Query().Runs(0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestRun_SkipPolicySavesUnrepresentable(t *testing.T) {
	root := writeProject(t, map[string]string{
		"main.nr": "struct Point { x: Field }\ntrait Shape {\n    fn area(self) -> Field;\n}\nfn main() {}\n",
	})
	e := newStoreEngine(t, WithPolicy(PolicySkip))

	_, err := e.Run(context.Background(), Project{Root: root})
	require.NoError(t, err)

	out, err := e.Query().Unrepresentable("")
	require.NoError(t, err)
	reasons := map[string]string{}
	for _, u := range out {
		reasons[u.Name] = u.Reason
	}
	assert.Equal(t, "unsupported_kind", reasons["Point"])
	assert.Equal(t, "unsupported_kind", reasons["Shape"])
	assert.Equal(t, "trait_only", reasons["area"])

	latest, err := e.Query().LatestRun()
	require.NoError(t, err)
	assert.Equal(t, "skip", latest.Policy)
}
