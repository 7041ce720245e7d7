package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

// testSnapshot builds a two-module run: a root module with `main` and
// `helper`, and a child module `foo` with a global.
func testSnapshot(id string, started time.Time) *Snapshot {
	return &Snapshot{
		Run: Run{
			ID:         id,
			Root:       "/proj/noir/src",
			EntryFile:  "main.nr",
			EntryPoint: "main",
			Policy:     "skip",
			StartedAt:  started,
			Duration:   1500 * time.Millisecond,
			TreeHash:   "t-1",
		},
		Files: []File{
			{FileID: 1, Path: "std/lib.nr", IsStdlib: true, Hash: "h-std"},
			{FileID: 5, Path: "main.nr", Hash: "h-main"},
			{FileID: 6, Path: "foo.nr", Hash: "h-foo"},
		},
		Modules: []Module{
			{Crate: 1, LocalID: 0, FileID: 5, Children: map[string]int64{"foo": 1}},
			{Crate: 1, LocalID: 1, ParentID: ptr(int64(0)), FileID: 6},
		},
		Definitions: []Definition{
			{Crate: 1, ModuleID: 0, Ordinal: 0, Name: "foo", Kind: "module", DefKind: "ModuleId", DefIndex: 1, Visibility: "Private", FileID: 5, SpanStart: 4, SpanEnd: 7, Line: 1, Col: 5},
			{Crate: 1, ModuleID: 0, Ordinal: 1, Name: "main", Kind: "function", DefKind: "FunctionId", DefIndex: 3, Visibility: "Private", FileID: 5, SpanStart: 13, SpanEnd: 17, Line: 2, Col: 4},
			{Crate: 1, ModuleID: 0, Ordinal: 2, Name: "println", Kind: "function", DefKind: "FunctionId", DefIndex: 0, Visibility: "Public", IsStdlib: true, FileID: 2, SpanStart: 7, SpanEnd: 14, Line: 1, Col: 8},
			{Crate: 1, ModuleID: 1, Ordinal: 0, Name: "K", Kind: "global", DefKind: "GlobalId", DefIndex: 0, Visibility: "Public", FileID: 6, SpanStart: 11, SpanEnd: 12, Line: 1, Col: 12},
		},
		EntryPoint: &EntryPoint{
			Name: "main", FileID: 5, SpanStart: 13, SpanEnd: 17, Line: 2, Col: 4,
			Visibility: "Private", Params: []string{"x: Field", "y: pub Field"},
		},
		Unrepresentable: []Unrepresentable{
			{Name: "Point", Reason: "unsupported_kind", DefKind: "TypeId", FileID: 5, SpanStart: 30, SpanEnd: 35},
		},
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	expectedTables := []string{
		"runs", "files", "modules", "module_children", "definitions",
		"entry_points", "unrepresentable",
	}

	for _, table := range expectedTables {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	// Running migrate again should not error.
	require.NoError(t, s.Migrate())
}

func TestMigrate_WALMode(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	var mode string
	err := s.db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
}

// =============================================================================
// SaveSnapshot
// =============================================================================

func TestSaveSnapshot_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", started)))

	run, err := s.Run("run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "/proj/noir/src", run.Root)
	assert.Equal(t, "main.nr", run.EntryFile)
	assert.Equal(t, "main", run.EntryPoint)
	assert.Equal(t, "skip", run.Policy)
	assert.True(t, started.Equal(run.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, run.Duration)
	assert.Equal(t, 2, run.ModuleCount)
	assert.Equal(t, 4, run.DefinitionCount)
	assert.Equal(t, "t-1", run.TreeHash)

	files, err := s.Files("run-1")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "std/lib.nr", files[0].Path)
	assert.True(t, files[0].IsStdlib)
	assert.Equal(t, "h-main", files[1].Hash)

	modules, err := s.Modules("run-1")
	require.NoError(t, err)
	require.Len(t, modules, 2)
	assert.Nil(t, modules[0].ParentID)
	assert.Equal(t, map[string]int64{"foo": 1}, modules[0].Children)
	require.NotNil(t, modules[1].ParentID)
	assert.Equal(t, int64(0), *modules[1].ParentID)
	assert.Empty(t, modules[1].Children)
	assert.Equal(t, int64(6), modules[1].FileID)

	ep, err := s.EntryPoint("run-1")
	require.NoError(t, err)
	require.NotNil(t, ep)
	assert.Equal(t, "main", ep.Name)
	assert.Equal(t, int64(13), ep.SpanStart)
	assert.Equal(t, []string{"x: Field", "y: pub Field"}, ep.Params)
	assert.False(t, ep.Unconstrained)
	assert.Empty(t, ep.ReturnType)

	skipped, err := s.UnrepresentableEntries("run-1")
	require.NoError(t, err)
	require.Len(t, skipped, 1)
	assert.Equal(t, "Point", skipped[0].Name)
	assert.Equal(t, "TypeId", skipped[0].DefKind)
}

func TestSaveSnapshot_DuplicateRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", time.Now())))
	err := s.SaveSnapshot(testSnapshot("run-1", time.Now()))
	require.ErrorIs(t, err, ErrRunExists)
}

func TestSaveSnapshot_RequiresID(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.Error(t, s.SaveSnapshot(&Snapshot{}))
	require.Error(t, s.SaveSnapshot(nil))
}

func TestSaveSnapshot_AtomicOnFailure(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	snap := testSnapshot("run-1", time.Now())
	// Duplicate (run_id, file_id) violates the primary key mid-transaction.
	snap.Files = append(snap.Files, File{FileID: 5, Path: "again.nr"})
	require.Error(t, s.SaveSnapshot(snap))

	run, err := s.Run("run-1")
	require.NoError(t, err)
	assert.Nil(t, run)
	defs, err := s.Definitions("run-1", DefinitionFilter{})
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestSaveSnapshot_NoEntryPoint(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	snap := testSnapshot("run-1", time.Now())
	snap.EntryPoint = nil
	require.NoError(t, s.SaveSnapshot(snap))

	ep, err := s.EntryPoint("run-1")
	require.NoError(t, err)
	assert.Nil(t, ep)
}

// =============================================================================
// Queries
// =============================================================================

func TestRuns_NewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveSnapshot(testSnapshot("a", base)))
	require.NoError(t, s.SaveSnapshot(testSnapshot("b", base.Add(time.Hour))))
	require.NoError(t, s.SaveSnapshot(testSnapshot("c", base.Add(2*time.Hour))))

	runs, err := s.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "a", runs[2].ID)

	runs, err = s.Runs(2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	latest, err := s.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "c", latest.ID)
}

func TestLatestRun_Empty(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, latest)

	run, err := s.Run("missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestDefinitions_Filter(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", time.Now())))

	tests := []struct {
		name   string
		filter DefinitionFilter
		want   []string
	}{
		{"all in order", DefinitionFilter{}, []string{"foo", "main", "println", "K"}},
		{"by name", DefinitionFilter{Name: "main"}, []string{"main"}},
		{"by kind", DefinitionFilter{Kind: "function"}, []string{"main", "println"}},
		{"by module", DefinitionFilter{ModuleID: ptr(int64(1))}, []string{"K"}},
		{"by crate", DefinitionFilter{Crate: ptr(int64(2))}, nil},
		{"exclude stdlib", DefinitionFilter{Kind: "function", ExcludeStdlib: true}, []string{"main"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defs, err := s.Definitions("run-1", tt.filter)
			require.NoError(t, err)
			var names []string
			for _, d := range defs {
				names = append(names, d.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestDefinitions_Fields(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", time.Now())))

	defs, err := s.Definitions("run-1", DefinitionFilter{Name: "println"})
	require.NoError(t, err)
	require.Len(t, defs, 1)
	d := defs[0]
	assert.Positive(t, d.ID)
	assert.Equal(t, "FunctionId", d.DefKind)
	assert.Equal(t, "Public", d.Visibility)
	assert.True(t, d.IsStdlib)
	assert.Equal(t, int64(2), d.FileID)
	assert.Equal(t, 1, d.Line)
	assert.Equal(t, 8, d.Col)
}

func TestDefinitions_ScopedToRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", time.Now())))
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-2", time.Now())))

	defs, err := s.Definitions("run-2", DefinitionFilter{Name: "main"})
	require.NoError(t, err)
	assert.Len(t, defs, 1)
}

// =============================================================================
// Deletion
// =============================================================================

func TestDeleteRun(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-1", time.Now())))
	require.NoError(t, s.SaveSnapshot(testSnapshot("run-2", time.Now())))
	require.NoError(t, s.DeleteRun("run-1"))

	for _, table := range append([]string{"runs"}, runTables...) {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		var n int
		require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE "+col+" = 'run-1'").Scan(&n))
		assert.Zero(t, n, "table %s", table)
	}

	run, err := s.Run("run-2")
	require.NoError(t, err)
	assert.NotNil(t, run)
}

func TestPruneRuns(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.SaveSnapshot(testSnapshot(id, base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := s.PruneRuns(2)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := s.Runs(0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "d", runs[0].ID)
	assert.Equal(t, "c", runs[1].ID)

	n, err = s.PruneRuns(5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPruneRuns_ClosedStore(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Close())

	n, err := s.PruneRuns(1)
	require.Error(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// Hashing
// =============================================================================

func TestContentHash(t *testing.T) {
	t.Parallel()
	a := ContentHash([]byte("fn main() {}"))
	assert.Len(t, a, 64)
	assert.Equal(t, a, ContentHash([]byte("fn main() {}")))
	assert.NotEqual(t, a, ContentHash([]byte("fn main() { }")))
}

func TestTreeHash_OrderIndependent(t *testing.T) {
	t.Parallel()
	h1 := TreeHash(map[string]string{"main.nr": "x", "foo.nr": "y"})
	h2 := TreeHash(map[string]string{"foo.nr": "y", "main.nr": "x"})
	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, TreeHash(map[string]string{"main.nr": "x", "foo.nr": "z"}))
}
