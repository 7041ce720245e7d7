package frontend

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

var preludeNames = []string{"print", "println", "assert_constant", "static_assert"}

// compileProject registers files with a fresh file manager (stdlib
// included), parses everything and compiles from entry.
func compileProject(t *testing.T, files map[string]string, entry string) (*Context, []source.Diagnostic, error) {
	t.Helper()
	fm := FileManagerWithStdlib("")
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		fm.AddFile(p, []byte(files[p]))
	}

	parsed, diags, err := syntax.ParseAll(context.Background(), fm, fm.FileIDs())
	require.NoError(t, err)
	require.Empty(t, diags, "parse diagnostics")

	entryID, ok := fm.NameToID(entry)
	require.True(t, ok)
	return Compile(context.Background(), fm, parsed, entryID)
}

func mustCompile(t *testing.T, files map[string]string) *Context {
	t.Helper()
	ctx, diags, err := compileProject(t, files, "main.nr")
	require.NoError(t, err, "diagnostics: %v", diags)
	return ctx
}

func rootCrate(t *testing.T, ctx *Context) *CrateDefMap {
	t.Helper()
	dm, ok := ctx.RootCrate()
	require.True(t, ok)
	return dm
}

// userNames returns the scope names of m that did not come from the prelude.
func userNames(m *ModuleData) []string {
	var names []string
	for _, e := range m.Scope().Values() {
		if b, ok := e.Bindings[NoTrait]; ok && b.IsPrelude {
			continue
		}
		names = append(names, e.Ident.Name)
	}
	return names
}

func compileErrorCodes(t *testing.T, err error) []string {
	t.Helper()
	var ce *CompileError
	require.True(t, errors.As(err, &ce), "want *CompileError, got %v", err)
	var codes []string
	for _, d := range ce.Errors() {
		codes = append(codes, d.Code)
	}
	return codes
}

func TestCompile_SingleFile(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": "fn main() {}\nfn helper() {}\nglobal LIMIT: u32 = 3;\n",
	})

	crates := ctx.Crates()
	require.Len(t, crates, 2)
	assert.True(t, crates[0].IsStdlib())
	assert.False(t, crates[1].IsStdlib())

	dm := rootCrate(t, ctx)
	require.Len(t, dm.Modules, 1)
	root := dm.Modules[dm.Root]
	assert.Nil(t, root.Parent)
	assert.Empty(t, root.Children)
	assert.Equal(t, "main.nr", ctx.Files.Path(root.Location.File))

	assert.Equal(t, []string{"main", "helper", "LIMIT"}, userNames(root))

	main, ok := root.Scope().Plain("main")
	require.True(t, ok)
	assert.Equal(t, DefFunction, main.Def.Kind)
	assert.Equal(t, Private, main.Visibility)
	assert.False(t, main.IsPrelude)

	limit, _ := root.Scope().Plain("LIMIT")
	assert.Equal(t, DefGlobal, limit.Def.Kind)

	meta, ok := ctx.Interner.Meta(main.Def)
	require.True(t, ok)
	assert.Equal(t, "main", meta.Name.Name)
	assert.Equal(t, "main", ctx.Files.Text(meta.Name.Location))
}

func TestCompile_UntypedGlobalImported(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr":   "mod consts;\nuse consts::N;\nfn main() {}\n",
		"consts.nr": "pub global N = 3;\n",
	})
	dm := rootCrate(t, ctx)
	root := dm.Modules[dm.Root]

	n, ok := root.Scope().Plain("N")
	require.True(t, ok)
	assert.Equal(t, DefGlobal, n.Def.Kind)

	meta, ok := ctx.Interner.Meta(n.Def)
	require.True(t, ok)
	assert.Equal(t, "consts.nr", ctx.Files.Path(meta.Name.Location.File))
	assert.Equal(t, "N", ctx.Files.Text(meta.Name.Location))
}

func TestCompile_PreludeInjected(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": "fn main() { println(1); }\nfn print() {}\n",
	})
	root := rootCrate(t, ctx).Modules[0]

	for _, name := range preludeNames {
		b, ok := root.Scope().Plain(name)
		require.True(t, ok, name)
		if name == "print" {
			// A local definition wins over the prelude.
			assert.False(t, b.IsPrelude)
			continue
		}
		assert.True(t, b.IsPrelude, name)
		assert.Equal(t, DefFunction, b.Def.Kind)
		assert.True(t, b.Def.Crate.IsStdlib())
	}
}

func TestCompile_ModuleFiles(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr":    "mod foo;\nmod bar;\nfn main() {}\n",
		"foo.nr":     "mod baz;\npub fn in_foo() {}\n",
		"foo/baz.nr": "pub fn in_baz() {}\n",
		"bar/mod.nr": "mod inner { fn deep() {} }\n",
	})
	dm := rootCrate(t, ctx)
	require.Len(t, dm.Modules, 5)

	fileOf := func(id LocalModuleID) string {
		return ctx.Files.Path(dm.Modules[id].Location.File)
	}

	root := dm.Modules[dm.Root]
	fooID := root.Children["foo"]
	barID := root.Children["bar"]
	assert.Equal(t, "foo.nr", fileOf(fooID))
	assert.Equal(t, "bar/mod.nr", fileOf(barID))

	foo := dm.Modules[fooID]
	require.NotNil(t, foo.Parent)
	assert.Equal(t, dm.Root, *foo.Parent)
	bazID := foo.Children["baz"]
	assert.Equal(t, "foo/baz.nr", fileOf(bazID))

	bar := dm.Modules[barID]
	innerID := bar.Children["inner"]
	// Inline modules live in their parent's file.
	assert.Equal(t, "bar/mod.nr", fileOf(innerID))
	assert.Equal(t, []string{"deep"}, userNames(dm.Modules[innerID]))

	modBinding, ok := root.Scope().Plain("foo")
	require.True(t, ok)
	assert.Equal(t, DefModule, modBinding.Def.Kind)
	assert.Equal(t, uint32(fooID), modBinding.Def.Index)
	_, ok = ctx.Interner.Meta(modBinding.Def)
	assert.False(t, ok)
}

func TestCompile_Imports(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": `mod foo;
mod bar;
use foo::helper;
use crate::bar::{twice as double, K};
use dep::std::hash::pedersen_hash;
fn main() {}
`,
		"foo.nr": "pub fn helper() {}\nuse super::bar::twice;\n",
		"bar.nr": "pub fn twice() {}\npub(crate) global K: u8 = 1;\n",
	})
	dm := rootCrate(t, ctx)
	root := dm.Modules[dm.Root]

	helper, ok := root.Scope().Plain("helper")
	require.True(t, ok)
	assert.Equal(t, DefFunction, helper.Def.Kind)
	meta, _ := ctx.Interner.Meta(helper.Def)
	assert.Equal(t, "foo.nr", ctx.Files.Path(meta.Name.Location.File))

	// The imported name's binding is recorded at the import site.
	entry, ok := root.Scope().Lookup("double")
	require.True(t, ok)
	assert.Equal(t, "main.nr", ctx.Files.Path(entry.Ident.Location.File))
	assert.Equal(t, "double", ctx.Files.Text(entry.Ident.Location))

	k, ok := root.Scope().Plain("K")
	require.True(t, ok)
	assert.Equal(t, DefGlobal, k.Def.Kind)

	hash, ok := root.Scope().Plain("pedersen_hash")
	require.True(t, ok)
	assert.True(t, hash.Def.Crate.IsStdlib())
	assert.False(t, hash.IsPrelude)

	foo := dm.Modules[root.Children["foo"]]
	twice, ok := foo.Scope().Plain("twice")
	require.True(t, ok)
	assert.Equal(t, DefFunction, twice.Def.Kind)
}

func TestCompile_ImportsNeedSeveralPasses(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": "use foo::x;\nmod foo;\nmod bar;\nfn main() {}\n",
		"foo.nr":  "pub use super::bar::x;\n",
		"bar.nr":  "pub fn x() {}\n",
	})
	root := rootCrate(t, ctx).Modules[0]
	b, ok := root.Scope().Plain("x")
	require.True(t, ok)
	assert.Equal(t, DefFunction, b.Def.Kind)
}

func TestCompile_WildcardImport(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": "mod util;\nuse util::*;\nfn main() {}\nfn shared() {}\n",
		"util.nr": "pub fn a() {}\npub fn b() {}\nfn hidden() {}\npub fn shared() {}\n",
	})
	root := rootCrate(t, ctx).Modules[0]
	assert.Equal(t, []string{"util", "main", "shared", "a", "b"}, userNames(root))
}

func TestCompile_TraitMethodsAreTraitKeyed(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{
		"main.nr": "trait Shape {\n    fn area(self) -> Field;\n}\nfn main() {}\n",
	})
	root := rootCrate(t, ctx).Modules[0]

	shape, ok := root.Scope().Plain("Shape")
	require.True(t, ok)
	assert.Equal(t, DefTrait, shape.Def.Kind)

	area, ok := root.Scope().Lookup("area")
	require.True(t, ok)
	_, plain := area.Bindings[NoTrait]
	assert.False(t, plain)
	require.Len(t, area.Bindings, 1)
	for key, b := range area.Bindings {
		assert.NotEqual(t, NoTrait, key)
		assert.Equal(t, DefFunction, b.Def.Kind)
	}
}

func TestCompile_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		files map[string]string
		want  string
	}{
		{
			name:  "missing module file",
			files: map[string]string{"main.nr": "mod nowhere;\nfn main() {}\n"},
			want:  "module-not-found",
		},
		{
			name:  "duplicate definition",
			files: map[string]string{"main.nr": "fn main() {}\nfn main() {}\n"},
			want:  "duplicate-definition",
		},
		{
			name:  "unresolved import",
			files: map[string]string{"main.nr": "use crate::missing;\nfn main() {}\n"},
			want:  "unresolved-import",
		},
		{
			name: "private import",
			files: map[string]string{
				"main.nr": "mod foo;\nuse foo::secret;\nfn main() {}\n",
				"foo.nr":  "fn secret() {}\n",
			},
			want: "unresolved-import",
		},
		{
			name:  "private stdlib module",
			files: map[string]string{"main.nr": "use std::print::print_oracle;\nfn main() {}\n"},
			want:  "unresolved-import",
		},
		{
			name:  "super in crate root",
			files: map[string]string{"main.nr": "use super::x;\nfn main() {}\n"},
			want:  "unresolved-import",
		},
		{
			name: "import through a function",
			files: map[string]string{
				"main.nr": "use helper::x;\nfn helper() {}\nfn main() {}\n",
			},
			want: "unresolved-import",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx, diags, err := compileProject(t, tt.files, "main.nr")
			require.Error(t, err)
			assert.Nil(t, ctx)
			assert.NotEmpty(t, diags)
			assert.Contains(t, compileErrorCodes(t, err), tt.want)
		})
	}
}

func TestCompile_OrphanFileWarns(t *testing.T) {
	t.Parallel()
	ctx, diags, err := compileProject(t, map[string]string{
		"main.nr":  "fn main() {}\n",
		"stray.nr": "fn stray() {}\n",
	}, "main.nr")
	require.NoError(t, err)
	require.NotNil(t, ctx)
	require.Len(t, diags, 1)
	assert.Equal(t, source.SeverityWarning, diags[0].Severity)
	assert.Equal(t, "orphan-file", diags[0].Code)
}

func TestCompile_EntryNotParsed(t *testing.T) {
	t.Parallel()
	fm := FileManagerWithStdlib("")
	id := fm.AddFile("main.nr", []byte("fn main() {}"))
	_, _, err := Compile(context.Background(), fm, map[source.FileID]*syntax.ParsedModule{}, id)
	require.Error(t, err)
}

func TestCompile_WithoutStdlib(t *testing.T) {
	t.Parallel()
	fm := source.NewFileManager("")
	id := fm.AddFile("main.nr", []byte("fn main() {}\n"))
	parsed, _, err := syntax.ParseAll(context.Background(), fm, fm.FileIDs())
	require.NoError(t, err)

	ctx, _, err := Compile(context.Background(), fm, parsed, id)
	require.NoError(t, err)
	require.Len(t, ctx.Crates(), 1)
	root := rootCrate(t, ctx).Modules[0]
	assert.Equal(t, 1, root.Scope().Len())
}

func TestCompile_StdlibCrate(t *testing.T) {
	t.Parallel()
	ctx := mustCompile(t, map[string]string{"main.nr": "fn main() {}\n"})
	var std *CrateDefMap
	for _, id := range ctx.Crates() {
		if id.IsStdlib() {
			std = ctx.DefMaps[id]
		}
	}
	require.NotNil(t, std)
	root := std.Modules[std.Root]
	assert.Contains(t, root.Children, "prelude")
	assert.Contains(t, root.Children, "hash")

	hash := std.Modules[root.Children["hash"]]
	finish, ok := hash.Scope().Lookup("finish")
	require.True(t, ok)
	_, plain := finish.Bindings[NoTrait]
	assert.False(t, plain)
}
