package frontend

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

// CompileError is returned when compilation produced error diagnostics.
type CompileError struct {
	Diagnostics []source.Diagnostic
}

func (e *CompileError) Error() string {
	return e.Render(nil)
}

// Render names the first error with its path and position when fm is
// non-nil.
func (e *CompileError) Render(fm *source.FileManager) string {
	errs := e.Errors()
	if len(errs) == 0 {
		return "compilation failed"
	}
	first := errs[0].Message
	if fm != nil && errs[0].Location.File.IsValid() {
		first = fm.Describe(errs[0].Location) + ": " + first
	}
	return fmt.Sprintf("compilation failed with %d error(s): %s", len(errs), first)
}

// Errors returns only the error-severity diagnostics.
func (e *CompileError) Errors() []source.Diagnostic {
	var out []source.Diagnostic
	for _, d := range e.Diagnostics {
		if d.Severity == source.SeverityError {
			out = append(out, d)
		}
	}
	return out
}

// Compile builds a Context from parsed files. The stdlib crate is built
// from StdlibEntry when it is registered with fm; the root crate starts at
// entry. The returned diagnostics include warnings even on success. When
// any error is found the context is discarded and a *CompileError returned.
func Compile(ctx context.Context, fm *source.FileManager, parsed map[source.FileID]*syntax.ParsedModule, entry source.FileID) (*Context, []source.Diagnostic, error) {
	if _, ok := parsed[entry]; !ok {
		return nil, nil, fmt.Errorf("frontend: entry file %d was not parsed", entry)
	}
	c := &compiler{
		ctx:       NewContext(fm),
		parsed:    parsed,
		usedFiles: make(map[source.FileID]bool),
	}

	if stdEntry, ok := fm.NameToID(StdlibEntry); ok {
		if _, parsedStd := parsed[stdEntry]; !parsedStd {
			return nil, nil, fmt.Errorf("frontend: stdlib entry %s was not parsed", StdlibEntry)
		}
		std := c.ctx.AddCrate(true)
		c.collectCrate(std, stdEntry)
		c.std = std
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	root := c.ctx.AddCrate(false)
	c.collectCrate(root, entry)
	for _, id := range fm.UserFileIDs() {
		if _, ok := parsed[id]; ok && !c.usedFiles[id] {
			c.warnf("orphan-file", fm.FileSpan(id), "%s is not declared as a module of the crate", fm.Path(id))
		}
	}

	c.resolveImports()
	c.injectPrelude()

	if source.HasErrors(c.diags) {
		return nil, c.diags, &CompileError{Diagnostics: c.diags}
	}
	return c.ctx, c.diags, nil
}

type compiler struct {
	ctx       *Context
	parsed    map[source.FileID]*syntax.ParsedModule
	std       *CrateDefMap
	usedFiles map[source.FileID]bool
	imports   []pendingImport
	diags     []source.Diagnostic
}

type pendingImport struct {
	module     ModuleRef
	visibility Visibility
	path       syntax.UsePath
	location   source.Location
}

func (c *compiler) errorf(code string, loc source.Location, format string, args ...any) {
	c.diags = append(c.diags, source.Diagnostic{
		Severity: source.SeverityError,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

func (c *compiler) warnf(code string, loc source.Location, format string, args ...any) {
	c.diags = append(c.diags, source.Diagnostic{
		Severity: source.SeverityWarning,
		Code:     code,
		Message:  fmt.Sprintf(format, args...),
		Location: loc,
	})
}

func (c *compiler) collectCrate(dm *CrateDefMap, entry source.FileID) {
	fm := c.ctx.Files
	c.usedFiles[entry] = true
	dm.Root = dm.AddModule(nil, fm.FileSpan(entry), path.Dir(fm.Path(entry)))
	c.collectItems(dm, dm.Root, c.parsed[entry].Items)
}

// moduleDir returns the directory that `mod x;` inside the non-root file
// module at p resolves against: the file's own directory for mod.nr,
// otherwise a directory named after the file.
func moduleDir(p string) string {
	base := path.Base(p)
	if base == "mod"+source.Extension {
		return path.Dir(p)
	}
	return path.Join(path.Dir(p), strings.TrimSuffix(base, source.Extension))
}

func (c *compiler) collectItems(dm *CrateDefMap, mod LocalModuleID, items []syntax.Item) {
	ref := ModuleRef{Crate: dm.Crate, Local: mod}
	data := dm.Modules[mod]

	for _, item := range items {
		switch item.Kind {
		case syntax.ItemFunction:
			fn := item.Function
			id := c.ctx.Interner.Push(DefFunction, dm.Crate, DefMeta{Name: fn.Name, Module: ref})
			c.declare(data, fn.Name, NoTrait, ScopeBinding{Def: id, Visibility: visibility(fn.Visibility)})
		case syntax.ItemGlobal:
			g := item.Global
			id := c.ctx.Interner.Push(DefGlobal, dm.Crate, DefMeta{Name: g.Name, Module: ref})
			c.declare(data, g.Name, NoTrait, ScopeBinding{Def: id, Visibility: visibility(g.Visibility)})
		case syntax.ItemStruct, syntax.ItemTypeAlias:
			kind := DefType
			if item.Kind == syntax.ItemTypeAlias {
				kind = DefTypeAlias
			}
			t := item.Type
			id := c.ctx.Interner.Push(kind, dm.Crate, DefMeta{Name: t.Name, Module: ref})
			c.declare(data, t.Name, NoTrait, ScopeBinding{Def: id, Visibility: visibility(t.Visibility)})
		case syntax.ItemTrait:
			c.collectTrait(dm, data, ref, item.Trait)
		case syntax.ItemModule:
			c.collectModule(dm, mod, item.Module)
		case syntax.ItemImport:
			for _, p := range item.Import.Paths {
				c.imports = append(c.imports, pendingImport{
					module:     ref,
					visibility: visibility(item.Import.Visibility),
					path:       p,
					location:   item.Location,
				})
			}
		}
	}
}

// collectTrait declares the trait itself and binds each of its methods in
// the enclosing module under the trait's key.
func (c *compiler) collectTrait(dm *CrateDefMap, data *ModuleData, ref ModuleRef, t *syntax.Trait) {
	vis := visibility(t.Visibility)
	tid := c.ctx.Interner.Push(DefTrait, dm.Crate, DefMeta{Name: t.Name, Module: ref})
	c.declare(data, t.Name, NoTrait, ScopeBinding{Def: tid, Visibility: vis})

	key := TraitID(tid.Index + 1)
	for _, m := range t.Methods {
		mid := c.ctx.Interner.Push(DefFunction, dm.Crate, DefMeta{Name: m, Module: ref})
		c.declare(data, m, key, ScopeBinding{Def: mid, Visibility: vis})
	}
}

func (c *compiler) collectModule(dm *CrateDefMap, parent LocalModuleID, decl *syntax.ModuleDecl) {
	fm := c.ctx.Files
	parentData := dm.Modules[parent]
	p := parent

	var child LocalModuleID
	if decl.Inline {
		child = dm.AddModule(&p, decl.Name.Location, path.Join(parentData.Dir, decl.Name.Name))
		c.declareModule(dm, parentData, decl, child)
		c.collectItems(dm, child, decl.Items)
		return
	}

	file, ok := c.findModuleFile(parentData.Dir, decl.Name.Name)
	if !ok {
		c.errorf("module-not-found", decl.Name.Location,
			"could not find file for module `%s` (looked for %s.nr and %s/mod.nr in %q)",
			decl.Name.Name, decl.Name.Name, decl.Name.Name, parentData.Dir)
		return
	}
	if c.usedFiles[file] {
		c.errorf("module-redeclared", decl.Name.Location,
			"module file %s is already part of the crate", fm.Path(file))
		return
	}
	c.usedFiles[file] = true
	child = dm.AddModule(&p, fm.FileSpan(file), moduleDir(fm.Path(file)))
	c.declareModule(dm, parentData, decl, child)
	c.collectItems(dm, child, c.parsed[file].Items)
}

func (c *compiler) declareModule(dm *CrateDefMap, parent *ModuleData, decl *syntax.ModuleDecl, child LocalModuleID) {
	parent.Children[decl.Name.Name] = child
	c.declare(parent, decl.Name, NoTrait, ScopeBinding{
		Def:        ModuleDefID{Kind: DefModule, Crate: dm.Crate, Index: uint32(child)},
		Visibility: visibility(decl.Visibility),
	})
}

func (c *compiler) findModuleFile(dir, name string) (source.FileID, bool) {
	for _, candidate := range []string{
		path.Join(dir, name+source.Extension),
		path.Join(dir, name, "mod"+source.Extension),
	} {
		id, ok := c.ctx.Files.NameToID(candidate)
		if !ok {
			continue
		}
		if _, parsed := c.parsed[id]; parsed {
			return id, true
		}
	}
	return source.NoFile, false
}

func (c *compiler) declare(data *ModuleData, ident syntax.Ident, trait TraitID, b ScopeBinding) bool {
	if data.scope.Define(ident, trait, b) {
		return true
	}
	c.errorf("duplicate-definition", ident.Location, "duplicate definitions of `%s`", ident.Name)
	return false
}

func visibility(v syntax.Visibility) Visibility {
	switch v {
	case syntax.Public:
		return Public
	case syntax.PublicCrate:
		return PublicCrate
	default:
		return Private
	}
}
