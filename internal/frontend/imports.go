package frontend

import (
	"fmt"
	"strings"

	"github.com/jward/lucid/internal/syntax"
)

type importState int

const (
	importPending importState = iota
	importDone
	importFailed
)

// resolveImports binds every pending `use` path. Imports may depend on
// names other imports introduce, so passes repeat until nothing changes.
// Wildcards run only once explicit imports have settled, and never
// shadow a name the module already binds.
func (c *compiler) resolveImports() {
	pending := c.imports
	c.imports = nil
	done := make([]bool, len(pending))
	reasons := make([]string, len(pending))

	for {
		progress := false
		for i, imp := range pending {
			if done[i] || imp.path.Wildcard {
				continue
			}
			state, reason := c.resolveImport(imp)
			if state == importPending {
				reasons[i] = reason
				continue
			}
			done[i] = true
			progress = true
		}
		if progress {
			continue
		}
		for i, imp := range pending {
			if done[i] || !imp.path.Wildcard {
				continue
			}
			state, reason := c.resolveWildcard(imp)
			if state == importPending {
				reasons[i] = reason
				continue
			}
			done[i] = true
			progress = true
		}
		if !progress {
			break
		}
	}

	for i, imp := range pending {
		if !done[i] {
			c.errorf("unresolved-import", imp.location, "unresolved import `%s`: %s", imp.path, reasons[i])
		}
	}
}

func (c *compiler) resolveImport(imp pendingImport) (importState, string) {
	segs := imp.path.Segments
	target, rest, state, reason := c.resolvePrefix(imp)
	if state != importDone {
		return state, reason
	}
	binding := imp.path.Binding()

	// `use crate;`, `use super;`, `use std;` and friends bind the module.
	if len(rest) == 0 {
		def := ModuleDefID{Kind: DefModule, Crate: target.Crate, Index: uint32(target.Local)}
		c.bindImport(imp, binding, NoTrait, ScopeBinding{Def: def, Visibility: imp.visibility})
		return importDone, ""
	}

	mod, ok := c.ctx.Module(target)
	if !ok {
		return importFailed, c.fail(imp, "module %d does not exist", target.Local)
	}
	last := rest[len(rest)-1]
	entry, ok := mod.scope.Lookup(last.Name)
	if !ok {
		return importPending, fmt.Sprintf("`%s` is not defined in `%s`", last.Name, joinSegments(segs[:len(segs)-1]))
	}

	bound := false
	for trait, b := range entry.Bindings {
		if !c.visible(b, target, imp.module) {
			continue
		}
		b.Visibility = imp.visibility
		b.IsPrelude = false
		c.bindImport(imp, binding, trait, b)
		bound = true
	}
	if !bound {
		return importFailed, c.fail(imp, "`%s` is private to `%s`", last.Name, joinSegments(segs[:len(segs)-1]))
	}
	return importDone, ""
}

func (c *compiler) resolveWildcard(imp pendingImport) (importState, string) {
	target, rest, state, reason := c.resolvePrefix(imp)
	if state != importDone {
		return state, reason
	}
	if len(rest) > 0 {
		return importFailed, c.fail(imp, "malformed wildcard import")
	}

	mod, ok := c.ctx.Module(target)
	if !ok {
		return importFailed, c.fail(imp, "module %d does not exist", target.Local)
	}
	dest, _ := c.ctx.Module(imp.module)
	for _, entry := range mod.scope.Values() {
		if _, taken := dest.scope.Lookup(entry.Ident.Name); taken {
			continue
		}
		for trait, b := range entry.Bindings {
			if b.IsPrelude || !c.visible(b, target, imp.module) {
				continue
			}
			b.Visibility = imp.visibility
			dest.scope.Define(entry.Ident, trait, b)
		}
	}
	return importDone, ""
}

// resolvePrefix finds the module a path starts from and walks every
// segment but the last. rest holds what remains to be looked up in the
// returned module: the final segment, or nothing when the path names a
// module by keyword alone.
func (c *compiler) resolvePrefix(imp pendingImport) (ModuleRef, []syntax.Ident, importState, string) {
	segs := imp.path.Segments
	cur := imp.module
	i := 0

	switch segs[0].Name {
	case "crate":
		dm := c.ctx.DefMaps[cur.Crate]
		cur = ModuleRef{Crate: cur.Crate, Local: dm.Root}
		i = 1
	case "self":
		i = 1
	case "super":
		for i < len(segs) && segs[i].Name == "super" {
			mod, _ := c.ctx.Module(cur)
			if mod.Parent == nil {
				return cur, nil, importFailed, c.fail(imp, "`super` used in a crate root")
			}
			cur = ModuleRef{Crate: cur.Crate, Local: *mod.Parent}
			i++
		}
	case "dep":
		if len(segs) < 2 || segs[1].Name != "std" {
			return cur, nil, importFailed, c.fail(imp, "unknown dependency")
		}
		if c.std == nil {
			return cur, nil, importFailed, c.fail(imp, "the standard library is not available")
		}
		cur = ModuleRef{Crate: c.std.Crate, Local: c.std.Root}
		i = 2
	case "std":
		mod, _ := c.ctx.Module(cur)
		if _, local := mod.scope.Lookup("std"); !local && c.std != nil {
			cur = ModuleRef{Crate: c.std.Crate, Local: c.std.Root}
			i = 1
		}
	}

	if i == len(segs) {
		return cur, nil, importDone, ""
	}
	if i == 0 && len(segs) == 1 && !imp.path.Wildcard {
		return cur, nil, importFailed, c.fail(imp, "importing `%s` into its own module has no effect", segs[0].Name)
	}

	mid := segs[i : len(segs)-1]
	if imp.path.Wildcard {
		mid = segs[i:]
	}
	next, ok, reason := c.descend(cur, imp.module, mid)
	if !ok {
		if reason == "" {
			return cur, nil, importPending, fmt.Sprintf("`%s` is not defined", joinSegments(segs[:len(segs)-1]))
		}
		return cur, nil, importFailed, c.fail(imp, "%s", reason)
	}
	if imp.path.Wildcard {
		return next, nil, importDone, ""
	}
	return next, segs[len(segs)-1:], importDone, ""
}

// descend follows module names from start. A missing segment reports an
// empty reason so the caller can retry after more imports resolve.
func (c *compiler) descend(start, from ModuleRef, names []syntax.Ident) (ModuleRef, bool, string) {
	cur := start
	for _, name := range names {
		mod, ok := c.ctx.Module(cur)
		if !ok {
			return cur, false, fmt.Sprintf("module %d does not exist", cur.Local)
		}
		b, ok := mod.scope.Plain(name.Name)
		if !ok {
			return cur, false, ""
		}
		if b.Def.Kind != DefModule {
			return cur, false, fmt.Sprintf("`%s` is a %s, not a module", name.Name, b.Def.Kind)
		}
		if !c.visible(b, cur, from) {
			return cur, false, fmt.Sprintf("module `%s` is private", name.Name)
		}
		cur = ModuleRef{Crate: b.Def.Crate, Local: LocalModuleID(b.Def.Index)}
	}
	return cur, true, ""
}

// visible reports whether a binding held by module owner can be seen from
// module from. Private bindings are visible to the owner and its
// descendants, crate-public ones anywhere in the same crate.
func (c *compiler) visible(b ScopeBinding, owner, from ModuleRef) bool {
	switch b.Visibility {
	case Public:
		return true
	case PublicCrate:
		return owner.Crate == from.Crate
	}
	if owner.Crate != from.Crate {
		return false
	}
	dm := c.ctx.DefMaps[from.Crate]
	for id := from.Local; ; {
		if id == owner.Local {
			return true
		}
		mod, ok := dm.Module(id)
		if !ok || mod.Parent == nil {
			return false
		}
		id = *mod.Parent
	}
}

func (c *compiler) bindImport(imp pendingImport, name syntax.Ident, trait TraitID, b ScopeBinding) {
	mod, _ := c.ctx.Module(imp.module)
	if !mod.scope.Define(name, trait, b) {
		c.errorf("duplicate-definition", name.Location, "`%s` is imported more than once or conflicts with a definition", name.Name)
	}
}

// fail records a failed import and returns the reason for the caller.
func (c *compiler) fail(imp pendingImport, format string, args ...any) string {
	reason := fmt.Sprintf(format, args...)
	c.errorf("unresolved-import", imp.location, "unresolved import `%s`: %s", imp.path, reason)
	return reason
}

// injectPrelude makes the std prelude visible in every module of every
// user crate, under names the module does not bind itself.
func (c *compiler) injectPrelude() {
	if c.std == nil {
		return
	}
	root := c.std.Modules[c.std.Root]
	preludeID, ok := root.Children["prelude"]
	if !ok {
		return
	}
	prelude := c.std.Modules[preludeID]

	for _, id := range c.ctx.Crates() {
		if id.IsStdlib() {
			continue
		}
		for _, m := range c.ctx.DefMaps[id].Modules {
			for _, entry := range prelude.scope.Values() {
				if _, taken := m.scope.Lookup(entry.Ident.Name); taken {
					continue
				}
				b, ok := entry.Bindings[NoTrait]
				if !ok || b.Visibility != Public {
					continue
				}
				b.IsPrelude = true
				m.scope.Define(entry.Ident, NoTrait, b)
			}
		}
	}
}

func joinSegments(segs []syntax.Ident) string {
	names := make([]string, len(segs))
	for i, s := range segs {
		names[i] = s.Name
	}
	return strings.Join(names, "::")
}
