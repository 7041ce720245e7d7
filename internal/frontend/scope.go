package frontend

import (
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

// ScopeBinding is one candidate binding of a name.
type ScopeBinding struct {
	Def        ModuleDefID
	Visibility Visibility
	IsPrelude  bool
}

// ScopeEntry is a name bound in a module together with every binding it
// has, keyed by trait. The binding under NoTrait is the plain one.
type ScopeEntry struct {
	Ident    syntax.Ident
	Bindings map[TraitID]ScopeBinding
}

// ItemScope maps names to their bindings, remembering insertion order.
type ItemScope struct {
	order   []string
	entries map[string]*ScopeEntry
}

func newItemScope() *ItemScope {
	return &ItemScope{entries: make(map[string]*ScopeEntry)}
}

// Lookup returns the entry for name.
func (s *ItemScope) Lookup(name string) (*ScopeEntry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

// Plain returns the binding of name that is not trait-qualified.
func (s *ItemScope) Plain(name string) (ScopeBinding, bool) {
	e, ok := s.entries[name]
	if !ok {
		return ScopeBinding{}, false
	}
	b, ok := e.Bindings[NoTrait]
	return b, ok
}

// Values returns every entry in insertion order.
func (s *ItemScope) Values() []*ScopeEntry {
	out := make([]*ScopeEntry, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.entries[name])
	}
	return out
}

// Len returns the number of names bound.
func (s *ItemScope) Len() int { return len(s.order) }

// Define binds ident under trait. It reports false if that exact (name,
// trait) slot is already taken.
func (s *ItemScope) Define(ident syntax.Ident, trait TraitID, b ScopeBinding) bool {
	e, ok := s.entries[ident.Name]
	if !ok {
		e = &ScopeEntry{Ident: ident, Bindings: make(map[TraitID]ScopeBinding, 1)}
		s.entries[ident.Name] = e
		s.order = append(s.order, ident.Name)
	}
	if _, taken := e.Bindings[trait]; taken {
		return false
	}
	if trait == NoTrait {
		// The plain binding owns the entry's identifier.
		e.Ident = ident
	}
	e.Bindings[trait] = b
	return true
}

// ModuleData is one module of a crate.
type ModuleData struct {
	Parent   *LocalModuleID
	Children map[string]LocalModuleID
	// Location covers the module's contents: the whole file for a file
	// module, the declaration for an inline one.
	Location source.Location
	// Dir is the slash-separated directory that `mod x;` declarations in
	// this module resolve against.
	Dir string

	scope *ItemScope
}

// Scope returns the module's item scope.
func (m *ModuleData) Scope() *ItemScope {
	return m.scope
}

// CrateDefMap is a crate's module table.
type CrateDefMap struct {
	Crate   CrateID
	Root    LocalModuleID
	Modules []*ModuleData // index = LocalModuleID
}

// ModuleEntry pairs a module with its ID for iteration.
type ModuleEntry struct {
	ID   LocalModuleID
	Data *ModuleData
}

// Iter returns every module of the table in table order.
func (d *CrateDefMap) Iter() []ModuleEntry {
	out := make([]ModuleEntry, len(d.Modules))
	for i, m := range d.Modules {
		out[i] = ModuleEntry{ID: LocalModuleID(i), Data: m}
	}
	return out
}

// Module returns the module with the given ID.
func (d *CrateDefMap) Module(id LocalModuleID) (*ModuleData, bool) {
	if int(id) >= len(d.Modules) {
		return nil, false
	}
	return d.Modules[id], true
}

// AddModule appends a module to the table and returns its ID. parent is
// copied.
func (d *CrateDefMap) AddModule(parent *LocalModuleID, loc source.Location, dir string) LocalModuleID {
	if parent != nil {
		p := *parent
		parent = &p
	}
	id := LocalModuleID(len(d.Modules))
	d.Modules = append(d.Modules, &ModuleData{
		Parent:   parent,
		Children: make(map[string]LocalModuleID),
		Location: loc,
		Dir:      dir,
		scope:    newItemScope(),
	})
	return id
}
