package frontend

import (
	"sort"

	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

// ModuleRef names a module across crates.
type ModuleRef struct {
	Crate CrateID
	Local LocalModuleID
}

// DefMeta is what the interner records about a definition.
type DefMeta struct {
	Name   syntax.Ident
	Module ModuleRef
}

// Interner owns the definition stores ModuleDefIDs index into.
type Interner struct {
	stores map[DefIDKind][]DefMeta
}

func newInterner() *Interner {
	return &Interner{stores: make(map[DefIDKind][]DefMeta)}
}

// Push records a definition of the given kind and returns its ID. Indices
// start at 0 within each kind.
func (in *Interner) Push(kind DefIDKind, crate CrateID, meta DefMeta) ModuleDefID {
	idx := uint32(len(in.stores[kind]))
	in.stores[kind] = append(in.stores[kind], meta)
	return ModuleDefID{Kind: kind, Crate: crate, Index: idx}
}

// Meta returns the recorded metadata for id. Module IDs are not interned
// and always report false.
func (in *Interner) Meta(id ModuleDefID) (DefMeta, bool) {
	store := in.stores[id.Kind]
	if id.Kind == DefModule || int(id.Index) >= len(store) {
		return DefMeta{}, false
	}
	return store[id.Index], true
}

// Count returns how many definitions of kind have been interned.
func (in *Interner) Count(kind DefIDKind) int {
	return len(in.stores[kind])
}

// Context is the resolved state of a compilation: every crate's module
// table plus the stores their scopes refer to.
type Context struct {
	DefMaps  map[CrateID]*CrateDefMap
	Interner *Interner
	Files    *source.FileManager
}

// NewContext creates an empty context over fm.
func NewContext(fm *source.FileManager) *Context {
	return &Context{
		DefMaps:  make(map[CrateID]*CrateDefMap),
		Interner: newInterner(),
		Files:    fm,
	}
}

// AddCrate registers a new, empty crate.
func (c *Context) AddCrate(stdlib bool) *CrateDefMap {
	id := CrateID{Index: uint32(len(c.DefMaps)), Stdlib: stdlib}
	dm := &CrateDefMap{Crate: id}
	c.DefMaps[id] = dm
	return dm
}

// Crates returns every crate ID ordered by index.
func (c *Context) Crates() []CrateID {
	ids := make([]CrateID, 0, len(c.DefMaps))
	for id := range c.DefMaps {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Index < ids[j].Index })
	return ids
}

// RootCrate returns the first crate that is not the stdlib.
func (c *Context) RootCrate() (*CrateDefMap, bool) {
	for _, id := range c.Crates() {
		if !id.IsStdlib() {
			return c.DefMaps[id], true
		}
	}
	return nil, false
}

// Module resolves a ModuleRef.
func (c *Context) Module(ref ModuleRef) (*ModuleData, bool) {
	dm, ok := c.DefMaps[ref.Crate]
	if !ok {
		return nil, false
	}
	return dm.Module(ref.Local)
}
