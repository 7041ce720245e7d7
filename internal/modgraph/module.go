package modgraph

import (
	"maps"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/source"
)

// ModuleInfo is a snapshot of one module of a crate.
type ModuleInfo struct {
	Crate       frontend.CrateID
	LocalID     frontend.LocalModuleID
	Parent      *frontend.LocalModuleID
	Children    map[string]frontend.LocalModuleID
	File        source.FileID
	Definitions []DefinitionInfo
}

// NewModuleInfo returns a ModuleInfo with no definitions. children is
// copied.
func NewModuleInfo(crate frontend.CrateID, id frontend.LocalModuleID, parent *frontend.LocalModuleID, children map[string]frontend.LocalModuleID, file source.FileID) ModuleInfo {
	return ModuleInfo{
		Crate:    crate,
		LocalID:  id,
		Parent:   copyParent(parent),
		Children: copyChildren(children),
		File:     file,
	}
}

// ModuleInfoFromModule snapshots data, classifying every entry of its scope
// in scope order. The first entry that cannot be classified is returned as
// the error and the partial result is discarded.
func ModuleInfoFromModule(crate frontend.CrateID, id frontend.LocalModuleID, data *frontend.ModuleData) (ModuleInfo, error) {
	m := NewModuleInfo(crate, id, data.Parent, data.Children, data.Location.File)
	for _, entry := range data.Scope().Values() {
		def, err := Classify(entry.Ident, entry.Bindings)
		if err != nil {
			return ModuleInfo{}, err
		}
		m.AddDefinition(def)
	}
	return m, nil
}

// AddDefinition appends def. Snapshots are not modified once built; this
// is for construction only.
func (m *ModuleInfo) AddDefinition(def DefinitionInfo) {
	m.Definitions = append(m.Definitions, def)
}

// Definition returns the definition bound to name.
func (m *ModuleInfo) Definition(name string) (*DefinitionInfo, bool) {
	for i := range m.Definitions {
		if m.Definitions[i].Name == name {
			return &m.Definitions[i], true
		}
	}
	return nil, false
}

// IsRoot reports whether the module is its crate's root.
func (m *ModuleInfo) IsRoot() bool { return m.Parent == nil }

func copyParent(p *frontend.LocalModuleID) *frontend.LocalModuleID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyChildren(c map[string]frontend.LocalModuleID) map[string]frontend.LocalModuleID {
	if c == nil {
		return map[string]frontend.LocalModuleID{}
	}
	return maps.Clone(c)
}
