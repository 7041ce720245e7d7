// Package frontend is the compiler frontend lucid consumes: it collects the
// definitions of a crate's modules from their syntax trees, resolves
// imports, and exposes the result as per-crate module tables.
package frontend

import "fmt"

// CrateID identifies a crate within a Context.
type CrateID struct {
	Index  uint32
	Stdlib bool
}

// IsStdlib reports whether the crate is the standard library.
func (c CrateID) IsStdlib() bool { return c.Stdlib }

func (c CrateID) String() string {
	if c.Stdlib {
		return fmt.Sprintf("crate#%d(std)", c.Index)
	}
	return fmt.Sprintf("crate#%d", c.Index)
}

// LocalModuleID indexes a module within its crate's module table.
type LocalModuleID uint32

// TraitID identifies a trait in the interner. NoTrait (zero) is the scope
// key for bindings that are not qualified by a trait.
type TraitID uint32

const NoTrait TraitID = 0

// DefIDKind is the category of a ModuleDefID.
type DefIDKind int

const (
	DefFunction DefIDKind = iota
	DefGlobal
	DefModule
	DefType
	DefTrait
	DefTypeAlias
)

var defIDKindNames = [...]string{
	DefFunction:  "FunctionId",
	DefGlobal:    "GlobalId",
	DefModule:    "ModuleId",
	DefType:      "TypeId",
	DefTrait:     "TraitId",
	DefTypeAlias: "TypeAliasId",
}

func (k DefIDKind) String() string {
	if int(k) >= 0 && int(k) < len(defIDKindNames) {
		return defIDKindNames[k]
	}
	return fmt.Sprintf("DefIDKind(%d)", int(k))
}

// ModuleDefID refers to a definition in the interner's stores. For DefModule
// the index is the LocalModuleID within Crate.
type ModuleDefID struct {
	Kind  DefIDKind
	Crate CrateID
	Index uint32
}

func (id ModuleDefID) String() string {
	return fmt.Sprintf("%s(%s, %d)", id.Kind, id.Crate, id.Index)
}

// Visibility is the declared visibility of a binding.
type Visibility int

const (
	Private Visibility = iota
	PublicCrate
	Public
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "Public"
	case PublicCrate:
		return "PublicCrate"
	default:
		return "Private"
	}
}
