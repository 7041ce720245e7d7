package modgraph

import (
	"fmt"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

// DefinitionKind is the category of a definition the snapshot can hold.
type DefinitionKind int

const (
	KindFunction DefinitionKind = iota
	KindGlobal
	KindModule
)

func (k DefinitionKind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindGlobal:
		return "global"
	case KindModule:
		return "module"
	}
	return fmt.Sprintf("DefinitionKind(%d)", int(k))
}

// DefinitionInfo is one name bound directly in a module's scope.
type DefinitionInfo struct {
	Name string
	Kind DefinitionKind
	// DefID refers into the frontend's stores. It is only meaningful while
	// the Context it came from is alive, and is never dereferenced here.
	DefID      frontend.ModuleDefID
	Visibility frontend.Visibility
	// IsStdlib is set for names the std prelude supplied.
	IsStdlib bool
	// Location is the span of the declaring identifier.
	Location source.Location
}

// NewDefinitionInfo builds a DefinitionInfo from its parts.
func NewDefinitionInfo(name string, kind DefinitionKind, id frontend.ModuleDefID, vis frontend.Visibility, isStdlib bool, loc source.Location) DefinitionInfo {
	return DefinitionInfo{
		Name:       name,
		Kind:       kind,
		DefID:      id,
		Visibility: vis,
		IsStdlib:   isStdlib,
		Location:   loc,
	}
}

// Classify turns one scope entry into a DefinitionInfo. Only the binding
// that is not trait-qualified counts. It fails with an
// *UnrepresentableError when there is no such binding, or when the binding
// is not a function, global, or module.
func Classify(ident syntax.Ident, bindings map[frontend.TraitID]frontend.ScopeBinding) (DefinitionInfo, error) {
	b, ok := bindings[frontend.NoTrait]
	if !ok {
		return DefinitionInfo{}, &UnrepresentableError{
			Name:     ident.Name,
			Location: ident.Location,
			Reason:   ReasonTraitOnly,
		}
	}

	var kind DefinitionKind
	switch b.Def.Kind {
	case frontend.DefFunction:
		kind = KindFunction
	case frontend.DefGlobal:
		kind = KindGlobal
	case frontend.DefModule:
		kind = KindModule
	default:
		return DefinitionInfo{}, &UnrepresentableError{
			Name:     ident.Name,
			Location: ident.Location,
			Reason:   ReasonUnsupportedKind,
			DefKind:  b.Def.Kind,
		}
	}
	return NewDefinitionInfo(ident.Name, kind, b.Def, b.Visibility, b.IsPrelude, ident.Location), nil
}
