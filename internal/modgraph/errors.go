package modgraph

import (
	"errors"
	"fmt"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/source"
)

var (
	// ErrTraitOnlyDefinition means a scope entry is reachable only through
	// a trait-qualified binding.
	ErrTraitOnlyDefinition = errors.New("definition is only reachable through a trait")
	// ErrUnsupportedDefinitionKind means a scope entry's definition is not a
	// function, global, or module.
	ErrUnsupportedDefinitionKind = errors.New("unsupported definition kind")
)

// Reason says why a scope entry could not become a DefinitionInfo.
type Reason int

const (
	ReasonTraitOnly Reason = iota
	ReasonUnsupportedKind
)

func (r Reason) String() string {
	if r == ReasonTraitOnly {
		return "trait_only"
	}
	return "unsupported_kind"
}

// UnrepresentableError describes a scope entry the definition model cannot
// hold. It matches ErrTraitOnlyDefinition or ErrUnsupportedDefinitionKind
// under errors.Is.
type UnrepresentableError struct {
	Name     string
	Location source.Location
	Reason   Reason
	// DefKind is the definition's category for ReasonUnsupportedKind.
	DefKind frontend.DefIDKind
}

func (e *UnrepresentableError) Error() string {
	return e.message(e.Location.String())
}

// Render is Error with the location given as path:line:col.
func (e *UnrepresentableError) Render(fm *source.FileManager) string {
	return e.message(fm.Describe(e.Location))
}

func (e *UnrepresentableError) message(at string) string {
	switch e.Reason {
	case ReasonTraitOnly:
		return fmt.Sprintf("%s: `%s` at %s", ErrTraitOnlyDefinition, e.Name, at)
	default:
		return fmt.Sprintf("%s %s: `%s` at %s", ErrUnsupportedDefinitionKind, e.DefKind, e.Name, at)
	}
}

func (e *UnrepresentableError) Is(target error) bool {
	switch e.Reason {
	case ReasonTraitOnly:
		return target == ErrTraitOnlyDefinition
	default:
		return target == ErrUnsupportedDefinitionKind
	}
}
