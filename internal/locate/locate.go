// Package locate finds an entry point in the module graph and joins a
// resolved definition back to the syntax item that declared it.
package locate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

var (
	ErrEntryPointNotFound  = errors.New("entry point not found")
	ErrAmbiguousEntryPoint = errors.New("entry point is ambiguous")
)

// AmbiguousEntryPointError lists every definition that matched.
type AmbiguousEntryPointError struct {
	Name    string
	File    source.FileID
	Matches []modgraph.DefinitionInfo
}

func (e *AmbiguousEntryPointError) Error() string {
	locs := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		locs[i] = m.Location.String()
	}
	return e.message(fmt.Sprintf("file %d", e.File), locs)
}

// Render is Error with the file and every match named by path and line.
func (e *AmbiguousEntryPointError) Render(fm *source.FileManager) string {
	locs := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		locs[i] = fm.Describe(m.Location)
	}
	return e.message(fm.Path(e.File), locs)
}

func (e *AmbiguousEntryPointError) message(file string, locs []string) string {
	return fmt.Sprintf("%s: %d functions named `%s` in %s (%s)",
		ErrAmbiguousEntryPoint, len(e.Matches), e.Name, file, strings.Join(locs, ", "))
}

func (e *AmbiguousEntryPointError) Unwrap() error { return ErrAmbiguousEntryPoint }

// FindEntryPoint returns the function definition called name in a module
// whose file is file. It fails with ErrEntryPointNotFound when there is
// none and *AmbiguousEntryPointError when there are several.
func FindEntryPoint(modules []modgraph.ModuleInfo, file source.FileID, name string) (*modgraph.DefinitionInfo, error) {
	var matches []*modgraph.DefinitionInfo
	for i := range modules {
		m := &modules[i]
		if m.File != file {
			continue
		}
		for j := range m.Definitions {
			d := &m.Definitions[j]
			if d.Name == name && d.Kind == modgraph.KindFunction {
				matches = append(matches, d)
			}
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: no function `%s` in file %d", ErrEntryPointNotFound, name, file)
	case 1:
		return matches[0], nil
	}
	amb := &AmbiguousEntryPointError{Name: name, File: file}
	for _, d := range matches {
		amb.Matches = append(amb.Matches, *d)
	}
	return nil, amb
}

// FindEntryPointSyntax returns the first top-level function called name in
// tree, in source order, or nil.
func FindEntryPointSyntax(tree *syntax.ParsedModule, name string) *syntax.Function {
	if tree == nil {
		return nil
	}
	for _, item := range tree.Items {
		if item.Kind == syntax.ItemFunction && item.Function.Name.Name == name {
			return item.Function
		}
	}
	return nil
}

// MatchSyntax returns the top-level function of tree whose name and name
// location both equal def's, or nil. Neither key alone is enough.
func MatchSyntax(tree *syntax.ParsedModule, def *modgraph.DefinitionInfo) *syntax.Function {
	if tree == nil || def == nil {
		return nil
	}
	for _, item := range tree.Items {
		if item.Kind != syntax.ItemFunction {
			continue
		}
		fn := item.Function
		if fn.Name.Name == def.Name && fn.Name.Location == def.Location {
			return fn
		}
	}
	return nil
}
