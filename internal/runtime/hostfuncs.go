package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/risor-io/risor/object"

	"github.com/jward/lucid/internal/locate"
	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/syntax"
)

// makeModulesFn creates the "modules" host function.
//
// modules() → [{crate, local_id, parent, children, file, file_path, definitions}]
func makeModulesFn(g *Graph) *object.Builtin {
	return object.NewBuiltin("modules", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 0 {
			return object.NewArgsError("modules", 0, len(args))
		}
		out := make([]object.Object, 0, len(g.Snapshot.Modules))
		for _, m := range g.Snapshot.Modules {
			out = append(out, moduleToMap(m, g.Files))
		}
		return object.NewList(out)
	})
}

// makeDefinitionsFn creates the "definitions" host function.
//
// definitions() → every definition in snapshot order
// definitions(name) → only definitions called name
func makeDefinitionsFn(g *Graph) *object.Builtin {
	return object.NewBuiltin("definitions", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) > 1 {
			return object.Errorf("definitions: expected 0 or 1 arguments, got %d", len(args))
		}
		var name string
		if len(args) == 1 {
			s, err := toString(args[0])
			if err != nil {
				return object.Errorf("definitions: %v", err)
			}
			name = s
		}
		out := []object.Object{}
		for _, m := range g.Snapshot.Modules {
			for _, d := range m.Definitions {
				if name != "" && d.Name != name {
					continue
				}
				fields := definitionFields(d, g.Files)
				fields["module"] = object.NewInt(int64(m.LocalID))
				fields["crate"] = object.NewInt(int64(m.Crate.Index))
				out = append(out, object.NewMap(fields))
			}
		}
		return object.NewList(out)
	})
}

// makeFindEntryPointFn creates the "find_entry_point" host function.
//
// find_entry_point(path, name) → definition map, or an error when the
// function is missing or ambiguous
func makeFindEntryPointFn(g *Graph) *object.Builtin {
	return object.NewBuiltin("find_entry_point", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 2 {
			return object.NewArgsError("find_entry_point", 2, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("find_entry_point: %v", err)
		}
		name, err := toString(args[1])
		if err != nil {
			return object.Errorf("find_entry_point: %v", err)
		}
		if g.Files == nil {
			return object.Errorf("find_entry_point: no files loaded")
		}
		id, ok := g.Files.NameToID(path)
		if !ok {
			return object.Errorf("find_entry_point: unknown file %q", path)
		}
		def, err := locate.FindEntryPoint(g.Snapshot.Modules, id, name)
		if err != nil {
			return object.Errorf("find_entry_point: %v", err)
		}
		return definitionToMap(*def, g.Files)
	})
}

// makeFilePathFn creates the "file_path" host function.
//
// file_path(id) → registered path, or nil for an unknown id
func makeFilePathFn(fm *source.FileManager) *object.Builtin {
	return object.NewBuiltin("file_path", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("file_path", 1, len(args))
		}
		id, err := toInt64(args[0])
		if err != nil {
			return object.Errorf("file_path: %v", err)
		}
		p := fm.Path(source.FileID(id))
		if p == "" {
			return object.Nil
		}
		return object.NewString(p)
	})
}

// makeItemsFn creates the "items" host function.
//
// items(path) → top-level syntax items of a parsed file
func makeItemsFn(g *Graph) *object.Builtin {
	return object.NewBuiltin("items", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("items", 1, len(args))
		}
		path, err := toString(args[0])
		if err != nil {
			return object.Errorf("items: %v", err)
		}
		id, ok := g.Files.NameToID(path)
		if !ok {
			return object.Errorf("items: unknown file %q", path)
		}
		tree, ok := g.Trees[id]
		if !ok {
			return object.Errorf("items: %s was not parsed", path)
		}
		return itemsToList(tree.Items, g.Files)
	})
}

// makeParseSrcFn creates the "parse_src" host function.
//
// parse_src(source) → top-level syntax items of an unregistered snippet
func makeParseSrcFn() *object.Builtin {
	return object.NewBuiltin("parse_src", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("parse_src", 1, len(args))
		}
		src, err := toString(args[0])
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		tree, _, err := syntax.Parse(ctx, source.NoFile, []byte(src))
		if err != nil {
			return object.Errorf("parse_src: %v", err)
		}
		return itemsToList(tree.Items, nil)
	})
}

// makeEmitFn creates the "emit" host function.
//
// emit(value) → hands value to the host; returns nil
func makeEmitFn(sink func(any)) *object.Builtin {
	return object.NewBuiltin("emit", func(ctx context.Context, args ...object.Object) object.Object {
		if len(args) != 1 {
			return object.NewArgsError("emit", 1, len(args))
		}
		sink(args[0].Interface())
		return object.Nil
	})
}

// --- Conversions ---

func moduleToMap(m modgraph.ModuleInfo, fm *source.FileManager) *object.Map {
	names := make([]string, 0, len(m.Children))
	for name := range m.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	children := make(map[string]object.Object, len(names))
	for _, name := range names {
		children[name] = object.NewInt(int64(m.Children[name]))
	}

	defs := make([]object.Object, 0, len(m.Definitions))
	for _, d := range m.Definitions {
		defs = append(defs, definitionToMap(d, fm))
	}

	out := map[string]object.Object{
		"crate":       object.NewInt(int64(m.Crate.Index)),
		"local_id":    object.NewInt(int64(m.LocalID)),
		"parent":      object.Nil,
		"children":    object.NewMap(children),
		"file":        object.NewInt(int64(m.File)),
		"definitions": object.NewList(defs),
	}
	if m.Parent != nil {
		out["parent"] = object.NewInt(int64(*m.Parent))
	}
	if fm != nil {
		out["file_path"] = object.NewString(fm.Path(m.File))
	}
	return object.NewMap(out)
}

func definitionToMap(d modgraph.DefinitionInfo, fm *source.FileManager) *object.Map {
	return object.NewMap(definitionFields(d, fm))
}

func definitionFields(d modgraph.DefinitionInfo, fm *source.FileManager) map[string]object.Object {
	out := map[string]object.Object{
		"name":       object.NewString(d.Name),
		"kind":       object.NewString(d.Kind.String()),
		"def_id":     object.NewString(d.DefID.String()),
		"visibility": object.NewString(d.Visibility.String()),
		"is_stdlib":  object.NewBool(d.IsStdlib),
		"file":       object.NewInt(int64(d.Location.File)),
		"start":      object.NewInt(int64(d.Location.Span.Start)),
		"end":        object.NewInt(int64(d.Location.Span.End)),
	}
	if fm != nil {
		line, col := fm.Position(d.Location)
		out["file_path"] = object.NewString(fm.Path(d.Location.File))
		out["line"] = object.NewInt(int64(line))
		out["col"] = object.NewInt(int64(col))
	}
	return out
}

func itemsToList(items []syntax.Item, fm *source.FileManager) *object.List {
	out := make([]object.Object, 0, len(items))
	for _, it := range items {
		m := map[string]object.Object{
			"kind":  object.NewString(it.Kind.String()),
			"start": object.NewInt(int64(it.Location.Span.Start)),
			"end":   object.NewInt(int64(it.Location.Span.End)),
		}
		if name, vis, ok := itemName(it); ok {
			m["name"] = object.NewString(name.Name)
			m["visibility"] = object.NewString(vis.String())
			if fm != nil {
				line, col := fm.Position(name.Location)
				m["line"] = object.NewInt(int64(line))
				m["col"] = object.NewInt(int64(col))
			}
		}
		if fn := it.Function; fn != nil {
			m["unconstrained"] = object.NewBool(fn.Unconstrained)
			m["signature"] = object.NewString(fn.Signature())
		}
		out = append(out, object.NewMap(m))
	}
	return object.NewList(out)
}

func itemName(it syntax.Item) (syntax.Ident, syntax.Visibility, bool) {
	switch {
	case it.Function != nil:
		return it.Function.Name, it.Function.Visibility, true
	case it.Global != nil:
		return it.Global.Name, it.Global.Visibility, true
	case it.Module != nil:
		return it.Module.Name, it.Module.Visibility, true
	case it.Type != nil:
		return it.Type.Name, it.Type.Visibility, true
	case it.Trait != nil:
		return it.Trait.Name, it.Trait.Visibility, true
	}
	return syntax.Ident{}, 0, false
}

// --- Argument helpers ---

func toInt64(obj object.Object) (int64, error) {
	if i, ok := obj.(*object.Int); ok {
		return i.Value(), nil
	}
	if f, ok := obj.(*object.Float); ok {
		return int64(f.Value()), nil
	}
	return 0, fmt.Errorf("expected int, got %s", obj.Type())
}

func toString(obj object.Object) (string, error) {
	if s, ok := obj.(*object.String); ok {
		return s.Value(), nil
	}
	return "", fmt.Errorf("expected string, got %s", obj.Type())
}

// logObject provides log.Info/Warn/Error methods for Risor scripts.
type logObject struct {
	logger *slog.Logger
}

func (l *logObject) Info(msg string) {
	l.logger.Info(msg, "component", "script")
}

func (l *logObject) Warn(msg string) {
	l.logger.Warn(msg, "component", "script")
}

func (l *logObject) Error(msg string) {
	l.logger.Error(msg, "component", "script")
}
