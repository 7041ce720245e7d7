package syntax

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/lucid/internal/source"
)

// Parse parses one file into its items. Syntax errors do not fail the
// parse: tree-sitter recovers, the affected region is reported as a warning
// diagnostic and the items it could still recognize are returned. An error
// is returned only if tree-sitter itself fails.
func Parse(ctx context.Context, file source.FileID, src []byte) (*ParsedModule, []source.Diagnostic, error) {
	masked := maskNoir(src)

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(Grammar())

	tree, err := parser.ParseCtx(ctx, nil, masked.src)
	if err != nil {
		return nil, nil, fmt.Errorf("syntax: tree-sitter parse failed: %w", err)
	}
	defer tree.Close()

	p := &itemParser{file: file, src: src, mask: masked}
	root := tree.RootNode()
	module := &ParsedModule{
		File:  file,
		Items: p.items(root),
	}
	if root.HasError() {
		p.collectErrors(root)
	}
	return module, p.diags, nil
}

// ParseAll parses every file ID of fm that has source text, keyed by ID.
// Diagnostics from all files are concatenated in file order.
func ParseAll(ctx context.Context, fm *source.FileManager, ids []source.FileID) (map[source.FileID]*ParsedModule, []source.Diagnostic, error) {
	parsed := make(map[source.FileID]*ParsedModule, len(ids))
	var diags []source.Diagnostic
	for _, id := range ids {
		src, ok := fm.Source(id)
		if !ok {
			return nil, nil, fmt.Errorf("syntax: no source for file %d", id)
		}
		m, d, err := Parse(ctx, id, src)
		if err != nil {
			return nil, nil, fmt.Errorf("parse %s: %w", fm.Path(id), err)
		}
		parsed[id] = m
		diags = append(diags, d...)
	}
	return parsed, diags, nil
}

type itemParser struct {
	file  source.FileID
	src   []byte // original text; offsets match the masked text
	mask  maskResult
	diags []source.Diagnostic
}

func (p *itemParser) loc(n *sitter.Node) source.Location {
	return source.NewLocation(p.file, n.StartByte(), n.EndByte())
}

func (p *itemParser) text(n *sitter.Node) string {
	return string(p.src[n.StartByte():n.EndByte()])
}

func (p *itemParser) ident(n *sitter.Node) Ident {
	return Ident{Name: p.text(n), Location: p.loc(n)}
}

// items converts the named children of a source_file or declaration_list.
func (p *itemParser) items(parent *sitter.Node) []Item {
	var items []Item
	var prevEnd uint32
	if parent.Type() == "declaration_list" {
		prevEnd = parent.StartByte()
	}
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		n := parent.NamedChild(i)
		if item, ok := p.item(n, prevEnd); ok {
			items = append(items, item)
		}
		prevEnd = n.EndByte()
	}
	return p.addMaskedGlobals(parent, items)
}

// addMaskedGlobals inserts the untyped globals that lie directly in parent,
// keeping items in source order.
func (p *itemParser) addMaskedGlobals(parent *sitter.Node, items []Item) []Item {
	if len(p.mask.globals) == 0 {
		return items
	}
	// The root node does not cover leading or trailing whitespace, which is
	// where blanked globals at the edges of the file end up.
	start, end := uint32(0), uint32(len(p.src))
	if parent.Type() == "declaration_list" {
		start, end = parent.StartByte(), parent.EndByte()
	}
	added := false
	for _, g := range p.mask.globals {
		if g.start < start || g.end > end || insideChild(parent, g.start) {
			continue
		}
		items = append(items, Item{
			Kind:     ItemGlobal,
			Location: source.NewLocation(p.file, g.start, g.end),
			Global: &Global{
				Name: Ident{
					Name:     string(p.src[g.nameStart:g.nameEnd]),
					Location: source.NewLocation(p.file, g.nameStart, g.nameEnd),
				},
				Visibility: g.vis,
			},
		})
		added = true
	}
	if added {
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Location.Span.Start < items[j].Location.Span.Start
		})
	}
	return items
}

func insideChild(parent *sitter.Node, off uint32) bool {
	for i := 0; i < int(parent.NamedChildCount()); i++ {
		c := parent.NamedChild(i)
		if c.StartByte() <= off && off < c.EndByte() {
			return true
		}
	}
	return false
}

func (p *itemParser) item(n *sitter.Node, prevEnd uint32) (Item, bool) {
	item := Item{Location: p.loc(n)}
	name := n.ChildByFieldName("name")

	switch n.Type() {
	case "function_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemFunction
		item.Function = p.function(n, name, prevEnd)
	case "static_item", "const_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemGlobal
		item.Global = &Global{
			Name:       p.ident(name),
			Visibility: p.visibility(n),
			Type:       p.fieldText(n, "type"),
		}
	case "mod_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemModule
		decl := &ModuleDecl{
			Name:       p.ident(name),
			Visibility: p.visibility(n),
		}
		if body := n.ChildByFieldName("body"); body != nil {
			decl.Inline = true
			decl.Items = p.items(body)
		}
		item.Module = decl
	case "struct_item", "enum_item", "union_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemStruct
		item.Type = &TypeDecl{Name: p.ident(name), Visibility: p.visibility(n)}
	case "type_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemTypeAlias
		item.Type = &TypeDecl{Name: p.ident(name), Visibility: p.visibility(n)}
	case "trait_item":
		if name == nil {
			return Item{}, false
		}
		item.Kind = ItemTrait
		item.Trait = p.trait(n, name)
	case "use_declaration":
		arg := n.ChildByFieldName("argument")
		if arg == nil {
			return Item{}, false
		}
		item.Kind = ItemImport
		item.Import = &Import{
			Visibility: p.visibility(n),
			Paths:      p.usePaths(arg, nil),
		}
	case "impl_item":
		item.Kind = ItemImpl
	default:
		return Item{}, false
	}
	return item, true
}

func (p *itemParser) function(n, name *sitter.Node, prevEnd uint32) *Function {
	fn := &Function{
		Name:          p.ident(name),
		Visibility:    p.visibility(n),
		Unconstrained: p.mask.unconstrainedBetween(prevEnd, name.StartByte()),
		ReturnType:    p.fieldText(n, "return_type"),
		Location:      p.loc(n),
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		for i := 0; i < int(params.NamedChildCount()); i++ {
			param := params.NamedChild(i)
			switch param.Type() {
			case "parameter":
				fn.Params = append(fn.Params, Param{
					Name: p.fieldText(param, "pattern"),
					Type: p.fieldText(param, "type"),
				})
			case "self_parameter":
				fn.Params = append(fn.Params, Param{Name: p.text(param)})
			}
		}
	}
	return fn
}

func (p *itemParser) trait(n, name *sitter.Node) *Trait {
	t := &Trait{Name: p.ident(name), Visibility: p.visibility(n)}
	body := n.ChildByFieldName("body")
	if body == nil {
		return t
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		m := body.NamedChild(i)
		if m.Type() != "function_signature_item" && m.Type() != "function_item" {
			continue
		}
		if mn := m.ChildByFieldName("name"); mn != nil {
			t.Methods = append(t.Methods, p.ident(mn))
		}
	}
	return t
}

func (p *itemParser) fieldText(n *sitter.Node, field string) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(p.text(c))
}

func (p *itemParser) visibility(n *sitter.Node) Visibility {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "visibility_modifier" {
			continue
		}
		v := strings.Join(strings.Fields(p.text(c)), "")
		if v == "pub" {
			return Public
		}
		return PublicCrate
	}
	return Private
}

// usePaths flattens a use tree into independent paths. prefix holds the
// segments of enclosing scoped_use_list nodes.
func (p *itemParser) usePaths(n *sitter.Node, prefix []Ident) []UsePath {
	switch n.Type() {
	case "identifier", "crate", "self", "super", "metavariable":
		if n.Type() == "self" && len(prefix) > 0 {
			// `use a::{self}` imports a itself.
			return []UsePath{{Segments: clonePath(prefix)}}
		}
		return []UsePath{{Segments: append(clonePath(prefix), p.ident(n))}}
	case "scoped_identifier":
		return []UsePath{{Segments: append(clonePath(prefix), p.pathSegments(n)...)}}
	case "use_as_clause":
		path := n.ChildByFieldName("path")
		alias := n.ChildByFieldName("alias")
		if path == nil || alias == nil {
			return nil
		}
		a := p.ident(alias)
		return []UsePath{{
			Segments: append(clonePath(prefix), p.pathSegments(path)...),
			Alias:    &a,
		}}
	case "use_wildcard":
		segs := clonePath(prefix)
		if n.NamedChildCount() > 0 {
			segs = append(segs, p.pathSegments(n.NamedChild(0))...)
		}
		return []UsePath{{Segments: segs, Wildcard: true}}
	case "scoped_use_list":
		inner := clonePath(prefix)
		if path := n.ChildByFieldName("path"); path != nil {
			inner = append(inner, p.pathSegments(path)...)
		}
		list := n.ChildByFieldName("list")
		if list == nil {
			return nil
		}
		return p.usePaths(list, inner)
	case "use_list":
		var out []UsePath
		for i := 0; i < int(n.NamedChildCount()); i++ {
			out = append(out, p.usePaths(n.NamedChild(i), prefix)...)
		}
		return out
	}
	return nil
}

func (p *itemParser) pathSegments(n *sitter.Node) []Ident {
	if n == nil {
		return nil
	}
	if n.Type() != "scoped_identifier" {
		return []Ident{p.ident(n)}
	}
	segs := p.pathSegments(n.ChildByFieldName("path"))
	if name := n.ChildByFieldName("name"); name != nil {
		segs = append(segs, p.ident(name))
	}
	return segs
}

func (p *itemParser) collectErrors(n *sitter.Node) {
	switch {
	case n.IsMissing():
		p.diags = append(p.diags, source.Diagnostic{
			Severity: source.SeverityWarning,
			Code:     "syntax",
			Message:  fmt.Sprintf("missing %s", n.Type()),
			Location: p.loc(n),
		})
		return
	case n.IsError():
		p.diags = append(p.diags, source.Diagnostic{
			Severity: source.SeverityWarning,
			Code:     "syntax",
			Message:  fmt.Sprintf("unexpected syntax %q", abbreviate(p.text(n), 40)),
			Location: p.loc(n),
		})
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c != nil && (c.HasError() || c.IsMissing()) {
			p.collectErrors(c)
		}
	}
}

func clonePath(segs []Ident) []Ident {
	out := make([]Ident, len(segs), len(segs)+1)
	copy(out, segs)
	return out
}

func abbreviate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
