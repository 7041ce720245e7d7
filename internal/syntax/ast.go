package syntax

import (
	"fmt"
	"strings"

	"github.com/jward/lucid/internal/source"
)

// ParsedModule is the as-parsed content of one file: its top-level items in
// source order. Nothing in it is resolved.
type ParsedModule struct {
	File  source.FileID
	Items []Item
}

// ItemKind tags an Item.
type ItemKind int

const (
	ItemFunction ItemKind = iota
	ItemGlobal
	ItemModule
	ItemStruct
	ItemTypeAlias
	ItemTrait
	ItemImport
	ItemImpl
)

var itemKindNames = [...]string{
	ItemFunction:  "function",
	ItemGlobal:    "global",
	ItemModule:    "module",
	ItemStruct:    "struct",
	ItemTypeAlias: "type_alias",
	ItemTrait:     "trait",
	ItemImport:    "import",
	ItemImpl:      "impl",
}

func (k ItemKind) String() string {
	if int(k) < len(itemKindNames) {
		return itemKindNames[k]
	}
	return fmt.Sprintf("item(%d)", int(k))
}

// Item is one top-level declaration. Exactly one of the payload pointers
// matching Kind is set; ItemImpl carries no payload.
type Item struct {
	Kind     ItemKind
	Location source.Location

	Function *Function
	Global   *Global
	Module   *ModuleDecl
	Type     *TypeDecl
	Trait    *Trait
	Import   *Import
}

// Ident is an identifier as written, with the location of its text.
type Ident struct {
	Name     string
	Location source.Location
}

func (id Ident) String() string { return id.Name }

// Visibility is the declared visibility of an item.
type Visibility int

const (
	Private Visibility = iota
	PublicCrate
	Public
)

func (v Visibility) String() string {
	switch v {
	case Public:
		return "pub"
	case PublicCrate:
		return "pub(crate)"
	default:
		return "private"
	}
}

// Function is a fn item.
type Function struct {
	Name          Ident
	Visibility    Visibility
	Unconstrained bool
	Params        []Param
	ReturnType    string
	Location      source.Location
}

// Signature renders the function's header, e.g. "fn main(x: Field) -> Field".
func (f *Function) Signature() string {
	var b strings.Builder
	if f.Visibility != Private {
		b.WriteString(f.Visibility.String())
		b.WriteByte(' ')
	}
	if f.Unconstrained {
		b.WriteString("unconstrained ")
	}
	b.WriteString("fn ")
	b.WriteString(f.Name.Name)
	b.WriteByte('(')
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.Type != "" {
			b.WriteString(": ")
			b.WriteString(p.Type)
		}
	}
	b.WriteByte(')')
	if f.ReturnType != "" {
		b.WriteString(" -> ")
		b.WriteString(f.ReturnType)
	}
	return b.String()
}

// Param is one function parameter.
type Param struct {
	Name string
	Type string
}

// Global is a module-level constant (`global` in Noir).
type Global struct {
	Name       Ident
	Visibility Visibility
	Type       string
}

// ModuleDecl is `mod name;` (Inline false) or `mod name { ... }`.
type ModuleDecl struct {
	Name       Ident
	Visibility Visibility
	Inline     bool
	Items      []Item
}

// TypeDecl covers structs, enums and type aliases.
type TypeDecl struct {
	Name       Ident
	Visibility Visibility
}

// Trait is a trait declaration with the names of its methods.
type Trait struct {
	Name       Ident
	Visibility Visibility
	Methods    []Ident
}

// Import is one use declaration, flattened into independent paths.
type Import struct {
	Visibility Visibility
	Paths      []UsePath
}

// UsePath is one imported path: `a::b::c`, `a::b as d` or `a::*`.
type UsePath struct {
	Segments []Ident
	Alias    *Ident
	Wildcard bool
}

// Binding returns the identifier the import introduces into scope: the
// alias if present, else the last segment.
func (p UsePath) Binding() Ident {
	if p.Alias != nil {
		return *p.Alias
	}
	if len(p.Segments) == 0 {
		return Ident{}
	}
	return p.Segments[len(p.Segments)-1]
}

func (p UsePath) String() string {
	names := make([]string, len(p.Segments))
	for i, s := range p.Segments {
		names[i] = s.Name
	}
	s := strings.Join(names, "::")
	if p.Wildcard {
		s += "::*"
	}
	if p.Alias != nil {
		s += " as " + p.Alias.Name
	}
	return s
}

// Functions returns the top-level function items in source order.
func (m *ParsedModule) Functions() []*Function {
	var fns []*Function
	for i := range m.Items {
		if m.Items[i].Kind == ItemFunction {
			fns = append(fns, m.Items[i].Function)
		}
	}
	return fns
}
