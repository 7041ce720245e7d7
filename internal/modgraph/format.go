package modgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jward/lucid/internal/frontend"
)

func (m ModuleInfo) String() string {
	var b strings.Builder
	parent := "none"
	if m.Parent != nil {
		parent = fmt.Sprint(*m.Parent)
	}
	fmt.Fprintf(&b, "Module:\n- Local ID: %d\n- Crate: %s\n- Parent: %s\n- Children: %s\n- File: %d\n",
		m.LocalID, m.Crate, parent, formatChildren(m.Children), m.File)
	b.WriteString("- Definitions:\n")
	for _, d := range m.Definitions {
		fmt.Fprintf(&b, "  • %s\n", d)
	}
	return b.String()
}

func (d DefinitionInfo) String() string {
	prelude := ""
	if d.IsStdlib {
		prelude = " [prelude]"
	}
	return fmt.Sprintf("%s (%s) [%s]%s @ file %d", d.Name, d.DefID, d.Visibility, prelude, d.Location.File)
}

func formatChildren(children map[string]frontend.LocalModuleID) string {
	names := make([]string, 0, len(children))
	for name := range children {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s: %d", name, children[name])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
