package syntax

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/rust"
)

// Noir has no published tree-sitter grammar in the binding set we use. Its
// item-level syntax is close enough to Rust that the Rust grammar parses it
// once the few Noir-only keywords are masked (see mask.go).

var (
	grammar     *sitter.Language
	grammarOnce sync.Once
)

// Grammar returns the tree-sitter language Noir sources are parsed with.
func Grammar() *sitter.Language {
	grammarOnce.Do(func() {
		grammar = rust.GetLanguage()
	})
	return grammar
}
