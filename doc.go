// Package lucid extracts the resolved module graph of a Noir project and
// finds the syntax node of its entry point.
//
// A Noir project is seen two ways: as a syntax tree per file, and as the
// per-crate module graph the compiler frontend builds after name
// resolution. lucid produces both and ties them together, so a function
// found by semantic lookup can be traced back to the exact item that
// declared it.
//
// # Pipeline
//
// [Engine.Run] executes these phases in order and stops at the first
// failure:
//
//  1. load: discover every .nr file under the project root and register it
//     with a file manager, next to the bundled standard library.
//  2. parse: parse every file with tree-sitter. Syntax errors are warnings.
//  3. check: make sure the entry file declares a top-level function with
//     the entry-point name before anything is compiled.
//  4. compile: collect definitions and resolve imports into crate def maps.
//  5. resolve: flatten every non-stdlib crate into a [Snapshot] of
//     [ModuleInfo] values.
//  6. locate: look the entry point up in the snapshot.
//  7. match: recover the function item whose name and location equal the
//     located definition.
//  8. save: persist the run to SQLite when a store is configured.
//
// # Usage
//
//	e, err := lucid.New(lucid.WithStore("lucid.db"))
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Run(ctx, lucid.Project{Root: "noir/src"})
//	if err != nil { ... }
//	fmt.Println(res.EntrySyntax.Signature())
//
//	defs, err := e.Query().Definitions("", lucid.DefinitionFilter{Name: "main"})
//
// # Unrepresentable entries
//
// The snapshot only knows functions, globals, and modules. A scope entry
// that is something else, or that is reachable only through a trait, makes
// the run fail under [PolicyAbort] (the default). Under [PolicySkip] it is
// dropped, reported, and listed in [Snapshot].Unrepresentable.
//
// # Watching and scripts
//
// [Engine.Watch] re-runs the pipeline whenever a source file changes.
// [Engine.RunScript] executes a Risor script with the module graph of a
// [Result] exposed as globals; see the internal/runtime package for the
// full set.
package lucid
