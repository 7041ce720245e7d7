package lucid

import (
	"github.com/jward/lucid/internal/modgraph"
	"github.com/jward/lucid/internal/source"
	"github.com/jward/lucid/internal/store"
)

// Public type aliases for internal types used in the Engine and QueryBuilder
// APIs. External consumers use these names; no conversion is needed.

type Store = store.Store
type Run = store.Run
type File = store.File
type Module = store.Module
type Definition = store.Definition
type EntryPoint = store.EntryPoint
type UnrepresentableRecord = store.Unrepresentable
type DefinitionFilter = store.DefinitionFilter

type Snapshot = modgraph.Snapshot
type ModuleInfo = modgraph.ModuleInfo
type DefinitionInfo = modgraph.DefinitionInfo
type Policy = modgraph.Policy

type DiscoverOptions = source.DiscoverOptions
type Diagnostic = source.Diagnostic

const (
	PolicyAbort = modgraph.PolicyAbort
	PolicySkip  = modgraph.PolicySkip
)
