package store

import "time"

// Run is one pipeline run.
type Run struct {
	ID              string
	Root            string
	EntryFile       string
	EntryPoint      string
	Policy          string
	StartedAt       time.Time
	Duration        time.Duration
	ModuleCount     int
	DefinitionCount int
	// TreeHash digests the content hashes of the run's non-stdlib files.
	TreeHash string
}

// File is a source file registered during a run. FileID is the run-local
// file manager ID.
type File struct {
	FileID   int64
	Path     string
	IsStdlib bool
	Hash     string
}

type Module struct {
	Crate    int64
	LocalID  int64
	ParentID *int64
	FileID   int64
	Children map[string]int64
}

type Definition struct {
	ID         int64
	Crate      int64
	ModuleID   int64
	Ordinal    int
	Name       string
	Kind       string
	DefKind    string
	DefIndex   int64
	Visibility string
	IsStdlib   bool
	FileID     int64
	SpanStart  int64
	SpanEnd    int64
	Line       int
	Col        int
}

// EntryPoint is the function a run located, with its signature taken from
// the matched syntax item.
type EntryPoint struct {
	Name          string
	FileID        int64
	SpanStart     int64
	SpanEnd       int64
	Line          int
	Col           int
	Visibility    string
	Unconstrained bool
	Params        []string
	ReturnType    string
}

// Unrepresentable is a scope entry that was dropped under the skip policy.
type Unrepresentable struct {
	Name      string
	Reason    string
	DefKind   string
	FileID    int64
	SpanStart int64
	SpanEnd   int64
}

// Snapshot is everything saved for one run.
type Snapshot struct {
	Run             Run
	Files           []File
	Modules         []Module
	Definitions     []Definition
	EntryPoint      *EntryPoint
	Unrepresentable []Unrepresentable
}

// DefinitionFilter narrows Definitions. Zero fields match everything.
type DefinitionFilter struct {
	Name          string
	Kind          string
	Crate         *int64
	ModuleID      *int64
	ExcludeStdlib bool
}
