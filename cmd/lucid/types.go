package main

import (
	"time"

	"github.com/jward/lucid"
	"github.com/jward/lucid/internal/modgraph"
)

// CLIResult is the top-level JSON envelope for every command.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIRun is a JSON-friendly run.
type CLIRun struct {
	ID              string    `json:"id"`
	Root            string    `json:"root"`
	EntryFile       string    `json:"entry_file"`
	EntryPoint      string    `json:"entry_point"`
	Policy          string    `json:"policy"`
	StartedAt       time.Time `json:"started_at"`
	DurationMS      int64     `json:"duration_ms"`
	ModuleCount     int       `json:"module_count"`
	DefinitionCount int       `json:"definition_count"`
	TreeHash        string    `json:"tree_hash"`
}

// CLIModule is a JSON-friendly module.
type CLIModule struct {
	Crate    int64            `json:"crate"`
	LocalID  int64            `json:"local_id"`
	Parent   *int64           `json:"parent"`
	File     string           `json:"file"`
	Children map[string]int64 `json:"children"`
}

// CLIDefinition is a JSON-friendly definition.
type CLIDefinition struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	DefID      string `json:"def_id"`
	Visibility string `json:"visibility"`
	Stdlib     bool   `json:"stdlib"`
	Module     int64  `json:"module"`
	File       string `json:"file"`
	Line       int    `json:"line"`
	Col        int    `json:"col"`
}

// CLIEntryPoint is a JSON-friendly entry point.
type CLIEntryPoint struct {
	Name          string   `json:"name"`
	File          string   `json:"file"`
	Line          int      `json:"line"`
	Col           int      `json:"col"`
	Visibility    string   `json:"visibility"`
	Unconstrained bool     `json:"unconstrained"`
	Params        []string `json:"params"`
	ReturnType    string   `json:"return_type,omitempty"`
}

// CLIUnrepresentable is a scope entry dropped under the skip policy.
type CLIUnrepresentable struct {
	Name    string `json:"name"`
	Reason  string `json:"reason"`
	DefKind string `json:"def_kind,omitempty"`
	File    string `json:"file"`
}

// CLIRunResult is what run, index and watch print for one pipeline run.
type CLIRunResult struct {
	RunID           string               `json:"run_id"`
	Root            string               `json:"root"`
	Saved           bool                 `json:"saved"`
	Modules         int                  `json:"modules"`
	Definitions     int                  `json:"definitions"`
	Warnings        int                  `json:"warnings"`
	DurationMS      int64                `json:"duration_ms"`
	Entry           *CLIEntryPoint       `json:"entry"`
	Unrepresentable []CLIUnrepresentable `json:"unrepresentable,omitempty"`
}

func runToCLI(r *lucid.Run) CLIRun {
	return CLIRun{
		ID:              r.ID,
		Root:            r.Root,
		EntryFile:       r.EntryFile,
		EntryPoint:      r.EntryPoint,
		Policy:          r.Policy,
		StartedAt:       r.StartedAt,
		DurationMS:      r.Duration.Milliseconds(),
		ModuleCount:     r.ModuleCount,
		DefinitionCount: r.DefinitionCount,
		TreeHash:        r.TreeHash,
	}
}

// resultToCLI summarizes a pipeline Result.
func resultToCLI(res *lucid.Result, saved bool) CLIRunResult {
	out := CLIRunResult{
		RunID:      res.RunID,
		Root:       res.Project.Root,
		Saved:      saved,
		DurationMS: res.Duration.Milliseconds(),
	}
	for _, d := range res.Diagnostics {
		if d.Severity.String() == "warning" {
			out.Warnings++
		}
	}
	if res.Snapshot != nil {
		out.Modules = len(res.Snapshot.Modules)
		out.Definitions = res.Snapshot.DefinitionCount()
		for _, ue := range res.Snapshot.Unrepresentable {
			u := CLIUnrepresentable{
				Name:   ue.Name,
				Reason: ue.Reason.String(),
				File:   res.Files.Path(ue.Location.File),
			}
			if ue.Reason == modgraph.ReasonUnsupportedKind {
				u.DefKind = ue.DefKind.String()
			}
			out.Unrepresentable = append(out.Unrepresentable, u)
		}
	}
	if fn := res.EntrySyntax; fn != nil {
		line, col := res.Files.Position(fn.Name.Location)
		ep := &CLIEntryPoint{
			Name:          fn.Name.Name,
			File:          res.Files.Path(fn.Name.Location.File),
			Line:          line,
			Col:           col,
			Visibility:    res.Entry.Visibility.String(),
			Unconstrained: fn.Unconstrained,
			ReturnType:    fn.ReturnType,
			Params:        []string{},
		}
		for _, p := range fn.Params {
			ep.Params = append(ep.Params, p.Name+": "+p.Type)
		}
		out.Entry = ep
	}
	return out
}
