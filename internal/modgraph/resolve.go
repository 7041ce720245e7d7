// Package modgraph flattens the frontend's per-crate module tables into a
// read-only snapshot of modules and the definitions bound in them.
package modgraph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jward/lucid/internal/frontend"
	"github.com/jward/lucid/internal/report"
	"github.com/jward/lucid/internal/source"
)

// Policy decides what happens to a scope entry that cannot be classified.
type Policy int

const (
	// PolicyAbort fails the whole snapshot on the first such entry.
	PolicyAbort Policy = iota
	// PolicySkip drops the entry, reports it, and records it in
	// Snapshot.Unrepresentable.
	PolicySkip
)

func (p Policy) String() string {
	if p == PolicySkip {
		return "skip"
	}
	return "abort"
}

// ParsePolicy maps "abort" or "skip" to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "skip":
		return PolicySkip, nil
	}
	return PolicyAbort, fmt.Errorf("unknown unrepresentable policy %q (want abort or skip)", s)
}

// Option configures Resolve.
type Option func(*resolver)

// WithPolicy sets how unclassifiable scope entries are handled.
func WithPolicy(p Policy) Option {
	return func(r *resolver) { r.policy = p }
}

// WithReporter sets where skipped or fatal entries are reported.
func WithReporter(rep report.Reporter) Option {
	return func(r *resolver) {
		if rep != nil {
			r.reporter = rep
		}
	}
}

type resolver struct {
	policy   Policy
	reporter report.Reporter
}

// Snapshot is the module graph of every non-stdlib crate of a Context.
type Snapshot struct {
	Modules []ModuleInfo
	// Unrepresentable lists the entries PolicySkip dropped.
	Unrepresentable []*UnrepresentableError
}

// Resolve snapshots every module of every crate in fc that is not the
// standard library. Crates are visited in index order, modules in table
// order, and definitions in scope order. fc is only read, and is not
// referenced by the result beyond the opaque DefIDs it carries.
func Resolve(ctx context.Context, fc *frontend.Context, opts ...Option) (*Snapshot, error) {
	r := &resolver{policy: PolicyAbort, reporter: report.Nop}
	for _, opt := range opts {
		opt(r)
	}

	snap := &Snapshot{}
	for _, crateID := range fc.Crates() {
		if crateID.IsStdlib() {
			continue
		}
		dm := fc.DefMaps[crateID]
		for _, entry := range dm.Iter() {
			m, err := r.module(ctx, crateID, entry.ID, entry.Data, snap)
			if err != nil {
				return nil, fmt.Errorf("module %d of %s: %w", entry.ID, crateID, err)
			}
			snap.Modules = append(snap.Modules, m)
		}
	}
	return snap, nil
}

func (r *resolver) module(ctx context.Context, crate frontend.CrateID, id frontend.LocalModuleID, data *frontend.ModuleData, snap *Snapshot) (ModuleInfo, error) {
	if r.policy == PolicyAbort {
		m, err := ModuleInfoFromModule(crate, id, data)
		if err != nil {
			r.report(ctx, err, slog.LevelError)
		}
		return m, err
	}

	m := NewModuleInfo(crate, id, data.Parent, data.Children, data.Location.File)
	for _, entry := range data.Scope().Values() {
		def, err := Classify(entry.Ident, entry.Bindings)
		if err != nil {
			var ue *UnrepresentableError
			if !errors.As(err, &ue) {
				return ModuleInfo{}, err
			}
			r.report(ctx, err, slog.LevelWarn)
			snap.Unrepresentable = append(snap.Unrepresentable, ue)
			continue
		}
		m.AddDefinition(def)
	}
	return m, nil
}

func (r *resolver) report(ctx context.Context, err error, level slog.Level) {
	ev := report.Event{
		Kind:    report.KindUnrepresentable,
		Level:   level,
		Message: "unrepresentable definition",
		Attrs:   []slog.Attr{slog.String("error", err.Error())},
	}
	var ue *UnrepresentableError
	if errors.As(err, &ue) {
		ev.Attrs = append(ev.Attrs,
			slog.String("name", ue.Name),
			slog.String("reason", ue.Reason.String()),
			slog.String("location", ue.Location.String()),
		)
	}
	r.reporter.Report(ctx, ev)
}

// Module returns the module of crate with the given local ID.
func (s *Snapshot) Module(crate frontend.CrateID, id frontend.LocalModuleID) (*ModuleInfo, bool) {
	for i := range s.Modules {
		if s.Modules[i].Crate == crate && s.Modules[i].LocalID == id {
			return &s.Modules[i], true
		}
	}
	return nil, false
}

// ModulesInFile returns the modules whose syntax lives in file. Inline
// modules share their parent's file, so there may be several.
func (s *Snapshot) ModulesInFile(file source.FileID) []*ModuleInfo {
	var out []*ModuleInfo
	for i := range s.Modules {
		if s.Modules[i].File == file {
			out = append(out, &s.Modules[i])
		}
	}
	return out
}

// DefinitionCount returns the number of definitions across all modules.
func (s *Snapshot) DefinitionCount() int {
	n := 0
	for _, m := range s.Modules {
		n += len(m.Definitions)
	}
	return n
}
