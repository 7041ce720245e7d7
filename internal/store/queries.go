package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// --- Run queries ---

const runColumns = "id, root, entry_file, entry_point, policy, started_at, duration_ms, module_count, definition_count, tree_hash"

func scanRun(row interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var durationMS int64
	if err := row.Scan(&r.ID, &r.Root, &r.EntryFile, &r.EntryPoint, &r.Policy,
		&r.StartedAt, &durationMS, &r.ModuleCount, &r.DefinitionCount, &r.TreeHash); err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationMS) * time.Millisecond
	return r, nil
}

// Runs returns saved runs, newest first. limit <= 0 returns all of them.
func (s *Store) Runs(limit int) ([]*Run, error) {
	q := "SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, rowid DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Run returns the run with the given ID, or nil if there is none.
func (s *Store) Run(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}

// LatestRun returns the newest run, or nil when the store is empty.
func (s *Store) LatestRun() (*Run, error) {
	runs, err := s.Runs(1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return runs[0], nil
}

// --- File queries ---

func (s *Store) Files(runID string) ([]*File, error) {
	rows, err := s.db.Query(
		"SELECT file_id, path, is_stdlib, hash FROM files WHERE run_id = ? ORDER BY file_id", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f := &File{}
		var hash sql.NullString
		if err := rows.Scan(&f.FileID, &f.Path, &f.IsStdlib, &hash); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		f.Hash = hash.String
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Module queries ---

// Modules returns a run's modules in crate then table order, children
// included.
func (s *Store) Modules(runID string) ([]*Module, error) {
	rows, err := s.db.Query(
		"SELECT crate, local_id, parent_id, file_id FROM modules WHERE run_id = ? ORDER BY crate, local_id", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	var modules []*Module
	type key struct{ crate, id int64 }
	byKey := make(map[key]*Module)
	for rows.Next() {
		m := &Module{Children: map[string]int64{}}
		var parent sql.NullInt64
		if err := rows.Scan(&m.Crate, &m.LocalID, &parent, &m.FileID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan module: %w", err)
		}
		if parent.Valid {
			p := parent.Int64
			m.ParentID = &p
		}
		modules = append(modules, m)
		byKey[key{m.Crate, m.LocalID}] = m
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(
		"SELECT crate, parent_id, name, child_id FROM module_children WHERE run_id = ?", runID,
	)
	if err != nil {
		return nil, fmt.Errorf("module children: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var crate, parent, child int64
		var name string
		if err := rows.Scan(&crate, &parent, &name, &child); err != nil {
			return nil, fmt.Errorf("scan module child: %w", err)
		}
		if m, ok := byKey[key{crate, parent}]; ok {
			m.Children[name] = child
		}
	}
	return modules, rows.Err()
}

// --- Definition queries ---

// Definitions returns a run's definitions matching filter, in snapshot
// order.
func (s *Store) Definitions(runID string, filter DefinitionFilter) ([]*Definition, error) {
	where := []string{"run_id = ?"}
	args := []any{runID}
	if filter.Name != "" {
		where = append(where, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, filter.Kind)
	}
	if filter.Crate != nil {
		where = append(where, "crate = ?")
		args = append(args, *filter.Crate)
	}
	if filter.ModuleID != nil {
		where = append(where, "module_id = ?")
		args = append(args, *filter.ModuleID)
	}
	if filter.ExcludeStdlib {
		where = append(where, "is_stdlib = FALSE")
	}

	rows, err := s.db.Query(
		`SELECT id, crate, module_id, ordinal, name, kind, def_kind, def_index, visibility, is_stdlib,
			file_id, span_start, span_end, line, col
		 FROM definitions WHERE `+strings.Join(where, " AND ")+`
		 ORDER BY crate, module_id, ordinal`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("definitions: %w", err)
	}
	defer rows.Close()
	var defs []*Definition
	for rows.Next() {
		d := &Definition{}
		if err := rows.Scan(&d.ID, &d.Crate, &d.ModuleID, &d.Ordinal, &d.Name, &d.Kind, &d.DefKind, &d.DefIndex,
			&d.Visibility, &d.IsStdlib, &d.FileID, &d.SpanStart, &d.SpanEnd, &d.Line, &d.Col); err != nil {
			return nil, fmt.Errorf("scan definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// --- Entry point queries ---

// EntryPoint returns the entry point saved with a run, or nil.
func (s *Store) EntryPoint(runID string) (*EntryPoint, error) {
	ep := &EntryPoint{}
	var params string
	var ret sql.NullString
	err := s.db.QueryRow(
		`SELECT name, file_id, span_start, span_end, line, col, visibility, unconstrained, params, return_type
		 FROM entry_points WHERE run_id = ?`, runID,
	).Scan(&ep.Name, &ep.FileID, &ep.SpanStart, &ep.SpanEnd, &ep.Line, &ep.Col,
		&ep.Visibility, &ep.Unconstrained, &params, &ret)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}
	ep.Params = unmarshalStrings(params)
	ep.ReturnType = ret.String
	return ep, nil
}

// UnrepresentableEntries returns the entries a run dropped under the skip
// policy.
func (s *Store) UnrepresentableEntries(runID string) ([]*Unrepresentable, error) {
	rows, err := s.db.Query(
		`SELECT name, reason, def_kind, file_id, span_start, span_end
		 FROM unrepresentable WHERE run_id = ? ORDER BY id`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("unrepresentable: %w", err)
	}
	defer rows.Close()
	var out []*Unrepresentable
	for rows.Next() {
		u := &Unrepresentable{}
		var defKind sql.NullString
		if err := rows.Scan(&u.Name, &u.Reason, &defKind, &u.FileID, &u.SpanStart, &u.SpanEnd); err != nil {
			return nil, fmt.Errorf("scan unrepresentable: %w", err)
		}
		u.DefKind = defKind.String
		out = append(out, u)
	}
	return out, rows.Err()
}
