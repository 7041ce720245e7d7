package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
)

// ErrRunExists is returned by SaveSnapshot when the run ID is already
// stored.
var ErrRunExists = errors.New("run already saved")

// SaveSnapshot inserts a whole run within a single transaction. Either
// every row is written or none is.
//
// Insert order respects FK dependencies:
//  1. Run
//  2. Files
//  3. Modules and their children
//  4. Definitions
//  5. Entry point
//  6. Unrepresentable entries
func (s *Store) SaveSnapshot(snap *Snapshot) error {
	if snap == nil || snap.Run.ID == "" {
		return errors.New("save snapshot: run ID is required")
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save snapshot: begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM runs WHERE id = ?", snap.Run.ID).Scan(&exists); err != nil {
		return fmt.Errorf("save snapshot: check run: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("save snapshot %s: %w", snap.Run.ID, ErrRunExists)
	}

	// 1. Run
	r := snap.Run
	if _, err := tx.Exec(
		`INSERT INTO runs (id, root, entry_file, entry_point, policy, started_at, duration_ms, module_count, definition_count, tree_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Root, r.EntryFile, r.EntryPoint, policyOrDefault(r.Policy), r.StartedAt.UTC(),
		r.Duration.Milliseconds(), len(snap.Modules), len(snap.Definitions), r.TreeHash,
	); err != nil {
		return fmt.Errorf("save snapshot: run: %w", err)
	}

	// 2. Files
	for _, f := range snap.Files {
		if _, err := tx.Exec(
			"INSERT INTO files (run_id, file_id, path, is_stdlib, hash) VALUES (?, ?, ?, ?, ?)",
			r.ID, f.FileID, f.Path, f.IsStdlib, f.Hash,
		); err != nil {
			return fmt.Errorf("save snapshot: file %q: %w", f.Path, err)
		}
	}

	// 3. Modules
	for _, m := range snap.Modules {
		if err := insertModuleTx(tx, r.ID, &m); err != nil {
			return fmt.Errorf("save snapshot: module %d: %w", m.LocalID, err)
		}
	}

	// 4. Definitions
	for _, d := range snap.Definitions {
		if _, err := tx.Exec(
			`INSERT INTO definitions (run_id, crate, module_id, ordinal, name, kind, def_kind, def_index,
				visibility, is_stdlib, file_id, span_start, span_end, line, col)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, d.Crate, d.ModuleID, d.Ordinal, d.Name, d.Kind, d.DefKind, d.DefIndex,
			d.Visibility, d.IsStdlib, d.FileID, d.SpanStart, d.SpanEnd, d.Line, d.Col,
		); err != nil {
			return fmt.Errorf("save snapshot: definition %q: %w", d.Name, err)
		}
	}

	// 5. Entry point
	if ep := snap.EntryPoint; ep != nil {
		if _, err := tx.Exec(
			`INSERT INTO entry_points (run_id, name, file_id, span_start, span_end, line, col,
				visibility, unconstrained, params, return_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ID, ep.Name, ep.FileID, ep.SpanStart, ep.SpanEnd, ep.Line, ep.Col,
			ep.Visibility, ep.Unconstrained, marshalStrings(ep.Params), ep.ReturnType,
		); err != nil {
			return fmt.Errorf("save snapshot: entry point %q: %w", ep.Name, err)
		}
	}

	// 6. Unrepresentable
	for _, u := range snap.Unrepresentable {
		if _, err := tx.Exec(
			`INSERT INTO unrepresentable (run_id, name, reason, def_kind, file_id, span_start, span_end)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, u.Name, u.Reason, u.DefKind, u.FileID, u.SpanStart, u.SpanEnd,
		); err != nil {
			return fmt.Errorf("save snapshot: unrepresentable %q: %w", u.Name, err)
		}
	}

	return tx.Commit()
}

func insertModuleTx(tx *sql.Tx, runID string, m *Module) error {
	if _, err := tx.Exec(
		"INSERT INTO modules (run_id, crate, local_id, parent_id, file_id) VALUES (?, ?, ?, ?, ?)",
		runID, m.Crate, m.LocalID, m.ParentID, m.FileID,
	); err != nil {
		return err
	}
	names := make([]string, 0, len(m.Children))
	for name := range m.Children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := tx.Exec(
			"INSERT INTO module_children (run_id, crate, parent_id, name, child_id) VALUES (?, ?, ?, ?, ?)",
			runID, m.Crate, m.LocalID, name, m.Children[name],
		); err != nil {
			return fmt.Errorf("child %q: %w", name, err)
		}
	}
	return nil
}

func policyOrDefault(p string) string {
	if p == "" {
		return "abort"
	}
	return p
}
