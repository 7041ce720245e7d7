package lucid

import (
	"fmt"

	"github.com/jward/lucid/internal/store"
)

// QueryBuilder reads saved runs back out of the Store. Every method taking a
// runID treats "" as the most recent run.
type QueryBuilder struct {
	store *store.Store
}

// Runs returns saved runs, newest first. limit <= 0 returns all of them.
func (q *QueryBuilder) Runs(limit int) ([]*Run, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	runs, err := q.store.Runs(limit)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	return runs, nil
}

// LatestRun returns the most recent run, or nil when nothing was saved.
func (q *QueryBuilder) LatestRun() (*Run, error) {
	if q.store == nil {
		return nil, ErrNoStore
	}
	r, err := q.store.LatestRun()
	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}
	return r, nil
}

// Run returns one run by ID, or nil if it does not exist.
func (q *QueryBuilder) Run(runID string) (*Run, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	r, err := q.store.Run(id)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", id, err)
	}
	return r, nil
}

// Files returns the files a run loaded.
func (q *QueryBuilder) Files(runID string) ([]*File, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	files, err := q.store.Files(id)
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return files, nil
}

// Modules returns the module graph of a run.
func (q *QueryBuilder) Modules(runID string) ([]*Module, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	mods, err := q.store.Modules(id)
	if err != nil {
		return nil, fmt.Errorf("modules: %w", err)
	}
	return mods, nil
}

// Definitions returns the definitions of a run that pass filter.
func (q *QueryBuilder) Definitions(runID string, filter DefinitionFilter) ([]*Definition, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	defs, err := q.store.Definitions(id, filter)
	if err != nil {
		return nil, fmt.Errorf("definitions: %w", err)
	}
	return defs, nil
}

// EntryPoint returns the entry point a run located, or nil.
func (q *QueryBuilder) EntryPoint(runID string) (*EntryPoint, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	ep, err := q.store.EntryPoint(id)
	if err != nil {
		return nil, fmt.Errorf("entry point: %w", err)
	}
	return ep, nil
}

// Unrepresentable returns the scope entries a run dropped under the skip
// policy.
func (q *QueryBuilder) Unrepresentable(runID string) ([]*UnrepresentableRecord, error) {
	id, err := q.runID(runID)
	if err != nil || id == "" {
		return nil, err
	}
	out, err := q.store.UnrepresentableEntries(id)
	if err != nil {
		return nil, fmt.Errorf("unrepresentable: %w", err)
	}
	return out, nil
}

// runID resolves "" to the latest run. It returns "" with a nil error when
// the store holds no runs.
func (q *QueryBuilder) runID(runID string) (string, error) {
	if q.store == nil {
		return "", ErrNoStore
	}
	if runID != "" {
		return runID, nil
	}
	r, err := q.store.LatestRun()
	if err != nil {
		return "", fmt.Errorf("latest run: %w", err)
	}
	if r == nil {
		return "", nil
	}
	return r.ID, nil
}
