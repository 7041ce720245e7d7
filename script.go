package lucid

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jward/lucid/internal/runtime"
)

// ScriptOptions controls where RunScript loads scripts from.
type ScriptOptions struct {
	// Dir is the directory script paths and imports are relative to.
	Dir string
	// FS, when set, is used instead of Dir.
	FS fs.FS
	// Globals are extra values visible to the script.
	Globals map[string]any
	// Emit receives every value the script passes to emit().
	Emit func(any)
}

// RunScript executes a Risor script. When res is non-nil its module graph,
// files, and entry point are exposed as globals; the Engine's store, if
// any, backs the runs() and db_query() globals.
func (e *Engine) RunScript(ctx context.Context, res *Result, path string, opts ScriptOptions) error {
	rtOpts := []runtime.RuntimeOption{runtime.WithLogger(e.logger)}
	if opts.Emit != nil {
		rtOpts = append(rtOpts, runtime.WithEmit(opts.Emit))
	}
	if opts.FS != nil {
		rtOpts = append(rtOpts, runtime.WithRuntimeFS(opts.FS))
	}
	if res != nil {
		rtOpts = append(rtOpts, runtime.WithGraph(&runtime.Graph{
			RunID:    res.RunID,
			Files:    res.Files,
			Trees:    res.Trees,
			Snapshot: res.Snapshot,
			Entry:    res.Entry,
		}))
	}
	rt := runtime.NewRuntime(e.store, opts.Dir, rtOpts...)
	if err := rt.RunScript(ctx, path, opts.Globals); err != nil {
		return fmt.Errorf("lucid: %w", err)
	}
	return nil
}
