package frontend

import (
	"embed"
	"io/fs"
	"path"

	"github.com/jward/lucid/internal/source"
)

//go:embed stdlib/*.nr
var stdlibFS embed.FS

// StdlibDir is the path prefix stdlib files are registered under.
const StdlibDir = "std"

// StdlibEntry is the crate root of the standard library.
const StdlibEntry = StdlibDir + "/lib.nr"

// FileManagerWithStdlib returns a FileManager for root that already holds
// the embedded standard library sources.
func FileManagerWithStdlib(root string) *source.FileManager {
	fm := source.NewFileManager(root)
	AddStdlib(fm)
	return fm
}

// AddStdlib registers the embedded standard library with fm and returns
// the IDs it assigned.
func AddStdlib(fm *source.FileManager) []source.FileID {
	entries, err := fs.ReadDir(stdlibFS, "stdlib")
	if err != nil {
		// The directory is embedded at build time.
		panic("frontend: embedded stdlib missing: " + err.Error())
	}
	var ids []source.FileID
	for _, e := range entries {
		data, err := fs.ReadFile(stdlibFS, path.Join("stdlib", e.Name()))
		if err != nil {
			panic("frontend: embedded stdlib unreadable: " + err.Error())
		}
		ids = append(ids, fm.AddStdlibFile(path.Join(StdlibDir, e.Name()), data))
	}
	return ids
}
