package source

import (
	"fmt"
	"path/filepath"
	"slices"
	"sort"
)

// FileManager owns the source text of every file in a compilation and
// assigns each path a stable FileID. IDs are handed out in registration
// order starting at 1.
type FileManager struct {
	root   string
	files  []file // index = FileID-1
	byPath map[string]FileID
}

type file struct {
	path   string
	source []byte
	lines  []uint32 // byte offset of each line start
	stdlib bool
}

// NewFileManager creates an empty FileManager for a project rooted at root.
func NewFileManager(root string) *FileManager {
	return &FileManager{
		root:   root,
		byPath: make(map[string]FileID),
	}
}

// Root returns the project root the manager was created for.
func (fm *FileManager) Root() string {
	return fm.root
}

// AddFile registers a file and returns its ID. Adding a path twice returns
// the existing ID and leaves the first source in place.
func (fm *FileManager) AddFile(path string, src []byte) FileID {
	return fm.add(path, src, false)
}

// AddStdlibFile registers a file that belongs to the standard library.
func (fm *FileManager) AddStdlibFile(path string, src []byte) FileID {
	return fm.add(path, src, true)
}

func (fm *FileManager) add(path string, src []byte, stdlib bool) FileID {
	path = filepath.ToSlash(filepath.Clean(path))
	if id, ok := fm.byPath[path]; ok {
		return id
	}
	fm.files = append(fm.files, file{
		path:   path,
		source: src,
		lines:  lineStarts(src),
		stdlib: stdlib,
	})
	id := FileID(len(fm.files))
	fm.byPath[path] = id
	return id
}

// NameToID looks up the ID of a registered path.
func (fm *FileManager) NameToID(path string) (FileID, bool) {
	id, ok := fm.byPath[filepath.ToSlash(filepath.Clean(path))]
	return id, ok
}

func (fm *FileManager) get(id FileID) (*file, bool) {
	if !id.IsValid() || int(id) > len(fm.files) {
		return nil, false
	}
	return &fm.files[id-1], true
}

// Path returns the registered path of id, or "" if id is unknown.
func (fm *FileManager) Path(id FileID) string {
	f, ok := fm.get(id)
	if !ok {
		return ""
	}
	return f.path
}

// Source returns the source bytes of id.
func (fm *FileManager) Source(id FileID) ([]byte, bool) {
	f, ok := fm.get(id)
	if !ok {
		return nil, false
	}
	return f.source, true
}

// IsStdlib reports whether id was registered as a standard library file.
func (fm *FileManager) IsStdlib(id FileID) bool {
	f, ok := fm.get(id)
	return ok && f.stdlib
}

// FileIDs returns every registered ID in ascending order.
func (fm *FileManager) FileIDs() []FileID {
	ids := make([]FileID, len(fm.files))
	for i := range fm.files {
		ids[i] = FileID(i + 1)
	}
	return ids
}

// UserFileIDs returns the IDs of files that are not part of the stdlib.
func (fm *FileManager) UserFileIDs() []FileID {
	var ids []FileID
	for i, f := range fm.files {
		if !f.stdlib {
			ids = append(ids, FileID(i+1))
		}
	}
	return ids
}

// Paths returns all registered paths, sorted.
func (fm *FileManager) Paths() []string {
	paths := make([]string, 0, len(fm.byPath))
	for p := range fm.byPath {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Text returns the source text covered by loc.
func (fm *FileManager) Text(loc Location) string {
	f, ok := fm.get(loc.File)
	if !ok {
		return ""
	}
	end := min(int(loc.Span.End), len(f.source))
	start := min(int(loc.Span.Start), end)
	return string(f.source[start:end])
}

// Position converts the start of loc into a 1-based line and column.
// Columns count bytes.
func (fm *FileManager) Position(loc Location) (line, col int) {
	f, ok := fm.get(loc.File)
	if !ok {
		return 0, 0
	}
	off := loc.Span.Start
	i, found := slices.BinarySearch(f.lines, off)
	if !found {
		i--
	}
	return i + 1, int(off-f.lines[i]) + 1
}

// Describe formats loc as "path:line:col". Locations of unknown files fall
// back to Location.String.
func (fm *FileManager) Describe(loc Location) string {
	if _, ok := fm.get(loc.File); !ok {
		return loc.String()
	}
	line, col := fm.Position(loc)
	return fmt.Sprintf("%s:%d:%d", fm.Path(loc.File), line, col)
}

// FileSpan returns a Location covering the whole of id.
func (fm *FileManager) FileSpan(id FileID) Location {
	f, ok := fm.get(id)
	if !ok {
		return Location{}
	}
	return NewLocation(id, 0, uint32(len(f.source)))
}

func lineStarts(src []byte) []uint32 {
	starts := []uint32{0}
	for i, c := range src {
		if c == '\n' {
			starts = append(starts, uint32(i+1))
		}
	}
	return starts
}
