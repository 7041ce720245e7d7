package source

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Extension is the file extension of Noir sources.
const Extension = ".nr"

// IsSourceFile reports whether path names a Noir source file.
func IsSourceFile(path string) bool {
	return filepath.Ext(path) == Extension
}

// skipDirs are directories never searched for sources.
var skipDirs = map[string]bool{
	"target":       true,
	"node_modules": true,
}

// DiscoverOptions filters which files AddProjectFiles registers. Patterns
// are gobwas/glob expressions matched against slash-separated paths
// relative to the project root, e.g. "src/**.nr" or "test_*/**".
type DiscoverOptions struct {
	Include []string
	Exclude []string
}

type matcher struct {
	include []glob.Glob
	exclude []glob.Glob
}

func compileMatcher(opts DiscoverOptions) (*matcher, error) {
	m := &matcher{}
	for _, p := range opts.Include {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("include pattern %q: %w", p, err)
		}
		m.include = append(m.include, g)
	}
	for _, p := range opts.Exclude {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		m.exclude = append(m.exclude, g)
	}
	return m, nil
}

func (m *matcher) match(rel string) bool {
	for _, g := range m.exclude {
		if g.Match(rel) {
			return false
		}
	}
	if len(m.include) == 0 {
		return true
	}
	for _, g := range m.include {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

// AddProjectFiles discovers every Noir source under fm.Root() and registers
// it with a path relative to the root. If the root is inside a git
// repository, git ls-files is used so .gitignore is respected; otherwise the
// filesystem is walked, skipping hidden directories and build output.
func AddProjectFiles(fm *FileManager, opts DiscoverOptions) ([]FileID, error) {
	m, err := compileMatcher(opts)
	if err != nil {
		return nil, err
	}
	root := fm.Root()
	paths, err := gitListFiles(root)
	if err != nil {
		paths, err = walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}

	var ids []FileID
	for _, abs := range paths {
		rel, err := filepath.Rel(root, abs)
		if err != nil {
			return nil, fmt.Errorf("relative path for %s: %w", abs, err)
		}
		rel = filepath.ToSlash(rel)
		if !m.match(rel) {
			continue
		}
		src, err := os.ReadFile(abs)
		if errors.Is(err, fs.ErrNotExist) {
			// Tracked by git but deleted from the worktree.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", abs, err)
		}
		ids = append(ids, fm.AddFile(rel, src))
	}
	return ids, nil
}

// gitListFiles uses git ls-files to discover tracked and untracked (but not
// ignored) Noir files under root.
func gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !IsSourceFile(line) {
			continue
		}
		paths = append(paths, filepath.Join(root, line))
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used when git is
// not available.
func walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			return nil
		}
		if IsSourceFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
