package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
)

// DefaultExtensions are the markdown extensions recognized when none are
// configured. Matching is case-insensitive.
var DefaultExtensions = []string{".md", ".markdown"}

// Workspace manages the markdown documents under one root directory:
// discovery, tree building, create/rename/delete, and a cache of File
// accessors keyed by normalized relative path so lock state stays per
// document rather than per request.
type Workspace struct {
	root string
	exts map[string]struct{}

	mu    sync.Mutex
	files map[string]*File
}

// NewWorkspace opens root, which must be an existing directory.
func NewWorkspace(root string, extensions []string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w: %w", apperr.ErrIO, err)
	}
	if resolved, rErr := filepath.EvalSymlinks(abs); rErr == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: workspace root %s: %w", root, apperr.ErrNotFound)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: workspace root is not a directory: %s: %w", root, apperr.ErrValidation)
	}
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		exts[strings.ToLower(e)] = struct{}{}
	}
	return &Workspace{root: abs, exts: exts, files: make(map[string]*File)}, nil
}

// Root returns the resolved absolute workspace root.
func (w *Workspace) Root() string { return w.root }

// Extensions returns the configured markdown extensions, lowercased and
// sorted.
func (w *Workspace) Extensions() []string {
	out := make([]string, 0, len(w.exts))
	for e := range w.exts {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

func (w *Workspace) hasMarkdownExt(p string) bool {
	_, ok := w.exts[strings.ToLower(filepath.Ext(p))]
	return ok
}

// contains reports whether abs lies at or under the workspace root.
func (w *Workspace) contains(abs string) bool {
	return abs == w.root || strings.HasPrefix(abs, w.root+string(os.PathSeparator))
}

// resolveInside normalizes rel (backslashes become slashes), joins it
// against the root and verifies the result stays inside, both lexically
// and after symlink resolution. Returns the normalized forward-slash
// relative path and the resolved absolute path.
func (w *Workspace) resolveInside(rel string) (string, string, error) {
	norm := strings.ReplaceAll(rel, `\`, "/")
	if norm == "" || norm == "." {
		return "", "", fmt.Errorf("storage: empty path: %w", apperr.ErrValidation)
	}
	if path.IsAbs(norm) || filepath.IsAbs(norm) {
		return "", "", fmt.Errorf("storage: absolute paths not allowed: %s: %w", rel, apperr.ErrValidation)
	}
	abs := filepath.Join(w.root, filepath.FromSlash(norm))
	if !w.contains(abs) {
		return "", "", fmt.Errorf("storage: path escapes workspace root: %s: %w", rel, apperr.ErrValidation)
	}
	abs = resolveLenient(abs)
	if !w.contains(abs) {
		return "", "", fmt.Errorf("storage: path escapes workspace root after resolving: %s: %w", rel, apperr.ErrValidation)
	}
	cleanRel, err := filepath.Rel(w.root, abs)
	if err != nil {
		return "", "", fmt.Errorf("storage: relativize %s: %w", rel, apperr.ErrValidation)
	}
	return filepath.ToSlash(cleanRel), abs, nil
}

// resolveLenient resolves symlinks in abs while tolerating components
// that do not exist yet: the nearest existing ancestor is resolved and
// the missing tail re-joined.
func resolveLenient(abs string) string {
	tail := ""
	cur := abs
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if tail == "" {
				return resolved
			}
			return filepath.Join(resolved, tail)
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return abs
		}
		if tail == "" {
			tail = filepath.Base(cur)
		} else {
			tail = filepath.Join(filepath.Base(cur), tail)
		}
		cur = parent
	}
}

// resolveDocument applies resolveInside plus the markdown rules: the
// extension must be configured and the target must exist as a regular
// file.
func (w *Workspace) resolveDocument(rel string) (string, string, error) {
	norm, abs, err := w.resolveInside(rel)
	if err != nil {
		return "", "", err
	}
	if !w.hasMarkdownExt(abs) {
		return "", "", fmt.Errorf("storage: not a markdown file: %s: %w", rel, apperr.ErrValidation)
	}
	info, statErr := os.Stat(abs)
	if statErr != nil || !info.Mode().IsRegular() {
		return "", "", fmt.Errorf("storage: document %s: %w", rel, apperr.ErrNotFound)
	}
	return norm, abs, nil
}

// Validate reports whether rel resolves to an existing markdown document
// inside the workspace.
func (w *Workspace) Validate(rel string) bool {
	_, _, err := w.resolveDocument(rel)
	return err == nil
}

// Open returns the File accessor for rel, creating and caching it on
// first use. The same normalized path always yields the same accessor.
func (w *Workspace) Open(rel string) (*File, error) {
	norm, abs, err := w.resolveDocument(rel)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if f, ok := w.files[norm]; ok {
		return f, nil
	}
	f := &File{path: abs, lockPath: abs + ".lock"}
	w.files[norm] = f
	return f, nil
}

// ListFiles returns the relative POSIX paths of every markdown file under
// the root, sorted lexicographically by lowercased path. Symlinked files
// are followed; anything resolving outside the root is skipped.
func (w *Workspace) ListFiles() ([]string, error) {
	out := []string{}
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !w.hasMarkdownExt(d.Name()) {
			return nil
		}
		info, statErr := os.Stat(p)
		if statErr != nil || !info.Mode().IsRegular() {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			resolved, rErr := filepath.EvalSymlinks(p)
			if rErr != nil || !w.contains(resolved) {
				return nil
			}
		}
		rel, relErr := filepath.Rel(w.root, p)
		if relErr != nil {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list files: %w: %w", apperr.ErrIO, err)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i]) < strings.ToLower(out[j])
	})
	return out, nil
}

// CreateFile creates an empty file at rel, parent directories included.
// Any extension is accepted; the target must not already exist in any
// form.
func (w *Workspace) CreateFile(rel string) (string, error) {
	norm, abs, err := w.resolveInside(rel)
	if err != nil {
		return "", err
	}
	if _, lstatErr := os.Lstat(abs); lstatErr == nil {
		return "", fmt.Errorf("storage: create %s: %w", norm, apperr.ErrAlreadyExists)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("storage: create dirs for %s: %w: %w", norm, apperr.ErrIO, err)
	}
	if err := os.WriteFile(abs, nil, 0o644); err != nil {
		return "", fmt.Errorf("storage: create %s: %w: %w", norm, apperr.ErrIO, err)
	}
	return norm, nil
}

// RenamePath renames the file or folder at rel to newName within its
// parent directory. newName must be a bare name without separators.
func (w *Workspace) RenamePath(rel, newName string) (string, error) {
	if newName == "" || strings.ContainsAny(newName, `/\`) {
		return "", fmt.Errorf("storage: invalid new name %q: %w", newName, apperr.ErrValidation)
	}
	norm, abs, err := w.resolveInside(rel)
	if err != nil {
		return "", err
	}
	if _, statErr := os.Stat(abs); statErr != nil {
		return "", fmt.Errorf("storage: rename %s: %w", norm, apperr.ErrNotFound)
	}
	dest := resolveLenient(filepath.Join(filepath.Dir(abs), newName))
	if !w.contains(dest) {
		return "", fmt.Errorf("storage: rename target escapes workspace root: %s: %w", newName, apperr.ErrValidation)
	}
	if _, lstatErr := os.Lstat(dest); lstatErr == nil {
		return "", fmt.Errorf("storage: rename %s to %s: %w", norm, newName, apperr.ErrAlreadyExists)
	}
	if err := os.Rename(abs, dest); err != nil {
		return "", fmt.Errorf("storage: rename %s: %w: %w", norm, apperr.ErrIO, err)
	}
	newRel, relErr := filepath.Rel(w.root, dest)
	if relErr != nil {
		return "", fmt.Errorf("storage: relativize renamed path: %w: %w", apperr.ErrIO, relErr)
	}
	w.evict(norm)
	return filepath.ToSlash(newRel), nil
}

// DeleteFile removes the file at rel. Directories are refused.
func (w *Workspace) DeleteFile(rel string) error {
	norm, abs, err := w.resolveInside(rel)
	if err != nil {
		return err
	}
	info, statErr := os.Stat(abs)
	if statErr != nil {
		return fmt.Errorf("storage: delete %s: %w", norm, apperr.ErrNotFound)
	}
	if info.IsDir() {
		return fmt.Errorf("storage: delete %s: is a directory: %w", norm, apperr.ErrValidation)
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w: %w", norm, apperr.ErrIO, err)
	}
	w.evict(norm)
	return nil
}

// ReleaseAll releases every cached accessor. Called on shutdown.
func (w *Workspace) ReleaseAll() {
	w.mu.Lock()
	files := make([]*File, 0, len(w.files))
	for _, f := range w.files {
		files = append(files, f)
	}
	w.files = make(map[string]*File)
	w.mu.Unlock()

	for _, f := range files {
		f.Release()
	}
}

// evict drops the cached accessor for norm, releasing its sidecar.
func (w *Workspace) evict(norm string) {
	w.mu.Lock()
	f, ok := w.files[norm]
	if ok {
		delete(w.files, norm)
	}
	w.mu.Unlock()
	if ok {
		f.Release()
	}
}
