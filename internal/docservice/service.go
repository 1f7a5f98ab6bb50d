// Package docservice is the domain layer between the transports (HTTP,
// MCP) and the storage primitives. One Service instance runs in either
// file mode, wrapping a single document, or folder mode, wrapping a
// workspace plus the optional search index. Folder-only operations fail
// with a validation error in file mode.
package docservice

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
	"github.com/elena-cabrera/markdown-os/internal/models"
	"github.com/elena-cabrera/markdown-os/internal/search"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/watch"
)

// Mode selects how documents are addressed.
type Mode string

// Editor modes.
const (
	ModeFile   Mode = "file"   // one fixed document
	ModeFolder Mode = "folder" // workspace-relative paths
)

// Image upload limits shared by the HTTP and MCP surfaces.
const MaxImageSize = 10 << 20 // 10 MB

var allowedImageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {},
	".webp": {}, ".svg": {}, ".bmp": {}, ".ico": {},
}

var unsafeStemChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// Service exposes document operations for the configured mode. All
// write paths stamp the shared marker so the watcher can tell our own
// saves apart from external edits.
type Service struct {
	mode   Mode
	file   *storage.File      // file mode
	ws     *storage.Workspace // folder mode
	idx    search.DocumentIndex
	marker *watch.Marker
	logger *slog.Logger
}

// NewFileService builds a single-document service.
func NewFileService(f *storage.File, marker *watch.Marker, logger *slog.Logger) *Service {
	return &Service{mode: ModeFile, file: f, marker: marker, logger: logger}
}

// NewFolderService builds a workspace service. idx may be nil when the
// search index is disabled.
func NewFolderService(ws *storage.Workspace, idx search.DocumentIndex, marker *watch.Marker, logger *slog.Logger) *Service {
	return &Service{mode: ModeFolder, ws: ws, idx: idx, marker: marker, logger: logger}
}

// Mode returns the configured editor mode.
func (s *Service) Mode() Mode { return s.mode }

// Workspace returns the underlying workspace. Nil in file mode.
func (s *Service) Workspace() *storage.Workspace { return s.ws }

// TargetPath returns the watched document's absolute path in file mode,
// or the workspace root in folder mode.
func (s *Service) TargetPath() string {
	if s.mode == ModeFile {
		return s.file.Path()
	}
	return s.ws.Root()
}

// open resolves rel to a File accessor. In file mode rel is ignored and
// the fixed document is returned.
func (s *Service) open(rel string) (*storage.File, string, error) {
	if s.mode == ModeFile {
		return s.file, "", nil
	}
	if rel == "" {
		return nil, "", fmt.Errorf("docservice: missing file path: %w", apperr.ErrValidation)
	}
	f, err := s.ws.Open(rel)
	if err != nil {
		return nil, "", err
	}
	norm, relErr := filepath.Rel(s.ws.Root(), f.Path())
	if relErr != nil {
		return nil, "", fmt.Errorf("docservice: relativize %s: %w: %w", rel, apperr.ErrIO, relErr)
	}
	return f, filepath.ToSlash(norm), nil
}

// Content reads the document and its metadata. rel is required in
// folder mode and ignored in file mode.
func (s *Service) Content(rel string) (*models.Document, error) {
	f, norm, err := s.open(rel)
	if err != nil {
		return nil, err
	}
	content, err := f.Read()
	if err != nil {
		return nil, err
	}
	meta, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &models.Document{Content: content, Metadata: meta, RelativePath: norm}, nil
}

// Save replaces the document content and stamps the write marker. In
// folder mode the target must already exist and gets reindexed.
func (s *Service) Save(rel, content string) (*models.Document, error) {
	f, norm, err := s.open(rel)
	if err != nil {
		return nil, err
	}
	if err := f.Write(content); err != nil {
		return nil, err
	}
	s.marker.Mark()
	if s.mode == ModeFolder && s.idx != nil {
		if idxErr := s.idx.IndexDocument(norm, content); idxErr != nil {
			s.logger.Warn("index after save failed",
				slog.String("path", norm), slog.String("error", idxErr.Error()))
		}
	}
	meta, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &models.Document{Content: content, Metadata: meta, RelativePath: norm}, nil
}

// Validate reports whether rel addresses a readable document.
func (s *Service) Validate(rel string) bool {
	if s.mode == ModeFile {
		_, err := s.file.Stat()
		return err == nil
	}
	return s.ws.Validate(rel)
}

func (s *Service) requireFolder(op string) error {
	if s.mode != ModeFolder {
		return fmt.Errorf("docservice: %s requires folder mode: %w", op, apperr.ErrValidation)
	}
	return nil
}

// List returns the workspace's markdown files. Folder mode only.
func (s *Service) List() ([]string, error) {
	if err := s.requireFolder("list"); err != nil {
		return nil, err
	}
	return s.ws.ListFiles()
}

// Tree returns the workspace file tree. Folder mode only.
func (s *Service) Tree() (*storage.TreeNode, error) {
	if err := s.requireFolder("file tree"); err != nil {
		return nil, err
	}
	return s.ws.FileTree()
}

// Create adds an empty document at rel and indexes it. Folder mode only.
func (s *Service) Create(rel string) (string, error) {
	if err := s.requireFolder("create"); err != nil {
		return "", err
	}
	norm, err := s.ws.CreateFile(rel)
	if err != nil {
		return "", err
	}
	s.marker.Mark()
	if s.idx != nil {
		if idxErr := s.idx.IndexDocument(norm, ""); idxErr != nil {
			s.logger.Warn("index new document failed",
				slog.String("path", norm), slog.String("error", idxErr.Error()))
		}
	}
	return norm, nil
}

// Rename renames the entry at rel to newName within the same directory
// and moves its index entry. Folder mode only.
func (s *Service) Rename(rel, newName string) (string, error) {
	if err := s.requireFolder("rename"); err != nil {
		return "", err
	}
	newRel, err := s.ws.RenamePath(rel, newName)
	if err != nil {
		return "", err
	}
	s.marker.Mark()
	if s.idx != nil {
		s.reindexMoved(rel, newRel)
	}
	return newRel, nil
}

// reindexMoved drops the old index entry and indexes the new path when
// it is a readable markdown document (directories and foreign
// extensions just lose their stale entry).
func (s *Service) reindexMoved(oldRel, newRel string) {
	norm := strings.ReplaceAll(oldRel, `\`, "/")
	if err := s.idx.Delete(norm); err != nil {
		s.logger.Warn("deindex renamed document failed",
			slog.String("path", norm), slog.String("error", err.Error()))
	}
	doc, err := s.Content(newRel)
	if err != nil {
		return
	}
	if err := s.idx.IndexDocument(doc.RelativePath, doc.Content); err != nil {
		s.logger.Warn("index renamed document failed",
			slog.String("path", doc.RelativePath), slog.String("error", err.Error()))
	}
}

// Delete removes the document at rel and its index entry. Folder mode
// only.
func (s *Service) Delete(rel string) error {
	if err := s.requireFolder("delete"); err != nil {
		return err
	}
	if err := s.ws.DeleteFile(rel); err != nil {
		return err
	}
	s.marker.Mark()
	if s.idx != nil {
		norm := strings.ReplaceAll(rel, `\`, "/")
		if err := s.idx.Delete(norm); err != nil {
			s.logger.Warn("deindex deleted document failed",
				slog.String("path", norm), slog.String("error", err.Error()))
		}
	}
	return nil
}

// Search runs a full-text query over the index. Hits whose file has
// disappeared from disk are filtered out and lazily evicted. Folder
// mode only.
func (s *Service) Search(query string, limit int) ([]search.Result, error) {
	if err := s.requireFolder("search"); err != nil {
		return nil, err
	}
	if s.idx == nil {
		return []search.Result{}, nil
	}
	hits, err := s.idx.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]search.Result, 0, len(hits))
	for _, hit := range hits {
		abs := filepath.Join(s.ws.Root(), filepath.FromSlash(hit.Path))
		if info, statErr := os.Stat(abs); statErr != nil || !info.Mode().IsRegular() {
			if delErr := s.idx.Delete(hit.Path); delErr != nil {
				s.logger.Warn("evict stale search hit failed",
					slog.String("path", hit.Path), slog.String("error", delErr.Error()))
			}
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}

// ImagesDir returns the directory editor uploads are stored in: beside
// the document in file mode, under the root in folder mode.
func (s *Service) ImagesDir() string {
	if s.mode == ModeFile {
		return filepath.Join(filepath.Dir(s.file.Path()), "images")
	}
	return filepath.Join(s.ws.Root(), "images")
}

// SaveImage stores uploaded image data under the images directory. The
// final name is the sanitized stem of originalName plus a UTC
// timestamp, so uploads never collide or overwrite.
func (s *Service) SaveImage(originalName string, data []byte) (*models.Image, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	if _, ok := allowedImageExts[ext]; !ok {
		return nil, fmt.Errorf("docservice: unsupported image format %q: %w", ext, apperr.ErrValidation)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("docservice: empty image upload: %w", apperr.ErrValidation)
	}
	if len(data) > MaxImageSize {
		return nil, fmt.Errorf("docservice: image exceeds %d MB: %w", MaxImageSize>>20, apperr.ErrValidation)
	}

	stem := strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName))
	stem = strings.Trim(unsafeStemChars.ReplaceAllString(stem, "-"), "-")
	if stem == "" {
		stem = "image"
	}
	now := time.Now().UTC()
	filename := fmt.Sprintf("%s-%s-%06d%s",
		stem, now.Format("20060102-150405"), now.Nanosecond()/1000, ext)

	dir := s.ImagesDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docservice: create images dir: %w: %w", apperr.ErrIO, err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), data, 0o644); err != nil {
		return nil, fmt.Errorf("docservice: store image %s: %w: %w", filename, apperr.ErrIO, err)
	}
	return &models.Image{Path: "images/" + filename, Filename: filename}, nil
}

// ExternalChange processes a change the watcher observed at absPath:
// the document is re-read when possible and, in folder mode, the search
// index refreshed. It returns the notification path (absolute in file
// mode, workspace-relative in folder mode) and the fresh content, nil
// when the re-read failed and subscribers should fetch themselves. ok
// is false when the path cannot be related to the workspace at all.
func (s *Service) ExternalChange(absPath string) (path string, content *string, ok bool) {
	if s.mode == ModeFile {
		if doc, err := s.Content(""); err == nil {
			content = &doc.Content
		}
		return absPath, content, true
	}

	rel, err := filepath.Rel(s.ws.Root(), absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", nil, false
	}
	rel = filepath.ToSlash(rel)
	if s.ws.Validate(rel) {
		if doc, readErr := s.Content(rel); readErr == nil {
			content = &doc.Content
			if s.idx != nil {
				if idxErr := s.idx.IndexDocument(rel, doc.Content); idxErr != nil {
					s.logger.Warn("index external change failed",
						slog.String("path", rel), slog.String("error", idxErr.Error()))
				}
			}
		}
	}
	return rel, content, true
}

// Close releases every lock sidecar held by the service.
func (s *Service) Close() {
	if s.mode == ModeFile {
		s.file.Release()
		return
	}
	s.ws.ReleaseAll()
}
