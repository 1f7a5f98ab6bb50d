package docservice

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/testutil"
	"github.com/elena-cabrera/markdown-os/internal/watch"
)

func folderService(t *testing.T, files map[string]string) *Service {
	t.Helper()
	ws := testutil.TempWorkspace(t, files)
	return NewFolderService(ws, testutil.OpenIndex(t), &watch.Marker{}, testutil.Logger())
}

func fileService(t *testing.T, content string) (*Service, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := storage.NewFile(path)
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	t.Cleanup(f.Release)
	return NewFileService(f, &watch.Marker{}, testutil.Logger()), path
}

func TestFileModeRoundTrip(t *testing.T) {
	svc, _ := fileService(t, "# before")

	doc, err := svc.Save("", "# after")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if doc.RelativePath != "" {
		t.Errorf("file mode should not set RelativePath, got %q", doc.RelativePath)
	}

	got, err := svc.Content("")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if got.Content != "# after" {
		t.Errorf("content = %q, want %q", got.Content, "# after")
	}
}

func TestSaveStampsMarker(t *testing.T) {
	svc, _ := fileService(t, "x")
	if svc.marker.Within(time.Second) {
		t.Fatal("marker should start unstamped")
	}
	if _, err := svc.Save("", "y"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !svc.marker.Within(time.Second) {
		t.Error("marker should be stamped after a save")
	}
}

func TestFolderContentRequiresPath(t *testing.T) {
	svc := folderService(t, map[string]string{"a.md": "a"})
	_, err := svc.Content("")
	if !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v, want ErrValidation", err)
	}
}

func TestFolderContentSetsRelativePath(t *testing.T) {
	svc := folderService(t, map[string]string{"docs/guide.md": "# guide"})
	doc, err := svc.Content("docs/../docs/guide.md")
	if err != nil {
		t.Fatalf("Content: %v", err)
	}
	if doc.RelativePath != "docs/guide.md" {
		t.Errorf("RelativePath = %q, want docs/guide.md", doc.RelativePath)
	}
}

func TestFolderOnlyOpsFailInFileMode(t *testing.T) {
	svc, _ := fileService(t, "x")

	if _, err := svc.List(); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("List err = %v, want ErrValidation", err)
	}
	if _, err := svc.Tree(); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Tree err = %v, want ErrValidation", err)
	}
	if _, err := svc.Create("a.md"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Create err = %v, want ErrValidation", err)
	}
	if _, err := svc.Rename("a.md", "b.md"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Rename err = %v, want ErrValidation", err)
	}
	if err := svc.Delete("a.md"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("Delete err = %v, want ErrValidation", err)
	}
}

func TestCreateIndexesAndConflicts(t *testing.T) {
	svc := folderService(t, nil)

	rel, err := svc.Create("new.md")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rel != "new.md" {
		t.Errorf("rel = %q, want new.md", rel)
	}

	if _, err := svc.Create("new.md"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("second create err = %v, want ErrAlreadyExists", err)
	}
}

func TestRenameMovesIndexEntry(t *testing.T) {
	svc := folderService(t, map[string]string{"a.md": "# Alpha document\n\nsearchable body"})
	if err := svc.idx.IndexDocument("a.md", "# Alpha document\n\nsearchable body"); err != nil {
		t.Fatal(err)
	}

	newRel, err := svc.Rename("a.md", "b.md")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if newRel != "b.md" {
		t.Errorf("newRel = %q, want b.md", newRel)
	}

	hits, err := svc.Search("searchable", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, hit := range hits {
		if hit.Path == "a.md" {
			t.Error("old path still indexed after rename")
		}
	}
}

func TestSearchEvictsStaleHits(t *testing.T) {
	svc := folderService(t, map[string]string{"keep.md": "needle here", "gone.md": "needle too"})
	for _, rel := range []string{"keep.md", "gone.md"} {
		doc, err := svc.Content(rel)
		if err != nil {
			t.Fatal(err)
		}
		if err := svc.idx.IndexDocument(rel, doc.Content); err != nil {
			t.Fatal(err)
		}
	}

	// Remove one file behind the index's back.
	if err := os.Remove(filepath.Join(svc.ws.Root(), "gone.md")); err != nil {
		t.Fatal(err)
	}

	hits, err := svc.Search("needle", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 || hits[0].Path != "keep.md" {
		t.Fatalf("hits = %+v, want only keep.md", hits)
	}
}

func TestSaveImageValidation(t *testing.T) {
	svc := folderService(t, nil)

	if _, err := svc.SaveImage("shot.exe", []byte{1}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad extension err = %v, want ErrValidation", err)
	}
	if _, err := svc.SaveImage("shot.png", nil); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty upload err = %v, want ErrValidation", err)
	}

	img, err := svc.SaveImage("My Shot (1).png", []byte{0x89, 0x50})
	if err != nil {
		t.Fatalf("SaveImage: %v", err)
	}
	if !strings.HasPrefix(img.Path, "images/My-Shot") {
		t.Errorf("path = %q, want sanitized images/My-Shot... name", img.Path)
	}
	if _, err := os.Stat(filepath.Join(svc.ws.Root(), filepath.FromSlash(img.Path))); err != nil {
		t.Errorf("stored image missing: %v", err)
	}
}

func TestExternalChangeFolderMode(t *testing.T) {
	svc := folderService(t, map[string]string{"docs/guide.md": "fresh content"})

	path, content, ok := svc.ExternalChange(filepath.Join(svc.ws.Root(), "docs", "guide.md"))
	if !ok {
		t.Fatal("change inside root should be ok")
	}
	if path != "docs/guide.md" {
		t.Errorf("path = %q, want docs/guide.md", path)
	}
	if content == nil || *content != "fresh content" {
		t.Errorf("content = %v, want fresh content", content)
	}

	if _, _, ok := svc.ExternalChange("/somewhere/else.md"); ok {
		t.Error("change outside root should not be ok")
	}
}

func TestExternalChangeFileModeUnreadable(t *testing.T) {
	svc, path := fileService(t, "x")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	gotPath, content, ok := svc.ExternalChange(path)
	if !ok {
		t.Fatal("file mode change should be ok")
	}
	if gotPath != path {
		t.Errorf("path = %q, want %q", gotPath, path)
	}
	if content != nil {
		t.Error("unreadable file should yield nil content")
	}
}
