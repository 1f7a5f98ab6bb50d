package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/storage"
	"github.com/elena-cabrera/markdown-os/internal/testutil"
	"github.com/elena-cabrera/markdown-os/internal/watch"
)

func folderServer(t *testing.T, files map[string]string) (*httptest.Server, *docservice.Service) {
	t.Helper()
	ws := testutil.TempWorkspace(t, files)
	svc := docservice.NewFolderService(ws, testutil.OpenIndex(t), &watch.Marker{}, testutil.Logger())
	return newServer(t, svc), svc
}

func fileServer(t *testing.T, content string) (*httptest.Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := storage.NewFile(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(f.Release)
	svc := docservice.NewFileService(f, &watch.Marker{}, testutil.Logger())
	return newServer(t, svc), path
}

func newServer(t *testing.T, svc *docservice.Service) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Mount("/api", NewRouter(svc, false, "", nil))
	r.Get("/images/*", NewImageHandler(svc).Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestGetMode(t *testing.T) {
	srv, _ := folderServer(t, nil)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/mode", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["mode"] != "folder" {
		t.Errorf("mode = %v, want folder", body["mode"])
	}
}

func TestGetContentFolderMode(t *testing.T) {
	srv, _ := folderServer(t, map[string]string{"docs/guide.md": "# Guide"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/content", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file param: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/content?file=../etc/passwd", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal: status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/content?file=missing.md", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing doc: status = %d, want 404", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/content?file=docs/guide.md", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["content"] != "# Guide" {
		t.Errorf("content = %v", body["content"])
	}
	meta := body["metadata"].(map[string]any)
	if meta["relative_path"] != "docs/guide.md" {
		t.Errorf("relative_path = %v", meta["relative_path"])
	}
}

func TestSaveThenRead(t *testing.T) {
	srv, _ := folderServer(t, map[string]string{"note.md": "old"})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/save",
		SaveRequest{Content: "new content", File: "note.md"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d: %v", resp.StatusCode, body)
	}
	if body["status"] != "saved" {
		t.Errorf("status field = %v", body["status"])
	}

	_, got := doJSON(t, http.MethodGet, srv.URL+"/api/content?file=note.md", nil)
	if got["content"] != "new content" {
		t.Errorf("content after save = %v", got["content"])
	}
}

func TestSaveFolderModeRequiresFile(t *testing.T) {
	srv, _ := folderServer(t, nil)
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/save", SaveRequest{Content: "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestFileModeContentAndSave(t *testing.T) {
	srv, _ := fileServer(t, "# Single")

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/content", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["content"] != "# Single" {
		t.Errorf("content = %v", body["content"])
	}
	meta := body["metadata"].(map[string]any)
	if _, present := meta["relative_path"]; present {
		t.Error("file mode metadata should omit relative_path")
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/save", SaveRequest{Content: "updated"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
}

func TestFileTree(t *testing.T) {
	srv, _ := folderServer(t, map[string]string{
		"README.md":     "r",
		"docs/guide.md": "g",
	})

	resp, err := http.Get(srv.URL + "/api/file-tree")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	var tree storage.TreeNode
	if err := json.NewDecoder(resp.Body).Decode(&tree); err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 2 {
		t.Fatalf("top-level children = %d, want 2", len(tree.Children))
	}
	// Folders sort before files.
	if tree.Children[0].Name != "docs" || tree.Children[0].Type != "folder" {
		t.Errorf("first child = %+v, want docs folder", tree.Children[0])
	}
	if tree.Children[1].Name != "README.md" {
		t.Errorf("second child = %+v, want README.md", tree.Children[1])
	}
}

func TestFileTreeFileMode(t *testing.T) {
	srv, _ := fileServer(t, "x")
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/file-tree", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateRenameDelete(t *testing.T) {
	srv, _ := folderServer(t, map[string]string{"existing.md": "x"})

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/files/create",
		CreateFileRequest{Path: "sub/new.md"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d: %v", resp.StatusCode, body)
	}
	if body["path"] != "sub/new.md" {
		t.Errorf("created path = %v", body["path"])
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/files/create",
		CreateFileRequest{Path: "sub/new.md"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate create status = %d, want 409", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/files/create",
		CreateFileRequest{Path: "../outside.md"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal create status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/files/rename",
		RenameFileRequest{Path: "sub/new.md", NewName: "existing.md"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("rename to unique name in sub/ should work, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/files/rename",
		RenameFileRequest{Path: "existing.md", NewName: "bad/name.md"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("separator in new name status = %d, want 400", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/files/delete",
		DeleteFileRequest{Path: "missing.md"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("delete missing status = %d, want 404", resp.StatusCode)
	}

	resp, body = doJSON(t, http.MethodDelete, srv.URL+"/api/files/delete",
		DeleteFileRequest{Path: "existing.md"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status = %d", resp.StatusCode)
	}
	if body["ok"] != true {
		t.Errorf("delete body = %v", body)
	}
}

func TestRenameConflictLeavesSourceIntact(t *testing.T) {
	srv, svc := folderServer(t, map[string]string{"a.md": "alpha", "b.md": "beta"})

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/files/rename",
		RenameFileRequest{Path: "a.md", NewName: "b.md"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want 409", resp.StatusCode)
	}

	doc, err := svc.Content("a.md")
	if err != nil || doc.Content != "alpha" {
		t.Errorf("source should be untouched: %v, %v", doc, err)
	}
}

func TestFileOpsAbsentInFileMode(t *testing.T) {
	srv, _ := fileServer(t, "x")
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/files/create",
		CreateFileRequest{Path: "new.md"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404 (route not mounted)", resp.StatusCode)
	}
}

func TestSearchEndpoint(t *testing.T) {
	srv, _ := folderServer(t, map[string]string{"note.md": "old"})

	// Index through the save path.
	doJSON(t, http.MethodPost, srv.URL+"/api/save",
		SaveRequest{Content: "# Note\n\nthe quick brown fox", File: "note.md"})

	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/search", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing q status = %d, want 400", resp.StatusCode)
	}

	resp2, err := http.Get(srv.URL + "/api/search?q=fox")
	if err != nil {
		t.Fatal(err)
	}
	defer resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Fatalf("search status = %d", resp2.StatusCode)
	}
	var body SearchResponse
	if err := json.NewDecoder(resp2.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if len(body.Results) != 1 || body.Results[0].Path != "note.md" {
		t.Errorf("results = %+v, want one hit for note.md", body.Results)
	}
}

func TestImageUploadAndServe(t *testing.T) {
	srv, _ := folderServer(t, nil)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "shot.png")
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte{0x89, 0x50, 0x4e, 0x47})
	mw.Close()

	resp, err := http.Post(srv.URL+"/api/images", mw.FormDataContentType(), &buf)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var img struct {
		Path     string `json:"path"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&img); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(img.Path, "images/shot-") {
		t.Errorf("path = %q", img.Path)
	}

	served, err := http.Get(srv.URL + "/" + img.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer served.Body.Close()
	if served.StatusCode != http.StatusOK {
		t.Errorf("serve status = %d", served.StatusCode)
	}

	bad, err := http.Get(srv.URL + "/images/..%2Fsecret.md")
	if err != nil {
		t.Fatal(err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Errorf("traversal serve status = %d, want 400", bad.StatusCode)
	}
}

func TestAuthMiddleware(t *testing.T) {
	ws := testutil.TempWorkspace(t, map[string]string{"a.md": "x"})
	svc := docservice.NewFolderService(ws, nil, &watch.Marker{}, testutil.Logger())

	r := chi.NewRouter()
	r.Mount("/api", NewRouter(svc, true, "secret", nil))
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL + "/api/mode")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token status = %d, want 401", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/mode", nil)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusOK {
		t.Errorf("valid token status = %d, want 200", resp2.StatusCode)
	}
}
