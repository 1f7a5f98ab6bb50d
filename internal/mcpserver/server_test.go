package mcpserver

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/testutil"
	"github.com/elena-cabrera/markdown-os/internal/watch"
)

func testServer(t *testing.T, files map[string]string) (*Server, *docservice.Service) {
	t.Helper()
	ws := testutil.TempWorkspace(t, files)
	svc := docservice.NewFolderService(ws, testutil.OpenIndex(t), &watch.Marker{}, testutil.Logger())
	return New(svc), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error
	switch name {
	case "list_documents":
		result, err = srv.listDocuments(ctx, req)
	case "read_document":
		result, err = srv.readDocument(ctx, req)
	case "save_document":
		result, err = srv.saveDocument(ctx, req)
	case "create_document":
		result, err = srv.createDocument(ctx, req)
	case "search_documents":
		result, err = srv.searchDocuments(ctx, req)
	case "upload_image":
		result, err = srv.uploadImage(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if len(r.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := r.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", r.Content[0])
	}
	return tc.Text
}

func TestListDocuments(t *testing.T) {
	srv, _ := testServer(t, map[string]string{
		"README.md":     "r",
		"docs/guide.md": "g",
	})

	res := callTool(t, srv, "list_documents", nil)
	text := resultText(t, res)
	for _, want := range []string{"README.md", "docs/guide.md"} {
		if !strings.Contains(text, want) {
			t.Errorf("list missing %s: %s", want, text)
		}
	}
}

func TestReadAndSaveDocument(t *testing.T) {
	srv, svc := testServer(t, map[string]string{"note.md": "original"})

	res := callTool(t, srv, "read_document", map[string]any{"path": "note.md"})
	if got := resultText(t, res); got != "original" {
		t.Errorf("read = %q", got)
	}

	res = callTool(t, srv, "save_document", map[string]any{
		"path": "note.md", "content": "rewritten",
	})
	if res.IsError {
		t.Fatalf("save failed: %s", resultText(t, res))
	}

	doc, err := svc.Content("note.md")
	if err != nil || doc.Content != "rewritten" {
		t.Errorf("content after save = %v, %v", doc, err)
	}
}

func TestReadDocumentTraversalRejected(t *testing.T) {
	srv, _ := testServer(t, nil)
	res := callTool(t, srv, "read_document", map[string]any{"path": "../outside.md"})
	if !res.IsError {
		t.Fatal("traversal read should error")
	}
}

func TestCreateDocument(t *testing.T) {
	srv, svc := testServer(t, nil)

	res := callTool(t, srv, "create_document", map[string]any{"path": "fresh.md"})
	if res.IsError {
		t.Fatalf("create failed: %s", resultText(t, res))
	}
	if !svc.Validate("fresh.md") {
		t.Error("created document should validate")
	}

	res = callTool(t, srv, "create_document", map[string]any{"path": "fresh.md"})
	if !res.IsError {
		t.Error("duplicate create should error")
	}
}

func TestSearchDocuments(t *testing.T) {
	srv, _ := testServer(t, map[string]string{"note.md": "placeholder"})
	callTool(t, srv, "save_document", map[string]any{
		"path": "note.md", "content": "# Note\n\nthe quick brown fox",
	})

	res := callTool(t, srv, "search_documents", map[string]any{"query": "fox"})
	if res.IsError {
		t.Fatalf("search failed: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "note.md") {
		t.Errorf("search result missing note.md: %s", resultText(t, res))
	}
}

func TestUploadImage(t *testing.T) {
	srv, _ := testServer(t, nil)

	res := callTool(t, srv, "upload_image", map[string]any{
		"filename": "shot.png",
		"data":     base64.StdEncoding.EncodeToString([]byte{0x89, 0x50}),
	})
	if res.IsError {
		t.Fatalf("upload failed: %s", resultText(t, res))
	}
	if !strings.Contains(resultText(t, res), "images/shot-") {
		t.Errorf("unexpected upload result: %s", resultText(t, res))
	}

	res = callTool(t, srv, "upload_image", map[string]any{
		"filename": "shot.png",
		"data":     "not base64!!!",
	})
	if !res.IsError {
		t.Error("invalid base64 should error")
	}
}
