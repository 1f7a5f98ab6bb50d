// Package mcpserver exposes the document workspace as MCP (Model
// Context Protocol) tools over stdio, so LLM clients can read, save and
// search the same files the browser editor does.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
	"github.com/elena-cabrera/markdown-os/internal/example"
)

// Server wraps the MCP server with document tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates an MCP server over a folder-mode document service.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Markdown-OS",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List every markdown document in the workspace as relative paths."),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a markdown document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document (e.g. docs/guide.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("save_document",
		mcp.WithDescription("Replace the content of an existing markdown document. The write is atomic."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the document")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full replacement markdown content")),
	), s.saveDocument)

	s.mcp.AddTool(mcp.NewTool("create_document",
		mcp.WithDescription("Create a new empty markdown document at the given relative path."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new document (must end with .md)")),
	), s.createDocument)

	s.mcp.AddTool(mcp.NewTool("search_documents",
		mcp.WithDescription("Full-text search over document titles and content."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.searchDocuments)

	s.mcp.AddTool(newUploadImageTool(), s.uploadImage)

	// Resource: bundled showcase document.
	s.mcp.AddResource(
		mcp.NewResource("markdown-os://example", "Example Document",
			mcp.WithResourceDescription("Showcase markdown demonstrating the editor's features."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readExampleResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) listDocuments(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	files, err := s.svc.List()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(files, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Content(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) saveDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.Save(path, content)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("save %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("saved %s (%d bytes)", doc.RelativePath, doc.Metadata.SizeBytes)), nil
}

func (s *Server) createDocument(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rel, err := s.svc.Create(path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("create %s: %v", path, err)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created %s", rel)), nil
}

func (s *Server) searchDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits, err := s.svc.Search(query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.MarshalIndent(hits, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) readExampleResource(_ context.Context, req mcp.ReadResourceRequest) (
	[]mcp.ResourceContents, error,
) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "text/markdown",
			Text:     example.Document,
		},
	}, nil
}
