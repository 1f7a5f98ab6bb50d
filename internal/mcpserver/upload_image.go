package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

func newUploadImageTool() mcp.Tool {
	return mcp.NewTool("upload_image",
		mcp.WithDescription("Store a base64-encoded image in the workspace images directory "+
			"and return the relative path to embed in markdown."),
		mcp.WithString("filename", mcp.Required(),
			mcp.Description("Original file name; its extension selects the format (png, jpg, gif, webp, svg, bmp, ico)")),
		mcp.WithString("data", mcp.Required(),
			mcp.Description("Base64-encoded image bytes, 10 MB maximum")),
	)
}

func (s *Server) uploadImage(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	encoded, err := req.RequireString("data")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return mcp.NewToolResultError("data is not valid base64: " + err.Error()), nil
	}
	img, err := s.svc.SaveImage(filename, data)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out, _ := json.Marshal(img)
	return mcp.NewToolResultText(string(out)), nil
}
