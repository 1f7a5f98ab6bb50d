// Package models defines the domain types shared by the HTTP and MCP
// surfaces.
package models

import "github.com/elena-cabrera/markdown-os/internal/storage"

// Document is the full representation of one markdown file: its content
// plus the on-disk metadata. RelativePath is set in folder mode only.
type Document struct {
	Content      string
	Metadata     storage.Metadata
	RelativePath string
}

// Image describes a stored editor upload.
type Image struct {
	Path     string `json:"path"`     // workspace-relative, e.g. images/shot-20240101-120000.png
	Filename string `json:"filename"` // final sanitized file name
}
