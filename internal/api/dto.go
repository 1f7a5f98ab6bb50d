package api

import (
	"time"

	"github.com/elena-cabrera/markdown-os/internal/models"
	"github.com/elena-cabrera/markdown-os/internal/search"
	"github.com/elena-cabrera/markdown-os/internal/storage"
)

// ModeResponse reports the editor mode.
type ModeResponse struct {
	Mode string `json:"mode"`
}

// MetadataDTO is the wire form of document metadata. RelativePath is
// present in folder mode only.
type MetadataDTO struct {
	Path         string    `json:"path"`
	SizeBytes    int64     `json:"size_bytes"`
	ModifiedAt   time.Time `json:"modified_at"`
	CreatedAt    time.Time `json:"created_at"`
	RelativePath string    `json:"relative_path,omitempty"`
}

func metadataDTO(meta storage.Metadata, relativePath string) MetadataDTO {
	return MetadataDTO{
		Path:         meta.Path,
		SizeBytes:    meta.SizeBytes,
		ModifiedAt:   meta.ModifiedAt,
		CreatedAt:    meta.CreatedAt,
		RelativePath: relativePath,
	}
}

// ContentResponse is the payload for GET /api/content.
type ContentResponse struct {
	Content  string      `json:"content"`
	Metadata MetadataDTO `json:"metadata"`
}

func contentResponse(doc *models.Document) ContentResponse {
	return ContentResponse{
		Content:  doc.Content,
		Metadata: metadataDTO(doc.Metadata, doc.RelativePath),
	}
}

// SaveRequest is the body of POST /api/save. File is required in folder
// mode and ignored in file mode.
type SaveRequest struct {
	Content string `json:"content"`
	File    string `json:"file,omitempty"`
}

// SaveResponse confirms a save and carries the fresh metadata.
type SaveResponse struct {
	Status   string      `json:"status"`
	Metadata MetadataDTO `json:"metadata"`
}

// CreateFileRequest is the body of POST /api/files/create.
type CreateFileRequest struct {
	Path string `json:"path"`
}

// RenameFileRequest is the body of POST /api/files/rename.
type RenameFileRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

// DeleteFileRequest is the body of DELETE /api/files/delete.
type DeleteFileRequest struct {
	Path string `json:"path"`
}

// PathResponse returns the normalized relative path of a created or
// renamed file.
type PathResponse struct {
	Path string `json:"path"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []search.Result `json:"results"`
}
