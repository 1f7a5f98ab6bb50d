package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/elena-cabrera/markdown-os/internal/apperr"
	"github.com/elena-cabrera/markdown-os/internal/docservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc *docservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *docservice.Service) *Handler {
	return &Handler{svc: svc}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrAlreadyExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a JSON error body, logging server faults.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

// GetMode handles GET /api/mode.
func (h *Handler) GetMode(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ModeResponse{Mode: string(h.svc.Mode())})
}

// GetContent handles GET /api/content. The file query parameter selects
// the document in folder mode and is ignored in file mode.
func (h *Handler) GetContent(w http.ResponseWriter, r *http.Request) {
	rel := r.URL.Query().Get("file")
	if h.svc.Mode() == docservice.ModeFolder && rel == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' query parameter"))
		return
	}
	doc, err := h.svc.Content(rel)
	if err != nil {
		writeError(w, "get content", err)
		return
	}
	writeJSON(w, http.StatusOK, contentResponse(doc))
}

// SaveContent handles POST /api/save.
func (h *Handler) SaveContent(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 32<<20)
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if h.svc.Mode() == docservice.ModeFolder && req.File == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' in request body"))
		return
	}
	doc, err := h.svc.Save(req.File, req.Content)
	if err != nil {
		writeError(w, "save content", err)
		return
	}
	writeJSON(w, http.StatusOK, SaveResponse{
		Status:   "saved",
		Metadata: metadataDTO(doc.Metadata, doc.RelativePath),
	})
}

// GetFileTree handles GET /api/file-tree. Folder mode only.
func (h *Handler) GetFileTree(w http.ResponseWriter, _ *http.Request) {
	tree, err := h.svc.Tree()
	if err != nil {
		writeError(w, "file tree", err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

// CreateFile handles POST /api/files/create.
func (h *Handler) CreateFile(w http.ResponseWriter, r *http.Request) {
	var req CreateFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	rel, err := h.svc.Create(req.Path)
	if err != nil {
		writeError(w, "create file", err)
		return
	}
	writeJSON(w, http.StatusCreated, PathResponse{Path: rel})
}

// RenameFile handles POST /api/files/rename.
func (h *Handler) RenameFile(w http.ResponseWriter, r *http.Request) {
	var req RenameFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	rel, err := h.svc.Rename(req.Path, req.NewName)
	if err != nil {
		writeError(w, "rename file", err)
		return
	}
	writeJSON(w, http.StatusOK, PathResponse{Path: rel})
}

// DeleteFile handles DELETE /api/files/delete.
func (h *Handler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	var req DeleteFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if err := h.svc.Delete(req.Path); err != nil {
		writeError(w, "delete file", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Search handles GET /api/search. Folder mode only.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'q' query parameter"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	hits, err := h.svc.Search(query, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits})
}
