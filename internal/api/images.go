package api

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
)

// ImageHandler serves editor image uploads: multipart POSTs into the
// workspace images directory and traversal-guarded reads back out.
type ImageHandler struct {
	svc *docservice.Service
}

// NewImageHandler creates a new ImageHandler.
func NewImageHandler(svc *docservice.Service) *ImageHandler {
	return &ImageHandler{svc: svc}
}

// Upload handles POST /api/images with a multipart "file" field.
func (h *ImageHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, docservice.MaxImageSize+1<<20)
	if err := r.ParseMultipartForm(docservice.MaxImageSize); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' form field"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, docservice.MaxImageSize+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	img, err := h.svc.SaveImage(header.Filename, data)
	if err != nil {
		writeError(w, "upload image", err)
		return
	}
	writeJSON(w, http.StatusOK, img)
}

// Serve handles GET /images/*. The wildcard is re-checked against the
// images directory after cleaning, so encoded traversal never escapes.
func (h *ImageHandler) Serve(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "*")
	if name == "" || strings.Contains(name, "..") || strings.HasPrefix(name, "/") {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image path"))
		return
	}

	root := h.svc.ImagesDir()
	target := filepath.Clean(filepath.Join(root, filepath.FromSlash(name)))
	if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid image path"))
		return
	}

	info, err := os.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		writeJSON(w, http.StatusNotFound, errorBody("image not found"))
		return
	}
	http.ServeFile(w, r, target)
}
