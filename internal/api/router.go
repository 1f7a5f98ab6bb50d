package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/elena-cabrera/markdown-os/internal/docservice"
)

// NewRouter creates the /api subrouter. authEnabled controls whether
// Bearer token auth is enforced. sseHandler, if non-nil, is mounted at
// GET /events inside the auth group. File management, search and image
// upload routes exist in folder mode only; chi answers 404 for them in
// file mode.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)
	ih := NewImageHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/mode", h.GetMode)
	r.Get("/content", h.GetContent)
	r.Post("/save", h.SaveContent)
	r.Get("/file-tree", h.GetFileTree)
	r.Post("/images", ih.Upload)

	if svc.Mode() == docservice.ModeFolder {
		r.Post("/files/create", h.CreateFile)
		r.Post("/files/rename", h.RenameFile)
		r.Delete("/files/delete", h.DeleteFile)
		r.Get("/search", h.Search)
	}

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
