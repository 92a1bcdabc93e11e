package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prodcat/apiserver/internal/services"
)

// ImageHandler serves stored product images.
type ImageHandler struct {
	productService *services.ProductService
}

// ImageRouter registers the static image route on the given router.
// Images are public: the catalog renders them without credentials.
func ImageRouter(r chi.Router, productService *services.ProductService) {
	handler := &ImageHandler{productService: productService}
	r.Get("/images/{filename}", handler.GetImage)
}

func (h *ImageHandler) GetImage(w http.ResponseWriter, r *http.Request) {
	filename := strings.TrimSpace(chi.URLParam(r, "filename"))
	if filename == "" {
		writeError(w, http.StatusBadRequest, "filename is required")
		return
	}

	reader, contentType, err := h.productService.OpenImage(r.Context(), filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")
	if _, err := io.Copy(w, reader); err != nil {
		// Response already started; nothing useful left to send.
		return
	}
}
