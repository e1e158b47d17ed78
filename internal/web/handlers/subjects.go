package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/checkpoint/internal/database"
	"github.com/kozaktomas/checkpoint/internal/logger"
)

// SubjectsHandler serves enrolled subjects' reference images.
type SubjectsHandler struct {
	gallery database.GalleryReader
	log     *logger.Logger
}

// NewSubjectsHandler creates a new subjects handler
func NewSubjectsHandler(gallery database.GalleryReader, log *logger.Logger) *SubjectsHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SubjectsHandler{gallery: gallery, log: log}
}

// Photo writes the stored reference image of subject {id}.
func (h *SubjectsHandler) Photo(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, http.StatusBadRequest, "invalid subject id")
		return
	}

	data, err := h.gallery.ReferenceImage(r.Context(), id)
	if err != nil {
		h.log.Error("reference image lookup failed", "subject_id", id, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to load photo")
		return
	}
	if len(data) == 0 {
		respondError(w, http.StatusNotFound, "Photo not found")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
