package server

import (
	"net/http"

	"clubsite/media"
	"clubsite/store"
)

const maxUploadForm = 12 << 20

// handleGallery serves /api/events/{id}/gallery: GET lists stored images,
// POST uploads one from a multipart form.
func (s *Server) handleGallery(w http.ResponseWriter, r *http.Request, eventID string) {
	if eventID == "" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if !s.cfg.Gallery.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "gallery storage not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.listGallery(w, r, eventID)
	case http.MethodPost:
		s.uploadGalleryImage(w, r, eventID)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) listGallery(w http.ResponseWriter, r *http.Request, eventID string) {
	images, err := s.cfg.Gallery.List(r.Context(), eventID)
	if err != nil {
		s.cfg.Logger.Error("Failed to list gallery", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list gallery")
		return
	}
	if images == nil {
		images = []*media.Image{}
	}
	writeJSON(w, http.StatusOK, images)
}

func (s *Server) uploadGalleryImage(w http.ResponseWriter, r *http.Request, eventID string) {
	if !s.requireAdmin(w, r) || !s.requireStore(w) {
		return
	}

	// Uploads are tied to a real event so stray ids cannot fill the bucket.
	if _, err := s.cfg.Store.GetEvent(r.Context(), eventID); err != nil {
		if store.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		s.cfg.Logger.Error("Failed to load event", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load event")
		return
	}

	if err := r.ParseMultipartForm(maxUploadForm); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			s.cfg.Logger.Debug("Failed to close upload", "error", err)
		}
	}()

	img, err := s.cfg.Gallery.Upload(r.Context(), eventID, header.Filename, file)
	if err != nil {
		s.cfg.Logger.Warn("Gallery upload rejected", "event_id", eventID, "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, img)
}
