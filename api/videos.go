package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/detectdash/client/models"
	"github.com/detectdash/client/services"
)

type VideoLister interface {
	ListVideos(ctx context.Context) ([]models.VideoRecord, error)
}

type VideoHandler struct {
	ctrl    *services.Controller
	backend VideoLister
}

func NewVideoHandler(ctrl *services.Controller, backend VideoLister) *VideoHandler {
	return &VideoHandler{ctrl: ctrl, backend: backend}
}

// OriginalPreviewURL points the dashboard at Original for the given session.
func OriginalPreviewURL(sessionID string, _ models.VideoFile) string {
	return "/media/original?session=" + url.QueryEscape(sessionID)
}

// Original serves the currently selected local video.
// Range requests work, so the player can seek.
func (h *VideoHandler) Original(w http.ResponseWriter, r *http.Request) {
	s := h.ctrl.Snapshot()
	if id := r.URL.Query().Get("session"); id != "" && id != s.ID {
		http.Error(w, "preview belongs to a previous session", http.StatusGone)
		return
	}
	lf, ok := s.File.(*services.LocalFile)
	if !ok {
		http.Error(w, "no video selected", http.StatusNotFound)
		return
	}
	http.ServeFile(w, r, lf.Path())
}

func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	videos, err := h.backend.ListVideos(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"videos": videos})
}
