package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/detectdash/client/models"
)

type EventSource interface {
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

type JournalHandler struct {
	events EventSource
}

func NewJournalHandler(events EventSource) *JournalHandler {
	return &JournalHandler{events: events}
}

func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	events, err := h.events.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
