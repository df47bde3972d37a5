package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/detectdash/client/models"
	"github.com/detectdash/client/services"
)

// SessionHandler exposes the controller's actions. Action failures are part
// of the session state, so they answer 200 with the view and an error field.
type SessionHandler struct {
	ctrl       *services.Controller
	stagingDir string
	logger     *slog.Logger
}

func NewSessionHandler(ctrl *services.Controller, stagingDir string, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		ctrl:       ctrl,
		stagingDir: stagingDir,
		logger:     logger,
	}
}

type ActionResponse struct {
	View      models.View `json:"view"`
	Error     string      `json:"error,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
}

func errorKind(err error) string {
	var (
		validation *services.ValidationError
		upload     *services.UploadError
		process    *services.ProcessError
		fetch      *services.ResultsFetchError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &validation):
		return "validation"
	case errors.As(err, &upload):
		return "upload"
	case errors.As(err, &process):
		return "process"
	case errors.As(err, &fetch):
		return "results_fetch"
	case errors.Is(err, services.ErrStaleResponse):
		return "stale"
	default:
		return "internal"
	}
}

func (h *SessionHandler) respond(w http.ResponseWriter, err error) {
	resp := ActionResponse{View: h.ctrl.View(), ErrorKind: errorKind(err)}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Get returns the current view. An optional ?page=n moves to that page first.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			writeError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
		h.ctrl.SetPage(n)
	}
	writeJSON(w, http.StatusOK, h.ctrl.View())
}

// SelectFile accepts either a JSON body {"path": "..."} naming a local file
// or a multipart form with the video in field "file".
func (h *SessionHandler) SelectFile(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		file *services.LocalFile
		err  error
	)
	if strings.HasPrefix(mediaType, "multipart/") {
		file, err = h.stageMultipart(r)
	} else {
		var req struct {
			Path string `json:"path"`
		}
		if decErr := json.NewDecoder(r.Body).Decode(&req); decErr != nil || req.Path == "" {
			h.logger.Warn("bad select request", "err", decErr)
			writeError(w, http.StatusBadRequest, "path is required")
			return
		}
		file, err = services.NewLocalFile(req.Path)
	}
	if err != nil {
		h.logger.Warn("selecting video failed", "media_type", mediaType, "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.logger.Debug("video ready for selection", "path", file.Path(), "bytes", file.Size())

	_, err = h.ctrl.SelectFile(file)
	h.respond(w, err)
}

func (h *SessionHandler) stageMultipart(r *http.Request) (*services.LocalFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errors.New("multipart field \"file\" is required")
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() != "file" {
			part.Close()
			continue
		}
		defer part.Close()
		return services.StageUpload(h.stagingDir, part, part.FileName())
	}
}

// Upload, Process and Refresh detach from the request context: a client
// going away does not abort a call that is already in flight.

func (h *SessionHandler) Upload(w http.ResponseWriter, r *http.Request) {
	_, err := h.ctrl.Upload(context.WithoutCancel(r.Context()))
	h.respond(w, err)
}

func (h *SessionHandler) Process(w http.ResponseWriter, r *http.Request) {
	_, err := h.ctrl.Process(context.WithoutCancel(r.Context()))
	h.respond(w, err)
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, err := h.ctrl.RefreshResults(context.WithoutCancel(r.Context()))
	h.respond(w, err)
}

func (h *SessionHandler) SetPage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Page int `json:"page"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("bad page request", "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.ctrl.SetPage(req.Page)
	h.respond(w, nil)
}

func (h *SessionHandler) NextPage(w http.ResponseWriter, r *http.Request) {
	h.ctrl.NextPage()
	h.respond(w, nil)
}

func (h *SessionHandler) PrevPage(w http.ResponseWriter, r *http.Request) {
	h.ctrl.PrevPage()
	h.respond(w, nil)
}
