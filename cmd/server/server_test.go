package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/detectdash/client/api"
	"github.com/detectdash/client/models"
	"github.com/detectdash/client/services"
)

// detector fakes the remote detection backend.
func detector(t *testing.T, n int) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"Object Detection API"}`))
	})
	r.Post("/upload/", func(w http.ResponseWriter, r *http.Request) {
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"message":"Video uploaded successfully","video_id":"vid-42"}`))
	})
	r.Post("/process/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"message":"Processing completed"}`))
	})
	r.Get("/detections/{id}", func(w http.ResponseWriter, r *http.Request) {
		dets := make([]models.Detection, n)
		for i := range dets {
			dets[i] = models.Detection{Frame: i, Confidence: 0.9, BBox: [4]float64{0, 0, 10, 10}}
		}
		json.NewEncoder(w).Encode(models.DetectionsResponse{VideoID: chi.URLParam(r, "id"), Detections: dets})
	})
	r.Get("/videos", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"videos":[{"_id":"vid-42","filename":"clip.mp4","filepath":"uploads/clip.mp4"}]}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T, backendURL string) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := services.NewBackendClient(backendURL, services.BackendOptions{Timeout: 5 * time.Second, Logger: logger})
	journal, err := services.NewJournal()
	if err != nil {
		t.Fatalf("NewJournal: %v", err)
	}
	t.Cleanup(func() { journal.Close() })

	ctrl := services.NewController(backend, services.ControllerConfig{
		PreviewURL: api.OriginalPreviewURL,
		Recorder:   journal,
		Logger:     logger,
	})
	return NewRouter(Deps{
		Backend:    backend,
		Controller: ctrl,
		Journal:    journal,
		StagingDir: t.TempDir(),
		Logger:     logger,
	})
}

func call(t *testing.T, h http.Handler, method, path, contentType string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeAction(t *testing.T, rec *httptest.ResponseRecorder) api.ActionResponse {
	t.Helper()
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp api.ActionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding %s: %v", rec.Body.String(), err)
	}
	return resp
}

func TestDashboardWorkflow(t *testing.T) {
	h := newTestRouter(t, detector(t, 15).URL)

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(videoPath, []byte("not really a video"), 0o644); err != nil {
		t.Fatal(err)
	}

	resp := decodeAction(t, call(t, h, http.MethodPost, "/api/session/file", "application/json",
		strings.NewReader(fmt.Sprintf(`{"path":%q}`, videoPath))))
	if resp.View.Session.Status != models.StatusSelected || !resp.View.CanUpload {
		t.Fatalf("after select: %+v", resp.View)
	}

	resp = decodeAction(t, call(t, h, http.MethodPost, "/api/upload", "", nil))
	if resp.Error != "" || resp.View.Session.VideoID != "vid-42" {
		t.Fatalf("after upload: error=%q view=%+v", resp.Error, resp.View)
	}
	preview := resp.View.Session.OriginalPreviewURL
	if !strings.HasPrefix(preview, "/media/original?session=") {
		t.Errorf("original preview = %q", preview)
	}

	resp = decodeAction(t, call(t, h, http.MethodPost, "/api/process", "", nil))
	if resp.Error != "" || resp.View.Session.Status != models.StatusProcessed {
		t.Fatalf("after process: error=%q status=%s", resp.Error, resp.View.Session.Status)
	}
	if !strings.HasSuffix(resp.View.Session.ProcessedPreviewURL, "/static/results/vid-42.mp4") {
		t.Errorf("processed preview = %q", resp.View.Session.ProcessedPreviewURL)
	}
	if pv := resp.View.PageView; pv.TotalPages != 2 || len(pv.Items) != 10 {
		t.Errorf("page view = %d items of %d pages", len(pv.Items), pv.TotalPages)
	}

	resp = decodeAction(t, call(t, h, http.MethodPost, "/api/page/next", "", nil))
	if pv := resp.View.PageView; pv.Page != 2 || len(pv.Items) != 5 || pv.Items[0].Frame != 10 {
		t.Errorf("page 2 = %+v", pv)
	}

	rec := call(t, h, http.MethodGet, "/api/session?page=9", "", nil)
	var view models.View
	if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.PageView.Page != 2 {
		t.Errorf("page after ?page=9 = %d, want 2", view.PageView.Page)
	}

	rec = call(t, h, http.MethodGet, preview, "", nil)
	if rec.Code != http.StatusOK || rec.Body.String() != "not really a video" {
		t.Errorf("original preview: %d %q", rec.Code, rec.Body.String())
	}

	rec = call(t, h, http.MethodGet, "/api/journal?limit=2", "", nil)
	var journal struct {
		Events []models.Event `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &journal); err != nil {
		t.Fatal(err)
	}
	if len(journal.Events) != 2 || journal.Events[0].Kind != "process_complete" {
		t.Errorf("journal = %+v", journal.Events)
	}
}

func TestDashboardMultipartSelect(t *testing.T) {
	h := newTestRouter(t, detector(t, 0).URL)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, _ := mw.CreateFormFile("file", "picked.mov")
	part.Write([]byte("mov bytes"))
	mw.Close()

	resp := decodeAction(t, call(t, h, http.MethodPost, "/api/session/file", mw.FormDataContentType(), &buf))
	if resp.View.Session.FileName != "picked.mov" {
		t.Errorf("FileName = %q", resp.View.Session.FileName)
	}

	decodeAction(t, call(t, h, http.MethodPost, "/api/upload", "", nil))
	resp = decodeAction(t, call(t, h, http.MethodPost, "/api/process", "", nil))
	if resp.View.StatusMessage != "Processing complete. No objects were detected." {
		t.Errorf("StatusMessage = %q", resp.View.StatusMessage)
	}
}

func TestDashboardActionErrors(t *testing.T) {
	h := newTestRouter(t, detector(t, 1).URL)

	resp := decodeAction(t, call(t, h, http.MethodPost, "/api/process", "", nil))
	if resp.ErrorKind != "validation" {
		t.Errorf("process without upload: kind = %q", resp.ErrorKind)
	}

	resp = decodeAction(t, call(t, h, http.MethodPost, "/api/upload", "", nil))
	if resp.ErrorKind != "validation" || resp.View.StatusMessage != "Please select a video first." {
		t.Errorf("upload without file: kind=%q message=%q", resp.ErrorKind, resp.View.StatusMessage)
	}

	rec := call(t, h, http.MethodPost, "/api/session/file", "application/json", strings.NewReader(`{}`))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("select without path: %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/api/session?page=abc", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("non-numeric page: %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/media/original", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("original without selection: %d", rec.Code)
	}

	rec = call(t, h, http.MethodGet, "/api/journal?limit=0", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("journal limit=0: %d", rec.Code)
	}
}

func TestDashboardUploadFailure(t *testing.T) {
	r := chi.NewRouter()
	r.Post("/upload/", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Invalid file format"}`, http.StatusBadRequest)
	})
	srv := httptest.NewServer(r)
	defer srv.Close()
	h := newTestRouter(t, srv.URL)

	videoPath := filepath.Join(t.TempDir(), "clip.mp4")
	os.WriteFile(videoPath, []byte("x"), 0o644)
	decodeAction(t, call(t, h, http.MethodPost, "/api/session/file", "application/json",
		strings.NewReader(fmt.Sprintf(`{"path":%q}`, videoPath))))

	resp := decodeAction(t, call(t, h, http.MethodPost, "/api/upload", "", nil))
	if resp.ErrorKind != "upload" || resp.View.Session.Status != models.StatusUploadFailed {
		t.Errorf("kind=%q status=%s", resp.ErrorKind, resp.View.Session.Status)
	}
	if resp.View.Session.VideoID != "" {
		t.Errorf("VideoID = %q after failed upload", resp.View.Session.VideoID)
	}
}

func TestDashboardProxyRoutes(t *testing.T) {
	h := newTestRouter(t, detector(t, 0).URL)

	rec := call(t, h, http.MethodGet, "/api/health", "", nil)
	var health map[string]string
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "ok" || health["backend"] != "ok" {
		t.Errorf("health = %v", health)
	}

	rec = call(t, h, http.MethodGet, "/api/videos", "", nil)
	var videos models.VideosResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &videos); err != nil {
		t.Fatal(err)
	}
	if len(videos.Videos) != 1 || videos.Videos[0].ID != "vid-42" {
		t.Errorf("videos = %+v", videos)
	}
}

func TestDashboardHealthWithBackendDown(t *testing.T) {
	h := newTestRouter(t, "http://127.0.0.1:1")

	rec := call(t, h, http.MethodGet, "/api/health", "", nil)
	var health map[string]string
	json.Unmarshal(rec.Body.Bytes(), &health)
	if health["status"] != "ok" || health["backend"] != "unavailable" {
		t.Errorf("health = %v", health)
	}
}
