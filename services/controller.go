package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/detectdash/client/models"
)

type ControllerConfig struct {
	PageSize          int
	AllowedExtensions []string
	// VerifyProcessedVideo probes the conventional processed-video URL after
	// processing instead of trusting that the file is there.
	VerifyProcessedVideo bool
	// PreviewURL derives the original-video preview for a selected file.
	// Defaults to FilePreviewURL.
	PreviewURL func(sessionID string, file models.VideoFile) string
	Recorder   Recorder
	Logger     *slog.Logger
}

// Controller owns the single Session and sequences the upload, process and
// results-fetch calls against the backend.
//
// The mutex is released while a backend call is in flight. Each action
// remembers which session it started for and drops its response if the
// session has been reset in the meantime.
type Controller struct {
	backend Backend
	cfg     ControllerConfig
	logger  *slog.Logger

	mu         sync.Mutex
	session    models.Session
	uploading  bool
	processing bool
}

func NewController(backend Backend, cfg ControllerConfig) *Controller {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = DefaultAllowedExtensions
	}
	if cfg.PreviewURL == nil {
		cfg.PreviewURL = FilePreviewURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
		session: newSession(),
	}
}

func newSession() models.Session {
	return models.Session{
		ID:         uuid.NewString(),
		Detections: []models.Detection{},
		Status:     models.StatusIdle,
		Page:       1,
	}
}

// SelectFile makes file the session's video. If the session holds anything
// from an earlier upload, or an action is still in flight, the whole session
// is reset first.
func (c *Controller) SelectFile(file models.VideoFile) (models.Status, error) {
	if file == nil {
		return c.refuse("select", ErrNoFile, "Please select a video first.")
	}

	c.mu.Lock()
	reset := c.hasResidueLocked() || c.uploading || c.processing
	if reset {
		c.session = newSession()
	}
	c.session.File = file
	c.session.FileName = file.Name()
	c.session.Status = models.StatusSelected
	c.session.Notice = ""
	ev := c.eventLocked("file_selected", file.Name())
	c.mu.Unlock()

	c.logger.Info("video selected", "file", file.Name(), "session", ev.SessionID, "reset", reset)
	c.record(context.Background(), ev)
	return models.StatusSelected, nil
}

// hasResidueLocked reports whether the session carries state from an upload.
// VideoID alone is not enough: a failed re-upload clears it but keeps the
// previous results.
func (c *Controller) hasResidueLocked() bool {
	s := &c.session
	return s.VideoID != "" ||
		len(s.Detections) > 0 ||
		s.OriginalPreviewURL != "" ||
		s.ProcessedPreviewURL != "" ||
		s.ProcessedVideoMissing ||
		s.Page != 1
}

// Upload sends the selected file to the backend.
func (c *Controller) Upload(ctx context.Context) (models.Status, error) {
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return c.refuse("upload", ErrUploadInFlight, "")
	}
	file := c.session.File
	if file == nil {
		c.mu.Unlock()
		return c.refuse("upload", ErrNoFile, "Please select a video first.")
	}
	if !HasAllowedExtension(file.Name(), c.cfg.AllowedExtensions) {
		c.mu.Unlock()
		return c.refuse("upload", fmt.Errorf("%w: %s", ErrUnsupportedFormat, file.Name()),
			fmt.Sprintf("Unsupported video format. Allowed formats: %s.", strings.Join(c.cfg.AllowedExtensions, ", ")))
	}

	sessionID := c.session.ID
	c.uploading = true
	c.session.VideoID = ""
	c.session.Status = models.StatusUploading
	c.session.Notice = ""
	started := c.eventLocked("upload_started", file.Name())
	c.mu.Unlock()

	c.logger.Info("uploading video", "file", file.Name(), "session", sessionID)
	c.record(ctx, started)

	videoID, err := c.backend.Upload(ctx, file)

	c.mu.Lock()
	c.uploading = false
	if c.session.ID != sessionID {
		c.mu.Unlock()
		c.logger.Warn("dropping stale upload response", "session", sessionID, "video_id", videoID)
		return c.Status(), ErrStaleResponse
	}
	var ev models.Event
	if err != nil {
		c.session.VideoID = ""
		c.session.Status = models.StatusUploadFailed
		err = &UploadError{Err: err}
		ev = c.eventLocked("upload_failed", err.Error())
	} else {
		c.session.VideoID = videoID
		c.session.OriginalPreviewURL = c.cfg.PreviewURL(sessionID, file)
		c.session.ProcessedPreviewURL = ""
		c.session.ProcessedVideoMissing = false
		c.session.Detections = []models.Detection{}
		c.session.Page = 1
		c.session.Status = models.StatusUploaded
		ev = c.eventLocked("upload_complete", "")
	}
	status := c.session.Status
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("upload failed", "file", file.Name(), "session", sessionID, "err", err)
	} else {
		c.logger.Info("upload complete", "file", file.Name(), "video_id", videoID)
	}
	c.record(ctx, ev)
	return status, err
}

// Process runs detection on the uploaded video and then loads its results.
// The two calls are not atomic: a failed fetch after a successful process is
// reported as StatusResultsFetchFailed.
func (c *Controller) Process(ctx context.Context) (models.Status, error) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return c.refuse("process", ErrProcessInFlight, "")
	}
	if c.session.VideoID == "" {
		c.mu.Unlock()
		return c.refuse("process", ErrNoVideoID, "")
	}
	sessionID, videoID := c.session.ID, c.session.VideoID
	c.processing = true
	c.session.Status = models.StatusProcessing
	c.session.Notice = ""
	started := c.eventLocked("process_started", "")
	c.mu.Unlock()

	c.logger.Info("processing video", "video_id", videoID)
	c.record(ctx, started)

	if err := c.backend.Process(ctx, videoID); err != nil {
		c.logger.Error("processing failed", "video_id", videoID, "err", err)
		return c.finishResults(ctx, sessionID, videoID, results{}, &ProcessError{VideoID: videoID, Err: err})
	}
	res, err := c.collectResults(ctx, videoID)
	return c.finishResults(ctx, sessionID, videoID, res, err)
}

// RefreshResults fetches the detections for the current video again without
// reprocessing it.
func (c *Controller) RefreshResults(ctx context.Context) (models.Status, error) {
	c.mu.Lock()
	if c.processing {
		c.mu.Unlock()
		return c.refuse("refresh", ErrProcessInFlight, "")
	}
	if c.session.VideoID == "" {
		c.mu.Unlock()
		return c.refuse("refresh", ErrNoVideoID, "")
	}
	sessionID, videoID := c.session.ID, c.session.VideoID
	c.processing = true
	c.session.Notice = ""
	c.mu.Unlock()

	res, err := c.collectResults(ctx, videoID)
	return c.finishResults(ctx, sessionID, videoID, res, err)
}

type results struct {
	detections   []models.Detection
	processedURL string
	videoMissing bool
}

func (c *Controller) collectResults(ctx context.Context, videoID string) (results, error) {
	dets, err := c.backend.Detections(ctx, videoID)
	switch {
	case IsNoDetections(err):
		c.logger.Info("backend reports no detections", "video_id", videoID)
		dets = []models.Detection{}
	case err != nil:
		c.logger.Error("fetching detections failed", "video_id", videoID, "err", err)
		return results{}, &ResultsFetchError{VideoID: videoID, Err: err}
	case dets == nil:
		dets = []models.Detection{}
	}

	res := results{detections: dets, processedURL: c.backend.ProcessedVideoURL(videoID)}
	if c.cfg.VerifyProcessedVideo {
		if err := c.backend.ProbeProcessedVideo(ctx, videoID); err != nil {
			if IsNotFound(err) {
				c.logger.Warn("processed video not found", "video_id", videoID, "url", res.processedURL)
				res.processedURL = ""
				res.videoMissing = true
			} else {
				c.logger.Warn("probing processed video failed", "video_id", videoID, "err", err)
			}
		}
	}
	return res, nil
}

// finishResults applies the outcome of a process or refresh to the session,
// unless the session moved on while the calls were in flight.
func (c *Controller) finishResults(ctx context.Context, sessionID, videoID string, res results, err error) (models.Status, error) {
	c.mu.Lock()
	c.processing = false
	if c.session.ID != sessionID || c.session.VideoID != videoID {
		c.mu.Unlock()
		c.logger.Warn("dropping stale processing response", "session", sessionID, "video_id", videoID)
		return c.Status(), ErrStaleResponse
	}

	var ev models.Event
	switch err.(type) {
	case nil:
		c.session.Detections = res.detections
		c.session.ProcessedPreviewURL = res.processedURL
		c.session.ProcessedVideoMissing = res.videoMissing
		c.session.Page = 1
		c.session.Status = models.StatusProcessed
		ev = c.eventLocked("process_complete", fmt.Sprintf("%d detections", len(res.detections)))
	case *ProcessError:
		c.session.Status = models.StatusProcessFailed
		ev = c.eventLocked("process_failed", err.Error())
	default:
		c.session.Status = models.StatusResultsFetchFailed
		ev = c.eventLocked("results_fetch_failed", err.Error())
	}
	status := c.session.Status
	c.mu.Unlock()

	if err == nil {
		c.logger.Info("processing complete", "video_id", videoID, "detections", len(res.detections))
	}
	c.record(ctx, ev)
	return status, err
}

// SetPage moves to page n, clamped into [1, totalPages].
func (c *Controller) SetPage(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Page = ClampPage(n, c.totalPagesLocked())
	return c.session.Page
}

func (c *Controller) NextPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Page = NextPage(c.session.Page, c.totalPagesLocked())
	return c.session.Page
}

func (c *Controller) PrevPage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.Page = PrevPage(c.session.Page, c.totalPagesLocked())
	return c.session.Page
}

func (c *Controller) totalPagesLocked() int {
	return TotalPages(len(c.session.Detections), c.cfg.PageSize)
}

func (c *Controller) Status() models.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Status
}

// Snapshot returns a copy of the session. Detections are replaced wholesale,
// never modified in place, so the slice may be shared.
func (c *Controller) Snapshot() models.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) View() models.View {
	c.mu.Lock()
	s := c.session
	uploading, processing := c.uploading, c.processing
	c.mu.Unlock()

	return models.View{
		Session:        s,
		Phase:          s.Status.Phase(),
		StatusMessage:  StatusMessage(s),
		PageView:       Paginate(s.Detections, s.Page, c.cfg.PageSize),
		IsUploading:    uploading,
		IsProcessing:   processing,
		CanUpload:      s.File != nil && !uploading,
		CanProcess:     s.VideoID != "" && !processing,
		ShowComparison: s.OriginalPreviewURL != "" && s.ProcessedPreviewURL != "",
	}
}

// refuse leaves the session untouched apart from an optional notice.
func (c *Controller) refuse(action string, reason error, notice string) (models.Status, error) {
	c.mu.Lock()
	if notice != "" {
		c.session.Notice = notice
	}
	status := c.session.Status
	c.mu.Unlock()

	c.logger.Info("action refused", "action", action, "reason", reason)
	return status, &ValidationError{Action: action, Err: reason}
}

func (c *Controller) eventLocked(kind, detail string) models.Event {
	return models.Event{
		SessionID: c.session.ID,
		Kind:      kind,
		Status:    c.session.Status,
		VideoID:   c.session.VideoID,
		Detail:    detail,
	}
}

func (c *Controller) record(ctx context.Context, ev models.Event) {
	if c.cfg.Recorder == nil {
		return
	}
	if err := c.cfg.Recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		c.logger.Warn("journal write failed", "kind", ev.Kind, "err", err)
	}
}
