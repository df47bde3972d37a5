package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/detectdash/client/models"
)

// Backend is the remote detection service as seen by the controller.
type Backend interface {
	Upload(ctx context.Context, file models.VideoFile) (string, error)
	Process(ctx context.Context, videoID string) error
	Detections(ctx context.Context, videoID string) ([]models.Detection, error)
	ProcessedVideoURL(videoID string) string
	ProbeProcessedVideo(ctx context.Context, videoID string) error
}

type BackendOptions struct {
	// Timeout bounds every request. Processing runs detection on the whole
	// video synchronously, so this is generous.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive transport or 5xx failures
	// after which calls fail fast until the breaker half-opens.
	BreakerFailures int
	Logger          *slog.Logger
}

type BackendClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker[*http.Response]
	logger     *slog.Logger
}

func NewBackendClient(baseURL string, opts BackendOptions) *BackendClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.BreakerFailures <= 0 {
		opts.BreakerFailures = 5
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &BackendClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		logger: logger,
	}
	failures := opts.BreakerFailures
	c.breaker = circuitbreaker.New[*http.Response](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= failures
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("backend circuit breaker state change",
				"backend", c.baseURL,
				"from", from.String(),
				"to", to.String())
		},
	})
	return c
}

func (c *BackendClient) BaseURL() string { return c.baseURL }

func (c *BackendClient) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// ProcessedVideoURL is where the backend serves the annotated video.
// The path is a convention of the backend's static mount, not an API response.
func (c *BackendClient) ProcessedVideoURL(videoID string) string {
	return c.endpoint("static", "results", videoID+".mp4")
}

// do sends req through the circuit breaker. Transport errors and 5xx answers
// count as breaker failures; other statuses are returned to the caller.
func (c *BackendClient) do(op string, req *http.Request) (*http.Response, error) {
	req.Header.Set("X-Request-ID", uuid.NewString())
	start := time.Now()
	resp, err := c.breaker.Execute(req.Context(), func(ctx context.Context) (*http.Response, error) {
		resp, err := c.httpClient.Do(req.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%s request: %w", op, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, statusError(op, resp)
		}
		return resp, nil
	})
	c.logger.Debug("backend call",
		"op", op,
		"method", req.Method,
		"url", req.URL.String(),
		"request_id", req.Header.Get("X-Request-ID"),
		"elapsed", time.Since(start),
		"err", err)
	return resp, err
}

// statusError drains and closes resp, keeping a short excerpt of the body.
func statusError(op string, resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func isSuccess(code int) bool { return code >= 200 && code < 300 }

// Upload streams the file as the multipart field "file" and returns the
// server-assigned video ID.
func (c *BackendClient) Upload(ctx context.Context, file models.VideoFile) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", file.Name(), err)
	}
	defer src.Close()

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", file.Name())
		if err == nil {
			_, err = io.Copy(part, src)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/", pr)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do("upload", req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return "", statusError("upload", resp)
	}

	var result models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decoding upload response: %w", err)
	}
	if result.VideoID == "" {
		return "", fmt.Errorf("upload response has no video_id")
	}
	return result.VideoID, nil
}

// Process asks the backend to run detection. The response body is ignored.
// Not idempotent: each call reprocesses the video.
func (c *BackendClient) Process(ctx context.Context, videoID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("process", videoID), nil)
	if err != nil {
		return err
	}
	resp, err := c.do("process", req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return statusError("process", resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Detections returns the stored detections in frame order. An absent
// "detections" field yields an empty slice.
func (c *BackendClient) Detections(ctx context.Context, videoID string) ([]models.Detection, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("detections", videoID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do("detections", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return nil, statusError("detections", resp)
	}

	var result models.DetectionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding detections response: %w", err)
	}
	if result.Detections == nil {
		return []models.Detection{}, nil
	}
	return result.Detections, nil
}

// ProbeProcessedVideo checks that the processed video exists at its
// conventional location.
func (c *BackendClient) ProbeProcessedVideo(ctx context.Context, videoID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.ProcessedVideoURL(videoID), nil)
	if err != nil {
		return err
	}
	resp, err := c.do("probe", req)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return statusError("probe", resp)
	}
	resp.Body.Close()
	return nil
}

func (c *BackendClient) ListVideos(ctx context.Context) ([]models.VideoRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/videos", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do("videos", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if !isSuccess(resp.StatusCode) {
		return nil, statusError("videos", resp)
	}

	var result models.VideosResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding videos response: %w", err)
	}
	if result.Videos == nil {
		return []models.VideoRecord{}, nil
	}
	return result.Videos, nil
}

func (c *BackendClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.do("health", req)
	if err != nil {
		return err
	}
	if !isSuccess(resp.StatusCode) {
		return statusError("health", resp)
	}
	resp.Body.Close()
	return nil
}

// WaitForReady polls the health endpoint with exponential backoff until it
// answers or timeout elapses.
func (c *BackendClient) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	r := retry.New[struct{}](retry.Config{
		MaxAttempts:   20,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable: func(err error) bool {
			return ctx.Err() == nil
		},
	})
	_, err := r.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.HealthCheck(ctx)
	})
	if err != nil {
		return fmt.Errorf("backend not ready after %s: %w", timeout, err)
	}
	return nil
}
