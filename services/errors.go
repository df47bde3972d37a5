package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNoFile            = errors.New("no video selected")
	ErrNoVideoID         = errors.New("no uploaded video to process")
	ErrUnsupportedFormat = errors.New("unsupported video format")
	ErrUploadInFlight    = errors.New("upload already in progress")
	ErrProcessInFlight   = errors.New("processing already in progress")

	// ErrStaleResponse is returned when a response arrives for a session
	// that has since been reset. The response is dropped.
	ErrStaleResponse = errors.New("response belongs to a previous session")
)

// ValidationError means an action was refused before any network call.
type ValidationError struct {
	Action string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s refused: %v", e.Action, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type UploadError struct {
	Err error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload failed: %v", e.Err) }
func (e *UploadError) Unwrap() error { return e.Err }

type ProcessError struct {
	VideoID string
	Err     error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("processing %s failed: %v", e.VideoID, e.Err)
}

func (e *ProcessError) Unwrap() error { return e.Err }

// ResultsFetchError means processing succeeded but the detections could not be loaded.
type ResultsFetchError struct {
	VideoID string
	Err     error
}

func (e *ResultsFetchError) Error() string {
	return fmt.Sprintf("fetching detections for %s failed: %v", e.VideoID, e.Err)
}

func (e *ResultsFetchError) Unwrap() error { return e.Err }

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s returned %d: %s", e.Op, e.StatusCode, e.Body)
}

func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// noDetectionsDetail is how the backend words a 404 for a video that was
// processed but produced no detections.
const noDetectionsDetail = "no detections found"

// IsNoDetections reports whether err is the backend's "No detections found"
// answer. Other 404s, such as a wrong base path, do not match.
func IsNoDetections(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusNotFound {
		return false
	}
	detail := se.Body
	var body struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal([]byte(se.Body), &body) == nil && body.Detail != "" {
		detail = body.Detail
	}
	return strings.HasPrefix(strings.ToLower(detail), noDetectionsDetail)
}
