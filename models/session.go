package models

import (
	"fmt"
	"io"
)

// Status is the tagged outcome of the most recent workflow step.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusSelected           Status = "selected"
	StatusUploading          Status = "uploading"
	StatusUploadFailed       Status = "upload_failed"
	StatusUploaded           Status = "uploaded"
	StatusProcessing         Status = "processing"
	StatusProcessFailed      Status = "process_failed"
	StatusResultsFetchFailed Status = "results_fetch_failed"
	StatusProcessed          Status = "processed"
)

// Phase is the controller's position in the upload/process workflow.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSelected   Phase = "selected"
	PhaseUploading  Phase = "uploading"
	PhaseUploaded   Phase = "uploaded"
	PhaseProcessing Phase = "processing"
	PhaseProcessed  Phase = "processed"
)

// Phase maps a status onto the workflow phase the session sits in.
// Failures fall back to the last phase from which the action can be retried.
func (s Status) Phase() Phase {
	switch s {
	case StatusSelected, StatusUploadFailed:
		return PhaseSelected
	case StatusUploading:
		return PhaseUploading
	case StatusUploaded, StatusProcessFailed, StatusResultsFetchFailed:
		return PhaseUploaded
	case StatusProcessing:
		return PhaseProcessing
	case StatusProcessed:
		return PhaseProcessed
	default:
		return PhaseIdle
	}
}

func (s Status) Failed() bool {
	return s == StatusUploadFailed || s == StatusProcessFailed || s == StatusResultsFetchFailed
}

func (s *Status) UnmarshalText(b []byte) error {
	switch v := Status(b); v {
	case StatusIdle, StatusSelected, StatusUploading, StatusUploadFailed, StatusUploaded,
		StatusProcessing, StatusProcessFailed, StatusResultsFetchFailed, StatusProcessed:
		*s = v
		return nil
	default:
		return fmt.Errorf("unknown status %q", string(b))
	}
}

// VideoFile is the opaque handle to a user-selected video.
type VideoFile interface {
	Name() string
	Open() (io.ReadCloser, error)
}

// Session is the client-held state for the one video being worked on.
type Session struct {
	ID                    string      `json:"id"`
	File                  VideoFile   `json:"-"`
	FileName              string      `json:"file_name,omitempty"`
	VideoID               string      `json:"video_id,omitempty"`
	OriginalPreviewURL    string      `json:"original_preview_url,omitempty"`
	ProcessedPreviewURL   string      `json:"processed_preview_url,omitempty"`
	ProcessedVideoMissing bool        `json:"processed_video_missing,omitempty"`
	Detections            []Detection `json:"detections"`
	Status                Status      `json:"status"`
	Notice                string      `json:"notice,omitempty"`
	Page                  int         `json:"page"`
}

// View is what a renderer draws. It is recomputed from the Session on every read.
type View struct {
	Session        Session  `json:"session"`
	Phase          Phase    `json:"phase"`
	StatusMessage  string   `json:"status_message"`
	PageView       PageView `json:"page_view"`
	IsUploading    bool     `json:"is_uploading"`
	IsProcessing   bool     `json:"is_processing"`
	CanUpload      bool     `json:"can_upload"`
	CanProcess     bool     `json:"can_process"`
	ShowComparison bool     `json:"show_comparison"`
}
