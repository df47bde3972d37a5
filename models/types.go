package models

import "time"

// Detection is one bounding-box result for a single video frame.
// BBox coordinates are whatever the backend emits; the client never interprets them.
type Detection struct {
	Frame      int        `json:"frame"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
	VideoID    string     `json:"video_id,omitempty"`
	Class      *int       `json:"class,omitempty"`
}

type UploadResponse struct {
	Message string `json:"message,omitempty"`
	VideoID string `json:"video_id"`
}

type DetectionsResponse struct {
	VideoID    string      `json:"video_id,omitempty"`
	Detections []Detection `json:"detections"`
}

// VideoRecord is an uploaded video as listed by the backend.
type VideoRecord struct {
	ID       string `json:"_id"`
	Filename string `json:"filename"`
	Filepath string `json:"filepath"`
}

type VideosResponse struct {
	Videos []VideoRecord `json:"videos"`
}

// PageView is the visible window over a detection list. Derived, never stored.
type PageView struct {
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	TotalPages int         `json:"total_pages"`
	Total      int         `json:"total"`
	Items      []Detection `json:"items"`
	HasPrev    bool        `json:"has_prev"`
	HasNext    bool        `json:"has_next"`
}

// Event is one row of the activity journal.
type Event struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	VideoID   string    `json:"video_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
