package services

import (
	"fmt"
	"strings"

	"github.com/detectdash/client/models"
)

var statusMessages = map[models.Status]string{
	models.StatusIdle:               "Select a video to get started.",
	models.StatusSelected:           "Video selected. Click Upload to continue.",
	models.StatusUploading:          "Uploading video...",
	models.StatusUploadFailed:       "Upload failed. Please try again.",
	models.StatusUploaded:           "Upload complete! Ready to process.",
	models.StatusProcessing:         "Processing video, please wait...",
	models.StatusProcessFailed:      "Processing failed. Please try again.",
	models.StatusResultsFetchFailed: "Processing finished, but the detection results could not be loaded. Refresh the results to try again.",
	models.StatusProcessed:          "Processing complete! Scroll down to see results.",
}

// FormatStatus is the human-readable text for a status on its own.
func FormatStatus(s models.Status) string {
	if msg, ok := statusMessages[s]; ok {
		return msg
	}
	return string(s)
}

// StatusMessage is the single status line shown for a session. A pending
// notice wins over the status text.
func StatusMessage(s models.Session) string {
	if s.Notice != "" {
		return s.Notice
	}
	if s.Status == models.StatusProcessed {
		switch {
		case len(s.Detections) == 0 && s.ProcessedVideoMissing:
			return "Processing complete. No objects were detected and the processed video is not available."
		case len(s.Detections) == 0:
			return "Processing complete. No objects were detected."
		case s.ProcessedVideoMissing:
			return "Processing complete, but the processed video is not available. Detections are listed below."
		}
	}
	return FormatStatus(s.Status)
}

// FormatDetectionsTable renders one page of detections as a text table.
func FormatDetectionsTable(pv models.PageView) string {
	if pv.Total == 0 {
		return "No detections.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-8s %-12s %s\n", "Frame", "Confidence", "Bounding Box")
	fmt.Fprintf(&b, "%s\n", strings.Repeat("-", 60))
	for _, d := range pv.Items {
		fmt.Fprintf(&b, "%-8d %-12.2f %s\n", d.Frame, d.Confidence, formatBBox(d.BBox))
	}
	fmt.Fprintf(&b, "\nPage %d of %d (%d detections)\n", pv.Page, pv.TotalPages, pv.Total)
	return b.String()
}

func formatBBox(box [4]float64) string {
	parts := make([]string, len(box))
	for i, v := range box {
		parts[i] = fmt.Sprintf("%.1f", v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
