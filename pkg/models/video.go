package models

import "time"

// VideoStatus is the state of a generated video.
type VideoStatus string

const (
	VideoStatusPending    VideoStatus = "pending"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusFailed     VideoStatus = "failed"
)

func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusPending, VideoStatusProcessing, VideoStatusReady, VideoStatusFailed:
		return true
	}
	return false
}

// Video is the output of a completed generation job.
type Video struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	JobID        string         `json:"job_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Duration     int            `json:"duration"`
	Resolution   string         `json:"resolution"`
	AspectRatio  string         `json:"aspect_ratio"`
	Style        string         `json:"style,omitempty"`
	Model        string         `json:"model"`
	Status       VideoStatus    `json:"status"`
	URL          string         `json:"url,omitempty"`
	ThumbnailURL string         `json:"thumbnail_url,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}
