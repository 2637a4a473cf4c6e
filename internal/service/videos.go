package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/internal/video"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// StreamTTL is how long a stream URL stays valid.
const StreamTTL = 3600

// VideoListResult is one page of videos and the total across pages.
type VideoListResult struct {
	Videos  []models.Video
	Total   int
	Page    int
	PerPage int
}

// Stream is a playback location for a ready video.
type Stream struct {
	VideoID   string `json:"video_id"`
	StreamURL string `json:"stream_url"`
	ExpiresIn int    `json:"expires_in"`
}

// ListVideos returns the caller's videos newest first.
func (s *JobService) ListVideos(_ context.Context, id models.Identity, page, perPage int, status models.VideoStatus) (VideoListResult, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	if status != "" && !status.Valid() {
		return VideoListResult{}, &ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", status)}
	}
	if s.deps.Videos == nil {
		return VideoListResult{Videos: []models.Video{}, Page: page, PerPage: perPage}, nil
	}
	videos, total := s.deps.Videos.List(video.Filter{
		OwnerID: id.ID,
		Status:  status,
		Offset:  (page - 1) * perPage,
		Limit:   perPage,
	})
	return VideoListResult{Videos: videos, Total: total, Page: page, PerPage: perPage}, nil
}

// GetVideo returns a video owned by the caller.
func (s *JobService) GetVideo(_ context.Context, id models.Identity, videoID string) (models.Video, error) {
	if s.deps.Videos == nil {
		return models.Video{}, ErrVideoNotFound
	}
	v, err := s.deps.Videos.Get(videoID)
	if errors.Is(err, video.ErrNotFound) {
		return models.Video{}, ErrVideoNotFound
	}
	if err != nil {
		return models.Video{}, err
	}
	if v.OwnerID != id.ID {
		return models.Video{}, ErrForbidden
	}
	return v, nil
}

// VideoStream returns where a ready video can be played from.
func (s *JobService) VideoStream(ctx context.Context, id models.Identity, videoID string) (Stream, error) {
	v, err := s.GetVideo(ctx, id, videoID)
	if err != nil {
		return Stream{}, err
	}
	if v.Status != models.VideoStatusReady || v.URL == "" {
		return Stream{}, fmt.Errorf("%w: %s is not ready", ErrVideoNotFound, videoID)
	}
	return Stream{VideoID: v.ID, StreamURL: v.URL, ExpiresIn: StreamTTL}, nil
}

// DeleteVideo removes a video owned by the caller.
func (s *JobService) DeleteVideo(ctx context.Context, id models.Identity, videoID string) error {
	if _, err := s.GetVideo(ctx, id, videoID); err != nil {
		return err
	}
	if !s.deps.Videos.Delete(videoID) {
		return ErrVideoNotFound
	}
	s.logger.Info("video deleted", "video_id", videoID, "user_id", id.ID)
	return nil
}

// Models lists the generation models.
func (s *JobService) Models() []generation.Model {
	return generation.Models()
}
