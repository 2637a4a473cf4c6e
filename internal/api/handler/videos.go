package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/generation"
	"github.com/mitdave95/luma-interview/internal/service"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// VideoService is the part of service.JobService behind the video endpoints.
type VideoService interface {
	ListVideos(ctx context.Context, id models.Identity, page, perPage int, status models.VideoStatus) (service.VideoListResult, error)
	GetVideo(ctx context.Context, id models.Identity, videoID string) (models.Video, error)
	VideoStream(ctx context.Context, id models.Identity, videoID string) (service.Stream, error)
	DeleteVideo(ctx context.Context, id models.Identity, videoID string) error
	Models() []generation.Model
}

// Videos serves the caller's generated videos and the model catalog.
type Videos struct {
	svc VideoService
}

func NewVideos(svc VideoService) *Videos {
	return &Videos{svc: svc}
}

// ListVideos handles GET /v1/videos.
func (h *Videos) ListVideos(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}
	res, err := h.svc.ListVideos(r.Context(), id, page, perPage, models.VideoStatus(r.URL.Query().Get("status")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Collection(w, res.Videos, response.NewPaginationMeta(res.Page, res.PerPage, res.Total))
}

// GetVideo handles GET /v1/videos/{videoID}.
func (h *Videos) GetVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	v, err := h.svc.GetVideo(r.Context(), id, chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, v)
}

// StreamVideo handles GET /v1/videos/{videoID}/stream.
func (h *Videos) StreamVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	s, err := h.svc.VideoStream(r.Context(), id, chi.URLParam(r, "videoID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, s)
}

// DeleteVideo handles DELETE /v1/videos/{videoID}.
func (h *Videos) DeleteVideo(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteVideo(r.Context(), id, chi.URLParam(r, "videoID")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// ListModels handles GET /v1/generate/models.
func (h *Videos) ListModels(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.Models())
}
