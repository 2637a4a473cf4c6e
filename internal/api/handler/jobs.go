// Package handler implements the HTTP endpoints of the generation API.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/mitdave95/luma-interview/internal/api/middleware"
	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/service"
	"github.com/mitdave95/luma-interview/pkg/models"
)

const maxBodyBytes = 1 << 20

// JobService is the part of service.JobService the handlers drive.
type JobService interface {
	Submit(ctx context.Context, id models.Identity, p models.GenerationParams) (models.Job, error)
	SubmitBatch(ctx context.Context, id models.Identity, batch []models.GenerationParams) ([]models.Job, error)
	Get(ctx context.Context, id models.Identity, jobID string) (models.Job, error)
	List(ctx context.Context, id models.Identity, opts service.ListOptions) (service.ListResult, error)
	Cancel(ctx context.Context, id models.Identity, jobID string) (models.Job, error)
	Usage(ctx context.Context, id models.Identity) (service.AccountUsage, error)
	Account(id models.Identity) service.Account
	Quota(ctx context.Context, id models.Identity) (service.QuotaStatus, error)
	QueueStats(ctx context.Context) (service.QueueStats, error)
}

// Jobs serves generation, job, account and queue endpoints.
type Jobs struct {
	svc JobService
}

func NewJobs(svc JobService) *Jobs {
	return &Jobs{svc: svc}
}

// JobResponse is the public view of a job.
type JobResponse struct {
	JobID         string           `json:"job_id"`
	Status        models.JobStatus `json:"status"`
	Priority      models.Priority  `json:"priority"`
	QueuePosition *int             `json:"queue_position,omitempty"`
	EstimatedWait string           `json:"estimated_wait,omitempty"`
	Progress      *float64         `json:"progress,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	StartedAt     *time.Time       `json:"started_at,omitempty"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	VideoID       string           `json:"video_id,omitempty"`
	Error         string           `json:"error,omitempty"`
}

func toJobResponse(j models.Job) JobResponse {
	out := JobResponse{
		JobID:       j.ID,
		Status:      j.Status,
		Priority:    j.Priority,
		CreatedAt:   j.CreatedAt,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		VideoID:     j.ResultRef,
		Error:       j.Error,
	}
	switch j.Status {
	case models.JobStatusQueued:
		if j.QueuePosition > 0 {
			pos := j.QueuePosition
			out.QueuePosition = &pos
			out.EstimatedWait = models.FormatWait(j.EstimatedWait)
		}
	case models.JobStatusProcessing, models.JobStatusCompleted:
		p := j.Progress
		out.Progress = &p
	}
	return out
}

type batchRequest struct {
	Requests []models.GenerationParams `json:"requests"`
}

type batchResponse struct {
	JobIDs      []string      `json:"job_ids"`
	TotalQueued int           `json:"total_queued"`
	Jobs        []JobResponse `json:"jobs"`
}

// Generate handles POST /v1/generate.
func (h *Jobs) Generate(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req models.GenerationParams
	if !decode(w, r, &req) {
		return
	}

	j, err := h.svc.Submit(r.Context(), id, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Accepted(w, toJobResponse(j))
}

// GenerateBatch handles POST /v1/generate/batch.
func (h *Jobs) GenerateBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	var req batchRequest
	if !decode(w, r, &req) {
		return
	}

	jobs, err := h.svc.SubmitBatch(r.Context(), id, req.Requests)
	if err != nil {
		if len(jobs) > 0 {
			// Part of the batch is already queued; say which.
			ids := make([]string, len(jobs))
			for i, j := range jobs {
				ids[i] = j.ID
			}
			w.Header().Set("X-Admitted-Job-IDs", strings.Join(ids, ","))
		}
		writeError(w, r, err)
		return
	}

	out := batchResponse{
		JobIDs:      make([]string, len(jobs)),
		TotalQueued: len(jobs),
		Jobs:        make([]JobResponse, len(jobs)),
	}
	for i, j := range jobs {
		out.JobIDs[i] = j.ID
		out.Jobs[i] = toJobResponse(j)
	}
	response.Accepted(w, out)
}

// ListJobs handles GET /v1/jobs.
func (h *Jobs) ListJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	page, perPage, ok := pagination(w, r)
	if !ok {
		return
	}

	res, err := h.svc.List(r.Context(), id, service.ListOptions{
		Page:    page,
		PerPage: perPage,
		Status:  models.JobStatus(q.Get("status")),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	items := make([]JobResponse, len(res.Jobs))
	for i, j := range res.Jobs {
		items[i] = toJobResponse(j)
	}
	response.Collection(w, items, response.NewPaginationMeta(res.Page, res.PerPage, res.Total))
}

// GetJob handles GET /v1/jobs/{jobID}.
func (h *Jobs) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Get(r.Context(), id, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, toJobResponse(j))
}

// CancelJob handles DELETE /v1/jobs/{jobID}.
func (h *Jobs) CancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	j, err := h.svc.Cancel(r.Context(), id, chi.URLParam(r, "jobID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, toJobResponse(j))
}

// Usage handles GET /v1/account/usage.
func (h *Jobs) Usage(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	u, err := h.svc.Usage(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, u)
}

// Account handles GET /v1/account.
func (h *Jobs) Account(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	response.JSON(w, h.svc.Account(id))
}

// Quota handles GET /v1/account/quota.
func (h *Jobs) Quota(w http.ResponseWriter, r *http.Request) {
	id, ok := caller(w, r)
	if !ok {
		return
	}
	q, err := h.svc.Quota(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, q)
}

// QueueStats handles GET /v1/admin/queues.
func (h *Jobs) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.QueueStats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, stats)
}

func caller(w http.ResponseWriter, r *http.Request) (models.Identity, bool) {
	id, ok := mw.GetIdentity(r)
	if !ok {
		response.ErrorWithID(w, http.StatusUnauthorized, "AUTH_MISSING_CREDENTIALS",
			"Authentication required", nil, mw.GetRequestID(r))
	}
	return id, ok
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.ErrorWithID(w, http.StatusRequestEntityTooLarge, "INVALID_REQUEST",
				"Request body too large", nil, mw.GetRequestID(r))
			return false
		}
		badRequest(w, r, "Invalid JSON body")
		return false
	}
	return true
}

func pagination(w http.ResponseWriter, r *http.Request) (page, perPage int, ok bool) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 1)
	if err != nil || page < 1 {
		badRequest(w, r, "page must be a positive integer")
		return 0, 0, false
	}
	perPage, err = intParam(q.Get("per_page"), 20)
	if err != nil || perPage < 1 || perPage > 100 {
		badRequest(w, r, "per_page must be between 1 and 100")
		return 0, 0, false
	}
	return page, perPage, true
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
