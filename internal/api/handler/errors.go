package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	mw "github.com/mitdave95/luma-interview/internal/api/middleware"
	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/quota"
	"github.com/mitdave95/luma-interview/internal/service"
)

// writeError maps service errors onto the public error codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	reqID := mw.GetRequestID(r)

	var (
		ve *service.ValidationError
		te *service.TierError
		qe *quota.ExceededError
		nc *service.NotCancellableError
	)
	switch {
	case errors.As(err, &ve):
		response.ErrorWithID(w, http.StatusBadRequest, "INVALID_REQUEST", ve.Error(),
			map[string]string{"field": ve.Field}, reqID)

	case errors.As(err, &te):
		details := map[string]any{
			"current_tier":  te.Current,
			"required_tier": te.Required,
		}
		for k, v := range te.Details {
			details[k] = v
		}
		response.ErrorWithID(w, http.StatusForbidden, "AUTH_INSUFFICIENT_TIER", te.Error(), details, reqID)

	case errors.As(err, &qe):
		if wait := time.Until(qe.ResetAt); wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
		}
		response.ErrorWithID(w, http.StatusTooManyRequests, "QUOTA_EXCEEDED",
			"Daily video generation quota exceeded", map[string]any{
				"quota_type": qe.QuotaType,
				"limit":      qe.Limit,
				"used":       qe.Used,
				"reset_at":   qe.ResetAt.UTC().Format(time.RFC3339),
			}, reqID)

	case errors.As(err, &nc):
		response.ErrorWithID(w, http.StatusConflict, "JOB_CANCELLED", nc.Error(),
			map[string]string{"job_id": nc.JobID, "current_status": string(nc.Status)}, reqID)

	case errors.Is(err, service.ErrJobNotFound):
		response.ErrorWithID(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil, reqID)

	case errors.Is(err, service.ErrVideoNotFound):
		response.ErrorWithID(w, http.StatusNotFound, "VIDEO_NOT_FOUND", "Video not found", nil, reqID)

	case errors.Is(err, service.ErrForbidden):
		response.ErrorWithID(w, http.StatusForbidden, "AUTH_PERMISSION_DENIED",
			"You do not have access to this resource", nil, reqID)

	case errors.Is(err, service.ErrQueueUnavailable):
		response.ErrorWithID(w, http.StatusServiceUnavailable, "QUEUE_ERROR",
			"The job queue is temporarily unavailable", nil, reqID)

	default:
		slog.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", reqID,
			"error", err)
		response.ErrorWithID(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil, reqID)
	}
}

func badRequest(w http.ResponseWriter, r *http.Request, msg string) {
	response.ErrorWithID(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil, mw.GetRequestID(r))
}
