package handler

import (
	"context"
	"net/http"

	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/service"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// AdminService is the part of service.JobService behind the admin views.
type AdminService interface {
	RateLimits(ctx context.Context) ([]models.RateLimitStatus, error)
	ActiveJobs() service.ActiveJobsView
	Users() []service.UserSummary
}

// Admin serves the enterprise-only operational views.
type Admin struct {
	svc AdminService
}

func NewAdmin(svc AdminService) *Admin {
	return &Admin{svc: svc}
}

// RateLimits handles GET /v1/admin/rate-limits.
func (h *Admin) RateLimits(w http.ResponseWriter, r *http.Request) {
	rl, err := h.svc.RateLimits(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, rl)
}

// ActiveJobs handles GET /v1/admin/active-jobs.
func (h *Admin) ActiveJobs(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.ActiveJobs())
}

// Users handles GET /v1/admin/users.
func (h *Admin) Users(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, h.svc.Users())
}
