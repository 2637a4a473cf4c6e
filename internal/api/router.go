package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mitdave95/luma-interview/internal/api/handler"
	mw "github.com/mitdave95/luma-interview/internal/api/middleware"
	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// Dependencies holds all handler and middleware dependencies for the router.
// A nil RateLimit disables rate limiting.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	Health    http.HandlerFunc
	Dashboard http.Handler
	Jobs      *handler.Jobs
	Videos    *handler.Videos
	Admin     *handler.Admin
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/health", orNotImplemented(deps.Health))
	if deps.Dashboard != nil {
		r.Handle("/ws/dashboard", deps.Dashboard)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		if deps.RateLimit != nil {
			r.Use(deps.RateLimit.Limit)
		}

		j := deps.Jobs
		r.Post("/generate", bind(j, (*handler.Jobs).Generate))
		r.Post("/generate/batch", bind(j, (*handler.Jobs).GenerateBatch))
		r.Get("/jobs", bind(j, (*handler.Jobs).ListJobs))
		r.Get("/jobs/{jobID}", bind(j, (*handler.Jobs).GetJob))
		r.Delete("/jobs/{jobID}", bind(j, (*handler.Jobs).CancelJob))
		r.Get("/account", bind(j, (*handler.Jobs).Account))
		r.Get("/account/usage", bind(j, (*handler.Jobs).Usage))
		r.Get("/account/quota", bind(j, (*handler.Jobs).Quota))

		v := deps.Videos
		r.Get("/generate/models", bind(v, (*handler.Videos).ListModels))
		r.Get("/videos", bind(v, (*handler.Videos).ListVideos))
		r.Get("/videos/{videoID}", bind(v, (*handler.Videos).GetVideo))
		r.Delete("/videos/{videoID}", bind(v, (*handler.Videos).DeleteVideo))
		r.Get("/videos/{videoID}/stream", bind(v, (*handler.Videos).StreamVideo))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireTier(models.TierEnterprise))
			r.Get("/admin/queues", bind(j, (*handler.Jobs).QueueStats))

			a := deps.Admin
			r.Get("/admin/rate-limits", bind(a, (*handler.Admin).RateLimits))
			r.Get("/admin/active-jobs", bind(a, (*handler.Admin).ActiveJobs))
			r.Get("/admin/users", bind(a, (*handler.Admin).Users))
		})
	})

	return r
}

// bind routes to a method of h, or to a 501 placeholder when h is nil.
func bind[H any](h *H, method func(*H, http.ResponseWriter, *http.Request)) http.HandlerFunc {
	if h == nil {
		return orNotImplemented(nil)
	}
	return func(w http.ResponseWriter, r *http.Request) { method(h, w, r) }
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
