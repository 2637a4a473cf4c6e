package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/mitdave95/luma-interview/internal/api/response"
)

// Check is one dependency pinged by the health endpoint.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// NewHealthHandler reports "healthy" when every check passes and 503 with the
// failing components otherwise.
func NewHealthHandler(version string, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		components := make(map[string]string, len(checks))
		degraded := false
		for _, c := range checks {
			components[c.Name] = "ok"
			if err := c.Ping(ctx); err != nil {
				components[c.Name] = "degraded"
				degraded = true
			}
		}

		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", components)
			return
		}
		response.JSON(w, map[string]any{
			"status":     "healthy",
			"version":    version,
			"components": components,
			"timestamp":  time.Now().UTC().Format(time.RFC3339),
		})
	}
}
