package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/ratelimit"
)

// RateLimit admits requests through a ratelimit.Limiter keyed by the
// authenticated identity.
type RateLimit struct {
	limiter ratelimit.Limiter
	now     func() time.Time
}

func NewRateLimit(l ratelimit.Limiter, now func() time.Time) *RateLimit {
	if now == nil {
		now = time.Now
	}
	return &RateLimit{limiter: l, now: now}
}

// Limit must run after Authenticate. Requests without an identity pass
// through.
func (rl *RateLimit) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := GetIdentity(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		d, err := rl.limiter.Allow(r.Context(), id.ID, id.Tier)
		if err != nil {
			// Fail open when the backend is unavailable.
			slog.Warn("rate limiter unavailable", "user_id", id.ID, "error", err)
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
		h.Set("X-RateLimit-Window", strconv.Itoa(int(d.Window.Seconds())))
		h.Set("X-RateLimit-Policy", "sliding-window")

		if !d.Allowed {
			retry := d.RetryAfter(rl.now())
			secs := int(retry / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			response.ErrorWithID(w, http.StatusTooManyRequests,
				"RATE_LIMIT_EXCEEDED", "Rate limit exceeded. Try again in "+strconv.Itoa(secs)+" seconds",
				map[string]any{
					"limit":       d.Limit,
					"window":      int(d.Window.Seconds()),
					"retry_after": secs,
					"tier":        id.Tier,
				}, GetRequestID(r))
			return
		}
		next.ServeHTTP(w, r)
	})
}
