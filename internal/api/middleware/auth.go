package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mitdave95/luma-interview/internal/api/response"
	"github.com/mitdave95/luma-interview/internal/identity"
	"github.com/mitdave95/luma-interview/pkg/models"
)

// APIKeyHeader is accepted as an alternative to a Bearer token.
const APIKeyHeader = "X-API-Key"

// Auth resolves API keys to identities and gates routes by tier.
type Auth struct {
	resolver identity.Resolver
}

func NewAuth(r identity.Resolver) *Auth {
	return &Auth{resolver: r}
}

// Authenticate resolves the caller's key and stores the identity in the
// request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawKey := extractKey(r)
		if rawKey == "" {
			response.ErrorWithID(w, http.StatusUnauthorized,
				"AUTH_MISSING_CREDENTIALS", "Missing API key: use Authorization: Bearer <key> or X-API-Key", nil, GetRequestID(r))
			return
		}

		id, err := a.resolver.Resolve(r.Context(), rawKey)
		switch {
		case err == nil:
		case errors.Is(err, identity.ErrDisabled):
			response.ErrorWithID(w, http.StatusUnauthorized,
				"AUTH_INVALID_KEY", "API key is disabled", nil, GetRequestID(r))
			return
		case errors.Is(err, identity.ErrInvalidKey):
			response.ErrorWithID(w, http.StatusUnauthorized,
				"AUTH_INVALID_KEY", "Invalid API key", nil, GetRequestID(r))
			return
		default:
			slog.Error("resolve api key", "error", err, "request_id", GetRequestID(r))
			response.ErrorWithID(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil, GetRequestID(r))
			return
		}

		next.ServeHTTP(w, r.WithContext(SetIdentity(r.Context(), id)))
	})
}

// RequireTier rejects callers below minimum.
func (a *Auth) RequireTier(minimum models.Tier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := GetIdentity(r)
			if !ok {
				response.ErrorWithID(w, http.StatusUnauthorized,
					"AUTH_MISSING_CREDENTIALS", "Authentication required", nil, GetRequestID(r))
				return
			}
			if id.Tier.Rank() < minimum.Rank() {
				response.ErrorWithID(w, http.StatusForbidden,
					"AUTH_INSUFFICIENT_TIER", "This endpoint requires "+string(minimum)+" tier or higher",
					map[string]string{
						"current_tier":  string(id.Tier),
						"required_tier": string(minimum),
					}, GetRequestID(r))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		parts := strings.SplitN(auth, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}
