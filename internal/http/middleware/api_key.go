package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

const orgIDKey contextKey = "orgID"

// ErrUnknownAPIKey is returned by OrgResolver implementations when the key
// does not match any organization.
var ErrUnknownAPIKey = errors.New("middleware: unknown API key")

// OrgResolver maps an API key to the owning organization.
type OrgResolver interface {
	OrgIDByAPIKey(ctx context.Context, apiKey string) (uuid.UUID, error)
}

// APIKey authenticates tenant requests via the X-API-Key header and stores
// the resolved organization ID in the request context.
func APIKey(resolver OrgResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				http.Error(w, "api key auth disabled", http.StatusUnauthorized)
				return
			}
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}
			orgID, err := resolver.OrgIDByAPIKey(r.Context(), key)
			if err != nil {
				if errors.Is(err, ErrUnknownAPIKey) {
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
				http.Error(w, "authorization unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithOrgID(r.Context(), orgID)))
		})
	}
}

// WithOrgID returns a context carrying the organization ID. Transports that
// authenticate outside the APIKey middleware use it to reach the same
// handlers.
func WithOrgID(ctx context.Context, orgID uuid.UUID) context.Context {
	return context.WithValue(ctx, orgIDKey, orgID)
}

// OrgIDFromContext returns the authenticated organization ID if present.
func OrgIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	orgID, ok := ctx.Value(orgIDKey).(uuid.UUID)
	return orgID, ok
}
