package testutil

import (
	"context"
	"net/http"
	"time"

	id "permis/pkg/domain"
	"permis/pkg/requestcontext"
)

// WithAgentID adds an agent ID to the request context.
// This simulates what the auth middleware would do for authenticated requests.
// If the agentID is not a valid UUID, it will not be added to the context.
func WithAgentID(req *http.Request, agentID string) *http.Request {
	if parsedAgentID, err := id.ParseAgentID(agentID); err == nil {
		ctx := requestcontext.WithAgentID(req.Context(), parsedAgentID)
		return req.WithContext(ctx)
	}
	return req
}

// WithRequestTime pins the request-scoped clock, letting handler tests
// exercise freshness and expiration boundaries deterministically.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
