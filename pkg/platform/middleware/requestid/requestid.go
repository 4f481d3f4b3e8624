// Package requestid assigns every request a correlation ID. The ID follows
// the request through logs, audit entries, and the response header, so a
// field report ("my scan failed at 14:02") can be matched to server logs.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"permis/pkg/requestcontext"
)

const headerName = "X-Request-ID"

// Middleware adopts the caller's X-Request-ID when present, otherwise mints
// one. The chosen ID is stored in the context and echoed on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(headerName)
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		w.Header().Set(headerName, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
