package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/docstream-labs/docsearch/pkg/logger"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request a unique id (honouring an inbound
// X-Request-ID), stores it in the context for logging, and echoes it back in
// the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
