// Package middleware provides HTTP middleware for fleetwatch.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/Strob0t/fleetwatch/internal/logger"
)

// HeaderRequestID carries the request id on HTTP requests and NATS messages.
const HeaderRequestID = "X-Request-ID"

const maxRequestIDLength = 128

// RequestID takes the caller's X-Request-ID or generates one, stores it in
// the request context and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if !validRequestID(id) {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(logger.WithRequestID(r.Context(), id)))
	})
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if c := id[i]; c < 0x21 || c > 0x7e {
			return false
		}
	}
	return true
}
