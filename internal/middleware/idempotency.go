package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/fleetwatch/internal/port/cache"
)

const (
	// HeaderIdempotencyKey lets clients retry a mutation without applying it twice.
	HeaderIdempotencyKey = "Idempotency-Key"

	maxIdempotencyBody = 1 << 20
)

type idempotencyEntry struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// Idempotency replays the stored response of a mutation carrying an
// Idempotency-Key seen within ttl. Server errors are not stored so the
// client can retry them.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderIdempotencyKey)
			if key == "" || r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			cacheKey := "idem:" + r.Method + ":" + r.URL.Path + ":" + key

			if data, ok, err := c.Get(r.Context(), cacheKey); err == nil && ok {
				var e idempotencyEntry
				if err := json.Unmarshal(data, &e); err == nil {
					for k, vals := range e.Header {
						w.Header()[k] = vals
					}
					w.Header().Set("Idempotent-Replayed", "true")
					w.WriteHeader(e.StatusCode)
					_, _ = w.Write(e.Body)
					return
				}
				slog.Warn("corrupt idempotency entry", "key", key)
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode >= http.StatusInternalServerError || rec.body.Len() > maxIdempotencyBody {
				return
			}
			data, err := json.Marshal(idempotencyEntry{
				StatusCode: rec.statusCode,
				Header:     w.Header().Clone(),
				Body:       rec.body.Bytes(),
			})
			if err != nil {
				return
			}
			if err := c.Set(r.Context(), cacheKey, data, ttl); err != nil {
				slog.Warn("store idempotent response", "key", key, "error", err)
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
