package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func countingHandler(calls *int, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
}

func post(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, http.NoBody)
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplays(t *testing.T) {
	var calls int
	h := Idempotency(&memCache{data: map[string][]byte{}}, time.Minute)(countingHandler(&calls, http.StatusCreated))

	first := post(h, "/api/v1/commands/c1/retry", "k1")
	second := post(h, "/api/v1/commands/c1/retry", "k1")

	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if second.Code != http.StatusCreated || second.Body.String() != first.Body.String() {
		t.Errorf("replay = %d %q", second.Code, second.Body.String())
	}
	if second.Header().Get("Idempotent-Replayed") != "true" {
		t.Error("expected Idempotent-Replayed header")
	}
}

func TestIdempotencyPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		paths [2]string
	}{
		{"no key", "", [2]string{"/a", "/a"}},
		{"different paths", "k1", [2]string{"/a", "/b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int
			h := Idempotency(&memCache{data: map[string][]byte{}}, time.Minute)(countingHandler(&calls, http.StatusOK))
			post(h, tt.paths[0], tt.key)
			post(h, tt.paths[1], tt.key)
			if calls != 2 {
				t.Errorf("handler calls = %d, want 2", calls)
			}
		})
	}
}

func TestIdempotencySkipsServerErrors(t *testing.T) {
	var calls int
	h := Idempotency(&memCache{data: map[string][]byte{}}, time.Minute)(countingHandler(&calls, http.StatusInternalServerError))
	post(h, "/a", "k1")
	post(h, "/a", "k1")
	if calls != 2 {
		t.Errorf("handler calls = %d, want 2", calls)
	}
}
