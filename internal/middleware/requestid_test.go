package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("valid inbound id is kept", func(t *testing.T) {
		inbound := uuid.NewString()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", inbound)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if seen != inbound {
			t.Fatalf("context id = %q, want %q", seen, inbound)
		}
		if got := rec.Header().Get("X-Request-ID"); got != inbound {
			t.Fatalf("response header = %q, want %q", got, inbound)
		}
	})

	t.Run("garbage inbound id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Request-ID", "<script>alert(1)</script>")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("context id %q is not a uuid", seen)
		}
		if rec.Header().Get("X-Request-ID") != seen {
			t.Fatal("response header does not match context id")
		}
	})

	t.Run("missing id is generated", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if _, err := uuid.Parse(seen); err != nil {
			t.Fatalf("context id %q is not a uuid", seen)
		}
	})
}
