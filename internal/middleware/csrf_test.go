package middleware

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func csrfHandler() http.Handler {
	return CSRF("csrf-secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func TestCSRFValidHeaderToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/vectorize", nil)
	req = req.WithContext(ContextWithUser(req.Context(), "user-1", false))
	req.Header.Set("X-CSRF-Token", CSRFToken("csrf-secret", "user-1"))
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCSRFFormFieldToken(t *testing.T) {
	form := url.Values{"csrf_token": {CSRFToken("csrf-secret", "user-1")}}
	req := httptest.NewRequest(http.MethodPost, "/v1/vectorize", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req = req.WithContext(ContextWithUser(req.Context(), "user-1", false))
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

type readTracker struct {
	r    io.Reader
	read bool
}

func (tr *readTracker) Read(p []byte) (int, error) {
	tr.read = true
	return tr.r.Read(p)
}

func multipartCSRFBody(t *testing.T, token string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	if err := mw.WriteField("csrf_token", token); err != nil {
		t.Fatalf("WriteField: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func TestCSRFMultipartRequiresHeader(t *testing.T) {
	buf, contentType := multipartCSRFBody(t, CSRFToken("csrf-secret", "user-1"))
	body := &readTracker{r: buf}
	req := httptest.NewRequest(http.MethodPost, "/v1/vectorize", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(ContextWithUser(req.Context(), "user-1", false))
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 for form-field-only multipart token", rr.Code)
	}
	// The middleware must leave the multipart body for the handler.
	if body.read {
		t.Fatal("middleware consumed the multipart body")
	}
}

func TestCSRFMultipartHeaderToken(t *testing.T) {
	buf, contentType := multipartCSRFBody(t, "")
	req := httptest.NewRequest(http.MethodPost, "/v1/vectorize", buf)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-CSRF-Token", CSRFToken("csrf-secret", "user-1"))
	req = req.WithContext(ContextWithUser(req.Context(), "user-1", false))
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCSRFRejectsMissingOrForeignToken(t *testing.T) {
	testCases := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"other user's token", CSRFToken("csrf-secret", "user-2")},
		{"other secret", CSRFToken("other-secret", "user-1")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/vectorize", nil)
			req = req.WithContext(ContextWithUser(req.Context(), "user-1", false))
			if tc.token != "" {
				req.Header.Set("X-CSRF-Token", tc.token)
			}
			rr := httptest.NewRecorder()
			csrfHandler().ServeHTTP(rr, req)
			if rr.Code != http.StatusForbidden {
				t.Fatalf("status = %d, want 403", rr.Code)
			}
		})
	}
}

func TestCSRFSkipsSafeMethods(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/jobs", nil)
	rr := httptest.NewRecorder()
	csrfHandler().ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d", rr.Code)
	}
}
