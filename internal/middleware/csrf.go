package middleware

import (
	"crypto/hmac"
	"net/http"
	"strings"
)

// CSRFToken derives the per-user CSRF token. It is handed out at login
// and must come back on every mutating request, as the X-CSRF-Token
// header or as a csrf_token form field. Multipart requests must use
// the header.
func CSRFToken(secret, userID string) string {
	return hmacSign(secret, "csrf:"+userID)
}

// CSRF verifies the double-submit token for mutating methods. It runs
// after SessionAuth, so the user id is already in the request context.
func CSRF(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			userID := UserIDFromContext(r.Context())
			token := r.Header.Get("X-CSRF-Token")
			// The form fallback must not consume a multipart body here;
			// upload handlers cap and parse that body themselves.
			if token == "" && !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
				token = r.FormValue("csrf_token")
			}
			expected := CSRFToken(secret, userID)
			if userID == "" || token == "" || !hmac.Equal([]byte(expected), []byte(token)) {
				http.Error(w, "invalid csrf token", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
