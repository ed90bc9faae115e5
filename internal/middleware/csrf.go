package middleware

import (
	"crypto/subtle"
	"net/http"
)

// CSRFFormField is the hidden form field carrying the session token.
const CSRFFormField = "csrf_token"

// CSRF rejects unsafe requests whose token, taken from the X-CSRF-Token header or the
// csrf_token form field, does not match the session. It must run after Sessions.Middleware.
func CSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := SessionFromContext(r.Context())
		if s == nil {
			http.Error(w, "session required", http.StatusForbidden)
			return
		}
		if s.CSRFToken == "" {
			s.CSRFToken = newCSRFToken()
			s.MarkDirty()
		}
		if !isSafeMethod(r.Method) {
			token := r.Header.Get("X-CSRF-Token")
			if token == "" {
				if err := r.ParseForm(); err != nil {
					status := FormStatus(err)
					http.Error(w, http.StatusText(status), status)
					return
				}
				token = r.PostForm.Get(CSRFFormField)
			}
			if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.CSRFToken)) != 1 {
				http.Error(w, "invalid CSRF token", http.StatusForbidden)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	default:
		return false
	}
}
