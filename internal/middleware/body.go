package middleware

import (
	"mime"
	"net/http"
)

// LimitBody caps JSON and form-encoded request bodies at n bytes. Reads past
// the cap fail with *http.MaxBytesError. Other content types pass through
// untouched, so multipart uploads are not affected.
func LimitBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && limited(r.Header.Get("Content-Type")) {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func limited(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || mt == "application/x-www-form-urlencoded"
}
