package middleware

import "net/http"

// MaxRequestSize rejects declared oversize bodies up front and caps the rest
// with http.MaxBytesReader, which DecodeJSON reports as REQUEST_TOO_LARGE.
func MaxRequestSize(maxBytes int64) func(http.Handler) http.Handler {
	tooLarge := ErrRequestTooLarge.WithDetails(map[string]any{"max_bytes": maxBytes})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				reject(w, tooLarge)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}
