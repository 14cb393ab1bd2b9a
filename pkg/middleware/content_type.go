package middleware

import (
	"mime"
	"net/http"

	"consultbook/pkg/logger"
)

const jsonMediaType = "application/json"

// ContentTypeValidation rejects write requests whose body is not JSON.
// Bodiless POSTs such as confirm or a manual reminder send pass through.
func ContentTypeValidation(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !carriesBody(r) {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Content-Type")
			mediaType, _, err := mime.ParseMediaType(header)
			if err != nil || mediaType != jsonMediaType {
				log.Warn("Rejected request body media type",
					"request_id", requestIDFrom(r),
					"method", r.Method,
					"path", r.URL.Path,
					"content_type", header,
				)
				reject(w, ErrUnsupportedMedia.WithDetails(map[string]any{"content_type": header}))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func carriesBody(r *http.Request) bool {
	if r.ContentLength == 0 {
		return false
	}
	return r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch
}
