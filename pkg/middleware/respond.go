package middleware

import (
	"context"
	"net/http"

	apperrors "consultbook/pkg/errors"
	httputil "consultbook/pkg/http"
)

const (
	CodeRequestTooLarge      = httputil.CodeRequestTooLarge
	CodeUnsupportedMedia     = "UNSUPPORTED_MEDIA_TYPE"
	CodeRateLimited          = "RATE_LIMITED"
	CodeIdempotencyKeyReused = "IDEMPOTENCY_KEY_REUSED"
)

var (
	ErrRequestTooLarge      = apperrors.New(CodeRequestTooLarge, "Request body too large", http.StatusRequestEntityTooLarge)
	ErrUnsupportedMedia     = apperrors.New(CodeUnsupportedMedia, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
	ErrRateLimited          = apperrors.New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
	ErrRequestTimeout       = apperrors.Timeout("Request timeout")
	ErrIdempotencyKeyReused = apperrors.New(CodeIdempotencyKeyReused, "Idempotency key was already used for a different request", http.StatusUnprocessableEntity)
	ErrUnreadableBody       = apperrors.InvalidInput("Request body could not be read")
	errPanic                = apperrors.Internal("Internal server error", nil)
)

func requestIDFrom(r *http.Request) string {
	return RequestIDFrom(r.Context())
}

// RequestIDFrom returns the request id stored by RequestLogging, or "".
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// reject renders a middleware error in the API error envelope. These errors
// carry no internal detail, so 5xx classes are written unmasked.
func reject(w http.ResponseWriter, err *apperrors.AppError) {
	httputil.WriteJSON(w, err.StatusCode(), apperrors.ErrorResponse{
		Code:    err.Code,
		Message: err.Message,
		Details: err.Details,
	})
}
