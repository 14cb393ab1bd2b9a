package mongo

import (
	"context"
	"time"
)

// WithTimeout bounds ctx by timeout without ever extending an existing
// deadline. Inside a transaction the SessionContext is returned unchanged,
// since wrapping it would detach the operation from the session.
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if InTransaction(ctx) {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}

	return context.WithTimeout(ctx, timeout)
}
