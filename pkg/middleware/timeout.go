package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// guardedWriter serializes the handler goroutine and the deadline path so a
// response is started by exactly one of them.
type guardedWriter struct {
	http.ResponseWriter

	mu      sync.Mutex
	started bool
	expired bool
}

func (g *guardedWriter) WriteHeader(code int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired || g.started {
		return
	}
	g.started = true
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardedWriter) Write(b []byte) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expired {
		return 0, http.ErrHandlerTimeout
	}
	g.started = true
	return g.ResponseWriter.Write(b)
}

// expire marks the writer dead and reports whether the caller may still
// send its own response.
func (g *guardedWriter) expire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.expired = true
	return !g.started
}

// RequestTimeout bounds a request with a context deadline. Store and broker
// calls observe the deadline so a timed out handler stops doing work.
func RequestTimeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			gw := &guardedWriter{ResponseWriter: w}
			finished := make(chan any, 1)

			go func() {
				var recovered any
				defer func() {
					if p := recover(); p != nil {
						recovered = p
					}
					finished <- recovered
				}()
				next.ServeHTTP(gw, r.WithContext(ctx))
			}()

			select {
			case p := <-finished:
				// re-raised on the serving goroutine for Recovery
				if p != nil {
					panic(p)
				}
			case <-ctx.Done():
				if gw.expire() {
					reject(w, ErrRequestTimeout)
				}
			}
		})
	}
}
