package events

import (
	"context"
	"sync"
	"time"

	"consultbook/pkg/logger"
)

// Subscriber registers handlers for a topic. Router and Detached both
// implement it.
type Subscriber interface {
	Subscribe(topic string, handler Handler)
}

type detachedJob struct {
	ctx     context.Context
	topic   string
	payload []byte
	handler Handler
}

// Detached subscribes handlers that run on a small worker pool instead of
// the publishing goroutine. Each job gets a context that keeps the
// publisher's values but not its cancellation, bounded by timeout. When the
// queue is full the event is dropped and logged, the publisher never waits.
type Detached struct {
	router  *Router
	jobs    chan detachedJob
	timeout time.Duration
	log     *logger.Logger

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

func NewDetached(router *Router, workers, queueSize int, timeout time.Duration, log *logger.Logger) *Detached {
	if workers <= 0 {
		workers = 1
	}
	d := &Detached{
		router:  router,
		jobs:    make(chan detachedJob, queueSize),
		timeout: timeout,
		log:     log,
	}
	d.workers.Add(workers)
	for i := 0; i < workers; i++ {
		go d.work()
	}
	return d
}

func (d *Detached) Subscribe(topic string, handler Handler) {
	d.router.Subscribe(topic, func(ctx context.Context, topic string, payload []byte) error {
		d.enqueue(detachedJob{
			ctx:     context.WithoutCancel(ctx),
			topic:   topic,
			payload: payload,
			handler: handler,
		})
		return nil
	})
}

func (d *Detached) enqueue(job detachedJob) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("Detached subscriber closed, dropping event", "topic", job.topic)
		return
	}
	select {
	case d.jobs <- job:
	default:
		d.log.Error("Detached subscriber queue full, dropping event", "topic", job.topic, "queue_size", cap(d.jobs))
	}
}

func (d *Detached) work() {
	defer d.workers.Done()
	for job := range d.jobs {
		ctx, cancel := context.WithTimeout(job.ctx, d.timeout)
		if err := job.handler(ctx, job.topic, job.payload); err != nil {
			d.log.Error("Detached event handler failed", "topic", job.topic, "error", err)
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to finish, or for
// ctx to expire.
func (d *Detached) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
