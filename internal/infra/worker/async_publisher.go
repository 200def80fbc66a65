package worker

import (
	"context"
	"time"

	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/infra/metrics"
)

var _ adapter.EventPublisher = (*AsyncPublisher)(nil)

// AsyncPublisher hands subscription events to a Pool so the notification
// response does not wait on the broker. Events are dropped when the queue is full.
type AsyncPublisher struct {
	inner   adapter.EventPublisher
	pool    *Pool
	timeout time.Duration
}

func NewAsyncPublisher(inner adapter.EventPublisher, pool *Pool, timeout time.Duration) *AsyncPublisher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AsyncPublisher{inner: inner, pool: pool, timeout: timeout}
}

func (a *AsyncPublisher) PublishSubscriptionEvent(ctx context.Context, ev adapter.SubscriptionEvent) error {
	// keep request values (trace id) but not its deadline
	detached := context.WithoutCancel(ctx)
	err := a.pool.Submit(func(context.Context) error {
		ctx, cancel := context.WithTimeout(detached, a.timeout)
		defer cancel()
		if err := a.inner.PublishSubscriptionEvent(ctx, ev); err != nil {
			metrics.IncEventPublished("error")
			return err
		}
		metrics.IncEventPublished("ok")
		return nil
	})
	if err != nil {
		metrics.IncEventPublished("dropped")
	}
	return err
}

// Close drains queued events before closing the underlying publisher.
func (a *AsyncPublisher) Close() error {
	a.pool.Stop()
	return a.inner.Close()
}
