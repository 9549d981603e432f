package broker

import (
	"context"
	"sync/atomic"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const defaultQueueSize = 256

// AsyncHandle queues events for a consumer doing network I/O so delivery
// never waits on it. Events that do not fit the queue are dropped.
type AsyncHandle struct {
	id      string
	queue   chan *domain.Event
	dropped uint64
	log     logger.Logger
}

var _ domain.Handle = new(AsyncHandle)

func NewAsyncHandle(id string, size int) *AsyncHandle {
	if size <= 0 {
		size = defaultQueueSize
	}

	return &AsyncHandle{
		id:    id,
		queue: make(chan *domain.Event, size),
		log:   logger.DefaultLogger,
	}
}

func (h *AsyncHandle) ID() string { return h.id }

func (h *AsyncHandle) Send(ev *domain.Event) error {
	select {
	case h.queue <- ev:
	default:
		n := atomic.AddUint64(&h.dropped, 1)
		h.log.WithField("handle", h.id).
			Warnf("[AsyncHandle.Send] Queue full, dropped %s (%d so far).", ev.Name, n)
	}

	return nil
}

// Dropped returns how many events did not fit the queue.
func (h *AsyncHandle) Dropped() uint64 {
	return atomic.LoadUint64(&h.dropped)
}

// Run hands queued events to fn in batches until ctx is done.
func (h *AsyncHandle) Run(ctx context.Context, fn func(ctx context.Context, batch []*domain.Event)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-h.queue:
			batch := []*domain.Event{ev}
		drain:
			for len(batch) < cap(h.queue) {
				select {
				case ev := <-h.queue:
					batch = append(batch, ev)
				default:
					break drain
				}
			}
			fn(ctx, batch)
		}
	}
}
