package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-http-utils/headers"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

const sinkBufferSize = 64

var errSinkGone = errors.New("event sink is gone")

// Sink is a server-sent events client. Send never blocks: a client that
// stops reading until its buffer fills is treated as disconnected.
type Sink struct {
	id    string
	queue chan *domain.Event
	done  chan struct{}
	once  sync.Once
}

var _ domain.Handle = new(Sink)

func NewSink(size int) *Sink {
	if size <= 0 {
		size = sinkBufferSize
	}

	return &Sink{
		id:    uuid.New().String(),
		queue: make(chan *domain.Event, size),
		done:  make(chan struct{}),
	}
}

func (s *Sink) ID() string { return s.id }

func (s *Sink) Send(ev *domain.Event) error {
	select {
	case <-s.done:
		return errSinkGone
	default:
	}

	select {
	case s.queue <- ev:
		return nil
	default:
		s.stop()
		return errors.Wrap(errSinkGone, "buffer is full")
	}
}

func (s *Sink) stop() {
	s.once.Do(func() { close(s.done) })
}

// Pump writes queued events to w until ctx is done, the sink overflows or a
// write fails.
func (s *Sink) Pump(ctx context.Context, w http.ResponseWriter, flusher http.Flusher) error {
	defer s.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.done:
			return errSinkGone
		case ev := <-s.queue:
			if err := stream.WriteEvent(w, ev.Name, ev.Data); err != nil {
				return errors.Wrap(err, "can't write event")
			}
			flusher.Flush()
		}
	}
}

// StreamHandler serves registry keys as server-sent event streams.
type StreamHandler struct {
	eventsBroker domain.EventsBroker
}

func NewStreamHandler(eventsBroker domain.EventsBroker) *StreamHandler {
	return &StreamHandler{eventsBroker: eventsBroker}
}

// Watch returns a handler streaming key, resolved per request by keyFn.
func (h *StreamHandler) Watch(keyFn func(r *http.Request) string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.Serve(w, r, keyFn(r))
	}
}

// Serve streams every event published under key until the client leaves.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set(headers.ContentType, stream.ContentTypeEventStream)
	w.Header().Set(headers.CacheControl, "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sink := NewSink(sinkBufferSize)
	sub := h.eventsBroker.Subscribe(key, sink)
	defer sub.Close()

	log := logger.FromContext(r.Context()).WithField("key", key).WithField("sink", sink.ID())
	log.Debugf("[StreamHandler.Serve] Client connected.")

	if err := sink.Pump(r.Context(), w, flusher); err != nil {
		log.Infof("[StreamHandler.Serve] Client dropped: %v", err)
		return
	}
	log.Debugf("[StreamHandler.Serve] Client left.")
}
