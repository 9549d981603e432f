package redis

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

type source struct {
	rdb *redis.Client
}

// NewSource returns a stream.Source reading redis pub/sub. The url passed to
// Connect is the channel name and every payload becomes a Message named
// after it.
func NewSource(rdb *redis.Client) stream.Source {
	return &source{rdb: rdb}
}

func (s *source) Connect(ctx context.Context, channel string, h stream.Handlers) (stream.Handle, error) {
	pubsub := s.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so publishes after Connect
	// returns are not missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, errors.Wrapf(domain.ErrTransport, "can't subscribe to %s: %v", channel, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	handle := &subscription{pubsub: pubsub, cancel: cancel}
	go handle.read(ctx, channel, h)

	return handle, nil
}

type subscription struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
	closed int32
	once   sync.Once
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		atomic.StoreInt32(&s.closed, 1)
		s.cancel()
		err = s.pubsub.Close()
	})

	return err
}

func (s *subscription) read(ctx context.Context, channel string, h stream.Handlers) {
	for {
		msg, err := s.pubsub.ReceiveMessage(ctx)
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return
			}
			_ = s.Close()
			if h.OnError != nil {
				h.OnError(errors.Wrapf(domain.ErrTransport, "redis channel %s: %v", channel, err))
			}
			return
		}
		if h.OnMessage != nil {
			h.OnMessage(stream.Message{Name: channel, Data: msg.Payload})
		}
	}
}
