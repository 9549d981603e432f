package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/broker"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

// Publisher relays registry events to redis channels named
// <prefix><subscription key>, so remote consumers can read them with
// NewSource. Global events go to <prefix><event name>.
type Publisher struct {
	rdb    *redis.Client
	prefix string
	handle *broker.AsyncHandle
	subs   []domain.Subscription
}

func NewPublisher(rdb *redis.Client, prefix string) *Publisher {
	return &Publisher{
		rdb:    rdb,
		prefix: prefix,
		handle: broker.NewAsyncHandle("redis-publisher", 0),
	}
}

// Channel returns the redis channel events of key are relayed to.
func (p *Publisher) Channel(key string) string {
	return p.prefix + key
}

// ChannelFor returns the redis channel ev is relayed to.
func (p *Publisher) ChannelFor(ev *domain.Event) string {
	key := ev.GetMeta(domain.MetaKey)
	if key == "" || key == domain.KeyBroadcast {
		key = ev.Name
	}

	return p.Channel(key)
}

// SubscribeFor relays the given registry keys.
func (p *Publisher) SubscribeFor(eventsBroker domain.EventsBroker, keys ...string) {
	for _, key := range keys {
		p.subs = append(p.subs, eventsBroker.Subscribe(key, p.handle))
	}
}

// Run publishes queued events until ctx is done.
func (p *Publisher) Run(ctx context.Context) {
	p.handle.Run(ctx, func(ctx context.Context, batch []*domain.Event) {
		pipe := p.rdb.Pipeline()
		for _, ev := range batch {
			pipe.Publish(ctx, p.ChannelFor(ev), ev.Data)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.FromContext(ctx).WithField("count", len(batch)).
				Errorf("[Publisher.Run] Can't publish to redis: %v", err)
		}
	})
}

func (p *Publisher) Close() {
	for _, sub := range p.subs {
		sub.Close()
	}
	p.subs = nil
}
