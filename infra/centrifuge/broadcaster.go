package centrifuge

import (
	"context"
	"encoding/json"
	"strings"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/broker"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const (
	DefaultNamespace = "cryptotrader"
	wsChannelSep     = "_"
)

// Broadcaster pushes registry events to Centrifugo. Global events go to
// <namespace>_<event name>, keyed events to <namespace>_<key>.
type Broadcaster struct {
	centrifuge Centrifuge
	namespace  string
	handle     *broker.AsyncHandle
	subs       []domain.Subscription
}

func NewBroadcaster(publisher Centrifuge, namespace string) *Broadcaster {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Broadcaster{
		centrifuge: publisher,
		namespace:  namespace,
		handle:     broker.NewAsyncHandle("centrifuge-broadcaster", 0),
	}
}

// SubscribeFor relays the given registry keys.
func (b *Broadcaster) SubscribeFor(eventsBroker domain.EventsBroker, keys ...string) {
	for _, key := range keys {
		b.subs = append(b.subs, eventsBroker.Subscribe(key, b.handle))
	}
}

// ChannelFor returns the Centrifugo channel of ev.
func (b *Broadcaster) ChannelFor(ev *domain.Event) string {
	topic := ev.GetMeta(domain.MetaKey)
	if topic == "" || topic == domain.KeyBroadcast {
		topic = ev.Name
	}

	return Channel(b.namespace, topic)
}

// Channel returns the Centrifugo channel of topic within namespace.
func Channel(namespace, topic string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return strings.Join([]string{namespace, topic}, wsChannelSep)
}

// Run publishes queued events in batches until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) {
	b.handle.Run(ctx, func(ctx context.Context, batch []*domain.Event) {
		messages := make([]MessageData, 0, len(batch))
		for _, ev := range batch {
			messages = append(messages, MessageData{Channel: b.ChannelFor(ev), Data: dataFor(ev)})
		}

		logger.FromContext(ctx).WithField("messageCount", len(messages)).
			Tracef("[Broadcaster.Run] Push events to Centrifugo.")

		if err := b.centrifuge.BatchPublish(ctx, messages); err != nil {
			logger.FromContext(ctx).Errorf("[Broadcaster.Run] %v", err)
		}
	})
}

// dataFor quotes news, which is free text even when it happens to parse as
// JSON.
func dataFor(ev *domain.Event) string {
	if ev.Name != domain.EvNameNews {
		return ev.Data
	}
	bs, _ := json.Marshal(ev.Data)

	return string(bs)
}

func (b *Broadcaster) Close() {
	for _, sub := range b.subs {
		sub.Close()
	}
	b.subs = nil
}
