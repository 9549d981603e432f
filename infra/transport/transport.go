package transport

import (
	"context"

	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/centrifuge"
	"bitbucket.org/novatechnologies/cryptotrader/infra/centrifugo"
	"bitbucket.org/novatechnologies/cryptotrader/infra/redis"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

const (
	SSE        = "sse"
	Centrifugo = "centrifugo"
	Redis      = "redis"
)

// NewSource returns the stream transport named by conf.StreamConfig.Transport
// and a func releasing its resources.
func NewSource(ctx context.Context, conf infra.Config) (stream.Source, func(), error) {
	switch conf.StreamConfig.Transport {
	case "", SSE:
		return stream.NewSSESource(), func() {}, nil
	case Centrifugo:
		return centrifugo.NewSource(conf.CentrifugeConfig), func() {}, nil
	case Redis:
		rdb, err := redis.NewClient(ctx, conf.RedisConfig)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewSource(rdb), func() { _ = rdb.Close() }, nil
	default:
		return nil, nil, errors.Errorf("unknown stream transport %q", conf.StreamConfig.Transport)
	}
}

// Target is an upstream carrying global events. An empty Name means the
// transport names each message itself.
type Target struct {
	URL  string
	Name domain.EventName
}

// GlobalTargets returns the upstreams carrying domain.GlobalTopics. SSE
// multiplexes them over BroadcastTarget, redis and Centrifugo carry each
// topic on its own channel.
func GlobalTargets(conf infra.Config) []Target {
	var targets []Target
	switch conf.StreamConfig.Transport {
	case Centrifugo:
		for _, topic := range domain.GlobalTopics {
			targets = append(targets, Target{URL: centrifuge.Channel("", topic), Name: topic})
		}
	case Redis:
		for _, topic := range domain.GlobalTopics {
			targets = append(targets, Target{URL: conf.RedisConfig.Prefix + topic, Name: topic})
		}
	default:
		targets = append(targets, Target{URL: conf.StreamConfig.BroadcastTarget})
	}

	return targets
}

// RelayGlobal republishes the events read from targets with
// EventsBroker.PublishGlobal.
func RelayGlobal(
	ctx context.Context,
	streams *stream.Client,
	targets []Target,
	eventsBroker domain.EventsBroker,
) []*stream.Connection {
	conns := make([]*stream.Connection, 0, len(targets))
	for _, target := range targets {
		name := target.Name
		conns = append(conns, streams.Connect(ctx, target.URL, func(msg stream.Message) {
			evName := name
			if evName == "" {
				evName = msg.Name
			}
			eventsBroker.PublishGlobal(domain.NewEvent(ctx, evName, msg.Data))
		}))
	}

	return conns
}
