package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/broker"
	"bitbucket.org/novatechnologies/cryptotrader/infra/redis"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

type recorder struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (r *recorder) ID() string { return "recorder" }

func (r *recorder) Send(ev *domain.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) byName() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	res := make(map[string]string, len(r.events))
	for _, ev := range r.events {
		res[ev.Name] = ev.Data
	}
	return res
}

func TestNewSource(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	for _, name := range []string{"", SSE, Centrifugo, Redis} {
		conf := infra.Config{}
		conf.StreamConfig.Transport = name
		conf.RedisConfig.Addr = mr.Addr()

		source, release, err := NewSource(ctx, conf)
		require.NoError(t, err, name)
		assert.NotNil(t, source, name)
		release()
	}

	conf := infra.Config{}
	conf.StreamConfig.Transport = "carrier-pigeon"
	_, _, err := NewSource(ctx, conf)
	assert.Error(t, err)
}

func TestGlobalTargets(t *testing.T) {
	conf := infra.Config{}
	conf.StreamConfig.BroadcastTarget = "http://localhost:8080/broadcast"
	conf.RedisConfig.Prefix = "cryptotrader:"

	assert.Equal(t, []Target{{URL: "http://localhost:8080/broadcast"}}, GlobalTargets(conf))

	conf.StreamConfig.Transport = Redis
	assert.Equal(t, []Target{
		{URL: "cryptotrader:bitcoin", Name: domain.EvNameBitcoin},
		{URL: "cryptotrader:leaderboard", Name: domain.EvNameLeaderboard},
	}, GlobalTargets(conf))

	conf.StreamConfig.Transport = Centrifugo
	assert.Equal(t, []Target{
		{URL: "cryptotrader_bitcoin", Name: domain.EvNameBitcoin},
		{URL: "cryptotrader_leaderboard", Name: domain.EvNameLeaderboard},
	}, GlobalTargets(conf))
}

func TestRelayGlobal_RedisKeepsTopicsApart(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conf := infra.Config{}
	conf.StreamConfig.Transport = Redis
	conf.RedisConfig.Addr = mr.Addr()
	conf.RedisConfig.Prefix = "cryptotrader:"

	rdb, err := redis.NewClient(ctx, conf.RedisConfig)
	require.NoError(t, err)
	defer rdb.Close()

	upstream := broker.NewInMemory()
	publisher := redis.NewPublisher(rdb, conf.RedisConfig.Prefix)
	publisher.SubscribeFor(upstream, domain.KeyBroadcast)
	defer publisher.Close()
	go publisher.Run(ctx)

	source, release, err := NewSource(ctx, conf)
	require.NoError(t, err)
	defer release()

	streams := stream.NewClient(source, 10*time.Millisecond)
	defer streams.Close()

	downstream := broker.NewInMemory()
	conns := RelayGlobal(ctx, streams, GlobalTargets(conf), downstream)
	require.Len(t, conns, 2)
	for _, conn := range conns {
		require.Equal(t, 1, conn.Attempts())
	}

	upstream.PublishGlobal(domain.NewEvent(ctx, domain.EvNameBitcoin, `{"bitcoin":1.05,"news":[]}`))
	upstream.PublishGlobal(domain.NewEvent(ctx, domain.EvNameLeaderboard, `[{"name":"alice"}]`))

	live := &recorder{}
	sub := downstream.Subscribe(domain.KeyBroadcast, live)
	defer sub.Close()

	require.Eventually(t, func() bool {
		return len(live.byName()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	late := &recorder{}
	lateSub := downstream.Subscribe(domain.KeyBroadcast, late)
	defer lateSub.Close()

	want := map[string]string{
		domain.EvNameBitcoin:     `{"bitcoin":1.05,"news":[]}`,
		domain.EvNameLeaderboard: `[{"name":"alice"}]`,
	}
	assert.Equal(t, want, live.byName())
	assert.Equal(t, want, late.byName(), "each topic keeps its own catch-up entry")
}
