package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/broker"
	"bitbucket.org/novatechnologies/cryptotrader/infra/centrifuge"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/redis"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
	"bitbucket.org/novatechnologies/cryptotrader/infra/transport"
)

// The consumer follows the price, news and broadcast streams of a running
// service and relays them to Centrifugo and, optionally, redis.
func main() {
	conf := infra.SetConfig("./config/.env")
	log := logger.Configure(conf.LogConfig.Level, conf.LogConfig.Format)

	ctx, stop := signal.NotifyContext(infra.GetContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	if err := run(ctx, conf); err != nil {
		log.Fatalf("[consumer] %v", err)
	}
}

func run(ctx context.Context, conf infra.Config) error {
	group, ctx := errgroup.WithContext(ctx)
	eventsBroker := broker.NewInMemory().WithLogger(logger.FromContext(ctx))

	broadcaster := centrifuge.NewBroadcaster(centrifuge.New(conf.CentrifugeConfig), "")
	broadcaster.SubscribeFor(eventsBroker, domain.KeyBroadcast, domain.KeyPrice, domain.KeyNews)
	defer broadcaster.Close()
	group.Go(func() error {
		broadcaster.Run(ctx)
		return nil
	})

	if conf.RedisConfig.Publish {
		rdb, err := redis.NewClient(ctx, conf.RedisConfig)
		if err != nil {
			return err
		}
		defer rdb.Close()

		publisher := redis.NewPublisher(rdb, conf.RedisConfig.Prefix)
		publisher.SubscribeFor(eventsBroker, domain.KeyBroadcast, domain.KeyPrice, domain.KeyNews)
		defer publisher.Close()
		group.Go(func() error {
			publisher.Run(ctx)
			return nil
		})
	}

	source, closeSource, err := transport.NewSource(ctx, conf)
	if err != nil {
		return err
	}
	defer closeSource()

	streams := stream.NewClient(source, conf.StreamConfig.ReconnectDelay).
		WithLogger(logger.FromContext(ctx))
	defer streams.Close()

	streams.Connect(ctx, conf.StreamConfig.PriceTarget, func(msg stream.Message) {
		eventsBroker.Publish(domain.KeyPrice, domain.NewEvent(ctx, domain.EvNamePrice, msg.Data))
	})
	streams.Connect(ctx, conf.StreamConfig.NewsTarget, func(msg stream.Message) {
		eventsBroker.Publish(domain.KeyNews, domain.NewEvent(ctx, domain.EvNameNews, msg.Data))
	})
	transport.RelayGlobal(ctx, streams, transport.GlobalTargets(conf), eventsBroker)

	logger.FromContext(ctx).Infof("[consumer] Relaying streams.")
	<-ctx.Done()
	logger.FromContext(ctx).Infof("[consumer] Shutting down.")

	return group.Wait()
}
