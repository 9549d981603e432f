package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlekSi/pointer"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/novatechnologies/cryptotrader/aggregator"
	"bitbucket.org/novatechnologies/cryptotrader/api/http"
	exchangecli "bitbucket.org/novatechnologies/cryptotrader/client/exchange"
	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/exchange"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/broker"
	"bitbucket.org/novatechnologies/cryptotrader/infra/centrifuge"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/redis"
	"bitbucket.org/novatechnologies/cryptotrader/infra/remote"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
	"bitbucket.org/novatechnologies/cryptotrader/infra/transport"
	"bitbucket.org/novatechnologies/cryptotrader/leaderboard"
	"bitbucket.org/novatechnologies/cryptotrader/ledger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	conf := infra.SetConfig("./config/.env")
	log := logger.Configure(conf.LogConfig.Level, conf.LogConfig.Format)

	ctx, stop := signal.NotifyContext(infra.GetContext(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logger.WithLogger(ctx, log)

	if err := run(ctx, conf); err != nil {
		log.Fatalf("[main] %v", err)
	}
}

func run(ctx context.Context, conf infra.Config) error {
	group, ctx := errgroup.WithContext(ctx)
	eventsBroker := broker.NewInMemory().WithLogger(logger.FromContext(ctx))

	// Bank.
	startingBalance, err := decimal.NewFromString(conf.BankConfig.StartingBalance)
	if err != nil {
		return errors.Wrap(err, "invalid starting balance")
	}
	accounts := ledger.New(startingBalance)
	bank := ledger.NewBank(accounts, eventsBroker)

	// Exchange.
	ticker := exchange.NewPriceTicker(eventsBroker, time.Now().UnixNano())
	book := exchange.NewBook(
		ticker,
		remote.New(0),
		conf.BankConfig.BaseURL+"/transact/",
		eventsBroker,
	)
	group.Go(func() error {
		ticker.Run(ctx, conf.ScheduleConfig.PriceTick)
		return nil
	})

	server := http.NewServer(http.Services{
		EventsBroker: eventsBroker,
		Bank:         bank,
		Prices:       ticker,
		Book:         book,
	}, conf.HttpConfig)
	server.Start(ctx)

	// Aggregator reads the exchange back through the configured transport.
	source, closeSource, err := transport.NewSource(ctx, conf)
	if err != nil {
		return err
	}
	defer closeSource()

	streams := stream.NewClient(source, conf.StreamConfig.ReconnectDelay).
		WithLogger(logger.FromContext(ctx))
	defer streams.Close()

	agg := aggregator.New(eventsBroker)
	agg.Watch(ctx, streams, conf.StreamConfig.PriceTarget, conf.StreamConfig.NewsTarget)
	group.Go(func() error {
		agg.Run(ctx, conf.ScheduleConfig.AggregateDelay, conf.ScheduleConfig.AggregatePeriod)
		return nil
	})

	// Leaderboard.
	exchangeClient, err := exchangecli.New(
		exchangecli.Config{
			ServerURL:           conf.ExchangeConfig.BaseURL,
			ServerTLS:           conf.ExchangeConfig.ServerTLS,
			MaxConns:            pointer.ToInt(16),
			MaxIdleConnDuration: pointer.ToDuration(time.Minute),
			ReadTimeout:         pointer.ToDuration(4 * time.Second),
			WriteTimeout:        pointer.ToDuration(4 * time.Second),
		},
		exchangecli.NewErrorProcessor(map[string]string{}),
		conf.ExchangeConfig.Token,
	)
	if err != nil {
		return errors.Wrap(err, "can't create exchange client")
	}
	board := leaderboard.New(exchangeClient, accounts, eventsBroker, conf.ScheduleConfig.LeaderboardSize)
	group.Go(func() error {
		board.Run(ctx, conf.ScheduleConfig.LeaderboardPeriod)
		return nil
	})

	// Optional relays.
	if conf.CentrifugeConfig.Enabled {
		broadcaster := centrifuge.NewBroadcaster(centrifuge.New(conf.CentrifugeConfig), "")
		broadcaster.SubscribeFor(eventsBroker, domain.KeyBroadcast, domain.KeyPrice, domain.KeyNews)
		defer broadcaster.Close()
		group.Go(func() error {
			broadcaster.Run(ctx)
			return nil
		})
	}
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

	<-ctx.Done()
	logger.FromContext(ctx).Infof("[main] Shutting down.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	server.Stop(shutdownCtx)
	if err := book.Shutdown(shutdownCtx); err != nil {
		logger.FromContext(ctx).Errorf("[main] %v", err)
	}

	return group.Wait()
}
