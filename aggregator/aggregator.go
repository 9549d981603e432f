package aggregator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

// Aggregator merges the upstream price and news streams into a periodic
// "bitcoin" snapshot published to every broadcast subscriber.
type Aggregator struct {
	mu    sync.Mutex
	price decimal.Decimal
	news  []string

	eventsBroker domain.EventsBroker
}

func New(eventsBroker domain.EventsBroker) *Aggregator {
	return &Aggregator{
		price:        decimal.Zero,
		eventsBroker: eventsBroker,
	}
}

// Watch connects the price and news streams through streams. The
// connections live until streams is closed.
func (a *Aggregator) Watch(ctx context.Context, streams *stream.Client, priceURL, newsURL string) {
	streams.Connect(ctx, priceURL, func(msg stream.Message) {
		a.OnPrice(ctx, msg.Data)
	})
	streams.Connect(ctx, newsURL, func(msg stream.Message) {
		a.OnNews(msg.Data)
	})
}

// OnPrice records the latest price. Unparsable ticks are ignored.
func (a *Aggregator) OnPrice(ctx context.Context, data string) {
	price, err := decimal.NewFromString(strings.TrimSpace(data))
	if err != nil {
		logger.FromContext(ctx).WithField("data", data).
			Warnf("[Aggregator.OnPrice] Skipping malformed price: %v", err)
		return
	}

	a.mu.Lock()
	a.price = price
	a.mu.Unlock()
}

func (a *Aggregator) OnNews(news string) {
	a.mu.Lock()
	a.news = append(a.news, news)
	a.mu.Unlock()
}

// Flush drains pending news and publishes the snapshot. News arriving after
// the drain belongs to the next flush.
func (a *Aggregator) Flush(ctx context.Context) domain.Aggregate {
	a.mu.Lock()
	snap := domain.Aggregate{Price: a.price, News: a.news}
	a.news = nil
	a.mu.Unlock()

	data, err := domain.EncodeAggregate(snap)
	if err != nil {
		logger.FromContext(ctx).Errorf("[Aggregator.Flush] %v", err)
		return snap
	}
	a.eventsBroker.PublishGlobal(domain.NewEvent(ctx, domain.EvNameBitcoin, data))

	return snap
}

// Run flushes every period after an initial delay until ctx is done.
func (a *Aggregator) Run(ctx context.Context, delay, period time.Duration) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(delay):
	}

	a.Flush(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.FromContext(ctx).Infof("[Aggregator.Run] Stopped.")
			return
		case <-ticker.C:
			a.Flush(ctx)
		}
	}
}
