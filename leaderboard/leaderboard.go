package leaderboard

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const DefaultSize = 5

// Exchange provides the two inputs of a ranking.
type Exchange interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
	Price(ctx context.Context) (decimal.Decimal, error)
}

// Balances resolves the bank balance of a holder.
type Balances interface {
	GetBalance(accountID, ownerName string) (decimal.Decimal, error)
}

// Leaderboard periodically ranks holders by net worth and publishes the top
// entries to every broadcast subscriber.
type Leaderboard struct {
	exchange     Exchange
	balances     Balances
	eventsBroker domain.EventsBroker
	size         int

	mu        sync.Mutex
	seq       uint64
	published uint64
	last      []domain.LeaderboardEntry
}

func New(
	exchange Exchange,
	balances Balances,
	eventsBroker domain.EventsBroker,
	size int,
) *Leaderboard {
	if size <= 0 {
		size = DefaultSize
	}

	return &Leaderboard{
		exchange:     exchange,
		balances:     balances,
		eventsBroker: eventsBroker,
		size:         size,
	}
}

// Last returns the most recently published ranking.
func (l *Leaderboard) Last() []domain.LeaderboardEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]domain.LeaderboardEntry(nil), l.last...)
}

// Update fetches holdings and price concurrently, ranks the holders and
// publishes the result. If either fetch fails nothing is published and the
// previous ranking stays in place.
func (l *Leaderboard) Update(ctx context.Context) ([]domain.LeaderboardEntry, error) {
	l.mu.Lock()
	l.seq++
	seq := l.seq
	l.mu.Unlock()

	var (
		holdings []domain.Holding
		price    decimal.Decimal
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		holdings, err = l.exchange.Holdings(gctx)
		return
	})
	group.Go(func() (err error) {
		price, err = l.exchange.Price(gctx)
		return
	})
	if err := group.Wait(); err != nil {
		if !errors.Is(err, domain.ErrPartialData) {
			err = errors.Wrap(domain.ErrPartialData, err.Error())
		}
		return nil, err
	}

	entries := l.rank(holdings, price)

	data, err := domain.EncodeLeaderboard(entries)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// A slower, older tick must not replace a newer ranking.
	if seq < l.published {
		return entries, nil
	}
	l.published = seq
	l.last = entries
	l.eventsBroker.PublishGlobal(domain.NewEvent(ctx, domain.EvNameLeaderboard, data))

	return entries, nil
}

func (l *Leaderboard) rank(holdings []domain.Holding, price decimal.Decimal) []domain.LeaderboardEntry {
	entries := make([]domain.LeaderboardEntry, 0, len(holdings))
	for _, h := range holdings {
		worth := h.Units.Mul(price)
		// The bank may have restarted after the exchange, such holders are
		// ranked by their crypto alone.
		if balance, err := l.balances.GetBalance(h.BankAccountNo, h.Name); err == nil {
			worth = worth.Add(balance)
		}
		entries = append(entries, domain.LeaderboardEntry{Name: h.Name, NetWorth: worth})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NetWorth.GreaterThan(entries[j].NetWorth)
	})
	if len(entries) > l.size {
		entries = entries[:l.size]
	}

	return entries
}

// Run updates the ranking every period until ctx is done. Ticks run
// independently of each other.
func (l *Leaderboard) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.FromContext(ctx).Infof("[Leaderboard.Run] Stopped.")
			return
		case <-ticker.C:
			go func() {
				if _, err := l.Update(ctx); err != nil {
					logger.FromContext(ctx).Debugf("[Leaderboard.Run] Tick skipped: %v", err)
				}
			}()
		}
	}
}
