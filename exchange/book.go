package exchange

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/remote"
)

var minTradeUnits = decimal.New(1, -4)

// PriceSource returns the current bitcoin price.
type PriceSource interface {
	Price() decimal.Decimal
}

type userKey struct {
	name      string
	accountNo string
}

// pendingSale is a sale whose proceeds have not reached the bank yet.
type pendingSale struct {
	timer  *time.Timer
	settle func(ctx context.Context)
}

// Book holds bitcoin positions keyed by name and bank account. Purchases are
// paid before the units are credited, sales credit the bank later. Shutdown
// settles the sales still waiting.
type Book struct {
	mu       sync.Mutex
	holdings map[userKey]decimal.Decimal
	sales    map[*pendingSale]struct{}
	settling sync.WaitGroup
	closed   bool

	prices       PriceSource
	bank         remote.Caller
	transactURL  string
	eventsBroker domain.EventsBroker

	purchaseDelay func() time.Duration
	saleDelay     func() time.Duration
}

// NewBook returns a Book settling with the bank at transactURL, which is
// joined with the account number.
func NewBook(
	prices PriceSource,
	bank remote.Caller,
	transactURL string,
	eventsBroker domain.EventsBroker,
) *Book {
	return &Book{
		holdings:      make(map[userKey]decimal.Decimal),
		sales:         make(map[*pendingSale]struct{}),
		prices:        prices,
		bank:          bank,
		transactURL:   strings.TrimSuffix(transactURL, "/") + "/",
		eventsBroker:  eventsBroker,
		purchaseDelay: randomDelay(1, 4),
		saleDelay:     randomDelay(5, 9),
	}
}

// WithSettleDelays overrides the simulated purchase and sale settle times.
func (b *Book) WithSettleDelays(purchase, sale time.Duration) *Book {
	b.purchaseDelay = func() time.Duration { return purchase }
	b.saleDelay = func() time.Duration { return sale }
	return b
}

func randomDelay(minSec, maxSec int) func() time.Duration {
	return func() time.Duration {
		return time.Duration(minSec+rand.Intn(maxSec-minSec+1)) * time.Second
	}
}

// Trade buys (units > 0) or sells (units < 0) bitcoin and returns the new
// position.
func (b *Book) Trade(ctx context.Context, trade domain.Holding) (domain.Holding, error) {
	if trade.Units.Abs().LessThan(minTradeUnits) {
		return domain.Holding{}, errors.Wrap(
			domain.ErrTradeRejected, "cannot trade in increments smaller than 0.0001",
		)
	}

	amount := b.prices.Price().Mul(trade.Units)
	if trade.Units.IsPositive() {
		return b.purchase(ctx, trade, amount)
	}

	return b.sell(ctx, trade, amount)
}

func (b *Book) purchase(
	ctx context.Context,
	trade domain.Holding,
	amount decimal.Decimal,
) (domain.Holding, error) {
	if err := b.settle(ctx, trade, amount.Neg()); err != nil {
		return domain.Holding{}, errors.Wrap(
			domain.ErrTradeRejected,
			"unable to get funds from the bank to purchase Bitcoin, check your bank balance",
		)
	}

	select {
	case <-ctx.Done():
		// The bank has been paid already, the units are still credited.
	case <-time.After(b.purchaseDelay()):
	}

	b.mu.Lock()
	key := userKey{trade.Name, trade.BankAccountNo}
	units := b.holdings[key].Add(trade.Units)
	b.holdings[key] = units
	b.mu.Unlock()

	b.publishNews(ctx, fmt.Sprintf(
		"%s just purchased %s Bitcoin for %s",
		trade.Name, trade.Units.StringFixed(3), formatUSD(amount.Abs()),
	))

	return domain.Holding{Name: trade.Name, BankAccountNo: trade.BankAccountNo, Units: units}, nil
}

func (b *Book) sell(
	ctx context.Context,
	trade domain.Holding,
	amount decimal.Decimal,
) (domain.Holding, error) {
	key := userKey{trade.Name, trade.BankAccountNo}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.Holding{}, errors.Wrap(domain.ErrTradeRejected, "the exchange is shutting down")
	}
	current, ok := b.holdings[key]
	if !ok {
		b.mu.Unlock()
		return domain.Holding{}, errors.Wrap(domain.ErrTradeRejected, "you don't hold any Bitcoin")
	}
	units := current.Add(trade.Units)
	if units.IsNegative() {
		b.mu.Unlock()
		return domain.Holding{}, errors.Wrap(
			domain.ErrTradeRejected, "you don't hold enough Bitcoin to complete the transaction",
		)
	}
	b.holdings[key] = units

	// The proceeds reach the bank later, failures are only logged.
	log := logger.FromContext(ctx)
	sale := &pendingSale{settle: func(ctx context.Context) {
		defer b.settling.Done()
		if err := b.settle(logger.WithLogger(ctx, log), trade, amount.Neg()); err != nil {
			log.WithField("accountNo", trade.BankAccountNo).
				Errorf("[Book.sell] Sale proceeds lost: %v", err)
		}
	}}
	b.settling.Add(1)
	b.sales[sale] = struct{}{}
	sale.timer = time.AfterFunc(b.saleDelay(), func() {
		if b.takeSale(sale) {
			sale.settle(context.Background())
		}
	})
	b.mu.Unlock()

	b.publishNews(ctx, fmt.Sprintf(
		"%s just sold %s Bitcoin for %s",
		trade.Name, trade.Units.StringFixed(3), formatUSD(amount.Abs()),
	))

	return domain.Holding{Name: trade.Name, BankAccountNo: trade.BankAccountNo, Units: units}, nil
}

func (b *Book) takeSale(sale *pendingSale) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.sales[sale]; !ok {
		return false
	}
	delete(b.sales, sale)

	return true
}

// Pending returns the number of sales whose proceeds are not settled yet.
func (b *Book) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.sales)
}

// Shutdown rejects further sales, settles the pending ones right away and
// waits for settlements in flight until ctx is done.
func (b *Book) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	b.closed = true
	due := make([]*pendingSale, 0, len(b.sales))
	for sale := range b.sales {
		sale.timer.Stop()
		due = append(due, sale)
	}
	b.sales = make(map[*pendingSale]struct{})
	b.mu.Unlock()

	for _, sale := range due {
		sale.settle(ctx)
	}

	done := make(chan struct{})
	go func() {
		b.settling.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "sale settlements still in flight")
	}
}

func (b *Book) settle(ctx context.Context, trade domain.Holding, amount decimal.Decimal) error {
	body, err := domain.EncodeTransactRequest(domain.TransactRequest{Name: trade.Name, Amount: amount})
	if err != nil {
		return err
	}

	status, _, err := b.bank.Post(ctx, b.transactURL+trade.BankAccountNo, body)
	if err != nil {
		return err
	}
	if status >= http.StatusMultipleChoices {
		return errors.Errorf("bank responded with status %d", status)
	}

	return nil
}

func (b *Book) publishNews(ctx context.Context, msg string) {
	b.eventsBroker.Publish(domain.KeyNews, domain.NewEvent(ctx, domain.EvNameNews, msg))
}

// Holdings returns every position sorted by name and account.
func (b *Book) Holdings() []domain.Holding {
	b.mu.Lock()
	res := make([]domain.Holding, 0, len(b.holdings))
	for k, units := range b.holdings {
		res = append(res, domain.Holding{Name: k.name, BankAccountNo: k.accountNo, Units: units})
	}
	b.mu.Unlock()

	sort.Slice(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].BankAccountNo < res[j].BankAccountNo
	})

	return res
}

// formatUSD renders amount as $1,234.56.
func formatUSD(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	intPart, frac := fixed, ""
	if i := strings.IndexByte(fixed, '.'); i >= 0 {
		intPart, frac = fixed[:i], fixed[i:]
	}

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}

	return "$" + sb.String() + frac
}
