package exchange

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const pricePrecision = 8

var (
	crashCeiling = decimal.NewFromInt(20000)
	priceFloor   = decimal.New(1, -2)
)

// PriceTicker simulates the bitcoin market. The price trends in one
// direction for a random number of ticks, and a hint about the trend is
// published as news a few ticks after it starts.
type PriceTicker struct {
	mu           sync.Mutex
	rnd          *rand.Rand
	price        decimal.Decimal
	direction    float64
	ticksLeft    int
	newsMessage  string
	messageTicks int

	eventsBroker domain.EventsBroker
}

func NewPriceTicker(eventsBroker domain.EventsBroker, seed int64) *PriceTicker {
	return &PriceTicker{
		rnd:          rand.New(rand.NewSource(seed)),
		price:        decimal.NewFromInt(1),
		ticksLeft:    5,
		eventsBroker: eventsBroker,
	}
}

func (p *PriceTicker) Price() decimal.Decimal {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.price
}

// Run ticks every period until ctx is done.
func (p *PriceTicker) Run(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.FromContext(ctx).Infof("[PriceTicker.Run] Stopped.")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}

// Tick advances the price once and publishes it, along with any due news.
func (p *PriceTicker) Tick(ctx context.Context) decimal.Decimal {
	p.mu.Lock()
	news := p.advanceMarket()
	change := p.rnd.Float64()*0.02 - 0.01
	p.price = p.price.Add(
		p.price.Mul(decimal.NewFromFloat(p.direction + change)),
	).Round(pricePrecision)
	if p.price.LessThan(priceFloor) {
		p.price = priceFloor
	}
	price := p.price
	p.mu.Unlock()

	if news != "" {
		p.eventsBroker.Publish(domain.KeyNews, domain.NewEvent(ctx, domain.EvNameNews, news))
	}
	p.eventsBroker.Publish(domain.KeyPrice, domain.NewEvent(ctx, domain.EvNamePrice, price.String()))

	return price
}

// advanceMarket must be called with mu held. It returns the news message
// that became due on this tick, if any.
func (p *PriceTicker) advanceMarket() string {
	p.ticksLeft--
	switch {
	case p.ticksLeft <= 0:
		p.pickRegime()
	case p.price.GreaterThan(crashCeiling):
		p.direction = p.rnd.Float64()*-0.1 - 0.1
		p.ticksLeft = p.rnd.Intn(10) + 10
		p.newsMessage = "Bitcoin is crashing hard"
		p.messageTicks = p.rnd.Intn(5) + 2
	}

	if p.newsMessage == "" {
		return ""
	}
	p.messageTicks--
	if p.messageTicks > 0 {
		return ""
	}
	msg := p.newsMessage
	p.newsMessage = ""

	return msg
}

func (p *PriceTicker) pickRegime() {
	switch d := p.rnd.Intn(100); {
	case d <= 3:
		p.direction = p.rnd.Float64()*-0.1 - 0.02
		p.ticksLeft = p.rnd.Intn(10) + 5
		p.newsMessage = "Bitcoin is experiencing a correction"
		p.messageTicks = p.rnd.Intn(5)
	case d <= 10:
		p.direction = p.rnd.Float64()*0.1 + 0.01
		p.ticksLeft = p.rnd.Intn(20) + 5
		p.newsMessage = "The price of bitcoin is skyrocketing, everyone is buying in"
		p.messageTicks = p.rnd.Intn(15)
	case d <= 40:
		p.direction = p.rnd.Float64() * -0.03
		p.ticksLeft = p.rnd.Intn(20) + 15
		p.newsMessage = "Bitcoin seems to be in a bear market at the moment"
		p.messageTicks = p.rnd.Intn(15) + 5
	default:
		p.direction = p.rnd.Float64() * 0.05
		p.ticksLeft = p.rnd.Intn(20) + 15
		p.newsMessage = "Bitcoin seems to be in a bull market at the moment"
		p.messageTicks = p.rnd.Intn(15) + 5
	}
}
