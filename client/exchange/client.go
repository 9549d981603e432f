package exchange

import (
	"context"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

const (
	httpMethodGet    = "GET"
	uriPathHoldings  = "/bitcoin/trade/holdings"
	uriPathPrice     = "/bitcoin/price"
	defaultTimeoutRq = 4 * time.Second
)

// Client queries the exchange service.
type Client interface {
	Holdings(ctx context.Context) ([]domain.Holding, error)
	Price(ctx context.Context) (decimal.Decimal, error)
}

type client struct {
	cli               *fasthttp.HostClient
	transportHoldings HoldingsTransport
	transportPrice    PriceTransport
	token             string
}

func (s *client) Holdings(ctx context.Context) (holdings []domain.Holding, err error) {
	req, res := fasthttp.AcquireRequest(), fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(res)
	}()
	if err = s.transportHoldings.EncodeRequest(ctx, req, &s.token); err != nil {
		return
	}
	if err = s.do(ctx, req, res); err != nil {
		return
	}
	return s.transportHoldings.DecodeResponse(ctx, res)
}

func (s *client) Price(ctx context.Context) (price decimal.Decimal, err error) {
	req, res := fasthttp.AcquireRequest(), fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(res)
	}()
	if err = s.transportPrice.EncodeRequest(ctx, req, &s.token); err != nil {
		return
	}
	if err = s.do(ctx, req, res); err != nil {
		return
	}
	return s.transportPrice.DecodeResponse(ctx, res)
}

func (s *client) do(ctx context.Context, req *fasthttp.Request, res *fasthttp.Response) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultTimeoutRq)
	}
	if err := s.cli.DoDeadline(req, res, deadline); err != nil {
		return errors.Wrapf(domain.ErrTransport, "exchange request %s: %v", req.URI().Path(), err)
	}

	return nil
}

type Config struct {
	ServerURL           string
	ServerTLS           bool
	MaxConns            *int
	MaxConnDuration     *time.Duration
	MaxIdleConnDuration *time.Duration
	ReadTimeout         *time.Duration
	WriteTimeout        *time.Duration
	MaxResponseBodySize *int
}

func New(
	config Config,
	errorProcessor errorProcessor,
	token string,
) (Client, error) {
	parsedServerURL, err := url.Parse(config.ServerURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse server url")
	}
	base := parsedServerURL.Scheme + "://" + parsedServerURL.Host + parsedServerURL.Path

	cli := fasthttp.HostClient{
		Addr: parsedServerURL.Host,
	}
	if config.MaxConns != nil {
		cli.MaxConns = *config.MaxConns
	}
	if config.MaxConnDuration != nil {
		cli.MaxConnDuration = *config.MaxConnDuration
	}
	if config.MaxIdleConnDuration != nil {
		cli.MaxIdleConnDuration = *config.MaxIdleConnDuration
	}
	if config.ReadTimeout != nil {
		cli.ReadTimeout = *config.ReadTimeout
	}
	if config.WriteTimeout != nil {
		cli.WriteTimeout = *config.WriteTimeout
	}
	if config.MaxResponseBodySize != nil {
		cli.MaxResponseBodySize = *config.MaxResponseBodySize
	}

	cli.IsTLS = config.ServerTLS || parsedServerURL.Scheme == "https"

	return &client{
		cli:               &cli,
		transportHoldings: NewHoldingsTransport(errorProcessor, base+uriPathHoldings, httpMethodGet),
		transportPrice:    NewPriceTransport(errorProcessor, base+uriPathPrice, httpMethodGet),
		token:             token,
	}, nil
}
