package exchange

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-http-utils/headers"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/valyala/fasthttp"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

// HoldingsTransport transport interface
type HoldingsTransport interface {
	EncodeRequest(ctx context.Context, r *fasthttp.Request, token *string) (err error)
	DecodeResponse(ctx context.Context, r *fasthttp.Response) (holdings []domain.Holding, err error)
}

// PriceTransport transport interface
type PriceTransport interface {
	EncodeRequest(ctx context.Context, r *fasthttp.Request, token *string) (err error)
	DecodeResponse(ctx context.Context, r *fasthttp.Response) (price decimal.Decimal, err error)
}

type request struct {
	errorProcessor errorProcessor
	pathTemplate   string
	method         string
}

func (t *request) encode(r *fasthttp.Request, token *string, accept string) {
	r.Header.SetMethod(t.method)
	r.SetRequestURI(t.pathTemplate)

	if token != nil && *token != "" {
		r.Header.Set(headers.Authorization, *token)
	}
	r.Header.Set(headers.Accept, accept)
}

type holdingsTransport struct {
	request
}

func (t *holdingsTransport) EncodeRequest(_ context.Context, r *fasthttp.Request, token *string) (err error) {
	t.encode(r, token, "application/json")
	return
}

func (t *holdingsTransport) DecodeResponse(_ context.Context, r *fasthttp.Response) (holdings []domain.Holding, err error) {
	if r.StatusCode() != http.StatusOK {
		err = t.errorProcessor.Decode(r)
		return
	}

	return domain.DecodeHoldings(r.Body())
}

type priceTransport struct {
	request
}

func (t *priceTransport) EncodeRequest(_ context.Context, r *fasthttp.Request, token *string) (err error) {
	t.encode(r, token, "text/plain")
	return
}

func (t *priceTransport) DecodeResponse(_ context.Context, r *fasthttp.Response) (price decimal.Decimal, err error) {
	if r.StatusCode() != http.StatusOK {
		err = t.errorProcessor.Decode(r)
		return
	}

	price, err = decimal.NewFromString(strings.TrimSpace(string(r.Body())))
	if err != nil {
		err = errors.Wrap(err, "can't parse price")
	}

	return
}

// NewHoldingsTransport the transport creator for holdings requests
func NewHoldingsTransport(errorProcessor errorProcessor, pathTemplate, method string) HoldingsTransport {
	return &holdingsTransport{request{errorProcessor, pathTemplate, method}}
}

// NewPriceTransport the transport creator for price requests
func NewPriceTransport(errorProcessor errorProcessor, pathTemplate, method string) PriceTransport {
	return &priceTransport{request{errorProcessor, pathTemplate, method}}
}
