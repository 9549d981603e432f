package handler

import (
	"net/http"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/exchange"
)

type ExchangeHandler struct {
	prices exchange.PriceSource
	book   *exchange.Book
}

func NewExchangeHandler(prices exchange.PriceSource, book *exchange.Book) *ExchangeHandler {
	return &ExchangeHandler{prices: prices, book: book}
}

// Price handles GET /bitcoin/price as plain text.
func (h ExchangeHandler) Price(w http.ResponseWriter, _ *http.Request) {
	writeRaw(w, "text/plain", []byte(h.prices.Price().String()))
}

// Trade handles POST /bitcoin/trade with {"name", "bankAccountNo", "units"}.
func (h ExchangeHandler) Trade(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(r)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	trade, err := domain.DecodeHolding(body)
	if err != nil {
		badRequest(w, err.Error())
		return
	}
	if trade.Name == "" || trade.BankAccountNo == "" {
		badRequest(w, "name and bankAccountNo are required")
		return
	}

	res, err := h.book.Trade(ctx, trade)
	if err != nil {
		writeError(ctx, w, err)
		return
	}

	bs, err := domain.EncodeHolding(res)
	if err != nil {
		writeError(ctx, w, err)
		return
	}
	writeRaw(w, "application/json", bs)
}

// Holdings handles GET /bitcoin/trade/holdings.
func (h ExchangeHandler) Holdings(w http.ResponseWriter, r *http.Request) {
	bs, err := domain.EncodeHoldings(h.book.Holdings())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}
	writeRaw(w, "application/json", bs)
}
