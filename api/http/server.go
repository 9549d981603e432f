package http

import (
	"context"
	"fmt"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"bitbucket.org/novatechnologies/cryptotrader/api/http/handler"
	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/exchange"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/ledger"
)

// Services are the components exposed over HTTP. A nil Bank or Book leaves
// the corresponding routes unregistered.
type Services struct {
	EventsBroker domain.EventsBroker
	Bank         *ledger.Bank
	Prices       exchange.PriceSource
	Book         *exchange.Book
}

type Server struct {
	srv http.Server
}

func NewServer(services Services, conf infra.HttpConfig) *Server {
	return &Server{
		srv: http.Server{
			Addr:    fmt.Sprintf(":%d", conf.Port),
			Handler: NewRouter(services),
		},
	}
}

// NewRouter wires the bank, exchange and broadcast endpoints.
func NewRouter(services Services) *mux.Router {
	router := mux.NewRouter()
	streams := handler.NewStreamHandler(services.EventsBroker)

	router.HandleFunc("/broadcast", streams.Watch(func(*http.Request) string {
		return domain.KeyBroadcast
	})).Methods(http.MethodGet)

	if services.Bank != nil {
		bank := handler.NewBankHandler(services.Bank, streams)
		r := router.PathPrefix("/bank").Subrouter()
		r.HandleFunc("/open", bank.Open).Methods(http.MethodPost)
		r.HandleFunc("/transact/{accountNo}", bank.Transact).Methods(http.MethodPost)
		r.HandleFunc("/balance/watch/{accountNo}", bank.Watch).Methods(http.MethodGet)
		r.HandleFunc("/balance/{accountNo}/{name}", bank.Balance).Methods(http.MethodGet)
	}

	if services.Book != nil && services.Prices != nil {
		ex := handler.NewExchangeHandler(services.Prices, services.Book)
		r := router.PathPrefix("/bitcoin").Subrouter()
		r.HandleFunc("/price", ex.Price).Methods(http.MethodGet)
		r.HandleFunc("/price/watch", streams.Watch(func(*http.Request) string {
			return domain.KeyPrice
		})).Methods(http.MethodGet)
		r.HandleFunc("/news", streams.Watch(func(*http.Request) string {
			return domain.KeyNews
		})).Methods(http.MethodGet)
		r.HandleFunc("/trade", ex.Trade).Methods(http.MethodPost)
		r.HandleFunc("/trade/holdings", ex.Holdings).Methods(http.MethodGet)
	}

	return router
}

func (s *Server) Start(ctx context.Context) {
	s.srv.BaseContext = func(listener net.Listener) context.Context {
		return ctx
	}
	go func() {
		logger.FromContext(ctx).Infof("[*] Http server is started on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.FromContext(ctx).Errorf("[Server.Start] %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		logger.FromContext(ctx).Infof("[Server.Stop] shutdown: %v", err)
	}
}
