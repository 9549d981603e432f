package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AlekSi/pointer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

func newExchangeServer(t *testing.T, priceStatus int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc(uriPathPrice, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("Authorization"))
		w.WriteHeader(priceStatus)
		_, _ = w.Write([]byte("512.25\n"))
	})
	mux.HandleFunc(uriPathHoldings, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"Alice","bankAccountNo":"1234567","units":1.5}]`))
	})

	return httptest.NewServer(mux)
}

func TestClient_HoldingsAndPrice(t *testing.T) {
	srv := newExchangeServer(t, http.StatusOK)
	defer srv.Close()

	cli, err := New(
		Config{ServerURL: srv.URL, MaxConns: pointer.ToInt(4)},
		NewErrorProcessor(nil),
		"secret",
	)
	require.NoError(t, err)

	price, err := cli.Price(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "512.25", price.String())

	holdings, err := cli.Holdings(context.Background())
	require.NoError(t, err)
	require.Len(t, holdings, 1)
	assert.Equal(t, "Alice", holdings[0].Name)
	assert.Equal(t, "1234567", holdings[0].BankAccountNo)
	assert.Equal(t, "1.5", holdings[0].Units.String())
}

func TestClient_NonOKIsPartialData(t *testing.T) {
	srv := newExchangeServer(t, http.StatusServiceUnavailable)
	defer srv.Close()

	cli, err := New(
		Config{ServerURL: srv.URL},
		NewErrorProcessor(map[string]string{"503": "exchange is restarting"}),
		"secret",
	)
	require.NoError(t, err)

	_, err = cli.Price(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPartialData))
	assert.Contains(t, err.Error(), "exchange is restarting")
}

func TestClient_TransportFailure(t *testing.T) {
	srv := newExchangeServer(t, http.StatusOK)
	serverURL := srv.URL
	srv.Close()

	cli, err := New(Config{ServerURL: serverURL}, NewErrorProcessor(nil), "")
	require.NoError(t, err)

	_, err = cli.Holdings(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}
