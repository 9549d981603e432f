package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-http-utils/headers"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

func TestClient_Post(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get(headers.ContentType))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var body map[string]string
		assert.NoError(t, json.Unmarshal(raw, &body))

		if body["name"] != "Alice" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		_, _ = w.Write([]byte(`{"balance":"900"}`))
	}))
	defer srv.Close()

	cli := New(time.Second)

	status, body, err := cli.Post(context.Background(), srv.URL, map[string]string{"name": "Alice"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"balance":"900"}`, string(body))

	status, _, err = cli.Post(context.Background(), srv.URL, map[string]string{"name": "Bob"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, status)
}

func TestClient_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		_, _ = w.Write([]byte("1.05"))
	}))
	defer srv.Close()

	status, body, err := New(time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "1.05", string(body))
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, _, err := New(100 * time.Millisecond).Get(context.Background(), url)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))
}

func TestClient_PostIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		time.Sleep(150 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, _, err := New(50*time.Millisecond).Post(context.Background(), srv.URL, map[string]string{"name": "Alice"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrTransport))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
