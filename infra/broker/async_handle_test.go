package broker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

func TestAsyncHandle_DropsWhenFull(t *testing.T) {
	h := NewAsyncHandle("sink", 2)

	for i := 0; i < 5; i++ {
		require.NoError(t, h.Send(priceEvent("x")))
	}
	assert.Equal(t, uint64(3), h.Dropped())
}

func TestAsyncHandle_RunDeliversInOrder(t *testing.T) {
	ps := NewInMemory()
	h := NewAsyncHandle("sink", 16)
	defer ps.Subscribe(domain.KeyPrice, h).Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu  sync.Mutex
		got []string
	)
	go h.Run(ctx, func(_ context.Context, batch []*domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		for _, ev := range batch {
			got = append(got, ev.Data)
		}
	})

	ps.Publish(domain.KeyPrice, priceEvent("1.0"))
	ps.Publish(domain.KeyPrice, priceEvent("1.05"))
	ps.Publish(domain.KeyPrice, priceEvent("1.10"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"1.0", "1.05", "1.10"}, got)
	mu.Unlock()
}
