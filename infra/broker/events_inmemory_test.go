package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

type mockHandle struct {
	id     string
	mu     sync.Mutex
	events []*domain.Event
	err    error
	panics bool
}

func newMockHandle(id string) *mockHandle {
	return &mockHandle{id: id}
}

func (m *mockHandle) ID() string { return m.id }

func (m *mockHandle) Send(ev *domain.Event) error {
	if m.panics {
		panic("boom")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, ev)
	return nil
}

func (m *mockHandle) data() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		res = append(res, ev.Data)
	}
	return res
}

func priceEvent(data string) *domain.Event {
	return domain.NewEvent(context.Background(), domain.EvNamePrice, data)
}

func TestEventsInMemory_SubscribePublishClose(t *testing.T) {
	ps := NewInMemory()
	h := newMockHandle("h1")

	sub := ps.Subscribe(domain.KeyPrice, h)
	assert.Equal(t, 1, ps.Len())
	assert.Equal(t, 1, ps.Refs(domain.KeyPrice))

	for i := 0; i < 10; i++ {
		ps.Publish(domain.KeyPrice, priceEvent(fmt.Sprint(i)))
	}

	assert.Equal(t, []string{"0", "1", "2", "3", "4", "5", "6", "7", "8", "9"}, h.data())
	assert.Equal(t, domain.KeyPrice, h.events[0].GetMeta(domain.MetaKey))

	sub.Close()
	sub.Close()
	assert.Equal(t, 0, ps.Len())
	assert.Equal(t, 0, ps.Refs(domain.KeyPrice))

	ps.Publish(domain.KeyPrice, priceEvent("10"))
	assert.Len(t, h.data(), 10)
}

func TestEventsInMemory_PriceScenario(t *testing.T) {
	ps := NewInMemory()
	first := newMockHandle("first")

	sub := ps.Subscribe(domain.KeyPrice, first)
	ps.Publish(domain.KeyPrice, priceEvent("1.0"))
	ps.Publish(domain.KeyPrice, priceEvent("1.05"))
	sub.Close()
	ps.Publish(domain.KeyPrice, priceEvent("1.10"))

	assert.Equal(t, []string{"1.0", "1.05"}, first.data())

	second := newMockHandle("second")
	defer ps.Subscribe(domain.KeyPrice, second).Close()
	assert.Empty(t, second.data(), "non caching keys have no backlog")

	ps.PublishGlobal(domain.NewEvent(context.Background(), domain.EvNameBitcoin, "1.0"))
	ps.PublishGlobal(domain.NewEvent(context.Background(), domain.EvNameBitcoin, "1.05"))
	ps.PublishGlobal(domain.NewEvent(context.Background(), domain.EvNameBitcoin, "1.10"))

	late := newMockHandle("late")
	defer ps.Subscribe(domain.KeyBroadcast, late).Close()
	assert.Equal(t, []string{"1.10"}, late.data())
}

func TestEventsInMemory_ReferenceCounting(t *testing.T) {
	ps := NewInMemory()

	sub1 := ps.Subscribe("1234567", newMockHandle("a"))
	sub2 := ps.Subscribe("1234567", newMockHandle("b"))
	assert.Equal(t, 2, ps.Refs("1234567"))

	sub1.Close()
	assert.Equal(t, 1, ps.Refs("1234567"))
	assert.Equal(t, 1, ps.Len())

	sub1.Close()
	assert.Equal(t, 1, ps.Refs("1234567"), "close must be idempotent")

	sub2.Close()
	assert.Equal(t, 0, ps.Len())
}

func TestEventsInMemory_DropsDisconnectedHandles(t *testing.T) {
	ps := NewInMemory()

	healthy := newMockHandle("healthy")
	broken := newMockHandle("broken")
	broken.err = errors.New("broken pipe")
	panicking := newMockHandle("panicking")
	panicking.panics = true

	defer ps.Subscribe(domain.KeyNews, healthy).Close()
	ps.Subscribe(domain.KeyNews, broken)
	ps.Subscribe(domain.KeyNews, panicking)
	require.Equal(t, 3, ps.Refs(domain.KeyNews))

	ps.Publish(domain.KeyNews, priceEvent("first"))
	assert.Equal(t, 1, ps.Refs(domain.KeyNews))

	ps.Publish(domain.KeyNews, priceEvent("second"))
	assert.Equal(t, []string{"first", "second"}, healthy.data())
}

func TestEventsInMemory_GlobalCatchUp(t *testing.T) {
	ps := NewInMemory()
	ctx := context.Background()

	early := newMockHandle("early")
	defer ps.Subscribe(domain.KeyBroadcast, early).Close()

	ps.PublishGlobal(domain.NewEvent(ctx, domain.EvNameBitcoin, `{"bitcoin":1}`))
	ps.PublishGlobal(domain.NewEvent(ctx, domain.EvNameLeaderboard, `[]`))
	ps.PublishGlobal(domain.NewEvent(ctx, domain.EvNameBitcoin, `{"bitcoin":2}`))

	assert.Equal(t, []string{`{"bitcoin":1}`, `[]`, `{"bitcoin":2}`}, early.data())

	late := newMockHandle("late")
	defer ps.Subscribe(domain.KeyBroadcast, late).Close()

	assert.Equal(t, []string{`{"bitcoin":2}`, `[]`}, late.data())
	assert.Equal(t, domain.EvNameBitcoin, late.events[0].Name)
	assert.Equal(t, domain.EvNameLeaderboard, late.events[1].Name)
}

func TestEventsInMemory_ConcurrentSubscribeClose(t *testing.T) {
	ps := NewInMemory()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				sub := ps.Subscribe(domain.KeyPrice, newMockHandle(fmt.Sprint(i)))
				sub.Close()
			}
		}(i)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				ps.Publish(domain.KeyPrice, priceEvent(fmt.Sprint(j)))
				ps.PublishGlobal(priceEvent(fmt.Sprint(j)))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, ps.Len())
}
