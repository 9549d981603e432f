package broker

import (
	"sync"

	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
)

var errPanicked = errors.New("handle panicked")

// broadcaster fans one key out to its subscriptions. refs is guarded by the
// owning EventsInMemory.mu, subs and removed by mu.
type broadcaster struct {
	key     string
	refs    int
	mu      sync.Mutex
	subs    map[string]*subscription
	removed bool
}

func newBroadcaster(key string) *broadcaster {
	return &broadcaster{
		key:  key,
		subs: make(map[string]*subscription),
	}
}

type subscription struct {
	id     string
	key    string
	handle domain.Handle
	owner  *EventsInMemory
	b      *broadcaster
	once   sync.Once
}

// Close unregisters the handle. It must not be called from inside the
// handle's Send.
func (s *subscription) Close() {
	s.once.Do(func() {
		s.owner.release(s)
	})
}
