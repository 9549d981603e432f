package broker

import (
	"sync"

	"github.com/google/uuid"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

var _ domain.EventsBroker = new(EventsInMemory)

// EventsInMemory maps subscription keys to reference counted broadcasters.
// A broadcaster is created by the first Subscribe for a key and removed when
// its last subscription is closed.
//
// Lock order is recentMu -> mu -> broadcaster.mu. No lock is held while a
// failed handle is being unsubscribed.
type EventsInMemory struct {
	log logger.Logger

	mu           sync.Mutex
	broadcasters map[string]*broadcaster

	// recentMu serializes global publishing with catch-up replay.
	recentMu    sync.RWMutex
	recent      map[domain.EventName]*domain.Event
	recentOrder []domain.EventName
}

func NewInMemory() *EventsInMemory {
	return &EventsInMemory{
		log:          logger.DefaultLogger,
		broadcasters: make(map[string]*broadcaster),
		recent:       make(map[domain.EventName]*domain.Event),
	}
}

func (ps *EventsInMemory) WithLogger(lg logger.Logger) *EventsInMemory {
	ps.log = lg
	return ps
}

// Subscribe registers h under key. Subscribers of domain.KeyBroadcast
// immediately receive the most recent global event of every topic.
func (ps *EventsInMemory) Subscribe(key string, h domain.Handle) domain.Subscription {
	if key == domain.KeyBroadcast {
		ps.recentMu.RLock()
		defer ps.recentMu.RUnlock()
	}

	ps.mu.Lock()
	b, ok := ps.broadcasters[key]
	if ok {
		b.refs++
	} else {
		b = newBroadcaster(key)
		b.refs = 1
		ps.broadcasters[key] = b
	}
	ps.mu.Unlock()

	sub := &subscription{
		id:     uuid.New().String(),
		key:    key,
		handle: h,
		owner:  ps,
		b:      b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	if key == domain.KeyBroadcast {
		for _, name := range ps.recentOrder {
			ev := ps.recent[name]
			if err := ps.send(sub, ev); err != nil {
				b.mu.Unlock()
				sub.Close()
				return sub
			}
		}
	}
	b.mu.Unlock()

	ps.log.WithField("key", key).WithField("handle", h.ID()).
		Debugf("[EventsInMemory.Subscribe] Handle registered.")

	return sub
}

// Publish delivers ev to every handle currently registered under key. Events
// for keys nobody watches are dropped.
func (ps *EventsInMemory) Publish(key string, ev *domain.Event) {
	ps.mu.Lock()
	b := ps.broadcasters[key]
	ps.mu.Unlock()

	if b == nil {
		return
	}

	ps.deliver(b, ev.WithMetaKV(domain.MetaKey, key))
}

// PublishGlobal delivers ev to all broadcast subscribers and remembers it as
// the latest value of its topic (ev.Name) for late subscribers.
func (ps *EventsInMemory) PublishGlobal(ev *domain.Event) {
	ps.recentMu.Lock()
	defer ps.recentMu.Unlock()

	ev = ev.WithMetaKV(domain.MetaKey, domain.KeyBroadcast)
	if _, ok := ps.recent[ev.Name]; !ok {
		ps.recentOrder = append(ps.recentOrder, ev.Name)
	}
	ps.recent[ev.Name] = ev

	ps.mu.Lock()
	b := ps.broadcasters[domain.KeyBroadcast]
	ps.mu.Unlock()

	if b == nil {
		return
	}

	ps.deliver(b, ev)
}

// Len returns the number of live broadcasters.
func (ps *EventsInMemory) Len() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	return len(ps.broadcasters)
}

// Refs returns the reference count of the broadcaster for key, 0 if absent.
func (ps *EventsInMemory) Refs(key string) int {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if b, ok := ps.broadcasters[key]; ok {
		return b.refs
	}

	return 0
}

func (ps *EventsInMemory) deliver(b *broadcaster, ev *domain.Event) {
	var failed []*subscription

	b.mu.Lock()
	if b.removed {
		b.mu.Unlock()
		return
	}
	for _, sub := range b.subs {
		if err := ps.send(sub, ev); err != nil {
			failed = append(failed, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range failed {
		sub.Close()
	}
}

func (ps *EventsInMemory) send(sub *subscription, ev *domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			ps.log.Errorf(
				"Panic while sending %s to handle %s for key %s: %+v",
				ev.Name, sub.handle.ID(), sub.key, r,
			)
			err = errPanicked
		}
	}()

	if err = sub.handle.Send(ev); err != nil {
		ps.log.WithField("key", sub.key).WithField("handle", sub.handle.ID()).
			Infof("[EventsInMemory.send] Handle disconnected, dropping: %v", err)
	}

	return err
}

func (ps *EventsInMemory) release(sub *subscription) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	b := sub.b
	b.mu.Lock()
	delete(b.subs, sub.id)
	b.refs--
	if b.refs == 0 {
		b.removed = true
		if ps.broadcasters[sub.key] == b {
			delete(ps.broadcasters, sub.key)
		}
	}
	b.mu.Unlock()
}
