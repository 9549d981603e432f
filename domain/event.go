package domain

import (
	"context"
)

type EventName = string

const (
	EvNameBalance     EventName = "balance"
	EvNamePrice       EventName = "price"
	EvNameNews        EventName = "news"
	EvNameBitcoin     EventName = "bitcoin"
	EvNameLeaderboard EventName = "leaderboard"
)

// GlobalTopics are the event names published with PublishGlobal.
var GlobalTopics = []EventName{EvNameBitcoin, EvNameLeaderboard}

// MetaKey is set by the registry to the subscription key an event was
// published under.
const MetaKey = "key"

// Event is the unit delivered through the subscription registry. Name and
// Data map directly onto a server-sent event.
type (
	meta  map[string]string
	Event struct {
		Ctx  context.Context
		Name EventName
		Data string
		meta meta
	}
)

func NewEvent(ctx context.Context, name EventName, data string) *Event {
	if ctx == nil {
		ctx = context.Background()
	}

	return &Event{
		Ctx:  ctx,
		Name: name,
		Data: data,
		meta: nil,
	}
}

// WithMetaKV returns a copy of the event carrying key=value in its meta, so
// one published event can be annotated per delivery without races.
func (m *Event) WithMetaKV(key, value string) *Event {
	cp := *m
	cp.meta = make(meta, len(m.meta)+1)
	for k, v := range m.meta {
		cp.meta[k] = v
	}
	cp.meta[key] = value

	return &cp
}

func (m *Event) GetMeta(key string) string {
	if m.meta == nil {
		return ""
	}

	return m.meta[key]
}
