package domain

// Well known subscription keys. Account watchers subscribe by account id.
const (
	KeyPrice       = "price"
	KeyNews        = "news"
	KeyBroadcast   = "broadcast"
	KeyLeaderboard = "leaderboard"
)

// Handle is a subscriber endpoint. A non-nil error from Send means the
// handle is disconnected and must be dropped.
type Handle interface {
	ID() string
	Send(ev *Event) error
}

// Subscription is returned by EventsBroker.Subscribe. Close is idempotent.
type Subscription interface {
	Close()
}

// EventsBroker describes keyed publish/subscribe among components.
type EventsBroker interface {
	Subscribe(key string, h Handle) Subscription
	Publish(key string, ev *Event)
	PublishGlobal(ev *Event)
}
