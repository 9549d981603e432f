package stream

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
)

const DefaultReconnectDelay = 2 * time.Second

var errClosedByPeer = errors.Wrap(domain.ErrTransport, "stream completed by peer")

// Message is a single event received from an upstream source.
type Message struct {
	Name string
	Data string
}

// Handlers are the callbacks a Source invokes for one transport connection.
// OnError and OnClosed are terminal, the Source delivers at most one of them.
type Handlers struct {
	OnMessage func(Message)
	OnError   func(error)
	OnClosed  func()
}

// Handle closes one transport connection. Closing a handle does not fire
// OnError or OnClosed.
type Handle interface {
	Close() error
}

// Source opens transport connections to an upstream event source.
type Source interface {
	Connect(ctx context.Context, url string, h Handlers) (Handle, error)
}

type timer interface {
	Stop() bool
}

type afterFunc func(d time.Duration, f func()) timer

func realAfterFunc(d time.Duration, f func()) timer {
	return time.AfterFunc(d, f)
}

// Client owns every Connection it opened. Closing the client closes them all.
type Client struct {
	source    Source
	delay     time.Duration
	log       logger.Logger
	afterFunc afterFunc

	mu          sync.Mutex
	connections []*Connection
	closed      bool
}

func NewClient(source Source, reconnectDelay time.Duration) *Client {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}

	return &Client{
		source:    source,
		delay:     reconnectDelay,
		log:       logger.DefaultLogger,
		afterFunc: realAfterFunc,
	}
}

func (c *Client) WithLogger(lg logger.Logger) *Client {
	c.log = lg
	return c
}

// Connect starts consuming url and returns the connection immediately. The
// first attempt runs synchronously, failures are retried in the background.
func (c *Client) Connect(
	ctx context.Context,
	url string,
	onMessage func(Message),
) *Connection {
	conn := &Connection{
		ctx:       ctx,
		url:       url,
		onMessage: onMessage,
		source:    c.source,
		delay:     c.delay,
		log:       c.log.WithField("url", url),
		afterFunc: c.afterFunc,
		onClose:   c.forget,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return conn
	}
	c.connections = append(c.connections, conn)
	c.mu.Unlock()

	conn.connect()

	return conn
}

// Len returns the number of open connections.
func (c *Client) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.connections)
}

func (c *Client) forget(conn *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, cc := range c.connections {
		if cc == conn {
			c.connections = append(c.connections[:i], c.connections[i+1:]...)
			return
		}
	}
}

// Close closes every connection. It is idempotent.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conns := c.connections
	c.connections = nil
	c.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}

// Connection is one resilient subscription to an upstream url.
//
// closed is monotonic. reconnectScheduled is set while a retry timer is
// pending so a second failure cannot arm a second timer. Both are checked
// and mutated under mu, which is never held across a Source call.
type Connection struct {
	ctx       context.Context
	url       string
	onMessage func(Message)
	source    Source
	delay     time.Duration
	log       logger.Logger
	afterFunc afterFunc
	onClose   func(*Connection)

	mu                 sync.Mutex
	closed             bool
	reconnectScheduled bool
	timer              timer
	current            Handle
	// generation invalidates callbacks of superseded transports.
	generation uint64
	attempts   int
}

// Attempts returns how many times the transport has been opened.
func (c *Connection) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.attempts
}

// Closed reports whether Close has been called.
func (c *Connection) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closed
}

func (c *Connection) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnectScheduled = false
	c.timer = nil
	c.generation++
	gen := c.generation
	c.attempts++
	prev := c.current
	c.current = nil
	c.mu.Unlock()

	if prev != nil {
		c.closeHandle(prev)
	}

	h, err := c.source.Connect(c.ctx, c.url, Handlers{
		OnMessage: func(msg Message) { c.deliver(gen, msg) },
		OnError:   func(err error) { c.fail(gen, err) },
		OnClosed:  func() { c.fail(gen, errClosedByPeer) },
	})
	if err != nil {
		c.fail(gen, err)
		return
	}

	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		c.closeHandle(h)
		return
	}
	prev = c.current
	c.current = h
	c.mu.Unlock()

	if prev != nil {
		c.closeHandle(prev)
	}

	c.log.Debugf("[Connection.connect] Connected.")
}

func (c *Connection) deliver(gen uint64, msg Message) {
	c.mu.Lock()
	stale := c.closed || gen != c.generation
	c.mu.Unlock()

	if stale || c.onMessage == nil {
		return
	}

	c.onMessage(msg)
}

func (c *Connection) fail(gen uint64, err error) {
	c.mu.Lock()
	if c.closed || gen != c.generation {
		c.mu.Unlock()
		return
	}
	h := c.current
	c.current = nil
	c.generation++
	c.mu.Unlock()

	c.log.Warnf("[Connection.fail] Stream failed, reconnecting in %s: %v", c.delay, err)

	if h != nil {
		c.closeHandle(h)
	}

	c.ScheduleReconnect()
}

// ScheduleReconnect arms the retry timer unless the connection is closed or
// a retry is already pending.
func (c *Connection) ScheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.reconnectScheduled {
		return
	}
	c.reconnectScheduled = true
	c.timer = c.afterFunc(c.delay, c.connect)
}

// Close stops the connection for good. It is idempotent and safe to call
// concurrently with a pending reconnect.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	h := c.current
	c.current = nil
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.reconnectScheduled = false
	c.mu.Unlock()

	if h != nil {
		c.closeHandle(h)
	}
	if c.onClose != nil {
		c.onClose(c)
	}

	return nil
}

func (c *Connection) closeHandle(h Handle) {
	if err := h.Close(); err != nil {
		c.log.Debugf("[Connection.closeHandle] Transport close: %v", err)
	}
}
