package centrifugo

import (
	"context"
	"fmt"
	"sync"

	cfge "github.com/centrifugal/centrifuge-go"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"bitbucket.org/novatechnologies/cryptotrader/domain"
	"bitbucket.org/novatechnologies/cryptotrader/infra"
	"bitbucket.org/novatechnologies/cryptotrader/infra/logger"
	"bitbucket.org/novatechnologies/cryptotrader/infra/stream"
)

// eventHandler forwards one client's callbacks to stream.Handlers. The first
// error or disconnect is terminal for the transport.
type eventHandler struct {
	ctx     context.Context
	channel string
	debug   bool
	h       stream.Handlers
	once    sync.Once
}

func (e *eventHandler) terminate(err error) {
	e.once.Do(func() {
		if e.h.OnError != nil {
			e.h.OnError(errors.Wrapf(domain.ErrTransport, "centrifugo channel %s: %v", e.channel, err))
		}
	})
}

func (e *eventHandler) OnConnect(_ *cfge.Client, ev cfge.ConnectEvent) {
	if e.debug {
		logger.FromContext(e.ctx).Infof("Connected to centrifugo with ID %s", ev.ClientID)
	}
}

func (e *eventHandler) OnError(_ *cfge.Client, ev cfge.ErrorEvent) {
	e.terminate(errors.New(ev.Message))
}

func (e *eventHandler) OnDisconnect(_ *cfge.Client, ev cfge.DisconnectEvent) {
	e.terminate(errors.Errorf("disconnected: %s", ev.Reason))
}

func (e *eventHandler) OnPublish(sub *cfge.Subscription, ev cfge.PublishEvent) {
	if e.debug {
		logger.FromContext(e.ctx).Infof(
			"Publication via channel %s: %s", sub.Channel(), string(ev.Data),
		)
	}
	if e.h.OnMessage != nil {
		e.h.OnMessage(stream.Message{Name: sub.Channel(), Data: string(ev.Data)})
	}
}

func (e *eventHandler) OnSubscribeSuccess(sub *cfge.Subscription, ev cfge.SubscribeSuccessEvent) {
	if e.debug {
		logger.FromContext(e.ctx).Infof(
			"Subscribed on channel %s, resubscribed: %v, recovered: %v",
			sub.Channel(), ev.Resubscribed, ev.Recovered,
		)
	}
}

func (e *eventHandler) OnSubscribeError(sub *cfge.Subscription, ev cfge.SubscribeErrorEvent) {
	e.terminate(errors.Errorf("subscribe on %s failed: %s", sub.Channel(), ev.Error))
}

func (e *eventHandler) OnUnsubscribe(sub *cfge.Subscription, _ cfge.UnsubscribeEvent) {
	e.terminate(errors.Errorf("unsubscribed from %s", sub.Channel()))
}

type source struct {
	config infra.CentrifugeConfig
}

// NewSource returns a stream.Source reading a Centrifugo channel over
// websocket. The url passed to Connect is the channel name.
func NewSource(config infra.CentrifugeConfig) stream.Source {
	return &source{config: config}
}

func (s *source) Connect(ctx context.Context, channel string, h stream.Handlers) (stream.Handle, error) {
	c, err := NewWSClient(s.config)
	if err != nil {
		return nil, err
	}

	handler := &eventHandler{ctx: ctx, channel: channel, debug: s.config.Debug, h: h}
	c.OnConnect(handler)
	c.OnError(handler)
	c.OnDisconnect(handler)

	sub, err := c.NewSubscription(channel)
	if err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(domain.ErrTransport, "can't create subscription %s: %v", channel, err)
	}
	sub.OnPublish(handler)
	sub.OnSubscribeSuccess(handler)
	sub.OnSubscribeError(handler)
	sub.OnUnsubscribe(handler)

	if err := sub.Subscribe(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(domain.ErrTransport, "can't subscribe to %s: %v", channel, err)
	}
	if err := c.Connect(); err != nil {
		_ = c.Close()
		return nil, errors.Wrapf(domain.ErrTransport, "can't connect to %s: %v", s.config.Host, err)
	}

	return &handle{client: c, handler: handler}, nil
}

type handle struct {
	client  *cfge.Client
	handler *eventHandler
}

// Close disconnects without reporting the disconnect as a failure.
func (h *handle) Close() error {
	h.handler.once.Do(func() {})
	return h.client.Close()
}

// WSURL returns the websocket endpoint of a Centrifugo host.
func WSURL(host string) string {
	return fmt.Sprintf("ws://%s/connection/websocket", host)
}

// NewWSClient returns centrifugo frontend-side WS client.
func NewWSClient(config infra.CentrifugeConfig) (*cfge.Client, error) {
	c := cfge.NewJsonClient(WSURL(config.Host), cfge.DefaultConfig())

	if config.SignTokenKey != "" {
		token, err := SignToken(config.SignTokenKey)
		if err != nil {
			return nil, err
		}
		c.SetToken(token)
	}

	return c, nil
}

// SignToken issues a connection token for an anonymous relay client.
func SignToken(key string) (string, error) {
	token := jwt.NewWithClaims(
		jwt.SigningMethodHS256,
		jwt.MapClaims{
			// https://centrifugal.dev/docs/server/authentication
			"sub": "cryptotrader#" + uuid.New().String(),
		},
	)
	signed, err := token.SignedString([]byte(key))
	if err != nil {
		return "", errors.Wrap(err, "can't sign centrifugo token")
	}

	return signed, nil
}
